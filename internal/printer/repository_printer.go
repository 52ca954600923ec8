// Package printer renders registry records for human consumption.
package printer

import (
	"fmt"
	"io"

	"github.com/reviewtools/postreview/internal/api"
	"github.com/reviewtools/postreview/internal/cmd/output"
)

var _ output.ListPrinter[api.Repository] = (*RepositoryPrinter)(nil)

func DefaultRepositoryHeader() output.WriteFunc[api.Repository] {
	return func(w io.Writer, count int) {
		_, _ = fmt.Fprintf(w, "Found %d repositories:\n\n", count)
	}
}

func DefaultRepositoryFooter() output.WriteFunc[api.Repository] {
	return nil
}

type RepositoryPrinter struct {
	headerFunc output.WriteFunc[api.Repository]
	footerFunc output.WriteFunc[api.Repository]
}

func NewRepositoryPrinter() *RepositoryPrinter {
	return &RepositoryPrinter{
		headerFunc: DefaultRepositoryHeader(),
		footerFunc: DefaultRepositoryFooter(),
	}
}

func (p *RepositoryPrinter) Header(w io.Writer, count int) {
	if p.headerFunc != nil {
		p.headerFunc(w, count)
	}
}

func (p *RepositoryPrinter) SetHeader(fn output.WriteFunc[api.Repository]) {
	p.headerFunc = fn
}

func (p *RepositoryPrinter) Footer(w io.Writer, count int) {
	if p.footerFunc != nil {
		p.footerFunc(w, count)
	}
}

func (p *RepositoryPrinter) SetFooter(fn output.WriteFunc[api.Repository]) {
	p.footerFunc = fn
}

// Item outputs a single repository record.
func (p *RepositoryPrinter) Item(w io.Writer, repo api.Repository) error {
	_, _ = fmt.Fprintf(w, "  #%d %s\n", repo.ID, repo.Name)
	_, _ = fmt.Fprintf(w, "    Path: %s\n", repo.Path)

	if repo.MirrorPath != "" {
		_, _ = fmt.Fprintf(w, "    Mirror: %s\n", repo.MirrorPath)
	}

	_, _ = fmt.Fprintln(w, "")

	return nil
}
