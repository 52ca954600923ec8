package api

import (
	"context"
	"fmt"
	"net/url"

	"github.com/reviewtools/postreview/internal/errors"
)

// Repository is one record from the server's repository registry, restricted
// to the projected fields plus its info link.
type Repository struct {
	ID         int             `json:"id"`
	Name       string          `json:"name"`
	Path       string          `json:"path"`
	MirrorPath string          `json:"mirror_path"`
	Links      map[string]Link `json:"links"`
}

// InfoHref returns the href of the repository's info sub-resource, or an
// ErrMalformedRecord when the record carries no usable info link.
func (r Repository) InfoHref() (string, error) {
	link, ok := r.Links["info"]
	if !ok || link.Href == "" {
		return "", fmt.Errorf("%w: repository %d has no info link", errors.ErrMalformedRecord, r.ID)
	}

	return link.Href, nil
}

// RepositoryInfo is the resolved info sub-resource of a repository record,
// exposing the content identity of the backing repository.
type RepositoryInfo struct {
	UUID    string `json:"uuid"`
	URL     string `json:"url"`
	RootURL string `json:"root_url"`
}

// RepositoryPage is one page of registry results. Pages know how to fetch
// their successor; a page without a next link is the last one.
type RepositoryPage struct {
	Repositories []Repository
	TotalResults int

	next   string
	client *Client
}

// ListFilters narrows a registry listing. Path is a server-side hint only:
// servers may over-return, so callers must verify matches client-side.
type ListFilters struct {
	// Tool is the SCM tool name registered on the server (e.g. "Subversion").
	Tool string

	// Path asks the server to filter on the repository path. Optional.
	Path string
}

type repositoryListPayload struct {
	Repositories []Repository    `json:"repositories"`
	Links        map[string]Link `json:"links"`
	TotalResults int             `json:"total_results"`
}

// ListRepositories fetches the first page of the repository registry,
// projected down to the matcher's fields and the info link.
func (c *Client) ListRepositories(ctx context.Context, filters ListFilters) (*RepositoryPage, error) {
	root, err := c.Root(ctx)
	if err != nil {
		return nil, err
	}

	href, err := root.RepositoriesHref()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrRegistry, err)
	}

	q := url.Values{}
	q.Set("only-fields", RepositoryFieldProjection)
	q.Set("only-links", "info")
	if filters.Tool != "" {
		q.Set("tool", filters.Tool)
	}
	if filters.Path != "" {
		q.Set("path", filters.Path)
	}

	sep := "?"
	if u, err := url.Parse(href); err == nil && u.RawQuery != "" {
		sep = "&"
	}

	return c.fetchRepositoryPage(ctx, href+sep+q.Encode())
}

// Next fetches the following page, or returns nil when this page is the
// last one.
func (p *RepositoryPage) Next(ctx context.Context) (*RepositoryPage, error) {
	if p.next == "" {
		return nil, nil
	}

	return p.client.fetchRepositoryPage(ctx, p.next)
}

func (c *Client) fetchRepositoryPage(ctx context.Context, href string) (*RepositoryPage, error) {
	var payload repositoryListPayload
	if err := c.get(ctx, href, &payload); err != nil {
		return nil, err
	}

	page := &RepositoryPage{
		Repositories: payload.Repositories,
		TotalResults: payload.TotalResults,
		client:       c,
	}
	if link, ok := payload.Links["next"]; ok {
		page.next = link.Href
	}

	c.logger.Debug("Fetched repository page",
		"count", len(page.Repositories),
		"total", page.TotalResults,
		"has_next", page.next != "",
	)

	return page, nil
}

// ResolveInfo fetches the info sub-resource for a repository record.
// A record without an info link yields ErrMalformedRecord.
func (c *Client) ResolveInfo(ctx context.Context, repo Repository) (*RepositoryInfo, error) {
	href, err := repo.InfoHref()
	if err != nil {
		return nil, err
	}

	var payload struct {
		Info RepositoryInfo `json:"info"`
	}
	if err := c.get(ctx, href, &payload); err != nil {
		return nil, err
	}

	return &payload.Info, nil
}
