package bzr

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/reviewtools/postreview/internal/filter"
	"github.com/reviewtools/postreview/internal/scm"
)

// sectionHeaderRe matches bzr diff per-file section headers, e.g.
// === modified file 'foo.txt' or === added file 'dir/bar.txt'.
var sectionHeaderRe = regexp.MustCompile(`^=== \w+ \w+ '(.+?)'`)

// Diff produces the unified diff for the revision range. Paths in bzr diff
// output are branch-root-relative already, so only exclusion filtering is
// applied.
func (c *Client) Diff(ctx context.Context, rev scm.RevisionSpec, opts scm.DiffOptions) (string, error) {
	info, err := c.branchInfo(ctx)
	if err != nil {
		return "", err
	}

	args := []string{"diff", "-q"}

	// brz colorizes diff output; bzr has no --color option.
	if c.breezy {
		args = append(args, "--color=never")
	}

	if rev.Tip == scm.TipWorkingCopy {
		args = append(args, "-r", rev.Base)
	} else {
		args = append(args, "-r", fmt.Sprintf("%s..%s", rev.Base, rev.Tip))
	}

	args = append(args, opts.IncludeFiles...)

	// bzr diff exits 1 when differences were found.
	out, code, err := c.runner.OutputWithCode(ctx, c.bzr, args...)
	if err != nil {
		return "", err
	}
	if code > 1 {
		return "", fmt.Errorf("%s diff exited with status %d", c.bzr, code)
	}

	patterns := filter.NormalizePatterns(opts.ExcludePatterns, c.workingDir, info.branchRoot)
	if len(patterns) == 0 {
		return out, nil
	}

	return c.filterExcluded(out, info.branchRoot, patterns), nil
}

// filterExcluded drops per-file sections whose path matches an exclusion
// pattern. Sections run from one "===" header to the next.
func (c *Client) filterExcluded(raw, branchRoot string, patterns []string) string {
	lines := strings.Split(raw, "\n")
	out := make([]string, 0, len(lines))
	skipping := false

	for _, line := range lines {
		if m := sectionHeaderRe.FindStringSubmatch(line); m != nil {
			abs := filepath.Join(branchRoot, filepath.FromSlash(m[1]))
			skipping = filter.Excluded(abs, patterns)
		}

		if skipping {
			continue
		}

		out = append(out, line)
	}

	return strings.Join(out, "\n")
}
