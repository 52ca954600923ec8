package svn

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/reviewtools/postreview/internal/errors"
	"github.com/reviewtools/postreview/internal/filter"
	"github.com/reviewtools/postreview/internal/scm"
)

// scheduledWithHistoryRe matches svn status lines for additions that carry
// copy/move history ("A  +   path").
var scheduledWithHistoryRe = regexp.MustCompile(`(?m)^A  \+\s+(.+)$`)

// Diff produces the unified diff for the revision range, with header paths
// rewritten relative to the checkout root and excluded files removed.
func (c *Client) Diff(ctx context.Context, rev scm.RevisionSpec, opts scm.DiffOptions) (string, error) {
	info, err := c.wcInfo(ctx)
	if err != nil {
		return "", err
	}

	patterns := filter.NormalizePatterns(opts.ExcludePatterns, c.workingDir, c.checkoutRoot(info))

	changelist, isChangelist := changelistFor(rev)

	// A plain diff cannot represent local copy/move history, so refuse to
	// generate one while such changes are scheduled and not excluded.
	if isWorkingCopyRange(rev) {
		if err := c.checkScheduledWithHistory(ctx, changelist, patterns); err != nil {
			return "", err
		}
	}

	args := []string{"diff", "--diff-cmd=diff", "--notice-ancestry"}

	if c.showCopiesAsAdds {
		version, err := c.ClientVersion(ctx)
		if err != nil {
			return "", err
		}
		if versionAtLeast(version, showCopiesAsAddsMinVersion) {
			args = append(args, "--show-copies-as-adds=y")
		} else {
			c.logger.Warn("Installed svn client is too old for --show-copies-as-adds, ignoring")
		}
	}

	switch {
	case isChangelist:
		args = append(args, "--changelist", changelist)
	case rev.Tip != scm.TipWorkingCopy:
		args = append(args, "-r", fmt.Sprintf("%s:%s", rev.Base, rev.Tip))
	}

	args = append(args, opts.IncludeFiles...)

	// diff-like exit codes: 0 means empty, 1 means differences found.
	out, code, err := c.runner.OutputWithCode(ctx, "svn", args...)
	if err != nil {
		return "", err
	}
	if code > 1 {
		return "", fmt.Errorf("svn diff exited with status %d", code)
	}

	return c.normalizeDiff(out, info, patterns), nil
}

// checkScheduledWithHistory fails when the working copy (or changelist)
// schedules additions with history that are not excluded from the diff.
func (c *Client) checkScheduledWithHistory(ctx context.Context, changelist string, patterns []string) error {
	args := []string{"status", "--non-interactive"}
	if changelist != "" {
		args = append(args, "--changelist", changelist)
	}

	out, err := c.runner.Output(ctx, "svn", args...)
	if err != nil {
		return err
	}

	for _, m := range scheduledWithHistoryRe.FindAllStringSubmatch(out, -1) {
		path := filepath.Join(c.workingDir, strings.TrimSpace(m[1]))
		if len(patterns) > 0 && filter.Excluded(path, patterns) {
			continue
		}

		return fmt.Errorf("%w: %s (commit it first, or exclude it from the diff)",
			errors.ErrScheduledWithHistory, m[1])
	}

	return nil
}

// checkoutRoot returns the filesystem root of the working copy, falling
// back to the working directory for svn clients too old to report it.
func (c *Client) checkoutRoot(info *wcInfo) string {
	if info.wcRoot != "" {
		return info.wcRoot
	}

	return c.workingDir
}

// normalizeDiff rewrites file paths in diff headers to be relative to the
// repository checkout root (with a leading slash), and drops sections for
// excluded files.
//
// Only true header lines are rewritten: the "Index:" line, its "===="
// separator, and the immediately following "---"/"+++" pair. Body lines
// that merely look like headers (e.g. removed lines starting with "--")
// pass through untouched.
func (c *Client) normalizeDiff(raw string, info *wcInfo, patterns []string) string {
	root := c.checkoutRoot(info)

	lines := strings.Split(raw, "\n")
	out := make([]string, 0, len(lines))
	skipping := false

	for i := 0; i < len(lines); i++ {
		line := lines[i]

		if target, ok := strings.CutPrefix(line, "Index: "); ok {
			abs := filepath.Join(c.workingDir, target)
			skipping = len(patterns) > 0 && filter.Excluded(abs, patterns)
			if skipping {
				continue
			}

			out = append(out, "Index: "+c.repoRelative(abs, root))

			if i+1 < len(lines) && strings.HasPrefix(lines[i+1], "===") {
				i++
				out = append(out, lines[i])

				for _, prefix := range []string{"--- ", "+++ "} {
					if i+1 < len(lines) && strings.HasPrefix(lines[i+1], prefix) {
						i++
						out = append(out, c.rewriteHeaderLine(lines[i], prefix, root))
					}
				}
			}

			continue
		}

		if skipping {
			continue
		}

		out = append(out, line)
	}

	return strings.Join(out, "\n")
}

// rewriteHeaderLine rewrites the path in a "--- path\t(label)" or
// "+++ path\t(label)" header line. Lines without the tab-separated label
// are returned unchanged.
func (c *Client) rewriteHeaderLine(line, prefix, root string) string {
	rest := strings.TrimPrefix(line, prefix)
	path, label, found := strings.Cut(rest, "\t")
	if !found {
		return line
	}

	abs := filepath.Join(c.workingDir, path)

	return prefix + c.repoRelative(abs, root) + "\t" + label
}

// repoRelative converts an absolute filesystem path inside the checkout to
// a root-relative diff path with a leading slash.
func (c *Client) repoRelative(abs, root string) string {
	rel, err := filepath.Rel(root, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return abs
	}

	return "/" + filepath.ToSlash(rel)
}
