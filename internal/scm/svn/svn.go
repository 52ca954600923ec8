// Package svn implements the Subversion SCM client on top of the svn
// command line tool.
package svn

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/reviewtools/postreview/internal/errors"
	"github.com/reviewtools/postreview/internal/execx"
	"github.com/reviewtools/postreview/internal/scm"
)

const (
	// toolName is the SCM tool name as registered on the review server.
	toolName = "Subversion"

	// revisionBase is svn's symbolic revision for the pristine base of the
	// working copy.
	revisionBase = "BASE"

	// changelistPrefix marks a revision spec tip that names a changelist
	// rather than a revision.
	changelistPrefix = "--postreview-changelist:"
)

// showCopiesAsAddsMinVersion is the first svn release supporting
// --show-copies-as-adds.
var showCopiesAsAddsMinVersion = []int{1, 7}

// Client wraps the svn command line tool.
type Client struct {
	runner     execx.Runner
	logger     hclog.Logger
	workingDir string

	// showCopiesAsAdds requests --show-copies-as-adds=y on diffs when the
	// installed client supports it.
	showCopiesAsAdds bool

	// cached results of svn info / svn --version.
	info    *wcInfo
	version []int
}

// Option configures a Client.
type Option func(*Client) error

// WithWorkingDir sets the directory commands run from. Exclusion patterns
// and diff paths are resolved relative to it.
func WithWorkingDir(dir string) Option {
	return func(c *Client) error {
		dir = strings.TrimSpace(dir)
		if dir == "" {
			return fmt.Errorf("working directory cannot be empty")
		}
		c.workingDir = dir
		return nil
	}
}

// WithShowCopiesAsAdds makes diffs report copied files as added files,
// when the installed svn client supports it.
func WithShowCopiesAsAdds(enabled bool) Option {
	return func(c *Client) error {
		c.showCopiesAsAdds = enabled
		return nil
	}
}

// New creates a Subversion client executing through the given runner.
func New(logger hclog.Logger, runner execx.Runner, opt ...Option) (*Client, error) {
	c := &Client{
		runner:     runner,
		logger:     logger.Named("scm.svn"),
		workingDir: ".",
	}

	for _, o := range opt {
		if o == nil {
			continue
		}
		if err := o(c); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// Detector returns an scm.Detector probing for a Subversion working copy.
func Detector(logger hclog.Logger, runner execx.Runner, opt ...Option) scm.Detector {
	return func(ctx context.Context) (scm.Client, error) {
		c, err := New(logger, runner, opt...)
		if err != nil {
			return nil, err
		}
		if err := c.Detect(ctx); err != nil {
			return nil, err
		}

		return c, nil
	}
}

func (c *Client) Tool() string {
	return toolName
}

// Detect verifies svn is installed and the working directory is a checkout.
func (c *Client) Detect(ctx context.Context) error {
	if !execx.Installed("svn") {
		return fmt.Errorf("%w: svn", errors.ErrToolMissing)
	}

	if _, err := c.ClientVersion(ctx); err != nil {
		return err
	}

	if _, err := c.wcInfo(ctx); err != nil {
		return fmt.Errorf("%w: %w", errors.ErrNotACheckout, err)
	}

	return nil
}

// ClientVersion returns the installed svn client version, e.g. [1, 14, 2].
func (c *Client) ClientVersion(ctx context.Context) ([]int, error) {
	if c.version != nil {
		return c.version, nil
	}

	out, err := c.runner.Output(ctx, "svn", "--version", "-q")
	if err != nil {
		return nil, err
	}

	version, err := parseVersion(strings.TrimSpace(out))
	if err != nil {
		return nil, err
	}
	c.version = version

	return version, nil
}

func parseVersion(s string) ([]int, error) {
	parts := strings.Split(s, ".")
	version := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("unparsable svn version '%s'", s)
		}
		version = append(version, n)
	}
	if len(version) == 0 {
		return nil, fmt.Errorf("unparsable svn version '%s'", s)
	}

	return version, nil
}

// versionAtLeast compares a version tuple against a minimum.
func versionAtLeast(version, minimum []int) bool {
	for i, want := range minimum {
		if i >= len(version) {
			return false
		}
		if version[i] != want {
			return version[i] > want
		}
	}

	return true
}

// wcInfo is the parsed output of svn info for the working copy.
type wcInfo struct {
	url      string
	root     string
	uuid     string
	wcRoot   string
	basePath string
}

// wcInfo runs svn info once and caches the parsed result.
func (c *Client) wcInfo(ctx context.Context) (*wcInfo, error) {
	if c.info != nil {
		return c.info, nil
	}

	out, err := c.runner.Output(ctx, "svn", "info", "--non-interactive")
	if err != nil {
		return nil, err
	}

	info, err := parseInfo(out)
	if err != nil {
		return nil, err
	}
	c.info = info

	return info, nil
}

// parseInfo extracts the repository identity fields from svn info output.
func parseInfo(out string) (*wcInfo, error) {
	fields := make(map[string]string)
	for _, line := range strings.Split(out, "\n") {
		key, value, found := strings.Cut(line, ": ")
		if !found {
			continue
		}
		fields[key] = strings.TrimSpace(value)
	}

	info := &wcInfo{
		url:    fields["URL"],
		root:   fields["Repository Root"],
		uuid:   fields["Repository UUID"],
		wcRoot: fields["Working Copy Root Path"],
	}
	if info.url == "" || info.root == "" {
		return nil, fmt.Errorf("svn info output is missing repository URL fields")
	}

	basePath := strings.TrimPrefix(info.url, info.root)
	if basePath == "" {
		basePath = "/"
	}
	if unescaped, err := url.PathUnescape(basePath); err == nil {
		basePath = unescaped
	}
	info.basePath = basePath

	return info, nil
}

// RepositoryInfo introspects the checkout's repository identity.
func (c *Client) RepositoryInfo(ctx context.Context) (*scm.RepositoryInfo, error) {
	info, err := c.wcInfo(ctx)
	if err != nil {
		return nil, err
	}

	return &scm.RepositoryInfo{
		Path:     info.root,
		BasePath: info.basePath,
	}, nil
}

// RelativePath expresses a repository base path relative to another base
// path. An empty or "/" root leaves the path unchanged; matching the root
// exactly yields "/". The second return is false when the path does not
// live under the root. Repositories registered at a subtree of the
// Subversion root expect diff base directories relative to that subtree.
func RelativePath(path, root string) (string, bool) {
	pathParts := splitBasePath(path)
	rootParts := splitBasePath(root)

	if len(rootParts) == 0 {
		return path, true
	}
	if len(pathParts) < len(rootParts) {
		return "", false
	}
	for i, part := range rootParts {
		if pathParts[i] != part {
			return "", false
		}
	}
	if len(pathParts) == len(rootParts) {
		return "/", true
	}

	return "/" + strings.Join(pathParts[len(rootParts):], "/"), true
}

func splitBasePath(p string) []string {
	var parts []string
	for _, part := range strings.Split(p, "/") {
		if part != "" {
			parts = append(parts, part)
		}
	}

	return parts
}

// RepositoryUUID reports the repository's content identity from svn info.
func (c *Client) RepositoryUUID(ctx context.Context) (string, error) {
	info, err := c.wcInfo(ctx)
	if err != nil {
		return "", err
	}
	if info.uuid == "" {
		return "", fmt.Errorf("svn info reported no repository UUID")
	}

	return info.uuid, nil
}

// ParseRevisionSpec interprets revision arguments.
//
// No arguments selects uncommitted working copy changes. A single numeric
// revision N produces the range N-1..N. "N:M" and two separate arguments
// produce N..M. A single non-numeric argument naming an existing changelist
// selects that changelist's working copy changes.
func (c *Client) ParseRevisionSpec(ctx context.Context, args []string) (scm.RevisionSpec, error) {
	switch len(args) {
	case 0:
		return scm.RevisionSpec{Base: revisionBase, Tip: scm.TipWorkingCopy}, nil

	case 1:
		if base, tip, found := strings.Cut(args[0], ":"); found {
			return numericRange(base, tip)
		}

		if n, err := strconv.Atoi(args[0]); err == nil {
			if n < 1 {
				return scm.RevisionSpec{}, fmt.Errorf("%w: revision %d", errors.ErrInvalidRevisionSpec, n)
			}

			return scm.RevisionSpec{
				Base: strconv.Itoa(n - 1),
				Tip:  strconv.Itoa(n),
			}, nil
		}

		exists, err := c.changelistExists(ctx, args[0])
		if err != nil {
			return scm.RevisionSpec{}, err
		}
		if exists {
			return scm.RevisionSpec{
				Base: revisionBase,
				Tip:  changelistPrefix + args[0],
			}, nil
		}

		return scm.RevisionSpec{}, fmt.Errorf("%w: '%s'", errors.ErrInvalidRevisionSpec, args[0])

	case 2:
		return numericRange(args[0], args[1])

	default:
		return scm.RevisionSpec{}, errors.ErrTooManyRevisions
	}
}

func numericRange(base, tip string) (scm.RevisionSpec, error) {
	baseRev, err := strconv.Atoi(base)
	if err != nil {
		return scm.RevisionSpec{}, fmt.Errorf("%w: '%s'", errors.ErrInvalidRevisionSpec, base)
	}
	tipRev, err := strconv.Atoi(tip)
	if err != nil {
		return scm.RevisionSpec{}, fmt.Errorf("%w: '%s'", errors.ErrInvalidRevisionSpec, tip)
	}

	return scm.RevisionSpec{
		Base: strconv.Itoa(baseRev),
		Tip:  strconv.Itoa(tipRev),
	}, nil
}

// changelistRe matches changelist group headers in svn status output.
var changelistRe = regexp.MustCompile(`(?m)^--- Changelist '(.+)':$`)

// changelistExists checks svn status for a changelist with the given name.
func (c *Client) changelistExists(ctx context.Context, name string) (bool, error) {
	out, err := c.runner.Output(ctx, "svn", "status", "--non-interactive")
	if err != nil {
		return false, err
	}

	for _, m := range changelistRe.FindAllStringSubmatch(out, -1) {
		if m[1] == name {
			return true, nil
		}
	}

	return false, nil
}

// changelistFor extracts the changelist name from a revision spec tip, if
// the tip names one.
func changelistFor(rev scm.RevisionSpec) (string, bool) {
	if strings.HasPrefix(rev.Tip, changelistPrefix) {
		return strings.TrimPrefix(rev.Tip, changelistPrefix), true
	}

	return "", false
}

// isWorkingCopyRange reports whether the spec diffs uncommitted changes.
func isWorkingCopyRange(rev scm.RevisionSpec) bool {
	if rev.Tip == scm.TipWorkingCopy {
		return true
	}
	_, isChangelist := changelistFor(rev)

	return isChangelist
}

// CommitMessage extracts summary and description from the committed
// revisions in the range via svn log. Working copy ranges have no commit
// messages and return nil.
func (c *Client) CommitMessage(ctx context.Context, rev scm.RevisionSpec) (*scm.CommitMessage, error) {
	if isWorkingCopyRange(rev) {
		return nil, nil
	}

	base, err := strconv.Atoi(rev.Base)
	if err != nil {
		return nil, fmt.Errorf("%w: '%s'", errors.ErrInvalidRevisionSpec, rev.Base)
	}

	out, err := c.runner.Output(ctx, "svn", "log", "--non-interactive",
		"-r", fmt.Sprintf("%d:%s", base+1, rev.Tip))
	if err != nil {
		return nil, err
	}

	messages := parseLogMessages(out)
	if len(messages) == 0 {
		return nil, nil
	}

	summary, _, _ := strings.Cut(messages[0], "\n")

	return &scm.CommitMessage{
		Summary:     strings.TrimSpace(summary),
		Description: strings.TrimRight(messages[len(messages)-1], "\n"),
	}, nil
}

// logSeparator divides entries in svn log output.
const logSeparator = "------------------------------------------------------------------------"

// parseLogMessages splits svn log output into per-revision messages.
func parseLogMessages(out string) []string {
	var messages []string

	for _, entry := range strings.Split(out, logSeparator) {
		entry = strings.TrimLeft(entry, "\n")
		if entry == "" {
			continue
		}

		// Entry header line: "r2 | author | date | N line(s)", then a blank
		// line, then the message body.
		lines := strings.SplitN(entry, "\n", 3)
		if len(lines) < 3 || !strings.HasPrefix(lines[0], "r") {
			continue
		}

		messages = append(messages, lines[2])
	}

	return messages
}

// ApplyPatch applies a patch file to the working copy via svn patch.
func (c *Client) ApplyPatch(ctx context.Context, patchFile string, strip int) (*scm.PatchResult, error) {
	if strip < 1 {
		strip = 1
	}

	out, code, err := c.runner.OutputWithCode(ctx, "svn", "--non-interactive", "patch",
		fmt.Sprintf("--strip=%d", strip), patchFile)
	if err != nil {
		return nil, err
	}

	return &scm.PatchResult{
		Applied: code == 0,
		Output:  out,
	}, nil
}
