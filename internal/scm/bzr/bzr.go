// Package bzr implements the Bazaar SCM client. Both the original bzr tool
// and its Breezy successor (brz) are supported; brz is preferred when both
// are installed.
package bzr

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/reviewtools/postreview/internal/errors"
	"github.com/reviewtools/postreview/internal/execx"
	"github.com/reviewtools/postreview/internal/scm"
)

// toolName is the SCM tool name as registered on the review server.
const toolName = "Bazaar"

// Client wraps the bzr/brz command line tool.
type Client struct {
	runner     execx.Runner
	logger     hclog.Logger
	workingDir string

	// bzr is the resolved tool binary name ("brz" or "bzr").
	bzr string

	// breezy is true when the resolved tool is Breezy rather than Bazaar.
	breezy bool

	// parentBranch overrides the detected parent branch for revision
	// ranges. Optional.
	parentBranch string

	info *branchInfo
}

// Option configures a Client.
type Option func(*Client) error

// WithWorkingDir sets the directory commands run from.
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

// WithParentBranch overrides the parent branch used as the default diff base.
func WithParentBranch(branch string) Option {
	return func(c *Client) error {
		c.parentBranch = strings.TrimSpace(branch)
		return nil
	}
}

// New creates a Bazaar client executing through the given runner.
func New(logger hclog.Logger, runner execx.Runner, opt ...Option) (*Client, error) {
	c := &Client{
		runner:     runner,
		logger:     logger.Named("scm.bzr"),
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

// Detector returns an scm.Detector probing for a Bazaar branch.
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

// Detect resolves the tool binary and verifies the working directory is a
// branch. brz is checked before bzr; a bzr binary whose version banner
// reads "Breezy" is treated as Breezy.
func (c *Client) Detect(ctx context.Context) error {
	if err := c.resolveTool(ctx); err != nil {
		return err
	}

	if _, err := c.branchInfo(ctx); err != nil {
		return fmt.Errorf("%w: %w", errors.ErrNotACheckout, err)
	}

	return nil
}

func (c *Client) resolveTool(ctx context.Context) error {
	if c.bzr != "" {
		return nil
	}

	if _, err := c.runner.Output(ctx, "brz", "help"); err == nil {
		c.bzr = "brz"
		c.breezy = true

		return nil
	}

	if _, err := c.runner.Output(ctx, "bzr", "help"); err == nil {
		c.bzr = "bzr"

		if out, err := c.runner.Output(ctx, "bzr", "--version"); err == nil {
			c.breezy = strings.HasPrefix(strings.TrimSpace(out), "Breezy")
		}

		return nil
	}

	return fmt.Errorf("%w: one of brz, bzr", errors.ErrToolMissing)
}

// branchInfo is the parsed output of bzr info.
type branchInfo struct {
	branchRoot   string
	parentBranch string
}

var (
	branchRootRe   = regexp.MustCompile(`(?m)^\s*(?:branch root|checkout root|repository checkout root): (.+)$`)
	parentBranchRe = regexp.MustCompile(`(?m)^\s*(?:parent branch|checkout of branch|submit branch): (.+)$`)
)

func (c *Client) branchInfo(ctx context.Context) (*branchInfo, error) {
	if c.info != nil {
		return c.info, nil
	}

	out, err := c.runner.Output(ctx, c.bzr, "info")
	if err != nil {
		return nil, err
	}

	info := &branchInfo{}
	if m := branchRootRe.FindStringSubmatch(out); m != nil {
		info.branchRoot = strings.TrimSpace(m[1])
	}
	if m := parentBranchRe.FindStringSubmatch(out); m != nil {
		info.parentBranch = strings.TrimSpace(m[1])
	}

	if info.branchRoot == "" {
		return nil, fmt.Errorf("bzr info reported no branch root")
	}

	c.info = info

	return info, nil
}

// RepositoryInfo introspects the branch. The branch root acts as the
// repository path; branches are always rooted, so the base path is "/".
func (c *Client) RepositoryInfo(ctx context.Context) (*scm.RepositoryInfo, error) {
	info, err := c.branchInfo(ctx)
	if err != nil {
		return nil, err
	}

	return &scm.RepositoryInfo{
		Path:     info.branchRoot,
		BasePath: "/",
	}, nil
}

// RepositoryUUID returns empty: Bazaar exposes no repository-wide content
// identity, so UUID matching is not available for this tool.
func (c *Client) RepositoryUUID(ctx context.Context) (string, error) {
	return "", nil
}

// revid resolves a bzr revision spec to a stable revision id usable in
// -r arguments regardless of per-branch revnos.
func (c *Client) revid(ctx context.Context, spec string) (string, error) {
	out, err := c.runner.Output(ctx, c.bzr, "revision-info", "-r", spec)
	if err != nil {
		return "", fmt.Errorf("%w: '%s'", errors.ErrInvalidRevisionSpec, spec)
	}

	// Output is "<revno> <revid>".
	fields := strings.Fields(out)
	if len(fields) < 2 {
		return "", fmt.Errorf("%w: '%s'", errors.ErrInvalidRevisionSpec, spec)
	}

	return "revid:" + fields[len(fields)-1], nil
}

// defaultBase picks the base revision for a no-argument diff: the common
// ancestor with the parent branch when one exists, otherwise the last
// committed revision.
func (c *Client) defaultBase(ctx context.Context) (string, error) {
	parent := c.parentBranch
	if parent == "" {
		if info, err := c.branchInfo(ctx); err == nil {
			parent = info.parentBranch
		}
	}

	if parent != "" {
		if base, err := c.revid(ctx, "ancestor:"+parent); err == nil {
			return base, nil
		}

		c.logger.Debug("Failed to resolve ancestor of parent branch, using last commit", "parent", parent)
	}

	return c.revid(ctx, "last:1")
}

// ParseRevisionSpec interprets revision arguments.
//
// No arguments selects changes since the parent branch ancestor (or the
// last commit) up to the working tree. One argument selects that revision
// against its predecessor; "A..B" and two arguments select an explicit
// range. All revisions are pinned to revision ids.
func (c *Client) ParseRevisionSpec(ctx context.Context, args []string) (scm.RevisionSpec, error) {
	switch len(args) {
	case 0:
		base, err := c.defaultBase(ctx)
		if err != nil {
			return scm.RevisionSpec{}, err
		}

		return scm.RevisionSpec{Base: base, Tip: scm.TipWorkingCopy}, nil

	case 1:
		if baseSpec, tipSpec, found := strings.Cut(args[0], ".."); found {
			return c.pinnedRange(ctx, baseSpec, tipSpec)
		}

		return c.pinnedRange(ctx, "before:"+args[0], args[0])

	case 2:
		return c.pinnedRange(ctx, args[0], args[1])

	default:
		return scm.RevisionSpec{}, errors.ErrTooManyRevisions
	}
}

func (c *Client) pinnedRange(ctx context.Context, baseSpec, tipSpec string) (scm.RevisionSpec, error) {
	base, err := c.revid(ctx, baseSpec)
	if err != nil {
		return scm.RevisionSpec{}, err
	}
	tip, err := c.revid(ctx, tipSpec)
	if err != nil {
		return scm.RevisionSpec{}, err
	}

	return scm.RevisionSpec{Base: base, Tip: tip}, nil
}

// CommitMessage guesses summary and description from the log of the
// revision range: the newest commit's first line becomes the summary, the
// concatenated messages the description.
func (c *Client) CommitMessage(ctx context.Context, rev scm.RevisionSpec) (*scm.CommitMessage, error) {
	if rev.Tip == scm.TipWorkingCopy {
		return nil, nil
	}

	out, err := c.runner.Output(ctx, c.bzr, "log",
		"-r", fmt.Sprintf("%s..%s", rev.Base, rev.Tip))
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
		Description: strings.TrimRight(strings.Join(messages, "\n"), "\n"),
	}, nil
}

// parseLogMessages extracts the indented message blocks from bzr log
// output, newest first.
func parseLogMessages(out string) []string {
	var messages []string
	var current []string
	inMessage := false

	flush := func() {
		if len(current) > 0 {
			messages = append(messages, strings.Join(current, "\n"))
			current = nil
		}
		inMessage = false
	}

	for _, line := range strings.Split(out, "\n") {
		switch {
		case strings.HasPrefix(line, "message:"):
			flush()
			inMessage = true
		case inMessage && strings.HasPrefix(line, "  "):
			current = append(current, strings.TrimPrefix(line, "  "))
		case inMessage && strings.TrimSpace(line) == "":
			// blank lines inside a message body are preserved
			current = append(current, "")
		default:
			flush()
		}
	}
	flush()

	return messages
}

// ApplyPatch applies a patch file to the working tree. Bazaar has no
// native patch command, so the standalone patch tool is used.
func (c *Client) ApplyPatch(ctx context.Context, patchFile string, strip int) (*scm.PatchResult, error) {
	if strip < 0 {
		strip = 0
	}

	out, code, err := c.runner.OutputWithCode(ctx, "patch",
		fmt.Sprintf("-p%d", strip), "-i", patchFile)
	if err != nil {
		return nil, err
	}

	return &scm.PatchResult{
		Applied: code == 0,
		Output:  out,
	}, nil
}
