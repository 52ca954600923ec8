// Package scm defines the common surface of the local SCM tool clients.
// Concrete clients live in the svn and bzr subpackages; everything here is
// tool-agnostic.
package scm

import (
	"context"

	"github.com/reviewtools/postreview/internal/errors"
)

// TipWorkingCopy is the revision spec tip marker for uncommitted working
// copy changes.
const TipWorkingCopy = "--postreview-working-copy"

// RevisionSpec is a parsed base..tip revision range. Tip may be
// TipWorkingCopy (or a tool-specific marker) rather than a real revision.
type RevisionSpec struct {
	Base string
	Tip  string
}

// RepositoryInfo describes the repository behind the local checkout.
type RepositoryInfo struct {
	// Path is the canonical repository URL.
	Path string

	// MirrorPath is an alternate canonical address, when the tool exposes
	// one. Empty otherwise.
	MirrorPath string

	// BasePath is the checkout's location relative to the repository root.
	BasePath string
}

// DiffOptions controls diff generation.
type DiffOptions struct {
	// IncludeFiles restricts the diff to the given targets.
	IncludeFiles []string

	// ExcludePatterns removes matching files from the generated diff.
	// Patterns are relative to the working directory unless rooted, in
	// which case they are relative to the checkout root.
	ExcludePatterns []string
}

// CommitMessage is the summary and description extracted from the commits
// in a revision range.
type CommitMessage struct {
	Summary     string
	Description string
}

// PatchResult reports the outcome of applying a patch file.
type PatchResult struct {
	Applied bool
	Output  string
}

// Client is a thin wrapper over one SCM command line tool.
type Client interface {
	// Tool returns the SCM tool name as registered on the review server.
	Tool() string

	// Detect verifies the tool is installed and the working directory is
	// one of its checkouts. Returns ErrToolMissing or ErrNotACheckout.
	Detect(ctx context.Context) error

	// RepositoryInfo introspects the checkout's repository identity.
	RepositoryInfo(ctx context.Context) (*RepositoryInfo, error)

	// RepositoryUUID computes the repository's content identity. This
	// spawns the SCM tool, so callers defer it until actually needed.
	RepositoryUUID(ctx context.Context) (string, error)

	// ParseRevisionSpec interprets user-supplied revision arguments into a
	// base..tip range. No arguments means uncommitted working copy changes.
	ParseRevisionSpec(ctx context.Context, args []string) (RevisionSpec, error)

	// Diff produces the unified diff for the revision range.
	Diff(ctx context.Context, rev RevisionSpec, opts DiffOptions) (string, error)

	// CommitMessage extracts summary and description from the committed
	// revisions in the range. Returns nil for working copy ranges.
	CommitMessage(ctx context.Context, rev RevisionSpec) (*CommitMessage, error)

	// ApplyPatch applies a patch file to the working copy.
	ApplyPatch(ctx context.Context, patchFile string, strip int) (*PatchResult, error)
}

// Detector probes for the Client owning the current working directory.
type Detector func(ctx context.Context) (Client, error)

// Detect runs each detector in order and returns the first client whose
// Detect succeeds.
func Detect(ctx context.Context, detectors ...Detector) (Client, error) {
	for _, d := range detectors {
		client, err := d(ctx)
		if err == nil {
			return client, nil
		}
	}

	return nil, errors.ErrNotACheckout
}
