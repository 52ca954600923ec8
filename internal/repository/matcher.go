// Package repository reconciles a local checkout against the review
// server's repository registry. Matching runs three tiers in strict
// priority order: exact path, mirror path, then repository UUID. The
// cheaper URL tiers are tried first because the UUID is computed by
// spawning the local SCM tool.
package repository

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/hashicorp/go-hclog"

	"github.com/reviewtools/postreview/internal/api"
	"github.com/reviewtools/postreview/internal/errors"
)

// UUIDFunc lazily computes the content identity of the local repository.
// It is invoked at most once per Find call, and only when no URL tier
// produced a match.
type UUIDFunc func(ctx context.Context) (string, error)

// Candidate identifies the local checkout being matched.
type Candidate struct {
	// Path is the checkout's canonical repository URL. Required.
	Path string

	// MirrorPath is an alternate canonical address for the same repository,
	// such as an SSH form of Path. Optional.
	MirrorPath string

	// UUID computes the repository's content identity on demand. Optional;
	// without it matching stops after the URL tiers.
	UUID UUIDFunc
}

// Registry is the slice of the review server API the matcher consumes.
// *api.Client satisfies it.
type Registry interface {
	ListRepositories(ctx context.Context, filters api.ListFilters) (*api.RepositoryPage, error)
	ResolveInfo(ctx context.Context, repo api.Repository) (*api.RepositoryInfo, error)
}

// Matcher resolves a Candidate to at most one registry record.
type Matcher struct {
	registry Registry
	tool     string
	logger   hclog.Logger
}

// NewMatcher creates a Matcher scoped to repositories of the given tool
// (the server-side SCM tool name, e.g. "Subversion" or "Bazaar").
func NewMatcher(logger hclog.Logger, registry Registry, tool string) *Matcher {
	return &Matcher{
		registry: registry,
		tool:     tool,
		logger:   logger.Named("matcher"),
	}
}

// Find returns the unique registry record matching the candidate, or nil
// when no record matches. Registry communication failures propagate;
// "no match" is a valid terminal outcome, not an error.
func (m *Matcher) Find(ctx context.Context, cand Candidate) (*api.Repository, error) {
	if cand.Path == "" {
		return nil, fmt.Errorf("candidate path is required")
	}

	// Tier 1: exact path.
	repo, err := m.findByPath(ctx, cand, cand.Path)
	if err != nil {
		return nil, err
	}
	if repo != nil {
		m.logger.Debug("Matched repository by path", "id", repo.ID, "path", cand.Path)

		return repo, nil
	}

	// Tier 2: mirror path.
	if cand.MirrorPath != "" {
		repo, err = m.findByPath(ctx, cand, cand.MirrorPath)
		if err != nil {
			return nil, err
		}
		if repo != nil {
			m.logger.Debug("Matched repository by mirror path", "id", repo.ID, "mirror_path", cand.MirrorPath)

			return repo, nil
		}
	}

	// Tier 3: content UUID, computed only now that the cheap tiers failed.
	if cand.UUID != nil {
		repo, err = m.findByUUID(ctx, cand)
		if err != nil {
			return nil, err
		}
		if repo != nil {
			m.logger.Debug("Matched repository by UUID", "id", repo.ID)

			return repo, nil
		}
	}

	m.logger.Debug("No matching repository", "path", cand.Path)

	return nil, nil
}

// findByPath lists records with a server-side path filter and verifies each
// result client-side. The filter is a narrowing hint only: servers may
// over-return, and older servers ignore the filter entirely, so cardinality
// of the response proves nothing.
func (m *Matcher) findByPath(ctx context.Context, cand Candidate, path string) (*api.Repository, error) {
	page, err := m.registry.ListRepositories(ctx, api.ListFilters{
		Tool: m.tool,
		Path: path,
	})
	if err != nil {
		return nil, err
	}

	for page != nil {
		for i := range page.Repositories {
			if m.verify(page.Repositories[i], cand) {
				return &page.Repositories[i], nil
			}
		}

		page, err = page.Next(ctx)
		if err != nil {
			return nil, err
		}
	}

	return nil, nil
}

// verify confirms a record client-side: either of the record's addresses
// must equal either of the candidate's. First verified record in page
// order wins.
func (m *Matcher) verify(repo api.Repository, cand Candidate) bool {
	for _, recordPath := range []string{repo.Path, repo.MirrorPath} {
		if recordPath == "" {
			continue
		}
		if recordPath == cand.Path {
			return true
		}
		if cand.MirrorPath != "" && recordPath == cand.MirrorPath {
			return true
		}
	}

	return false
}

// findByUUID scans the unfiltered tool-scoped listing page by page,
// resolving each record's info sub-resource until one reports the
// candidate's UUID. Records with missing or malformed info links are
// skipped; transport failures abort the scan.
func (m *Matcher) findByUUID(ctx context.Context, cand Candidate) (*api.Repository, error) {
	uuid, err := cand.UUID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to determine local repository UUID: %w", err)
	}
	if uuid == "" {
		return nil, nil
	}

	page, err := m.registry.ListRepositories(ctx, api.ListFilters{Tool: m.tool})
	if err != nil {
		return nil, err
	}

	for page != nil {
		for i := range page.Repositories {
			repo := page.Repositories[i]

			info, err := m.registry.ResolveInfo(ctx, repo)
			if err != nil {
				if stderrors.Is(err, errors.ErrMalformedRecord) {
					m.logger.Debug("Skipping repository without info link", "id", repo.ID)
					continue
				}

				return nil, err
			}

			if info.UUID == uuid {
				return &page.Repositories[i], nil
			}
		}

		page, err = page.Next(ctx)
		if err != nil {
			return nil, err
		}
	}

	return nil, nil
}
