package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/reviewtools/postreview/internal/api"
	"github.com/reviewtools/postreview/internal/cmd"
	cmdopts "github.com/reviewtools/postreview/internal/cmd/options"
	"github.com/reviewtools/postreview/internal/config"
	"github.com/reviewtools/postreview/internal/flags"
	"github.com/reviewtools/postreview/internal/repository"
	"github.com/reviewtools/postreview/internal/scm"
	"github.com/reviewtools/postreview/internal/scm/bzr"
	"github.com/reviewtools/postreview/internal/scm/svn"
)

type PostCmd struct {
	*cmd.BaseCmd
	Repository   string
	Exclude      []string
	IncludeFiles []string
	configLoader config.Loader
}

func NewPostCmd(baseCmd *cmd.BaseCmd, opt ...cmdopts.CmdOption) (*cobra.Command, error) {
	opts, err := cmdopts.NewOptions(opt...)
	if err != nil {
		return nil, err
	}

	c := &PostCmd{
		BaseCmd:      baseCmd,
		configLoader: opts.ConfigLoader,
	}

	cobraCommand := &cobra.Command{
		Use:   "post [revisions...]",
		Short: "Posts a change to the review server.",
		Long: `Generates the diff for the given revision range, resolves the checkout to
a repository registered on the review server, and creates a draft review
request carrying the diff.`,
		RunE: c.run,
	}

	cobraCommand.Flags().StringVar(
		&c.Repository,
		"repository",
		"",
		"Optional, name of the server-side repository to post to (skips matching)",
	)

	cobraCommand.Flags().StringArrayVarP(
		&c.Exclude,
		"exclude",
		"X",
		nil,
		"Optional, exclude files matching the pattern from the diff (can be repeated)",
	)

	cobraCommand.Flags().StringArrayVarP(
		&c.IncludeFiles,
		"include",
		"I",
		nil,
		"Optional, restrict the diff to the given files (can be repeated)",
	)

	return cobraCommand, nil
}

func (c *PostCmd) run(cobraCmd *cobra.Command, args []string) error {
	ctx := cobraCmd.Context()

	cfg, err := c.configLoader.Load(flags.ConfigFile)
	if err != nil {
		return err
	}

	workingDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to determine working directory: %w", err)
	}

	scmClient, err := c.DetectSCMClient(ctx, workingDir,
		[]svn.Option{svn.WithShowCopiesAsAdds(cfg.Diff.ShowCopiesAsAdds)},
		[]bzr.Option{})
	if err != nil {
		return err
	}

	revisions, err := scmClient.ParseRevisionSpec(ctx, args)
	if err != nil {
		return err
	}

	diff, err := scmClient.Diff(ctx, revisions, scm.DiffOptions{
		IncludeFiles:    c.IncludeFiles,
		ExcludePatterns: append(append([]string{}, cfg.Diff.Exclude...), c.Exclude...),
	})
	if err != nil {
		return err
	}
	if diff == "" {
		return fmt.Errorf("no changes found in the given revision range")
	}

	serverURL := flags.ServerURL
	if serverURL == "" {
		serverURL = cfg.Server.URL
	}

	apiClient, err := c.CreateAPIClient(serverURL, cfg.Server.DisableCache)
	if err != nil {
		return err
	}

	info, err := scmClient.RepositoryInfo(ctx)
	if err != nil {
		return err
	}

	repo, err := c.resolveRepository(ctx, cfg, apiClient, scmClient, info)
	if err != nil {
		return err
	}

	reviewRequest, err := apiClient.CreateReviewRequest(ctx, repo.ID)
	if err != nil {
		return err
	}

	basedir := c.uploadBaseDir(ctx, apiClient, repo, info.BasePath)

	if err := apiClient.UploadDiff(ctx, reviewRequest, []byte(diff), basedir); err != nil {
		return err
	}

	out := cobraCmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Review request #%d posted.\n", reviewRequest.ID)
	if reviewRequest.AbsoluteURL != "" {
		_, _ = fmt.Fprintf(out, "%s\n", reviewRequest.AbsoluteURL)
	}

	return nil
}

// uploadBaseDir expresses the checkout's base path relative to the matched
// repository's own base. A repository registered at a subtree of the
// Subversion root expects base directories relative to that subtree. When
// the server exposes no usable info resource the local base path is kept.
func (c *PostCmd) uploadBaseDir(ctx context.Context, apiClient *api.Client, repo *api.Repository, localBase string) string {
	ri, err := apiClient.ResolveInfo(ctx, *repo)
	if err != nil {
		c.Logger().Debug("Could not resolve repository info, keeping local base path", "repository", repo.Name, "error", err)
		return localBase
	}

	rel, ok := repositoryBaseDir(ri, localBase)
	if !ok {
		c.Logger().Debug("Checkout base path is outside the repository base, keeping local base path", "basePath", localBase)
		return localBase
	}

	return rel
}

// repositoryBaseDir computes the base directory for a diff upload from the
// repository's resolved info resource. The repository URL relative to the
// Subversion root is the server-side base; the local base path is then
// expressed relative to it.
func repositoryBaseDir(ri *api.RepositoryInfo, localBase string) (string, bool) {
	serverBase := "/"
	if ri.RootURL != "" && ri.URL != ri.RootURL {
		sub, found := strings.CutPrefix(ri.URL, strings.TrimSuffix(ri.RootURL, "/"))
		if !found {
			return "", false
		}
		serverBase = sub
	}

	return svn.RelativePath(localBase, serverBase)
}

// resolveRepository picks the server-side repository to post to. An explicit
// name (flag or config) is looked up directly; otherwise the checkout is
// matched against the registry.
func (c *PostCmd) resolveRepository(
	ctx context.Context,
	cfg *config.Config,
	apiClient *api.Client,
	scmClient scm.Client,
	info *scm.RepositoryInfo,
) (*api.Repository, error) {
	name := c.Repository
	if name == "" {
		name = cfg.Repository.Name
	}

	if name != "" {
		return c.findByName(ctx, apiClient, scmClient.Tool(), name)
	}

	cand := repository.Candidate{
		Path:       info.Path,
		MirrorPath: info.MirrorPath,
		UUID:       scmClient.RepositoryUUID,
	}
	if cfg.Repository.URL != "" {
		cand.Path = cfg.Repository.URL
	}
	if cfg.Repository.MirrorURL != "" {
		cand.MirrorPath = cfg.Repository.MirrorURL
	}

	matcher := repository.NewMatcher(c.Logger(), apiClient, scmClient.Tool())

	repo, err := matcher.Find(ctx, cand)
	if err != nil {
		return nil, err
	}
	if repo == nil {
		return nil, fmt.Errorf(
			"no repository on the server matches '%s', use --repository or set repository.name",
			cand.Path,
		)
	}

	return repo, nil
}

// findByName scans the tool-scoped listing for a repository with the given
// display name.
func (c *PostCmd) findByName(ctx context.Context, apiClient *api.Client, tool string, name string) (*api.Repository, error) {
	page, err := apiClient.ListRepositories(ctx, api.ListFilters{Tool: tool})
	if err != nil {
		return nil, err
	}

	for page != nil {
		for i := range page.Repositories {
			if page.Repositories[i].Name == name {
				return &page.Repositories[i], nil
			}
		}

		page, err = page.Next(ctx)
		if err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("repository '%s' not found on the server", name)
}
