package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/reviewtools/postreview/internal/api"
	"github.com/reviewtools/postreview/internal/cmd"
	cmdopts "github.com/reviewtools/postreview/internal/cmd/options"
	"github.com/reviewtools/postreview/internal/cmd/output"
	"github.com/reviewtools/postreview/internal/config"
	"github.com/reviewtools/postreview/internal/flags"
	"github.com/reviewtools/postreview/internal/printer"
	"github.com/reviewtools/postreview/internal/repository"
	"github.com/reviewtools/postreview/internal/scm/bzr"
	"github.com/reviewtools/postreview/internal/scm/svn"
)

type RepositoriesCmd struct {
	*cmd.BaseCmd
	Tool              string
	Path              string
	Match             bool
	Format            cmd.OutputFormat
	configLoader      config.Loader
	repositoryPrinter *printer.RepositoryPrinter
}

func NewRepositoriesCmd(baseCmd *cmd.BaseCmd, opt ...cmdopts.CmdOption) (*cobra.Command, error) {
	opts, err := cmdopts.NewOptions(opt...)
	if err != nil {
		return nil, err
	}

	c := &RepositoriesCmd{
		BaseCmd:           baseCmd,
		Format:            cmd.FormatText,
		configLoader:      opts.ConfigLoader,
		repositoryPrinter: opts.RepositoryPrinter,
	}

	cobraCommand := &cobra.Command{
		Use:   "repositories",
		Short: "Lists repositories registered on the review server.",
		Long: `Lists the repositories registered on the review server, across all pages
of results. With --match, instead resolves the current checkout against the
registry and prints the single matching repository.`,
		RunE: c.run,
	}

	cobraCommand.Flags().StringVar(
		&c.Tool,
		"tool",
		"",
		"Optional, restrict the listing to repositories of the given SCM tool",
	)

	cobraCommand.Flags().StringVar(
		&c.Path,
		"path",
		"",
		"Optional, ask the server to filter on repository path",
	)

	cobraCommand.Flags().BoolVar(
		&c.Match,
		"match",
		false,
		"Optional, resolve the current checkout against the registry",
	)

	allowed := cmd.AllowedOutputFormats()
	cobraCommand.Flags().Var(
		&c.Format,
		"format",
		fmt.Sprintf("Specify the output format (one of: %s)", allowed.String()),
	)

	return cobraCommand, nil
}

func (c *RepositoriesCmd) run(cobraCmd *cobra.Command, args []string) error {
	ctx := cobraCmd.Context()

	handler, err := cmd.FormatHandler(cobraCmd.OutOrStdout(), c.Format, c.repositoryPrinter)
	if err != nil {
		return err
	}

	cfg, err := c.configLoader.Load(flags.ConfigFile)
	if err != nil {
		return handler.HandleError(err)
	}

	serverURL := flags.ServerURL
	if serverURL == "" {
		serverURL = cfg.Server.URL
	}

	apiClient, err := c.CreateAPIClient(serverURL, cfg.Server.DisableCache)
	if err != nil {
		return handler.HandleError(err)
	}

	if c.Match {
		return c.runMatch(cobraCmd, cfg, apiClient, handler)
	}

	page, err := apiClient.ListRepositories(ctx, api.ListFilters{
		Tool: c.Tool,
		Path: c.Path,
	})
	if err != nil {
		return handler.HandleError(err)
	}

	var repos []api.Repository
	for page != nil {
		repos = append(repos, page.Repositories...)

		page, err = page.Next(ctx)
		if err != nil {
			return handler.HandleError(err)
		}
	}

	return handler.HandleResults(repos...)
}

// runMatch detects the local checkout and resolves it to a registry record.
func (c *RepositoriesCmd) runMatch(
	cobraCmd *cobra.Command,
	cfg *config.Config,
	apiClient *api.Client,
	handler output.Handler[api.Repository],
) error {
	ctx := cobraCmd.Context()

	workingDir, err := os.Getwd()
	if err != nil {
		return handler.HandleError(fmt.Errorf("failed to determine working directory: %w", err))
	}

	scmClient, err := c.DetectSCMClient(ctx, workingDir, []svn.Option{}, []bzr.Option{})
	if err != nil {
		return handler.HandleError(err)
	}

	info, err := scmClient.RepositoryInfo(ctx)
	if err != nil {
		return handler.HandleError(err)
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
		return handler.HandleError(err)
	}
	if repo == nil {
		return handler.HandleError(fmt.Errorf("no repository on the server matches '%s'", cand.Path))
	}

	return handler.HandleResult(*repo)
}
