package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/reviewtools/postreview/internal/cmd"
	cmdopts "github.com/reviewtools/postreview/internal/cmd/options"
	"github.com/reviewtools/postreview/internal/config"
	"github.com/reviewtools/postreview/internal/flags"
	"github.com/reviewtools/postreview/internal/scm"
	"github.com/reviewtools/postreview/internal/scm/bzr"
	"github.com/reviewtools/postreview/internal/scm/svn"
)

type DiffCmd struct {
	*cmd.BaseCmd
	Exclude      []string
	IncludeFiles []string
	configLoader config.Loader
}

func NewDiffCmd(baseCmd *cmd.BaseCmd, opt ...cmdopts.CmdOption) (*cobra.Command, error) {
	opts, err := cmdopts.NewOptions(opt...)
	if err != nil {
		return nil, err
	}

	c := &DiffCmd{
		BaseCmd:      baseCmd,
		configLoader: opts.ConfigLoader,
	}

	cobraCommand := &cobra.Command{
		Use:   "diff [revisions...]",
		Short: "Prints the diff for a revision range to stdout.",
		Long: `Detects the SCM tool owning the current directory and prints the diff for
the given revision range. With no revisions, uncommitted working copy changes
are diffed.`,
		RunE: c.run,
	}

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

func (c *DiffCmd) run(cobraCmd *cobra.Command, args []string) error {
	ctx := cobraCmd.Context()

	cfg, err := c.configLoader.Load(flags.ConfigFile)
	if err != nil {
		return err
	}

	workingDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to determine working directory: %w", err)
	}

	client, err := c.DetectSCMClient(ctx, workingDir,
		[]svn.Option{svn.WithShowCopiesAsAdds(cfg.Diff.ShowCopiesAsAdds)},
		[]bzr.Option{})
	if err != nil {
		return err
	}

	revisions, err := client.ParseRevisionSpec(ctx, args)
	if err != nil {
		return err
	}

	diff, err := client.Diff(ctx, revisions, scm.DiffOptions{
		IncludeFiles:    c.IncludeFiles,
		ExcludePatterns: append(append([]string{}, cfg.Diff.Exclude...), c.Exclude...),
	})
	if err != nil {
		return err
	}

	_, err = fmt.Fprint(cobraCmd.OutOrStdout(), diff)

	return err
}
