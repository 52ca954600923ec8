package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/reviewtools/postreview/internal/cmd"
	cmdopts "github.com/reviewtools/postreview/internal/cmd/options"
	"github.com/reviewtools/postreview/internal/config"
	"github.com/reviewtools/postreview/internal/flags"
)

type InitCmd struct {
	*cmd.BaseCmd
	cfgInitializer config.Initializer
}

func NewInitCmd(baseCmd *cmd.BaseCmd, opt ...cmdopts.CmdOption) (*cobra.Command, error) {
	opts, err := cmdopts.NewOptions(opt...)
	if err != nil {
		return nil, err
	}

	c := &InitCmd{
		BaseCmd:        baseCmd,
		cfgInitializer: opts.ConfigInitializer,
	}

	cobraCommand := &cobra.Command{
		Use:   "init",
		Short: "Initializes the current directory as a postreview project",
		Long: `Creates a skeleton configuration file (` + flags.DefaultConfigFile + `) in the
current directory. Edit it to point at your review server.`,
		RunE: c.run,
	}

	return cobraCommand, nil
}

func (c *InitCmd) run(cobraCmd *cobra.Command, _ []string) error {
	path := flags.ConfigFile

	if err := c.cfgInitializer.Init(path); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(cobraCmd.OutOrStdout(), "Created %s\n", path)

	return nil
}
