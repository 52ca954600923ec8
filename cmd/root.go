package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/reviewtools/postreview/internal/cmd"
	cmdopts "github.com/reviewtools/postreview/internal/cmd/options"
	"github.com/reviewtools/postreview/internal/flags"
)

var version = "dev" // Set at build time using -ldflags

type RootCmd struct {
	*cmd.BaseCmd
}

func Execute() error {
	logger, err := configureLogger()
	if err != nil {
		return fmt.Errorf("error configuring logger: %w", err)
	}

	rootCmd, err := NewRootCmd(logger)
	if err != nil {
		return err
	}

	return rootCmd.Execute()
}

func NewRootCmd(logger hclog.Logger) (*cobra.Command, error) {
	c := &RootCmd{
		BaseCmd: &cmd.BaseCmd{},
	}
	c.SetLogger(logger)

	rootCmd := &cobra.Command{
		Use:          "postreview <command> [args]",
		Short:        "'postreview' posts diffs from local checkouts to a review server.",
		Long:         c.longDescription(),
		SilenceUsage: true,
		Version:      version,
	}

	// Global flags
	flags.InitFlags(rootCmd.PersistentFlags())

	subCommands := []func(baseCmd *cmd.BaseCmd, opt ...cmdopts.CmdOption) (*cobra.Command, error){
		NewInitCmd,
		NewDiffCmd,
		NewPostCmd,
		NewPatchCmd,
		NewRepositoriesCmd,
	}
	for _, newCmd := range subCommands {
		sub, err := newCmd(c.BaseCmd)
		if err != nil {
			return nil, err
		}
		rootCmd.AddCommand(sub)
	}

	return rootCmd, nil
}

func (c *RootCmd) longDescription() string {
	return `The 'postreview' CLI inspects a local Bazaar/Breezy or Subversion checkout,
generates a diff for a revision range, matches the checkout against the review
server's repository registry, and posts the diff for review.`
}

func configureLogger() (hclog.Logger, error) {
	logPath := strings.TrimSpace(os.Getenv(flags.EnvVarLogPath))

	// If POSTREVIEW_LOG_PATH is not set, don't log anywhere.
	logOutput := io.Discard

	if logPath != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file (%s): %w", logPath, err)
		}
		logOutput = f
	}

	logger := hclog.New(&hclog.LoggerOptions{
		Name:   "postreview",
		Level:  hclog.LevelFromString(getLogLevel()),
		Output: logOutput,
	})

	return logger, nil
}

func getLogLevel() string {
	lvl := strings.ToLower(os.Getenv(flags.EnvVarLogLevel))
	switch lvl {
	case "trace", "debug", "info", "warn", "error", "off":
		return lvl
	default:
		return "info"
	}
}
