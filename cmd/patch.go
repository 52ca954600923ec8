package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/reviewtools/postreview/internal/cmd"
	cmdopts "github.com/reviewtools/postreview/internal/cmd/options"
	"github.com/reviewtools/postreview/internal/scm/bzr"
	"github.com/reviewtools/postreview/internal/scm/svn"
)

type PatchCmd struct {
	*cmd.BaseCmd
	Strip int
}

func NewPatchCmd(baseCmd *cmd.BaseCmd, opt ...cmdopts.CmdOption) (*cobra.Command, error) {
	if _, err := cmdopts.NewOptions(opt...); err != nil {
		return nil, err
	}

	c := &PatchCmd{
		BaseCmd: baseCmd,
	}

	cobraCommand := &cobra.Command{
		Use:   "patch <patch-file>",
		Short: "Applies a patch file to the working copy.",
		Long: `Applies a unified diff to the current checkout using the SCM tool's own
patch support, so property changes and file additions survive the round trip.`,
		RunE: c.run,
		Args: cobra.ExactArgs(1),
	}

	cobraCommand.Flags().IntVarP(
		&c.Strip,
		"strip",
		"p",
		0,
		"Optional, number of leading path components to strip from diff paths",
	)

	return cobraCommand, nil
}

func (c *PatchCmd) run(cobraCmd *cobra.Command, args []string) error {
	ctx := cobraCmd.Context()

	patchFile := args[0]
	if _, err := os.Stat(patchFile); err != nil {
		return fmt.Errorf("cannot read patch file '%s': %w", patchFile, err)
	}

	workingDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to determine working directory: %w", err)
	}

	client, err := c.DetectSCMClient(ctx, workingDir, []svn.Option{}, []bzr.Option{})
	if err != nil {
		return err
	}

	result, err := client.ApplyPatch(ctx, patchFile, c.Strip)
	if err != nil {
		return err
	}

	out := cobraCmd.OutOrStdout()
	if result.Output != "" {
		_, _ = fmt.Fprintln(out, result.Output)
	}
	if !result.Applied {
		return fmt.Errorf("patch did not apply cleanly")
	}

	_, _ = fmt.Fprintf(out, "Applied %s\n", patchFile)

	return nil
}
