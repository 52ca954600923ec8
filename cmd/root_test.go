package cmd

import (
	"bytes"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRootCmd(t *testing.T) {
	rootCmd, err := NewRootCmd(hclog.NewNullLogger())
	require.NoError(t, err)
	require.NotNil(t, rootCmd)

	var names []string
	for _, sub := range rootCmd.Commands() {
		names = append(names, sub.Name())
	}

	for _, want := range []string{"init", "diff", "post", "patch", "repositories"} {
		assert.Contains(t, names, want)
	}

	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("config-file"))
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("server"))
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("log-level"))
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("log-path"))
}

func TestRootCmd_Help(t *testing.T) {
	rootCmd, err := NewRootCmd(hclog.NewNullLogger())
	require.NoError(t, err)

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"--help"})

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, buf.String(), "postreview")
	assert.Contains(t, buf.String(), "repositories")
}
