package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	cmds := rootCmd.Commands()

	// Collect subcommand names.
	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	// Verify expected subcommands are registered.
	expected := []string{"check", "bulk", "cache", "sources", "serve"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "sanction-watch", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestCheckCommand_Flags(t *testing.T) {
	flag := checkCmd.Flags().Lookup("type")
	require.NotNil(t, flag, "check command should have --type flag")
	assert.Equal(t, "auto", flag.DefValue)
	assert.NoError(t, checkCmd.Args(checkCmd, []string{"OCEAN STAR"}))
	assert.Error(t, checkCmd.Args(checkCmd, nil))
	assert.Nil(t, checkCmd.Flags().Lookup("output"), "the result goes to stdout only")
}

func TestCacheCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range cacheCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"status", "refresh", "clear"} {
		assert.True(t, names[name], "expected cache subcommand %q not found", name)
	}

	flag := cacheRefreshCmd.Flags().Lookup("force")
	require.NotNil(t, flag)
	assert.Equal(t, "false", flag.DefValue)
}

func TestSourcesCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range sourcesCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["list"])
	assert.True(t, names["test"])
}
