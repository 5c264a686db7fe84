package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRootCommand_RegistersSubcommands(t *testing.T) {
	for _, name := range []string{"setup", "check", "audit", "tasks", "changes", "stats", "version", "reset", "debug"} {
		c, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err)
		require.NotNil(t, c)
		require.Equal(t, name, c.Name())
	}
}

func TestRootCommand_SetupAliasInit(t *testing.T) {
	c, _, err := rootCmd.Find([]string{"init"})
	require.NoError(t, err)
	require.Equal(t, "setup", c.Name())
}

func TestRootCommand_AuditSubcommands(t *testing.T) {
	for _, args := range [][]string{
		{"audit", "log"},
		{"audit", "reconcile"},
		{"audit", "validate"},
		{"audit", "stats"},
		{"audit", "stream"},
	} {
		c, _, err := rootCmd.Find(args)
		require.NoError(t, err)
		require.Equal(t, args[1], c.Name())
	}
}

func TestRootCommand_AuditAliases(t *testing.T) {
	for alias, want := range map[string]string{
		"lo": "log",
		"re": "reconcile",
		"va": "validate",
		"st": "stats",
		"sm": "stream",
	} {
		c, _, err := rootCmd.Find([]string{"audit", alias})
		require.NoError(t, err)
		require.Equal(t, want, c.Name())
	}
}
