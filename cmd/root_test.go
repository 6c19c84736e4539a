package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	cmds := rootCmd.Commands()

	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	expected := []string{"redistribute", "aggregate", "buffer", "filter", "layers"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "apportion", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)

	flag := rootCmd.PersistentFlags().Lookup("project")
	require.NotNil(t, flag, "root command should have --project flag")
}

func TestRedistributeCommand_Flags(t *testing.T) {
	for _, name := range []string{"target-layer", "fields", "report", "group", "output", "crs"} {
		assert.NotNil(t, redistributeCmd.Flags().Lookup(name), "redistribute should have --%s flag", name)
	}
}

func TestAggregateCommand_Flags(t *testing.T) {
	for _, name := range []string{"target-layer", "fields", "report", "input"} {
		assert.NotNil(t, aggregateCmd.Flags().Lookup(name), "aggregate should have --%s flag", name)
	}
	assert.Nil(t, aggregateCmd.Flags().Lookup("group"))
}

func TestBufferCommand_Flags(t *testing.T) {
	for _, name := range []string{"point-layer", "radius-miles", "segments", "output", "register"} {
		assert.NotNil(t, bufferCmd.Flags().Lookup(name), "buffer should have --%s flag", name)
	}
}

func TestFilterCommand_Flags(t *testing.T) {
	flag := filterCmd.Flags().Lookup("clear")
	require.NotNil(t, flag)
	assert.Equal(t, "false", flag.DefValue)
}

func TestSplitAndTrim(t *testing.T) {
	assert.Equal(t, []string{"a", "b c", "d"}, splitAndTrim(" a, b c ,,d "))
	assert.Empty(t, splitAndTrim(" , "))
}
