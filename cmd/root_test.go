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

	expected := []string{"correct", "batch", "feedback", "analyze", "stats", "corrections", "import", "serve", "migrate"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "docfix", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestCorrectCommand_Flags(t *testing.T) {
	flag := correctCmd.Flags().Lookup("kind")
	require.NotNil(t, flag, "correct command should have --kind flag")
}

func TestBatchCommand_Flags(t *testing.T) {
	for _, flagName := range []string{"manifest", "template", "concurrency"} {
		flag := batchCmd.Flags().Lookup(flagName)
		assert.NotNil(t, flag, "batch command should have --%s flag", flagName)
	}
}

func TestFeedbackCommand_Flags(t *testing.T) {
	for _, flagName := range []string{"original", "corrected", "kind", "document", "add-to-store", "rejected"} {
		flag := feedbackCmd.Flags().Lookup(flagName)
		assert.NotNil(t, flag, "feedback command should have --%s flag", flagName)
	}
}

func TestAnalyzeCommand_Flags(t *testing.T) {
	flag := analyzeCmd.Flags().Lookup("apply")
	require.NotNil(t, flag, "analyze command should have --apply flag")
	assert.Equal(t, "false", flag.DefValue)

	window := analyzeCmd.Flags().Lookup("window")
	require.NotNil(t, window, "analyze command should have --window flag")
}

func TestCorrectionsCommand_Flags(t *testing.T) {
	flag := correctionsCmd.Flags().Lookup("format")
	require.NotNil(t, flag, "corrections command should have --format flag")
	assert.Equal(t, "table", flag.DefValue)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}
