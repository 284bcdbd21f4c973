package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runCompletion executes 'btpmon completion <shell>' through the real root command.
func runCompletion(t *testing.T, shell string) string {
	t.Helper()

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"completion", shell})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())
	return buf.String()
}

func TestCompletion(t *testing.T) {
	tests := []struct {
		shell    string
		contains []string
	}{
		{
			shell:    "bash",
			contains: []string{"# bash completion for btpmon", "__btpmon_debug", "__completeNoDesc"},
		},
		{
			shell:    "zsh",
			contains: []string{"#compdef btpmon", "_btpmon()"},
		},
		{
			shell:    "fish",
			contains: []string{"fish completion for btpmon", "complete -c btpmon"},
		},
		{
			shell:    "powershell",
			contains: []string{"Register-ArgumentCompleter"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.shell, func(t *testing.T) {
			out := runCompletion(t, tt.shell)
			for _, s := range tt.contains {
				assert.Contains(t, out, s)
			}
		})
	}
}

func TestCompletion_PowershellMentionsItself(t *testing.T) {
	out := runCompletion(t, "powershell")
	assert.Contains(t, strings.ToLower(out), "powershell completion")
}

func TestCompletion_RejectsUnknownShell(t *testing.T) {
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs([]string{"completion", "tcsh"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid argument")
}
