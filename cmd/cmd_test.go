package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the root command with args and returns what it printed to stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("log:\n  level: error\n"), 0o644))

	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	rootCmd.SetArgs(append([]string{"--config", cfgPath}, args...))
	runErr := rootCmd.ExecuteContext(context.Background())

	w.Close()
	os.Stdout = oldStdout
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(r)
	return buf.String(), runErr
}

func TestRulesCommand(t *testing.T) {
	out, err := execute(t, "rules", "golang", "awesome", "--tags", "x")
	require.NoError(t, err)

	assert.Contains(t, out, "golang")
	assert.Contains(t, out, "subjective")
	assert.Contains(t, out, "length")
	assert.Contains(t, out, "1 of 3 tags valid")
}

func TestChunkCommand(t *testing.T) {
	readme := filepath.Join(t.TempDir(), "README.md")
	require.NoError(t, os.WriteFile(readme, []byte("<p>Some <b>bold</b> words that go on for a while.</p>"), 0o644))

	out, err := execute(t, "chunk", readme, "--plain", "--size", "10", "--overlap", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "(size 10, overlap 2)")
	assert.NotContains(t, out, "<b>")
}

func TestChunkCommand_MissingFile(t *testing.T) {
	_, err := execute(t, "chunk", filepath.Join(t.TempDir(), "nope.md"))
	assert.Error(t, err)
}
