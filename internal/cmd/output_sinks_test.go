package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/feedwatch/feedwatch/internal/core"
	"github.com/feedwatch/feedwatch/internal/output"
)

func newOutputCommand(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	addOutputFlags(cmd)
	require.NoError(t, cmd.ParseFlags(args))
	return cmd
}

func TestSanitizeFilename(t *testing.T) {
	require.Equal(t, "pools.list", sanitizeFilename("Pools.List"))
	require.Equal(t, "a-b", sanitizeFilename(" a / b "))
	require.Equal(t, "output", sanitizeFilename("///"))
}

func TestWriteRenderedToOutDir(t *testing.T) {
	dir := t.TempDir()
	cmd := newOutputCommand(t, "--output-format", "json", "--out-dir", dir)

	require.NoError(t, writeRendered(cmd, "targets", output.Targets{{Handle: "alice"}}))

	data, err := os.ReadFile(filepath.Join(dir, "targets.json"))
	require.NoError(t, err)
	require.Contains(t, string(data), `"handle": "alice"`)
}

func TestWriteRenderedToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sessions.md")
	cmd := newOutputCommand(t, "--output-format", "markdown", "--out", path)

	require.NoError(t, writeRendered(cmd, "sessions", output.Sessions{core.PersistedSession{Identity: "alice"}}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "alice")
}

func TestOutputFlagsConflict(t *testing.T) {
	cmd := newOutputCommand(t, "--out", "a.txt", "--out-dir", "b")
	require.ErrorIs(t, writeRendered(cmd, "targets", output.Targets{}), errOutputConflict)

	cmd = newOutputCommand(t, "--output-format", "csv")
	require.Error(t, writeRendered(cmd, "targets", output.Targets{}))
}

func TestWriteRenderedToCommandOutput(t *testing.T) {
	cmd := newOutputCommand(t, "--output-format", "json", "--out", "-")
	var buf bytes.Buffer
	cmd.SetOut(&buf)

	require.NoError(t, writeRendered(cmd, "targets", output.Targets{{Handle: "bob"}}))
	require.Contains(t, buf.String(), `"handle": "bob"`)
}
