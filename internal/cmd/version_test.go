package cmd

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVersionSummary(t *testing.T) {
	SetVersionInfo("1.4.0", "abc123", "2026-10-01")
	t.Cleanup(func() { SetVersionInfo("dev", "unknown", "unknown") })

	summary := versionSummary("feedwatch")
	require.Equal(t, "feedwatch 1.4.0", summary.Title())
	require.Contains(t, summary.Pairs, [2]string{"commit", "abc123"})
	require.Contains(t, summary.Pairs, [2]string{"go", runtime.Version()})
}
