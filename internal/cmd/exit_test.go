package cmd

import (
	"bytes"
	"fmt"
	"os"
	"testing"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/stretchr/testify/require"

	"github.com/feedwatch/feedwatch/internal/config"
	"github.com/feedwatch/feedwatch/internal/core"
	errwrap "github.com/feedwatch/feedwatch/internal/errors"
)

func TestExitCodeFor(t *testing.T) {
	require.Equal(t, foundry.ExitConfigInvalid, ExitCodeFor(fmt.Errorf("load: %w", config.ErrInvalid)))
	require.Equal(t, foundry.ExitFileNotFound, ExitCodeFor(fmt.Errorf("open: %w", os.ErrNotExist)))
	require.Equal(t, foundry.ExitExternalServiceUnavailable, ExitCodeFor(core.ErrNoAvailableCredentials))
	require.Equal(t, foundry.ExitFailure, ExitCodeFor(fmt.Errorf("boom")))
}

func TestWriteFatal(t *testing.T) {
	var buf bytes.Buffer
	writeFatal(&buf, foundry.ExitConfigInvalid, "Invalid configuration", errwrap.NewConfigInvalidError("feed.base_url is required"))
	require.Contains(t, buf.String(), "FATAL: Invalid configuration [CONFIG_INVALID]: feed.base_url is required")
	require.Contains(t, buf.String(), "Exit Code:")

	buf.Reset()
	writeFatal(&buf, foundry.ExitFailure, "Command execution failed", nil)
	require.Contains(t, buf.String(), "FATAL: Command execution failed\n")
}
