package observability

import (
	"testing"

	"github.com/fulmenhq/gofulmen/logging"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	_ Logger = (*zap.Logger)(nil)
	_ Logger = (*logging.Logger)(nil)
)

func resetLoggers(t *testing.T) {
	t.Helper()
	cli, server := CLILogger, ServerLogger
	CLILogger, ServerLogger = nil, nil
	t.Cleanup(func() { CLILogger, ServerLogger = cli, server })
}

func TestComponentFallsBack(t *testing.T) {
	resetLoggers(t)

	require.IsType(t, &zap.Logger{}, Component())

	require.NoError(t, InitCLILogger("feedwatch-test", true))
	require.NotNil(t, CLILogger)
	require.Same(t, CLILogger, Component())

	require.NoError(t, InitServerLogger("feedwatch-test", "debug", "feedwatch"))
	require.NotNil(t, ServerLogger)
	require.Same(t, ServerLogger, Component())

	Component().Info("component logger ready", zap.String("pool", "proxy"))
}

func TestOrNop(t *testing.T) {
	require.NotNil(t, OrNop(nil))

	logger := zap.NewNop()
	require.Same(t, logger, OrNop(logger))
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]string{
		"trace":   "TRACE",
		"debug":   "DEBUG",
		"info":    "INFO",
		"warning": "WARN",
		"error":   "ERROR",
		"":        "INFO",
		"loud":    "INFO",
		" WARN ":  "WARN",
	}
	for in, want := range cases {
		require.Equal(t, want, parseLogLevel(in), in)
	}
}
