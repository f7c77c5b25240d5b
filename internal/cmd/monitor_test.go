package cmd

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/feedwatch/feedwatch/internal/config"
	"github.com/feedwatch/feedwatch/internal/core"
	"github.com/feedwatch/feedwatch/internal/core/pool"
	"github.com/feedwatch/feedwatch/internal/core/store"
	"github.com/feedwatch/feedwatch/internal/notify"
)

func TestBuildSink(t *testing.T) {
	sink, err := buildSink(config.NotifyConfig{Sink: config.SinkLog}, zap.NewNop())
	require.NoError(t, err)
	require.IsType(t, &notify.Log{}, sink)

	sink, err = buildSink(config.NotifyConfig{}, zap.NewNop())
	require.NoError(t, err)
	require.IsType(t, &notify.Log{}, sink)

	_, err = buildSink(config.NotifyConfig{Sink: "email"}, zap.NewNop())
	require.Error(t, err)
}

func TestQuotaFrom(t *testing.T) {
	quota := quotaFrom(config.QuotaConfig{RequestsPerWindow: 10, Window: time.Minute, Cooldown: time.Second})
	require.Equal(t, pool.Quota{RequestsPerWindow: 10, WindowDuration: time.Minute, Cooldown: time.Second}, quota)
}

func TestCountAvailable(t *testing.T) {
	require.Equal(t, 1, countAvailableProxies([]pool.ProxyStats{{Available: true}, {Blocked: true}}))
	require.Equal(t, 2, countAvailableCredentials([]pool.CredentialStats{{Available: true}, {Available: true}, {}}))
	require.Zero(t, countAvailableProxies(nil))
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Resolve(context.Background(), map[string]any{
		"accounts": []any{map[string]any{"username": "alice", "password": "secret"}},
		"proxies":  []any{map[string]any{"url": "http://127.0.0.1:3128"}},
		"feed":     map[string]any{"base_url": "http://127.0.0.1:1"},
		"store":    map[string]any{"driver": "memory"},
	})
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestBuildMonitorWiresComponents(t *testing.T) {
	ctx := context.Background()
	mon, err := buildMonitor(ctx, testConfig(t), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = mon.close() })

	require.NotNil(t, mon.engine)
	require.NotNil(t, mon.maintenance)
	require.Equal(t, []string{"purge", "snapshot"}, mon.maintenance.Jobs())
	require.Equal(t, 1, mon.proxies.Len())
	require.Zero(t, mon.credentials.Registered())

	hm := mon.handlersMonitor()
	require.NotNil(t, hm.Engine)
	require.NotNil(t, hm.Targets)

	mon.snapshot(ctx)
	entries, err := mon.store.ListRateLimits(ctx, store.RateLimitQuery{All: true})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, core.ResourceKey(core.ResourceProxy, "http://127.0.0.1:3128"), entries[0].Resource)
}

func TestBuildMonitorRejectsBadRotation(t *testing.T) {
	cfg := testConfig(t)
	cfg.Monitoring.Rotation = "random"
	_, err := buildMonitor(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
}
