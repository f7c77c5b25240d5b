package cmd

import (
	"context"
	"fmt"
	"maps"

	"go.uber.org/zap"

	"github.com/feedwatch/feedwatch/internal/config"
	"github.com/feedwatch/feedwatch/internal/core"
	"github.com/feedwatch/feedwatch/internal/core/engine"
	"github.com/feedwatch/feedwatch/internal/core/pool"
	"github.com/feedwatch/feedwatch/internal/core/session"
	"github.com/feedwatch/feedwatch/internal/core/store"
	"github.com/feedwatch/feedwatch/internal/feed"
	"github.com/feedwatch/feedwatch/internal/maintenance"
	"github.com/feedwatch/feedwatch/internal/metrics"
	"github.com/feedwatch/feedwatch/internal/notify"
	"github.com/feedwatch/feedwatch/internal/observability"
	"github.com/feedwatch/feedwatch/internal/server/handlers"
)

// monitor bundles the long-lived components behind the serve command.
type monitor struct {
	store       *store.Store
	sessions    *session.Store
	proxies     *pool.ProxyPool
	credentials *pool.CredentialPool
	engine      *engine.Engine
	maintenance *maintenance.Scheduler
	feeds       *feed.HTTPFactory
	logger      observability.Logger
}

// buildMonitor opens the store and wires pools, sink, engine and
// housekeeping from cfg. The caller owns Initialize and Start.
func buildMonitor(ctx context.Context, cfg *config.Config, logger observability.Logger) (*monitor, error) {
	rotation, err := pool.ParseRotation(cfg.Monitoring.Rotation)
	if err != nil {
		return nil, err
	}

	db, err := openStoreWith(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	sessions := session.New(db, logger)
	if cfg.Cache.SessionTTL > 0 {
		sessions.TTL = cfg.Cache.SessionTTL
	}

	proxies := pool.NewProxyPool(pool.ProxyPoolConfig{
		Endpoints: cfg.Proxies,
		Quota:     quotaFrom(cfg.Quotas.Proxy),
		Rotation:  rotation,
		Logger:    logger,
	})

	feeds := &feed.HTTPFactory{
		BaseURL:   cfg.Feed.BaseURL,
		UserAgent: cfg.Feed.UserAgent,
		Timeout:   cfg.Feed.Timeout,
	}

	credentials, err := pool.NewCredentialPool(pool.CredentialPoolConfig{
		Accounts:         cfg.Accounts,
		Quota:            quotaFrom(cfg.Quotas.Credential),
		MaxLoginAttempts: cfg.Login.MaxAttempts,
		LoginCooldown:    cfg.Login.Cooldown,
		Rotation:         rotation,
		Factory:          feeds,
		Proxies:          proxies,
		Sessions:         sessions,
		Logger:           logger,
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	sink, err := buildSink(cfg.Notify, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	m := &monitor{
		store:       db,
		sessions:    sessions,
		proxies:     proxies,
		credentials: credentials,
		feeds:       feeds,
		logger:      logger,
	}

	eng, err := engine.New(engine.Config{
		PollInterval:    cfg.Monitoring.PollInterval,
		RefreshInterval: cfg.Monitoring.SessionRefreshInterval,
		BatchSize:       cfg.Monitoring.BatchSize,
		MaxRetries:      cfg.Monitoring.MaxRetries,
		RetryDelay:      cfg.Monitoring.RetryDelay,
		ItemTTL:         cfg.Cache.ItemTTL,
		Targets:         db,
		Credentials:     credentials,
		Refresher:       credentials,
		Cache:           db,
		Sink:            sink,
		Formatter: notify.Formatter{
			Color:      cfg.Notify.Color,
			AlertColor: cfg.Notify.AlertColor,
		},
		OnRefresh: m.snapshot,
		Logger:    logger,
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	m.engine = eng

	m.maintenance, err = maintenance.New(maintenance.Config{
		PurgeSchedule:    cfg.Maintenance.PurgeSchedule,
		SnapshotSchedule: cfg.Maintenance.SnapshotSchedule,
		Purger:           db,
		Snapshot:         m.snapshot,
		Logger:           logger,
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return m, nil
}

// buildSink selects the notification sink named by cfg.Sink.
func buildSink(cfg config.NotifyConfig, logger observability.Logger) (notify.Sink, error) {
	switch cfg.Sink {
	case config.SinkDiscord:
		return notify.NewDiscord(cfg.Discord.Token, cfg.Discord.ChannelID)
	case config.SinkTelegram:
		return notify.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID)
	case config.SinkLog, "":
		return &notify.Log{Logger: logger}, nil
	default:
		return nil, fmt.Errorf("unknown notification sink %q", cfg.Sink)
	}
}

func quotaFrom(cfg config.QuotaConfig) pool.Quota {
	return pool.Quota{
		RequestsPerWindow: cfg.RequestsPerWindow,
		WindowDuration:    cfg.Window,
		Cooldown:          cfg.Cooldown,
	}
}

// snapshot persists pool usage so `pools list` can read it offline and
// refreshes the availability gauges.
func (m *monitor) snapshot(ctx context.Context) {
	states := make(map[string]core.RateLimitState)
	maps.Copy(states, m.proxies.States())
	maps.Copy(states, m.credentials.States())

	if err := m.store.SaveRateLimits(ctx, states); err != nil {
		m.logger.Warn("Failed to persist pool snapshot", zap.Error(err))
	}

	metrics.SetPoolAvailable("proxy", countAvailableProxies(m.proxies.Stats()))
	metrics.SetPoolAvailable("credential", countAvailableCredentials(m.credentials.Stats()))
	if m.engine != nil {
		metrics.SetServerUptime(int64(m.engine.Stats().Uptime.Seconds()))
	}
}

func countAvailableProxies(stats []pool.ProxyStats) int {
	n := 0
	for _, s := range stats {
		if s.Available {
			n++
		}
	}
	return n
}

func countAvailableCredentials(stats []pool.CredentialStats) int {
	n := 0
	for _, s := range stats {
		if s.Available {
			n++
		}
	}
	return n
}

// handlersMonitor exposes the monitor to the HTTP handlers.
func (m *monitor) handlersMonitor() *handlers.Monitor {
	return &handlers.Monitor{
		Engine:      m.engine,
		Proxies:     m.proxies,
		Credentials: m.credentials,
		Targets:     m.store,
	}
}

func (m *monitor) close() error {
	if m == nil {
		return nil
	}
	if m.feeds != nil {
		m.feeds.CloseIdleConnections()
	}
	if m.store == nil {
		return nil
	}
	return m.store.Close()
}
