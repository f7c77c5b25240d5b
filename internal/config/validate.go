package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"

	"github.com/feedwatch/feedwatch/internal/feed"
)

// ErrInvalid wraps every error returned by Validate.
var ErrInvalid = errors.New("invalid configuration")

// Sink names accepted by notify.sink.
const (
	SinkDiscord  = "discord"
	SinkTelegram = "telegram"
	SinkLog      = "log"
)

// Validate reports every configuration problem that would stop the monitor
// from starting.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	var problems []error
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Errorf(format, args...))
	}

	if len(c.Accounts) == 0 {
		add("at least one account is required")
	}
	seen := make(map[string]struct{}, len(c.Accounts))
	for i, account := range c.Accounts {
		name := strings.TrimSpace(account.Username)
		if name == "" {
			add("accounts[%d]: username is required", i)
			continue
		}
		if account.Password == "" {
			add("accounts[%d] (%s): password is required", i, name)
		}
		if _, dup := seen[name]; dup {
			add("accounts[%d]: duplicate username %s", i, name)
		}
		seen[name] = struct{}{}
	}

	for i, proxy := range c.Proxies {
		if err := feed.ValidateProxyURL(proxy); err != nil {
			add("proxies[%d]: %v", i, err)
		}
	}

	if c.Quotas.Proxy.RequestsPerWindow <= 0 || c.Quotas.Proxy.Window <= 0 {
		add("quotas.proxy: requests_per_window and window must be positive")
	}
	if c.Quotas.Credential.RequestsPerWindow <= 0 || c.Quotas.Credential.Window <= 0 {
		add("quotas.credential: requests_per_window and window must be positive")
	}
	if c.Login.MaxAttempts <= 0 {
		add("login.max_attempts must be positive")
	}
	if c.Login.Cooldown <= 0 {
		add("login.cooldown must be positive")
	}

	if c.Monitoring.PollInterval <= 0 {
		add("monitoring.poll_interval must be positive")
	}
	if c.Monitoring.BatchSize <= 0 {
		add("monitoring.batch_size must be positive")
	}
	if c.Monitoring.MaxRetries < 0 {
		add("monitoring.max_retries must not be negative")
	}
	if c.Monitoring.SessionRefreshInterval <= 0 {
		add("monitoring.session_refresh_interval must be positive")
	}
	switch strings.ToLower(strings.TrimSpace(c.Monitoring.Rotation)) {
	case "", "drift", "stable":
	default:
		add("monitoring.rotation: unknown policy %q (expected drift or stable)", c.Monitoring.Rotation)
	}

	if strings.TrimSpace(c.Feed.BaseURL) == "" {
		add("feed.base_url is required")
	}

	switch strings.ToLower(strings.TrimSpace(c.Notify.Sink)) {
	case SinkDiscord:
		if c.Notify.Discord.Token == "" || c.Notify.Discord.ChannelID == "" {
			add("notify.discord: token and channel_id are required")
		}
	case SinkTelegram:
		if c.Notify.Telegram.Token == "" || c.Notify.Telegram.ChatID == 0 {
			add("notify.telegram: token and chat_id are required")
		}
	case SinkLog, "":
	default:
		add("notify.sink: unknown sink %q", c.Notify.Sink)
	}

	switch strings.ToLower(strings.TrimSpace(c.Store.Driver)) {
	case "", "libsql", "sqlite", "memory":
	default:
		add("store.driver: unsupported driver %q", c.Store.Driver)
	}

	for key, spec := range map[string]string{
		"maintenance.purge_schedule":    c.Maintenance.PurgeSchedule,
		"maintenance.snapshot_schedule": c.Maintenance.SnapshotSchedule,
	} {
		if spec == "" || spec == "off" {
			continue
		}
		if _, err := cron.ParseStandard(spec); err != nil {
			add("%s: %v", key, err)
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(problems...))
}
