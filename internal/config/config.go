package config

import (
	"time"

	"github.com/feedwatch/feedwatch/internal/core"
)

// Config represents the complete application configuration.
// Values are layered: built-in defaults, the config file, the accounts file,
// then environment variables and runtime overrides.
type Config struct {
	Accounts     []core.Account       `mapstructure:"accounts"`
	Proxies      []core.ProxyEndpoint `mapstructure:"proxies"`
	AccountsFile string               `mapstructure:"accounts_file"`

	Quotas      QuotasConfig      `mapstructure:"quotas"`
	Login       LoginConfig       `mapstructure:"login"`
	Monitoring  MonitoringConfig  `mapstructure:"monitoring"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Feed        FeedConfig        `mapstructure:"feed"`
	Notify      NotifyConfig      `mapstructure:"notify"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`

	Server  ServerConfig  `mapstructure:"server"`
	Store   StoreConfig   `mapstructure:"store"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Health  HealthConfig  `mapstructure:"health"`
}

// QuotasConfig holds per-resource request quotas.
type QuotasConfig struct {
	Proxy      QuotaConfig `mapstructure:"proxy"`
	Credential QuotaConfig `mapstructure:"credential"`
}

// QuotaConfig bounds requests per rolling window for one resource.
type QuotaConfig struct {
	RequestsPerWindow int           `mapstructure:"requests_per_window"`
	Window            time.Duration `mapstructure:"window"`
	Cooldown          time.Duration `mapstructure:"cooldown"`
}

// LoginConfig bounds login attempts per identity.
type LoginConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Cooldown    time.Duration `mapstructure:"cooldown"`
}

// MonitoringConfig controls the polling loop.
type MonitoringConfig struct {
	PollInterval           time.Duration `mapstructure:"poll_interval"`
	BatchSize              int           `mapstructure:"batch_size"`
	MaxRetries             int           `mapstructure:"max_retries"`
	RetryDelay             time.Duration `mapstructure:"retry_delay"`
	SessionRefreshInterval time.Duration `mapstructure:"session_refresh_interval"`
	// Rotation is "drift" or "stable".
	Rotation string `mapstructure:"rotation"`
}

// CacheConfig contains key-value TTLs.
type CacheConfig struct {
	ItemTTL    time.Duration `mapstructure:"item_ttl"`
	SessionTTL time.Duration `mapstructure:"session_ttl"`
}

// FeedConfig configures the HTTP feed client.
type FeedConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
}

// NotifyConfig selects and configures the notification sink.
type NotifyConfig struct {
	// Sink is "discord", "telegram" or "log".
	Sink       string         `mapstructure:"sink"`
	Color      int            `mapstructure:"color"`
	AlertColor int            `mapstructure:"alert_color"`
	Discord    DiscordConfig  `mapstructure:"discord"`
	Telegram   TelegramConfig `mapstructure:"telegram"`
}

// DiscordConfig configures the Discord bot sink.
type DiscordConfig struct {
	Token     string `mapstructure:"token"`
	ChannelID string `mapstructure:"channel_id"`
}

// TelegramConfig configures the Telegram bot sink.
type TelegramConfig struct {
	Token  string `mapstructure:"token"`
	ChatID int64  `mapstructure:"chat_id"`
}

// MaintenanceConfig holds cron schedules for housekeeping jobs.
// "off" disables a job.
type MaintenanceConfig struct {
	PurgeSchedule    string `mapstructure:"purge_schedule"`
	SnapshotSchedule string `mapstructure:"snapshot_schedule"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// AdminToken enables POST /admin/signal when set.
	AdminToken string `mapstructure:"admin_token"`
}

// StoreConfig contains database configuration.
// Driver is "libsql" (default), "sqlite" or "memory".
type StoreConfig struct {
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`

	// Profile selects the logging complexity level
	// Valid values: SIMPLE, STRUCTURED, ENTERPRISE
	Profile string `mapstructure:"profile"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	// Enabled controls whether metrics are exposed
	Enabled bool `mapstructure:"enabled"`

	// Port is the dedicated metrics endpoint port (Prometheus format)
	Port int `mapstructure:"port"`
}

// HealthConfig contains health check configuration
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}
