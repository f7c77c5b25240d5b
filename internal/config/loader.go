// Package config provides centralized configuration management for feedwatch.
// It layers built-in defaults, the config file (read by viper in the CLI),
// an optional accounts file, and environment overrides resolved through
// gofulmen/config, then decodes the result with mapstructure.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fulmenhq/gofulmen/appidentity"
	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"gopkg.in/yaml.v3"

	"github.com/feedwatch/feedwatch/internal/appid"
	"github.com/feedwatch/feedwatch/internal/core"
)

const (
	defaultAppName   = "feedwatch"
	defaultEnvPrefix = "FEEDWATCH_"
)

var (
	// appConfig holds the current application configuration
	appConfig   *Config
	configMu    sync.RWMutex
	appIdentity *appidentity.Identity
)

// EnvVarSpec defines environment variable mappings for config fields
// following the pattern: {PREFIX}{NAME} maps to config path
type EnvVarSpec = gfconfig.EnvVarSpec

// Environment variable types
const (
	EnvString = gfconfig.EnvString
	EnvInt    = gfconfig.EnvInt
	EnvBool   = gfconfig.EnvBool
)

// Defaults returns the built-in settings keyed by dotted config path.
func Defaults() map[string]any {
	return map[string]any{
		"quotas.proxy.requests_per_window":      300,
		"quotas.proxy.window":                   "15m",
		"quotas.proxy.cooldown":                 "5m",
		"quotas.credential.requests_per_window": 100,
		"quotas.credential.window":              "15m",
		"quotas.credential.cooldown":            "0s",

		"login.max_attempts": 3,
		"login.cooldown":     "30m",

		"monitoring.poll_interval":            "500ms",
		"monitoring.batch_size":               5,
		"monitoring.max_retries":              3,
		"monitoring.retry_delay":              "1s",
		"monitoring.session_refresh_interval": "30m",
		"monitoring.rotation":                 "drift",

		"cache.item_ttl":    "1h",
		"cache.session_ttl": "24h",

		"feed.timeout":    "15s",
		"feed.user_agent": "feedwatch",

		"notify.sink":        "log",
		"notify.color":       0x1DA1F2,
		"notify.alert_color": 0xFF0000,

		"maintenance.purge_schedule":    "@every 1h",
		"maintenance.snapshot_schedule": "@every 1m",

		"server.host":             "localhost",
		"server.port":             8080,
		"server.read_timeout":     "30s",
		"server.write_timeout":    "30s",
		"server.idle_timeout":     "120s",
		"server.shutdown_timeout": "10s",
		"server.admin_token":      "",

		"store.driver": "libsql",

		"logging.level":   "info",
		"logging.profile": "structured",

		"metrics.enabled": true,
		"metrics.port":    9090,

		"health.enabled": true,
	}
}

// Load builds the configuration from settings (typically viper.AllSettings())
// layered over Defaults, then applies the accounts file, environment
// overrides and runtime overrides, in that order, and validates the result.
//
// This function is safe to call multiple times (e.g., for config reload)
func Load(ctx context.Context, settings map[string]any, runtimeOverrides ...map[string]any) (*Config, error) {
	cfg, err := Resolve(ctx, settings, runtimeOverrides...)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	setConfig(cfg)
	return cfg, nil
}

// Resolve layers the configuration exactly like Load but skips validation.
// Maintenance commands that only touch the store use it so they work before
// accounts are configured.
func Resolve(ctx context.Context, settings map[string]any, runtimeOverrides ...map[string]any) (*Config, error) {
	if appIdentity == nil {
		if identity, err := appid.Get(ctx); err == nil {
			appIdentity = identity
		}
	}

	merged := expandDotted(Defaults())
	mergeMaps(merged, settings)

	envOverrides, err := gfconfig.LoadEnvOverrides(getEnvSpecs())
	if err != nil {
		return nil, fmt.Errorf("failed to load environment overrides: %w", err)
	}
	mergeMaps(merged, envOverrides)
	for _, overrides := range runtimeOverrides {
		mergeMaps(merged, overrides)
	}

	cfg, err := decode(merged)
	if err != nil {
		return nil, err
	}

	if path := strings.TrimSpace(cfg.AccountsFile); path != "" {
		file, err := LoadAccountsFile(path)
		if err != nil {
			return nil, err
		}
		cfg.Accounts = append(cfg.Accounts, file.Accounts...)
		cfg.Proxies = append(cfg.Proxies, file.Proxies...)
	}

	if strings.TrimSpace(cfg.Store.URL) == "" && strings.TrimSpace(cfg.Store.Path) == "" {
		cfg.Store.Path = DefaultStorePath()
	}
	return cfg, nil
}

func decode(input map[string]any) (*Config, error) {
	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(input); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// AccountsFile is the on-disk list of identities and proxies kept apart from
// the main config so secrets can be managed separately.
type AccountsFile struct {
	Accounts []core.Account       `yaml:"accounts"`
	Proxies  []core.ProxyEndpoint `yaml:"proxies"`
}

// LoadAccountsFile reads a YAML accounts file.
func LoadAccountsFile(path string) (*AccountsFile, error) {
	// #nosec G304 -- path comes from operator configuration
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read accounts file: %w", err)
	}

	var file AccountsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse accounts file %s: %w", path, err)
	}
	return &file, nil
}

// GetConfig returns the current application configuration (thread-safe)
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// setConfig updates the current configuration (thread-safe)
func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}

func envPrefix() string {
	prefix := defaultEnvPrefix
	if appIdentity != nil && strings.TrimSpace(appIdentity.EnvPrefix) != "" {
		prefix = appIdentity.EnvPrefix
	}
	if !strings.HasSuffix(prefix, "_") {
		prefix += "_"
	}
	return prefix
}

// getEnvSpecs returns environment variable specifications for config mapping
// Maps {PREFIX}{NAME} environment variables to config paths
func getEnvSpecs() []EnvVarSpec {
	prefix := envPrefix()

	return []EnvVarSpec{
		{Name: prefix + "ACCOUNTS_FILE", Path: []string{"accounts_file"}, Type: EnvString},

		// Monitoring
		// Duration fields are parsed as strings and converted by mapstructure decode hook
		{Name: prefix + "POLL_INTERVAL", Path: []string{"monitoring", "poll_interval"}, Type: EnvString},
		{Name: prefix + "BATCH_SIZE", Path: []string{"monitoring", "batch_size"}, Type: EnvInt},
		{Name: prefix + "MAX_RETRIES", Path: []string{"monitoring", "max_retries"}, Type: EnvInt},
		{Name: prefix + "RETRY_DELAY", Path: []string{"monitoring", "retry_delay"}, Type: EnvString},
		{Name: prefix + "SESSION_REFRESH_INTERVAL", Path: []string{"monitoring", "session_refresh_interval"}, Type: EnvString},
		{Name: prefix + "ROTATION", Path: []string{"monitoring", "rotation"}, Type: EnvString},

		// Login
		{Name: prefix + "LOGIN_MAX_ATTEMPTS", Path: []string{"login", "max_attempts"}, Type: EnvInt},
		{Name: prefix + "LOGIN_COOLDOWN", Path: []string{"login", "cooldown"}, Type: EnvString},

		// Feed
		{Name: prefix + "FEED_BASE_URL", Path: []string{"feed", "base_url"}, Type: EnvString},
		{Name: prefix + "FEED_TIMEOUT", Path: []string{"feed", "timeout"}, Type: EnvString},

		// Notification sinks
		{Name: prefix + "NOTIFY_SINK", Path: []string{"notify", "sink"}, Type: EnvString},
		{Name: prefix + "DISCORD_TOKEN", Path: []string{"notify", "discord", "token"}, Type: EnvString},
		{Name: prefix + "DISCORD_CHANNEL_ID", Path: []string{"notify", "discord", "channel_id"}, Type: EnvString},
		{Name: prefix + "TELEGRAM_TOKEN", Path: []string{"notify", "telegram", "token"}, Type: EnvString},
		{Name: prefix + "TELEGRAM_CHAT_ID", Path: []string{"notify", "telegram", "chat_id"}, Type: EnvInt},

		{Name: prefix + "PURGE_SCHEDULE", Path: []string{"maintenance", "purge_schedule"}, Type: EnvString},
		{Name: prefix + "SNAPSHOT_SCHEDULE", Path: []string{"maintenance", "snapshot_schedule"}, Type: EnvString},

		// Server config
		{Name: prefix + "HOST", Path: []string{"server", "host"}, Type: EnvString},
		{Name: prefix + "PORT", Path: []string{"server", "port"}, Type: EnvInt},
		{Name: prefix + "SHUTDOWN_TIMEOUT", Path: []string{"server", "shutdown_timeout"}, Type: EnvString},

		// Logging config
		{Name: prefix + "LOG_LEVEL", Path: []string{"logging", "level"}, Type: EnvString},
		{Name: prefix + "LOG_PROFILE", Path: []string{"logging", "profile"}, Type: EnvString},

		// Store config
		{Name: prefix + "DB_DRIVER", Path: []string{"store", "driver"}, Type: EnvString},
		{Name: prefix + "DB_PATH", Path: []string{"store", "path"}, Type: EnvString},
		{Name: prefix + "DB_URL", Path: []string{"store", "url"}, Type: EnvString},
		{Name: prefix + "DB_AUTH_TOKEN", Path: []string{"store", "auth_token"}, Type: EnvString},

		// Metrics config
		{Name: prefix + "METRICS_ENABLED", Path: []string{"metrics", "enabled"}, Type: EnvBool},
		{Name: prefix + "METRICS_PORT", Path: []string{"metrics", "port"}, Type: EnvInt},

		{Name: prefix + "HEALTH_ENABLED", Path: []string{"health", "enabled"}, Type: EnvBool},
	}
}

// appNamesForPaths returns the config name and binary name from app identity,
// falling back to "feedwatch" if not set.
func appNamesForPaths() (configName string, binaryName string) {
	configName = defaultAppName
	binaryName = defaultAppName
	if appIdentity == nil {
		return configName, binaryName
	}

	if strings.TrimSpace(appIdentity.ConfigName) != "" {
		configName = appIdentity.ConfigName
	}
	if strings.TrimSpace(appIdentity.BinaryName) != "" {
		binaryName = appIdentity.BinaryName
	}
	return configName, binaryName
}

// DefaultConfigPath returns the XDG-compliant path to the user config file.
func DefaultConfigPath() string {
	configName, _ := appNamesForPaths()
	configDir := gfconfig.GetAppConfigDir(configName)
	if strings.TrimSpace(configDir) == "" {
		return ""
	}
	return filepath.Join(configDir, "config.yaml")
}

// DefaultDataDir returns the XDG-compliant data directory for the app.
func DefaultDataDir() string {
	configName, _ := appNamesForPaths()
	return gfconfig.GetAppDataDir(configName)
}

// DefaultStorePath returns the XDG-compliant path to the database file.
func DefaultStorePath() string {
	configName, binaryName := appNamesForPaths()
	dataDir := gfconfig.GetAppDataDir(configName)
	if strings.TrimSpace(dataDir) == "" {
		return "./" + binaryName + ".db"
	}
	return filepath.Join(dataDir, binaryName+".db")
}

// expandDotted turns {"a.b": 1} into {"a": {"b": 1}}.
func expandDotted(flat map[string]any) map[string]any {
	out := map[string]any{}
	for key, value := range flat {
		parts := strings.Split(key, ".")
		node := out
		for _, part := range parts[:len(parts)-1] {
			node = ensureMap(node, part)
		}
		node[parts[len(parts)-1]] = value
	}
	return out
}

// mergeMaps overlays src onto dst recursively. Non-map values in src win.
func mergeMaps(dst, src map[string]any) {
	for key, value := range src {
		key = strings.ToLower(key)
		srcMap, srcIsMap := asMap(value)
		if !srcIsMap {
			dst[key] = value
			continue
		}
		if existing, ok := asMap(dst[key]); ok {
			mergeMaps(existing, srcMap)
			dst[key] = existing
			continue
		}
		copied := map[string]any{}
		mergeMaps(copied, srcMap)
		dst[key] = copied
	}
}

func asMap(value any) (map[string]any, bool) {
	switch typed := value.(type) {
	case map[string]any:
		return typed, true
	case map[any]any:
		converted := make(map[string]any, len(typed))
		for k, v := range typed {
			converted[fmt.Sprint(k)] = v
		}
		return converted, true
	default:
		return nil, false
	}
}

func ensureMap(parent map[string]any, key string) map[string]any {
	if existing, ok := parent[key]; ok {
		if typed, ok := existing.(map[string]any); ok {
			return typed
		}
	}
	next := map[string]any{}
	parent[key] = next
	return next
}
