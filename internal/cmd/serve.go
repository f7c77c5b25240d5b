package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/feedwatch/feedwatch/internal/config"
	errwrap "github.com/feedwatch/feedwatch/internal/errors"
	"github.com/feedwatch/feedwatch/internal/metrics"
	"github.com/feedwatch/feedwatch/internal/observability"
	"github.com/feedwatch/feedwatch/internal/server"
	"github.com/feedwatch/feedwatch/internal/server/handlers"
)

var (
	serverPort int
	serverHost string
)

// signalHealthChecker implements HealthChecker for signal system
type signalHealthChecker struct{}

func (s signalHealthChecker) CheckHealth(ctx context.Context) error {
	return nil
}

// credentialHealthChecker fails while no identity holds a usable session
// and degrades while some configured identities are still missing.
type credentialHealthChecker struct {
	registered func() int
	configured int
}

func (c credentialHealthChecker) CheckHealth(ctx context.Context) error {
	n := c.registered()
	switch {
	case n == 0:
		return errwrap.NewServiceUnavailableError("no authenticated identities")
	case n < c.configured:
		return fmt.Errorf("%d of %d identities authenticated: %w", n, c.configured, handlers.ErrDegraded)
	}
	return nil
}

// storeHealthChecker pings the database.
type storeHealthChecker struct {
	ping func(ctx context.Context) error
}

func (s storeHealthChecker) CheckHealth(ctx context.Context) error {
	if err := s.ping(ctx); err != nil {
		return errwrap.NewServiceUnavailableError("store unreachable: " + err.Error())
	}
	return nil
}

// telemetryHealthChecker ensures telemetry system and exporter are available
type telemetryHealthChecker struct{}

func (telemetryHealthChecker) CheckHealth(ctx context.Context) error {
	if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
		return errwrap.NewInternalError("telemetry system not initialized")
	}
	return nil
}

// identityHealthChecker validates app identity metadata
type identityHealthChecker struct {
	binaryName string
	envPrefix  string
	configName string
}

func (i identityHealthChecker) CheckHealth(ctx context.Context) error {
	switch {
	case i.binaryName == "":
		return errwrap.NewConfigInvalidError("app identity missing binary name")
	case i.envPrefix == "":
		return errwrap.NewConfigInvalidError("app identity missing env prefix")
	case i.configName == "":
		return errwrap.NewConfigInvalidError("app identity missing config name")
	}
	return nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the monitor and its HTTP API",
	Long: `Log in every configured account, then poll the watched accounts and
forward new posts to the configured notification sink. The HTTP API serves
health, metrics, stats and target management.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Config file re-read (restart to apply pool or sink changes)

On shutdown the poll loop stops, in-flight checks finish, pool usage is
persisted and logs are flushed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		identity := GetAppIdentity()
		namespace := identity.TelemetryNamespace()

		cfg, err := config.Load(cmd.Context(), viper.AllSettings())
		if err != nil {
			ExitWithCode(observability.CLILogger, foundry.ExitConfigInvalid, "Invalid configuration", err)
		}

		if err := observability.InitServerLogger(identity.BinaryName, cfg.Logging.Level, namespace); err != nil {
			ExitWithCode(observability.CLILogger, foundry.ExitConfigInvalid, "Failed to initialize server logger", err)
		}
		logger := observability.ServerLogger

		if cfg.Metrics.Enabled {
			if err := observability.InitMetrics(identity.BinaryName, cfg.Metrics.Port, namespace); err != nil {
				logger.Error("Failed to initialize metrics", zap.Error(err))
				return errwrap.WrapInternal(cmd.Context(), err, "metrics initialization failed")
			}
		}

		logger.Info("Initializing monitor",
			zap.String("service", identity.BinaryName),
			zap.String("namespace", namespace),
			zap.String("version", versionInfo.Version),
			zap.Int("accounts", len(cfg.Accounts)),
			zap.Int("proxies", len(cfg.Proxies)),
			zap.String("sink", cfg.Notify.Sink),
			zap.String("rotation", cfg.Monitoring.Rotation))

		mon, err := buildMonitor(cmd.Context(), cfg, logger)
		if err != nil {
			return errwrap.WrapInternal(cmd.Context(), err, "monitor initialization failed")
		}

		if err := mon.credentials.Initialize(cmd.Context()); err != nil {
			logger.Warn("Some identities failed to initialize", zap.Error(err))
		}
		if mon.credentials.Registered() == 0 {
			logger.Error("No identity could be authenticated; checks will fail until a session refresh succeeds")
		}
		mon.snapshot(cmd.Context())

		handlers.InitHealthManager(versionInfo.Version)
		hm := handlers.GetHealthManager()
		hm.RegisterChecker("signal_handlers", signalHealthChecker{}, handlers.ProbeLive)
		if cfg.Metrics.Enabled {
			hm.RegisterChecker("telemetry", telemetryHealthChecker{}, handlers.ProbeStartup)
		}
		hm.RegisterChecker("app_identity", identityHealthChecker{
			binaryName: identity.BinaryName,
			envPrefix:  identity.EnvPrefix,
			configName: identity.ConfigName,
		}, handlers.ProbeStartup)
		hm.RegisterChecker("credentials", credentialHealthChecker{
			registered: mon.credentials.Registered,
			configured: len(cfg.Accounts),
		}, handlers.ProbeReady)
		hm.RegisterChecker("store", storeHealthChecker{ping: mon.store.DB.PingContext}, handlers.ProbeReady, handlers.ProbeStartup)

		host, port := cfg.Server.Host, cfg.Server.Port
		if cmd.Flags().Changed("host") {
			host = serverHost
		}
		if cmd.Flags().Changed("port") {
			port = serverPort
		}
		srv := server.New(host, port)
		srv.ReadTimeout = cfg.Server.ReadTimeout
		srv.WriteTimeout = cfg.Server.WriteTimeout
		srv.IdleTimeout = cfg.Server.IdleTimeout
		adminToken := cfg.Server.AdminToken
		if adminToken == "" {
			adminToken = os.Getenv(identity.EnvPrefix + "ADMIN_TOKEN")
		}
		srv.EnableAdminSignals(adminToken)

		handlers.SetAppIdentity(identity)
		handlers.SetMonitor(mon.handlersMonitor())

		shutdownTimeout := cfg.Server.ShutdownTimeout
		if shutdownTimeout == 0 {
			shutdownTimeout = 10 * time.Second
		}

		// Shutdown handlers run LIFO: engine, HTTP server, store, logger.
		signals.OnShutdown(func(ctx context.Context) error {
			logger.Info("Flushing logger...")
			if err := logger.Sync(); err != nil {
				// Sync errors are often benign (stdout/stderr already closed)
				logger.Warn("Logger sync returned error (may be benign)", zap.Error(err))
			}
			return nil
		})

		signals.OnShutdown(func(ctx context.Context) error {
			mon.snapshot(ctx)
			if err := mon.close(); err != nil {
				logger.Warn("Failed to close store", zap.Error(err))
			}
			if err := observability.StopMetrics(); err != nil {
				logger.Warn("Failed to stop metrics exporter", zap.Error(err))
			}
			return nil
		})

		signals.OnShutdown(func(ctx context.Context) error {
			logger.Info("Shutting down HTTP server...")
			shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				return errwrap.WrapInternal(ctx, err, "server shutdown failed")
			}

			logger.Info("HTTP server stopped gracefully")
			return nil
		})

		signals.OnShutdown(func(ctx context.Context) error {
			logger.Info("Stopping monitor...")
			mon.maintenance.Stop()
			mon.engine.Stop()
			stats := mon.engine.Stats()
			logger.Info("Monitor stopped",
				zap.Int64("total_checks", stats.TotalChecks),
				zap.Int64("new_items", stats.NewItems),
				zap.Int64("errors", stats.Errors),
				zap.Duration("uptime", stats.Uptime))
			return nil
		})

		signals.OnReload(func(ctx context.Context) error {
			logger.Info("Received SIGHUP: attempting config reload")

			if err := viper.ReadInConfig(); err != nil {
				if _, ok := err.(viper.ConfigFileNotFoundError); ok {
					logger.Info("No config file found - using defaults and environment variables")
					return nil
				}
				logger.Error("Failed to reload config file",
					zap.String("file", viper.ConfigFileUsed()),
					zap.Error(err))
				return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
			}
			if _, err := config.Load(ctx, viper.AllSettings()); err != nil {
				logger.Error("Reloaded config is invalid", zap.Error(err))
				return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
			}

			logger.Info("Configuration reloaded; restart to apply pool and sink changes",
				zap.String("file", viper.ConfigFileUsed()))
			return nil
		})

		if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
			Window:  2 * time.Second,
			Message: "Press Ctrl+C again within 2 seconds to force quit",
		}); err != nil {
			logger.Warn("Failed to enable double-tap force quit", zap.Error(err))
		}

		mon.engine.Start(cmd.Context())
		mon.maintenance.Start()
		metrics.SetServerStartTime(time.Now().Unix())

		errChan := make(chan error, 1)
		go func() {
			if err := srv.Start(); err != nil && err != http.ErrServerClosed {
				errChan <- err
			}
		}()

		go func() {
			if err := signals.Listen(cmd.Context()); err != nil {
				logger.Error("Signal handler error", zap.Error(err))
				errChan <- err
			}
		}()

		if err := <-errChan; err != nil {
			mon.maintenance.Stop()
			mon.engine.Stop()
			_ = mon.close()
			return errwrap.WrapInternal(cmd.Context(), err, "server error")
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "localhost", "server host")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "server port")

	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}
