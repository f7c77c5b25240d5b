package cmd

import (
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/feedwatch/feedwatch/internal/config"
	errwrap "github.com/feedwatch/feedwatch/internal/errors"
	"github.com/feedwatch/feedwatch/internal/observability"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Run self-health check",
	Long:  "Verify the configuration is valid and the store is reachable without starting the monitor.",
	Run: func(cmd *cobra.Command, args []string) {
		logger := observability.CLILogger
		logger.Info("Running health check...")

		if versionInfo.Version == "" {
			ExitWithCode(logger, foundry.ExitConfigInvalid, "Version information missing", errwrap.NewConfigInvalidError("Version information missing"))
			return
		}
		logger.Debug("Version check passed", zap.String("version", versionInfo.Version))
		logger.Info("✅ Version information available")

		cfg, err := config.Load(cmd.Context(), viper.AllSettings())
		if err != nil {
			ExitWithCode(logger, foundry.ExitConfigInvalid, "Configuration invalid", err)
			return
		}
		logger.Info("✅ Configuration valid",
			zap.Int("accounts", len(cfg.Accounts)),
			zap.Int("proxies", len(cfg.Proxies)),
			zap.String("sink", cfg.Notify.Sink))

		if _, err := buildSink(cfg.Notify, logger); err != nil {
			ExitWithCode(logger, foundry.ExitConfigInvalid, "Notification sink unusable", err)
			return
		}
		logger.Info("✅ Notification sink configured")

		db, err := openStoreWith(cmd.Context(), cfg.Store)
		if err != nil {
			ExitWithCode(logger, foundry.ExitExternalServiceUnavailable, "Store unreachable", err)
			return
		}
		targets, err := db.ListTargets(cmd.Context())
		_ = db.Close()
		if err != nil {
			ExitWithCode(logger, foundry.ExitFailure, "Store query failed", err)
			return
		}
		logger.Info("✅ Store reachable", zap.String("driver", db.Driver()), zap.Int("targets", len(targets)))

		logger.Info("")
		logger.Info("✅ All health checks passed")
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
