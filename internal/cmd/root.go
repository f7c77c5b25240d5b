package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fulmenhq/gofulmen/appidentity"
	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/telemetry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/feedwatch/feedwatch/internal/appid"
	"github.com/feedwatch/feedwatch/internal/config"
	"github.com/feedwatch/feedwatch/internal/observability"
)

var (
	cfgFile string
	verbose bool

	// Loaded from .fulmen/app.yaml or the embedded fallback.
	appIdentity *appidentity.Identity

	versionInfo struct {
		Version   string
		Commit    string
		BuildDate string
	}
)

// SetVersionInfo is called by main with the ldflags build metadata.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// GetAppIdentity returns the loaded app identity (only valid after initConfig)
func GetAppIdentity() *appidentity.Identity {
	return appIdentity
}

var rootCmd = &cobra.Command{
	Use:   filepath.Base(os.Args[0]),
	Short: "Watch feed accounts and forward new posts",
	Long: `Poll a list of watched accounts through a rotating pool of
authenticated sessions and proxies, and forward every new post to a
notification sink.

Start the monitor with "serve"; manage what it watches with "targets",
and inspect its state with "sessions" and "pools".`,
	SilenceUsage: true,
}

// Execute runs the root command. Called once from main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Config loading must not emit metrics before serve sets up the exporter.
	if sys, err := telemetry.NewSystem(&telemetry.Config{Enabled: false}); err == nil {
		telemetry.SetGlobalSystem(sys)
	}

	// Help text is rendered before OnInitialize runs.
	if identity, err := appid.Get(context.Background()); err == nil {
		applyIdentity(identity)
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/feedwatch/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (sets log level to debug)")
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func applyIdentity(identity *appidentity.Identity) {
	if identity == nil {
		return
	}
	appIdentity = identity
	if identity.BinaryName != "" {
		rootCmd.Use = identity.BinaryName
	}
	if identity.Description != "" {
		rootCmd.Short = identity.Description
	}
	if f := rootCmd.PersistentFlags().Lookup("config"); f != nil && identity.ConfigName != "" {
		f.Usage = fmt.Sprintf("config file (default is $XDG_CONFIG_HOME/%s/config.yaml)", identity.ConfigName)
	}
}

// configSearchPaths lists the directories searched for config.yaml, most
// specific first. The XDG directory falls back to the home directory.
func configSearchPaths(identity *appidentity.Identity) ([]string, error) {
	var paths []string
	if dir := gfconfig.GetAppConfigDir(identity.ConfigName); dir != "" {
		paths = append(paths, dir)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		paths = append(paths, filepath.Join(home, "."+identity.ConfigName))
	}
	return append(paths, "./config", "."), nil
}

func initConfig() {
	identity, err := appid.Get(context.Background())
	if err != nil {
		ExitWithCodeStderr(foundry.ExitFileNotFound, "Failed to load app identity from .fulmen/app.yaml", err)
	}
	applyIdentity(identity)

	if err := observability.InitCLILogger(identity.BinaryName, verbose); err != nil {
		ExitWithCodeStderr(foundry.ExitConfigInvalid, "Failed to initialize CLI logger", err)
	}
	logger := observability.CLILogger

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		paths, err := configSearchPaths(identity)
		if err != nil {
			ExitWithCode(logger, foundry.ExitFileNotFound, "Could not find home directory", err)
		}
		for _, path := range paths {
			viper.AddConfigPath(path)
		}
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	// FEEDWATCH_MONITORING_BATCH_SIZE -> monitoring.batch_size
	viper.SetEnvPrefix(strings.TrimSuffix(identity.EnvPrefix, "_"))
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	err = viper.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	switch {
	case err == nil:
		logger.Debug("Using config file", zap.String("path", viper.ConfigFileUsed()))
	case errors.As(err, &notFound):
		logger.Debug("No config file found, using defaults and environment variables")
	case cfgFile != "":
		ExitWithCode(logger, foundry.ExitFileNotFound, "Could not read config file", err)
	default:
		logger.Warn("Error reading config file", zap.Error(err))
	}

	setDefaults()
}

// setDefaults registers the built-in settings with viper so config file
// values and flags layer over them.
func setDefaults() {
	for key, value := range config.Defaults() {
		viper.SetDefault(key, value)
	}
	viper.SetDefault("store.path", config.DefaultStorePath())
}
