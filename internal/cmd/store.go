package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/viper"

	"github.com/feedwatch/feedwatch/internal/config"
	"github.com/feedwatch/feedwatch/internal/core/store"
)

// openStore opens and migrates the configured database. It resolves the
// configuration without validating accounts so maintenance commands work on
// a fresh install.
func openStore(ctx context.Context) (*store.Store, error) {
	cfg, err := config.Resolve(ctx, viper.AllSettings())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return openStoreWith(ctx, cfg.Store)
}

func openStoreWith(ctx context.Context, cfg config.StoreConfig) (*store.Store, error) {
	db, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}
