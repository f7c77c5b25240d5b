package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/feedwatch/feedwatch/internal/config"
)

func TestMigrateRecordsSchemaVersion(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, config.StoreConfig{Driver: "memory"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	version, err := store.CurrentVersion(ctx)
	require.NoError(t, err)
	require.Zero(t, version)

	require.NoError(t, store.Migrate(ctx))
	version, err = store.CurrentVersion(ctx)
	require.NoError(t, err)
	require.Equal(t, SchemaVersion(), version)

	// A second run is a no-op.
	require.NoError(t, store.Migrate(ctx))

	for _, table := range []string{"kv_entries", "watch_targets", "rate_limits"} {
		var name string
		err := store.DB.QueryRowContext(ctx,
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
		require.NoError(t, err, table)
	}
}

func TestMigrateResumesFromRecordedVersion(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, config.StoreConfig{Driver: "memory"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.apply(ctx, migrations[0]))
	require.NoError(t, store.Migrate(ctx))

	version, err := store.CurrentVersion(ctx)
	require.NoError(t, err)
	require.Equal(t, SchemaVersion(), version)
}

func TestMigrateRejectsNewerSchema(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, config.StoreConfig{Driver: "memory"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	_, err = store.DB.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", SchemaVersion()+1))
	require.NoError(t, err)

	err = store.Migrate(ctx)
	require.ErrorContains(t, err, "newer than this binary supports")
}

func TestMigrationVersionsAscend(t *testing.T) {
	for i := 1; i < len(migrations); i++ {
		require.Greater(t, migrations[i].version, migrations[i-1].version)
	}
}
