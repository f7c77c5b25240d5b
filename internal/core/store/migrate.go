package store

import (
	"context"
	"errors"
	"fmt"
)

// migration is one schema step. Steps are applied in order and the
// database's user_version records the last one applied.
type migration struct {
	version int
	name    string
	stmts   []string
}

var migrations = []migration{
	{
		version: 1,
		name:    "kv entries",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS kv_entries (
				key TEXT PRIMARY KEY,
				value TEXT NOT NULL,
				expires_at INTEGER NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_kv_entries_expires ON kv_entries(expires_at)`,
		},
	},
	{
		version: 2,
		name:    "watch targets",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS watch_targets (
				handle TEXT PRIMARY KEY,
				last_seen_item_id TEXT NOT NULL DEFAULT '',
				last_checked_at INTEGER,
				created_at INTEGER NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_watch_targets_created ON watch_targets(created_at, handle)`,
		},
	},
	{
		version: 3,
		name:    "rate limits",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS rate_limits (
				resource TEXT PRIMARY KEY,
				request_count INTEGER NOT NULL DEFAULT 0,
				window_start INTEGER NOT NULL,
				last_used_at INTEGER,
				cooldown_until INTEGER,
				blocked INTEGER NOT NULL DEFAULT 0,
				updated_at INTEGER NOT NULL
			)`,
		},
	},
}

// SchemaVersion is the version Migrate brings a database to.
func SchemaVersion() int {
	return migrations[len(migrations)-1].version
}

// Migrate applies every migration newer than the database's recorded
// version. Each step runs in its own transaction.
func (s *Store) Migrate(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	current, err := s.CurrentVersion(ctx)
	if err != nil {
		return err
	}
	if current > SchemaVersion() {
		return fmt.Errorf("store schema version %d is newer than this binary supports (%d)", current, SchemaVersion())
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := s.apply(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

// CurrentVersion reads the schema version recorded in the database.
func (s *Store) CurrentVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.DB.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}

func (s *Store) apply(ctx context.Context, m migration) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
	}
	defer tx.Rollback() // nolint:errcheck // no-op after commit

	for _, stmt := range m.stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
		}
	}
	// PRAGMA does not accept bound parameters.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", m.version)); err != nil {
		return fmt.Errorf("migration %d (%s): record version: %w", m.version, m.name, err)
	}
	return tx.Commit()
}
