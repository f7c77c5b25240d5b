package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/feedwatch/feedwatch/internal/core"
)

var (
	// ErrTargetExists is returned when adding a handle that is already watched.
	ErrTargetExists = errors.New("target is already being monitored")
	// ErrTargetNotFound is returned when a handle is not watched.
	ErrTargetNotFound = errors.New("target is not being monitored")
)

// AddTarget starts watching handle.
func (s *Store) AddTarget(ctx context.Context, handle string) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	handle = core.NormalizeHandle(handle)
	if handle == "" {
		return errors.New("handle is required")
	}

	result, err := s.DB.ExecContext(ctx, `
		INSERT INTO watch_targets (handle, last_seen_item_id, created_at)
		VALUES (?, '', ?)
		ON CONFLICT(handle) DO NOTHING
	`, handle, s.now().Unix())
	if err != nil {
		return fmt.Errorf("add target %s: %w", handle, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("add target %s: %w", handle, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: @%s", ErrTargetExists, handle)
	}
	return nil
}

// RemoveTarget stops watching handle.
func (s *Store) RemoveTarget(ctx context.Context, handle string) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	handle = core.NormalizeHandle(handle)
	result, err := s.DB.ExecContext(ctx, `DELETE FROM watch_targets WHERE handle = ?`, handle)
	if err != nil {
		return fmt.Errorf("remove target %s: %w", handle, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove target %s: %w", handle, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: @%s", ErrTargetNotFound, handle)
	}
	return nil
}

// ClearTargets removes every watched handle and returns how many there were.
func (s *Store) ClearTargets(ctx context.Context) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	result, err := s.DB.ExecContext(ctx, `DELETE FROM watch_targets`)
	if err != nil {
		return 0, fmt.Errorf("clear targets: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear targets: %w", err)
	}
	return affected, nil
}

// ListTargets returns a snapshot of every watched handle in insertion order.
func (s *Store) ListTargets(ctx context.Context) ([]core.WatchTarget, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT handle, last_seen_item_id, last_checked_at
		FROM watch_targets
		ORDER BY created_at, handle
	`)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	targets := []core.WatchTarget{}
	for rows.Next() {
		var (
			target      core.WatchTarget
			lastChecked sql.NullInt64
		)
		if err := rows.Scan(&target.Handle, &target.LastSeenItemID, &lastChecked); err != nil {
			return nil, fmt.Errorf("scan targets: %w", err)
		}
		if lastChecked.Valid {
			target.LastCheckedAt = time.Unix(lastChecked.Int64, 0).UTC()
		}
		targets = append(targets, target)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	return targets, nil
}

// UpdateLastSeen records itemID as the newest item seen for handle.
// Updating a handle that is no longer watched is a no-op.
func (s *Store) UpdateLastSeen(ctx context.Context, handle, itemID string) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	_, err := s.DB.ExecContext(ctx, `
		UPDATE watch_targets
		SET last_seen_item_id = ?, last_checked_at = ?
		WHERE handle = ?
	`, itemID, s.now().Unix(), core.NormalizeHandle(handle))
	if err != nil {
		return fmt.Errorf("update last seen for %s: %w", handle, err)
	}
	return nil
}
