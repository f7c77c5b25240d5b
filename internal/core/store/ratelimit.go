package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/feedwatch/feedwatch/internal/core"
)

// GetRateLimit returns the stored snapshot for a pooled resource.
func (s *Store) GetRateLimit(ctx context.Context, resource string) (*core.RateLimitState, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	resource = strings.TrimSpace(resource)
	if resource == "" {
		return nil, errors.New("resource is required")
	}

	row := s.DB.QueryRowContext(ctx, `
		SELECT resource, request_count, window_start, last_used_at, cooldown_until, blocked
		FROM rate_limits
		WHERE resource = ?
	`, resource)

	entry, err := scanRateLimit(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch rate limit: %w", err)
	}
	return &entry.State, nil
}

// UpdateRateLimit persists the snapshot for a pooled resource.
func (s *Store) UpdateRateLimit(ctx context.Context, resource string, state *core.RateLimitState) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	resource = strings.TrimSpace(resource)
	if resource == "" {
		return errors.New("resource is required")
	}
	if state == nil {
		return errors.New("rate limit state is required")
	}

	var lastUsed sql.NullInt64
	if state.LastUsedAt != nil {
		lastUsed = sql.NullInt64{Int64: state.LastUsedAt.UTC().Unix(), Valid: true}
	}

	var cooldownUntil sql.NullInt64
	if state.CooldownUntil != nil {
		cooldownUntil = sql.NullInt64{Int64: state.CooldownUntil.UTC().Unix(), Valid: true}
	}

	blocked := 0
	if state.Blocked {
		blocked = 1
	}

	var windowStart int64
	if !state.WindowStart.IsZero() {
		windowStart = state.WindowStart.UTC().Unix()
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO rate_limits (resource, request_count, window_start, last_used_at, cooldown_until, blocked, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(resource) DO UPDATE SET
			request_count = excluded.request_count,
			window_start = excluded.window_start,
			last_used_at = excluded.last_used_at,
			cooldown_until = excluded.cooldown_until,
			blocked = excluded.blocked,
			updated_at = excluded.updated_at
	`, resource, state.RequestCount, windowStart, lastUsed, cooldownUntil, blocked, s.now().Unix())
	if err != nil {
		return fmt.Errorf("store rate limit: %w", err)
	}

	return nil
}

// SaveRateLimits persists a set of snapshots keyed by resource.
func (s *Store) SaveRateLimits(ctx context.Context, states map[string]core.RateLimitState) error {
	for resource, state := range states {
		state := state
		if err := s.UpdateRateLimit(ctx, resource, &state); err != nil {
			return err
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRateLimit(row rowScanner) (RateLimitEntry, error) {
	var (
		resource      string
		requestCount  int
		windowStart   int64
		lastUsed      sql.NullInt64
		cooldownUntil sql.NullInt64
		blocked       int
	)
	if err := row.Scan(&resource, &requestCount, &windowStart, &lastUsed, &cooldownUntil, &blocked); err != nil {
		return RateLimitEntry{}, err
	}

	state := core.RateLimitState{
		RequestCount: requestCount,
		Blocked:      blocked != 0,
	}
	if windowStart > 0 {
		state.WindowStart = time.Unix(windowStart, 0).UTC()
	}
	if lastUsed.Valid {
		value := time.Unix(lastUsed.Int64, 0).UTC()
		state.LastUsedAt = &value
	}
	if cooldownUntil.Valid {
		value := time.Unix(cooldownUntil.Int64, 0).UTC()
		state.CooldownUntil = &value
	}
	return RateLimitEntry{Resource: resource, State: state}, nil
}
