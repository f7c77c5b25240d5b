package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/feedwatch/feedwatch/internal/core"
)

// RateLimitEntry is one persisted pool snapshot.
type RateLimitEntry struct {
	Resource string              `json:"resource"`
	State    core.RateLimitState `json:"state"`
}

// Kind returns the resource kind prefix, "proxy" or "credential".
func (e RateLimitEntry) Kind() string {
	kind, _, _ := strings.Cut(e.Resource, ":")
	return kind
}

// RateLimitQuery selects persisted pool snapshots. Filters combine with AND;
// All must be set explicitly to select everything.
type RateLimitQuery struct {
	All         bool
	Resource    string
	Prefix      string
	Kind        string
	BlockedOnly bool
}

var errEmptyQuery = errors.New("must specify --all, --resource, --prefix or --kind")

func (q RateLimitQuery) Validate() error {
	if q.Kind != "" && q.Kind != core.ResourceProxy && q.Kind != core.ResourceCredential {
		return fmt.Errorf("unknown resource kind %q", q.Kind)
	}
	if q.All || q.selective() {
		return nil
	}
	return errEmptyQuery
}

func (q RateLimitQuery) selective() bool {
	return strings.TrimSpace(q.Resource) != "" ||
		strings.TrimSpace(q.Prefix) != "" ||
		q.Kind != "" ||
		q.BlockedOnly
}

func (q RateLimitQuery) whereClause() (string, []any, error) {
	if err := q.Validate(); err != nil {
		return "", nil, err
	}

	var (
		conds []string
		args  []any
	)
	if resource := strings.TrimSpace(q.Resource); resource != "" {
		conds = append(conds, "resource = ?")
		args = append(args, resource)
	}
	if prefix := strings.TrimSpace(q.Prefix); prefix != "" {
		conds = append(conds, `resource LIKE ? ESCAPE '\'`)
		args = append(args, escapeLike(prefix)+"%")
	}
	if q.Kind != "" {
		conds = append(conds, `resource LIKE ? ESCAPE '\'`)
		args = append(args, escapeLike(core.ResourceKey(q.Kind, ""))+"%")
	}
	if q.BlockedOnly {
		conds = append(conds, "blocked = 1")
	}
	if len(conds) == 0 {
		return "", nil, nil
	}
	return "WHERE " + strings.Join(conds, " AND "), args, nil
}

func (s *Store) rateLimitWhere(ctx context.Context, q RateLimitQuery) (context.Context, string, []any, error) {
	if s == nil || s.DB == nil {
		return ctx, "", nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	where, args, err := q.whereClause()
	return ctx, where, args, err
}

// ListRateLimits returns the snapshots matching q ordered by resource.
func (s *Store) ListRateLimits(ctx context.Context, q RateLimitQuery) ([]RateLimitEntry, error) {
	ctx, where, args, err := s.rateLimitWhere(ctx, q)
	if err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx,
		"SELECT resource, request_count, window_start, last_used_at, cooldown_until, blocked FROM rate_limits "+
			where+" ORDER BY resource", args...)
	if err != nil {
		return nil, fmt.Errorf("list rate limits: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	entries := []RateLimitEntry{}
	for rows.Next() {
		entry, err := scanRateLimit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rate limits: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list rate limits: %w", err)
	}
	return entries, nil
}

// CountRateLimits counts the snapshots matching q.
func (s *Store) CountRateLimits(ctx context.Context, q RateLimitQuery) (int, error) {
	ctx, where, args, err := s.rateLimitWhere(ctx, q)
	if err != nil {
		return 0, err
	}

	var count int
	if err := s.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM rate_limits "+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count rate limits: %w", err)
	}
	return count, nil
}

// ResetRateLimits deletes the snapshots matching q. The pools reload from
// the remaining snapshots on the next start.
func (s *Store) ResetRateLimits(ctx context.Context, q RateLimitQuery) (int64, error) {
	ctx, where, args, err := s.rateLimitWhere(ctx, q)
	if err != nil {
		return 0, err
	}

	result, err := s.DB.ExecContext(ctx, "DELETE FROM rate_limits "+where, args...)
	if err != nil {
		return 0, fmt.Errorf("reset rate limits: %w", err)
	}
	return result.RowsAffected()
}
