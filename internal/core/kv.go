package core

import (
	"context"
	"time"
)

// KeyValueStore is a string key-value store with per-key expiry.
//
// Get returns ("", false, nil) for a missing or expired key.
// SetIfAbsent stores the value only when no live entry exists for the key
// and reports whether it did.
type KeyValueStore interface {
	SetWithExpiry(ctx context.Context, key, value string, ttl time.Duration) error
	SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, bool, error)
	Delete(ctx context.Context, key string) error
	ListKeys(ctx context.Context, prefix string) ([]string, error)
}
