package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/feedwatch/feedwatch/internal/core"
	"github.com/feedwatch/feedwatch/internal/observability"
)

const (
	// KeyPrefix namespaces session entries in the key-value store.
	KeyPrefix = "session:"
	// DefaultTTL bounds how long a persisted session is reused.
	DefaultTTL = 24 * time.Hour
)

// Store persists per-identity sessions on a key-value store with expiry.
type Store struct {
	KV     core.KeyValueStore
	TTL    time.Duration
	Logger observability.Logger
}

// New returns a Store with the default TTL.
func New(kv core.KeyValueStore, logger observability.Logger) *Store {
	return &Store{KV: kv, TTL: DefaultTTL, Logger: logger}
}

// Key returns the key-value key for identity.
func Key(identity string) string {
	return KeyPrefix + identity
}

// Save writes the session for identity, replacing any previous one.
func (s *Store) Save(ctx context.Context, identity string, session *core.PersistedSession) error {
	if err := s.ready(); err != nil {
		return err
	}
	if session == nil {
		return errors.New("session is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	copied := *session
	copied.Identity = identity
	payload, err := json.Marshal(copied)
	if err != nil {
		return fmt.Errorf("encode session for %s: %w", identity, err)
	}

	if err := s.KV.SetWithExpiry(ctx, Key(identity), string(payload), s.ttl()); err != nil {
		return fmt.Errorf("save session for %s: %w", identity, err)
	}
	return nil
}

// Get returns the stored session, or nil when it is missing, expired or
// unreadable. A corrupt entry is logged and reported as absent.
func (s *Store) Get(ctx context.Context, identity string) (*core.PersistedSession, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	value, ok, err := s.KV.Get(ctx, Key(identity))
	if err != nil {
		return nil, fmt.Errorf("load session for %s: %w", identity, err)
	}
	if !ok {
		return nil, nil
	}

	session, err := decode(value)
	if err != nil {
		observability.OrNop(s.Logger).Warn("Discarding unreadable session",
			zap.String("identity", identity),
			zap.Error(err))
		return nil, nil
	}
	if session.Identity == "" {
		session.Identity = identity
	}
	return session, nil
}

// Update merges update onto the stored session. It is a no-op when no
// session exists for identity.
func (s *Store) Update(ctx context.Context, identity string, update core.SessionUpdate) error {
	existing, err := s.Get(ctx, identity)
	if err != nil {
		return err
	}
	if existing == nil {
		return nil
	}
	update.Apply(existing)
	return s.Save(ctx, identity, existing)
}

// Remove deletes the stored session for identity.
func (s *Store) Remove(ctx context.Context, identity string) error {
	if err := s.ready(); err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.KV.Delete(ctx, Key(identity)); err != nil {
		return fmt.Errorf("remove session for %s: %w", identity, err)
	}
	return nil
}

// List returns every live, readable session sorted by identity.
func (s *Store) List(ctx context.Context) ([]core.PersistedSession, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	keys, err := s.KV.ListKeys(ctx, KeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	sessions := make([]core.PersistedSession, 0, len(keys))
	for _, key := range keys {
		identity := strings.TrimPrefix(key, KeyPrefix)
		session, err := s.Get(ctx, identity)
		if err != nil {
			return nil, err
		}
		if session == nil {
			continue
		}
		sessions = append(sessions, *session)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].Identity < sessions[j].Identity
	})
	return sessions, nil
}

func (s *Store) ready() error {
	if s == nil || s.KV == nil {
		return errors.New("session store is not initialized")
	}
	return nil
}

func (s *Store) ttl() time.Duration {
	if s.TTL <= 0 {
		return DefaultTTL
	}
	return s.TTL
}

func decode(value string) (*core.PersistedSession, error) {
	var session core.PersistedSession
	if err := json.Unmarshal([]byte(value), &session); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrSessionCorrupt, err)
	}
	return &session, nil
}
