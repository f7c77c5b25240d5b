package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryKV is an in-process key-value store with expiry. It is used when no
// database is needed and as a test double.
type MemoryKV struct {
	mu      sync.Mutex
	entries map[string]memoryEntry

	// Clock overrides time.Now for expiry checks.
	Clock func() time.Time
}

type memoryEntry struct {
	value   string
	expires time.Time
}

// NewMemoryKV returns an empty MemoryKV.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{entries: make(map[string]memoryEntry)}
}

// SetWithExpiry stores value under key until ttl elapses.
func (m *MemoryKV) SetWithExpiry(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()
	m.entries[key] = memoryEntry{value: value, expires: m.now().Add(ttl)}
	return nil
}

// SetIfAbsent stores value only when key has no live entry.
func (m *MemoryKV) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()
	now := m.now()
	if entry, ok := m.entries[key]; ok && now.Before(entry.expires) {
		return false, nil
	}
	m.entries[key] = memoryEntry{value: value, expires: now.Add(ttl)}
	return true, nil
}

// Get returns the live value for key.
func (m *MemoryKV) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key]
	if !ok {
		return "", false, nil
	}
	if !m.now().Before(entry.expires) {
		delete(m.entries, key)
		return "", false, nil
	}
	return entry.value, true, nil
}

// Delete removes key.
func (m *MemoryKV) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// ListKeys returns the live keys starting with prefix, sorted.
func (m *MemoryKV) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	keys := []string{}
	for key, entry := range m.entries {
		if strings.HasPrefix(key, prefix) && now.Before(entry.expires) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MemoryKV) init() {
	if m.entries == nil {
		m.entries = make(map[string]memoryEntry)
	}
}

func (m *MemoryKV) now() time.Time {
	if m.Clock != nil {
		return m.Clock()
	}
	return time.Now().UTC()
}
