package core

import "time"

// RateLimitState captures the quota state of one pooled resource
// (a proxy endpoint or a credential identity).
type RateLimitState struct {
	RequestCount  int        `json:"request_count"`
	WindowStart   time.Time  `json:"window_start"`
	LastUsedAt    *time.Time `json:"last_used_at,omitempty"`
	CooldownUntil *time.Time `json:"cooldown_until,omitempty"`
	Blocked       bool       `json:"blocked"`
}

// Resource kinds used as key prefixes when pool state is persisted.
const (
	ResourceProxy      = "proxy"
	ResourceCredential = "credential"
)

// ResourceKey builds the persisted key for a pooled resource.
func ResourceKey(kind, name string) string {
	return kind + ":" + name
}
