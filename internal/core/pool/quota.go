package pool

import (
	"time"

	"github.com/feedwatch/feedwatch/internal/core"
)

// Quota bounds how often one pooled resource may be used.
type Quota struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
	// Cooldown excludes a resource after it reaches RequestsPerWindow.
	// Zero means the resource only waits for its window to elapse.
	Cooldown time.Duration
}

// Default quotas.
var (
	DefaultProxyQuota = Quota{
		RequestsPerWindow: 300,
		WindowDuration:    15 * time.Minute,
		Cooldown:          5 * time.Minute,
	}
	DefaultCredentialQuota = Quota{
		RequestsPerWindow: 100,
		WindowDuration:    15 * time.Minute,
	}
)

func (q Quota) orDefault(fallback Quota) Quota {
	if q.RequestsPerWindow <= 0 {
		q.RequestsPerWindow = fallback.RequestsPerWindow
	}
	if q.WindowDuration <= 0 {
		q.WindowDuration = fallback.WindowDuration
	}
	if q.Cooldown < 0 {
		q.Cooldown = 0
	}
	return q
}

// usage is the per-window consumption of one resource.
type usage struct {
	requestCount  int
	windowStart   time.Time
	lastUsedAt    time.Time
	blocked       bool
	cooldownUntil time.Time
}

// expire clears the counters once a full window has passed since last use.
func (u *usage) expire(now time.Time, quota Quota) bool {
	if u.lastUsedAt.IsZero() || now.Sub(u.lastUsedAt) < quota.WindowDuration {
		return false
	}
	u.reset()
	return true
}

func (u *usage) reset() {
	u.requestCount = 0
	u.windowStart = time.Time{}
	u.blocked = false
	u.cooldownUntil = time.Time{}
}

func (u *usage) available(now time.Time, quota Quota) bool {
	if u.blocked {
		return false
	}
	if u.requestCount >= quota.RequestsPerWindow {
		return false
	}
	return !now.Before(u.cooldownUntil)
}

func (u *usage) record(now time.Time, quota Quota) {
	if u.requestCount == 0 {
		u.windowStart = now
	}
	u.requestCount++
	u.lastUsedAt = now
	if u.requestCount >= quota.RequestsPerWindow && quota.Cooldown > 0 {
		u.cooldownUntil = now.Add(quota.Cooldown)
	}
}

func (u *usage) block(now time.Time, cooldown time.Duration) {
	u.blocked = true
	u.cooldownUntil = now.Add(cooldown)
	if u.lastUsedAt.IsZero() {
		u.lastUsedAt = now
	}
}

func (u *usage) state() core.RateLimitState {
	state := core.RateLimitState{
		RequestCount: u.requestCount,
		WindowStart:  u.windowStart,
		Blocked:      u.blocked,
	}
	if !u.lastUsedAt.IsZero() {
		last := u.lastUsedAt
		state.LastUsedAt = &last
	}
	if !u.cooldownUntil.IsZero() {
		until := u.cooldownUntil
		state.CooldownUntil = &until
	}
	return state
}
