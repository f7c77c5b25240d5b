package pool

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/feedwatch/feedwatch/internal/core"
	"github.com/feedwatch/feedwatch/internal/metrics"
	"github.com/feedwatch/feedwatch/internal/observability"
)

const proxyPoolName = "proxy"

// ProxyPoolConfig configures a ProxyPool.
type ProxyPoolConfig struct {
	Endpoints []core.ProxyEndpoint
	Quota     Quota
	Rotation  Rotation
	Clock     func() time.Time
	Logger    observability.Logger
}

// ProxyPool rotates proxy endpoints under a per-endpoint quota.
//
// Selection never fails: when every endpoint is exhausted callers proceed
// without a proxy.
type ProxyPool struct {
	mu      sync.Mutex
	members []*proxyMember
	byURL   map[string]*proxyMember
	quota   Quota
	rotor   rotator
	clock   func() time.Time
	logger  observability.Logger
}

type proxyMember struct {
	endpoint core.ProxyEndpoint
	usage    usage
}

// ProxyStats is a snapshot of one endpoint's quota state.
type ProxyStats struct {
	URL           string    `json:"url"`
	RequestCount  int       `json:"request_count"`
	WindowStart   time.Time `json:"window_start,omitempty"`
	LastUsedAt    time.Time `json:"last_used_at,omitempty"`
	Blocked       bool      `json:"blocked"`
	CooldownUntil time.Time `json:"cooldown_until,omitempty"`
	Available     bool      `json:"available"`
}

// NewProxyPool builds a pool from the configured endpoints. Duplicate URLs
// keep the first occurrence.
func NewProxyPool(cfg ProxyPoolConfig) *ProxyPool {
	p := &ProxyPool{
		byURL:  make(map[string]*proxyMember, len(cfg.Endpoints)),
		quota:  cfg.Quota.orDefault(DefaultProxyQuota),
		rotor:  rotator{policy: cfg.Rotation},
		clock:  cfg.Clock,
		logger: observability.OrNop(cfg.Logger),
	}
	for _, endpoint := range cfg.Endpoints {
		endpoint.URL = strings.TrimSpace(endpoint.URL)
		if endpoint.URL == "" {
			continue
		}
		if _, exists := p.byURL[endpoint.URL]; exists {
			continue
		}
		member := &proxyMember{endpoint: endpoint}
		p.members = append(p.members, member)
		p.byURL[endpoint.URL] = member
	}
	return p
}

// Len returns the number of configured endpoints.
func (p *ProxyPool) Len() int {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.members)
}

// SelectNext returns the next available endpoint and records its use.
// It reports false when the pool is empty or exhausted.
func (p *ProxyPool) SelectNext() (core.ProxyEndpoint, bool) {
	if p == nil {
		return core.ProxyEndpoint{}, false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.members) == 0 {
		return core.ProxyEndpoint{}, false
	}

	now := p.now()
	available := make([]bool, len(p.members))
	count := 0
	for i, member := range p.members {
		member.usage.expire(now, p.quota)
		available[i] = member.usage.available(now, p.quota)
		if available[i] {
			count++
		}
	}
	metrics.SetPoolAvailable(proxyPoolName, count)

	idx := p.rotor.pick(available)
	if idx < 0 {
		p.logger.Warn("No available proxies, continuing without proxy",
			zap.Int("configured", len(p.members)))
		metrics.RecordPoolExhausted(proxyPoolName)
		return core.ProxyEndpoint{}, false
	}

	member := p.members[idx]
	member.usage.record(now, p.quota)
	return member.endpoint, true
}

// MarkBlocked excludes the endpoint immediately and starts its cooldown.
func (p *ProxyPool) MarkBlocked(url string) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	member, ok := p.byURL[strings.TrimSpace(url)]
	if !ok {
		return
	}
	member.usage.block(p.now(), p.quota.Cooldown)
	p.logger.Warn("Proxy marked blocked",
		zap.String("proxy", member.endpoint.URL),
		zap.Time("cooldown_until", member.usage.cooldownUntil))
}

// Reset clears all counters for the endpoint.
func (p *ProxyPool) Reset(url string) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	member, ok := p.byURL[strings.TrimSpace(url)]
	if !ok {
		return
	}
	member.usage.reset()
	member.usage.lastUsedAt = time.Time{}
}

// Stats returns a snapshot of every endpoint in configured order.
func (p *ProxyPool) Stats() []ProxyStats {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	stats := make([]ProxyStats, 0, len(p.members))
	for _, member := range p.members {
		stats = append(stats, ProxyStats{
			URL:           member.endpoint.URL,
			RequestCount:  member.usage.requestCount,
			WindowStart:   member.usage.windowStart,
			LastUsedAt:    member.usage.lastUsedAt,
			Blocked:       member.usage.blocked,
			CooldownUntil: member.usage.cooldownUntil,
			Available:     member.usage.available(now, p.quota),
		})
	}
	return stats
}

// States returns the persisted form of every endpoint keyed by resource key.
func (p *ProxyPool) States() map[string]core.RateLimitState {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	states := make(map[string]core.RateLimitState, len(p.members))
	for _, member := range p.members {
		states[core.ResourceKey(core.ResourceProxy, member.endpoint.URL)] = member.usage.state()
	}
	return states
}

func (p *ProxyPool) now() time.Time {
	if p != nil && p.clock != nil {
		return p.clock()
	}
	return time.Now().UTC()
}
