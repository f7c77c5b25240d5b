package pool

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/feedwatch/feedwatch/internal/core"
	"github.com/feedwatch/feedwatch/internal/core/session"
	"github.com/feedwatch/feedwatch/internal/feed"
	"github.com/feedwatch/feedwatch/internal/metrics"
	"github.com/feedwatch/feedwatch/internal/observability"
)

const credentialPoolName = "credential"

// Login defaults.
const (
	DefaultMaxLoginAttempts = 3
	DefaultLoginCooldown    = 30 * time.Minute
)

// CredentialPoolConfig configures a CredentialPool.
type CredentialPoolConfig struct {
	Accounts         []core.Account
	Quota            Quota
	MaxLoginAttempts int
	LoginCooldown    time.Duration
	Rotation         Rotation

	Factory  feed.Factory
	Proxies  *ProxyPool
	Sessions *session.Store
	Clock    func() time.Time
	Logger   observability.Logger
}

// CredentialPool rotates authenticated feed clients, one per identity.
//
// Slots are created when a persisted session is restored or a login
// succeeds. Lock order is pool mutex, then the proxy pool's mutex.
type CredentialPool struct {
	accounts      []core.Account
	quota         Quota
	maxAttempts   int
	loginCooldown time.Duration
	factory       feed.Factory
	proxies       *ProxyPool
	sessions      *session.Store
	clock         func() time.Time
	logger        observability.Logger

	// loginMu serializes restore and login flows so a refresh sweep and
	// an initialize pass never log the same identity in twice.
	loginMu sync.Mutex

	mu    sync.Mutex
	slots map[string]*slot
	rotor rotator
}

type slot struct {
	identity string
	client   feed.Client
	usage    usage
}

// CredentialStats is a snapshot of one configured identity.
type CredentialStats struct {
	Identity     string    `json:"identity"`
	Registered   bool      `json:"registered"`
	RequestCount int       `json:"request_count"`
	WindowStart  time.Time `json:"window_start,omitempty"`
	LastUsedAt   time.Time `json:"last_used_at,omitempty"`
	Available    bool      `json:"available"`
}

// NewCredentialPool builds a pool. Call Initialize before NextClient.
func NewCredentialPool(cfg CredentialPoolConfig) (*CredentialPool, error) {
	if cfg.Factory == nil {
		return nil, errors.New("feed client factory is required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("session store is required")
	}

	accounts := make([]core.Account, 0, len(cfg.Accounts))
	seen := make(map[string]struct{}, len(cfg.Accounts))
	for _, account := range cfg.Accounts {
		account.Username = strings.TrimSpace(account.Username)
		if account.Username == "" {
			continue
		}
		if _, dup := seen[account.Username]; dup {
			continue
		}
		seen[account.Username] = struct{}{}
		accounts = append(accounts, account)
	}

	maxAttempts := cfg.MaxLoginAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxLoginAttempts
	}
	cooldown := cfg.LoginCooldown
	if cooldown <= 0 {
		cooldown = DefaultLoginCooldown
	}

	return &CredentialPool{
		accounts:      accounts,
		quota:         cfg.Quota.orDefault(DefaultCredentialQuota),
		maxAttempts:   maxAttempts,
		loginCooldown: cooldown,
		factory:       cfg.Factory,
		proxies:       cfg.Proxies,
		sessions:      cfg.Sessions,
		clock:         cfg.Clock,
		logger:        observability.OrNop(cfg.Logger),
		slots:         make(map[string]*slot, len(accounts)),
		rotor:         rotator{policy: cfg.Rotation},
	}, nil
}

// Initialize restores or logs in every configured identity. A failure on one
// identity never stops the others; all failures are returned joined.
func (p *CredentialPool) Initialize(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs []error
	for _, account := range p.accounts {
		if err := p.initializeAccount(ctx, account); err != nil {
			p.logger.Warn("Failed to initialize identity",
				zap.String("identity", account.Username),
				zap.Error(err))
			errs = append(errs, err)
		}
	}

	p.logger.Info("Credential pool initialized",
		zap.Int("configured", len(p.accounts)),
		zap.Int("registered", p.Registered()))
	return errors.Join(errs...)
}

func (p *CredentialPool) initializeAccount(ctx context.Context, account core.Account) error {
	p.loginMu.Lock()
	defer p.loginMu.Unlock()

	identity := account.Username
	existing, err := p.sessions.Get(ctx, identity)
	if err != nil {
		return err
	}

	client := p.factory.New()
	if existing != nil && !existing.Blocked && len(existing.AuthMaterial) > 0 {
		client.SetAuthMaterial(existing.AuthMaterial)
		valid, err := client.CheckSession(ctx)
		if err == nil && valid {
			p.register(identity, client)
			metrics.RecordSessionRestore()
			p.logger.Info("Restored session", zap.String("identity", identity))
			return nil
		}
		p.logger.Debug("Stored session is no longer valid",
			zap.String("identity", identity),
			zap.Error(err))
	}

	return p.login(ctx, account, client)
}

// login must be called with loginMu held.
func (p *CredentialPool) login(ctx context.Context, account core.Account, client feed.Client) error {
	identity := account.Username
	now := p.now()

	existing, err := p.sessions.Get(ctx, identity)
	if err != nil {
		return err
	}

	prior := 0
	if existing != nil {
		if existing.InCooldown(now) {
			metrics.RecordLogin("blocked")
			return fmt.Errorf("%w: %s until %s", core.ErrAccountBlocked, identity, existing.CooldownUntil.Format(time.RFC3339))
		}
		if !existing.Blocked {
			prior = existing.LoginAttempts
		}
	}

	attempts := prior + 1
	if attempts > p.maxAttempts {
		blocked := &core.PersistedSession{
			LastLoginAt:   now,
			LoginAttempts: attempts,
			Blocked:       true,
			CooldownUntil: now.Add(p.loginCooldown),
		}
		if err := p.sessions.Save(ctx, identity, blocked); err != nil {
			p.logger.Error("Failed to persist blocked session",
				zap.String("identity", identity),
				zap.Error(err))
		}
		metrics.RecordLogin("blocked")
		p.logger.Warn("Identity blocked after too many login attempts",
			zap.String("identity", identity),
			zap.Int("attempts", attempts),
			zap.Time("cooldown_until", blocked.CooldownUntil))
		return fmt.Errorf("%w: %s", core.ErrTooManyLoginAttempts, identity)
	}

	var endpoint *core.ProxyEndpoint
	if selected, ok := p.proxies.SelectNext(); ok {
		endpoint = &selected
	}
	client.SetProxy(endpoint)

	if err := client.Login(ctx, identity, account.Password); err != nil {
		failed := &core.PersistedSession{
			LastLoginAt:   now,
			LoginAttempts: attempts,
		}
		if existing != nil && !existing.Blocked {
			failed.AuthMaterial = existing.AuthMaterial
		}
		if saveErr := p.sessions.Save(ctx, identity, failed); saveErr != nil {
			p.logger.Error("Failed to persist login attempt",
				zap.String("identity", identity),
				zap.Error(saveErr))
		}
		metrics.RecordLogin("failure")
		return fmt.Errorf("login %s (attempt %d of %d): %w", identity, attempts, p.maxAttempts, err)
	}

	fresh := &core.PersistedSession{
		AuthMaterial: client.AuthMaterial(),
		LastLoginAt:  now,
	}
	if err := p.sessions.Save(ctx, identity, fresh); err != nil {
		p.logger.Warn("Failed to persist session",
			zap.String("identity", identity),
			zap.Error(err))
	}

	p.register(identity, client)
	metrics.RecordLogin("success")
	p.logger.Info("Logged in", zap.String("identity", identity))
	return nil
}

// NextClient returns the next client under quota with a freshly selected
// proxy attached, or core.ErrNoAvailableCredentials.
func (p *CredentialPool) NextClient(ctx context.Context) (feed.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	available := make([]bool, len(p.accounts))
	count := 0
	for i, account := range p.accounts {
		s, ok := p.slots[account.Username]
		if !ok {
			continue
		}
		s.usage.expire(now, p.quota)
		available[i] = s.usage.available(now, p.quota)
		if available[i] {
			count++
		}
	}
	metrics.SetPoolAvailable(credentialPoolName, count)

	idx := p.rotor.pick(available)
	if idx < 0 {
		metrics.RecordPoolExhausted(credentialPoolName)
		return nil, core.ErrNoAvailableCredentials
	}

	s := p.slots[p.accounts[idx].Username]
	s.usage.record(now, p.quota)

	var endpoint *core.ProxyEndpoint
	if selected, ok := p.proxies.SelectNext(); ok {
		endpoint = &selected
	}
	s.client.SetProxy(endpoint)
	return s.client, nil
}

// RefreshSessions checks every registered session and logs in again when it
// is no longer valid. Identities without a slot get a fresh initialize
// attempt so they recover once their cooldown has elapsed.
func (p *CredentialPool) RefreshSessions(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	for _, account := range p.accounts {
		identity := account.Username
		client, registered := p.client(identity)
		if !registered {
			if err := p.initializeAccount(ctx, account); err != nil {
				p.logger.Warn("Identity still unavailable",
					zap.String("identity", identity),
					zap.Error(err))
			}
			continue
		}

		valid, err := client.CheckSession(ctx)
		if err == nil && valid {
			continue
		}
		p.logger.Info("Session expired, logging in again",
			zap.String("identity", identity),
			zap.Error(err))

		if err := p.relogin(ctx, account, client); err != nil {
			p.unregister(identity)
			p.logger.Warn("Failed to refresh session",
				zap.String("identity", identity),
				zap.Error(err))
		}
	}
}

func (p *CredentialPool) relogin(ctx context.Context, account core.Account, client feed.Client) error {
	p.loginMu.Lock()
	defer p.loginMu.Unlock()
	return p.login(ctx, account, client)
}

// Registered returns the number of identities with a usable slot.
func (p *CredentialPool) Registered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.slots)
}

// Stats returns a snapshot of every configured identity in configured order.
func (p *CredentialPool) Stats() []CredentialStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	stats := make([]CredentialStats, 0, len(p.accounts))
	for _, account := range p.accounts {
		entry := CredentialStats{Identity: account.Username}
		if s, ok := p.slots[account.Username]; ok {
			entry.Registered = true
			entry.RequestCount = s.usage.requestCount
			entry.WindowStart = s.usage.windowStart
			entry.LastUsedAt = s.usage.lastUsedAt
			entry.Available = s.usage.available(now, p.quota)
		}
		stats = append(stats, entry)
	}
	return stats
}

// States returns the persisted form of every registered slot keyed by
// resource key.
func (p *CredentialPool) States() map[string]core.RateLimitState {
	p.mu.Lock()
	defer p.mu.Unlock()

	states := make(map[string]core.RateLimitState, len(p.slots))
	for identity, s := range p.slots {
		states[core.ResourceKey(core.ResourceCredential, identity)] = s.usage.state()
	}
	return states
}

func (p *CredentialPool) register(identity string, client feed.Client) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if existing, ok := p.slots[identity]; ok {
		existing.client = client
		return
	}
	p.slots[identity] = &slot{
		identity: identity,
		client:   client,
		usage:    usage{lastUsedAt: p.now()},
	}
}

func (p *CredentialPool) unregister(identity string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.slots, identity)
}

func (p *CredentialPool) client(identity string) (feed.Client, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.slots[identity]
	if !ok {
		return nil, false
	}
	return s.client, true
}

func (p *CredentialPool) now() time.Time {
	if p != nil && p.clock != nil {
		return p.clock()
	}
	return time.Now().UTC()
}
