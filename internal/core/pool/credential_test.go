package pool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/feedwatch/feedwatch/internal/core"
	"github.com/feedwatch/feedwatch/internal/core/session"
)

type credentialFixture struct {
	pool     *CredentialPool
	backend  *fakeBackend
	sessions *session.Store
	clock    *fakeClock
}

func newCredentialFixture(t *testing.T, accounts []core.Account, quota Quota, proxies *ProxyPool) *credentialFixture {
	t.Helper()
	clock := newFakeClock()
	sessions, _ := newSessions(clock)
	backend := newFakeBackend()

	pool, err := NewCredentialPool(CredentialPoolConfig{
		Accounts:         accounts,
		Quota:            quota,
		MaxLoginAttempts: 3,
		LoginCooldown:    30 * time.Minute,
		Factory:          backend,
		Proxies:          proxies,
		Sessions:         sessions,
		Clock:            clock.Now,
		Logger:           zap.NewNop(),
	})
	require.NoError(t, err)
	return &credentialFixture{pool: pool, backend: backend, sessions: sessions, clock: clock}
}

func accounts(names ...string) []core.Account {
	out := make([]core.Account, 0, len(names))
	for _, name := range names {
		out = append(out, core.Account{Username: name, Password: "pw-" + name})
	}
	return out
}

func TestCredentialPoolRequiresCollaborators(t *testing.T) {
	_, err := NewCredentialPool(CredentialPoolConfig{})
	require.Error(t, err)
}

func TestCredentialPoolInitializeLogsIn(t *testing.T) {
	f := newCredentialFixture(t, accounts("alice", "bob"), Quota{}, nil)

	require.NoError(t, f.pool.Initialize(context.Background()))
	require.Equal(t, 2, f.pool.Registered())
	require.Equal(t, 1, f.backend.loginCount("alice"))

	saved, err := f.sessions.Get(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, []string{"token=alice"}, saved.AuthMaterial)
	require.Equal(t, 0, saved.LoginAttempts)
	require.False(t, saved.Blocked)
}

func TestCredentialPoolRestoresPersistedSession(t *testing.T) {
	f := newCredentialFixture(t, accounts("alice"), Quota{}, nil)
	ctx := context.Background()

	f.backend.valid["token=alice"] = true
	require.NoError(t, f.sessions.Save(ctx, "alice", &core.PersistedSession{
		AuthMaterial: []string{"token=alice"},
	}))

	require.NoError(t, f.pool.Initialize(ctx))
	require.Equal(t, 1, f.pool.Registered())
	require.Zero(t, f.backend.loginCount("alice"))
}

func TestCredentialPoolStaleSessionFallsBackToLogin(t *testing.T) {
	f := newCredentialFixture(t, accounts("alice"), Quota{}, nil)
	ctx := context.Background()

	require.NoError(t, f.sessions.Save(ctx, "alice", &core.PersistedSession{
		AuthMaterial: []string{"token=stale"},
	}))

	require.NoError(t, f.pool.Initialize(ctx))
	require.Equal(t, 1, f.backend.loginCount("alice"))
}

func TestCredentialPoolFailureIsolatedPerIdentity(t *testing.T) {
	f := newCredentialFixture(t, accounts("alice", "bob", "carol"), Quota{}, nil)
	f.backend.setFail("bob", true)

	err := f.pool.Initialize(context.Background())
	require.Error(t, err)
	require.ErrorIs(t, err, errBadPassword)
	require.Equal(t, 2, f.pool.Registered())

	saved, getErr := f.sessions.Get(context.Background(), "bob")
	require.NoError(t, getErr)
	require.NotNil(t, saved)
	require.Equal(t, 1, saved.LoginAttempts)
}

func TestCredentialPoolBlocksAfterTooManyAttempts(t *testing.T) {
	f := newCredentialFixture(t, accounts("alice"), Quota{}, nil)
	ctx := context.Background()
	f.backend.setFail("alice", true)

	for attempt := 1; attempt <= 3; attempt++ {
		err := f.pool.Initialize(ctx)
		require.ErrorIs(t, err, errBadPassword)

		saved, getErr := f.sessions.Get(ctx, "alice")
		require.NoError(t, getErr)
		require.Equal(t, attempt, saved.LoginAttempts)
	}

	err := f.pool.Initialize(ctx)
	require.ErrorIs(t, err, core.ErrTooManyLoginAttempts)
	require.Equal(t, 3, f.backend.loginCount("alice"))

	saved, err := f.sessions.Get(ctx, "alice")
	require.NoError(t, err)
	require.True(t, saved.Blocked)
	require.Equal(t, f.clock.Now().Add(30*time.Minute), saved.CooldownUntil)

	err = f.pool.Initialize(ctx)
	require.ErrorIs(t, err, core.ErrAccountBlocked)

	_, err = f.pool.NextClient(ctx)
	require.ErrorIs(t, err, core.ErrNoAvailableCredentials)

	// Cooldown elapsed: attempts start over and a good password logs in.
	f.clock.Advance(30 * time.Minute)
	f.backend.setFail("alice", false)
	require.NoError(t, f.pool.Initialize(ctx))
	require.Equal(t, 4, f.backend.loginCount("alice"))

	saved, err = f.sessions.Get(ctx, "alice")
	require.NoError(t, err)
	require.False(t, saved.Blocked)
	require.Zero(t, saved.LoginAttempts)

	client, err := f.pool.NextClient(ctx)
	require.NoError(t, err)
	require.NotNil(t, client)
}

func TestCredentialPoolNextClientQuota(t *testing.T) {
	f := newCredentialFixture(t, accounts("alice", "bob"), Quota{RequestsPerWindow: 2, WindowDuration: time.Minute}, nil)
	ctx := context.Background()
	require.NoError(t, f.pool.Initialize(ctx))

	for i := 0; i < 4; i++ {
		_, err := f.pool.NextClient(ctx)
		require.NoError(t, err)
		for _, stat := range f.pool.Stats() {
			require.LessOrEqual(t, stat.RequestCount, 2)
		}
	}

	_, err := f.pool.NextClient(ctx)
	require.ErrorIs(t, err, core.ErrNoAvailableCredentials)

	f.clock.Advance(time.Minute)
	_, err = f.pool.NextClient(ctx)
	require.NoError(t, err)
}

func TestCredentialPoolConcurrentNextClient(t *testing.T) {
	f := newCredentialFixture(t, accounts("alice", "bob", "carol"), Quota{RequestsPerWindow: 5, WindowDuration: time.Hour}, nil)
	ctx := context.Background()
	require.NoError(t, f.pool.Initialize(ctx))

	var mu sync.Mutex
	granted, exhausted := 0, 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.pool.NextClient(ctx)
			mu.Lock()
			defer mu.Unlock()
			if errors.Is(err, core.ErrNoAvailableCredentials) {
				exhausted++
			} else if err == nil {
				granted++
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 15, granted)
	require.Equal(t, 35, exhausted)
	for _, stat := range f.pool.Stats() {
		require.Equal(t, 5, stat.RequestCount)
	}
}

func TestCredentialPoolNextClientRotates(t *testing.T) {
	f := newCredentialFixture(t, accounts("alice", "bob"), Quota{}, nil)
	ctx := context.Background()
	require.NoError(t, f.pool.Initialize(ctx))

	first, err := f.pool.NextClient(ctx)
	require.NoError(t, err)
	second, err := f.pool.NextClient(ctx)
	require.NoError(t, err)
	third, err := f.pool.NextClient(ctx)
	require.NoError(t, err)

	require.NotSame(t, first, second)
	require.Same(t, first, third)
}

func TestCredentialPoolAttachesProxy(t *testing.T) {
	clock := newFakeClock()
	proxies := NewProxyPool(ProxyPoolConfig{
		Endpoints: endpoints("http://p1"),
		Quota:     Quota{RequestsPerWindow: 2, WindowDuration: time.Hour, Cooldown: time.Hour},
		Clock:     clock.Now,
	})
	f := newCredentialFixture(t, accounts("alice"), Quota{}, proxies)
	ctx := context.Background()

	// login consumes the first proxy request
	require.NoError(t, f.pool.Initialize(ctx))

	client, err := f.pool.NextClient(ctx)
	require.NoError(t, err)
	proxy := client.(*fakeClient).currentProxy()
	require.NotNil(t, proxy)
	require.Equal(t, "http://p1", proxy.URL)

	// proxy exhausted: the client continues unproxied
	client, err = f.pool.NextClient(ctx)
	require.NoError(t, err)
	require.Nil(t, client.(*fakeClient).currentProxy())
}

func TestCredentialPoolRefreshSessions(t *testing.T) {
	f := newCredentialFixture(t, accounts("alice", "bob"), Quota{}, nil)
	ctx := context.Background()
	require.NoError(t, f.pool.Initialize(ctx))

	// alice's session expires upstream and she logs in again.
	f.backend.invalidate("token=alice")
	f.pool.RefreshSessions(ctx)
	require.Equal(t, 2, f.backend.loginCount("alice"))
	require.Equal(t, 1, f.backend.loginCount("bob"))
	require.Equal(t, 2, f.pool.Registered())

	// bob's session expires and his re-login fails: his slot is dropped.
	f.backend.invalidate("token=bob")
	f.backend.setFail("bob", true)
	f.pool.RefreshSessions(ctx)
	require.Equal(t, 1, f.pool.Registered())

	// the next sweep retries bob from scratch.
	f.backend.setFail("bob", false)
	f.pool.RefreshSessions(ctx)
	require.Equal(t, 2, f.pool.Registered())
	require.Equal(t, 3, f.backend.loginCount("bob"))
}

func TestCredentialPoolStatesAndStats(t *testing.T) {
	f := newCredentialFixture(t, accounts("alice", "bob"), Quota{}, nil)
	ctx := context.Background()
	f.backend.setFail("bob", true)
	_ = f.pool.Initialize(ctx)

	_, err := f.pool.NextClient(ctx)
	require.NoError(t, err)

	stats := f.pool.Stats()
	require.Len(t, stats, 2)
	require.True(t, stats[0].Registered)
	require.Equal(t, 1, stats[0].RequestCount)
	require.False(t, stats[1].Registered)

	states := f.pool.States()
	require.Len(t, states, 1)
	require.Equal(t, 1, states["credential:alice"].RequestCount)
}

func TestCredentialPoolNoAccounts(t *testing.T) {
	f := newCredentialFixture(t, nil, Quota{}, nil)
	require.NoError(t, f.pool.Initialize(context.Background()))

	_, err := f.pool.NextClient(context.Background())
	require.True(t, errors.Is(err, core.ErrNoAvailableCredentials))
}
