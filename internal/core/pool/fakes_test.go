package pool

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/feedwatch/feedwatch/internal/core"
	"github.com/feedwatch/feedwatch/internal/core/session"
	"github.com/feedwatch/feedwatch/internal/core/store"
	"github.com/feedwatch/feedwatch/internal/feed"
)

var errBadPassword = errors.New("unauthorized: bad password")

type fakeBackend struct {
	mu      sync.Mutex
	fail    map[string]bool
	valid   map[string]bool
	logins  map[string]int
	clients []*fakeClient
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		fail:   map[string]bool{},
		valid:  map[string]bool{},
		logins: map[string]int{},
	}
}

func (b *fakeBackend) New() feed.Client {
	b.mu.Lock()
	defer b.mu.Unlock()
	client := &fakeClient{backend: b}
	b.clients = append(b.clients, client)
	return client
}

func (b *fakeBackend) setFail(identity string, fail bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fail[identity] = fail
}

func (b *fakeBackend) invalidate(material string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.valid, material)
}

func (b *fakeBackend) loginCount(identity string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.logins[identity]
}

type fakeClient struct {
	backend *fakeBackend

	mu       sync.Mutex
	material []string
	proxy    *core.ProxyEndpoint
}

func (c *fakeClient) Login(ctx context.Context, identity, password string) error {
	c.backend.mu.Lock()
	c.backend.logins[identity]++
	fail := c.backend.fail[identity]
	material := "token=" + identity
	if !fail {
		c.backend.valid[material] = true
	}
	c.backend.mu.Unlock()

	if fail {
		return errBadPassword
	}
	c.SetAuthMaterial([]string{material})
	return nil
}

func (c *fakeClient) AuthMaterial() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.material...)
}

func (c *fakeClient) SetAuthMaterial(material []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.material = append([]string(nil), material...)
}

func (c *fakeClient) SetProxy(endpoint *core.ProxyEndpoint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.proxy = endpoint
}

func (c *fakeClient) currentProxy() *core.ProxyEndpoint {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.proxy
}

func (c *fakeClient) LatestItem(ctx context.Context, handle string) (*core.Item, error) {
	return nil, nil
}

func (c *fakeClient) CheckSession(ctx context.Context) (bool, error) {
	material := c.AuthMaterial()
	c.backend.mu.Lock()
	defer c.backend.mu.Unlock()
	for _, m := range material {
		if c.backend.valid[m] {
			return true, nil
		}
	}
	return false, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newSessions(clock *fakeClock) (*session.Store, *store.MemoryKV) {
	kv := store.NewMemoryKV()
	kv.Clock = clock.Now
	return session.New(kv, zap.NewNop()), kv
}
