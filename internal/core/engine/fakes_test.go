package engine

import (
	"context"
	"sync"
	"time"

	"github.com/feedwatch/feedwatch/internal/core"
	"github.com/feedwatch/feedwatch/internal/feed"
)

type memTargets struct {
	mu        sync.Mutex
	targets   []core.WatchTarget
	updates   int
	listCalls int
	listErr   error
}

func newTargets(targets ...core.WatchTarget) *memTargets {
	return &memTargets{targets: targets}
}

func (m *memTargets) ListTargets(ctx context.Context) ([]core.WatchTarget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	if m.listErr != nil {
		return nil, m.listErr
	}
	return append([]core.WatchTarget(nil), m.targets...), nil
}

func (m *memTargets) UpdateLastSeen(ctx context.Context, handle, itemID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates++
	for i := range m.targets {
		if m.targets[i].Handle == handle {
			m.targets[i].LastSeenItemID = itemID
		}
	}
	return nil
}

func (m *memTargets) lastSeen(handle string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, target := range m.targets {
		if target.Handle == handle {
			return target.LastSeenItemID
		}
	}
	return ""
}

func (m *memTargets) updateCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updates
}

// feedStub serves canned items and queued errors per handle.
type feedStub struct {
	mu    sync.Mutex
	items map[string]*core.Item
	errs  map[string][]error
	calls map[string]int
	// gate, when set, blocks LatestItem until closed.
	gate chan struct{}
}

func newFeedStub() *feedStub {
	return &feedStub{
		items: map[string]*core.Item{},
		errs:  map[string][]error{},
		calls: map[string]int{},
	}
}

func (f *feedStub) setItem(handle string, item *core.Item) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[handle] = item
}

func (f *feedStub) failNext(handle string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[handle] = append(f.errs[handle], errs...)
}

func (f *feedStub) callCount(handle string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[handle]
}

func (f *feedStub) Login(ctx context.Context, identity, password string) error { return nil }
func (f *feedStub) AuthMaterial() []string                                     { return nil }
func (f *feedStub) SetAuthMaterial(material []string)                          {}
func (f *feedStub) SetProxy(endpoint *core.ProxyEndpoint)                      {}
func (f *feedStub) CheckSession(ctx context.Context) (bool, error)             { return true, nil }

func (f *feedStub) LatestItem(ctx context.Context, handle string) (*core.Item, error) {
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[handle]++
	if queued := f.errs[handle]; len(queued) > 0 {
		f.errs[handle] = queued[1:]
		return nil, queued[0]
	}
	item := f.items[handle]
	if item == nil {
		return nil, nil
	}
	copied := *item
	return &copied, nil
}

type staticSource struct {
	client feed.Client
	err    error
}

func (s staticSource) NextClient(ctx context.Context) (feed.Client, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.client, nil
}

type recordingSink struct {
	mu   sync.Mutex
	sent []core.Notification
	err  error
}

func (r *recordingSink) Send(ctx context.Context, n core.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, n)
	return nil
}

func (r *recordingSink) notifications() []core.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.Notification(nil), r.sent...)
}

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return nil
}

func (s *sleepRecorder) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

type countingRefresher struct {
	mu    sync.Mutex
	calls int
}

func (c *countingRefresher) RefreshSessions(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
}

func (c *countingRefresher) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}
