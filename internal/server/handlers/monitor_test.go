package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/feedwatch/feedwatch/internal/core"
	"github.com/feedwatch/feedwatch/internal/core/engine"
	"github.com/feedwatch/feedwatch/internal/core/pool"
	"github.com/feedwatch/feedwatch/internal/core/store"
	apperrors "github.com/feedwatch/feedwatch/internal/errors"
)

type stubEngine struct{ stats engine.Stats }

func (s stubEngine) Stats() engine.Stats { return s.stats }

type stubProxies struct{}

func (stubProxies) Stats() []pool.ProxyStats {
	return []pool.ProxyStats{{URL: "http://p1", RequestCount: 2, Available: true}}
}

type memTargetStore struct {
	mu      sync.Mutex
	targets []core.WatchTarget
}

func (m *memTargetStore) ListTargets(ctx context.Context) ([]core.WatchTarget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]core.WatchTarget(nil), m.targets...), nil
}

func (m *memTargetStore) AddTarget(ctx context.Context, handle string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, target := range m.targets {
		if target.Handle == handle {
			return fmt.Errorf("%w: @%s", store.ErrTargetExists, handle)
		}
	}
	m.targets = append(m.targets, core.WatchTarget{Handle: handle})
	return nil
}

func (m *memTargetStore) RemoveTarget(ctx context.Context, handle string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, target := range m.targets {
		if target.Handle == handle {
			m.targets = append(m.targets[:i], m.targets[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: @%s", store.ErrTargetNotFound, handle)
}

func monitorRouter() http.Handler {
	r := chi.NewRouter()
	r.Get("/stats", StatsHandler)
	r.Get("/targets", ListTargetsHandler)
	r.Post("/targets", AddTargetHandler)
	r.Delete("/targets/{handle}", RemoveTargetHandler)
	return r
}

func serve(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	monitorRouter().ServeHTTP(rec, req)
	return rec
}

func TestStatsHandler(t *testing.T) {
	SetMonitor(&Monitor{
		Engine:  stubEngine{stats: engine.Stats{TotalChecks: 7, Uptime: 90 * time.Second}},
		Proxies: stubProxies{},
	})
	t.Cleanup(func() { SetMonitor(nil) })

	rec := serve(t, http.MethodGet, "/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp StatsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.EqualValues(t, 7, resp.Engine.TotalChecks)
	require.InDelta(t, 90.0, resp.UptimeSeconds, 0.001)
	require.Len(t, resp.Proxies, 1)
	require.NotNil(t, resp.Credentials)
	require.Empty(t, resp.Credentials)
}

func TestStatsHandlerWithoutMonitor(t *testing.T) {
	SetMonitor(nil)

	rec := serve(t, http.MethodGet, "/stats", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body apperrors.HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, "SERVICE_UNAVAILABLE", body.Error.Code)
}

func TestTargetHandlersLifecycle(t *testing.T) {
	targets := &memTargetStore{}
	SetMonitor(&Monitor{Targets: targets})
	t.Cleanup(func() { SetMonitor(nil) })

	rec := serve(t, http.MethodPost, "/targets", `{"handle":"@alice"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = serve(t, http.MethodPost, "/targets", `{"handle":"alice"}`)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = serve(t, http.MethodPost, "/targets", `{"handle":"  "}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, http.MethodPost, "/targets", `not json`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, http.MethodGet, "/targets", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list TargetsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	require.Equal(t, 1, list.Count)
	require.Equal(t, "alice", list.Targets[0].Handle)

	rec = serve(t, http.MethodDelete, "/targets/alice", "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = serve(t, http.MethodDelete, "/targets/alice", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}
