package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/feedwatch/feedwatch/internal/core"
	"github.com/feedwatch/feedwatch/internal/core/engine"
	"github.com/feedwatch/feedwatch/internal/core/pool"
	"github.com/feedwatch/feedwatch/internal/core/store"
	apperrors "github.com/feedwatch/feedwatch/internal/errors"
	"github.com/feedwatch/feedwatch/internal/metrics"
)

// TargetStore manages watch targets for the HTTP API.
type TargetStore interface {
	ListTargets(ctx context.Context) ([]core.WatchTarget, error)
	AddTarget(ctx context.Context, handle string) error
	RemoveTarget(ctx context.Context, handle string) error
}

// Monitor exposes the running monitor to the HTTP API. Nil members are
// reported as empty.
type Monitor struct {
	Engine      interface{ Stats() engine.Stats }
	Proxies     interface{ Stats() []pool.ProxyStats }
	Credentials interface{ Stats() []pool.CredentialStats }
	Targets     TargetStore
}

// StatsResponse is the body of GET /stats.
type StatsResponse struct {
	Engine        engine.Stats           `json:"engine"`
	UptimeSeconds float64                `json:"uptime_seconds"`
	Proxies       []pool.ProxyStats      `json:"proxies"`
	Credentials   []pool.CredentialStats `json:"credentials"`
}

// TargetsResponse is the body of GET /targets.
type TargetsResponse struct {
	Targets []core.WatchTarget `json:"targets"`
	Count   int                `json:"count"`
}

type addTargetRequest struct {
	Handle string `json:"handle"`
}

var (
	monitorMu sync.RWMutex
	monitor   *Monitor
)

// SetMonitor installs the monitor served by the stats and target handlers.
func SetMonitor(m *Monitor) {
	monitorMu.Lock()
	defer monitorMu.Unlock()
	monitor = m
}

func currentMonitor() *Monitor {
	monitorMu.RLock()
	defer monitorMu.RUnlock()
	return monitor
}

// StatsHandler reports engine counters and pool usage.
func StatsHandler(w http.ResponseWriter, r *http.Request) {
	m := currentMonitor()
	if m == nil || m.Engine == nil {
		apperrors.RespondWithError(w, r, apperrors.NewServiceUnavailableError("Monitor is not running"))
		return
	}

	stats := m.Engine.Stats()
	response := StatsResponse{
		Engine:        stats,
		UptimeSeconds: stats.Uptime.Seconds(),
		Proxies:       []pool.ProxyStats{},
		Credentials:   []pool.CredentialStats{},
	}
	if m.Proxies != nil {
		response.Proxies = append(response.Proxies, m.Proxies.Stats()...)
	}
	if m.Credentials != nil {
		response.Credentials = append(response.Credentials, m.Credentials.Stats()...)
	}
	writeJSON(w, http.StatusOK, response)
}

// ListTargetsHandler lists watched handles.
func ListTargetsHandler(w http.ResponseWriter, r *http.Request) {
	targets, ok := targetStore(w, r)
	if !ok {
		return
	}

	list, err := targets.ListTargets(r.Context())
	if err != nil {
		apperrors.RespondWithError(w, r, apperrors.WrapDatabaseError(r.Context(), err, "Failed to list targets"))
		return
	}
	if list == nil {
		list = []core.WatchTarget{}
	}
	writeJSON(w, http.StatusOK, TargetsResponse{Targets: list, Count: len(list)})
}

// AddTargetHandler starts watching the handle in the request body.
func AddTargetHandler(w http.ResponseWriter, r *http.Request) {
	targets, ok := targetStore(w, r)
	if !ok {
		return
	}

	var req addTargetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperrors.RespondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "Request body must be JSON"))
		return
	}
	handle := core.NormalizeHandle(req.Handle)
	if handle == "" {
		apperrors.RespondWithError(w, r, apperrors.NewInvalidInputError("handle is required"))
		return
	}

	err := targets.AddTarget(r.Context(), handle)
	recordTargetOperation("target_add", err)
	if err != nil {
		message := "Failed to add target"
		if errors.Is(err, store.ErrTargetExists) {
			message = "@" + handle + " is already being monitored"
		}
		apperrors.RespondWithError(w, r, apperrors.FromDomain(r.Context(), err, message))
		return
	}
	writeJSON(w, http.StatusCreated, core.WatchTarget{Handle: handle})
}

// RemoveTargetHandler stops watching the handle in the path.
func RemoveTargetHandler(w http.ResponseWriter, r *http.Request) {
	targets, ok := targetStore(w, r)
	if !ok {
		return
	}

	handle := core.NormalizeHandle(chi.URLParam(r, "handle"))
	if handle == "" {
		apperrors.RespondWithError(w, r, apperrors.NewInvalidInputError("handle is required"))
		return
	}

	err := targets.RemoveTarget(r.Context(), handle)
	recordTargetOperation("target_remove", err)
	if err != nil {
		message := "Failed to remove target"
		if errors.Is(err, store.ErrTargetNotFound) {
			message = "@" + handle + " is not being monitored"
		}
		apperrors.RespondWithError(w, r, apperrors.FromDomain(r.Context(), err, message))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func recordTargetOperation(operation string, err error) {
	metrics.RecordOperation(operation, err == nil)
	if err != nil {
		metrics.RecordOperationError(operation, strings.ToLower(apperrors.CodeFor(err)))
	}
}

func targetStore(w http.ResponseWriter, r *http.Request) (TargetStore, bool) {
	m := currentMonitor()
	if m == nil || m.Targets == nil {
		apperrors.RespondWithError(w, r, apperrors.NewServiceUnavailableError("Target store is not available"))
		return nil, false
	}
	return m.Targets, true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
