package handlers

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"sort"
	"sync"
	"time"

	fulerrors "github.com/fulmenhq/gofulmen/errors"

	apperrors "github.com/feedwatch/feedwatch/internal/errors"
	"github.com/feedwatch/feedwatch/internal/metrics"
)

// Probe names a health endpoint. Each checker is registered for the probes
// it should take part in.
type Probe string

const (
	ProbeAggregate Probe = "aggregate"
	ProbeLive      Probe = "live"
	ProbeReady     Probe = "ready"
	ProbeStartup   Probe = "startup"
)

const (
	statusHealthy   = "healthy"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"
	statusTimeout   = "timeout"
)

var probeTimeouts = map[Probe]time.Duration{
	ProbeAggregate: 5 * time.Second,
	ProbeLive:      2 * time.Second,
	ProbeReady:     5 * time.Second,
	ProbeStartup:   3 * time.Second,
}

// ErrDegraded marks a check that works but below capacity, for example a
// credential pool with some identities still in login cooldown. It never
// fails a probe.
var ErrDegraded = errors.New("degraded")

// HealthResponse represents the aggregate health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// ProbeResponse represents individual probe response
type ProbeResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// HealthChecker defines interface for health checkable components
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

type registeredChecker struct {
	checker HealthChecker
	probes  []Probe
}

// HealthManager manages health checks and probe states
type HealthManager struct {
	mu       sync.RWMutex
	checkers map[string]registeredChecker
	version  string
}

// NewHealthManager creates a new health manager
func NewHealthManager(version string) *HealthManager {
	return &HealthManager{
		checkers: make(map[string]registeredChecker),
		version:  version,
	}
}

// RegisterChecker registers a checker for the given probes. With no probes
// the checker takes part in every probe. The aggregate /health endpoint
// always runs every checker.
func (hm *HealthManager) RegisterChecker(name string, checker HealthChecker, probes ...Probe) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.checkers[name] = registeredChecker{checker: checker, probes: probes}
}

func (rc registeredChecker) runsFor(probe Probe) bool {
	return probe == ProbeAggregate || len(rc.probes) == 0 || slices.Contains(rc.probes, probe)
}

// runHealthChecks executes the checkers registered for probe in name order.
func (hm *HealthManager) runHealthChecks(ctx context.Context, probe Probe) map[string]string {
	hm.mu.RLock()
	names := make([]string, 0, len(hm.checkers))
	for name, rc := range hm.checkers {
		if rc.runsFor(probe) {
			names = append(names, name)
		}
	}
	checkers := make(map[string]HealthChecker, len(names))
	for _, name := range names {
		checkers[name] = hm.checkers[name].checker
	}
	hm.mu.RUnlock()
	sort.Strings(names)

	checks := make(map[string]string, len(names))
	for _, name := range names {
		if ctx.Err() != nil {
			checks[name] = statusTimeout
			continue
		}
		started := time.Now()
		err := checkers[name].CheckHealth(ctx)
		metrics.RecordHealthCheck(name, err == nil, time.Since(started))
		switch {
		case err == nil:
			checks[name] = statusHealthy
		case errors.Is(err, ErrDegraded):
			checks[name] = statusDegraded
		default:
			checks[name] = statusUnhealthy
		}
	}
	return checks
}

// determineOverallStatus determines overall health status
func (hm *HealthManager) determineOverallStatus(checks map[string]string) string {
	degraded := false
	for _, status := range checks {
		if status == statusUnhealthy {
			return statusUnhealthy
		}
		if status == statusDegraded || status == statusTimeout {
			degraded = true
		}
	}
	if degraded {
		return statusDegraded
	}
	return statusHealthy
}

func (hm *HealthManager) serveProbe(w http.ResponseWriter, r *http.Request, probe Probe) {
	ctx, cancel := context.WithTimeout(r.Context(), probeTimeouts[probe])
	defer cancel()

	checks := hm.runHealthChecks(ctx, probe)
	status := hm.determineOverallStatus(checks)

	if status == statusUnhealthy {
		apperrors.RespondWithError(w, r, probeFailure(probe, status, checks))
		return
	}

	now := time.Now().UTC()
	if probe == ProbeAggregate {
		writeJSON(w, http.StatusOK, HealthResponse{
			Status:    status,
			Version:   hm.version,
			Timestamp: now.Format(time.RFC3339),
			Checks:    checks,
		})
		return
	}
	writeJSON(w, http.StatusOK, ProbeResponse{Status: status, Timestamp: now, Checks: checks})
}

// HealthHandler runs every registered check.
func (hm *HealthManager) HealthHandler(w http.ResponseWriter, r *http.Request) {
	hm.serveProbe(w, r, ProbeAggregate)
}

// LivenessHandler reports whether the process is running.
func (hm *HealthManager) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	hm.serveProbe(w, r, ProbeLive)
}

// ReadinessHandler reports whether the monitor can poll: a reachable store
// and at least one usable credential.
func (hm *HealthManager) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	hm.serveProbe(w, r, ProbeReady)
}

// StartupHandler reports whether initialization completed.
func (hm *HealthManager) StartupHandler(w http.ResponseWriter, r *http.Request) {
	hm.serveProbe(w, r, ProbeStartup)
}

func probeFailure(probe Probe, status string, checks map[string]string) *fulerrors.ErrorEnvelope {
	envelope := fulerrors.NewErrorEnvelope("SERVICE_UNAVAILABLE", string(probe)+" health check failed")

	details := map[string]interface{}{"status": status, "probe": string(probe)}
	if len(checks) > 0 {
		details["checks"] = checks
	}
	envelope = envelope.WithDetails(details)

	var failing []string
	for name, result := range checks {
		if result != statusHealthy {
			failing = append(failing, name)
		}
	}
	sort.Strings(failing)
	contextData := map[string]interface{}{"status": status, "probe": string(probe)}
	if len(failing) > 0 {
		contextData["unhealthy_checks"] = failing
	}
	envelope, _ = envelope.WithContext(contextData)
	return envelope
}

var (
	globalHealthMu      sync.RWMutex
	globalHealthManager *HealthManager
)

// InitHealthManager initializes the global health manager
func InitHealthManager(version string) {
	globalHealthMu.Lock()
	defer globalHealthMu.Unlock()
	globalHealthManager = NewHealthManager(version)
}

// GetHealthManager returns the global health manager
func GetHealthManager() *HealthManager {
	globalHealthMu.RLock()
	defer globalHealthMu.RUnlock()
	return globalHealthManager
}

func globalProbe(probe Probe) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if hm := GetHealthManager(); hm != nil {
			hm.serveProbe(w, r, probe)
			return
		}
		apperrors.RespondWithError(w, r, probeFailure(probe, "unknown", nil))
	}
}

// Route handlers backed by the global manager.
var (
	HealthHandler    = globalProbe(ProbeAggregate)
	LivenessHandler  = globalProbe(ProbeLive)
	ReadinessHandler = globalProbe(ProbeReady)
	StartupHandler   = globalProbe(ProbeStartup)
)
