package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/fulmenhq/gofulmen/appidentity"
	"github.com/fulmenhq/gofulmen/crucible"
)

var (
	buildMu      sync.RWMutex
	appVersion   = "dev"
	appCommit    = "unknown"
	appBuildDate = "unknown"
	appIdentity  *appidentity.Identity
)

// SetVersionInfo records the build metadata reported by /version.
func SetVersionInfo(version, commit, buildDate string) {
	buildMu.Lock()
	defer buildMu.Unlock()
	appVersion, appCommit, appBuildDate = version, commit, buildDate
}

// SetAppIdentity sets the identity whose binary name /version reports.
func SetAppIdentity(identity *appidentity.Identity) {
	buildMu.Lock()
	defer buildMu.Unlock()
	appIdentity = identity
}

// VersionResponse is the body of GET /version.
type VersionResponse struct {
	App          AppInfo      `json:"app"`
	Dependencies DepInfo      `json:"dependencies"`
	Runtime      RuntimeInfo  `json:"runtime"`
	Monitor      *MonitorInfo `json:"monitor,omitempty"`
}

type AppInfo struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Commit    string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version,omitempty"`
}

type DepInfo struct {
	Gofulmen string `json:"gofulmen"`
	Crucible string `json:"crucible"`
}

type RuntimeInfo struct {
	Platform      string `json:"platform"`
	NumCPU        int    `json:"num_cpu"`
	NumGoroutines int    `json:"num_goroutines"`
}

// MonitorInfo is present once the polling engine is attached.
type MonitorInfo struct {
	StartedAt     time.Time `json:"started_at"`
	UptimeSeconds float64   `json:"uptime_seconds"`
}

func binaryName() string {
	if appIdentity != nil && appIdentity.BinaryName != "" {
		return appIdentity.BinaryName
	}
	if len(os.Args) > 0 && os.Args[0] != "" {
		return filepath.Base(os.Args[0])
	}
	return "feedwatch"
}

// VersionHandler reports build, dependency and runtime versions.
func VersionHandler(w http.ResponseWriter, r *http.Request) {
	deps := crucible.GetVersion()

	buildMu.RLock()
	response := VersionResponse{
		App: AppInfo{
			Name:      binaryName(),
			Version:   appVersion,
			Commit:    appCommit,
			BuildDate: appBuildDate,
			GoVersion: runtime.Version(),
		},
		Dependencies: DepInfo{Gofulmen: deps.Gofulmen, Crucible: deps.Crucible},
		Runtime: RuntimeInfo{
			Platform:      runtime.GOOS + "/" + runtime.GOARCH,
			NumCPU:        runtime.NumCPU(),
			NumGoroutines: runtime.NumGoroutine(),
		},
	}
	buildMu.RUnlock()

	if m := currentMonitor(); m != nil && m.Engine != nil {
		stats := m.Engine.Stats()
		response.Monitor = &MonitorInfo{StartedAt: stats.StartTime, UptimeSeconds: stats.Uptime.Seconds()}
	}

	writeJSON(w, http.StatusOK, response)
}
