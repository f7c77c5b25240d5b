package server

import (
	"github.com/fulmenhq/gofulmen/signals"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/feedwatch/feedwatch/internal/observability"
	"github.com/feedwatch/feedwatch/internal/server/handlers"
)

const adminSignalPath = "/admin/signal"

// Admin signal endpoint limits, per minute.
const (
	adminRateLimit = 10
	adminRateBurst = 5
)

func (s *Server) registerRoutes() {
	s.router.Get("/health", handlers.HealthHandler)
	s.router.Get("/health/live", handlers.LivenessHandler)
	s.router.Get("/health/ready", handlers.ReadinessHandler)
	s.router.Get("/health/startup", handlers.StartupHandler)

	s.router.Get("/version", handlers.VersionHandler)
	s.router.Get("/metrics", MetricsHandler)

	s.router.Get("/stats", handlers.StatsHandler)
	s.router.Route("/targets", func(r chi.Router) {
		r.Get("/", handlers.ListTargetsHandler)
		r.Post("/", handlers.AddTargetHandler)
		r.Delete("/{handle}", handlers.RemoveTargetHandler)
	})
}

// EnableAdminSignals mounts POST /admin/signal behind bearer token auth.
// Signals sent there (HUP reloads, TERM drains) go through the global
// signals manager. An empty token leaves the endpoint unmounted.
func (s *Server) EnableAdminSignals(token string) bool {
	logger := observability.ServerLogger
	if token == "" {
		if logger != nil {
			logger.Debug("Admin signal endpoint disabled")
		}
		return false
	}

	handler := signals.NewHTTPHandler(signals.HTTPConfig{
		TokenAuth: token,
		RateLimit: adminRateLimit,
		RateBurst: adminRateBurst,
	})
	s.router.Post(adminSignalPath, handler.ServeHTTP)

	if logger != nil {
		logger.Warn("Admin signal endpoint enabled; keep this listener off public networks",
			zap.String("path", adminSignalPath),
			zap.Int("rate_limit_per_min", adminRateLimit),
			zap.Int("burst", adminRateBurst))
	}
	return true
}
