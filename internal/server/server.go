package server

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	apperrors "github.com/feedwatch/feedwatch/internal/errors"
	"github.com/feedwatch/feedwatch/internal/observability"
	servermw "github.com/feedwatch/feedwatch/internal/server/middleware"
)

const (
	defaultReadTimeout  = 30 * time.Second
	defaultWriteTimeout = 30 * time.Second
	defaultIdleTimeout  = 120 * time.Second
)

// Server is the monitor's HTTP API: health probes, version, metrics proxy,
// engine stats and watch target management.
type Server struct {
	router *chi.Mux
	http   *http.Server
	addr   string

	// Timeouts applied by Start. Zero keeps the defaults.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// New builds the router. Nothing listens until Start.
func New(host string, port int) *Server {
	r := chi.NewRouter()

	// Recovery sits inside RequestMetrics so a panic is counted as a 500
	// carrying the request ID.
	r.Use(middleware.RealIP, servermw.RequestID, servermw.RequestMetrics, servermw.Recovery)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		apperrors.RespondWithError(w, req, apperrors.NewNotFoundError("The requested resource was not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		apperrors.RespondWithError(w, req, apperrors.NewMethodNotAllowedError("The requested method is not allowed for this resource"))
	})

	s := &Server{
		router: r,
		addr:   net.JoinHostPort(host, strconv.Itoa(port)),
	}
	s.http = &http.Server{Addr: s.addr, Handler: r}
	s.registerRoutes()
	return s
}

// Start listens until Shutdown, returning http.ErrServerClosed then.
func (s *Server) Start() error {
	s.http.ReadTimeout = orDuration(s.ReadTimeout, defaultReadTimeout)
	s.http.WriteTimeout = orDuration(s.WriteTimeout, defaultWriteTimeout)
	s.http.IdleTimeout = orDuration(s.IdleTimeout, defaultIdleTimeout)

	if logger := observability.ServerLogger; logger != nil {
		logger.Info("Starting HTTP server", zap.String("addr", s.addr))
	}
	return s.http.ListenAndServe()
}

// Shutdown stops accepting connections and waits for in-flight requests
// until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	if logger := observability.ServerLogger; logger != nil {
		logger.Info("Shutting down HTTP server", zap.String("addr", s.addr))
	}
	return s.http.Shutdown(ctx)
}

func orDuration(value, fallback time.Duration) time.Duration {
	if value > 0 {
		return value
	}
	return fallback
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr is the host:port Start listens on.
func (s *Server) Addr() string {
	return s.addr
}
