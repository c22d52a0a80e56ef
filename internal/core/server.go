// Package core provides the API chassis for the FreshTrack platform.
// It creates a chi router compatible with both standard HTTP (for local dev)
// and AWS Lambda Proxy Integration. It enforces cross-cutting concerns,
// request correlation, logging, panic recovery, and rate limiting, before
// requests reach domain handlers.
package core

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"freshtrack/internal/config"
	"freshtrack/internal/types"
)

// MetricsCollector records API telemetry. Implementations push request
// latency and count metrics to CloudWatch or equivalent backends.
type MetricsCollector interface {
	RecordRequest(method, endpoint, status string, duration time.Duration)
}

// Server bundles the dependencies of the FreshTrack API, allowing injection
// during testing and distinct wiring per environment.
type Server struct {
	Config  *config.Config
	Logger  types.Logger
	Metrics MetricsCollector

	// HealthProbes are checked by GET /health. Registered by main after the
	// backing resources exist.
	HealthProbes []HealthProbe

	// V1RouteRegistrars mount domain handler routes under /v1. Populated by
	// the application entry point; the indirection avoids import cycles
	// between core and handler packages.
	V1RouteRegistrars []func(chi.Router)

	router  *chi.Mux
	closers []func() error
}

// NewServer initializes the chassis and prepares the server for route
// mounting. Fail-fast on missing critical dependencies.
func NewServer(cfg *config.Config, logger types.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config: cfg,
		Logger: logger,
		router: chi.NewRouter(),
	}, nil
}

// Handler returns the http.Handler for the router. Used by
// http.ListenAndServe locally and the Lambda adapter in production.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// OnShutdown registers a cleanup function run during Shutdown, typically a
// database pool close.
func (s *Server) OnShutdown(fn func() error) {
	s.closers = append(s.closers, fn)
}

// Shutdown runs registered cleanup functions in reverse order.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown initiated")

	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.Logger.Error("shutdown cleanup failed", "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	s.Logger.Info("server shutdown complete")
	return firstErr
}
