// Package core provides the HTTP chassis for the Primos site. It creates a chi
// router that serves both standard HTTP (local and container deployments) and
// AWS Lambda function URLs (via httpadapter in cmd/server), and applies the
// cross-cutting middleware before requests reach page or payment handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"primos/internal/config"
)

// MetricsCollector records per-request telemetry.
type MetricsCollector interface {
	RecordRequest(ctx context.Context, method, route, status string, duration time.Duration)
}

// RouteRegistrar mounts a group of routes on the root router.
type RouteRegistrar func(r chi.Router)

// Server holds the dependencies shared by all routes.
type Server struct {
	Config       *config.Config
	Logger       *slog.Logger
	Validator    *Validator
	Metrics      MetricsCollector
	HealthProbes []HealthProbe

	// RouteRegistrars are populated by cmd/server before MountRoutes. The
	// indirection keeps core free of imports on handler packages.
	RouteRegistrars []RouteRegistrar

	// RequestTimeout overrides defaultRequestTimeout when positive.
	RequestTimeout time.Duration

	router *chi.Mux
}

// NewServer validates the required dependencies and prepares an empty router.
// The caller mounts routes with MountRoutes.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(logger),
		router:    chi.NewRouter(),
	}, nil
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration in tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Shutdown flushes metrics that support it. HTTP connection draining is the
// caller's job (http.Server.Shutdown).
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown initiated")

	if f, ok := s.Metrics.(interface{ Flush(context.Context) error }); ok {
		if err := f.Flush(ctx); err != nil {
			s.Logger.Error("error flushing metrics", "error", err)
			return fmt.Errorf("flushing metrics: %w", err)
		}
	}

	s.Logger.Info("server shutdown complete")
	return nil
}
