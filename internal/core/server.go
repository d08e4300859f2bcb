// Package core provides the HTTP chassis for certgen. It builds a chi router
// usable both by the standalone server and behind the Lambda proxy adapter,
// and applies the cross-cutting concerns (recovery, request IDs, logging,
// CORS, body limits, rate limiting) before requests reach handlers.
package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"certgen/internal/config"
)

// RouteRegistrar mounts a group of handlers. Handler packages provide these
// so that core never imports them.
type RouteRegistrar func(r chi.Router)

// Server holds the router and everything middleware needs.
type Server struct {
	Config         *config.Config
	Logger         *slog.Logger
	Validator      *Validator
	HealthProbes   []HealthProbe
	RateLimitStore RateLimitStore

	// RouteRegistrars are applied by MountRoutes, in order.
	RouteRegistrars []RouteRegistrar

	// closers are released by Shutdown.
	closers []io.Closer

	router *chi.Mux
}

// NewServer validates its inputs and prepares an empty router. Routes are
// mounted separately by MountRoutes.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	s := &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(logger),
		router:    chi.NewRouter(),
	}

	if cfg.Server.RateLimitPerMinute > 0 {
		s.RateLimitStore = NewMemoryRateLimitStore()
	}

	return s, nil
}

// Handler returns the http.Handler interface for the router.
// Used by http.Server (local) and the Lambda adapter.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// OnShutdown registers c to be closed by Shutdown.
func (s *Server) OnShutdown(c io.Closer) {
	s.closers = append(s.closers, c)
}

// Shutdown releases registered resources such as database pools.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.InfoContext(ctx, "server shutdown initiated")

	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			s.Logger.ErrorContext(ctx, "error closing resource", "error", err)
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("closing resources: %w", errors.Join(errs...))
	}

	s.Logger.InfoContext(ctx, "server shutdown complete")
	return nil
}
