// Package main is the entry point for the certgen HTTP server.
//
// It loads configuration, assembles the issuance stack, mounts the
// certificate handler on the core chassis and serves until SIGINT or
// SIGTERM, then drains in-flight requests and releases the roster pool.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"certgen/internal/api/handlers"
	"certgen/internal/app"
	"certgen/internal/config"
	"certgen/internal/core"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig(secretProvider())
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("certgen server starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
		"roster_backend", cfg.Roster.Backend,
		"roster_format", cfg.Roster.Format,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, err := buildServer(ctx, cfg, logger, app.Deps{})
	if err != nil {
		return err
	}

	return serve(ctx, srv, cfg, logger)
}

// secretProvider returns the SSM provider outside local runs.
func secretProvider() config.SecretProvider {
	env := os.Getenv("APP_ENV")
	if env == "" || env == "local" {
		return nil
	}
	var opts []config.SSMOption
	if endpoint := os.Getenv("AWS_ENDPOINT_URL"); endpoint != "" {
		opts = append(opts, config.WithSSMEndpoint(endpoint))
	}
	return config.NewSSMProvider(os.Getenv("AWS_REGION"), opts...)
}

// buildServer wires the issuance stack into a mounted core.Server.
func buildServer(ctx context.Context, cfg *config.Config, logger *slog.Logger, deps app.Deps) (*core.Server, error) {
	a, err := app.Build(ctx, cfg, logger, deps)
	if err != nil {
		return nil, fmt.Errorf("building issuance stack: %w", err)
	}

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("creating server: %w", err)
	}
	srv.HealthProbes = a.Probes
	srv.OnShutdown(a)

	certs := handlers.NewCertificateHandler(a.Service, srv.Validator, logger)
	srv.RouteRegistrars = append(srv.RouteRegistrars, certs.RegisterRoutes)

	srv.MountRoutes()
	return srv, nil
}

// serve runs the listener until ctx is cancelled, then shuts down within
// the configured timeout.
func serve(ctx context.Context, srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.Server.RequestTimeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("initiating graceful shutdown")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "error", err)
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a JSON slog.Logger for the given level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
