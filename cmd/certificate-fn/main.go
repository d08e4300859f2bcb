// Package main is the entry point for the certificate Lambda function.
//
// The function serves the same routes as the HTTP server behind API Gateway
// proxy integration. Bodies without a Content-Type are read as JSON, and the
// PNG comes back base64 encoded with isBase64Encoded set. The roster and
// default template are bundled next to the binary unless configuration
// points elsewhere.
//
// Cold start:
//  1. Load configuration (SSM pointers resolved outside local).
//  2. Assemble the issuance stack and mount the router.
//  3. Register the proxy adapter with lambda.Start.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"certgen/internal/api/handlers"
	"certgen/internal/api/lambdaproxy"
	"certgen/internal/app"
	"certgen/internal/config"
	"certgen/internal/core"
)

func main() {
	cfg, err := config.LoadConfig(secretProvider())
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stderr, nil)).Error("loading configuration", "error", err)
		os.Exit(1)
	}
	logger := newLogger(cfg.LogLevel, os.Stdout)

	adapter, err := newAdapter(context.Background(), cfg, logger, app.Deps{})
	if err != nil {
		logger.Error("cold start failed", "error", err)
		os.Exit(1)
	}

	lambda.Start(adapter.Proxy)
}

// secretProvider resolves SSM pointers outside local. AWS_ENDPOINT_URL
// points the client at LocalStack.
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

// newLogger writes JSON logs at level to w. CloudWatch picks up stdout.
func newLogger(level string, w io.Writer) *slog.Logger {
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
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// newAdapter builds the router the proxy adapter dispatches to. Database
// pools live for the container's lifetime and are never closed explicitly.
func newAdapter(ctx context.Context, cfg *config.Config, logger *slog.Logger, deps app.Deps) (*lambdaproxy.Adapter, error) {
	a, err := app.Build(ctx, cfg, logger, deps)
	if err != nil {
		return nil, fmt.Errorf("building issuance stack: %w", err)
	}

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return nil, err
	}
	srv.HealthProbes = a.Probes

	certs := handlers.NewCertificateHandler(a.Service, srv.Validator, logger)
	srv.RouteRegistrars = append(srv.RouteRegistrars, certs.RegisterRoutes)
	srv.MountRoutes()

	adapter := lambdaproxy.New(srv.Handler())
	adapter.DefaultContentType = "application/json"

	logger.Info("certificate function ready",
		"version", cfg.Build.Version,
		"roster_backend", cfg.Roster.Backend,
		"template_backend", cfg.Template.Backend,
	)
	return adapter, nil
}
