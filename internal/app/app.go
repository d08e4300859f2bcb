// Package app assembles the issuance service from configuration. The HTTP
// server and the serverless function share this wiring; the batch CLI uses
// the pieces directly.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"

	"certgen/internal/config"
	"certgen/internal/core"
	"certgen/internal/db"
	"certgen/internal/issuance"
	"certgen/internal/render"
	"certgen/internal/roster"
	"certgen/internal/storage"
	"certgen/internal/types"
)

// App is the assembled issuance stack plus what the host process must
// expose or release.
type App struct {
	Service *issuance.Service
	Format  roster.Format
	Probes  []core.HealthProbe
	Closers []io.Closer
}

// Close releases every resource in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.Closers) - 1; i >= 0; i-- {
		if err := a.Closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Deps overrides external clients, mainly in tests. Nil fields are built
// from configuration.
type Deps struct {
	AWS     *aws.Config
	Objects *storage.S3Store
	Entries roster.EntrySource
}

// closerFunc adapts a func to io.Closer.
type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// Build constructs the roster loader, template store, renderer and
// issuance service described by cfg.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, deps Deps) (*App, error) {
	a := &App{}

	format, err := roster.ParseFormat(cfg.Roster.Format)
	if err != nil {
		return nil, err
	}
	// NULL names in the table are the no-name marker.
	if cfg.Roster.Backend == "postgres" {
		format = roster.FormatTabular
	}
	a.Format = format

	needsAWS := cfg.Roster.Backend == "s3" || cfg.Template.Backend == "s3" || cfg.Observability.EnableMetrics
	var awsCfg aws.Config
	switch {
	case deps.AWS != nil:
		awsCfg = *deps.AWS
	case needsAWS:
		awsCfg, err = storage.LoadAWSConfig(ctx, cfg.AWS.Region)
		if err != nil {
			return nil, err
		}
	}

	objects := deps.Objects
	if objects == nil && (cfg.Roster.Backend == "s3" || cfg.Template.Backend == "s3") {
		objects = storage.NewS3Store(storage.NewS3Client(awsCfg, cfg.AWS.EndpointURL))
	}

	loader, err := a.rosterLoader(ctx, cfg, format, objects, deps.Entries)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	templates := a.templateStore(cfg, objects)
	renderer, err := render.NewRenderer(templates, render.Options{
		FontPath: cfg.Template.FontPath,
		Size:     cfg.Template.FontSize,
		Color:    cfg.Template.TextColor,
	})
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("building renderer: %w", err)
	}

	opts := []issuance.Option{issuance.WithLogger(logger)}
	if cfg.Observability.EnableMetrics {
		cw := cloudwatch.NewFromConfig(awsCfg)
		opts = append(opts, issuance.WithMetrics(
			issuance.NewCloudWatchMetrics(cw, cfg.Observability.MetricNamespace, types.NewSlogAdapter(logger)),
		))
	}

	a.Service = issuance.NewService(loader, format, renderer, opts...)
	return a, nil
}

func (a *App) rosterLoader(ctx context.Context, cfg *config.Config, format roster.Format, objects *storage.S3Store, entries roster.EntrySource) (roster.Loader, error) {
	layout := roster.Layout{
		Format:     format,
		GlobalName: globalRosterName(cfg.Roster, format),
		EventDir:   cfg.Roster.Dir,
	}

	switch cfg.Roster.Backend {
	case "s3":
		bucket := cfg.Roster.Bucket
		a.Probes = append(a.Probes, core.ProbeFunc{
			ProbeName: "roster",
			Fn:        func(ctx context.Context) error { return objects.Ping(ctx, bucket) },
		})
		return roster.NewS3Loader(objects, bucket, cfg.Roster.Prefix, layout), nil

	case "postgres":
		if entries == nil {
			pool, err := db.NewPool(ctx, db.PoolConfig{
				URL:               cfg.Database.URL.Unmask(),
				MaxConns:          int32(cfg.Database.MaxConns),
				MinConns:          int32(cfg.Database.MinConns),
				MaxConnLifetime:   cfg.Database.MaxConnLifetime,
				HealthCheckPeriod: cfg.Database.HealthCheckPeriod,
			})
			if err != nil {
				return nil, fmt.Errorf("connecting roster database: %w", err)
			}
			a.Closers = append(a.Closers, closerFunc(func() error { pool.Close(); return nil }))
			repo := db.NewRosterRepository(pool)
			a.Probes = append(a.Probes, core.ProbeFunc{ProbeName: "database", Fn: repo.Ping})
			entries = repo
		}
		return roster.NewPostgresLoader(entries), nil

	default:
		loader := roster.NewDiskLoader(layout)
		a.Probes = append(a.Probes, core.ProbeFunc{
			ProbeName: "roster",
			Fn: func(ctx context.Context) error {
				_, err := loader.Load(ctx, "")
				return err
			},
		})
		return loader, nil
	}
}

func (a *App) templateStore(cfg *config.Config, objects *storage.S3Store) render.TemplateStore {
	layout := render.TemplateLayout{Dir: cfg.Template.Dir, Default: cfg.Template.Default}

	if cfg.Template.Backend == "s3" {
		bucket := cfg.Template.Bucket
		a.Probes = append(a.Probes, core.ProbeFunc{
			ProbeName: "templates",
			Fn:        func(ctx context.Context) error { return objects.Ping(ctx, bucket) },
		})
		return render.NewS3TemplateStore(objects, bucket, cfg.Template.Prefix, layout)
	}
	store := render.NewDiskTemplateStore(layout)
	a.Probes = append(a.Probes, core.ProbeFunc{
		ProbeName: "templates",
		Fn: func(ctx context.Context) error {
			_, err := store.Open(ctx, "")
			return err
		},
	})
	return store
}

func globalRosterName(rc config.RosterConfig, format roster.Format) string {
	if format == roster.FormatTabular {
		return rc.TabularPath
	}
	return rc.FlatPath
}
