package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"certgen/internal/config"
	"certgen/internal/external"
	"certgen/internal/issuance"
	"certgen/internal/render"
	"certgen/internal/roster"
	"certgen/internal/storage"
	"certgen/internal/types"
)

// batchOptions holds flag values; empty strings are prompted for.
type batchOptions struct {
	CSVPath      string
	TemplatePath string
	Mode         string
	Subject      string
	MessagePath  string
	OutDir       string
	Archive      bool
	DryRun       bool
	ReportPath   string
	Yes          bool
}

// resolve fills in missing answers in prompt order: CSV, template, mode,
// then subject and message file for email.
func (o *batchOptions) resolve(p *prompter) (types.DeliveryMode, error) {
	var err error
	if o.CSVPath, err = p.ask("Path to the CSV file", o.CSVPath); err != nil {
		return "", err
	}
	if o.TemplatePath, err = p.ask("Path to the certificate template", o.TemplatePath); err != nil {
		return "", err
	}

	var mode types.DeliveryMode
	for {
		answer, err := p.ask("Mode (local / email)", o.Mode)
		if err != nil {
			return "", err
		}
		mode, err = types.ParseDeliveryMode(answer)
		if err == nil && mode != types.DeliveryNone {
			break
		}
		if o.Mode != "" {
			return "", fmt.Errorf("--mode: %q is not local or email", o.Mode)
		}
		fmt.Fprintln(p.out, "  Please answer local or email.")
	}
	o.Mode = string(mode)

	if mode == types.DeliveryEmail {
		if o.Subject, err = p.ask("Email subject", o.Subject); err != nil {
			return "", err
		}
		if o.MessagePath, err = p.ask("Path to the email message file", o.MessagePath); err != nil {
			return "", err
		}
	}
	return mode, nil
}

func (o *batchOptions) reportPath(mode types.DeliveryMode) string {
	if o.ReportPath != "" {
		return o.ReportPath
	}
	if mode == types.DeliveryLocal && !o.DryRun {
		return filepath.Join(o.OutDir, "report.yaml")
	}
	return "report.yaml"
}

func runBatch(ctx context.Context, opts *batchOptions, p *prompter, errOut io.Writer) error {
	mode, err := opts.resolve(p)
	if err != nil {
		return err
	}

	cfg, err := config.LoadConfig(secretProvider())
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	logger := newLogger(cfg.LogLevel, errOut)

	recipients, err := roster.ReadFile(opts.CSVPath, roster.FormatTabular)
	if err != nil {
		return fmt.Errorf("reading %s: %w", opts.CSVPath, err)
	}

	renderer, err := render.NewRenderer(
		render.NewDiskTemplateStore(render.TemplateLayout{
			Dir:     filepath.Dir(opts.TemplatePath),
			Default: filepath.Base(opts.TemplatePath),
		}),
		render.Options{FontPath: cfg.Template.FontPath, Size: cfg.Template.FontSize, Color: cfg.Template.TextColor},
	)
	if err != nil {
		return err
	}

	deliverer, err := newDeliverer(ctx, cfg, opts, mode, logger)
	if err != nil {
		return err
	}

	if deliverer.Mode() == types.DeliveryEmail && !opts.Yes && p.interactive() {
		ok, err := p.confirm(fmt.Sprintf("Send %d emails via %s?", recipients.Len(), cfg.Email.Provider))
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("aborted")
		}
	}

	svc := issuance.NewService(nil, roster.FormatTabular, renderer, issuance.WithLogger(logger))
	report, runErr := svc.RunBatch(ctx, recipients, deliverer, issuance.BatchOptions{Source: opts.CSVPath})

	reportPath := opts.reportPath(mode)
	if err := report.WriteFile(reportPath); err != nil {
		return err
	}

	if opts.Archive && deliverer.Mode() == types.DeliveryLocal {
		path, n, err := issuance.WriteArchiveFile(opts.OutDir, report)
		if err != nil {
			return err
		}
		fmt.Fprintf(errOut, "archived %d certificates to %s\n", n, path)
	}

	printSummary(errOut, report)
	fmt.Fprintf(errOut, "report written to %s\n", reportPath)
	return runErr
}

func newDeliverer(ctx context.Context, cfg *config.Config, opts *batchOptions, mode types.DeliveryMode, logger *slog.Logger) (issuance.Deliverer, error) {
	if opts.DryRun {
		return issuance.NoopDeliverer{}, nil
	}

	if mode == types.DeliveryLocal {
		return issuance.NewDiskDeliverer(opts.OutDir, logger)
	}

	message, err := os.ReadFile(opts.MessagePath)
	if err != nil {
		return nil, fmt.Errorf("reading message file: %w", err)
	}

	deps := external.ProviderDeps{Logger: logger}
	if cfg.Email.Provider == "ses" {
		if deps.AWS, err = storage.LoadAWSConfig(ctx, cfg.AWS.Region); err != nil {
			return nil, err
		}
	}
	provider, err := external.NewEmailProvider(cfg.Email, deps)
	if err != nil {
		return nil, err
	}

	return issuance.NewMailDeliverer(provider, external.SenderIdentity(cfg.Email), opts.Subject, string(message)), nil
}

func printSummary(w io.Writer, report *issuance.Report) {
	fmt.Fprintln(w, report.Summary())
	for _, f := range report.Failures() {
		fmt.Fprintf(w, "  #%d %s: %s (%s)\n", f.Index+1, f.Email, f.State, f.ErrorCode)
	}
}

func printReport(path string, w io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	report, err := issuance.ReadReport(f)
	if err != nil {
		return err
	}
	printSummary(w, report)
	return nil
}

func secretProvider() config.SecretProvider {
	env := os.Getenv("APP_ENV")
	if env == "" || env == "local" {
		return nil
	}
	return config.NewSSMProvider(os.Getenv("AWS_REGION"))
}

// newLogger writes human-readable logs to w, next to the prompts.
func newLogger(level string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}
