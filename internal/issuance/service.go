// Package issuance runs the certificate workflow: check the caller against a
// roster, pick the display name, render the certificate and hand it to a
// delivery strategy.
//
// Every request walks RECEIVED → VALIDATED → RESOLVED → RENDERED and ends in
// DELIVERED, REJECTED, FAILED or DELIVERY_FAILED.
package issuance

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"certgen/internal/naming"
	"certgen/internal/roster"
	"certgen/internal/types"
)

// Renderer draws a display name onto a template.
type Renderer interface {
	Render(ctx context.Context, displayName, templateID string) (*types.Artifact, error)
}

// Service is stateless across requests and safe for concurrent use.
type Service struct {
	rosters  roster.Loader
	format   roster.Format
	renderer Renderer
	metrics  Metrics
	clock    types.Clock
	logger   *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithMetrics sets the outcome recorder. The default discards.
func WithMetrics(m Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock overrides the clock used for latency and report timestamps.
func WithClock(c types.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// NewService wires a Service. rosters may be nil for batch-only use, where the
// recipient list is handed in directly.
func NewService(rosters roster.Loader, format roster.Format, renderer Renderer, opts ...Option) *Service {
	s := &Service{
		rosters:  rosters,
		format:   format,
		renderer: renderer,
		metrics:  NoopMetrics{},
		clock:    types.RealClock{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// tracker follows one request through the state machine.
type tracker struct {
	state  types.IssuanceState
	logger *slog.Logger
}

func newTracker(logger *slog.Logger) *tracker {
	return &tracker{state: types.StateReceived, logger: logger}
}

func (t *tracker) advance(ctx context.Context, next types.IssuanceState) {
	t.logger.DebugContext(ctx, "issuance transition", "from", t.state, "to", next)
	t.state = next
}

// Issue runs the interactive workflow and returns the artifact for the caller
// to stream. The returned error is always an *types.AppError.
func (s *Service) Issue(ctx context.Context, req types.IssuanceRequest) (*types.Artifact, error) {
	start := s.clock.Now()
	logger := s.logger.With("event", req.Event, "request_id", types.GetRequestID(ctx))
	tr := newTracker(logger)

	art, err := s.issue(ctx, tr, req)
	if err != nil {
		s.finish(ctx, tr, types.DeliveryStream, err)
		return nil, err
	}

	tr.advance(ctx, types.StateDelivered)
	s.metrics.RecordOutcome(ctx, types.DeliveryStream, types.StateDelivered)
	s.metrics.RecordLatency(ctx, types.DeliveryStream, s.clock.Now().Sub(start))
	logger.InfoContext(ctx, "certificate issued", "display_name", art.DisplayName, "bytes", len(art.Data))
	return art, nil
}

func (s *Service) issue(ctx context.Context, tr *tracker, req types.IssuanceRequest) (*types.Artifact, error) {
	if strings.TrimSpace(req.Email) == "" {
		tr.advance(ctx, types.StateRejected)
		return nil, types.NewAppError(types.ErrCodeValidationMissingField, "email is required", nil)
	}
	if !types.ValidEventID(req.Event) {
		tr.advance(ctx, types.StateRejected)
		return nil, types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidEvent,
			"event identifier is not valid", nil, map[string]any{"event": req.Event})
	}
	if s.rosters == nil {
		tr.advance(ctx, types.StateFailed)
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "no roster source configured", nil)
	}

	r, err := s.rosters.Load(ctx, req.Event)
	if err != nil {
		tr.advance(ctx, types.StateRejected)
		return nil, asAppError(err, types.ErrCodeRosterUnreadable, "failed to load roster")
	}

	entry, ok := r.Lookup(req.Email)
	if !ok {
		tr.advance(ctx, types.StateRejected)
		return nil, types.NewAppError(types.ErrCodeValidationRejected,
			"email is not valid for certificate generation", nil)
	}
	tr.advance(ctx, types.StateValidated)

	return s.renderEntry(ctx, tr, entry, req.CallerName, req.Event)
}

// renderEntry covers VALIDATED → RESOLVED → RENDERED for an admitted entry.
func (s *Service) renderEntry(ctx context.Context, tr *tracker, entry roster.Entry, callerName, templateID string) (*types.Artifact, error) {
	displayName := naming.Resolve(s.format, entry, callerName)
	if strings.TrimSpace(displayName) == "" {
		tr.advance(ctx, types.StateRejected)
		return nil, types.NewAppError(types.ErrCodeValidationMissingName,
			"no display name on file or supplied", nil)
	}
	tr.advance(ctx, types.StateResolved)

	art, err := s.renderer.Render(ctx, displayName, templateID)
	if err != nil {
		tr.advance(ctx, types.StateFailed)
		return nil, asAppError(err, types.ErrCodeRenderFailure, "failed to render certificate")
	}
	tr.advance(ctx, types.StateRendered)
	return art, nil
}

func (s *Service) finish(ctx context.Context, tr *tracker, mode types.DeliveryMode, err error) {
	s.metrics.RecordOutcome(ctx, mode, tr.state)
	attrs := []any{"state", tr.state, "code", types.CodeOf(err), "error", err}
	if tr.state == types.StateRejected && types.CodeOf(err).HTTPStatus() < 500 {
		tr.logger.InfoContext(ctx, "certificate request rejected", attrs...)
		return
	}
	tr.logger.ErrorContext(ctx, "certificate request failed", attrs...)
}

// asAppError keeps an existing AppError and wraps anything else under code.
func asAppError(err error, code types.ErrorCode, msg string) *types.AppError {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return types.NewAppError(code, msg, err)
}
