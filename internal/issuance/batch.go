package issuance

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"certgen/internal/roster"
	"certgen/internal/types"
)

// BatchOptions controls one batch run.
type BatchOptions struct {
	// RunID identifies the run; a random UUID is used when empty.
	RunID string
	// TemplateID selects the template for every recipient ("" is the default).
	TemplateID string
	// Source names the recipient list in the report.
	Source string
}

// RunBatch issues a certificate to every entry of r, strictly one at a time.
// A failure for one recipient is recorded and the loop moves on. The only
// error returned is context cancellation, together with the partial report.
func (s *Service) RunBatch(ctx context.Context, r *roster.Roster, d Deliverer, opts BatchOptions) (*Report, error) {
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	ctx = types.WithRunID(ctx, runID)
	logger := s.logger.With("run_id", runID, "mode", d.Mode())

	report := &Report{
		RunID:     runID,
		Mode:      d.Mode(),
		Source:    opts.Source,
		StartedAt: s.clock.Now(),
		Results:   make([]RecipientResult, 0, r.Len()),
	}

	logger.InfoContext(ctx, "batch started", "recipients", r.Len(), "source", opts.Source)

	var runErr error
	for i, entry := range r.Entries {
		if err := ctx.Err(); err != nil {
			report.Interrupted = true
			runErr = err
			logger.WarnContext(ctx, "batch interrupted", "processed", i, "remaining", r.Len()-i)
			break
		}

		res := s.issueOne(ctx, i, entry, d, opts.TemplateID, fmt.Sprintf("%s-%04d", runID, i+1))
		report.add(res)
	}

	report.FinishedAt = s.clock.Now()
	s.metrics.RecordLatency(ctx, d.Mode(), report.FinishedAt.Sub(report.StartedAt))
	logger.InfoContext(ctx, "batch finished",
		"total", report.Counts.Total,
		"delivered", report.Counts.Delivered,
		"rejected", report.Counts.Rejected,
		"failed", report.Counts.Failed,
		"delivery_failed", report.Counts.DeliveryFailed,
	)

	return report, runErr
}

func (s *Service) issueOne(ctx context.Context, index int, entry roster.Entry, d Deliverer, templateID, refID string) RecipientResult {
	start := s.clock.Now()
	logger := s.logger.With("run_id", types.GetRunID(ctx), "index", index, "email", entry.Email)
	tr := newTracker(logger)

	res := RecipientResult{Index: index, Email: entry.Email}
	done := func(err error) RecipientResult {
		res.State = tr.state
		res.DurationMS = s.clock.Now().Sub(start).Milliseconds()
		if err != nil {
			res.ErrorCode = types.CodeOf(err)
			res.Error = err.Error()
			s.finish(ctx, tr, d.Mode(), err)
		} else {
			s.metrics.RecordOutcome(ctx, d.Mode(), tr.state)
		}
		return res
	}

	// The batch list is itself the roster, so every row is admitted.
	tr.advance(ctx, types.StateValidated)

	art, err := s.renderEntry(ctx, tr, entry, "", templateID)
	if err != nil {
		return done(err)
	}
	res.DisplayName = art.DisplayName

	if d.Mode() == types.DeliveryNone {
		logger.InfoContext(ctx, "certificate rendered (dry run)", "display_name", art.DisplayName)
		return done(nil)
	}

	ref, err := d.Deliver(ctx, Delivery{Entry: entry, Artifact: art, ReferenceID: refID})
	if err != nil {
		tr.advance(ctx, types.StateDeliveryFailed)
		return done(err)
	}
	res.Reference = ref
	tr.advance(ctx, types.StateDelivered)
	logger.InfoContext(ctx, "certificate delivered", "display_name", art.DisplayName, "reference", ref)
	return done(nil)
}
