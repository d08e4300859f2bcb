package issuance

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"certgen/internal/types"
)

// RecipientResult is the outcome for one roster row.
type RecipientResult struct {
	Index       int                 `yaml:"index"`
	Email       string              `yaml:"email"`
	DisplayName string              `yaml:"display_name,omitempty"`
	State       types.IssuanceState `yaml:"state"`
	Reference   string              `yaml:"reference,omitempty"`
	ErrorCode   types.ErrorCode     `yaml:"error_code,omitempty"`
	Error       string              `yaml:"error,omitempty"`
	DurationMS  int64               `yaml:"duration_ms"`
}

// Failed reports whether the recipient did not get a certificate.
func (r RecipientResult) Failed() bool {
	return r.ErrorCode != ""
}

// Report aggregates a batch run. It replaces console output as the audit
// trail of who was sent what.
type Report struct {
	RunID       string             `yaml:"run_id"`
	Mode        types.DeliveryMode `yaml:"mode"`
	Source      string             `yaml:"source,omitempty"`
	StartedAt   time.Time          `yaml:"started_at"`
	FinishedAt  time.Time          `yaml:"finished_at"`
	Interrupted bool               `yaml:"interrupted,omitempty"`
	Archive     string             `yaml:"archive,omitempty"`
	Counts      Counts             `yaml:"counts"`
	Results     []RecipientResult  `yaml:"results"`
}

// Counts tallies results by terminal state.
type Counts struct {
	Total          int `yaml:"total"`
	Delivered      int `yaml:"delivered"`
	Rendered       int `yaml:"rendered,omitempty"`
	Rejected       int `yaml:"rejected"`
	Failed         int `yaml:"failed"`
	DeliveryFailed int `yaml:"delivery_failed"`
}

func (r *Report) add(res RecipientResult) {
	r.Results = append(r.Results, res)
	r.Counts.Total++
	switch res.State {
	case types.StateDelivered:
		r.Counts.Delivered++
	case types.StateRendered:
		r.Counts.Rendered++
	case types.StateRejected:
		r.Counts.Rejected++
	case types.StateDeliveryFailed:
		r.Counts.DeliveryFailed++
	default:
		r.Counts.Failed++
	}
}

// Failures returns the results that did not produce a certificate.
func (r *Report) Failures() []RecipientResult {
	var out []RecipientResult
	for _, res := range r.Results {
		if res.Failed() {
			out = append(out, res)
		}
	}
	return out
}

// Summary is a one-line human summary.
func (r *Report) Summary() string {
	s := fmt.Sprintf("run %s (%s): %d recipients, %d delivered, %d rejected, %d failed, %d delivery failed",
		r.RunID, r.Mode, r.Counts.Total, r.Counts.Delivered, r.Counts.Rejected, r.Counts.Failed, r.Counts.DeliveryFailed)
	if r.Counts.Rendered > 0 {
		s += fmt.Sprintf(", %d rendered only", r.Counts.Rendered)
	}
	if r.Interrupted {
		s += " (interrupted)"
	}
	return s
}

// Encode writes the report as YAML.
func (r *Report) Encode(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	return enc.Close()
}

// WriteFile writes the report as YAML to path.
func (r *Report) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating report %s: %w", path, err)
	}
	if err := r.Encode(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadReport decodes a YAML report.
func ReadReport(rd io.Reader) (*Report, error) {
	var r Report
	if err := yaml.NewDecoder(rd).Decode(&r); err != nil {
		return nil, fmt.Errorf("decoding report: %w", err)
	}
	return &r, nil
}
