package external

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"certgen/internal/types"
)

// StubEmailProvider implements EmailProvider by logging calls and returning
// a fake message ID. It records every input so dry runs and tests can
// inspect what would have been sent.
type StubEmailProvider struct {
	logger *slog.Logger

	mu   sync.Mutex
	sent []types.SendInput
}

// NewStubEmailProvider creates a new StubEmailProvider.
func NewStubEmailProvider(logger *slog.Logger) *StubEmailProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &StubEmailProvider{logger: logger}
}

func (s *StubEmailProvider) Send(ctx context.Context, input types.SendInput) (string, error) {
	s.logger.InfoContext(ctx, "stub: Send email called",
		"to", input.To,
		"subject", input.Subject,
		"attachments", len(input.Attachments),
		"from", input.From.Address,
	)

	s.mu.Lock()
	s.sent = append(s.sent, input)
	s.mu.Unlock()

	return fmt.Sprintf("msg_stub_%s", input.ReferenceID), nil
}

// Sent returns a copy of every message passed to Send.
func (s *StubEmailProvider) Sent() []types.SendInput {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.SendInput(nil), s.sent...)
}

var _ EmailProvider = (*StubEmailProvider)(nil)
