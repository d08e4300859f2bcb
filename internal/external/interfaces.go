package external

import (
	"context"

	"certgen/internal/types"
)

// EmailProvider abstracts the outbound mail transport used by batch email
// delivery. Implementations transmit a fully rendered message, attachments
// included.
type EmailProvider interface {
	// Send transmits one message and returns the provider's message ID for
	// correlation in the batch report.
	Send(ctx context.Context, input types.SendInput) (providerMsgID string, err error)
}
