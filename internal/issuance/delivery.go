package issuance

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"certgen/internal/external"
	"certgen/internal/roster"
	"certgen/internal/types"
)

// Delivery is one rendered certificate ready to leave the workflow.
type Delivery struct {
	Entry       roster.Entry
	Artifact    *types.Artifact
	ReferenceID string
}

// Deliverer dispatches rendered certificates in batch mode. Implementations
// make exactly one attempt.
type Deliverer interface {
	Mode() types.DeliveryMode
	// Deliver returns a reference for the report: a provider message ID or
	// a file path.
	Deliver(ctx context.Context, d Delivery) (string, error)
}

// MailDeliverer attaches the certificate to a message addressed to the entry.
type MailDeliverer struct {
	provider external.EmailProvider
	from     types.SenderIdentity
	subject  string
	message  string
}

// NewMailDeliverer creates a MailDeliverer. message is the body that follows
// the "Hello <Name>," greeting.
func NewMailDeliverer(provider external.EmailProvider, from types.SenderIdentity, subject, message string) *MailDeliverer {
	return &MailDeliverer{provider: provider, from: from, subject: subject, message: message}
}

func (m *MailDeliverer) Mode() types.DeliveryMode { return types.DeliveryEmail }

func (m *MailDeliverer) Deliver(ctx context.Context, d Delivery) (string, error) {
	input := types.SendInput{
		To:       d.Entry.Email,
		From:     m.from,
		Subject:  m.subject,
		BodyText: GreetingBody(d.Artifact.DisplayName, m.message),
		Attachments: []types.Attachment{{
			Filename:    d.Artifact.Filename(),
			ContentType: d.Artifact.ContentType,
			Data:        d.Artifact.Data,
		}},
		ReferenceID: d.ReferenceID,
	}

	msgID, err := m.provider.Send(ctx, input)
	if err != nil {
		return "", types.NewAppErrorWithDetails(types.ErrCodeDeliveryFailure,
			fmt.Sprintf("delivery to %s failed", d.Entry.Email), err,
			map[string]any{"provider_code": string(types.CodeOf(err))})
	}
	return msgID, nil
}

// GreetingBody is the plain-text message body sent with each certificate.
func GreetingBody(displayName, message string) string {
	return "Hello " + displayName + ",\n\n" + message
}

// DiskDeliverer writes <DisplayName>.png under a directory. A later recipient
// with the same display name overwrites the earlier file; the overwrite is
// logged.
type DiskDeliverer struct {
	dir    string
	logger *slog.Logger

	mu      sync.Mutex
	written map[string]string
}

// NewDiskDeliverer creates dir if needed.
func NewDiskDeliverer(dir string, logger *slog.Logger) (*DiskDeliverer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, types.NewAppError(types.ErrCodeArtifactWrite,
			fmt.Sprintf("failed to create output directory %s", dir), err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DiskDeliverer{dir: dir, logger: logger, written: make(map[string]string)}, nil
}

func (d *DiskDeliverer) Mode() types.DeliveryMode { return types.DeliveryLocal }

// Dir is the output directory.
func (d *DiskDeliverer) Dir() string { return d.dir }

func (d *DiskDeliverer) Deliver(ctx context.Context, del Delivery) (string, error) {
	name := safeFilename(del.Artifact.Filename())
	path := filepath.Join(d.dir, name)

	d.mu.Lock()
	prev, seen := d.written[name]
	d.mu.Unlock()
	if seen {
		d.logger.WarnContext(ctx, "overwriting certificate with the same display name",
			"path", path, "previous_email", prev, "email", del.Entry.Email)
	}

	if err := os.WriteFile(path, del.Artifact.Data, 0o644); err != nil {
		return "", types.NewAppError(types.ErrCodeArtifactWrite,
			fmt.Sprintf("failed to write %s", path), err)
	}

	// Only files that exist count as written.
	d.mu.Lock()
	d.written[name] = del.Entry.Email
	d.mu.Unlock()
	return path, nil
}

// safeFilename keeps writes inside the output directory.
func safeFilename(name string) string {
	return strings.NewReplacer("/", "_", `\`, "_").Replace(name)
}

// NoopDeliverer renders without dispatching, for dry runs.
type NoopDeliverer struct{}

func (NoopDeliverer) Mode() types.DeliveryMode { return types.DeliveryNone }

func (NoopDeliverer) Deliver(context.Context, Delivery) (string, error) { return "", nil }
