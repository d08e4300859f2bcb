package external

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/resend/resend-go/v2"

	"certgen/internal/types"
)

// ResendClientConfig holds the configuration for creating a ResendClient.
type ResendClientConfig struct {
	APIKey string
	// BaseURL overrides the Resend API endpoint; used by tests.
	BaseURL string
	Logger  *slog.Logger
}

// ResendClient implements EmailProvider with the Resend SDK.
type ResendClient struct {
	client *resend.Client
	logger *slog.Logger
}

// NewResendClient creates a ResendClient over httpClient.
func NewResendClient(httpClient *http.Client, cfg ResendClientConfig) (*ResendClient, error) {
	if cfg.APIKey == "" {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField,
			"Resend delivery requires RESEND_API_KEY", nil)
	}

	client := resend.NewCustomClient(httpClient, cfg.APIKey)
	if cfg.BaseURL != "" {
		u, err := url.Parse(cfg.BaseURL)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeValidationInvalidInput, "invalid Resend base URL", err)
		}
		if u.Path == "" {
			u.Path = "/"
		}
		client.BaseURL = u
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &ResendClient{client: client, logger: logger}, nil
}

// Send transmits input and returns the Resend email ID.
func (r *ResendClient) Send(ctx context.Context, input types.SendInput) (string, error) {
	from := input.From.Address
	if input.From.Name != "" {
		from = fmt.Sprintf("%s <%s>", input.From.Name, input.From.Address)
	}

	params := &resend.SendEmailRequest{
		From:    from,
		To:      []string{input.To},
		Subject: input.Subject,
		Text:    input.BodyText,
	}

	for _, att := range input.Attachments {
		contentType := att.ContentType
		if contentType == "" {
			contentType = types.ArtifactContentType
		}
		params.Attachments = append(params.Attachments, &resend.Attachment{
			Content:     att.Data,
			Filename:    att.Filename,
			ContentType: contentType,
		})
	}

	if input.ReferenceID != "" {
		params.Tags = []resend.Tag{{Name: "reference_id", Value: input.ReferenceID}}
	}

	sent, err := r.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", types.NewAppError(types.ErrCodeDeliveryFailure, "Resend send cancelled", err)
		}
		return "", types.NewAppError(types.ErrCodeUpstreamEmailProvider,
			fmt.Sprintf("Resend send failed: %v", err), err)
	}

	r.logger.DebugContext(ctx, "resend message accepted", "message_id", sent.Id)
	return sent.Id, nil
}

var _ EmailProvider = (*ResendClient)(nil)
