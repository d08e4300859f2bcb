package external

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wneessen/go-mail"

	"certgen/internal/types"
)

// smtpSender is the subset of *mail.Client used by SMTPClient.
type smtpSender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// SMTPClientConfig holds the submission server settings. The defaults mirror
// an Office 365 mailbox: smtp.office365.com:587 with STARTTLS and LOGIN auth.
type SMTPClientConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	// TLS is one of mandatory, opportunistic, implicit or none.
	TLS     string
	Timeout time.Duration
	Logger  *slog.Logger
}

// SMTPClient implements EmailProvider over an authenticated SMTP submission
// session. Each Send dials a fresh connection.
type SMTPClient struct {
	sender smtpSender
	host   string
	logger *slog.Logger
}

// NewSMTPClient creates an SMTPClient. Credentials are required.
func NewSMTPClient(cfg SMTPClientConfig) (*SMTPClient, error) {
	if cfg.Username == "" || cfg.Password == "" {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField,
			"SMTP delivery requires EMAIL_ACCOUNT and EMAIL_PASSWORD", nil)
	}

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthLogin),
		mail.WithUsername(cfg.Username),
		mail.WithPassword(cfg.Password),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, mail.WithTimeout(cfg.Timeout))
	}

	switch cfg.TLS {
	case "", "mandatory":
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	case "opportunistic":
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	case "implicit":
		opts = append(opts, mail.WithSSL())
	case "none":
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	default:
		return nil, types.NewAppError(types.ErrCodeValidationInvalidInput,
			fmt.Sprintf("unknown SMTP TLS mode %q", cfg.TLS), nil)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create SMTP client", err)
	}

	return newSMTPClientWithSender(client, cfg.Host, cfg.Logger), nil
}

func newSMTPClientWithSender(sender smtpSender, host string, logger *slog.Logger) *SMTPClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &SMTPClient{sender: sender, host: host, logger: logger}
}

// Send builds the MIME message and submits it. Any dial, auth or submission
// failure maps to ErrCodeDeliveryFailure; nothing is retried.
func (s *SMTPClient) Send(ctx context.Context, input types.SendInput) (string, error) {
	msg, msgID, err := buildMessage(input)
	if err != nil {
		return "", err
	}

	if err := s.sender.DialAndSendWithContext(ctx, msg); err != nil {
		return "", types.NewAppError(types.ErrCodeDeliveryFailure,
			fmt.Sprintf("SMTP submission to %s failed", s.host), err)
	}

	s.logger.DebugContext(ctx, "smtp message submitted", "message_id", msgID)
	return msgID, nil
}

var _ EmailProvider = (*SMTPClient)(nil)
