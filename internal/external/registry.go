package external

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"

	"certgen/internal/config"
	"certgen/internal/types"
)

// httpProviderTimeout bounds one API call to an HTTP mail provider.
const httpProviderTimeout = 30 * time.Second

// ProviderDeps carries dependencies not available from EmailConfig. AWS is
// only consulted for the ses provider.
type ProviderDeps struct {
	AWS        aws.Config
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// NewEmailProvider builds the EmailProvider named by cfg.Provider. Missing
// credentials are reported here rather than at config load so that modes
// without email delivery never need them.
func NewEmailProvider(cfg config.EmailConfig, deps ProviderDeps) (EmailProvider, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	httpClient := deps.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: httpProviderTimeout}
	}

	logger.Info("initializing email provider", "provider", cfg.Provider)

	switch cfg.Provider {
	case "smtp", "":
		return NewSMTPClient(SMTPClientConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.Account,
			Password: cfg.Password.Unmask(),
			TLS:      cfg.SMTPTLS,
			Timeout:  cfg.SMTPTimeout,
			Logger:   logger.With("client", "smtp"),
		})

	case "sendgrid":
		if !cfg.SendGridAPIKey.IsSet() {
			return nil, types.NewAppError(types.ErrCodeValidationMissingField,
				"SendGrid delivery requires SENDGRID_API_KEY", nil)
		}
		return NewSendGridClient(httpClient, SendGridClientConfig{
			APIKey: cfg.SendGridAPIKey.Unmask(),
			Logger: logger.With("client", "sendgrid"),
		}), nil

	case "ses":
		return NewSESClient(deps.AWS, SESClientConfig{
			ConfigSetName: cfg.SESConfigSet,
			Logger:        logger.With("client", "ses"),
		}), nil

	case "resend":
		return NewResendClient(httpClient, ResendClientConfig{
			APIKey: cfg.ResendAPIKey.Unmask(),
			Logger: logger.With("client", "resend"),
		})

	case "stub":
		return NewStubEmailProvider(logger.With("mode", "stub")), nil

	default:
		return nil, types.NewAppError(types.ErrCodeValidationInvalidInput,
			fmt.Sprintf("unknown email provider %q", cfg.Provider), nil)
	}
}

// SenderIdentity derives the From identity from cfg.
func SenderIdentity(cfg config.EmailConfig) types.SenderIdentity {
	return types.SenderIdentity{Name: cfg.FromName, Address: cfg.Sender()}
}
