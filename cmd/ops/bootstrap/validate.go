package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

// ValidationResult is a pass/fail signal with a message for the operator.
type ValidationResult struct {
	Valid   bool
	Message string
}

// HTTPClient is used by validators that probe provider APIs.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// DatabaseConnector opens and immediately closes a connection to dsn.
type DatabaseConnector interface {
	Connect(ctx context.Context, dsn string) error
}

// PgxConnector checks a DSN with a real pgx connection.
type PgxConnector struct{}

func (c *PgxConnector) Connect(ctx context.Context, dsn string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	return conn.Close(ctx)
}

// Validator carries the clients the validation functions need.
type Validator struct {
	httpClient HTTPClient
	dbConn     DatabaseConnector
}

// NewValidator uses a 10-second HTTP client and a pgx connector.
func NewValidator() *Validator {
	return &Validator{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		dbConn:     &PgxConnector{},
	}
}

// NewValidatorWithDeps injects the HTTP client and connector.
func NewValidatorWithDeps(httpClient HTTPClient, dbConn DatabaseConnector) *Validator {
	return &Validator{
		httpClient: httpClient,
		dbConn:     dbConn,
	}
}

// validateTimeout bounds each network probe.
const validateTimeout = 10 * time.Second

// minPasswordLength rejects obviously truncated pastes.
const minPasswordLength = 8

// ValidateEmailPassword checks the mail account password offline.
func (v *Validator) ValidateEmailPassword(_ context.Context, password string) ValidationResult {
	if password == "" {
		return ValidationResult{Valid: false, Message: "password must not be empty"}
	}
	if len(password) < minPasswordLength {
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("password is %d chars, expected at least %d", len(password), minPasswordLength),
		}
	}
	return ValidationResult{Valid: true, Message: fmt.Sprintf("password accepted (%d chars)", len(password))}
}

// ValidateDatabaseURL checks the scheme and then opens a real connection to
// the roster database.
func (v *Validator) ValidateDatabaseURL(ctx context.Context, rawURL string) ValidationResult {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ValidationResult{Valid: false, Message: "database URL must not be empty"}
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ValidationResult{Valid: false, Message: fmt.Sprintf("invalid URL format: %v", err)}
	}
	if parsed.Scheme != "postgres" && parsed.Scheme != "postgresql" {
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("expected postgres:// or postgresql:// scheme, got %q", parsed.Scheme),
		}
	}
	if parsed.Hostname() == "" {
		return ValidationResult{Valid: false, Message: "database URL has no host"}
	}

	connCtx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()

	if err := v.dbConn.Connect(connCtx, rawURL); err != nil {
		return ValidationResult{Valid: false, Message: fmt.Sprintf("connection failed: %v", err)}
	}

	return ValidationResult{
		Valid:   true,
		Message: fmt.Sprintf("database connection verified (host=%s)", parsed.Hostname()),
	}
}

// ValidateSendGridKey checks the SG. prefix and probes the credits endpoint.
func (v *Validator) ValidateSendGridKey(ctx context.Context, key string) ValidationResult {
	key = strings.TrimSpace(key)
	if key == "" {
		return ValidationResult{Valid: false, Message: "SendGrid API key must not be empty"}
	}
	if !strings.HasPrefix(key, "SG.") {
		return ValidationResult{Valid: false, Message: "SendGrid API key should start with 'SG.'"}
	}

	body, status, err := v.probe(ctx, "https://api.sendgrid.com/v3/user/credits", key)
	if err != nil {
		return ValidationResult{Valid: false, Message: fmt.Sprintf("SendGrid API probe failed: %v", err)}
	}
	if res, bad := rejectStatus("SendGrid", status, body); bad {
		return res
	}
	if !strings.Contains(string(body), "remain") {
		return ValidationResult{Valid: false, Message: "SendGrid API response did not contain expected credit information"}
	}
	return ValidationResult{Valid: true, Message: "SendGrid API key verified (credits endpoint accessible)"}
}

// ValidateResendKey checks the re_ prefix and probes the domains endpoint.
func (v *Validator) ValidateResendKey(ctx context.Context, key string) ValidationResult {
	key = strings.TrimSpace(key)
	if key == "" {
		return ValidationResult{Valid: false, Message: "Resend API key must not be empty"}
	}
	if !strings.HasPrefix(key, "re_") {
		return ValidationResult{Valid: false, Message: "Resend API key should start with 're_'"}
	}

	body, status, err := v.probe(ctx, "https://api.resend.com/domains", key)
	if err != nil {
		return ValidationResult{Valid: false, Message: fmt.Sprintf("Resend API probe failed: %v", err)}
	}
	if res, bad := rejectStatus("Resend", status, body); bad {
		return res
	}
	return ValidationResult{Valid: true, Message: "Resend API key verified (domains endpoint accessible)"}
}

func (v *Validator) probe(ctx context.Context, endpoint, key string) ([]byte, int, error) {
	probeCtx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("User-Agent", "certgen-bootstrap/1.0")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return body, resp.StatusCode, nil
}

func rejectStatus(provider string, status int, body []byte) (ValidationResult, bool) {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("%s API returned HTTP %d: key is invalid or lacks permissions", provider, status),
		}, true
	case status != http.StatusOK:
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("%s API returned HTTP %d: %s", provider, status, truncateBody(body, 200)),
		}, true
	}
	return ValidationResult{}, false
}

func truncateBody(body []byte, n int) string {
	s := strings.TrimSpace(string(body))
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
