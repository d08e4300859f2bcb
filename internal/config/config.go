// Package config defines the configuration structure shared by the certgen
// entry points (HTTP server, serverless function and batch CLI).
// Configuration is loaded once at process start and is immutable thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// Any invalid value causes LoadConfig to fail before the process serves
// anything.
package config

import (
	"time"

	"certgen/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type used
// throughout configuration to prevent accidental logging of sensitive values.
type SecretString = types.SecretString

// Config is the top-level configuration struct. Sub-components receive only
// the group they need.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"certgen"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Server        ServerConfig
	Roster        RosterConfig
	Template      TemplateConfig
	Email         EmailConfig
	Database      DatabaseConfig
	AWS           AWSConfig
	Observability ObservabilityConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string        `envconfig:"PORT" default:"8080"`
	CorsAllowedOrigins []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	RequestTimeout     time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
	ShutdownTimeout    time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	// MaxBodyBytes caps inbound request bodies; the issuance form is tiny.
	MaxBodyBytes int64 `envconfig:"MAX_BODY_BYTES" default:"65536" validate:"gt=0"`
	// RateLimitPerMinute caps issuance requests per client IP. 0 disables.
	RateLimitPerMinute int `envconfig:"RATE_LIMIT_PER_MINUTE" default:"30" validate:"gte=0"`
}

// RosterConfig selects where allow-lists live and how they are encoded.
// One format applies to the whole deployment.
type RosterConfig struct {
	Backend string `envconfig:"ROSTER_BACKEND" default:"fs" validate:"oneof=fs s3 postgres"`
	Format  string `envconfig:"ROSTER_FORMAT" default:"flat" validate:"oneof=flat tabular"`

	// FlatPath is the global roster for the flat format.
	FlatPath string `envconfig:"ROSTER_FLAT_PATH" default:"verify.txt"`
	// TabularPath is the global roster for the tabular format.
	TabularPath string `envconfig:"ROSTER_TABULAR_PATH" default:"roster.csv"`
	// Dir holds per-event rosters named <event>.txt or <event>.csv.
	Dir string `envconfig:"ROSTER_DIR" default:"rosters"`

	Bucket string `envconfig:"ROSTER_BUCKET" validate:"required_if=Backend s3"`
	Prefix string `envconfig:"ROSTER_PREFIX"`
}

// TemplateConfig locates certificate templates and controls how names are
// drawn onto them.
type TemplateConfig struct {
	Backend string `envconfig:"TEMPLATE_BACKEND" default:"fs" validate:"oneof=fs s3"`
	Dir     string `envconfig:"TEMPLATE_DIR" default:"template"`
	// Default is the template used when a request carries no event.
	Default string `envconfig:"TEMPLATE_DEFAULT" default:"certificate.png" validate:"required"`
	Bucket  string `envconfig:"TEMPLATE_BUCKET" validate:"required_if=Backend s3"`
	Prefix  string `envconfig:"TEMPLATE_PREFIX"`

	// FontPath points at a TrueType/OpenType file. Empty uses the embedded face.
	FontPath  string  `envconfig:"FONT_PATH"`
	FontSize  float64 `envconfig:"FONT_SIZE" default:"100" validate:"gt=0"`
	TextColor string  `envconfig:"TEXT_COLOR" default:"#000000" validate:"hexcolor"`
}

// EmailConfig holds outbound delivery credentials for batch email mode.
// Credentials are read from the environment only.
type EmailConfig struct {
	Provider    string       `envconfig:"EMAIL_PROVIDER" default:"smtp" validate:"oneof=smtp sendgrid ses resend stub"`
	Account     string       `envconfig:"EMAIL_ACCOUNT"`
	Password    SecretString `envconfig:"EMAIL_PASSWORD"`
	FromAddress string       `envconfig:"EMAIL_FROM_ADDRESS" validate:"omitempty,email"`
	FromName    string       `envconfig:"EMAIL_FROM_NAME" default:"Certificates"`

	SMTPHost    string        `envconfig:"SMTP_HOST" default:"smtp.office365.com"`
	SMTPPort    int           `envconfig:"SMTP_PORT" default:"587" validate:"gt=0,lte=65535"`
	SMTPTLS     string        `envconfig:"SMTP_TLS" default:"mandatory" validate:"oneof=mandatory opportunistic implicit none"`
	SMTPTimeout time.Duration `envconfig:"SMTP_TIMEOUT" default:"30s"`

	SendGridAPIKey SecretString `envconfig:"SENDGRID_API_KEY" validate:"required_if=Provider sendgrid"`
	ResendAPIKey   SecretString `envconfig:"RESEND_API_KEY" validate:"required_if=Provider resend"`
	SESConfigSet   string       `envconfig:"SES_CONFIGURATION_SET"`
}

// Sender returns the envelope address: FromAddress, or the account when unset.
func (c EmailConfig) Sender() string {
	if c.FromAddress != "" {
		return c.FromAddress
	}
	return c.Account
}

// DatabaseConfig holds the roster database connection and pool tuning.
// URL is required only when the postgres roster backend is selected.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL"`

	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"4"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"0"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// AWSConfig holds regional configuration shared by the S3, SES, SSM and
// CloudWatch clients.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL" validate:"omitempty,url"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"Certgen"`
	EnableMetrics   bool   `envconfig:"ENABLE_METRICS" default:"false"`
}

// BuildInfo holds build-time metadata injected via ldflags.
// These values are NOT populated from environment variables.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrSSMResolution indicates a failure when fetching secrets from AWS SSM.
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
