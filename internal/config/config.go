// Package config defines the configuration structure for the Primos payments
// site. Configuration is loaded once at process start and is immutable
// thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// A missing required value or an invalid format fails startup.
package config

import (
	"primos/internal/types"
)

// SecretString is an alias for types.SecretString so configuration secrets are
// redacted wherever the Config is logged or serialized.
type SecretString = types.SecretString

// Environment names accepted in APP_ENV.
const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

// Config is the top-level configuration struct. Sub-components receive only
// the subset they need.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev prod"`
	Port        string `envconfig:"PORT" default:"5001" validate:"required,numeric"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	// LogFile receives a copy of every log line in addition to stdout. Empty
	// disables file logging.
	LogFile string `envconfig:"LOG_FILE" default:"payments.log"`

	Stripe   StripeConfig
	Email    EmailConfig
	Security SecurityConfig
	Metrics  MetricsConfig
	AWS      AWSConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// StripeConfig holds payment processor credentials. Requiredness depends on
// the environment and is enforced by validateEnvironment.
type StripeConfig struct {
	PublicKey     string       `envconfig:"STRIPE_PUBLIC_KEY"`
	SecretKey     SecretString `envconfig:"STRIPE_SECRET_KEY"`
	WebhookSecret SecretString `envconfig:"STRIPE_WEBHOOK_SECRET"`
	// BaseURL overrides the Stripe API endpoint (stripe-mock, tests).
	BaseURL string `envconfig:"STRIPE_API_BASE_URL" validate:"omitempty,url"`
}

// EmailConfig selects and configures the outbound email provider used for
// receipts and admin notifications.
type EmailConfig struct {
	Provider       string       `envconfig:"EMAIL_PROVIDER" default:"stub" validate:"oneof=sendgrid ses stub"`
	SendGridAPIKey SecretString `envconfig:"SENDGRID_API_KEY" validate:"required_if=Provider sendgrid"`
	// Password is the legacy SMTP credential. SendGrid's relay takes the API
	// key as the password, so it fills SendGridAPIKey when that is unset.
	Password SecretString `envconfig:"EMAIL_PASSWORD"`
	// SESConfigSet tags SES sends for delivery tracking. Optional.
	SESConfigSet string `envconfig:"SES_CONFIGURATION_SET"`
	FromAddress  string `envconfig:"EMAIL_FROM" default:"pagos@primosdepelaez.com" validate:"email"`
	FromName     string `envconfig:"EMAIL_FROM_NAME" default:"Primos de Pelaez"`
	AdminAddress string `envconfig:"ADMIN_EMAIL" validate:"omitempty,email"`
}

// applyPasswordFallback copies EMAIL_PASSWORD into the SendGrid key when no
// explicit key was given.
func (e *EmailConfig) applyPasswordFallback() {
	if !e.SendGridAPIKey.IsSet() && e.Password.IsSet() {
		e.SendGridAPIKey = e.Password
	}
}

// SecurityConfig holds browser-facing security settings.
type SecurityConfig struct {
	CorsAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"https://primosdepelaez.com,https://www.primosdepelaez.com,http://localhost:5001"`
}

// MetricsConfig controls CloudWatch metric emission.
type MetricsConfig struct {
	Enabled   bool   `envconfig:"METRICS_ENABLED" default:"false"`
	Namespace string `envconfig:"METRIC_NAMESPACE" default:"PrimosPayments"`
}

// AWSConfig holds regional configuration shared by the SSM, SES and
// CloudWatch clients.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`
	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// IsLocal reports whether the process runs in a developer environment where
// unsigned webhooks and the stub processor are acceptable.
func (c *Config) IsLocal() bool {
	return c.Environment == EnvLocal || c.Environment == EnvDev
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
