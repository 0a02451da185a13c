package config

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"
)

// testSecretProvider is a configurable mock for testing SSM resolution.
type testSecretProvider struct {
	values     map[string]string
	err        error
	calledWith []string
	callCount  int
}

func (p *testSecretProvider) GetParametersBatch(_ context.Context, keys []string) (map[string]string, error) {
	p.callCount++
	p.calledWith = append(p.calledWith, keys...)
	if p.err != nil {
		return nil, p.err
	}
	result := make(map[string]string)
	for _, k := range keys {
		if v, ok := p.values[k]; ok {
			result[k] = v
		}
	}
	return result, nil
}

// configEnvKeys lists every variable the loader reads so each test starts
// from a clean slate regardless of the developer's shell.
var configEnvKeys = []string{
	"APP_ENV", "PORT", "LOG_LEVEL", "LOG_FILE",
	"STRIPE_PUBLIC_KEY", "STRIPE_SECRET_KEY", "STRIPE_WEBHOOK_SECRET", "STRIPE_API_BASE_URL",
	"EMAIL_PROVIDER", "SENDGRID_API_KEY", "EMAIL_PASSWORD", "SES_CONFIGURATION_SET",
	"EMAIL_FROM", "EMAIL_FROM_NAME", "ADMIN_EMAIL",
	"CORS_ALLOWED_ORIGINS", "METRICS_ENABLED", "METRIC_NAMESPACE", "AWS_REGION", "AWS_ENDPOINT_URL",
}

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, k := range configEnvKeys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

// testDeps returns OS-backed deps with dotenv loading disabled so a stray
// .env in the package directory cannot leak into assertions.
func testDeps() loaderDeps {
	d := defaultDeps()
	d.dotenv = nil
	return d
}

func setProdEnv(t *testing.T) {
	t.Helper()
	t.Setenv("APP_ENV", "prod")
	t.Setenv("STRIPE_PUBLIC_KEY", "pk_live_123")
	t.Setenv("STRIPE_SECRET_KEY", "sk_live_456")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_789")
	t.Setenv("EMAIL_PROVIDER", "ses")
	t.Setenv("ADMIN_EMAIL", "admin@primosdepelaez.com")
}

func TestLoadConfigLocalDefaults(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := loadConfigWithDeps(nil, testDeps())
	if err != nil {
		t.Fatalf("loadConfigWithDeps returned error: %v", err)
	}

	if cfg.Environment != EnvLocal {
		t.Errorf("Environment = %q, want %q", cfg.Environment, EnvLocal)
	}
	if cfg.Port != "5001" {
		t.Errorf("Port = %q, want 5001", cfg.Port)
	}
	if cfg.LogFile != "payments.log" {
		t.Errorf("LogFile = %q, want payments.log", cfg.LogFile)
	}
	if cfg.Email.Provider != "stub" {
		t.Errorf("Email.Provider = %q, want stub", cfg.Email.Provider)
	}
	if cfg.Email.FromAddress != "pagos@primosdepelaez.com" {
		t.Errorf("Email.FromAddress = %q", cfg.Email.FromAddress)
	}
	wantOrigins := []string{"https://primosdepelaez.com", "https://www.primosdepelaez.com", "http://localhost:5001"}
	if strings.Join(cfg.Security.CorsAllowedOrigins, ",") != strings.Join(wantOrigins, ",") {
		t.Errorf("CorsAllowedOrigins = %v, want %v", cfg.Security.CorsAllowedOrigins, wantOrigins)
	}
	if cfg.Stripe.WebhookSecret.IsSet() {
		t.Error("WebhookSecret should be empty by default")
	}
	if !cfg.IsLocal() {
		t.Error("IsLocal() = false for local environment")
	}
	if cfg.Build.Version != "dev" {
		t.Errorf("Build.Version = %q, want dev", cfg.Build.Version)
	}
}

func TestLoadConfigProdSuccess(t *testing.T) {
	clearConfigEnv(t)
	setProdEnv(t)

	cfg, err := loadConfigWithDeps(nil, testDeps())
	if err != nil {
		t.Fatalf("loadConfigWithDeps returned error: %v", err)
	}
	if cfg.IsLocal() {
		t.Error("IsLocal() = true for prod")
	}
	if cfg.Stripe.SecretKey.Unmask() != "sk_live_456" {
		t.Errorf("SecretKey.Unmask() = %q", cfg.Stripe.SecretKey.Unmask())
	}
}

func TestLoadConfigProdRequiresWebhookSecret(t *testing.T) {
	clearConfigEnv(t)
	setProdEnv(t)
	os.Unsetenv("STRIPE_WEBHOOK_SECRET")

	_, err := loadConfigWithDeps(nil, testDeps())
	if err == nil {
		t.Fatal("expected error when prod has no webhook secret")
	}
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected *ConfigError, got %T", err)
	}
	if cfgErr.Type != ErrMissingEnv {
		t.Errorf("Type = %q, want %q", cfgErr.Type, ErrMissingEnv)
	}
	if !strings.Contains(cfgErr.Message, "STRIPE_WEBHOOK_SECRET") {
		t.Errorf("message %q should name STRIPE_WEBHOOK_SECRET", cfgErr.Message)
	}
}

func TestLoadConfigProdRejectsStubEmail(t *testing.T) {
	clearConfigEnv(t)
	setProdEnv(t)
	t.Setenv("EMAIL_PROVIDER", "stub")

	_, err := loadConfigWithDeps(nil, testDeps())
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Type != ErrValidation {
		t.Fatalf("expected validation ConfigError, got %v", err)
	}
}

func TestLoadConfigValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown environment", map[string]string{"APP_ENV": "staging"}},
		{"non-numeric port", map[string]string{"PORT": "http"}},
		{"bad log level", map[string]string{"LOG_LEVEL": "verbose"}},
		{"sendgrid without key", map[string]string{"EMAIL_PROVIDER": "sendgrid"}},
		{"bad admin email", map[string]string{"ADMIN_EMAIL": "not-an-email"}},
		{"unknown provider", map[string]string{"EMAIL_PROVIDER": "smtp"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearConfigEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := loadConfigWithDeps(nil, testDeps())
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected *ConfigError, got %v", err)
			}
			if cfgErr.Type != ErrValidation {
				t.Errorf("Type = %q, want %q", cfgErr.Type, ErrValidation)
			}
		})
	}
}

func TestLoadConfigEmailPasswordFallback(t *testing.T) {
	t.Run("password alone satisfies sendgrid", func(t *testing.T) {
		clearConfigEnv(t)
		t.Setenv("EMAIL_PROVIDER", "sendgrid")
		t.Setenv("EMAIL_PASSWORD", "SG.from_password")

		cfg, err := loadConfigWithDeps(nil, testDeps())
		if err != nil {
			t.Fatalf("loadConfigWithDeps returned error: %v", err)
		}
		if cfg.Email.SendGridAPIKey.Unmask() != "SG.from_password" {
			t.Errorf("SendGridAPIKey = %q, want EMAIL_PASSWORD value", cfg.Email.SendGridAPIKey.Unmask())
		}
	})

	t.Run("explicit key wins", func(t *testing.T) {
		clearConfigEnv(t)
		t.Setenv("EMAIL_PROVIDER", "sendgrid")
		t.Setenv("SENDGRID_API_KEY", "SG.explicit")
		t.Setenv("EMAIL_PASSWORD", "SG.from_password")

		cfg, err := loadConfigWithDeps(nil, testDeps())
		if err != nil {
			t.Fatalf("loadConfigWithDeps returned error: %v", err)
		}
		if cfg.Email.SendGridAPIKey.Unmask() != "SG.explicit" {
			t.Errorf("SendGridAPIKey = %q, want SENDGRID_API_KEY value", cfg.Email.SendGridAPIKey.Unmask())
		}
	})
}

func TestLoadConfigParsingError(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("METRICS_ENABLED", "sometimes")

	_, err := loadConfigWithDeps(nil, testDeps())
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Type != ErrParsing {
		t.Fatalf("expected parsing ConfigError, got %v", err)
	}
}

func TestLoadConfigResolvesSSMOutsideLocal(t *testing.T) {
	clearConfigEnv(t)
	setProdEnv(t)
	os.Unsetenv("STRIPE_SECRET_KEY")
	t.Setenv("STRIPE_SECRET_KEY_SSM_PARAM", "/prod/primos/stripe/secret_key")

	provider := &testSecretProvider{values: map[string]string{
		"/prod/primos/stripe/secret_key": "sk_live_from_ssm",
	}}

	cfg, err := loadConfigWithDeps(provider, testDeps())
	if err != nil {
		t.Fatalf("loadConfigWithDeps returned error: %v", err)
	}
	if provider.callCount != 1 {
		t.Errorf("provider called %d times, want 1", provider.callCount)
	}
	if cfg.Stripe.SecretKey.Unmask() != "sk_live_from_ssm" {
		t.Errorf("SecretKey = %q, want value from SSM", cfg.Stripe.SecretKey.Unmask())
	}
}

func TestLoadConfigSSMSkippedWhenTargetSet(t *testing.T) {
	clearConfigEnv(t)
	setProdEnv(t)
	t.Setenv("STRIPE_SECRET_KEY_SSM_PARAM", "/prod/primos/stripe/secret_key")

	provider := &testSecretProvider{}
	cfg, err := loadConfigWithDeps(provider, testDeps())
	if err != nil {
		t.Fatalf("loadConfigWithDeps returned error: %v", err)
	}
	if provider.callCount != 0 {
		t.Errorf("provider should not be called when target is set, called %d", provider.callCount)
	}
	if cfg.Stripe.SecretKey.Unmask() != "sk_live_456" {
		t.Errorf("SecretKey = %q, env value should win", cfg.Stripe.SecretKey.Unmask())
	}
}

func TestLoadConfigSSMSkippedInLocal(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("APP_ENV", "local")
	t.Setenv("STRIPE_SECRET_KEY_SSM_PARAM", "/dev/primos/stripe/secret_key")

	provider := &testSecretProvider{}
	if _, err := loadConfigWithDeps(provider, testDeps()); err != nil {
		t.Fatalf("loadConfigWithDeps returned error: %v", err)
	}
	if provider.callCount != 0 {
		t.Errorf("provider called %d times in local, want 0", provider.callCount)
	}
}

func TestLoadConfigSSMErrors(t *testing.T) {
	t.Run("nil provider", func(t *testing.T) {
		clearConfigEnv(t)
		t.Setenv("APP_ENV", "dev")
		t.Setenv("STRIPE_SECRET_KEY_SSM_PARAM", "/dev/primos/stripe/secret_key")

		_, err := loadConfigWithDeps(nil, testDeps())
		var cfgErr *ConfigError
		if !errors.As(err, &cfgErr) || cfgErr.Type != ErrSSMResolution {
			t.Fatalf("expected SSM ConfigError, got %v", err)
		}
		if !strings.Contains(cfgErr.Message, "STRIPE_SECRET_KEY") {
			t.Errorf("message %q should name the target variable", cfgErr.Message)
		}
	})

	t.Run("provider failure", func(t *testing.T) {
		clearConfigEnv(t)
		t.Setenv("APP_ENV", "dev")
		t.Setenv("STRIPE_SECRET_KEY_SSM_PARAM", "/dev/primos/stripe/secret_key")
		boom := errors.New("access denied")

		_, err := loadConfigWithDeps(&testSecretProvider{err: boom}, testDeps())
		if !errors.Is(err, boom) {
			t.Fatalf("expected wrapped provider error, got %v", err)
		}
	})

	t.Run("parameter missing", func(t *testing.T) {
		clearConfigEnv(t)
		t.Setenv("APP_ENV", "dev")
		t.Setenv("SENDGRID_API_KEY_SSM_PARAM", "/dev/primos/sendgrid/api_key")

		_, err := loadConfigWithDeps(&testSecretProvider{values: map[string]string{}}, testDeps())
		var cfgErr *ConfigError
		if !errors.As(err, &cfgErr) || !strings.Contains(cfgErr.Message, "SENDGRID_API_KEY") {
			t.Fatalf("expected missing-parameter error naming SENDGRID_API_KEY, got %v", err)
		}
	})
}

func TestConfigSecretsNeverLogged(t *testing.T) {
	clearConfigEnv(t)
	setProdEnv(t)

	cfg, err := loadConfigWithDeps(nil, testDeps())
	if err != nil {
		t.Fatalf("loadConfigWithDeps returned error: %v", err)
	}

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	logger.Info("config", "stripe", cfg.Stripe, "email", cfg.Email)

	for _, secret := range []string{"sk_live_456", "whsec_789"} {
		if strings.Contains(buf.String(), secret) {
			t.Errorf("log output leaked %q: %s", secret, buf.String())
		}
	}
}

func TestConfigErrorFormat(t *testing.T) {
	inner := errors.New("boom")
	err := &ConfigError{Type: ErrParsing, Message: "failed", Err: inner}
	if err.Error() != "[PARSING_FAILED] failed: boom" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, inner) {
		t.Error("Unwrap should expose the inner error")
	}
	if (&ConfigError{Type: ErrValidation, Message: "bad"}).Error() != "[VALIDATION_FAILED] bad" {
		t.Error("Error() without inner error has wrong format")
	}
}
