package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"

	"primos/internal/api/handlers"
	"primos/internal/config"
	"primos/internal/core"
	"primos/internal/external"
	"primos/internal/metrics"
	"primos/internal/notifications"
	"primos/internal/site"
	"primos/internal/types"
	"primos/internal/webhook"
)

const sendGridTimeout = 10 * time.Second

// app is the fully wired server plus the pieces main needs to drive.
type app struct {
	srv *core.Server
	// collector is nil when metrics are disabled.
	collector *metrics.CloudWatchCollector
}

// Compile-time assertions for the adapters wired below.
var (
	_ webhook.ReceiptSender    = (*notifications.Notifier)(nil)
	_ webhook.AdminNotifier    = (*notifications.Notifier)(nil)
	_ webhook.ProcessorClient  = (external.PaymentProcessor)(nil)
	_ handlers.IntentCreator   = (external.PaymentProcessor)(nil)
	_ handlers.WebhookMetrics  = (*metrics.CloudWatchCollector)(nil)
	_ handlers.WebhookMetrics  = metrics.Nop{}
	_ core.MetricsCollector    = (*metrics.CloudWatchCollector)(nil)
	_ handlers.EventVerifier   = (*webhook.Verifier)(nil)
	_ handlers.EventDispatcher = (*webhook.Router)(nil)
)

// buildApp constructs every component from cfg and mounts the routes.
func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("creating server: %w", err)
	}

	a := &app{srv: srv}
	var webhookMetrics handlers.WebhookMetrics = metrics.Nop{}
	if cfg.Metrics.Enabled {
		a.collector = metrics.NewCloudWatchCollector(cloudwatch.NewFromConfig(awsCfg), cfg.Metrics.Namespace, logger)
		srv.Metrics = a.collector
		webhookMetrics = a.collector
	}

	processor := newPaymentProcessor(cfg, logger)

	emailProvider, err := newEmailProvider(cfg, awsCfg, logger)
	if err != nil {
		return nil, err
	}
	renderer, err := notifications.NewRenderer(cfg.Email.FromName)
	if err != nil {
		return nil, fmt.Errorf("loading email templates: %w", err)
	}
	notifier := notifications.NewNotifier(emailProvider, renderer, notifications.NotifierConfig{
		From:         types.SenderIdentity{Name: cfg.Email.FromName, Address: cfg.Email.FromAddress},
		AdminAddress: cfg.Email.AdminAddress,
	}, logger)

	verifier, err := webhook.NewVerifier(cfg.Stripe.WebhookSecret, cfg.IsLocal(), logger)
	if err != nil {
		return nil, fmt.Errorf("creating webhook verifier: %w", err)
	}
	eventHandlers := webhook.NewHandlers(webhook.HandlerDeps{
		Receipts:  notifier,
		Admin:     notifier,
		Processor: processor,
		Logger:    logger,
	})
	router := webhook.NewDefaultRouter(eventHandlers, logger)

	pages, err := site.New(site.Config{PublishableKey: cfg.Stripe.PublicKey}, logger)
	if err != nil {
		return nil, fmt.Errorf("loading pages: %w", err)
	}

	webhookHandler := handlers.NewWebhookHandler(verifier, router, webhookMetrics, logger)
	intentHandler := handlers.NewPaymentIntentHandler(processor, srv.Validator, logger)

	srv.HealthProbes = append(srv.HealthProbes, pages.Probe())
	srv.RouteRegistrars = append(srv.RouteRegistrars,
		webhookHandler.RegisterRoutes,
		intentHandler.RegisterRoutes,
		pages.RegisterRoutes,
	)
	srv.MountRoutes()

	return a, nil
}

// newPaymentProcessor returns the Stripe client, or the stub when no secret
// key is configured. Production config validation guarantees the key.
func newPaymentProcessor(cfg *config.Config, logger *slog.Logger) external.PaymentProcessor {
	if !cfg.Stripe.SecretKey.IsSet() {
		logger.Warn("STRIPE_SECRET_KEY not set, using stub payment processor")
		return external.NewStubPaymentProcessor(logger)
	}
	return external.NewStripeClient(external.NewStripeHTTPClient(), external.StripeClientConfig{
		SecretKey: cfg.Stripe.SecretKey.Unmask(),
		BaseURL:   cfg.Stripe.BaseURL,
		Logger:    logger,
	})
}

func newEmailProvider(cfg *config.Config, awsCfg aws.Config, logger *slog.Logger) (external.EmailProvider, error) {
	switch cfg.Email.Provider {
	case "sendgrid":
		return external.NewSendGridClient(&http.Client{Timeout: sendGridTimeout}, external.SendGridClientConfig{
			APIKey: cfg.Email.SendGridAPIKey.Unmask(),
			Logger: logger,
		}), nil
	case "ses":
		return external.NewSESClient(awsCfg, external.SESClientConfig{
			ConfigSetName: cfg.Email.SESConfigSet,
			Logger:        logger,
		}), nil
	case "stub":
		return external.NewStubEmailProvider(logger), nil
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.Email.Provider)
	}
}

// loadAWSConfig resolves credentials lazily; nothing is fetched until a
// client makes its first call.
func loadAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.AWS.Region)}
	if cfg.AWS.EndpointURL != "" {
		opts = append(opts, awsconfig.WithBaseEndpoint(cfg.AWS.EndpointURL))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config: %w", err)
	}
	return awsCfg, nil
}
