package notifications

import (
	"context"
	"fmt"
	"log/slog"

	"primos/internal/external"
	"primos/internal/types"
)

// NotifierConfig holds the addresses used by a Notifier.
type NotifierConfig struct {
	From types.SenderIdentity
	// AdminAddress receives operator notices. Empty disables them.
	AdminAddress string
}

// Notifier sends receipts and admin notices through an EmailProvider. It
// satisfies the receipt and admin interfaces of the webhook handlers.
type Notifier struct {
	provider external.EmailProvider
	renderer *Renderer
	cfg      NotifierConfig
	logger   *slog.Logger
}

// NewNotifier creates a Notifier.
func NewNotifier(provider external.EmailProvider, renderer *Renderer, cfg NotifierConfig, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		provider: provider,
		renderer: renderer,
		cfg:      cfg,
		logger:   logger,
	}
}

// SendReceipt emails a payment or refund receipt to the customer. A blocked
// recipient is logged and treated as delivered.
func (n *Notifier) SendReceipt(ctx context.Context, rc types.Receipt) error {
	log := types.LoggerFromContext(ctx, n.logger).With(
		slog.String("event_id", rc.EventID),
		slog.String("receipt_kind", string(rc.Kind)),
		slog.String("to", RedactEmail(rc.To)),
	)
	if rc.To == "" {
		log.WarnContext(ctx, "receipt has no recipient, skipping")
		return nil
	}

	rendered, err := n.renderer.RenderReceipt(rc)
	if err != nil {
		return fmt.Errorf("render receipt: %w", err)
	}
	return n.send(ctx, log, rc.To, rc.EventID, rendered)
}

// NotifyAdmin emails an operator notice. It is a no-op without an admin
// address.
func (n *Notifier) NotifyAdmin(ctx context.Context, notice types.AdminNotice) error {
	log := types.LoggerFromContext(ctx, n.logger).With(
		slog.String("event_id", notice.EventID),
		slog.String("severity", string(notice.Severity)),
	)
	if n.cfg.AdminAddress == "" {
		log.DebugContext(ctx, "admin address not configured, notice dropped")
		return nil
	}

	rendered, err := n.renderer.RenderAdminNotice(notice)
	if err != nil {
		return fmt.Errorf("render admin notice: %w", err)
	}
	return n.send(ctx, log, n.cfg.AdminAddress, notice.EventID, rendered)
}

func (n *Notifier) send(ctx context.Context, log *slog.Logger, to, ref string, rendered *RenderedEmail) error {
	msgID, err := n.provider.Send(ctx, types.SendInput{
		To:          to,
		From:        n.cfg.From,
		Subject:     rendered.Subject,
		BodyHTML:    rendered.BodyHTML,
		BodyText:    rendered.BodyText,
		ReferenceID: ref,
	})
	if err != nil {
		if IsBlocklistError(err) {
			log.WarnContext(ctx, "recipient blocked, email not sent", "error", err)
			return nil
		}
		return fmt.Errorf("send email: %w", err)
	}

	log.InfoContext(ctx, "email sent",
		slog.String("subject", rendered.Subject),
		slog.String("provider_msg_id", msgID),
	)
	return nil
}
