package webhook

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"primos/internal/types"
)

// ReceiptSender delivers customer-facing payment and refund receipts.
type ReceiptSender interface {
	SendReceipt(ctx context.Context, r types.Receipt) error
}

// AdminNotifier alerts the site operator about events that may need action.
type AdminNotifier interface {
	NotifyAdmin(ctx context.Context, n types.AdminNotice) error
}

// ProcessorClient is the part of the processor API the handlers call back
// into.
type ProcessorClient interface {
	RetrieveCharge(ctx context.Context, chargeID string) (*types.ChargeDetails, error)
	UpdateRefundMetadata(ctx context.Context, refundID string, metadata map[string]string) error
}

// HandlerDeps are the collaborators injected into Handlers. Nil notifiers are
// replaced with no-ops; Processor is required for refund handling.
type HandlerDeps struct {
	Receipts  ReceiptSender
	Admin     AdminNotifier
	Processor ProcessorClient
	Logger    *slog.Logger
}

// Handlers implements the per-type webhook handlers.
type Handlers struct {
	receipts  ReceiptSender
	admin     AdminNotifier
	processor ProcessorClient
	logger    *slog.Logger
}

// NewHandlers creates a Handlers from deps.
func NewHandlers(deps HandlerDeps) *Handlers {
	h := &Handlers{
		receipts:  deps.Receipts,
		admin:     deps.Admin,
		processor: deps.Processor,
		logger:    deps.Logger,
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	if h.receipts == nil {
		h.receipts = nopNotifier{}
	}
	if h.admin == nil {
		h.admin = nopNotifier{}
	}
	return h
}

// NewDefaultRouter wires every handled event type into a Router.
func NewDefaultRouter(h *Handlers, logger *slog.Logger) *Router {
	return NewRouter(logger,
		Family{
			Name: "payment_intent",
			Handlers: map[string]HandlerFunc{
				"payment_intent.succeeded":      h.PaymentIntentSucceeded,
				"payment_intent.payment_failed": h.PaymentIntentFailed,
				"payment_intent.created":        h.PaymentIntentCreated,
				"payment_intent.canceled":       h.PaymentIntentCanceled,
			},
		},
		Family{
			Name: "charge",
			Handlers: map[string]HandlerFunc{
				"charge.succeeded":       h.ChargeSucceeded,
				"charge.failed":          h.ChargeFailed,
				"charge.refunded":        h.ChargeRefunded,
				"charge.dispute.created": h.DisputeCreated,
			},
		},
		Family{
			Name: "refund",
			Handlers: map[string]HandlerFunc{
				"refund.succeeded": h.RefundSucceeded,
				"refund.failed":    h.RefundFailed,
			},
		},
		Family{
			Name: "customer",
			Handlers: map[string]HandlerFunc{
				"customer.created": h.CustomerChanged,
				"customer.updated": h.CustomerChanged,
				"customer.deleted": h.CustomerChanged,
			},
		},
	)
}

func (h *Handlers) log(ctx context.Context, ev Event) *slog.Logger {
	return types.LoggerFromContext(ctx, h.logger).With(
		slog.String("event_id", ev.ID),
		slog.String("event_type", ev.Type),
	)
}

func amountAttrs(amount int64, currency string) []any {
	return []any{
		slog.String("amount", types.FormatAmount(amount, currency)),
		slog.Int64("amount_minor", amount),
		slog.String("currency", currency),
	}
}

// ---------------------------------------------------------------------------
// payment_intent.*
// ---------------------------------------------------------------------------

// PaymentIntentSucceeded sends the customer a receipt when the intent carries
// an email, then notifies the operator.
func (h *Handlers) PaymentIntentSucceeded(ctx context.Context, ev Event) error {
	pi, err := ev.PaymentIntent()
	if err != nil {
		return err
	}
	log := h.log(ctx, ev).With(slog.String("payment_intent_id", pi.ID))
	log.InfoContext(ctx, "Payment succeeded", amountAttrs(pi.Amount, pi.Currency)...)

	if to := pi.CustomerEmail(); to != "" {
		err := h.receipts.SendReceipt(ctx, types.Receipt{
			Kind:     types.ReceiptPayment,
			EventID:  ev.ID,
			To:       to,
			ObjectID: pi.ID,
			Amount:   pi.Amount,
			Currency: pi.Currency,
		})
		if err != nil {
			return fmt.Errorf("send payment receipt: %w", err)
		}
	} else {
		log.InfoContext(ctx, "no customer email on payment intent, receipt skipped")
	}

	return h.notify(ctx, types.AdminNotice{
		EventID:   ev.ID,
		EventType: ev.Type,
		Severity:  types.SeverityInfo,
		Summary:   "Payment succeeded",
		ObjectID:  pi.ID,
		Amount:    pi.Amount,
		Currency:  pi.Currency,
	})
}

// PaymentIntentFailed logs the last payment error and alerts the operator.
func (h *Handlers) PaymentIntentFailed(ctx context.Context, ev Event) error {
	pi, err := ev.PaymentIntent()
	if err != nil {
		return err
	}
	detail := ""
	if pi.LastPaymentError != nil {
		detail = pi.LastPaymentError.Message
	}
	attrs := append(amountAttrs(pi.Amount, pi.Currency), slog.String("error_details", detail))
	h.log(ctx, ev).ErrorContext(ctx, "Payment failed",
		append(attrs, slog.String("payment_intent_id", pi.ID))...)

	return h.notify(ctx, types.AdminNotice{
		EventID:   ev.ID,
		EventType: ev.Type,
		Severity:  types.SeverityError,
		Summary:   "Payment failed",
		ObjectID:  pi.ID,
		Amount:    pi.Amount,
		Currency:  pi.Currency,
		Detail:    detail,
	})
}

// PaymentIntentCreated logs the new intent.
func (h *Handlers) PaymentIntentCreated(ctx context.Context, ev Event) error {
	return h.logPaymentIntent(ctx, ev, "Payment intent created")
}

// PaymentIntentCanceled logs the canceled intent.
func (h *Handlers) PaymentIntentCanceled(ctx context.Context, ev Event) error {
	return h.logPaymentIntent(ctx, ev, "Payment intent canceled")
}

func (h *Handlers) logPaymentIntent(ctx context.Context, ev Event, msg string) error {
	pi, err := ev.PaymentIntent()
	if err != nil {
		return err
	}
	h.log(ctx, ev).InfoContext(ctx, msg,
		append(amountAttrs(pi.Amount, pi.Currency), slog.String("payment_intent_id", pi.ID))...)
	return nil
}

// ---------------------------------------------------------------------------
// charge.*
// ---------------------------------------------------------------------------

// ChargeSucceeded logs the charge.
func (h *Handlers) ChargeSucceeded(ctx context.Context, ev Event) error {
	return h.logCharge(ctx, ev, "Charge succeeded")
}

// ChargeRefunded logs the charge. The customer notice is sent from
// RefundSucceeded.
func (h *Handlers) ChargeRefunded(ctx context.Context, ev Event) error {
	return h.logCharge(ctx, ev, "Charge refunded")
}

// ChargeFailed logs the charge with its failure message.
func (h *Handlers) ChargeFailed(ctx context.Context, ev Event) error {
	ch, err := ev.Charge()
	if err != nil {
		return err
	}
	attrs := append(amountAttrs(ch.Amount, ch.Currency),
		slog.String("charge_id", ch.ID),
		slog.String("error_details", ch.FailureMessage),
	)
	h.log(ctx, ev).ErrorContext(ctx, "Charge failed", attrs...)
	return nil
}

func (h *Handlers) logCharge(ctx context.Context, ev Event, msg string) error {
	ch, err := ev.Charge()
	if err != nil {
		return err
	}
	h.log(ctx, ev).InfoContext(ctx, msg,
		append(amountAttrs(ch.Amount, ch.Currency), slog.String("charge_id", ch.ID))...)
	return nil
}

// DisputeCreated warns about the disputed charge and notifies the operator.
func (h *Handlers) DisputeCreated(ctx context.Context, ev Event) error {
	d, err := ev.Dispute()
	if err != nil {
		return err
	}
	attrs := append(amountAttrs(d.Amount, d.Currency),
		slog.String("dispute_id", d.ID),
		slog.String("charge_id", d.Charge),
		slog.String("reason", d.Reason),
	)
	h.log(ctx, ev).WarnContext(ctx, "Dispute created for charge", attrs...)

	return h.notify(ctx, types.AdminNotice{
		EventID:   ev.ID,
		EventType: ev.Type,
		Severity:  types.SeverityWarning,
		Summary:   "Dispute created for charge " + d.Charge,
		ObjectID:  d.ID,
		Amount:    d.Amount,
		Currency:  d.Currency,
		Detail:    d.Reason,
	})
}

// ---------------------------------------------------------------------------
// refund.*
// ---------------------------------------------------------------------------

// RefundSucceeded looks up the refunded charge and sends its customer a
// refund notice.
func (h *Handlers) RefundSucceeded(ctx context.Context, ev Event) error {
	r, err := ev.Refund()
	if err != nil {
		return err
	}
	log := h.log(ctx, ev).With(slog.String("refund_id", r.ID))
	log.InfoContext(ctx, "Refund succeeded", amountAttrs(r.Amount, r.Currency)...)

	if r.Charge == "" || h.processor == nil {
		log.WarnContext(ctx, "refund has no charge to look up, notice skipped")
		return nil
	}

	ch, err := h.processor.RetrieveCharge(ctx, r.Charge)
	if err != nil {
		return fmt.Errorf("retrieve charge %s: %w", r.Charge, err)
	}
	to := ch.CustomerEmail()
	if to == "" {
		log.InfoContext(ctx, "no customer email on charge, refund notice skipped", slog.String("charge_id", ch.ID))
		return nil
	}

	err = h.receipts.SendReceipt(ctx, types.Receipt{
		Kind:     types.ReceiptRefund,
		EventID:  ev.ID,
		To:       to,
		ObjectID: r.ID,
		Amount:   r.Amount,
		Currency: r.Currency,
	})
	if err != nil {
		return fmt.Errorf("send refund notice: %w", err)
	}
	return nil
}

// RefundFailed logs the failure and records one retry on the refund.
func (h *Handlers) RefundFailed(ctx context.Context, ev Event) error {
	r, err := ev.Refund()
	if err != nil {
		return err
	}
	attrs := append(amountAttrs(r.Amount, r.Currency),
		slog.String("refund_id", r.ID),
		slog.String("failure_reason", r.FailureReason),
	)
	h.log(ctx, ev).ErrorContext(ctx, "Refund failed", attrs...)

	h.retryRefund(ctx, ev, r)
	return nil
}

// retryRefund bumps metadata.retry_count on the refund with a single
// processor call. Failures are logged and swallowed.
func (h *Handlers) retryRefund(ctx context.Context, ev Event, r Refund) {
	log := h.log(ctx, ev).With(slog.String("refund_id", r.ID))
	if h.processor == nil || r.ID == "" {
		log.WarnContext(ctx, "refund retry skipped")
		return
	}

	prev, err := strconv.Atoi(r.Metadata["retry_count"])
	if err != nil || prev < 0 {
		prev = 0
	}
	next := strconv.Itoa(prev + 1)

	if err := h.processor.UpdateRefundMetadata(ctx, r.ID, map[string]string{"retry_count": next}); err != nil {
		log.ErrorContext(ctx, "refund retry failed", slog.String("retry_count", next), slog.Any("error", err))
		return
	}
	log.InfoContext(ctx, "refund retry recorded", slog.String("retry_count", next))
}

// ---------------------------------------------------------------------------
// customer.*
// ---------------------------------------------------------------------------

// CustomerChanged logs customer.created, customer.updated and
// customer.deleted.
func (h *Handlers) CustomerChanged(ctx context.Context, ev Event) error {
	c, err := ev.Customer()
	if err != nil {
		return err
	}
	msg := "Customer updated"
	switch ev.Type {
	case "customer.created":
		msg = "Customer created"
	case "customer.deleted":
		msg = "Customer deleted"
	}
	h.log(ctx, ev).InfoContext(ctx, msg, slog.String("customer_id", c.ID))
	return nil
}

func (h *Handlers) notify(ctx context.Context, n types.AdminNotice) error {
	if err := h.admin.NotifyAdmin(ctx, n); err != nil {
		return fmt.Errorf("notify admin: %w", err)
	}
	return nil
}

type nopNotifier struct{}

func (nopNotifier) SendReceipt(context.Context, types.Receipt) error    { return nil }
func (nopNotifier) NotifyAdmin(context.Context, types.AdminNotice) error { return nil }
