package external

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"primos/internal/types"
)

// Stub implementations let the site boot with APP_ENV=local without Stripe or
// email credentials. They log every call and return predictable values.

// StubPaymentProcessor fakes the Stripe API.
type StubPaymentProcessor struct {
	logger *slog.Logger
	seq    atomic.Int64
}

// NewStubPaymentProcessor creates a new StubPaymentProcessor.
func NewStubPaymentProcessor(logger *slog.Logger) *StubPaymentProcessor {
	return &StubPaymentProcessor{logger: logger}
}

func (s *StubPaymentProcessor) CreatePaymentIntent(ctx context.Context, p types.PaymentIntentParams) (*types.PaymentIntentResult, error) {
	n := s.seq.Add(1)
	id := fmt.Sprintf("pi_stub_%d", n)
	s.logger.InfoContext(ctx, "stub: CreatePaymentIntent called",
		"amount", p.Amount,
		"currency", p.Currency,
		"idempotency_key", p.IdempotencyKey,
	)
	return &types.PaymentIntentResult{
		ID:           id,
		ClientSecret: id + "_secret_stub",
		Status:       "requires_payment_method",
		Amount:       p.Amount,
		Currency:     p.Currency,
	}, nil
}

func (s *StubPaymentProcessor) RetrieveCharge(ctx context.Context, chargeID string) (*types.ChargeDetails, error) {
	s.logger.InfoContext(ctx, "stub: RetrieveCharge called", "charge_id", chargeID)
	return &types.ChargeDetails{
		ID:           chargeID,
		Currency:     "usd",
		ReceiptEmail: "stub@example.com",
	}, nil
}

func (s *StubPaymentProcessor) UpdateRefundMetadata(ctx context.Context, refundID string, metadata map[string]string) error {
	s.logger.InfoContext(ctx, "stub: UpdateRefundMetadata called",
		"refund_id", refundID,
		"metadata", metadata,
	)
	return nil
}

// StubEmailProvider logs messages instead of sending them.
type StubEmailProvider struct {
	logger *slog.Logger
}

// NewStubEmailProvider creates a new StubEmailProvider.
func NewStubEmailProvider(logger *slog.Logger) *StubEmailProvider {
	return &StubEmailProvider{logger: logger}
}

func (s *StubEmailProvider) Send(ctx context.Context, input types.SendInput) (string, error) {
	s.logger.InfoContext(ctx, "stub: Send email called",
		"to", input.To,
		"subject", input.Subject,
		"from", input.From.Address,
	)
	return fmt.Sprintf("msg_stub_%s", input.ReferenceID), nil
}
