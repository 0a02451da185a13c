package external

import (
	"context"

	"primos/internal/types"
)

// PaymentProcessor is the subset of the payment provider API the site uses.
type PaymentProcessor interface {
	// CreatePaymentIntent creates an intent and returns its client secret.
	CreatePaymentIntent(ctx context.Context, params types.PaymentIntentParams) (*types.PaymentIntentResult, error)

	// RetrieveCharge looks up a charge, used to find the payer's email when a
	// refund event only carries the charge id.
	RetrieveCharge(ctx context.Context, chargeID string) (*types.ChargeDetails, error)

	// UpdateRefundMetadata merges metadata into a refund.
	UpdateRefundMetadata(ctx context.Context, refundID string, metadata map[string]string) error
}

// EmailProvider transmits pre-rendered email content.
type EmailProvider interface {
	// Send returns the provider's message ID for correlation.
	Send(ctx context.Context, input types.SendInput) (providerMsgID string, err error)
}

var (
	_ PaymentProcessor = (*StripeClient)(nil)
	_ PaymentProcessor = (*StubPaymentProcessor)(nil)
	_ EmailProvider    = (*SendGridClient)(nil)
	_ EmailProvider    = (*SESClient)(nil)
	_ EmailProvider    = (*StubEmailProvider)(nil)
)
