// Package webhook implements the inbound payment-event pipeline: signature
// verification, decoding into a typed envelope, two-level dispatch by event
// family and exact type, and the per-type handlers.
package webhook

import (
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"primos/internal/types"

	"github.com/stripe/stripe-go/v82/webhook"
)

// DefaultTolerance is the maximum age of a signed delivery.
const DefaultTolerance = webhook.DefaultTolerance

// ErrUnsignedNotAllowed is returned by NewVerifier when no signing secret is
// configured outside a development environment.
var ErrUnsignedNotAllowed = errors.New("webhook: signing secret required outside development")

// VerifiedPayload is a raw body that passed the signature gate and is known to
// be well-formed JSON.
type VerifiedPayload struct {
	Body []byte
	// Signed is false when verification was skipped in development mode.
	Signed bool
}

// Verifier checks the Stripe-Signature header (t=<unix>,v1=<hex hmac>) against
// the raw body.
type Verifier struct {
	secret    types.SecretString
	tolerance time.Duration
	logger    *slog.Logger
}

// VerifierOption customizes a Verifier.
type VerifierOption func(*Verifier)

// WithTolerance overrides the timestamp tolerance.
func WithTolerance(d time.Duration) VerifierOption {
	return func(v *Verifier) { v.tolerance = d }
}

// NewVerifier returns a Verifier for secret. An empty secret puts the
// verifier in development mode, which is only permitted when allowUnsigned is
// true; callers pass cfg.IsLocal() so production can never run unsigned.
func NewVerifier(secret types.SecretString, allowUnsigned bool, logger *slog.Logger, opts ...VerifierOption) (*Verifier, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if !secret.IsSet() && !allowUnsigned {
		return nil, ErrUnsignedNotAllowed
	}
	v := &Verifier{secret: secret, tolerance: DefaultTolerance, logger: logger}
	for _, opt := range opts {
		opt(v)
	}
	if !secret.IsSet() {
		logger.Warn("webhook signature verification disabled (no STRIPE_WEBHOOK_SECRET)")
	}
	return v, nil
}

// DevelopmentMode reports whether signatures are skipped.
func (v *Verifier) DevelopmentMode() bool {
	return !v.secret.IsSet()
}

// Verify authenticates rawBody.
//
// In development mode the header is ignored and only JSON well-formedness is
// checked. Otherwise a missing header is ErrMissingSignature, any header that
// does not carry a valid, fresh signature for rawBody is ErrSignatureMismatch,
// and a correctly signed body that is not JSON is ErrInvalidPayload.
func (v *Verifier) Verify(rawBody []byte, signatureHeader string) (VerifiedPayload, error) {
	if v.DevelopmentMode() {
		if !json.Valid(rawBody) {
			return VerifiedPayload{}, ErrInvalidPayload
		}
		return VerifiedPayload{Body: rawBody}, nil
	}

	if signatureHeader == "" {
		return VerifiedPayload{}, ErrMissingSignature
	}

	if err := webhook.ValidatePayloadWithTolerance(rawBody, signatureHeader, v.secret.Unmask(), v.tolerance); err != nil {
		return VerifiedPayload{}, wrapSignatureError(ErrSignatureMismatch, err)
	}

	if !json.Valid(rawBody) {
		return VerifiedPayload{}, ErrInvalidPayload
	}

	return VerifiedPayload{Body: rawBody, Signed: true}, nil
}
