package types

// PaymentIntentParams is the processor-agnostic request for a new payment
// intent. Automatic payment methods are always enabled.
type PaymentIntentParams struct {
	Amount       int64
	Currency     string
	ReceiptEmail string
	Metadata     map[string]string
	// IdempotencyKey makes the create call safe to retry.
	IdempotencyKey string
}

// PaymentIntentResult is what the checkout page needs back from the processor.
type PaymentIntentResult struct {
	ID           string
	ClientSecret string
	Status       string
	Amount       int64
	Currency     string
}

// ChargeDetails is the subset of a charge used to notify customers about
// refunds.
type ChargeDetails struct {
	ID            string
	Amount        int64
	Currency      string
	ReceiptEmail  string
	BillingEmail  string
	PaymentIntent string
}

// CustomerEmail returns the best address to reach the payer, preferring the
// receipt address over the billing address.
func (c ChargeDetails) CustomerEmail() string {
	if c.ReceiptEmail != "" {
		return c.ReceiptEmail
	}
	return c.BillingEmail
}

// SenderIdentity is the From address of outbound mail.
type SenderIdentity struct {
	Name    string
	Address string
}

// SendInput carries fully rendered email content to an EmailProvider.
type SendInput struct {
	To       string
	From     SenderIdentity
	Subject  string
	BodyHTML string
	BodyText string
	// ReferenceID correlates the message with the triggering event id.
	ReferenceID string
}
