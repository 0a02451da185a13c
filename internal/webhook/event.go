package webhook

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Event is the decoded webhook envelope. The object is kept as raw JSON and
// decoded on demand by the typed accessors, so an event from a family this
// site does not know about still decodes.
type Event struct {
	ID       string    `json:"id"`
	Type     string    `json:"type"`
	Created  int64     `json:"created"`
	Livemode bool      `json:"livemode"`
	Data     EventData `json:"data"`
}

// EventData wraps the event's subject object.
type EventData struct {
	Object json.RawMessage `json:"object"`
}

// Family returns the part of Type before the first dot.
func (e Event) Family() string {
	family, _, _ := strings.Cut(e.Type, ".")
	return family
}

// PaymentIntent decodes data.object for payment_intent.* events.
func (e Event) PaymentIntent() (PaymentIntent, error) {
	var pi PaymentIntent
	return pi, e.decodeObject(&pi)
}

// Charge decodes data.object for charge.* events.
func (e Event) Charge() (Charge, error) {
	var ch Charge
	return ch, e.decodeObject(&ch)
}

// Dispute decodes data.object for charge.dispute.* events.
func (e Event) Dispute() (Dispute, error) {
	var d Dispute
	return d, e.decodeObject(&d)
}

// Refund decodes data.object for refund.* events.
func (e Event) Refund() (Refund, error) {
	var r Refund
	return r, e.decodeObject(&r)
}

// Customer decodes data.object for customer.* events.
func (e Event) Customer() (Customer, error) {
	var c Customer
	return c, e.decodeObject(&c)
}

func (e Event) decodeObject(dst any) error {
	if len(e.Data.Object) == 0 {
		return fmt.Errorf("event %s (%s): data.object is empty", e.ID, e.Type)
	}
	if err := json.Unmarshal(e.Data.Object, dst); err != nil {
		return fmt.Errorf("event %s (%s): decode data.object: %w", e.ID, e.Type, err)
	}
	return nil
}

// Decode parses a verified payload into an Event. Only the envelope is
// validated: the body must be a JSON object with a non-empty type.
func Decode(p VerifiedPayload) (Event, error) {
	var ev Event
	if err := json.Unmarshal(p.Body, &ev); err != nil {
		return Event{}, wrapSignatureError(ErrInvalidPayload, err)
	}
	if ev.Type == "" {
		return Event{}, wrapSignatureError(ErrInvalidPayload, fmt.Errorf("event type is missing"))
	}
	return ev, nil
}

// ---------------------------------------------------------------------------
// Payment Objects
// ---------------------------------------------------------------------------

// PaymentIntent is the subset of a Stripe payment intent the handlers read.
type PaymentIntent struct {
	ID               string            `json:"id"`
	Amount           int64             `json:"amount"`
	Currency         string            `json:"currency"`
	Status           string            `json:"status"`
	ReceiptEmail     string            `json:"receipt_email"`
	Metadata         map[string]string `json:"metadata"`
	LastPaymentError *PaymentError     `json:"last_payment_error"`
}

// CustomerEmail returns the receipt address, falling back to the email the
// checkout page stored in metadata.
func (pi PaymentIntent) CustomerEmail() string {
	if pi.ReceiptEmail != "" {
		return pi.ReceiptEmail
	}
	return pi.Metadata["customer_email"]
}

// PaymentError is the processor's explanation of a failed attempt.
type PaymentError struct {
	Code        string `json:"code"`
	DeclineCode string `json:"decline_code"`
	Message     string `json:"message"`
}

// Charge is the subset of a Stripe charge the handlers read.
type Charge struct {
	ID             string `json:"id"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	Status         string `json:"status"`
	FailureMessage string `json:"failure_message"`
	ReceiptEmail   string `json:"receipt_email"`
	PaymentIntent  string `json:"payment_intent"`
	BillingDetails struct {
		Email string `json:"email"`
	} `json:"billing_details"`
}

// Dispute is the object carried by charge.dispute.* events.
type Dispute struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Charge   string `json:"charge"`
	Reason   string `json:"reason"`
	Status   string `json:"status"`
}

// Refund is the subset of a Stripe refund the handlers read.
type Refund struct {
	ID            string            `json:"id"`
	Amount        int64             `json:"amount"`
	Currency      string            `json:"currency"`
	Status        string            `json:"status"`
	Charge        string            `json:"charge"`
	FailureReason string            `json:"failure_reason"`
	Metadata      map[string]string `json:"metadata"`
}

// Customer is the subset of a Stripe customer the handlers read.
type Customer struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Deleted bool   `json:"deleted"`
}
