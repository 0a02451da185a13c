package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"primos/internal/core"
	"primos/internal/types"
)

// Defaults for POST /create-payment-intent.
const (
	DefaultIntentAmount   int64 = 1000 // $10.00
	DefaultIntentCurrency       = "usd"
)

// intentFailureMessage is shown when the processor gave no message of its own.
const intentFailureMessage = "Unable to start the payment. Please try again."

// IntentCreator is the processor call behind the checkout page.
type IntentCreator interface {
	CreatePaymentIntent(ctx context.Context, params types.PaymentIntentParams) (*types.PaymentIntentResult, error)
}

// EmailChecker validates optional customer addresses.
type EmailChecker interface {
	IsEmail(s string) bool
}

// PaymentIntentHandler is the POST /create-payment-intent endpoint.
type PaymentIntentHandler struct {
	processor IntentCreator
	emails    EmailChecker
	logger    *slog.Logger
	now       func() time.Time
	newKey    func() string
}

// NewPaymentIntentHandler creates a PaymentIntentHandler.
func NewPaymentIntentHandler(processor IntentCreator, emails EmailChecker, logger *slog.Logger) *PaymentIntentHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PaymentIntentHandler{
		processor: processor,
		emails:    emails,
		logger:    logger,
		now:       time.Now,
		newKey:    uuid.NewString,
	}
}

// RegisterRoutes mounts the intent endpoint.
func (h *PaymentIntentHandler) RegisterRoutes(r chi.Router) {
	r.Post("/create-payment-intent", h.Create)
}

type createIntentResponse struct {
	ClientSecret string `json:"clientSecret"`
}

// Create builds a payment intent from {amount?, email?}. The body is parsed
// leniently: anything unusable falls back to the defaults. Processor failures
// are answered with 403 and the processor's customer-facing message; the full
// error is only logged.
func (h *PaymentIntentHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := types.LoggerFromContext(ctx, h.logger)

	amount, email := h.parseRequest(w, r, log)

	metadata := map[string]string{
		"timestamp": h.now().UTC().Format(time.RFC3339),
		"source":    "website",
	}
	if email != "" {
		metadata["customer_email"] = email
	}

	result, err := h.processor.CreatePaymentIntent(ctx, types.PaymentIntentParams{
		Amount:         amount,
		Currency:       DefaultIntentCurrency,
		ReceiptEmail:   email,
		Metadata:       metadata,
		IdempotencyKey: h.newKey(),
	})
	if err != nil {
		log.ErrorContext(ctx, "Error creating payment intent", slog.Int64("amount_minor", amount), "error", err)
		core.Error(w, r, types.NewAppError(types.ErrCodePaymentIntentRejected, clientMessage(err), err))
		return
	}

	log.InfoContext(ctx, "Created payment intent for "+types.FormatAmount(amount, ""),
		slog.String("payment_intent_id", result.ID),
		slog.Int64("amount_minor", amount),
	)
	core.JSON(w, r, http.StatusOK, createIntentResponse{ClientSecret: result.ClientSecret})
}

// parseRequest extracts the amount and a validated email. It never fails.
func (h *PaymentIntentHandler) parseRequest(w http.ResponseWriter, r *http.Request, log *slog.Logger) (int64, string) {
	var body map[string]json.RawMessage
	if err := core.DecodeJSON(w, r, &body); err != nil {
		if !errors.Is(err, io.EOF) {
			log.WarnContext(r.Context(), "unusable payment intent request body, using defaults", "error", err)
		}
		return DefaultIntentAmount, ""
	}

	amount := DefaultIntentAmount
	if raw, ok := body["amount"]; ok {
		if n, ok := parseAmount(raw); ok {
			amount = n
		} else {
			log.WarnContext(r.Context(), "invalid amount, using default",
				slog.String("amount", string(raw)),
				slog.Int64("default", DefaultIntentAmount),
			)
		}
	}

	var email string
	if raw, ok := body["email"]; ok {
		if err := json.Unmarshal(raw, &email); err != nil {
			log.WarnContext(r.Context(), "invalid customer email dropped", "error", err)
			email = ""
		} else if email != "" && (h.emails == nil || !h.emails.IsEmail(email)) {
			log.WarnContext(r.Context(), "invalid customer email dropped")
			email = ""
		}
	}

	return amount, email
}

func clientMessage(err error) string {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		if msg, ok := appErr.Details[types.DetailProcessorMessage].(string); ok && msg != "" {
			return msg
		}
	}
	return intentFailureMessage
}

// parseAmount accepts a positive integer, given as a JSON number or a numeric
// string.
func parseAmount(raw json.RawMessage) (int64, bool) {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, false
	}
	v, err := n.Int64()
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}
