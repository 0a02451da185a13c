// Package handlers contains the HTTP endpoints of the payment flow: the
// processor webhook and payment-intent creation. Page routes live in
// internal/site.
package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"primos/internal/core"
	"primos/internal/types"
	"primos/internal/webhook"
)

// maxWebhookBodySize caps webhook payloads (64 KB).
const maxWebhookBodySize = 64 * 1024

// EventVerifier authenticates a raw webhook body.
type EventVerifier interface {
	Verify(rawBody []byte, signatureHeader string) (webhook.VerifiedPayload, error)
}

// EventDispatcher routes a decoded event to its handler.
type EventDispatcher interface {
	Dispatch(ctx context.Context, ev webhook.Event) (webhook.Route, error)
}

// WebhookMetrics records the outcome of each delivery. Optional.
type WebhookMetrics interface {
	RecordWebhook(ctx context.Context, eventType string, route webhook.Route, outcome string)
}

// Delivery outcomes reported to WebhookMetrics.
const (
	OutcomeProcessed = "processed"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
)

// WebhookHandler is the POST /webhook endpoint.
type WebhookHandler struct {
	verifier EventVerifier
	router   EventDispatcher
	metrics  WebhookMetrics
	logger   *slog.Logger
}

// NewWebhookHandler creates a WebhookHandler. metrics may be nil.
func NewWebhookHandler(verifier EventVerifier, router EventDispatcher, metrics WebhookMetrics, logger *slog.Logger) *WebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookHandler{
		verifier: verifier,
		router:   router,
		metrics:  metrics,
		logger:   logger,
	}
}

// RegisterRoutes mounts the webhook endpoint.
func (h *WebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/webhook", h.Handle)
}

// Handle verifies, decodes and dispatches one delivery.
//
//	200 {"status":"success"}  handled, or an event type with no handler
//	400 {"error":...}         missing/invalid signature or malformed payload
//	500 {"error":...}         a handler failed; the processor will redeliver
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := types.LoggerFromContext(ctx, h.logger)

	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		log.ErrorContext(ctx, "failed to read webhook body", "error", err)
		h.record(ctx, "", "", OutcomeRejected)
		msg := "Invalid payload"
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			msg = "Payload too large"
		}
		core.Error(w, r, types.NewAppError(types.ErrCodeWebhookBodyUnreadable, msg, err))
		return
	}

	verified, err := h.verifier.Verify(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		h.reject(w, r, log, err)
		return
	}

	ev, err := webhook.Decode(verified)
	if err != nil {
		h.reject(w, r, log, err)
		return
	}

	log = log.With(slog.String("event_id", ev.ID), slog.String("event_type", ev.Type))
	log.InfoContext(ctx, "Received valid webhook event", slog.Bool("signed", verified.Signed))

	route, err := h.router.Dispatch(ctx, ev)
	if err != nil {
		log.ErrorContext(ctx, "Error processing webhook event", slog.String("route", string(route)), "error", err)
		h.record(ctx, ev.Type, route, OutcomeFailed)
		core.Error(w, r, types.NewAppError(types.ErrCodeHandlerFailed, "Error processing webhook", err))
		return
	}

	h.record(ctx, ev.Type, route, OutcomeProcessed)
	core.JSON(w, r, http.StatusOK, map[string]string{"status": "success"})
}

func (h *WebhookHandler) reject(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	appErr := webhook.AsAppError(err)
	if appErr == nil {
		appErr = types.NewAppError(types.ErrCodeInternalUnexpected, "Unexpected error", err)
	}
	log.ErrorContext(r.Context(), appErr.Message, slog.String("code", string(appErr.Code)), "error", err)
	h.record(r.Context(), "", "", OutcomeRejected)
	core.Error(w, r, appErr)
}

func (h *WebhookHandler) record(ctx context.Context, eventType string, route webhook.Route, outcome string) {
	if h.metrics == nil {
		return
	}
	h.metrics.RecordWebhook(ctx, eventType, route, outcome)
}
