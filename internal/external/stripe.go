package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"primos/internal/types"

	stripe "github.com/stripe/stripe-go/v82"
)

// stripeAPIBase is the default Stripe API base URL.
const stripeAPIBase = "https://api.stripe.com"

// StripeClientConfig holds the configuration for creating a StripeClient.
type StripeClientConfig struct {
	SecretKey string
	BaseURL   string // Override for stripe-mock and tests; defaults to stripeAPIBase
	Logger    *slog.Logger
}

// StripeClient talks to the Stripe REST API with form-encoded requests sent
// through BaseClient. It pins the API version compiled into stripe-go so the
// JSON shapes decoded here match the webhook payloads.
type StripeClient struct {
	base      *BaseClient
	secretKey string
	baseURL   string
	logger    *slog.Logger
}

// NewStripeClient creates a StripeClient with its own breaker.
func NewStripeClient(httpClient *http.Client, cfg StripeClientConfig) *StripeClient {
	base := NewBaseClient(httpClient, "stripe", DefaultRetryPolicy(), "PrimosPayments/1.0")
	return NewStripeClientWithBase(base, cfg)
}

// NewStripeClientWithBase creates a StripeClient with a pre-configured
// BaseClient.
func NewStripeClientWithBase(base *BaseClient, cfg StripeClientConfig) *StripeClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = stripeAPIBase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &StripeClient{
		base:      base,
		secretKey: cfg.SecretKey,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		logger:    logger,
	}
}

// CreatePaymentIntent creates an intent with automatic payment methods
// enabled. The idempotency key, when set, makes transport retries safe.
func (s *StripeClient) CreatePaymentIntent(ctx context.Context, p types.PaymentIntentParams) (*types.PaymentIntentResult, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(p.Amount, 10))
	form.Set("currency", p.Currency)
	form.Set("automatic_payment_methods[enabled]", "true")
	if p.ReceiptEmail != "" {
		form.Set("receipt_email", p.ReceiptEmail)
	}
	setMetadata(form, p.Metadata)

	resp, err := s.doPost(ctx, "/v1/payment_intents", form, p.IdempotencyKey)
	if err != nil {
		return nil, s.wrapStripeError("CreatePaymentIntent", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, s.handleErrorResponse(resp, "CreatePaymentIntent")
	}

	var pi stripePaymentIntent
	if err := json.NewDecoder(resp.Body).Decode(&pi); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamStripe, "failed to decode Stripe payment intent response", err)
	}

	s.logger.DebugContext(ctx, "stripe payment intent created", "payment_intent_id", pi.ID, "status", pi.Status)

	return &types.PaymentIntentResult{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       pi.Status,
		Amount:       pi.Amount,
		Currency:     pi.Currency,
	}, nil
}

// RetrieveCharge fetches a charge by id.
func (s *StripeClient) RetrieveCharge(ctx context.Context, chargeID string) (*types.ChargeDetails, error) {
	if chargeID == "" {
		return nil, types.NewAppError(types.ErrCodeUpstreamStripe, "RetrieveCharge: charge id is empty", nil)
	}

	resp, err := s.doGet(ctx, "/v1/charges/"+url.PathEscape(chargeID))
	if err != nil {
		return nil, s.wrapStripeError("RetrieveCharge", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, s.handleErrorResponse(resp, "RetrieveCharge")
	}

	var ch stripeCharge
	if err := json.NewDecoder(resp.Body).Decode(&ch); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamStripe, "failed to decode Stripe charge response", err)
	}

	return &types.ChargeDetails{
		ID:            ch.ID,
		Amount:        ch.Amount,
		Currency:      ch.Currency,
		ReceiptEmail:  ch.ReceiptEmail,
		BillingEmail:  ch.BillingDetails.Email,
		PaymentIntent: ch.PaymentIntent,
	}, nil
}

// UpdateRefundMetadata merges metadata into a refund. Stripe treats metadata
// updates as idempotent so the request is keyed to allow transport retries.
func (s *StripeClient) UpdateRefundMetadata(ctx context.Context, refundID string, metadata map[string]string) error {
	if refundID == "" {
		return types.NewAppError(types.ErrCodeUpstreamStripe, "UpdateRefundMetadata: refund id is empty", nil)
	}

	form := url.Values{}
	setMetadata(form, metadata)

	key := "refund-meta-" + refundID + "-" + metadataFingerprint(metadata)
	resp, err := s.doPost(ctx, "/v1/refunds/"+url.PathEscape(refundID), form, key)
	if err != nil {
		return s.wrapStripeError("UpdateRefundMetadata", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return s.handleErrorResponse(resp, "UpdateRefundMetadata")
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func setMetadata(form url.Values, metadata map[string]string) {
	for k, v := range metadata {
		form.Set("metadata["+k+"]", v)
	}
}

func metadataFingerprint(metadata map[string]string) string {
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(metadata[k])
		b.WriteByte(';')
	}
	return b.String()
}

// ---------------------------------------------------------------------------
// HTTP Helpers
// ---------------------------------------------------------------------------

func (s *StripeClient) doGet(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	s.setAuthHeaders(req)
	return s.base.Do(req)
}

func (s *StripeClient) doPost(ctx context.Context, path string, form url.Values, idempotencyKey string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	s.setAuthHeaders(req)
	return s.base.Do(req)
}

func (s *StripeClient) setAuthHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+s.secretKey)
	req.Header.Set("Stripe-Version", stripe.APIVersion)
}

// ---------------------------------------------------------------------------
// Error Handling
// ---------------------------------------------------------------------------

type stripeErrorResponse struct {
	Error stripeErrorBody `json:"error"`
}

type stripeErrorBody struct {
	Type        string `json:"type"`
	Code        string `json:"code"`
	DeclineCode string `json:"decline_code"`
	Message     string `json:"message"`
	Param       string `json:"param"`
}

func (s *StripeClient) handleErrorResponse(resp *http.Response, operation string) error {
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: Stripe returned status %d and response body was unreadable", operation, resp.StatusCode),
			readErr,
		)
	}

	var stripeErr stripeErrorResponse
	if jsonErr := json.Unmarshal(body, &stripeErr); jsonErr != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: Stripe returned status %d with non-JSON body", operation, resp.StatusCode),
			jsonErr,
		)
	}

	return mapStripeError(operation, resp.StatusCode, &stripeErr.Error)
}

func mapStripeError(operation string, statusCode int, stripeErr *stripeErrorBody) error {
	if stripeErr.Code == "card_declined" || stripeErr.DeclineCode != "" {
		return types.NewAppErrorWithDetails(
			types.ErrCodePaymentDeclined,
			fmt.Sprintf("%s: payment declined: %s", operation, stripeErr.Message),
			nil,
			withProcessorMessage(map[string]any{
				"decline_code": stripeErr.DeclineCode,
				"stripe_code":  stripeErr.Code,
			}, stripeErr.Message),
		)
	}

	switch {
	case statusCode == http.StatusTooManyRequests:
		return types.NewAppError(types.ErrCodeUpstreamRateLimited, fmt.Sprintf("%s: Stripe rate limit exceeded", operation), nil)
	case statusCode >= 500:
		return types.NewAppErrorWithDetails(
			types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("%s: Stripe server error: %s", operation, stripeErr.Message),
			nil,
			withProcessorMessage(nil, stripeErr.Message),
		)
	default:
		return types.NewAppErrorWithDetails(
			types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: Stripe error (%d): %s", operation, statusCode, stripeErr.Message),
			nil,
			withProcessorMessage(map[string]any{
				"stripe_type":  stripeErr.Type,
				"stripe_code":  stripeErr.Code,
				"stripe_param": stripeErr.Param,
			}, stripeErr.Message),
		)
	}
}

// withProcessorMessage records Stripe's customer-facing message, without the
// operation prefix, under types.DetailProcessorMessage.
func withProcessorMessage(details map[string]any, message string) map[string]any {
	if message == "" {
		return details
	}
	if details == nil {
		details = make(map[string]any, 1)
	}
	details[types.DetailProcessorMessage] = message
	return details
}

// wrapStripeError keeps AppErrors from BaseClient as-is and wraps anything
// else (request construction failures) as an upstream error.
func (s *StripeClient) wrapStripeError(operation string, err error) error {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return types.NewAppError(
		types.ErrCodeUpstreamStripe,
		fmt.Sprintf("%s: Stripe request failed: %v", operation, err),
		err,
	)
}

// ---------------------------------------------------------------------------
// Stripe JSON Shapes
// ---------------------------------------------------------------------------

type stripePaymentIntent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Status       string `json:"status"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
}

type stripeCharge struct {
	ID             string `json:"id"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	ReceiptEmail   string `json:"receipt_email"`
	PaymentIntent  string `json:"payment_intent"`
	BillingDetails struct {
		Email string `json:"email"`
	} `json:"billing_details"`
}

// stripeTimeout is the HTTP client timeout recommended for Stripe calls.
const stripeTimeout = 20 * time.Second

// NewStripeHTTPClient returns an *http.Client tuned for Stripe.
func NewStripeHTTPClient() *http.Client {
	return &http.Client{Timeout: stripeTimeout}
}
