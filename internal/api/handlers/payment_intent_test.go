package handlers

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"primos/internal/config"
	"primos/internal/core"
	"primos/internal/types"
)

type mockIntentCreator struct {
	mock.Mock
}

func (m *mockIntentCreator) CreatePaymentIntent(ctx context.Context, p types.PaymentIntentParams) (*types.PaymentIntentResult, error) {
	args := m.Called(ctx, p)
	if r := args.Get(0); r != nil {
		return r.(*types.PaymentIntentResult), args.Error(1)
	}
	return nil, args.Error(1)
}

func testServerConfig() *config.Config {
	return &config.Config{Environment: config.EnvLocal}
}

func newIntentHandler(proc IntentCreator, logs *bytes.Buffer) *PaymentIntentHandler {
	logger := discardLogger()
	if logs != nil {
		logger = slog.New(slog.NewJSONHandler(logs, nil))
	}
	h := NewPaymentIntentHandler(proc, core.NewValidator(logger), logger)
	h.now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
	h.newKey = func() string { return "idem-1" }
	return h
}

func intentRequest(body string) *http.Request {
	return httptest.NewRequest(http.MethodPost, "/create-payment-intent", strings.NewReader(body))
}

func okResult() *types.PaymentIntentResult {
	return &types.PaymentIntentResult{ID: "pi_1", ClientSecret: "pi_1_secret_abc"}
}

func TestCreateIntent_Defaults(t *testing.T) {
	bodies := map[string]string{
		"empty":          "",
		"null":           "null",
		"malformed":      `{"amount":`,
		"array":          `[1,2]`,
		"string amount":  `{"amount":"lots"}`,
		"fractional":     `{"amount":12.5}`,
		"zero":           `{"amount":0}`,
		"negative":       `{"amount":-500}`,
		"missing amount": `{"email":""}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			proc := new(mockIntentCreator)
			proc.On("CreatePaymentIntent", mock.Anything, mock.MatchedBy(func(p types.PaymentIntentParams) bool {
				return p.Amount == DefaultIntentAmount && p.ReceiptEmail == ""
			})).Return(okResult(), nil).Once()

			rec, resp := serve(newIntentHandler(proc, nil).Create, intentRequest(body))

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "pi_1_secret_abc", resp["clientSecret"])
			proc.AssertExpectations(t)
		})
	}
}

func TestCreateIntent_FullRequest(t *testing.T) {
	proc := new(mockIntentCreator)
	proc.On("CreatePaymentIntent", mock.Anything, types.PaymentIntentParams{
		Amount:       2500,
		Currency:     "usd",
		ReceiptEmail: "buyer@example.com",
		Metadata: map[string]string{
			"timestamp":      "2025-03-01T12:00:00Z",
			"source":         "website",
			"customer_email": "buyer@example.com",
		},
		IdempotencyKey: "idem-1",
	}).Return(okResult(), nil).Once()

	logs := new(bytes.Buffer)
	rec, _ := serve(newIntentHandler(proc, logs).Create, intentRequest(`{"amount":2500,"email":"buyer@example.com"}`))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, logs.String(), "Created payment intent for $25.00")
	proc.AssertExpectations(t)
}

func TestCreateIntent_NumericStringAmount(t *testing.T) {
	proc := new(mockIntentCreator)
	proc.On("CreatePaymentIntent", mock.Anything, mock.MatchedBy(func(p types.PaymentIntentParams) bool {
		return p.Amount == 5000
	})).Return(okResult(), nil).Once()

	rec, _ := serve(newIntentHandler(proc, nil).Create, intentRequest(`{"amount":"5000"}`))
	assert.Equal(t, http.StatusOK, rec.Code)
	proc.AssertExpectations(t)
}

func TestCreateIntent_InvalidEmailDropped(t *testing.T) {
	proc := new(mockIntentCreator)
	proc.On("CreatePaymentIntent", mock.Anything, mock.MatchedBy(func(p types.PaymentIntentParams) bool {
		_, hasEmail := p.Metadata["customer_email"]
		return p.Amount == 1500 && p.ReceiptEmail == "" && !hasEmail
	})).Return(okResult(), nil).Once()

	logs := new(bytes.Buffer)
	rec, _ := serve(newIntentHandler(proc, logs).Create, intentRequest(`{"amount":1500,"email":"not-an-email"}`))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, logs.String(), "invalid customer email dropped")
	assert.NotContains(t, logs.String(), "not-an-email")
	proc.AssertExpectations(t)
}

func TestCreateIntent_ProcessorFailureIs403(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{
			"processor message",
			types.NewAppErrorWithDetails(types.ErrCodeUpstreamStripe, "CreatePaymentIntent: Stripe error (401): Invalid API Key provided", nil,
				map[string]any{types.DetailProcessorMessage: "Invalid API Key provided"}),
			"Invalid API Key provided",
		},
		{
			"declined",
			types.NewAppErrorWithDetails(types.ErrCodePaymentDeclined, "CreatePaymentIntent: payment declined: Your card was declined.", nil,
				map[string]any{types.DetailProcessorMessage: "Your card was declined.", "decline_code": "generic_decline"}),
			"Your card was declined.",
		},
		{"app error without processor message", types.NewAppError(types.ErrCodeUpstreamRateLimited, "CreatePaymentIntent: Stripe rate limit exceeded", nil), intentFailureMessage},
		{"plain error", errors.New("dial tcp: connection refused"), intentFailureMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proc := new(mockIntentCreator)
			proc.On("CreatePaymentIntent", mock.Anything, mock.Anything).Return(nil, tt.err).Once()

			rec, body := serve(newIntentHandler(proc, nil).Create, intentRequest(`{"amount":2500}`))

			assert.Equal(t, http.StatusForbidden, rec.Code)
			assert.Equal(t, tt.wantMsg, body["error"])
			assert.Equal(t, string(types.ErrCodePaymentIntentRejected), body["code"])
			assert.NotContains(t, body["error"], "CreatePaymentIntent")
		})
	}
}

func TestCreateIntent_NonStringEmailDropped(t *testing.T) {
	proc := new(mockIntentCreator)
	proc.On("CreatePaymentIntent", mock.Anything, mock.MatchedBy(func(p types.PaymentIntentParams) bool {
		_, hasEmail := p.Metadata["customer_email"]
		return p.Amount == 1500 && p.ReceiptEmail == "" && !hasEmail
	})).Return(okResult(), nil).Once()

	logs := new(bytes.Buffer)
	rec, _ := serve(newIntentHandler(proc, logs).Create, intentRequest(`{"amount":1500,"email":42}`))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, logs.String(), "invalid customer email dropped")
	proc.AssertExpectations(t)
}

func TestCreateIntent_ThroughServer(t *testing.T) {
	proc := new(mockIntentCreator)
	proc.On("CreatePaymentIntent", mock.Anything, mock.Anything).Return(okResult(), nil).Once()

	srv, err := core.NewServer(testServerConfig(), discardLogger())
	require.NoError(t, err)
	srv.RouteRegistrars = append(srv.RouteRegistrars, newIntentHandler(proc, nil).RegisterRoutes)
	srv.MountRoutes()

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, intentRequest(`{}`))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "SAMEORIGIN", rec.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestParseAmount(t *testing.T) {
	tests := map[string]struct {
		want int64
		ok   bool
	}{
		`2500`:    {2500, true},
		`"2500"`:  {2500, true},
		`1e3`:     {0, false},
		`25.00`:   {0, false},
		`true`:    {0, false},
		`null`:    {0, false},
		`0`:       {0, false},
		`"abc"`:   {0, false},
		`9999999`: {9999999, true},
	}
	for raw, tt := range tests {
		got, ok := parseAmount([]byte(raw))
		assert.Equal(t, tt.ok, ok, raw)
		assert.Equal(t, tt.want, got, raw)
	}
}
