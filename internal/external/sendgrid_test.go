package external

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"primos/internal/types"
)

func newTestSendGridClient(t *testing.T, serverURL string) *SendGridClient {
	t.Helper()
	base := NewBaseClient(&http.Client{Timeout: 5 * time.Second}, "test-sendgrid", fastPolicy(0), "Primos-Test/1.0", WithSleepFunc(noopSleep))
	return NewSendGridClientWithBase(base, SendGridClientConfig{APIKey: "SG.test-key", BaseURL: serverURL})
}

func testSendInput() types.SendInput {
	return types.SendInput{
		To:          "buyer@example.com",
		From:        types.SenderIdentity{Name: "Primos de Pelaez", Address: "pagos@primosdepelaez.com"},
		Subject:     "Your receipt",
		BodyHTML:    "<p>Thanks</p>",
		BodyText:    "Thanks",
		ReferenceID: "evt_123",
	}
}

func TestSendGridSend_Success(t *testing.T) {
	var payload sendGridMailPayload
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v3/mail/send" {
			t.Errorf("path = %s, want /v3/mail/send", r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Errorf("invalid JSON payload: %v", err)
		}
		w.Header().Set("X-Message-Id", "sg-msg-1")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	msgID, err := newTestSendGridClient(t, server.URL).Send(context.Background(), testSendInput())
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if msgID != "sg-msg-1" {
		t.Errorf("msgID = %q, want sg-msg-1", msgID)
	}
	if auth != "Bearer SG.test-key" {
		t.Errorf("Authorization = %q", auth)
	}
	if payload.Subject != "Your receipt" || payload.From.Email != "pagos@primosdepelaez.com" {
		t.Errorf("unexpected payload header fields: %+v", payload)
	}
	if len(payload.Content) != 2 || payload.Content[0].Type != "text/plain" || payload.Content[1].Type != "text/html" {
		t.Errorf("content parts = %+v, want text/plain then text/html", payload.Content)
	}
	if payload.CustomArgs["reference_id"] != "evt_123" {
		t.Errorf("custom_args = %v", payload.CustomArgs)
	}
}

func TestSendGridSend_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   types.ErrorCode
	}{
		{"forbidden", http.StatusForbidden, `{"errors":[{"message":"suppressed"}]}`, types.ErrCodeEmailBlocked},
		{"rate limited", http.StatusTooManyRequests, ``, types.ErrCodeUpstreamRateLimited},
		{"server error", http.StatusBadGateway, ``, types.ErrCodeUpstreamUnavailable},
		{"bad request", http.StatusBadRequest, `{"errors":[{"message":"bad from"}]}`, types.ErrCodeUpstreamEmailProvider},
		{"non-json body", http.StatusBadRequest, `oops`, types.ErrCodeUpstreamEmailProvider},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := newTestSendGridClient(t, server.URL).Send(context.Background(), testSendInput())
			var appErr *types.AppError
			if !errors.As(err, &appErr) {
				t.Fatalf("expected *types.AppError, got %v", err)
			}
			if appErr.Code != tt.want {
				t.Errorf("Code = %s, want %s", appErr.Code, tt.want)
			}
		})
	}
}

func TestBuildMailPayload_TextOnly(t *testing.T) {
	in := testSendInput()
	in.BodyHTML = ""
	in.ReferenceID = ""

	p := buildMailPayload(in)
	if len(p.Content) != 1 || p.Content[0].Type != "text/plain" {
		t.Errorf("content = %+v, want only text/plain", p.Content)
	}
	if p.CustomArgs != nil {
		t.Errorf("custom_args = %v, want nil", p.CustomArgs)
	}
}
