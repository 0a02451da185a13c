package core

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runHealth(t *testing.T, srv *Server) (int, healthResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	var body healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestHandleHealth_NoProbes(t *testing.T) {
	srv := newTestServer(t)
	srv.Config.Build.Version = "1.2.3"

	code, body := runHealth(t, srv)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "local", body.Environment)
	assert.Equal(t, "1.2.3", body.Version)
	assert.Empty(t, body.Components)
}

func TestHandleHealth_Probes(t *testing.T) {
	ok := ProbeFunc{ProbeName: "templates", Fn: func(context.Context) error { return nil }}
	failing := ProbeFunc{ProbeName: "stripe_config", Fn: func(context.Context) error { return errors.New("missing publishable key") }}
	panicking := ProbeFunc{ProbeName: "static", Fn: func(context.Context) error { panic("boom") }}

	t.Run("all healthy", func(t *testing.T) {
		srv := newTestServer(t)
		srv.HealthProbes = []HealthProbe{ok}
		code, body := runHealth(t, srv)
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "healthy", body.Components["templates"].Status)
	})

	t.Run("failure and panic", func(t *testing.T) {
		srv := newTestServer(t)
		srv.HealthProbes = []HealthProbe{ok, failing, panicking}
		code, body := runHealth(t, srv)
		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Equal(t, "unhealthy", body.Status)
		assert.Equal(t, "missing publishable key", body.Components["stripe_config"].Message)
		assert.Contains(t, body.Components["static"].Message, "panicked")
		assert.Equal(t, "healthy", body.Components["templates"].Status)
	})
}

func TestHandleHealth_Timeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	slow := ProbeFunc{ProbeName: "slow", Fn: func(ctx context.Context) error {
		select {
		case <-release:
		case <-time.After(10 * time.Second):
		}
		return nil
	}}

	srv := newTestServer(t)
	srv.HealthProbes = []HealthProbe{slow}

	start := time.Now()
	code, body := runHealth(t, srv)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "health check timed out", body.Components["slow"].Message)
}
