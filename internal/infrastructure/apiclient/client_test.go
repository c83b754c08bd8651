package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"bemore/internal/core/domain"
	"bemore/pkg/circuitbreaker"
	apperrors "bemore/pkg/errors"
	"bemore/pkg/retry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, mutate ...func(*Config)) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := Config{
		BaseURL:        server.URL,
		Timeout:        2 * time.Second,
		CircuitBreaker: circuitbreaker.DefaultConfig(),
	}
	for _, m := range mutate {
		m(&cfg)
	}
	return New(cfg, zaptest.NewLogger(t).Sugar())
}

func TestClient_StartSession(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/session/start", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))

		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "u1", body["userId"])
		assert.Equal(t, "c1", body["counselorId"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"sessionId":"sess_1","wsUrls":{"landmarks":"ws://h/ws/landmarks","voice":"ws://h/ws/voice","session":"ws://h/ws/session"},"startedAt":"2026-01-02T03:04:05Z","status":"active"}}`))
	})

	session, err := client.StartSession(context.Background(), "u1", "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionID("sess_1"), session.SessionID)
	assert.Equal(t, "ws://h/ws/voice", session.WSURLs.Voice)
	assert.Equal(t, domain.SessionActive, session.Status)
	assert.Equal(t, 2026, session.StartedAt.Year())
}

func TestClient_ErrorMessageFromBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":{"message":"counselor is busy"}}`))
	})

	_, err := client.StartSession(context.Background(), "u1", "c1")
	require.Error(t, err)
	assert.Equal(t, "counselor is busy", apperrors.Message(err))
	appErr := apperrors.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusConflict, appErr.Context["upstream_status"])
}

func TestClient_ErrorMessageFallback(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`<html>oops</html>`))
	})

	err := client.EndSession(context.Background(), "sess_1")
	require.Error(t, err)
	assert.Equal(t, "request failed with status 500", apperrors.Message(err))
}

func TestClient_EndSessionIgnoresBody(t *testing.T) {
	var path string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, client.EndSession(context.Background(), "sess_1"))
	assert.Equal(t, "/api/session/sess_1/end", path)
}

func TestClient_SubmitFeedback(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/session/sess_1/feedback", r.URL.Path)
		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(4), body["rating"])
		assert.Equal(t, "good", body["note"])
		_, _ = w.Write([]byte(`{"data":{"ok":true}}`))
	})

	err := client.SubmitFeedback(context.Background(), "sess_1", domain.Feedback{Rating: 4, Note: "good"})
	assert.NoError(t, err)
}

func TestClient_MissingSessionID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{}}`))
	})

	_, err := client.StartSession(context.Background(), "u1", "c1")
	assert.Error(t, err)
}

func TestClient_TransportError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := New(Config{BaseURL: url, CircuitBreaker: circuitbreaker.DefaultConfig()}, zaptest.NewLogger(t).Sugar())
	_, err := client.StartSession(context.Background(), "u1", "c1")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeTransport, apperrors.GetAppError(err).Code)
}

func TestClient_NoRetryByDefault(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.StartSession(context.Background(), "u1", "c1")
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClient_RetriesServerErrorsWhenEnabled(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"data":{"sessionId":"sess_1","status":"active"}}`))
	}, func(cfg *Config) {
		cfg.Retry = retry.Config{Enabled: true, MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	})

	session, err := client.StartSession(context.Background(), "u1", "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionID("sess_1"), session.SessionID)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}, func(cfg *Config) {
		cfg.Retry = retry.Config{Enabled: true, MaxAttempts: 3, InitialDelay: time.Millisecond}
	})

	_, err := client.StartSession(context.Background(), "u1", "c1")
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, "request failed with status 400", apperrors.Message(err))
}

func TestClient_BreakerOpensOnOutage(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}, func(cfg *Config) {
		cfg.CircuitBreaker.FailureThreshold = 2
		cfg.CircuitBreaker.Timeout = time.Minute
	})

	for i := 0; i < 2; i++ {
		_ = client.EndSession(context.Background(), "sess_1")
	}
	assert.Equal(t, circuitbreaker.StateOpen, client.Breaker().State())

	err := client.EndSession(context.Background(), "sess_1")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeServiceUnavailable, apperrors.GetAppError(err).Code)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestClient_ClientErrorsDoNotTripBreaker(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}, func(cfg *Config) {
		cfg.CircuitBreaker.FailureThreshold = 1
	})

	for i := 0; i < 3; i++ {
		_ = client.EndSession(context.Background(), "sess_1")
	}
	assert.Equal(t, circuitbreaker.StateClosed, client.Breaker().State())
}
