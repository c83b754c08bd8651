package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"bemore/internal/core/domain"
	"bemore/internal/core/services"
	"bemore/internal/infrastructure/apiclient"
	"bemore/internal/infrastructure/middleware"
	"bemore/internal/infrastructure/repositories/memory"
	"bemore/internal/infrastructure/signal"
	"bemore/pkg/circuitbreaker"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingRecorder struct {
	started, ended int
	ratings        []int
}

func (r *countingRecorder) RecordSessionStarted()            { r.started++ }
func (r *countingRecorder) RecordSessionEnded(time.Duration) { r.ended++ }
func (r *countingRecorder) RecordFeedback(rating int)        { r.ratings = append(r.ratings, rating) }

type backendFixture struct {
	server   *httptest.Server
	store    *memory.MemorySessionStore
	auth     services.AuthService
	recorder *countingRecorder
	channels *signal.ChannelServer
}

func newBackendFixture(t *testing.T) *backendFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &backendFixture{
		store:    memory.NewMemorySessionStore(),
		auth:     services.NewAuthService("test-secret", time.Hour),
		recorder: &countingRecorder{},
	}

	router := gin.New()
	router.Use(middleware.RequestIDMiddleware(), middleware.ErrorHandlerMiddleware(zap.NewNop().Sugar()))
	f.server = httptest.NewServer(router)
	t.Cleanup(f.server.Close)

	wsURL := "ws" + strings.TrimPrefix(f.server.URL, "http")
	registry := services.NewSessionRegistry(f.store, f.auth, wsURL, nil)
	f.channels = signal.NewChannelServer(registry, signal.ServerConfig{
		PingInterval:   time.Second,
		PongTimeout:    5 * time.Second,
		WriteTimeout:   time.Second,
		MaxMessageSize: 64 * 1024,
	}, nil)
	registry.OnStatusChange(f.channels.PublishStatus)

	NewBackendHandler(registry, f.channels, f.auth, f.recorder, nil).SetupRoutes(router)
	return f
}

func (f *backendFixture) post(t *testing.T, path, body string, header ...string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, f.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if len(header) == 2 {
		req.Header.Set(header[0], header[1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func newTestAPIClient(baseURL string) *apiclient.Client {
	return apiclient.New(apiclient.Config{
		BaseURL:        baseURL,
		Timeout:        5 * time.Second,
		CircuitBreaker: circuitbreaker.DefaultConfig(),
	}, nil)
}

func TestBackendHandler_SessionAPI(t *testing.T) {
	f := newBackendFixture(t)
	client := newTestAPIClient(f.server.URL)
	ctx := context.Background()

	session, err := client.StartSession(ctx, "u1", "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionActive, session.Status)
	assert.Contains(t, session.WSURLs.Landmarks, "/ws/landmarks?")
	assert.Contains(t, session.WSURLs.Voice, "session_id="+string(session.SessionID))
	assert.Equal(t, 1, f.recorder.started)

	require.NoError(t, client.SubmitFeedback(ctx, session.SessionID, domain.Feedback{Rating: 5, Note: "thanks"}))
	stored := f.store.Feedback(session.SessionID)
	require.Len(t, stored, 1)
	assert.Equal(t, "thanks", stored[0].Note)
	assert.Equal(t, []int{5}, f.recorder.ratings)

	require.NoError(t, client.EndSession(ctx, session.SessionID))
	assert.Equal(t, 1, f.recorder.ended)

	err = client.EndSession(ctx, session.SessionID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), domain.ErrSessionEnded.Error())

	err = client.EndSession(ctx, "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session not found")
}

func TestBackendHandler_Validation(t *testing.T) {
	f := newBackendFixture(t)

	resp := f.post(t, "/api/session/start", `{"userId":"","counselorId":"c1"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.post(t, "/api/session/start", `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	client := newTestAPIClient(f.server.URL)
	session, err := client.StartSession(context.Background(), "u1", "c1")
	require.NoError(t, err)

	resp = f.post(t, "/api/session/"+string(session.SessionID)+"/feedback", `{"rating":9}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.post(t, "/api/session/"+string(session.SessionID)+"/status", `{"status":"ended"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.post(t, "/api/session/"+string(session.SessionID)+"/end", ``, "Authorization", "Bearer not-a-token")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestBackendHandler_GetSessionNeedsToken(t *testing.T) {
	f := newBackendFixture(t)
	client := newTestAPIClient(f.server.URL)
	session, err := client.StartSession(context.Background(), "u1", "c1")
	require.NoError(t, err)

	get := func(header string) int {
		req, err := http.NewRequest(http.MethodGet, f.server.URL+"/api/session/"+string(session.SessionID), nil)
		require.NoError(t, err)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	token, err := f.auth.GenerateChannelToken(session.SessionID, "u1")
	require.NoError(t, err)
	other, err := f.auth.GenerateChannelToken("someone-else", "u1")
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, get(""))
	assert.Equal(t, http.StatusUnauthorized, get("Bearer "+other))
	assert.Equal(t, http.StatusOK, get("Bearer "+token))
}

func TestBackendHandler_ChannelsFollowSessionStatus(t *testing.T) {
	f := newBackendFixture(t)
	client := newTestAPIClient(f.server.URL)

	session, err := client.StartSession(context.Background(), "u1", "c1")
	require.NoError(t, err)

	conn, _, err := websocket.DefaultDialer.Dial(session.WSURLs.Session, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool {
		return f.channels.IsConnected(session.SessionID, domain.ChannelSession)
	}, time.Second, 10*time.Millisecond)

	resp := f.post(t, "/api/session/"+string(session.SessionID)+"/status", `{"status":"paused"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var msg signal.StatusMessage
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, domain.SessionPaused, msg.Status)

	require.NoError(t, client.EndSession(context.Background(), session.SessionID))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, domain.SessionEnded, msg.Status)

	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)

	// an ended session refuses new channel connections
	_, wsResp, err := websocket.DefaultDialer.Dial(session.WSURLs.Voice, nil)
	require.Error(t, err)
	require.NotNil(t, wsResp)
	assert.Equal(t, http.StatusGone, wsResp.StatusCode)
}

// The agent's session service, channel hub and aggregator against the
// reference backend.
func TestAgentAgainstBackend(t *testing.T) {
	f := newBackendFixture(t)

	cfg := signal.DefaultClientConfig()
	cfg.ReconnectDelay = 20 * time.Millisecond
	hub := signal.NewHub(cfg, nil, nil)
	defer hub.Disconnect()

	sessions := services.NewSessionService(newTestAPIClient(f.server.URL), hub, memory.NewMemorySessionRepository(), nil)
	hub.Handle(domain.ChannelSession, signal.StatusHandler(sessions.ApplyStatus))
	aggregator := services.NewStatusAggregator()

	session, err := sessions.Start(context.Background(), "u1", "c1")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return aggregator.Aggregate(hub.Snapshot()).Status == domain.StateConnected
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "Connected", aggregator.Aggregate(hub.Snapshot()).StatusText)

	// the backend ends the session out of band
	resp := f.post(t, "/api/session/"+string(session.SessionID)+"/end", ``)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Eventually(t, func() bool {
		return sessions.Session() == nil
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return aggregator.Aggregate(hub.Snapshot()).Status == domain.StateDisconnected
	}, 2*time.Second, 10*time.Millisecond)
}
