package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"bemore/internal/core/domain"
	"bemore/internal/core/ports"
	"bemore/pkg/circuitbreaker"
	apperrors "bemore/pkg/errors"
	"bemore/pkg/logger"
	"bemore/pkg/retry"
	"bemore/pkg/tracing"
	"bemore/pkg/utils"

	"go.uber.org/zap"
)

const maxResponseBytes = 1 << 20

type Config struct {
	BaseURL        string
	Timeout        time.Duration
	Retry          retry.Config
	CircuitBreaker circuitbreaker.Config
}

// Client talks to the session endpoints of the backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retry      retry.Config
	breaker    *circuitbreaker.CircuitBreaker
	logger     *zap.SugaredLogger
}

type startRequest struct {
	UserID      domain.UserID      `json:"userId"`
	CounselorID domain.CounselorID `json:"counselorId"`
}

type feedbackRequest struct {
	Rating int    `json:"rating"`
	Note   string `json:"note,omitempty"`
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Code    string `json:"code,omitempty"`
	} `json:"error"`
}

func New(cfg Config, logger *zap.SugaredLogger) *Client {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	// only outages trip the breaker or earn a retry; a 4xx is the caller's problem
	cfg.CircuitBreaker.IsFailure = isOutage
	cfg.Retry.Retryable = isOutage

	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		retry:      cfg.Retry,
		breaker:    circuitbreaker.New(cfg.CircuitBreaker),
		logger:     logger,
	}
	c.breaker.OnStateChange(func(from, to circuitbreaker.State) {
		logger.Warnw("Backend circuit breaker changed state",
			"from", from.String(),
			"to", to.String(),
		)
	})
	return c
}

// Breaker exposes the circuit breaker for health reporting.
func (c *Client) Breaker() *circuitbreaker.CircuitBreaker {
	return c.breaker
}

func (c *Client) StartSession(ctx context.Context, userID domain.UserID, counselorID domain.CounselorID) (*domain.SessionData, error) {
	ctx, span := tracing.TraceAPICall(ctx, "start_session", "")
	defer span.End()

	var session domain.SessionData
	if err := c.call(ctx, "/api/session/start", startRequest{UserID: userID, CounselorID: counselorID}, &session); err != nil {
		tracing.RecordError(ctx, err)
		return nil, err
	}
	if session.SessionID == "" {
		err := apperrors.NewUpstreamError(http.StatusOK, "backend returned no session id")
		tracing.RecordError(ctx, err)
		return nil, err
	}
	span.SetAttributes(tracing.SessionIDKey.String(string(session.SessionID)))
	return &session, nil
}

func (c *Client) EndSession(ctx context.Context, sessionID domain.SessionID) error {
	ctx, span := tracing.TraceAPICall(ctx, "end_session", string(sessionID))
	defer span.End()

	path := fmt.Sprintf("/api/session/%s/end", url.PathEscape(string(sessionID)))
	if err := c.call(ctx, path, nil, nil); err != nil {
		tracing.RecordError(ctx, err)
		return err
	}
	return nil
}

func (c *Client) SubmitFeedback(ctx context.Context, sessionID domain.SessionID, feedback domain.Feedback) error {
	ctx, span := tracing.TraceAPICall(ctx, "submit_feedback", string(sessionID))
	defer span.End()

	path := fmt.Sprintf("/api/session/%s/feedback", url.PathEscape(string(sessionID)))
	if err := c.call(ctx, path, feedbackRequest{Rating: feedback.Rating, Note: feedback.Note}, nil); err != nil {
		tracing.RecordError(ctx, err)
		return err
	}
	return nil
}

// call POSTs body to path through the breaker and the retry policy and decodes
// the data field of the response into out, if out is non-nil.
func (c *Client) call(ctx context.Context, path string, body, out interface{}) error {
	return retry.Retry(ctx, c.retry, func() error {
		err := c.breaker.Execute(ctx, func(ctx context.Context) error {
			return c.post(ctx, path, body, out)
		})
		if errors.Is(err, circuitbreaker.ErrOpen) {
			return apperrors.WrapError(err, apperrors.ErrCodeServiceUnavailable,
				"backend temporarily unavailable", http.StatusServiceUnavailable)
		}
		return err
	})
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	requestID := logger.RequestID(ctx)
	if requestID == "" {
		requestID = utils.GenerateRequestID()
	}
	req.Header.Set("X-Request-ID", requestID)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warnw("Backend request failed",
			"path", path,
			"request_id", requestID,
			"error", err,
		)
		return apperrors.NewTransportError(err)
	}
	defer resp.Body.Close()

	c.logger.Debugw("Backend request completed",
		"path", path,
		"status", resp.StatusCode,
		"request_id", requestID,
		"duration", time.Since(start).String(),
	)

	return c.parseResponse(resp, out)
}

func (c *Client) parseResponse(resp *http.Response, out interface{}) error {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return apperrors.NewTransportError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var env envelope
		message := ""
		if err := json.Unmarshal(raw, &env); err == nil && env.Error != nil {
			message = env.Error.Message
		}
		return apperrors.NewUpstreamError(resp.StatusCode, message)
	}

	if out == nil {
		return nil
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return apperrors.WrapError(err, apperrors.ErrCodeUpstream, "malformed backend response", http.StatusBadGateway)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return apperrors.NewUpstreamError(resp.StatusCode, "backend response has no data")
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return apperrors.WrapError(err, apperrors.ErrCodeUpstream, "malformed backend response", http.StatusBadGateway)
	}
	return nil
}

// isOutage reports transport failures and 5xx answers.
func isOutage(err error) bool {
	appErr := apperrors.GetAppError(err)
	if appErr == nil {
		return true
	}
	switch appErr.Code {
	case apperrors.ErrCodeTransport:
		return true
	case apperrors.ErrCodeUpstream:
		status, _ := appErr.Context["upstream_status"].(int)
		return status >= 500
	}
	return false
}

var _ ports.SessionAPI = (*Client)(nil)
