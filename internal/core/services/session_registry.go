package services

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"bemore/internal/core/domain"
	"bemore/internal/core/ports"
	"bemore/pkg/utils"

	"go.uber.org/zap"
)

// SessionRegistry is the backend side of the session lifecycle: it creates
// sessions, hands out channel URLs carrying an access token, and records feedback.
type SessionRegistry struct {
	store       ports.SessionStore
	auth        AuthService
	publicWSURL string
	logger      *zap.SugaredLogger

	mu        sync.RWMutex
	listeners []func(*domain.SessionData)
}

func NewSessionRegistry(store ports.SessionStore, auth AuthService, publicWSURL string, logger *zap.SugaredLogger) *SessionRegistry {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &SessionRegistry{
		store:       store,
		auth:        auth,
		publicWSURL: strings.TrimRight(publicWSURL, "/"),
		logger:      logger,
	}
}

// OnStatusChange registers fn to be called after a session changes status.
func (r *SessionRegistry) OnStatusChange(fn func(*domain.SessionData)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

func (r *SessionRegistry) notify(session *domain.SessionData) {
	r.mu.RLock()
	listeners := append([]func(*domain.SessionData){}, r.listeners...)
	r.mu.RUnlock()
	for _, fn := range listeners {
		fn(copySession(session))
	}
}

func (r *SessionRegistry) Start(ctx context.Context, userID domain.UserID, counselorID domain.CounselorID) (*domain.SessionData, error) {
	sessionID := domain.SessionID(utils.GenerateSessionID())

	token, err := r.auth.GenerateChannelToken(sessionID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to issue channel token: %w", err)
	}

	session := &domain.SessionData{
		SessionID:   sessionID,
		UserID:      userID,
		CounselorID: counselorID,
		WSURLs: domain.ChannelURLs{
			Landmarks: r.channelURL(domain.ChannelLandmarks, sessionID, token),
			Voice:     r.channelURL(domain.ChannelVoice, sessionID, token),
			Session:   r.channelURL(domain.ChannelSession, sessionID, token),
		},
		StartedAt: utils.Now().UTC(),
		Status:    domain.SessionActive,
	}

	if err := r.store.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	r.logger.Infow("Session created",
		"session_id", sessionID,
		"user_id", userID,
		"counselor_id", counselorID,
	)
	return session, nil
}

func (r *SessionRegistry) channelURL(ch domain.Channel, sessionID domain.SessionID, token string) string {
	q := url.Values{}
	q.Set("session_id", string(sessionID))
	q.Set("token", token)
	return fmt.Sprintf("%s/ws/%s?%s", r.publicWSURL, ch, q.Encode())
}

func (r *SessionRegistry) Get(ctx context.Context, sessionID domain.SessionID) (*domain.SessionData, error) {
	return r.store.GetByID(ctx, sessionID)
}

// SetStatus moves a session to status; an ended session cannot change again.
func (r *SessionRegistry) SetStatus(ctx context.Context, sessionID domain.SessionID, status domain.SessionStatus) (*domain.SessionData, error) {
	session, err := r.store.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status == domain.SessionEnded {
		return nil, domain.ErrSessionEnded
	}

	session.Status = status
	if err := r.store.Update(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to update session: %w", err)
	}

	r.logger.Infow("Session status changed",
		"session_id", sessionID,
		"status", status,
		"duration", utils.FormatDuration(utils.Since(session.StartedAt)),
	)
	r.notify(session)
	return session, nil
}

func (r *SessionRegistry) End(ctx context.Context, sessionID domain.SessionID) (*domain.SessionData, error) {
	return r.SetStatus(ctx, sessionID, domain.SessionEnded)
}

func (r *SessionRegistry) SubmitFeedback(ctx context.Context, feedback *domain.Feedback) error {
	if _, err := r.store.GetByID(ctx, feedback.SessionID); err != nil {
		return err
	}
	if feedback.SubmittedAt.IsZero() {
		feedback.SubmittedAt = time.Now().UTC()
	}
	if err := r.store.SaveFeedback(ctx, feedback); err != nil {
		return fmt.Errorf("failed to save feedback: %w", err)
	}

	r.logger.Infow("Feedback recorded",
		"session_id", feedback.SessionID,
		"rating", feedback.Rating,
	)
	return nil
}

// AuthorizeChannel checks a channel token against the session it claims and
// that the session is still open.
func (r *SessionRegistry) AuthorizeChannel(ctx context.Context, sessionID domain.SessionID, token string) (*domain.SessionData, error) {
	if _, err := r.auth.Authorize(token, sessionID); err != nil {
		return nil, err
	}
	session, err := r.store.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status == domain.SessionEnded {
		return nil, domain.ErrSessionEnded
	}
	return session, nil
}
