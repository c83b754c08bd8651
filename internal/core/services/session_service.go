package services

import (
	"context"
	"fmt"
	"sync"

	"bemore/internal/core/domain"
	"bemore/internal/core/ports"
	apperrors "bemore/pkg/errors"

	"go.uber.org/zap"
)

// SessionState is a point-in-time view of the session lifecycle.
type SessionState struct {
	Session *domain.SessionData `json:"session"`
	Loading bool                `json:"loading"`
	Error   string              `json:"error,omitempty"`
}

// SessionService holds the single active session of this client and drives its
// start/end lifecycle against the backend.
type SessionService struct {
	api        ports.SessionAPI
	channels   ports.ChannelConnector
	repository ports.SessionRepository
	logger     *zap.SugaredLogger

	mu      sync.RWMutex
	session *domain.SessionData
	loading bool
	lastErr string
	onEnded []func(*domain.SessionData)

	// serializes start/end/resume so that only one request is in flight
	opMu sync.Mutex
}

// NewSessionService wires the service. channels and repository may be nil.
func NewSessionService(
	api ports.SessionAPI,
	channels ports.ChannelConnector,
	repository ports.SessionRepository,
	logger *zap.SugaredLogger,
) *SessionService {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &SessionService{
		api:        api,
		channels:   channels,
		repository: repository,
		logger:     logger,
	}
}

// OnEnded registers fn to be called once a session has ended, whether the
// client ended it or the backend pushed an ended status.
func (s *SessionService) OnEnded(fn func(*domain.SessionData)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEnded = append(s.onEnded, fn)
}

func (s *SessionService) notifyEnded(session *domain.SessionData) {
	s.mu.RLock()
	listeners := append([]func(*domain.SessionData){}, s.onEnded...)
	s.mu.RUnlock()
	for _, fn := range listeners {
		fn(copySession(session))
	}
}

func (s *SessionService) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SessionState{
		Session: copySession(s.session),
		Loading: s.loading,
		Error:   s.lastErr,
	}
}

// Session returns a copy of the active session, or nil.
func (s *SessionService) Session() *domain.SessionData {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copySession(s.session)
}

func (s *SessionService) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

func (s *SessionService) Error() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

func (s *SessionService) begin() {
	s.mu.Lock()
	s.loading = true
	s.lastErr = ""
	s.mu.Unlock()
}

func (s *SessionService) finish() {
	s.mu.Lock()
	s.loading = false
	s.mu.Unlock()
}

func (s *SessionService) fail(err error) {
	s.mu.Lock()
	s.lastErr = apperrors.Message(err)
	s.mu.Unlock()
}

// Start asks the backend for a new session. On failure the previous session,
// if any, is left untouched.
func (s *SessionService) Start(ctx context.Context, userID domain.UserID, counselorID domain.CounselorID) (*domain.SessionData, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.begin()
	defer s.finish()

	session, err := s.api.StartSession(ctx, userID, counselorID)
	if err != nil {
		s.fail(err)
		s.logger.Errorw("Failed to start session",
			"user_id", userID,
			"counselor_id", counselorID,
			"error", err,
		)
		return nil, err
	}
	if session.Status == "" {
		session.Status = domain.SessionActive
	}

	previous := s.Session()
	if previous != nil && s.channels != nil {
		s.channels.Disconnect()
	}

	s.mu.Lock()
	s.session = session
	s.mu.Unlock()

	s.persist(ctx, session)
	s.connect(ctx, session)

	s.logger.Infow("Session started",
		"session_id", session.SessionID,
		"user_id", userID,
		"counselor_id", counselorID,
	)
	return copySession(session), nil
}

// End ends the active session. Without one it only logs a warning.
func (s *SessionService) End(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	current := s.Session()
	if current == nil {
		s.logger.Warnw("No active session to end")
		return nil
	}

	s.begin()
	defer s.finish()

	if err := s.api.EndSession(ctx, current.SessionID); err != nil {
		s.fail(err)
		s.logger.Errorw("Failed to end session",
			"session_id", current.SessionID,
			"error", err,
		)
		return err
	}

	if s.channels != nil {
		s.channels.Disconnect()
	}

	s.mu.Lock()
	s.session = nil
	s.mu.Unlock()

	if s.repository != nil {
		if err := s.repository.ClearActive(ctx); err != nil {
			s.logger.Warnw("Failed to clear persisted session", "session_id", current.SessionID, "error", err)
		}
	}

	s.logger.Infow("Session ended", "session_id", current.SessionID)
	ended := copySession(current)
	ended.Status = domain.SessionEnded
	s.notifyEnded(ended)
	return nil
}

// ResumeCandidate returns a persisted session from an earlier run that can be
// resumed, or nil.
func (s *SessionService) ResumeCandidate(ctx context.Context) (*domain.SessionData, error) {
	if s.repository == nil {
		return nil, nil
	}
	if current := s.Session(); current != nil {
		return nil, nil
	}

	session, err := s.repository.GetActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load persisted session: %w", err)
	}
	if !session.Active() {
		return nil, nil
	}
	return session, nil
}

// Resume adopts the persisted session and reconnects its channels.
func (s *SessionService) Resume(ctx context.Context) (*domain.SessionData, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.begin()
	defer s.finish()

	candidate, err := s.ResumeCandidate(ctx)
	if err != nil {
		s.fail(err)
		return nil, err
	}
	if candidate == nil {
		err := domain.ErrNoActiveSession
		s.fail(err)
		return nil, err
	}

	s.mu.Lock()
	s.session = candidate
	s.mu.Unlock()

	s.connect(ctx, candidate)

	s.logger.Infow("Session resumed", "session_id", candidate.SessionID)
	return copySession(candidate), nil
}

// Discard forgets the persisted session without contacting the backend.
func (s *SessionService) Discard(ctx context.Context) error {
	if s.repository == nil {
		return nil
	}
	if err := s.repository.ClearActive(ctx); err != nil {
		return fmt.Errorf("failed to discard persisted session: %w", err)
	}
	return nil
}

// ApplyStatus records a status pushed by the backend on the session channel.
// An ended session is dropped locally.
func (s *SessionService) ApplyStatus(ctx context.Context, status domain.SessionStatus) {
	if !status.Valid() {
		s.logger.Debugw("Ignoring unknown session status", "status", status)
		return
	}

	s.mu.Lock()
	if s.session == nil {
		s.mu.Unlock()
		return
	}
	s.session.Status = status
	updated := copySession(s.session)
	if status == domain.SessionEnded {
		s.session = nil
	}
	s.mu.Unlock()

	s.logger.Infow("Session status changed", "session_id", updated.SessionID, "status", status)

	if status == domain.SessionEnded {
		if s.channels != nil {
			s.channels.Disconnect()
		}
		if s.repository != nil {
			if err := s.repository.ClearActive(ctx); err != nil {
				s.logger.Warnw("Failed to clear persisted session", "error", err)
			}
		}
		s.notifyEnded(updated)
		return
	}
	s.persist(ctx, updated)
}

func (s *SessionService) persist(ctx context.Context, session *domain.SessionData) {
	if s.repository == nil {
		return
	}
	if err := s.repository.SaveActive(ctx, session); err != nil {
		s.logger.Warnw("Failed to persist session", "session_id", session.SessionID, "error", err)
	}
}

func (s *SessionService) connect(ctx context.Context, session *domain.SessionData) {
	if s.channels == nil {
		return
	}
	// channels keep reconnecting on their own, so a failed first dial is not fatal
	if err := s.channels.Connect(ctx, session); err != nil {
		s.logger.Warnw("Failed to connect session channels", "session_id", session.SessionID, "error", err)
	}
}

func copySession(s *domain.SessionData) *domain.SessionData {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
