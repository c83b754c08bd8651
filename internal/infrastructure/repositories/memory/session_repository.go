package memory

import (
	"context"
	"fmt"
	"sync"

	"bemore/internal/core/domain"
	"bemore/internal/core/ports"
)

// MemorySessionRepository keeps the agent's active session for the lifetime of
// the process only.
type MemorySessionRepository struct {
	active *domain.SessionData
	mu     sync.RWMutex
}

func NewMemorySessionRepository() ports.SessionRepository {
	return &MemorySessionRepository{}
}

func (r *MemorySessionRepository) SaveActive(ctx context.Context, session *domain.SessionData) error {
	if session == nil {
		return fmt.Errorf("session must not be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	c := *session
	r.active = &c
	return nil
}

// GetActive returns nil, nil when nothing is stored.
func (r *MemorySessionRepository) GetActive(ctx context.Context) (*domain.SessionData, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.active == nil {
		return nil, nil
	}
	c := *r.active
	return &c, nil
}

func (r *MemorySessionRepository) ClearActive(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.active = nil
	return nil
}

// MemorySessionStore is the backend's in-process session table.
type MemorySessionStore struct {
	sessions map[domain.SessionID]*domain.SessionData
	feedback map[domain.SessionID][]domain.Feedback
	mu       sync.RWMutex
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[domain.SessionID]*domain.SessionData),
		feedback: make(map[domain.SessionID][]domain.Feedback),
	}
}

func (s *MemorySessionStore) Create(ctx context.Context, session *domain.SessionData) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.SessionID]; exists {
		return fmt.Errorf("session already exists: %s", session.SessionID)
	}

	c := *session
	s.sessions[session.SessionID] = &c
	return nil
}

func (s *MemorySessionStore) GetByID(ctx context.Context, id domain.SessionID) (*domain.SessionData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, exists := s.sessions[id]
	if !exists {
		return nil, domain.ErrSessionNotFound
	}

	c := *session
	return &c, nil
}

func (s *MemorySessionStore) Update(ctx context.Context, session *domain.SessionData) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.SessionID]; !exists {
		return domain.ErrSessionNotFound
	}

	c := *session
	s.sessions[session.SessionID] = &c
	return nil
}

func (s *MemorySessionStore) SaveFeedback(ctx context.Context, feedback *domain.Feedback) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[feedback.SessionID]; !exists {
		return domain.ErrSessionNotFound
	}

	s.feedback[feedback.SessionID] = append(s.feedback[feedback.SessionID], *feedback)
	return nil
}

// Feedback lists what was recorded for a session.
func (s *MemorySessionStore) Feedback(id domain.SessionID) []domain.Feedback {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Feedback(nil), s.feedback[id]...)
}

var _ ports.SessionStore = (*MemorySessionStore)(nil)
