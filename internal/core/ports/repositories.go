package ports

import (
	"context"

	"bemore/internal/core/domain"
)

// SessionRepository persists the active session so a restarted agent can offer to resume it.
type SessionRepository interface {
	SaveActive(ctx context.Context, session *domain.SessionData) error
	GetActive(ctx context.Context) (*domain.SessionData, error)
	ClearActive(ctx context.Context) error
}

// SessionStore is the backend-side registry of sessions.
type SessionStore interface {
	Create(ctx context.Context, session *domain.SessionData) error
	GetByID(ctx context.Context, id domain.SessionID) (*domain.SessionData, error)
	Update(ctx context.Context, session *domain.SessionData) error
	SaveFeedback(ctx context.Context, feedback *domain.Feedback) error
}
