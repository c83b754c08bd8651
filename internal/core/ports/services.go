package ports

import (
	"context"

	"bemore/internal/core/domain"
)

// SessionAPI is the remote session endpoint set of the backend.
type SessionAPI interface {
	StartSession(ctx context.Context, userID domain.UserID, counselorID domain.CounselorID) (*domain.SessionData, error)
	EndSession(ctx context.Context, sessionID domain.SessionID) error
	SubmitFeedback(ctx context.Context, sessionID domain.SessionID, feedback domain.Feedback) error
}

// ChannelConnector opens and closes the realtime channels of a session.
type ChannelConnector interface {
	Connect(ctx context.Context, session *domain.SessionData) error
	Disconnect()
}

// StatusSource reports the current transport flag and per-channel states.
type StatusSource interface {
	Snapshot() (wsConnected bool, statuses map[domain.Channel]domain.ChannelStatus)
}

// FrameSink accepts landmark frames for rendering.
type FrameSink interface {
	PostDraw(req domain.DrawRequest) bool
}
