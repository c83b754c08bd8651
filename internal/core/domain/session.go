package domain

import "time"

type SessionID string
type UserID string
type CounselorID string

type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionPaused SessionStatus = "paused"
	SessionEnded  SessionStatus = "ended"
)

func (s SessionStatus) Valid() bool {
	switch s {
	case SessionActive, SessionPaused, SessionEnded:
		return true
	}
	return false
}

type ChannelURLs struct {
	Landmarks string `json:"landmarks"`
	Voice     string `json:"voice"`
	Session   string `json:"session"`
}

// For returns the URL of one channel, or "" for an unknown channel.
func (u ChannelURLs) For(ch Channel) string {
	switch ch {
	case ChannelLandmarks:
		return u.Landmarks
	case ChannelVoice:
		return u.Voice
	case ChannelSession:
		return u.Session
	}
	return ""
}

type SessionData struct {
	SessionID   SessionID     `json:"sessionId"`
	UserID      UserID        `json:"userId,omitempty"`
	CounselorID CounselorID   `json:"counselorId,omitempty"`
	WSURLs      ChannelURLs   `json:"wsUrls"`
	StartedAt   time.Time     `json:"startedAt"`
	Status      SessionStatus `json:"status"`
}

func (s *SessionData) Active() bool {
	return s != nil && s.Status != SessionEnded
}
