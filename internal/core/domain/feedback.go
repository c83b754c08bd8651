package domain

import "time"

type Feedback struct {
	SessionID   SessionID `json:"sessionId"`
	Rating      int       `json:"rating"`
	Note        string    `json:"note,omitempty"`
	SubmittedAt time.Time `json:"submittedAt"`
}

type SubtitleLine struct {
	Text      string    `json:"text"`
	Final     bool      `json:"final"`
	Timestamp time.Time `json:"timestamp"`
}
