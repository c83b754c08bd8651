package domain

import "errors"

var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrNoActiveSession   = errors.New("no active session")
	ErrSessionEnded      = errors.New("session already ended")
	ErrUnknownChannel    = errors.New("unknown channel")
	ErrChannelClosed     = errors.New("channel closed")
	ErrInvalidRating     = errors.New("rating must be between 1 and 5")
	ErrFeedbackNotOpen   = errors.New("feedback form is not open")
	ErrFeedbackSubmitted = errors.New("feedback already submitted")
)
