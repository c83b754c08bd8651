package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bemore/internal/core/domain"
	"bemore/internal/core/ports"
	"bemore/pkg/validation"

	"go.uber.org/zap"
)

// FeedbackState is the visible state of the post-session summary form.
type FeedbackState struct {
	Open      bool             `json:"open"`
	SessionID domain.SessionID `json:"sessionId,omitempty"`
	Rating    int              `json:"rating"`
	Note      string           `json:"note"`
	Submitted bool             `json:"submitted"`
}

// FeedbackForm keeps the rating and note entered after a session. State is
// initialised by Open, changed by SetRating/SetNote, read exactly once by Submit
// and reset by Close.
type FeedbackForm struct {
	api    ports.SessionAPI
	logger *zap.SugaredLogger
	now    func() time.Time

	mu    sync.Mutex
	state FeedbackState
}

func NewFeedbackForm(api ports.SessionAPI, logger *zap.SugaredLogger) *FeedbackForm {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &FeedbackForm{api: api, logger: logger, now: time.Now}
}

func (f *FeedbackForm) State() FeedbackState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Open starts a fresh form for sessionID, discarding anything entered before.
func (f *FeedbackForm) Open(sessionID domain.SessionID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = FeedbackState{Open: true, SessionID: sessionID}
}

func (f *FeedbackForm) SetRating(rating int) error {
	if err := validation.ValidateRating(rating); err != nil {
		return domain.ErrInvalidRating
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.editableLocked(); err != nil {
		return err
	}
	f.state.Rating = rating
	return nil
}

func (f *FeedbackForm) SetNote(note string) error {
	if err := validation.ValidateNote(note); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.editableLocked(); err != nil {
		return err
	}
	f.state.Note = note
	return nil
}

func (f *FeedbackForm) editableLocked() error {
	if !f.state.Open {
		return domain.ErrFeedbackNotOpen
	}
	if f.state.Submitted {
		return domain.ErrFeedbackSubmitted
	}
	return nil
}

// Submit sends the entered feedback. The form stays open and submitted until
// Close; a failed send leaves it editable.
func (f *FeedbackForm) Submit(ctx context.Context) (*domain.Feedback, error) {
	f.mu.Lock()
	if err := f.editableLocked(); err != nil {
		f.mu.Unlock()
		return nil, err
	}
	if f.state.Rating == 0 {
		f.mu.Unlock()
		return nil, domain.ErrInvalidRating
	}
	feedback := domain.Feedback{
		SessionID:   f.state.SessionID,
		Rating:      f.state.Rating,
		Note:        f.state.Note,
		SubmittedAt: f.now(),
	}
	// lock out edits and duplicate submits while the request is in flight
	f.state.Submitted = true
	f.mu.Unlock()

	if err := f.api.SubmitFeedback(ctx, feedback.SessionID, feedback); err != nil {
		f.mu.Lock()
		if f.state.Open && f.state.SessionID == feedback.SessionID {
			f.state.Submitted = false
		}
		f.mu.Unlock()
		return nil, fmt.Errorf("failed to submit feedback: %w", err)
	}

	f.logger.Infow("Feedback submitted",
		"session_id", feedback.SessionID,
		"rating", feedback.Rating,
	)
	return &feedback, nil
}

// Close dismisses the form and resets its state.
func (f *FeedbackForm) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = FeedbackState{}
}
