package services

import (
	"context"
	"errors"
	"testing"

	"bemore/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestFeedbackForm_Lifecycle(t *testing.T) {
	api := &mockSessionAPI{}
	form := NewFeedbackForm(api, zaptest.NewLogger(t).Sugar())
	ctx := context.Background()

	api.On("SubmitFeedback", mock.Anything, domain.SessionID("sess_1"), mock.MatchedBy(func(f domain.Feedback) bool {
		return f.Rating == 4 && f.Note == "helpful"
	})).Return(nil).Once()

	form.Open("sess_1")
	require.NoError(t, form.SetRating(4))
	require.NoError(t, form.SetNote("helpful"))

	fb, err := form.Submit(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, fb.Rating)
	assert.True(t, form.State().Submitted)

	_, err = form.Submit(ctx)
	assert.ErrorIs(t, err, domain.ErrFeedbackSubmitted)
	assert.ErrorIs(t, form.SetRating(5), domain.ErrFeedbackSubmitted)

	form.Close()
	assert.Equal(t, FeedbackState{}, form.State())
	api.AssertExpectations(t)
}

func TestFeedbackForm_RequiresOpen(t *testing.T) {
	form := NewFeedbackForm(&mockSessionAPI{}, zaptest.NewLogger(t).Sugar())

	assert.ErrorIs(t, form.SetRating(3), domain.ErrFeedbackNotOpen)
	assert.ErrorIs(t, form.SetNote("x"), domain.ErrFeedbackNotOpen)
	_, err := form.Submit(context.Background())
	assert.ErrorIs(t, err, domain.ErrFeedbackNotOpen)
}

func TestFeedbackForm_RatingBounds(t *testing.T) {
	form := NewFeedbackForm(&mockSessionAPI{}, zaptest.NewLogger(t).Sugar())
	form.Open("sess_1")

	assert.ErrorIs(t, form.SetRating(0), domain.ErrInvalidRating)
	assert.ErrorIs(t, form.SetRating(6), domain.ErrInvalidRating)

	_, err := form.Submit(context.Background())
	assert.ErrorIs(t, err, domain.ErrInvalidRating)
}

func TestFeedbackForm_OpenResetsPreviousInput(t *testing.T) {
	form := NewFeedbackForm(&mockSessionAPI{}, zaptest.NewLogger(t).Sugar())
	form.Open("sess_1")
	require.NoError(t, form.SetRating(2))
	require.NoError(t, form.SetNote("meh"))

	form.Open("sess_2")
	state := form.State()
	assert.Equal(t, domain.SessionID("sess_2"), state.SessionID)
	assert.Zero(t, state.Rating)
	assert.Empty(t, state.Note)
}

func TestFeedbackForm_FailedSubmitStaysEditable(t *testing.T) {
	api := &mockSessionAPI{}
	api.On("SubmitFeedback", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("boom")).Once()
	api.On("SubmitFeedback", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

	form := NewFeedbackForm(api, zaptest.NewLogger(t).Sugar())
	form.Open("sess_1")
	require.NoError(t, form.SetRating(5))

	_, err := form.Submit(context.Background())
	require.Error(t, err)
	assert.False(t, form.State().Submitted)

	_, err = form.Submit(context.Background())
	assert.NoError(t, err)
}
