package services

import (
	"context"
	"sync"

	"bemore/internal/core/domain"

	"github.com/stretchr/testify/mock"
)

type mockSessionAPI struct {
	mock.Mock
}

func (m *mockSessionAPI) StartSession(ctx context.Context, userID domain.UserID, counselorID domain.CounselorID) (*domain.SessionData, error) {
	args := m.Called(ctx, userID, counselorID)
	if s, ok := args.Get(0).(*domain.SessionData); ok {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSessionAPI) EndSession(ctx context.Context, sessionID domain.SessionID) error {
	return m.Called(ctx, sessionID).Error(0)
}

func (m *mockSessionAPI) SubmitFeedback(ctx context.Context, sessionID domain.SessionID, feedback domain.Feedback) error {
	return m.Called(ctx, sessionID, feedback).Error(0)
}

type fakeConnector struct {
	mu          sync.Mutex
	connected   []domain.SessionID
	disconnects int
	err         error
}

func (f *fakeConnector) Connect(_ context.Context, s *domain.SessionData) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = append(f.connected, s.SessionID)
	return f.err
}

func (f *fakeConnector) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
}

type fakeRepository struct {
	mu     sync.Mutex
	active *domain.SessionData
}

func (r *fakeRepository) SaveActive(_ context.Context, s *domain.SessionData) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *s
	r.active = &c
	return nil
}

func (r *fakeRepository) GetActive(context.Context) (*domain.SessionData, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil {
		return nil, nil
	}
	c := *r.active
	return &c, nil
}

func (r *fakeRepository) ClearActive(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = nil
	return nil
}
