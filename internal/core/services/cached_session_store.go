package services

import (
	"context"
	"fmt"
	"time"

	"bemore/internal/core/domain"
	"bemore/internal/core/ports"
	"bemore/pkg/cache"
)

// CachedSessionStore wraps a SessionStore with a read-through cache.
// Channel upgrades and session lookups read the same few sessions repeatedly.
type CachedSessionStore struct {
	base  ports.SessionStore
	cache *cache.Cache[domain.SessionData]
}

// NewCachedSessionStore returns base unchanged when ttl is zero.
func NewCachedSessionStore(base ports.SessionStore, ttl time.Duration) ports.SessionStore {
	if ttl <= 0 {
		return base
	}
	return &CachedSessionStore{
		base:  base,
		cache: cache.New[domain.SessionData](ttl),
	}
}

func sessionCacheKey(id domain.SessionID) string {
	return fmt.Sprintf("session:%s", id)
}

func (s *CachedSessionStore) Create(ctx context.Context, session *domain.SessionData) error {
	if err := s.base.Create(ctx, session); err != nil {
		return err
	}
	s.cache.Set(sessionCacheKey(session.SessionID), *session)
	return nil
}

// GetByID returns a copy so callers may mutate it before Update.
func (s *CachedSessionStore) GetByID(ctx context.Context, id domain.SessionID) (*domain.SessionData, error) {
	value, err := s.cache.GetOrSet(ctx, sessionCacheKey(id), func(ctx context.Context) (domain.SessionData, error) {
		session, err := s.base.GetByID(ctx, id)
		if err != nil {
			return domain.SessionData{}, err
		}
		return *session, nil
	})
	if err != nil {
		return nil, err
	}
	return &value, nil
}

func (s *CachedSessionStore) Update(ctx context.Context, session *domain.SessionData) error {
	key := sessionCacheKey(session.SessionID)
	s.cache.Delete(key)
	if err := s.base.Update(ctx, session); err != nil {
		return err
	}
	s.cache.Set(key, *session)
	return nil
}

func (s *CachedSessionStore) SaveFeedback(ctx context.Context, feedback *domain.Feedback) error {
	return s.base.SaveFeedback(ctx, feedback)
}

// Close stops the cache sweeper.
func (s *CachedSessionStore) Close() {
	s.cache.Stop()
}
