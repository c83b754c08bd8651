package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bemore/internal/core/domain"
	"bemore/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "bemore:"

func agentKey(agentID string) string {
	return keyPrefix + "agent:" + agentID
}

// AgentLockKey is the key of the lease held by a running agent.
func AgentLockKey(agentID string) string {
	return agentKey(agentID) + ":lock"
}

// RedisSessionRepository stores the agent's active session under a per-agent key
// so that a restarted agent can offer to resume it.
type RedisSessionRepository struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisSessionRepository scopes the stored session to agentID. A zero ttl
// keeps it until cleared.
func NewRedisSessionRepository(client *redis.Client, agentID string, ttl time.Duration) ports.SessionRepository {
	return &RedisSessionRepository{
		client: client,
		key:    agentKey(agentID) + ":active_session",
		ttl:    ttl,
	}
}

func (r *RedisSessionRepository) SaveActive(ctx context.Context, session *domain.SessionData) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := r.client.Set(ctx, r.key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save active session in Redis: %w", err)
	}
	return nil
}

func (r *RedisSessionRepository) GetActive(ctx context.Context) (*domain.SessionData, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active session from Redis: %w", err)
	}

	var session domain.SessionData
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

func (r *RedisSessionRepository) ClearActive(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("failed to clear active session in Redis: %w", err)
	}
	return nil
}

// RedisSessionStore is the backend session table. Open sessions are indexed in
// a set; feedback is appended to a per-session list.
type RedisSessionStore struct {
	client *redis.Client
	prefix string
}

func NewRedisSessionStore(client *redis.Client) ports.SessionStore {
	return &RedisSessionStore{
		client: client,
		prefix: keyPrefix + "session:",
	}
}

func (s *RedisSessionStore) sessionKey(id domain.SessionID) string {
	return s.prefix + string(id)
}

func (s *RedisSessionStore) feedbackKey(id domain.SessionID) string {
	return s.prefix + string(id) + ":feedback"
}

func activeSessionsKey() string {
	return keyPrefix + "session:active"
}

func (s *RedisSessionStore) Create(ctx context.Context, session *domain.SessionData) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	created, err := s.client.SetNX(ctx, s.sessionKey(session.SessionID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to create session in Redis: %w", err)
	}
	if !created {
		return fmt.Errorf("session already exists: %s", session.SessionID)
	}

	return s.index(ctx, session)
}

func (s *RedisSessionStore) GetByID(ctx context.Context, id domain.SessionID) (*domain.SessionData, error) {
	data, err := s.client.Get(ctx, s.sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session from Redis: %w", err)
	}

	var session domain.SessionData
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

func (s *RedisSessionStore) Update(ctx context.Context, session *domain.SessionData) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	updated, err := s.client.SetXX(ctx, s.sessionKey(session.SessionID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to update session in Redis: %w", err)
	}
	if !updated {
		return domain.ErrSessionNotFound
	}

	return s.index(ctx, session)
}

func (s *RedisSessionStore) index(ctx context.Context, session *domain.SessionData) error {
	var err error
	if session.Status == domain.SessionEnded {
		err = s.client.SRem(ctx, activeSessionsKey(), string(session.SessionID)).Err()
	} else {
		err = s.client.SAdd(ctx, activeSessionsKey(), string(session.SessionID)).Err()
	}
	if err != nil {
		return fmt.Errorf("failed to index session: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) SaveFeedback(ctx context.Context, feedback *domain.Feedback) error {
	exists, err := s.client.Exists(ctx, s.sessionKey(feedback.SessionID)).Result()
	if err != nil {
		return fmt.Errorf("failed to check session in Redis: %w", err)
	}
	if exists == 0 {
		return domain.ErrSessionNotFound
	}

	data, err := json.Marshal(feedback)
	if err != nil {
		return fmt.Errorf("failed to marshal feedback: %w", err)
	}
	if err := s.client.RPush(ctx, s.feedbackKey(feedback.SessionID), data).Err(); err != nil {
		return fmt.Errorf("failed to save feedback in Redis: %w", err)
	}
	return nil
}

// ActiveSessionIDs lists sessions that have not ended.
func (s *RedisSessionStore) ActiveSessionIDs(ctx context.Context) ([]domain.SessionID, error) {
	members, err := s.client.SMembers(ctx, activeSessionsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list active sessions: %w", err)
	}
	ids := make([]domain.SessionID, 0, len(members))
	for _, m := range members {
		ids = append(ids, domain.SessionID(m))
	}
	return ids, nil
}
