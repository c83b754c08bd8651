package redis

import (
	"context"
	"testing"
	"time"

	"bemore/internal/core/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestClient(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := NewRedisClient(Options{Address: mr.Addr(), PoolSize: 2}, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { _ = CloseRedisClient(client) })
	return client, mr
}

func TestRedisSessionRepository_RoundTrip(t *testing.T) {
	client, _ := newTestClient(t)
	repo := NewRedisSessionRepository(client, "agent-1", 0)
	ctx := context.Background()

	got, err := repo.GetActive(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	session := &domain.SessionData{
		SessionID: "sess_1",
		WSURLs:    domain.ChannelURLs{Landmarks: "ws://x/ws/landmarks"},
		StartedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Status:    domain.SessionActive,
	}
	require.NoError(t, repo.SaveActive(ctx, session))

	got, err = repo.GetActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, session, got)

	// another agent does not see it
	other, err := NewRedisSessionRepository(client, "agent-2", 0).GetActive(ctx)
	require.NoError(t, err)
	assert.Nil(t, other)

	require.NoError(t, repo.ClearActive(ctx))
	got, err = repo.GetActive(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisSessionRepository_TTL(t *testing.T) {
	client, mr := newTestClient(t)
	repo := NewRedisSessionRepository(client, "agent-1", time.Minute)
	ctx := context.Background()

	require.NoError(t, repo.SaveActive(ctx, &domain.SessionData{SessionID: "sess_1"}))
	mr.FastForward(2 * time.Minute)

	got, err := repo.GetActive(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisSessionStore(t *testing.T) {
	client, _ := newTestClient(t)
	store := NewRedisSessionStore(client).(*RedisSessionStore)
	ctx := context.Background()

	_, err := store.GetByID(ctx, "sess_missing")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	session := &domain.SessionData{SessionID: "sess_1", Status: domain.SessionActive}
	require.NoError(t, store.Create(ctx, session))
	assert.Error(t, store.Create(ctx, session))

	ids, err := store.ActiveSessionIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.SessionID{"sess_1"}, ids)

	session.Status = domain.SessionEnded
	require.NoError(t, store.Update(ctx, session))
	got, err := store.GetByID(ctx, "sess_1")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionEnded, got.Status)

	ids, err = store.ActiveSessionIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	assert.ErrorIs(t, store.Update(ctx, &domain.SessionData{SessionID: "sess_missing"}), domain.ErrSessionNotFound)

	require.NoError(t, store.SaveFeedback(ctx, &domain.Feedback{SessionID: "sess_1", Rating: 4}))
	n, err := client.LLen(ctx, store.feedbackKey("sess_1")).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.ErrorIs(t, store.SaveFeedback(ctx, &domain.Feedback{SessionID: "sess_missing"}), domain.ErrSessionNotFound)
}

func TestMigrate_RebuildsIndex(t *testing.T) {
	mr := miniredis.RunT(t)
	require.NoError(t, mr.Set("bemore:session:sess_a", `{"sessionId":"sess_a","status":"active"}`))
	require.NoError(t, mr.Set("bemore:session:sess_b", `{"sessionId":"sess_b","status":"ended"}`))
	_, err := mr.Push("bemore:session:sess_a:feedback", `{}`)
	require.NoError(t, err)

	client, err := NewRedisClient(Options{Address: mr.Addr(), PoolSize: 2}, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	defer client.Close()

	members, err := mr.Members(activeSessionsKey())
	require.NoError(t, err)
	assert.Equal(t, []string{"sess_a"}, members)

	version, err := mr.Get(schemaVersionKey)
	require.NoError(t, err)
	assert.Equal(t, "2", version)
}
