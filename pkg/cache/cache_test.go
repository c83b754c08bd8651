package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, ttl time.Duration) (*Cache[string], *time.Time) {
	t.Helper()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := New[string](ttl)
	c.now = func() time.Time { return now }
	t.Cleanup(c.Stop)
	return c, &now
}

func TestCache_SetGetExpire(t *testing.T) {
	c, now := newTestCache(t, time.Minute)

	c.Set("a", "1")
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "1", v)

	*now = now.Add(2 * time.Minute)
	_, ok = c.Get("a")
	assert.False(t, ok)

	stats := c.GetStats()
	assert.Equal(t, Stats{Size: 0, Expired: 1, TotalKeys: 1}, stats)

	c.Invalidate("")
	assert.Equal(t, 0, c.Size())
}

func TestCache_InvalidatePrefix(t *testing.T) {
	c, _ := newTestCache(t, time.Minute)

	c.Set("session:1", "a")
	c.Set("session:2", "b")
	c.Set("other", "c")

	c.Invalidate("session:")
	assert.Equal(t, 1, c.Size())
	_, ok := c.Get("other")
	assert.True(t, ok)

	c.Delete("other")
	assert.Equal(t, 0, c.Size())
}

func TestCache_GetOrSet(t *testing.T) {
	c, _ := newTestCache(t, time.Minute)

	calls := 0
	load := func(context.Context) (string, error) {
		calls++
		return "loaded", nil
	}

	for i := 0; i < 3; i++ {
		v, err := c.GetOrSet(context.Background(), "k", load)
		require.NoError(t, err)
		assert.Equal(t, "loaded", v)
	}
	assert.Equal(t, 1, calls)

	boom := errors.New("boom")
	_, err := c.GetOrSet(context.Background(), "missing", func(context.Context) (string, error) {
		return "", boom
	})
	assert.ErrorIs(t, err, boom)
	_, ok := c.Get("missing")
	assert.False(t, ok)
}

func TestCache_StopTwice(t *testing.T) {
	c := New[int](time.Second)
	c.Stop()
	c.Stop()
}
