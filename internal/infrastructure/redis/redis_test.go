package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aurorahunt/hunt-service/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	c.now = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	return c, mr
}

func TestEventWindow_GetSetAndMiss(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	id := uuid.New()

	_, err := c.GetEventWindow(ctx, id)
	require.True(t, errors.Is(err, domain.ErrCacheMiss))

	w := domain.EventWindow{EventID: id, EndTime: time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC), Canceled: true}
	require.NoError(t, c.SetEventWindow(ctx, w))

	got, err := c.GetEventWindow(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, w.EventID, got.EventID)
	assert.True(t, w.EndTime.Equal(got.EndTime))
	assert.True(t, got.Canceled)

	// nine days to the end plus a day of slack
	assert.Equal(t, 10*24*time.Hour, mr.TTL(windowKey(id)))
}

func TestEventWindow_PastEventKeepsDefaultTTL(t *testing.T) {
	c, mr := newTestCache(t)
	id := uuid.New()
	w := domain.EventWindow{EventID: id, EndTime: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)}
	require.NoError(t, c.SetEventWindow(context.Background(), w))
	assert.Equal(t, defaultWindowTT, mr.TTL(windowKey(id)))
}

func TestEventWindow_CorruptValue(t *testing.T) {
	c, mr := newTestCache(t)
	id := uuid.New()
	require.NoError(t, mr.Set(windowKey(id), "{not json"))

	_, err := c.GetEventWindow(context.Background(), id)
	require.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrCacheMiss))
}

func TestAllowRequest_FixedWindow(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := c.AllowRequest(ctx, "1.2.3.4", 2, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := c.AllowRequest(ctx, "1.2.3.4", 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = c.AllowRequest(ctx, "5.6.7.8", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	mr.FastForward(time.Minute + time.Second)
	ok, err = c.AllowRequest(ctx, "1.2.3.4", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAllowRequest_FailsOpen(t *testing.T) {
	c, mr := newTestCache(t)
	mr.Close()

	ok, err := c.AllowRequest(context.Background(), "1.2.3.4", 1, time.Minute)
	assert.Error(t, err)
	assert.True(t, ok)
}
