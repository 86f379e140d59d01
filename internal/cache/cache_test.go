package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache_GetSet(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(DefaultConfig())

	_, err := c.Get(ctx, "absent")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "key", []byte("value"), time.Minute))
	got, err := c.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), got)

	// The cache hands out copies, not the stored slice.
	got[0] = 'X'
	again, err := c.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), again)

	require.NoError(t, c.Delete(ctx, "key"))
	_, err = c.Get(ctx, "key")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCache_TTL(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(DefaultConfig())

	require.NoError(t, c.Set(ctx, "short", []byte("v"), time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	_, err := c.Get(ctx, "short")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCache_JSON(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(DefaultConfig())

	type view struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}

	require.NoError(t, c.SetJSON(ctx, "run:t1:r1", view{ID: "r1", Status: "QUEUED"}, time.Minute))

	var got view
	require.NoError(t, c.GetJSON(ctx, "run:t1:r1", &got))
	assert.Equal(t, "r1", got.ID)
	assert.Equal(t, "QUEUED", got.Status)

	var missing view
	assert.ErrorIs(t, c.GetJSON(ctx, "run:t1:r2", &missing), ErrCacheMiss)
}

func TestMemoryCache_DeletePattern(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(DefaultConfig())

	require.NoError(t, c.Set(ctx, "run:t1:r1", []byte("a"), time.Minute))
	require.NoError(t, c.Set(ctx, "run:t1:r2", []byte("b"), time.Minute))
	require.NoError(t, c.Set(ctx, "run:t2:r1", []byte("c"), time.Minute))

	require.NoError(t, c.DeletePattern(ctx, "run:t1:*"))

	_, err := c.Get(ctx, "run:t1:r1")
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, err = c.Get(ctx, "run:t2:r1")
	assert.NoError(t, err)
}

func TestMemoryCache_Eviction(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.MaxItems = 2
	c := NewMemoryCache(cfg)

	require.NoError(t, c.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, c.Set(ctx, "b", []byte("2"), time.Hour))
	require.NoError(t, c.Set(ctx, "c", []byte("3"), time.Hour))

	// The item closest to expiry was evicted to make room.
	_, err := c.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.EqualValues(t, 2, c.Stats().Keys)
}

func TestMemoryCache_Stats(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(DefaultConfig())

	require.NoError(t, c.Set(ctx, "key", []byte("v"), time.Minute))
	_, _ = c.Get(ctx, "key")
	_, _ = c.Get(ctx, "absent")

	stats := c.Stats()
	assert.EqualValues(t, 1, stats.Hits)
	assert.EqualValues(t, 1, stats.Misses)
	assert.EqualValues(t, 1, stats.Keys)
}

func TestNew(t *testing.T) {
	c, err := New(Config{Type: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryCache{}, c)

	c, err = New(Config{})
	require.NoError(t, err)
	assert.IsType(t, &MemoryCache{}, c)

	_, err = New(Config{Type: "memcached"})
	assert.Error(t, err)
}
