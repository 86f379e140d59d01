//go:build integration

package cache

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/redis"
)

func setupRedisContainer(t *testing.T) *RedisCache {
	ctx := context.Background()

	redisContainer, err := redis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)

	connStr, err := redisContainer.ConnectionString(ctx)
	require.NoError(t, err)

	cache := NewRedisCache(Config{
		Type:       "redis",
		Addr:       strings.TrimPrefix(connStr, "redis://"),
		DefaultTTL: time.Minute,
		Prefix:     "test",
	})

	t.Cleanup(func() {
		cache.Close()
		redisContainer.Terminate(ctx)
	})
	return cache
}

func TestRedisCache_Integration_BasicOperations(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	cache := setupRedisContainer(t)
	ctx := context.Background()

	t.Run("set and get", func(t *testing.T) {
		err := cache.Set(ctx, "key1", []byte("value1"), 0)
		require.NoError(t, err)

		data, err := cache.Get(ctx, "key1")
		require.NoError(t, err)
		assert.Equal(t, []byte("value1"), data)
	})

	t.Run("get miss", func(t *testing.T) {
		data, err := cache.Get(ctx, "nonexistent")
		assert.ErrorIs(t, err, ErrCacheMiss)
		assert.Nil(t, data)
	})

	t.Run("delete", func(t *testing.T) {
		err := cache.Set(ctx, "key2", []byte("value2"), 0)
		require.NoError(t, err)

		err = cache.Delete(ctx, "key2")
		require.NoError(t, err)

		_, err = cache.Get(ctx, "key2")
		assert.ErrorIs(t, err, ErrCacheMiss)
	})
}

func TestRedisCache_Integration_TTL(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	cache := setupRedisContainer(t)
	ctx := context.Background()

	err := cache.Set(ctx, "expiring", []byte("value"), 100*time.Millisecond)
	require.NoError(t, err)

	data, err := cache.Get(ctx, "expiring")
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), data)

	time.Sleep(200 * time.Millisecond)

	_, err = cache.Get(ctx, "expiring")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisCache_Integration_JSON(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	cache := setupRedisContainer(t)
	ctx := context.Background()

	type runView struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}

	t.Run("set and get JSON", func(t *testing.T) {
		input := runView{ID: "run-1", Status: "QUEUED"}
		err := cache.SetJSON(ctx, "run:t1:run-1", input, 0)
		require.NoError(t, err)

		var output runView
		err = cache.GetJSON(ctx, "run:t1:run-1", &output)
		require.NoError(t, err)
		assert.Equal(t, input, output)
	})

	t.Run("get JSON miss", func(t *testing.T) {
		var output runView
		err := cache.GetJSON(ctx, "nonexistent", &output)
		assert.ErrorIs(t, err, ErrCacheMiss)
	})
}

func TestRedisCache_Integration_DeletePattern(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	cache := setupRedisContainer(t)
	ctx := context.Background()

	_ = cache.Set(ctx, "run:t1:r1", []byte("v1"), 0)
	_ = cache.Set(ctx, "run:t1:r2", []byte("v2"), 0)
	_ = cache.Set(ctx, "run:t2:r1", []byte("v3"), 0)

	err := cache.DeletePattern(ctx, "run:t1:*")
	require.NoError(t, err)

	_, err = cache.Get(ctx, "run:t1:r1")
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, err = cache.Get(ctx, "run:t1:r2")
	assert.ErrorIs(t, err, ErrCacheMiss)

	data, err := cache.Get(ctx, "run:t2:r1")
	require.NoError(t, err)
	assert.Equal(t, []byte("v3"), data)
}

func TestRedisCache_Integration_Health(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	cache := setupRedisContainer(t)
	assert.NoError(t, cache.Health(context.Background()))
}

func TestRedisCache_Integration_Stats(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	cache := setupRedisContainer(t)
	ctx := context.Background()

	_ = cache.Set(ctx, "stat1", []byte("value"), 0)
	_, _ = cache.Get(ctx, "stat1")
	_, _ = cache.Get(ctx, "stat1")
	_, _ = cache.Get(ctx, "nonexistent")

	stats := cache.Stats()
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}
