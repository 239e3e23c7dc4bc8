package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/achievement-hub/internal/domain/achievement"
)

func TestConfig_Options(t *testing.T) {
	cfg := DefaultConfig()
	cfg.URL = "redis://:secret@cache.internal:6380/2"
	cfg.PoolSize = 7

	opts, err := cfg.Options()
	require.NoError(t, err)
	assert.Equal(t, "cache.internal:6380", opts.Addr)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 7, opts.PoolSize)

	cfg.URL = "http://nope"
	_, err = cfg.Options()
	assert.Error(t, err)
}

func TestCountsKeys(t *testing.T) {
	assert.Equal(t, "achievement:counts", CountsKey)
	assert.Equal(t, "achievement:counts:gen", CountsGenerationKey)
}

// TestCountsCache_Redis runs against a real server when ACHIEVEMENT_TEST_REDIS_URL is set.
func TestCountsCache_Redis(t *testing.T) {
	url := os.Getenv("ACHIEVEMENT_TEST_REDIS_URL")
	if url == "" {
		t.Skip("ACHIEVEMENT_TEST_REDIS_URL not set")
	}
	ctx := context.Background()

	cfg := DefaultConfig()
	cfg.URL = url
	cache, err := NewCache(ctx, cfg)
	require.NoError(t, err)
	defer cache.Close()

	counts := NewCountsCache(cache, time.Minute)
	require.NoError(t, counts.InvalidateCounts(ctx))

	_, gen, ok, err := counts.GetCounts(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	want := achievement.StatusCounts{Total: 3, Draft: 1, Pending: 2}
	stored, err := counts.SetCounts(ctx, gen, want)
	require.NoError(t, err)
	assert.True(t, stored)

	got, _, ok, err := counts.GetCounts(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, want, got)

	ttl, err := cache.client.PTTL(ctx, CountsKey).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	require.NoError(t, counts.InvalidateCounts(ctx))
	_, _, ok, err = counts.GetCounts(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

// A recompute that started before an invalidation must not repopulate the
// cache with the counts it read.
func TestCountsCache_RedisInvalidationDuringRecompute(t *testing.T) {
	url := os.Getenv("ACHIEVEMENT_TEST_REDIS_URL")
	if url == "" {
		t.Skip("ACHIEVEMENT_TEST_REDIS_URL not set")
	}
	ctx := context.Background()

	cfg := DefaultConfig()
	cfg.URL = url
	cache, err := NewCache(ctx, cfg)
	require.NoError(t, err)
	defer cache.Close()

	counts := NewCountsCache(cache, time.Minute)
	require.NoError(t, counts.InvalidateCounts(ctx))

	_, gen, ok, err := counts.GetCounts(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, counts.InvalidateCounts(ctx))

	stored, err := counts.SetCounts(ctx, gen, achievement.StatusCounts{Total: 1, Pending: 1})
	require.NoError(t, err)
	assert.False(t, stored)

	_, fresh, ok, err := counts.GetCounts(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, gen+1, fresh)
}
