package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alem-hub/achievement-hub/internal/domain/achievement"
)

// DefaultCountsTTL bounds staleness when an invalidation is lost.
const DefaultCountsTTL = 30 * time.Second

const (
	// CountsKey is the hash holding the counts projection.
	CountsKey = "achievement:counts"

	// CountsGenerationKey is bumped by every invalidation. It never expires.
	CountsGenerationKey = "achievement:counts:gen"
)

// countsHash mirrors achievement.StatusCounts as hash fields.
type countsHash struct {
	Total    int `redis:"total"`
	Draft    int `redis:"draft"`
	Pending  int `redis:"pending"`
	Approved int `redis:"approved"`
	Rejected int `redis:"rejected"`
}

// setIfGeneration replaces the hash only while the generation still equals
// ARGV[1]. INCRBY 0 reads the counter and creates it at zero when missing.
var setIfGeneration = redis.NewScript(`
if redis.call('INCRBY', KEYS[2], 0) ~= tonumber(ARGV[1]) then
	return 0
end
redis.call('DEL', KEYS[1])
redis.call('HSET', KEYS[1],
	'total', ARGV[3], 'draft', ARGV[4], 'pending', ARGV[5],
	'approved', ARGV[6], 'rejected', ARGV[7])
redis.call('PEXPIRE', KEYS[1], ARGV[2])
return 1
`)

// CountsCache implements achievement.CountsCache as a Redis hash guarded by
// a generation counter.
type CountsCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

var _ achievement.CountsCache = (*CountsCache)(nil)

// NewCountsCache creates a CountsCache. A non-positive ttl uses DefaultCountsTTL.
func NewCountsCache(cache *Cache, ttl time.Duration) *CountsCache {
	if ttl <= 0 {
		ttl = DefaultCountsTTL
	}
	return &CountsCache{client: cache.client, ttl: ttl}
}

// GetCounts reads the hash and the generation in one MULTI. ok is false when
// the hash is absent.
func (c *CountsCache) GetCounts(ctx context.Context) (achievement.StatusCounts, int64, bool, error) {
	var (
		fields *redis.MapStringStringCmd
		gen    *redis.IntCmd
	)
	_, err := c.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		fields = p.HGetAll(ctx, CountsKey)
		gen = p.IncrBy(ctx, CountsGenerationKey, 0)
		return nil
	})
	if err != nil {
		return achievement.StatusCounts{}, 0, false, err
	}
	if len(fields.Val()) == 0 {
		return achievement.StatusCounts{}, gen.Val(), false, nil
	}

	var h countsHash
	if err := fields.Scan(&h); err != nil {
		return achievement.StatusCounts{}, 0, false, err
	}
	return achievement.StatusCounts(h), gen.Val(), true, nil
}

// SetCounts stores counts with the TTL unless an invalidation has moved the
// generation past generation.
func (c *CountsCache) SetCounts(ctx context.Context, generation int64, counts achievement.StatusCounts) (bool, error) {
	stored, err := setIfGeneration.Run(ctx, c.client,
		[]string{CountsKey, CountsGenerationKey},
		generation, c.ttl.Milliseconds(),
		counts.Total, counts.Draft, counts.Pending, counts.Approved, counts.Rejected,
	).Int()
	if err != nil {
		return false, err
	}
	return stored == 1, nil
}

// InvalidateCounts bumps the generation and drops the hash atomically.
func (c *CountsCache) InvalidateCounts(ctx context.Context) error {
	_, err := c.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Incr(ctx, CountsGenerationKey)
		p.Del(ctx, CountsKey)
		return nil
	})
	return err
}
