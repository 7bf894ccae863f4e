package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"loanflow/internal/application/models"
	platformredis "loanflow/internal/platform/redis"
	"loanflow/pkg/platform/sentinel"
)

// StatsCache is a best-effort read-through cache for the statistics
// aggregation. Errors from the cache never fail the caller.
type StatsCache interface {
	Get(ctx context.Context) (models.Stats, error)
	Set(ctx context.Context, stats models.Stats) error
	Invalidate(ctx context.Context) error
}

const statsCacheKey = "loanflow:stats"

// RedisStatsCache stores the stats snapshot as JSON under a single key with
// a short TTL. Writers invalidate it so dashboards converge quickly.
type RedisStatsCache struct {
	client *platformredis.Client
	ttl    time.Duration
}

func NewRedisStatsCache(client *platformredis.Client, ttl time.Duration) *RedisStatsCache {
	return &RedisStatsCache{client: client, ttl: ttl}
}

func (c *RedisStatsCache) Get(ctx context.Context) (models.Stats, error) {
	raw, err := c.client.Get(ctx, statsCacheKey).Bytes()
	if err == redis.Nil {
		return models.Stats{}, sentinel.ErrNotFound
	}
	if err != nil {
		return models.Stats{}, fmt.Errorf("stats cache get: %w", err)
	}
	var stats models.Stats
	if err := json.Unmarshal(raw, &stats); err != nil {
		return models.Stats{}, fmt.Errorf("stats cache decode: %w", err)
	}
	return stats, nil
}

func (c *RedisStatsCache) Set(ctx context.Context, stats models.Stats) error {
	raw, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("stats cache encode: %w", err)
	}
	if err := c.client.Set(ctx, statsCacheKey, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("stats cache set: %w", err)
	}
	return nil
}

func (c *RedisStatsCache) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, statsCacheKey).Err(); err != nil {
		return fmt.Errorf("stats cache invalidate: %w", err)
	}
	return nil
}

// NoopStatsCache is used when redis is not configured. Every read misses.
type NoopStatsCache struct{}

func (NoopStatsCache) Get(context.Context) (models.Stats, error) {
	return models.Stats{}, sentinel.ErrNotFound
}

func (NoopStatsCache) Set(context.Context, models.Stats) error { return nil }

func (NoopStatsCache) Invalidate(context.Context) error { return nil }
