package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// DistributedRateLimiter implements Limiter with a fixed window counter in
// Redis, so limits hold across replicas
type DistributedRateLimiter struct {
	redis  *redis.Client
	config *RateLimitConfig
	prefix string
}

// NewDistributedRateLimiter creates a new Redis-backed rate limiter
func NewDistributedRateLimiter(redisClient *redis.Client, config *RateLimitConfig, prefix string) *DistributedRateLimiter {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	if prefix == "" {
		prefix = "ratelimit"
	}

	return &DistributedRateLimiter{
		redis:  redisClient,
		config: config,
		prefix: prefix,
	}
}

func (rl *DistributedRateLimiter) key(key string) string {
	return fmt.Sprintf("%s:%s", rl.prefix, key)
}

func (rl *DistributedRateLimiter) limit() int64 {
	return int64(rl.config.RequestsPerWindow + rl.config.BurstSize)
}

// Allow counts the request in the current window. The window starts with the
// first request for key.
func (rl *DistributedRateLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	redisKey := rl.key(key)

	pipe := rl.redis.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	ttl := pipe.PTTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{Allowed: true}, fmt.Errorf("redis error: %w", err)
	}

	count := incr.Val()
	reset := ttl.Val()
	if reset <= 0 {
		if err := rl.redis.PExpire(ctx, redisKey, rl.config.WindowDuration).Err(); err != nil {
			return Decision{Allowed: true}, fmt.Errorf("redis error: %w", err)
		}
		reset = rl.config.WindowDuration
	}
	return Decision{
		Allowed:   count <= rl.limit(),
		Limit:     rl.config.RequestsPerWindow,
		Remaining: int(rl.limit() - count),
		Reset:     reset,
	}, nil
}

// Remaining returns the number of remaining requests in the window
func (rl *DistributedRateLimiter) Remaining(ctx context.Context, key string) (int, error) {
	count, err := rl.redis.Get(ctx, rl.key(key)).Int64()
	if err == redis.Nil {
		return int(rl.limit()), nil
	} else if err != nil {
		return 0, err
	}

	remaining := rl.limit() - count
	if remaining < 0 {
		remaining = 0
	}
	return int(remaining), nil
}

// TTL returns the time until the rate limit window resets
func (rl *DistributedRateLimiter) TTL(ctx context.Context, key string) (time.Duration, error) {
	return rl.redis.TTL(ctx, rl.key(key)).Result()
}

// Reset clears the rate limit for a key
func (rl *DistributedRateLimiter) Reset(ctx context.Context, key string) error {
	return rl.redis.Del(ctx, rl.key(key)).Err()
}
