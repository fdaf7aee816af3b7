// Package ratelimit provides a Redis-backed fixed-window rate limiter, used
// by the platform to throttle chat sends and expensive fetches per user.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Limiter decides whether an action identified by a key may proceed.
type Limiter interface {
	// Allow reports whether the action is within its budget. The count is
	// consumed even when the answer is false.
	Allow(ctx context.Context, key string) (bool, error)
	Close() error
}

// RedisConfig configures the Redis limiter.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// Limit is the number of allowed actions per window.
	Limit int
	// Window is the fixed window length.
	Window time.Duration
	// KeyPrefix namespaces limiter keys, e.g. "ratelimit:chat:".
	KeyPrefix string
}

// RedisLimiter counts actions with INCR and expires the counter at the end
// of each window. The first hit in a window sets the expiry.
type RedisLimiter struct {
	client    *redis.Client
	logger    zerolog.Logger
	limit     int
	window    time.Duration
	keyPrefix string
}

// NewRedisLimiter creates and connects a limiter, pinging Redis first.
func NewRedisLimiter(ctx context.Context, cfg *RedisConfig, logger zerolog.Logger) (*RedisLimiter, error) {
	if cfg == nil {
		return nil, fmt.Errorf("limiter config cannot be nil")
	}
	if cfg.Limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than 0")
	}
	if cfg.Window <= 0 {
		return nil, fmt.Errorf("window must be greater than 0")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis for rate limiting: %w", err)
	}

	return &RedisLimiter{
		client:    client,
		logger:    logger.With().Str("component", "RedisLimiter").Logger(),
		limit:     cfg.Limit,
		window:    cfg.Window,
		keyPrefix: cfg.KeyPrefix,
	}, nil
}

// Allow increments the window counter for the key and compares it against
// the limit.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := l.keyPrefix + key
	count, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, fmt.Errorf("redis incr failed for key %s: %w", redisKey, err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, redisKey, l.window).Err(); err != nil {
			return false, fmt.Errorf("redis expire failed for key %s: %w", redisKey, err)
		}
	}
	allowed := count <= int64(l.limit)
	if !allowed {
		l.logger.Debug().Str("key", key).Int64("count", count).Msg("Rate limit exceeded.")
	}
	return allowed, nil
}

// Close closes the Redis client.
func (l *RedisLimiter) Close() error {
	if l.client != nil {
		return l.client.Close()
	}
	return nil
}
