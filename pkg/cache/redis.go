package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisConfig configures the Redis tier.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// TTL applies to every value written into Redis by this tier.
	TTL time.Duration
	// WriteBackTimeout bounds the background write after a fallback hit.
	// Defaults to 10 seconds.
	WriteBackTimeout time.Duration
}

// Redis is a shared tier storing values as JSON with a TTL. On a miss it
// pulls from its fallback and writes the result back in the background, so
// the read path is never blocked on the cache write.
type Redis[K comparable, V any] struct {
	client           *redis.Client
	logger           zerolog.Logger
	ttl              time.Duration
	writeBackTimeout time.Duration
	fallback         Source[K, V]
}

// NewRedis creates and connects the Redis tier, pinging the server before
// returning. fallback may be nil.
func NewRedis[K comparable, V any](
	ctx context.Context,
	cfg *RedisConfig,
	fallback Source[K, V],
	logger zerolog.Logger,
) (*Redis[K, V], error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	logger.Info().Str("redis_address", cfg.Addr).Msg("Connected to Redis cache tier.")

	writeBackTimeout := cfg.WriteBackTimeout
	if writeBackTimeout <= 0 {
		writeBackTimeout = 10 * time.Second
	}
	return &Redis[K, V]{
		client:           client,
		logger:           logger.With().Str("component", "RedisCacheTier").Logger(),
		ttl:              cfg.TTL,
		writeBackTimeout: writeBackTimeout,
		fallback:         fallback,
	}, nil
}

// Fetch checks Redis first, then the fallback. A fallback hit is written
// back to Redis asynchronously.
func (c *Redis[K, V]) Fetch(ctx context.Context, key K) (V, error) {
	var zero V
	value, err := c.fetchFromRedis(ctx, key)
	if err == nil {
		return value, nil
	}
	if !errors.Is(err, redis.Nil) {
		c.logger.Error().Err(err).Msg("Unexpected Redis error during fetch.")
		return zero, err
	}

	if c.fallback == nil {
		return zero, fmt.Errorf("key '%v': %w", key, ErrNotFound)
	}

	value, err = c.fallback.Fetch(ctx, key)
	if err != nil {
		return zero, err
	}

	go func(k K, v V) {
		writeCtx, cancel := context.WithTimeout(context.Background(), c.writeBackTimeout)
		defer cancel()
		if writeErr := c.write(writeCtx, k, v); writeErr != nil {
			c.logger.Error().Err(writeErr).Str("key", fmt.Sprintf("%v", k)).Msg("Background cache write-back failed.")
		}
	}(key, value)

	return value, nil
}

// Invalidate removes a key from Redis only.
func (c *Redis[K, V]) Invalidate(ctx context.Context, key K) error {
	stringKey := fmt.Sprintf("%v", key)
	if err := c.client.Del(ctx, stringKey).Err(); err != nil {
		return fmt.Errorf("redis del failed for key %s: %w", stringKey, err)
	}
	return nil
}

func (c *Redis[K, V]) fetchFromRedis(ctx context.Context, key K) (V, error) {
	var zero V
	stringKey := fmt.Sprintf("%v", key)
	data, err := c.client.Get(ctx, stringKey).Result()
	if err != nil {
		// The caller distinguishes redis.Nil from real failures.
		return zero, err
	}
	var value V
	if err := json.Unmarshal([]byte(data), &value); err != nil {
		return zero, fmt.Errorf("failed to unmarshal cached value for key %s: %w", stringKey, err)
	}
	return value, nil
}

func (c *Redis[K, V]) write(ctx context.Context, key K, value V) error {
	stringKey := fmt.Sprintf("%v", key)
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value for key %s: %w", stringKey, err)
	}
	if err := c.client.Set(ctx, stringKey, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed for key %s: %w", stringKey, err)
	}
	return nil
}

// Close closes the Redis client and then the fallback, if any.
func (c *Redis[K, V]) Close() error {
	var firstErr error
	if c.client != nil {
		c.logger.Info().Msg("Closing Redis cache tier.")
		firstErr = c.client.Close()
	}
	if c.fallback != nil {
		if err := c.fallback.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
