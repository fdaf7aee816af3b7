package presence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisConfig configures the Redis-backed presence cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// KeyPrefix namespaces presence keys, e.g. "presence:user:".
	KeyPrefix string
	// TTL bounds how long an entry survives without a refresh. Presence
	// written by a process that dies without cleanup ages out on its own.
	TTL time.Duration
}

// Redis is a distributed presence cache. Values are stored as JSON with a
// TTL so crashed writers cannot leave users online forever.
type Redis[K comparable, V any] struct {
	client    *redis.Client
	logger    zerolog.Logger
	keyPrefix string
	ttl       time.Duration
}

// NewRedis creates and connects a Redis presence cache. It pings the server
// before returning.
func NewRedis[K comparable, V any](ctx context.Context, cfg *RedisConfig, logger zerolog.Logger) (*Redis[K, V], error) {
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
		return nil, fmt.Errorf("failed to connect to redis for presence: %w", err)
	}
	logger.Info().Str("redis_address", cfg.Addr).Msg("Connected to Redis for presence.")

	return &Redis[K, V]{
		client:    client,
		logger:    logger.With().Str("component", "RedisPresence").Logger(),
		keyPrefix: cfg.KeyPrefix,
		ttl:       cfg.TTL,
	}, nil
}

func (r *Redis[K, V]) redisKey(key K) string {
	return fmt.Sprintf("%s%v", r.keyPrefix, key)
}

// Set marshals the value to JSON and stores it with the configured TTL.
func (r *Redis[K, V]) Set(ctx context.Context, key K, value V) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal presence value for key '%v': %w", key, err)
	}
	if err := r.client.Set(ctx, r.redisKey(key), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed for key '%v': %w", key, err)
	}
	return nil
}

// Fetch retrieves and unmarshals a value.
func (r *Redis[K, V]) Fetch(ctx context.Context, key K) (V, error) {
	var zero V
	data, err := r.client.Get(ctx, r.redisKey(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return zero, fmt.Errorf("presence key '%v': %w", key, ErrNotFound)
		}
		return zero, fmt.Errorf("redis get failed for key '%v': %w", key, err)
	}
	var value V
	if err := json.Unmarshal([]byte(data), &value); err != nil {
		return zero, fmt.Errorf("failed to unmarshal presence value for key '%v': %w", key, err)
	}
	return value, nil
}

// Delete removes a key. An absent key is not an error.
func (r *Redis[K, V]) Delete(ctx context.Context, key K) error {
	if err := r.client.Del(ctx, r.redisKey(key)).Err(); err != nil {
		return fmt.Errorf("redis del failed for key '%v': %w", key, err)
	}
	return nil
}

// Close closes the Redis client.
func (r *Redis[K, V]) Close() error {
	if r.client != nil {
		r.logger.Info().Msg("Closing Redis presence client.")
		return r.client.Close()
	}
	return nil
}
