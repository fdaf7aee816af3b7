//go:build integration

package presence_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/digital-persona/go-clientcore/pkg/persona"
	"github.com/digital-persona/go-clientcore/pkg/presence"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Requires a reachable Redis, e.g. REDIS_ADDR=localhost:6379.
func TestRedis_Integration(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	t.Cleanup(cancel)

	cfg := &presence.RedisConfig{
		Addr:      addr,
		KeyPrefix: "test:presence:",
		TTL:       time.Minute,
	}
	cache, err := presence.NewRedis[string, persona.OnlineStatus](ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })

	status := persona.OnlineStatus{UserID: "u-int", Online: true, LastSeen: time.Now().UTC().Truncate(time.Second)}
	require.NoError(t, cache.Set(ctx, "u-int", status))

	got, err := cache.Fetch(ctx, "u-int")
	require.NoError(t, err)
	assert.Equal(t, status.UserID, got.UserID)
	assert.True(t, got.Online)

	require.NoError(t, cache.Delete(ctx, "u-int"))
	_, err = cache.Fetch(ctx, "u-int")
	assert.ErrorIs(t, err, presence.ErrNotFound)
}
