package presence_test

import (
	"context"
	"testing"
	"time"

	"github.com/digital-persona/go-clientcore/pkg/persona"
	"github.com/digital-persona/go-clientcore/pkg/presence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory(t *testing.T) {
	ctx := context.Background()

	t.Run("Set then Fetch round-trips", func(t *testing.T) {
		// Arrange
		cache := presence.NewMemory[string, persona.OnlineStatus]()
		status := persona.OnlineStatus{UserID: "u1", Online: true, LastSeen: time.Now().UTC()}

		// Act
		require.NoError(t, cache.Set(ctx, "u1", status))
		got, err := cache.Fetch(ctx, "u1")

		// Assert
		require.NoError(t, err)
		assert.Equal(t, status, got)
	})

	t.Run("Fetch miss is ErrNotFound", func(t *testing.T) {
		cache := presence.NewMemory[string, persona.OnlineStatus]()

		_, err := cache.Fetch(ctx, "nobody")

		assert.ErrorIs(t, err, presence.ErrNotFound)
	})

	t.Run("Delete removes and is idempotent", func(t *testing.T) {
		cache := presence.NewMemory[string, string]()
		require.NoError(t, cache.Set(ctx, "u1", "online"))

		require.NoError(t, cache.Delete(ctx, "u1"))
		require.NoError(t, cache.Delete(ctx, "u1"))

		_, err := cache.Fetch(ctx, "u1")
		assert.ErrorIs(t, err, presence.ErrNotFound)
		assert.Equal(t, 0, cache.Len())
	})
}
