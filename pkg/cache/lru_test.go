package cache_test

import (
	"context"
	"testing"

	"github.com/digital-persona/go-clientcore/pkg/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRU(t *testing.T) {
	ctx := context.Background()

	t.Run("Rejects a non-positive size", func(t *testing.T) {
		_, err := cache.NewLRU[string, int](0, nil)
		require.Error(t, err)
	})

	t.Run("Evicts the least recently used entry", func(t *testing.T) {
		// Arrange: a source that returns the key's length.
		source := &mockSource[string, int]{
			FetchFunc: func(ctx context.Context, key string) (int, error) {
				return len(key), nil
			},
		}
		tier, err := cache.NewLRU[string, int](2, source)
		require.NoError(t, err)

		// Act: fill to capacity, touch "a" to refresh it, then insert
		// a third key.
		_, err = tier.Fetch(ctx, "a")
		require.NoError(t, err)
		_, err = tier.Fetch(ctx, "bb")
		require.NoError(t, err)
		_, err = tier.Fetch(ctx, "a")
		require.NoError(t, err)
		_, err = tier.Fetch(ctx, "ccc")
		require.NoError(t, err)

		// Assert: "bb" was evicted, "a" survived.
		require.Equal(t, 2, tier.Len())
		before := source.calls.Load()
		_, err = tier.Fetch(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, before, source.calls.Load(), "touching a retained key must not hit the source")

		_, err = tier.Fetch(ctx, "bb")
		require.NoError(t, err)
		assert.Equal(t, before+1, source.calls.Load(), "the evicted key must be refetched")
	})

	t.Run("Miss with no fallback", func(t *testing.T) {
		tier, err := cache.NewLRU[string, int](4, nil)
		require.NoError(t, err)

		_, err = tier.Fetch(ctx, "absent")

		assert.ErrorIs(t, err, cache.ErrNotFound)
	})

	t.Run("Invalidate removes a single key", func(t *testing.T) {
		source := &mockSource[string, int]{
			FetchFunc: func(ctx context.Context, key string) (int, error) {
				return 1, nil
			},
		}
		tier, err := cache.NewLRU[string, int](4, source)
		require.NoError(t, err)
		_, err = tier.Fetch(ctx, "k")
		require.NoError(t, err)

		require.NoError(t, tier.Invalidate(ctx, "k"))

		assert.Equal(t, 0, tier.Len())
	})
}
