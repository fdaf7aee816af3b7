package swr_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/digital-persona/go-clientcore/pkg/swr"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced clock so staleness and sweeps are
// deterministic in tests.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) NewTicker(_ time.Duration) swr.Ticker {
	t := &fakeTicker{ch: make(chan time.Time, 1)}
	c.mu.Lock()
	c.tickers = append(c.tickers, t)
	c.mu.Unlock()
	return t
}

// Tick fires every ticker handed out so far.
func (c *fakeClock) Tick() {
	c.mu.Lock()
	tickers := append([]*fakeTicker(nil), c.tickers...)
	now := c.now
	c.mu.Unlock()
	for _, t := range tickers {
		t.fire(now)
	}
}

type fakeTicker struct {
	ch      chan time.Time
	stopped atomic.Bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }
func (t *fakeTicker) Stop()               { t.stopped.Store(true) }

func (t *fakeTicker) fire(now time.Time) {
	if t.stopped.Load() {
		return
	}
	select {
	case t.ch <- now:
	default:
	}
}

// countingFetcher returns a fixed value and counts invocations.
func countingFetcher[V any](value V, count *atomic.Int32) swr.Fetcher[V] {
	return func(ctx context.Context) (V, error) {
		count.Add(1)
		return value, nil
	}
}

func waitForData[V any](t *testing.T, h *swr.Handle[V]) swr.Result[V] {
	t.Helper()
	require.Eventually(t, func() bool {
		r := h.Result()
		return r.HasData && !r.IsLoading && !r.IsValidating
	}, 2*time.Second, 2*time.Millisecond, "fetch should settle")
	return h.Result()
}

func TestStore_Register(t *testing.T) {
	ctx := context.Background()

	t.Run("First registration loads then serves data", func(t *testing.T) {
		// Arrange
		clock := newFakeClock()
		store := swr.NewStoreWithClock[string](zerolog.Nop(), clock)
		var fetches atomic.Int32

		// Act
		h := store.Register(ctx, "persona:1", countingFetcher("ada", &fetches), nil, nil)
		defer h.Close()

		// Assert: the first load is visible as IsLoading, not as stale data.
		first := h.Result()
		assert.False(t, first.HasData)
		assert.True(t, first.IsLoading)

		got := waitForData(t, h)
		assert.Equal(t, "ada", got.Data)
		assert.Equal(t, int32(1), fetches.Load())
	})

	t.Run("Fresh entry is served with zero fetches", func(t *testing.T) {
		// Arrange
		clock := newFakeClock()
		store := swr.NewStoreWithClock[string](zerolog.Nop(), clock)
		var fetches atomic.Int32
		h1 := store.Register(ctx, "persona:1", countingFetcher("ada", &fetches), nil, nil)
		defer h1.Close()
		waitForData(t, h1)

		// Act: a second registration against the same, still-fresh key.
		h2 := store.Register(ctx, "persona:1", countingFetcher("ada", &fetches), nil, nil)
		defer h2.Close()

		// Assert: served synchronously, no additional fetch.
		got := h2.Result()
		assert.True(t, got.HasData)
		assert.Equal(t, "ada", got.Data)
		assert.False(t, got.IsLoading)
		assert.Equal(t, int32(1), fetches.Load())
	})

	t.Run("Stale entry revalidates in the background", func(t *testing.T) {
		// Arrange
		clock := newFakeClock()
		store := swr.NewStoreWithClock[string](zerolog.Nop(), clock)
		var fetches atomic.Int32
		release := make(chan struct{})
		fetcher := func(ctx context.Context) (string, error) {
			if fetches.Add(1) > 1 {
				<-release
			}
			return "ada", nil
		}
		h1 := store.Register(ctx, "persona:1", fetcher, nil, nil)
		defer h1.Close()
		waitForData(t, h1)

		// Act: age the entry past its stale time, then re-register.
		clock.Advance(swr.DefaultStaleTime + time.Second)
		h2 := store.Register(ctx, "persona:1", fetcher, nil, nil)
		defer h2.Close()

		// Assert: previous data stays visible while the refetch is in
		// flight. The UI never sees a blank loading state here.
		require.Eventually(t, func() bool {
			return h2.Result().IsValidating
		}, 2*time.Second, 2*time.Millisecond)
		got := h2.Result()
		assert.True(t, got.HasData)
		assert.Equal(t, "ada", got.Data)
		assert.False(t, got.IsLoading)

		close(release)
		waitForData(t, h2)
		assert.Equal(t, int32(2), fetches.Load())
	})
}

func TestStore_FetchFailure(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := swr.NewStoreWithClock[string](zerolog.Nop(), clock)

	var failing atomic.Bool
	expectedErr := errors.New("persona service down")
	fetcher := func(ctx context.Context) (string, error) {
		if failing.Load() {
			return "", expectedErr
		}
		return "ada", nil
	}

	h := store.Register(ctx, "persona:1", fetcher, nil, nil)
	defer h.Close()
	waitForData(t, h)

	// Act: force a failing refetch.
	failing.Store(true)
	h.Refetch()

	// Assert: cached data survives the failure and the error is surfaced.
	require.Eventually(t, func() bool {
		return h.Result().Err != nil
	}, 2*time.Second, 2*time.Millisecond)
	got := h.Result()
	assert.True(t, got.HasData)
	assert.Equal(t, "ada", got.Data)
	assert.ErrorIs(t, got.Err, expectedErr)
}

func TestStore_Mutate(t *testing.T) {
	ctx := context.Background()

	t.Run("Mutate overwrites synchronously and notifies first", func(t *testing.T) {
		// Arrange
		clock := newFakeClock()
		store := swr.NewStoreWithClock[int](zerolog.Nop(), clock)
		var notified atomic.Int32
		h := store.Register(ctx, "count", countingFetcher(1, new(atomic.Int32)), nil, func() {
			notified.Add(1)
		})
		defer h.Close()
		waitForData(t, h)
		before := notified.Load()

		// Act
		h.Mutate(42)

		// Assert: data and notification are both visible on return.
		assert.Equal(t, 42, h.Result().Data)
		assert.Greater(t, notified.Load(), before)
	})

	t.Run("MutateFunc applies an updater over the previous value", func(t *testing.T) {
		clock := newFakeClock()
		store := swr.NewStoreWithClock[int](zerolog.Nop(), clock)
		h := store.Register(ctx, "count", countingFetcher(10, new(atomic.Int32)), nil, nil)
		defer h.Close()
		waitForData(t, h)

		h.MutateFunc(func(prev int, hasPrev bool) int {
			require.True(t, hasPrev)
			return prev + 1
		})

		assert.Equal(t, 11, h.Result().Data)
	})
}

func TestStore_Sweep(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := swr.NewStoreWithClock[string](zerolog.Nop(), clock)
	var fetches atomic.Int32

	h := store.Register(ctx, "persona:1", countingFetcher("ada", &fetches), nil, nil)
	defer h.Close()
	waitForData(t, h)

	// Act: advance past the cache time and sweep. The subscriber is still
	// registered; the sweep evicts anyway.
	clock.Advance(swr.DefaultCacheTime + time.Second)
	store.Sweep()

	// Assert: the entry is gone and the next registration refetches.
	assert.False(t, store.Snapshot("persona:1").HasData)
	h2 := store.Register(ctx, "persona:1", countingFetcher("ada", &fetches), nil, nil)
	defer h2.Close()
	waitForData(t, h2)
	assert.Equal(t, int32(2), fetches.Load())
}

func TestStore_FocusRevalidation(t *testing.T) {
	ctx := context.Background()

	t.Run("Invalidate defers the refetch to the next trigger", func(t *testing.T) {
		// Arrange: a registered entry that has already loaded once.
		clock := newFakeClock()
		store := swr.NewStoreWithClock[map[string]string](zerolog.Nop(), clock)
		var fetches atomic.Int32
		h := store.Register(ctx, "persona:42", countingFetcher(map[string]string{"name": "Ada"}, &fetches), nil, nil)
		defer h.Close()
		waitForData(t, h)

		// Act 1: invalidate marks stale without fetching or clearing.
		h.Invalidate()

		// Assert 1
		got := h.Result()
		assert.Equal(t, "Ada", got.Data["name"])
		assert.Equal(t, int32(1), fetches.Load(), "invalidate alone must not refetch")

		// Act 2: a focus event triggers exactly one revalidation.
		store.NotifyFocus(ctx)

		// Assert 2
		require.Eventually(t, func() bool {
			return fetches.Load() == 2
		}, 2*time.Second, 2*time.Millisecond)
		waitForData(t, h)
		assert.Equal(t, int32(2), fetches.Load())
	})

	t.Run("Focus on a fresh entry issues no fetch", func(t *testing.T) {
		clock := newFakeClock()
		store := swr.NewStoreWithClock[string](zerolog.Nop(), clock)
		var fetches atomic.Int32
		h := store.Register(ctx, "persona:1", countingFetcher("ada", &fetches), nil, nil)
		defer h.Close()
		waitForData(t, h)

		store.NotifyFocus(ctx)

		assert.Equal(t, int32(1), fetches.Load())
	})

	t.Run("Focus refetch can be opted out", func(t *testing.T) {
		clock := newFakeClock()
		store := swr.NewStoreWithClock[string](zerolog.Nop(), clock)
		var fetches atomic.Int32
		opts := swr.DefaultOptions()
		opts.RefetchOnFocus = false
		h := store.Register(ctx, "persona:1", countingFetcher("ada", &fetches), &opts, nil)
		defer h.Close()
		waitForData(t, h)

		h.Invalidate()
		store.NotifyFocus(ctx)

		assert.Equal(t, int32(1), fetches.Load())
	})
}

func TestStore_IntervalRevalidation(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := swr.NewStoreWithClock[string](zerolog.Nop(), clock)
	var fetches atomic.Int32

	opts := swr.DefaultOptions()
	opts.RefetchInterval = time.Minute
	h := store.Register(ctx, "persona:1", countingFetcher("ada", &fetches), &opts, nil)
	defer h.Close()
	waitForData(t, h)

	// A tick while fresh is a no-op.
	clock.Tick()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), fetches.Load())

	// A tick once stale revalidates.
	clock.Advance(swr.DefaultStaleTime + time.Second)
	require.Eventually(t, func() bool {
		clock.Tick()
		return fetches.Load() == 2
	}, 2*time.Second, 5*time.Millisecond)
}

func TestStore_SubscriberCallbackMayReenter(t *testing.T) {
	// A subscriber callback that calls back into the store must not
	// deadlock; callbacks run outside the store's lock.
	ctx := context.Background()
	clock := newFakeClock()
	store := swr.NewStoreWithClock[string](zerolog.Nop(), clock)

	var h *swr.Handle[string]
	h = store.Register(ctx, "persona:1", countingFetcher("ada", new(atomic.Int32)), nil, func() {
		if h != nil {
			_ = h.Result()
		}
	})
	defer h.Close()

	waitForData(t, h)
	h.Mutate("lovelace")
	assert.Equal(t, "lovelace", h.Result().Data)
}
