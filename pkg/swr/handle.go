package swr

import (
	"context"
	"sync"
)

// Handle is one registration against a Store key. It is the UI-facing side
// of the cache: snapshots, mutation, invalidation and forced refetch all go
// through the handle, and closing it removes the subscription.
type Handle[V any] struct {
	store   *Store[V]
	key     string
	ctx     context.Context
	fetcher Fetcher[V]
	opts    Options
	subID   string

	intervalStop chan struct{}
	closeOnce    sync.Once
}

// Key returns the cache key this handle is registered for.
func (h *Handle[V]) Key() string {
	return h.key
}

// Result returns the current snapshot for the handle's key.
func (h *Handle[V]) Result() Result[V] {
	return h.store.Snapshot(h.key)
}

// Mutate synchronously overwrites the cached value without a network round
// trip and notifies all subscribers before returning.
func (h *Handle[V]) Mutate(value V) {
	h.store.mutate(h, func(V, bool) V { return value })
}

// MutateFunc applies a pure updater to the previous cached value. hasPrev is
// false when the key has never been written.
func (h *Handle[V]) MutateFunc(apply func(prev V, hasPrev bool) V) {
	h.store.mutate(h, apply)
}

// Refetch forces a fetch regardless of freshness. It is the no-argument form
// of mutate: revalidate from the source, ignoring stale time.
func (h *Handle[V]) Refetch() {
	h.store.startFetch(h.ctx, h)
}

// Invalidate marks the entry stale without removing it and without an
// immediate fetch or notification; the next trigger revalidates.
func (h *Handle[V]) Invalidate() {
	h.store.invalidate(h.key)
}

// Close unregisters the handle and stops its interval timer, if any. The
// cache entry itself is left in place for other subscribers and the janitor.
func (h *Handle[V]) Close() {
	h.closeOnce.Do(func() {
		if h.intervalStop != nil {
			close(h.intervalStop)
		}
		h.store.unregister(h.key, h.subID)
	})
}

// intervalLoop revalidates on a fixed timer. Like every other trigger it
// checks staleness first, so a fresh entry never causes a redundant fetch.
func (h *Handle[V]) intervalLoop() {
	ticker := h.store.clock.NewTicker(h.opts.RefetchInterval)
	defer ticker.Stop()
	for {
		select {
		case <-h.ctx.Done():
			return
		case <-h.intervalStop:
			return
		case <-ticker.C():
			h.store.mu.Lock()
			due := h.store.needsRevalidationLocked(h.key, h.opts.StaleTime)
			h.store.mu.Unlock()
			if due {
				h.store.startFetch(h.ctx, h)
			}
		}
	}
}
