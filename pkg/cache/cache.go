// Package cache provides generic fetch-through caching tiers for the
// platform's read paths. A tier answers from its own store on a hit and pulls
// from an optional fallback Source on a miss, so tiers compose into chains
// such as LRU -> Redis -> Firestore.
package cache

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned by Fetch when a key is absent and no fallback can
// supply it.
var ErrNotFound = errors.New("cache: key not found")

// Source fetches values by key. Both caching tiers and sources of truth
// implement it, which is what lets tiers chain.
type Source[K comparable, V any] interface {
	// Fetch retrieves the value for a key; a miss is ErrNotFound.
	Fetch(ctx context.Context, key K) (V, error)
	io.Closer
}

// Invalidating is implemented by tiers that support removing a single key.
type Invalidating[K comparable, V any] interface {
	Source[K, V]
	// Invalidate drops a key from this tier only; fallbacks are not
	// touched.
	Invalidate(ctx context.Context, key K) error
}
