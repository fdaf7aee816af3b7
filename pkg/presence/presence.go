// Package presence manages ephemeral realtime state such as who is online
// and which personas are live. Presence has no persistent source of truth to
// fall back on, so the contract requires explicit Set and Delete.
package presence

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned by Fetch when no value exists for a key.
var ErrNotFound = errors.New("presence: key not found")

// Cache is the contract for a presence store.
type Cache[K comparable, V any] interface {
	// Set stores a value for a key, overwriting any previous value.
	Set(ctx context.Context, key K, value V) error
	// Fetch retrieves a value; a miss is ErrNotFound.
	Fetch(ctx context.Context, key K) (V, error)
	// Delete removes a key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key K) error
	// Closer releases any network resources the implementation holds.
	io.Closer
}
