package cache

import (
	"context"
	"fmt"
	"sync"
)

// Memory is an unbounded, thread-safe in-process tier. On a miss it pulls
// from its fallback Source, stores the result and returns it.
type Memory[K comparable, V any] struct {
	fallback Source[K, V]

	mu   sync.RWMutex
	data map[K]V
}

// NewMemory creates an in-memory tier. fallback may be nil, in which case a
// miss is ErrNotFound.
func NewMemory[K comparable, V any](fallback Source[K, V]) *Memory[K, V] {
	return &Memory[K, V]{
		fallback: fallback,
		data:     make(map[K]V),
	}
}

// Fetch returns the cached value or pulls it from the fallback.
func (m *Memory[K, V]) Fetch(ctx context.Context, key K) (V, error) {
	m.mu.RLock()
	value, ok := m.data[key]
	m.mu.RUnlock()
	if ok {
		return value, nil
	}

	var zero V
	if m.fallback == nil {
		return zero, fmt.Errorf("key '%v': %w", key, ErrNotFound)
	}

	value, err := m.fallback.Fetch(ctx, key)
	if err != nil {
		return zero, err
	}

	m.mu.Lock()
	m.data[key] = value
	m.mu.Unlock()
	return value, nil
}

// Invalidate drops a key from this tier.
func (m *Memory[K, V]) Invalidate(_ context.Context, key K) error {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	return nil
}

// Close closes the fallback, if any.
func (m *Memory[K, V]) Close() error {
	if m.fallback != nil {
		return m.fallback.Close()
	}
	return nil
}
