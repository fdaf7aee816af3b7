package presence

import (
	"context"
	"fmt"
	"sync"
)

// Memory is a thread-safe, in-process presence cache. Suitable for tests,
// local development and single-instance deployments.
type Memory[K comparable, V any] struct {
	mu   sync.RWMutex
	data map[K]V
}

// NewMemory creates an in-memory presence cache.
func NewMemory[K comparable, V any]() *Memory[K, V] {
	return &Memory[K, V]{data: make(map[K]V)}
}

// Set stores a value for a key.
func (m *Memory[K, V]) Set(_ context.Context, key K, value V) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

// Fetch retrieves a value by key.
func (m *Memory[K, V]) Fetch(_ context.Context, key K) (V, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.data[key]
	if !ok {
		var zero V
		return zero, fmt.Errorf("presence key '%v': %w", key, ErrNotFound)
	}
	return value, nil
}

// Delete removes a key.
func (m *Memory[K, V]) Delete(_ context.Context, key K) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Len reports how many keys are currently present.
func (m *Memory[K, V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

// Close is a no-op for the in-memory implementation.
func (m *Memory[K, V]) Close() error {
	return nil
}
