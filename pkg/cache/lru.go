package cache

import (
	"container/list"
	"context"
	"fmt"
	"sync"
)

type lruItem[K comparable, V any] struct {
	key   K
	value V
}

// LRU is a bounded in-process tier with least-recently-used eviction. On a
// miss it pulls from its fallback Source.
type LRU[K comparable, V any] struct {
	maxSize  int
	fallback Source[K, V]

	mu    sync.Mutex
	order *list.List
	items map[K]*list.Element
}

// NewLRU creates a bounded tier holding at most maxSize entries. fallback may
// be nil.
func NewLRU[K comparable, V any](maxSize int, fallback Source[K, V]) (*LRU[K, V], error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("maxSize must be greater than 0")
	}
	return &LRU[K, V]{
		maxSize:  maxSize,
		fallback: fallback,
		order:    list.New(),
		items:    make(map[K]*list.Element),
	}, nil
}

// Fetch returns the cached value, marking it most recently used, or pulls
// from the fallback and stores the result, evicting the oldest entry when
// over capacity.
func (c *LRU[K, V]) Fetch(ctx context.Context, key K) (V, error) {
	c.mu.Lock()
	if elem, ok := c.items[key]; ok {
		c.order.MoveToFront(elem)
		c.mu.Unlock()
		return elem.Value.(*lruItem[K, V]).value, nil
	}
	c.mu.Unlock()

	var zero V
	if c.fallback == nil {
		return zero, fmt.Errorf("key '%v': %w", key, ErrNotFound)
	}

	value, err := c.fallback.Fetch(ctx, key)
	if err != nil {
		return zero, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Another goroutine may have filled the key while we fetched.
	if elem, ok := c.items[key]; ok {
		c.order.MoveToFront(elem)
		return elem.Value.(*lruItem[K, V]).value, nil
	}

	c.items[key] = c.order.PushFront(&lruItem[K, V]{key: key, value: value})
	if c.order.Len() > c.maxSize {
		c.evictOldestLocked()
	}
	return value, nil
}

// Invalidate drops a key from this tier.
func (c *LRU[K, V]) Invalidate(_ context.Context, key K) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[key]; ok {
		c.order.Remove(elem)
		delete(c.items, key)
	}
	return nil
}

// Len reports how many entries the tier currently holds.
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *LRU[K, V]) evictOldestLocked() {
	oldest := c.order.Back()
	if oldest == nil {
		return
	}
	item := c.order.Remove(oldest).(*lruItem[K, V])
	delete(c.items, item.key)
}

// Close closes the fallback, if any.
func (c *LRU[K, V]) Close() error {
	if c.fallback != nil {
		return c.fallback.Close()
	}
	return nil
}
