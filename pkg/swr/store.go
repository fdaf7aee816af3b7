// Package swr provides a process-wide, keyed stale-while-revalidate cache for
// asynchronously fetched values. Callers register a key and a fetcher and get
// back a handle whose snapshot never regresses to a blank loading state while
// stale data is available.
package swr

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// DefaultStaleTime is how long a written entry is served without
	// revalidation.
	DefaultStaleTime = 5 * time.Minute
	// DefaultCacheTime is how long an entry is retained after its last
	// write before the janitor may remove it.
	DefaultCacheTime = 10 * time.Minute
)

// Fetcher loads the value for one cache key from its source of truth.
type Fetcher[V any] func(ctx context.Context) (V, error)

// Options control freshness and revalidation for a single registration.
type Options struct {
	// StaleTime is the age past which an entry needs revalidation.
	StaleTime time.Duration
	// CacheTime is the age past which the janitor removes an entry.
	CacheTime time.Duration
	// RefetchOnFocus revalidates a stale entry when NotifyFocus is called.
	RefetchOnFocus bool
	// RefetchInterval revalidates on a fixed timer when > 0.
	RefetchInterval time.Duration
}

// DefaultOptions returns the options a registration gets when none are given.
func DefaultOptions() Options {
	return Options{
		StaleTime:      DefaultStaleTime,
		CacheTime:      DefaultCacheTime,
		RefetchOnFocus: true,
	}
}

func (o Options) normalized() Options {
	if o.StaleTime <= 0 {
		o.StaleTime = DefaultStaleTime
	}
	if o.CacheTime <= 0 {
		o.CacheTime = DefaultCacheTime
	}
	return o
}

// Result is a point-in-time snapshot of one key's cache state.
type Result[V any] struct {
	// Data is the cached value; meaningful only when HasData is true.
	Data V
	// HasData reports whether a successful fetch or mutation has ever
	// written this key.
	HasData bool
	// Err is the most recent fetch error, cleared on the next success.
	Err error
	// IsLoading is true while the first fetch for the key is in flight.
	IsLoading bool
	// IsValidating is true while a background revalidation is in flight
	// and previously cached data is still being served.
	IsValidating bool
}

// entry is the single cache record for a key. At most one exists per key.
type entry[V any] struct {
	data      V
	hasData   bool
	err       error
	updatedAt time.Time
	stale     bool
	inflight  int

	// Freshness config captured from the registration that last wrote
	// the entry.
	staleTime time.Duration
	cacheTime time.Duration
}

type subscription[V any] struct {
	handle   *Handle[V]
	onChange func()
}

// Store is a keyed cache of fetch results with staleness tracking, manual
// invalidation and subscriber notification. One Store is intended to be
// shared process-wide per value type.
//
// The janitor sweep removes any entry whose age exceeds its cache time even
// when subscribers remain registered for the key; the next read then misses
// and refetches. That eviction-under-subscription behavior is deliberate.
type Store[V any] struct {
	clock  Clock
	logger zerolog.Logger

	mu      sync.Mutex
	entries map[string]*entry[V]
	subs    map[string]map[string]*subscription[V]

	janitorStop chan struct{}
	janitorOnce sync.Once
}

// NewStore creates a Store backed by the system clock.
func NewStore[V any](logger zerolog.Logger) *Store[V] {
	return NewStoreWithClock[V](logger, NewRealClock())
}

// NewStoreWithClock creates a Store with an injected clock, used by tests to
// control staleness deterministically.
func NewStoreWithClock[V any](logger zerolog.Logger, clock Clock) *Store[V] {
	return &Store[V]{
		clock:   clock,
		logger:  logger.With().Str("component", "SWRStore").Logger(),
		entries: make(map[string]*entry[V]),
		subs:    make(map[string]map[string]*subscription[V]),
	}
}

// Register subscribes to a key and triggers a fetch when the key is absent or
// stale. A fresh entry is served as-is with no fetch. onChange may be nil; it
// is invoked after every change to the key's state, always outside the
// store's lock, so a callback may safely call back into the store.
func (s *Store[V]) Register(ctx context.Context, key string, fetcher Fetcher[V], opts *Options, onChange func()) *Handle[V] {
	resolved := DefaultOptions()
	if opts != nil {
		resolved = opts.normalized()
	}

	h := &Handle[V]{
		store:   s,
		key:     key,
		ctx:     ctx,
		fetcher: fetcher,
		opts:    resolved,
		subID:   uuid.NewString(),
	}

	s.mu.Lock()
	if s.subs[key] == nil {
		s.subs[key] = make(map[string]*subscription[V])
	}
	s.subs[key][h.subID] = &subscription[V]{handle: h, onChange: onChange}
	needsFetch := s.needsRevalidationLocked(key, resolved.StaleTime)
	s.mu.Unlock()

	if needsFetch {
		s.startFetch(ctx, h)
	}
	if resolved.RefetchInterval > 0 {
		h.intervalStop = make(chan struct{})
		go h.intervalLoop()
	}
	return h
}

// NotifyFocus revalidates every registration that opted into focus refetches
// and whose entry is absent or stale. Fresh entries are never refetched.
func (s *Store[V]) NotifyFocus(ctx context.Context) {
	var due []*Handle[V]
	s.mu.Lock()
	for key, subs := range s.subs {
		for _, sub := range subs {
			if !sub.handle.opts.RefetchOnFocus {
				continue
			}
			if s.needsRevalidationLocked(key, sub.handle.opts.StaleTime) {
				due = append(due, sub.handle)
			}
		}
	}
	s.mu.Unlock()

	for _, h := range due {
		s.startFetch(ctx, h)
	}
}

// StartJanitor runs the periodic sweep until ctx is cancelled or the store's
// StopJanitor is called. Entries older than their cache time are removed.
func (s *Store[V]) StartJanitor(ctx context.Context, sweepInterval time.Duration) {
	if sweepInterval <= 0 {
		sweepInterval = DefaultCacheTime
	}
	s.janitorStop = make(chan struct{})
	ticker := s.clock.NewTicker(sweepInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.janitorStop:
				return
			case <-ticker.C():
				s.Sweep()
			}
		}
	}()
}

// StopJanitor halts a running janitor. Safe to call more than once.
func (s *Store[V]) StopJanitor() {
	if s.janitorStop == nil {
		return
	}
	s.janitorOnce.Do(func() { close(s.janitorStop) })
}

// Sweep removes every entry whose age exceeds its cache time, regardless of
// staleness or remaining subscribers. Exposed so tests can drive collection
// without a running janitor.
func (s *Store[V]) Sweep() {
	now := s.clock.Now()
	s.mu.Lock()
	for key, e := range s.entries {
		if e.inflight == 0 && now.Sub(e.updatedAt) > e.cacheTime {
			delete(s.entries, key)
			s.logger.Debug().Str("key", key).Msg("Janitor removed expired cache entry.")
		}
	}
	s.mu.Unlock()
}

// Snapshot returns the current state of a key without triggering a fetch.
func (s *Store[V]) Snapshot(key string) Result[V] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(key)
}

func (s *Store[V]) snapshotLocked(key string) Result[V] {
	e, ok := s.entries[key]
	if !ok {
		return Result[V]{}
	}
	return Result[V]{
		Data:         e.data,
		HasData:      e.hasData,
		Err:          e.err,
		IsLoading:    !e.hasData && e.inflight > 0,
		IsValidating: e.hasData && e.inflight > 0,
	}
}

// needsRevalidationLocked reports whether a key is absent, marked stale, or
// older than the given stale time.
func (s *Store[V]) needsRevalidationLocked(key string, staleTime time.Duration) bool {
	e, ok := s.entries[key]
	if !ok || !e.hasData {
		return true
	}
	if e.stale {
		return true
	}
	return s.clock.Now().Sub(e.updatedAt) >= staleTime
}

// ensureEntryLocked returns the single entry for a key, creating it if absent.
func (s *Store[V]) ensureEntryLocked(key string, opts Options) *entry[V] {
	e, ok := s.entries[key]
	if !ok {
		e = &entry[V]{staleTime: opts.StaleTime, cacheTime: opts.CacheTime}
		s.entries[key] = e
	}
	return e
}

// startFetch launches one fetch for the handle's key. Overlapping fetches for
// the same key are allowed; the last one to resolve wins.
func (s *Store[V]) startFetch(ctx context.Context, h *Handle[V]) {
	s.mu.Lock()
	e := s.ensureEntryLocked(h.key, h.opts)
	e.inflight++
	cbs := s.callbacksLocked(h.key)
	s.mu.Unlock()

	// Subscribers see IsLoading/IsValidating flip before the fetch lands.
	for _, cb := range cbs {
		cb()
	}

	go func() {
		value, err := h.fetcher(ctx)

		s.mu.Lock()
		e := s.ensureEntryLocked(h.key, h.opts)
		e.inflight--
		if e.inflight < 0 {
			e.inflight = 0
		}
		if err != nil {
			// Keep previously cached data visible; just mark it
			// stale and surface the error.
			e.err = err
			if e.hasData {
				e.stale = true
			}
			s.logger.Warn().Err(err).Str("key", h.key).Msg("Fetch failed; serving stale data if present.")
		} else {
			e.data = value
			e.hasData = true
			e.err = nil
			e.stale = false
			e.updatedAt = s.clock.Now()
			e.staleTime = h.opts.StaleTime
			e.cacheTime = h.opts.CacheTime
		}
		cbs := s.callbacksLocked(h.key)
		s.mu.Unlock()

		for _, cb := range cbs {
			cb()
		}
	}()
}

// mutate writes a value synchronously, refreshing the entry's timestamp and
// notifying subscribers before returning.
func (s *Store[V]) mutate(h *Handle[V], apply func(prev V, hasPrev bool) V) {
	s.mu.Lock()
	e := s.ensureEntryLocked(h.key, h.opts)
	e.data = apply(e.data, e.hasData)
	e.hasData = true
	e.err = nil
	e.stale = false
	e.updatedAt = s.clock.Now()
	e.staleTime = h.opts.StaleTime
	e.cacheTime = h.opts.CacheTime
	cbs := s.callbacksLocked(h.key)
	s.mu.Unlock()

	for _, cb := range cbs {
		cb()
	}
}

// invalidate marks a key stale without removing it or notifying subscribers.
// The next registration, focus or interval trigger performs the revalidation.
func (s *Store[V]) invalidate(key string) {
	s.mu.Lock()
	if e, ok := s.entries[key]; ok {
		e.stale = true
	}
	s.mu.Unlock()
}

func (s *Store[V]) unregister(key, subID string) {
	s.mu.Lock()
	if subs, ok := s.subs[key]; ok {
		delete(subs, subID)
		if len(subs) == 0 {
			// The subscription record goes; the cache entry stays
			// until the janitor collects it.
			delete(s.subs, key)
		}
	}
	s.mu.Unlock()
}

// callbacksLocked copies the subscriber callbacks for a key so they can be
// invoked outside the lock. A callback that triggers another fetch therefore
// never recurses into the notification pass that called it.
func (s *Store[V]) callbacksLocked(key string) []func() {
	subs, ok := s.subs[key]
	if !ok {
		return nil
	}
	cbs := make([]func(), 0, len(subs))
	for _, sub := range subs {
		if sub.onChange != nil {
			cbs = append(cbs, sub.onChange)
		}
	}
	return cbs
}
