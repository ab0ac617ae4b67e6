// Package cache holds single-value caches for expensive upstream loads.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"
)

// Fetcher loads the value a Slot caches.
type Fetcher[T any] func(ctx context.Context) (T, error)

// LookupObserver is told whether each lookup was served from the slot.
type LookupObserver func(hit bool)

// Slot caches one value for a fixed TTL. A TTL of zero keeps the value
// forever. Concurrent misses share a single fetch, and a failed fetch never
// replaces the stored value.
type Slot[T any] struct {
	fetch    Fetcher[T]
	ttl      time.Duration
	clock    clockwork.Clock
	observe  LookupObserver
	inflight singleflight.Group

	mu       sync.RWMutex
	value    T
	storedAt time.Time
	filled   bool
}

// NewSlot creates an empty slot. A ttl of zero never expires. observe may be nil.
func NewSlot[T any](fetch Fetcher[T], ttl time.Duration, clock clockwork.Clock, observe LookupObserver) *Slot[T] {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Slot[T]{fetch: fetch, ttl: ttl, clock: clock, observe: observe}
}

// Get returns the cached value while it is fresh and fetches otherwise. If
// ctx ends while a fetch is in flight, Get returns ctx.Err() and the fetch
// carries on to fill the slot for later callers.
func (s *Slot[T]) Get(ctx context.Context) (T, error) {
	if v, ok := s.fresh(); ok {
		s.record(true)
		return v, nil
	}
	return s.load(ctx)
}

// fill is the shared result of one singleflight call.
type fill[T any] struct {
	value  T
	cached bool
}

// load fills the slot through the singleflight group. The lookup counts as a
// hit when another caller filled the slot in the meantime.
func (s *Slot[T]) load(ctx context.Context) (T, error) {
	ch := s.inflight.DoChan("slot", func() (any, error) {
		if v, ok := s.fresh(); ok {
			return fill[T]{value: v, cached: true}, nil
		}
		v, err := s.fetch(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		s.store(v)
		return fill[T]{value: v}, nil
	})

	var zero T
	select {
	case <-ctx.Done():
		s.record(false)
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			s.record(false)
			return zero, res.Err
		}
		f := res.Val.(fill[T])
		s.record(f.cached)
		return f.value, nil
	}
}

// Peek returns the stored value and when it was stored, regardless of age.
func (s *Slot[T]) Peek() (T, time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value, s.storedAt, s.filled
}

// Invalidate drops the stored value so the next Get fetches.
func (s *Slot[T]) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	var zero T
	s.value, s.storedAt, s.filled = zero, time.Time{}, false
}

func (s *Slot[T]) fresh() (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.filled {
		var zero T
		return zero, false
	}
	if s.ttl > 0 && s.clock.Since(s.storedAt) >= s.ttl {
		var zero T
		return zero, false
	}
	return s.value, true
}

func (s *Slot[T]) store(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value, s.storedAt, s.filled = v, s.clock.Now(), true
}

func (s *Slot[T]) record(hit bool) {
	if s.observe != nil {
		s.observe(hit)
	}
}
