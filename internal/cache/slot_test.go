package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingFetcher struct {
	calls atomic.Int32
	err   error
}

func (f *countingFetcher) fetch(context.Context) (int, error) {
	n := f.calls.Add(1)
	if f.err != nil {
		return 0, f.err
	}
	return int(n), nil
}

func TestSlot_ServesFreshValue(t *testing.T) {
	clock := clockwork.NewFakeClock()
	f := &countingFetcher{}
	s := NewSlot(f.fetch, time.Hour, clock, nil)

	v, err := s.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	clock.Advance(59 * time.Minute)
	v, err = s.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestSlot_RefetchesAfterTTL(t *testing.T) {
	clock := clockwork.NewFakeClock()
	f := &countingFetcher{}
	s := NewSlot(f.fetch, time.Hour, clock, nil)

	_, err := s.Get(context.Background())
	require.NoError(t, err)

	clock.Advance(time.Hour)
	v, err := s.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestSlot_ZeroTTLNeverExpires(t *testing.T) {
	clock := clockwork.NewFakeClock()
	f := &countingFetcher{}
	s := NewSlot(f.fetch, 0, clock, nil)

	_, err := s.Get(context.Background())
	require.NoError(t, err)
	clock.Advance(24 * 365 * time.Hour)
	_, err = s.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestSlot_FailedFetchIsNotCached(t *testing.T) {
	clock := clockwork.NewFakeClock()
	f := &countingFetcher{}
	s := NewSlot(f.fetch, time.Hour, clock, nil)

	_, err := s.Get(context.Background())
	require.NoError(t, err)
	clock.Advance(2 * time.Hour)

	f.err = errors.New("upstream down")
	_, err = s.Get(context.Background())
	require.ErrorIs(t, err, f.err)

	// The stale value survives the failed refresh.
	v, storedAt, ok := s.Peek()
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, clock.Now().Add(-2*time.Hour), storedAt)

	f.err = nil
	v, err = s.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, v)
}

func TestSlot_ConcurrentMissesShareOneFetch(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	s := NewSlot(func(context.Context) (string, error) {
		calls.Add(1)
		<-release
		return "cases", nil
	}, time.Hour, clockwork.NewFakeClock(), nil)

	const callers = 8
	var wg sync.WaitGroup
	results := make([]string, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := s.Get(context.Background())
			assert.NoError(t, err)
			results[i] = v
		}()
	}

	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, r := range results {
		assert.Equal(t, "cases", r)
	}
}

func TestSlot_CancelledCallerLeavesFetchRunning(t *testing.T) {
	release := make(chan struct{})
	s := NewSlot(func(context.Context) (int, error) {
		<-release
		return 7, nil
	}, time.Hour, clockwork.NewFakeClock(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Get(ctx)
	require.ErrorIs(t, err, context.Canceled)

	close(release)
	assert.Eventually(t, func() bool {
		_, _, ok := s.Peek()
		return ok
	}, time.Second, time.Millisecond)
}

func TestSlot_ObserverAndInvalidate(t *testing.T) {
	var hits, misses int
	f := &countingFetcher{}
	s := NewSlot(f.fetch, 0, clockwork.NewFakeClock(), func(hit bool) {
		if hit {
			hits++
		} else {
			misses++
		}
	})

	_, _ = s.Get(context.Background())
	_, _ = s.Get(context.Background())
	s.Invalidate()
	_, _, ok := s.Peek()
	assert.False(t, ok)
	_, _ = s.Get(context.Background())

	assert.Equal(t, 1, hits)
	assert.Equal(t, 2, misses)
	assert.Equal(t, int32(2), f.calls.Load())
}

func TestSlot_FilledWhileWaitingCountsAsHit(t *testing.T) {
	var hits, misses int
	f := &countingFetcher{}
	s := NewSlot(f.fetch, time.Hour, clockwork.NewFakeClock(), func(hit bool) {
		if hit {
			hits++
		} else {
			misses++
		}
	})

	// Another caller stores a value after this one saw an empty slot.
	s.store(42)
	v, err := s.load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 42, v)
	assert.Zero(t, f.calls.Load())
	assert.Equal(t, 1, hits)
	assert.Zero(t, misses)
}
