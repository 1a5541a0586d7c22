package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(t *testing.T, p Policy) (*Limiter, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	l, err := NewLimiter(NewMemoryStore(), p, WithClock(clock.Now))
	require.NoError(t, err)
	return l, clock
}

func TestPolicy_Validate(t *testing.T) {
	assert.NoError(t, Policy{MaxRequests: 1, Window: time.Second}.Validate())
	assert.ErrorIs(t, Policy{MaxRequests: 0, Window: time.Second}.Validate(), ErrInvalidPolicy)
	assert.ErrorIs(t, Policy{MaxRequests: 5}.Validate(), ErrInvalidPolicy)

	_, err := NewLimiter(NewMemoryStore(), Policy{})
	assert.ErrorIs(t, err, ErrInvalidPolicy)
	_, err = NewLimiter(nil, Policy{MaxRequests: 1, Window: time.Second})
	assert.Error(t, err)
}

func TestLimiter_SlidingWindow(t *testing.T) {
	ctx := context.Background()
	l, clock := newTestLimiter(t, Policy{MaxRequests: 3, Window: 60 * time.Second})

	for i := 1; i <= 3; i++ {
		d, err := l.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, d.Allowed, "attempt %d", i)
		assert.Equal(t, i, d.Count)
		clock.Advance(10 * time.Second)
	}

	// Fourth attempt at t=30s is refused; the oldest entry (t=0) leaves at t=60s.
	d, err := l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 3, d.Count)
	assert.Equal(t, 30*time.Second, d.RetryAfter)

	// Other keys are independent.
	d, err = l.Allow(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	// At exactly t=60s the first entry has aged a full window and is pruned.
	clock.Advance(30 * time.Second)
	d, err = l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 3, d.Count)
}

func TestLimiter_RejectedAttemptsAreNotRecorded(t *testing.T) {
	ctx := context.Background()
	l, clock := newTestLimiter(t, Policy{MaxRequests: 1, Window: 10 * time.Second})

	d, err := l.Allow(ctx, "k")
	require.NoError(t, err)
	require.True(t, d.Allowed)

	// Hammering during the window must not extend the block.
	for range 5 {
		clock.Advance(time.Second)
		d, err = l.Allow(ctx, "k")
		require.NoError(t, err)
		assert.False(t, d.Allowed)
		assert.Equal(t, 1, d.Count)
	}

	clock.Advance(5 * time.Second)
	d, err = l.Allow(ctx, "k")
	require.NoError(t, err)
	assert.True(t, d.Allowed, "block must end one window after the only recorded attempt")
}

func TestLimiter_ConcurrentCallersNeverExceedMax(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLimiter(t, Policy{MaxRequests: 10, Window: time.Minute})

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := l.Allow(ctx, "shared")
			if err != nil || !d.Allowed {
				return
			}
			mu.Lock()
			allowed++
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 10, allowed)
}

type failingStore struct{}

func (failingStore) Take(context.Context, string, time.Time, Policy) (Decision, error) {
	return Decision{}, errors.New("redis down")
}

func TestLimiter_StoreError(t *testing.T) {
	l, err := NewLimiter(failingStore{}, Policy{MaxRequests: 1, Window: time.Second})
	require.NoError(t, err)

	_, err = l.Allow(context.Background(), "k")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis down")
}

func TestMemoryStore_SweepsIdleKeys(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	p := Policy{MaxRequests: 5, Window: time.Second}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := s.Take(ctx, "idle", start, p)
	require.NoError(t, err)

	later := start.Add(time.Hour)
	for i := range sweepEvery {
		_, err = s.Take(ctx, "busy", later.Add(time.Duration(i)*time.Millisecond), Policy{MaxRequests: sweepEvery + 1, Window: time.Second})
		require.NoError(t, err)
	}
	assert.Equal(t, 1, s.Len())
}
