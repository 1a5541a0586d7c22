package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/datamed/datamed-api/internal/domain/ratelimit"
	"github.com/datamed/datamed-api/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimitStore_SlidingWindow(t *testing.T) {
	client, _ := testutil.SetupTestRedis(t)
	store := NewRateLimitStore(client)
	ctx := context.Background()
	p := ratelimit.Policy{MaxRequests: 5, Window: 300 * time.Second}
	t0 := testutil.TestTime()

	for i := range 5 {
		d, err := store.Take(ctx, "10.0.0.1", t0.Add(time.Duration(i)*time.Second), p)
		require.NoError(t, err)
		assert.True(t, d.Allowed, "attempt %d", i+1)
		assert.Equal(t, i+1, d.Count)
	}

	d, err := store.Take(ctx, "10.0.0.1", t0.Add(10*time.Second), p)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 5, d.Count)
	assert.Equal(t, 290*time.Second, d.RetryAfter)

	// Another client is unaffected.
	d, err = store.Take(ctx, "10.0.0.2", t0.Add(10*time.Second), p)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	// The first entry leaves the window exactly at t0+300s.
	d, err = store.Take(ctx, "10.0.0.1", t0.Add(300*time.Second), p)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 5, d.Count)
}

func TestRateLimitStore_RejectedAttemptsNotRecorded(t *testing.T) {
	client, _ := testutil.SetupTestRedis(t)
	store := NewRateLimitStore(client)
	ctx := context.Background()
	p := ratelimit.Policy{MaxRequests: 2, Window: time.Minute}
	t0 := testutil.TestTime()

	for range 2 {
		_, err := store.Take(ctx, "k", t0, p)
		require.NoError(t, err)
	}
	for i := range 10 {
		d, err := store.Take(ctx, "k", t0.Add(time.Duration(i+1)*time.Second), p)
		require.NoError(t, err)
		assert.False(t, d.Allowed)
		assert.Equal(t, 2, d.Count)
	}

	d, err := store.Take(ctx, "k", t0.Add(time.Minute), p)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Count)
}

func TestRateLimitStore_KeyExpires(t *testing.T) {
	client, mr := testutil.SetupTestRedis(t)
	store := NewRateLimitStoreWithPrefix(client, "test:")
	ctx := context.Background()
	p := ratelimit.Policy{MaxRequests: 1, Window: time.Minute}

	_, err := store.Take(ctx, "k", time.Now(), p)
	require.NoError(t, err)
	assert.True(t, mr.Exists("test:k"))
	assert.Equal(t, time.Minute, mr.TTL("test:k"))

	mr.FastForward(time.Minute + time.Second)
	assert.False(t, mr.Exists("test:k"))
}

func TestRateLimitStore_Concurrent(t *testing.T) {
	client, _ := testutil.SetupTestRedis(t)
	store := NewRateLimitStore(client)
	ctx := context.Background()
	p := ratelimit.Policy{MaxRequests: 10, Window: time.Minute}
	now := testutil.TestTime()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := store.Take(ctx, "shared", now, p)
			if !assert.NoError(t, err) {
				return
			}
			if d.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 10, allowed)
}

func TestRateLimitStore_Errors(t *testing.T) {
	client, mr := testutil.SetupTestRedis(t)
	store := NewRateLimitStore(client)
	ctx := context.Background()

	_, err := store.Take(ctx, "", time.Now(), ratelimit.Policy{MaxRequests: 1, Window: time.Second})
	assert.Error(t, err)

	_, err = store.Take(ctx, "k", time.Now(), ratelimit.Policy{})
	assert.ErrorIs(t, err, ratelimit.ErrInvalidPolicy)

	mr.Close()
	_, err = store.Take(ctx, "k", time.Now(), ratelimit.Policy{MaxRequests: 1, Window: time.Second})
	assert.Error(t, err)
}

func TestRateLimitStore_Reset(t *testing.T) {
	client, mr := testutil.SetupTestRedis(t)
	store := NewRateLimitStore(client)
	ctx := context.Background()
	p := ratelimit.Policy{MaxRequests: 1, Window: time.Minute}

	_, err := store.Take(ctx, "k", time.Now(), p)
	require.NoError(t, err)
	require.NoError(t, store.Reset(ctx, "k"))
	assert.False(t, mr.Exists(DefaultKeyPrefix+"k"))
	require.NoError(t, store.Reset(ctx, ""))
}
