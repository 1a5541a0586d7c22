// Package ratelimit implements a per-key sliding-log request limiter.
//
// Each key owns a log of attempt timestamps. On every attempt the log is
// pruned of entries at least one window old; if what remains has reached the
// policy maximum the attempt is refused and NOT recorded, otherwise it is
// recorded and allowed.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidPolicy indicates a policy with a non-positive limit or window.
var ErrInvalidPolicy = errors.New("rate limit policy requires positive max requests and window")

// Policy bounds the number of attempts a key may make within a sliding window.
type Policy struct {
	MaxRequests int
	Window      time.Duration
}

// Validate reports whether the policy is usable.
func (p Policy) Validate() error {
	if p.MaxRequests <= 0 || p.Window <= 0 {
		return fmt.Errorf("%w: max=%d window=%s", ErrInvalidPolicy, p.MaxRequests, p.Window)
	}
	return nil
}

// Decision is the outcome of a single attempt.
type Decision struct {
	Allowed bool
	// Count is the number of entries in the window after the attempt was handled.
	Count int
	// RetryAfter is how long until the oldest entry leaves the window; zero when allowed.
	RetryAfter time.Duration
}

// Store holds the sliding logs. Take must prune, check and record atomically
// for a given key.
type Store interface {
	Take(ctx context.Context, key string, now time.Time, p Policy) (Decision, error)
}

// Limiter applies a Policy to keys using a Store.
type Limiter struct {
	store  Store
	policy Policy
	now    func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the limiter's time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// NewLimiter constructs a Limiter. The policy must be valid.
func NewLimiter(store Store, policy Policy, opts ...Option) (*Limiter, error) {
	if store == nil {
		return nil, errors.New("rate limit store is required")
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	l := &Limiter{store: store, policy: policy, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Policy returns the limiter's policy.
func (l *Limiter) Policy() Policy { return l.policy }

// Allow records an attempt for key if the key is within budget.
func (l *Limiter) Allow(ctx context.Context, key string) (Decision, error) {
	d, err := l.store.Take(ctx, key, l.now(), l.policy)
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit take %q: %w", key, err)
	}
	return d, nil
}
