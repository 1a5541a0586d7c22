package data

import (
	"sync"
	"time"
)

// TimeProvider supplies timestamps written by repositories.
type TimeProvider interface {
	Now() time.Time
}

// RealTimeProvider reads the system clock in UTC at Postgres precision, so a
// timestamp returned from Create equals the one read back later.
type RealTimeProvider struct{}

// Now implements TimeProvider.
func (*RealTimeProvider) Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// FixedTimeProvider is a manually advanced clock for tests.
type FixedTimeProvider struct {
	mu  sync.Mutex
	now time.Time
}

// NewFixedTimeProvider starts the clock at t.
func NewFixedTimeProvider(t time.Time) *FixedTimeProvider {
	return &FixedTimeProvider{now: t}
}

// Now implements TimeProvider.
func (f *FixedTimeProvider) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// AddTime moves the clock forward by d.
func (f *FixedTimeProvider) AddTime(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}
