package ratelimit

import (
	"context"
	"sync"
	"time"
)

// sweepEvery bounds how often MemoryStore drops idle keys.
const sweepEvery = 1024

// MemoryStore keeps sliding logs in process memory.
// A single mutex guards the whole map so prune, count and record are one step.
type MemoryStore struct {
	mu      sync.Mutex
	logs    map[string][]time.Time
	takes   int
	longest time.Duration
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{logs: make(map[string][]time.Time)}
}

// Take implements Store.
func (s *MemoryStore) Take(_ context.Context, key string, now time.Time, p Policy) (Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.Window > s.longest {
		s.longest = p.Window
	}
	s.takes++
	if s.takes%sweepEvery == 0 {
		s.sweepLocked(now)
	}

	entries := prune(s.logs[key], now, p.Window)
	if len(entries) >= p.MaxRequests {
		s.logs[key] = entries
		return Decision{
			Allowed:    false,
			Count:      len(entries),
			RetryAfter: entries[0].Add(p.Window).Sub(now),
		}, nil
	}

	entries = append(entries, now)
	s.logs[key] = entries
	return Decision{Allowed: true, Count: len(entries)}, nil
}

// Len returns the number of keys currently tracked.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.logs)
}

// sweepLocked removes keys whose newest entry is older than the longest window seen.
func (s *MemoryStore) sweepLocked(now time.Time) {
	for k, entries := range s.logs {
		if len(entries) == 0 || now.Sub(entries[len(entries)-1]) >= s.longest {
			delete(s.logs, k)
		}
	}
}

// prune drops entries with now - t >= window. Entries are in insertion order.
func prune(entries []time.Time, now time.Time, window time.Duration) []time.Time {
	i := 0
	for i < len(entries) && now.Sub(entries[i]) >= window {
		i++
	}
	if i == 0 {
		return entries
	}
	kept := make([]time.Time, len(entries)-i)
	copy(kept, entries[i:])
	return kept
}
