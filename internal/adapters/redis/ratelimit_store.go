package redis

// Package redis provides Redis-backed adapters for the datamed API.

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/datamed/datamed-api/internal/domain/ratelimit"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces rate limit logs.
const DefaultKeyPrefix = "datamed:ratelimit:"

// takeScript prunes, counts and conditionally records one attempt in a sorted
// set scored by microsecond timestamps. Timestamps stay strings inside the
// script since Lua number formatting would round them.
//
// KEYS[1] log key
// ARGV[1] now (µs), ARGV[2] prune cutoff (µs), ARGV[3] max, ARGV[4] member, ARGV[5] ttl (ms)
// Returns {allowed, count, oldest score}.
var takeScript = redis.NewScript(`
local key = KEYS[1]
redis.call('ZREMRANGEBYSCORE', key, '-inf', ARGV[2])
local count = redis.call('ZCARD', key)
if count >= tonumber(ARGV[3]) then
  local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
  return {0, count, oldest[2] or ARGV[1]}
end
redis.call('ZADD', key, ARGV[1], ARGV[4])
redis.call('PEXPIRE', key, ARGV[5])
return {1, count + 1, ''}
`)

// RateLimitStore implements ratelimit.Store on Redis so limits are shared
// across API replicas. Each key is one sorted set that expires one window
// after its last recorded attempt.
type RateLimitStore struct {
	client redis.UniversalClient
	prefix string
}

var _ ratelimit.Store = (*RateLimitStore)(nil)

// NewRateLimitStore creates a RateLimitStore with DefaultKeyPrefix.
func NewRateLimitStore(client redis.UniversalClient) *RateLimitStore {
	return NewRateLimitStoreWithPrefix(client, DefaultKeyPrefix)
}

// NewRateLimitStoreWithPrefix creates a RateLimitStore with a custom key prefix.
func NewRateLimitStoreWithPrefix(client redis.UniversalClient, prefix string) *RateLimitStore {
	return &RateLimitStore{client: client, prefix: prefix}
}

// Take implements ratelimit.Store.
func (s *RateLimitStore) Take(ctx context.Context, key string, now time.Time, p ratelimit.Policy) (ratelimit.Decision, error) {
	if key == "" {
		return ratelimit.Decision{}, errors.New("rate limit key cannot be empty")
	}
	if err := p.Validate(); err != nil {
		return ratelimit.Decision{}, err
	}

	nowUS := now.UnixMicro()
	ttl := p.Window.Milliseconds()
	if ttl < 1 {
		ttl = 1
	}
	res, err := takeScript.Run(ctx, s.client, []string{s.prefix + key},
		nowUS, nowUS-p.Window.Microseconds(), p.MaxRequests, uuid.NewString(), ttl).Slice()
	if err != nil {
		return ratelimit.Decision{}, fmt.Errorf("redis rate limit script: %w", err)
	}
	if len(res) != 3 {
		return ratelimit.Decision{}, fmt.Errorf("redis rate limit script: unexpected reply length %d", len(res))
	}
	allowed, okA := res[0].(int64)
	count, okC := res[1].(int64)
	if !okA || !okC {
		return ratelimit.Decision{}, fmt.Errorf("redis rate limit script: unexpected reply %v", res)
	}

	d := ratelimit.Decision{Allowed: allowed == 1, Count: int(count)}
	if !d.Allowed {
		oldest, perr := parseScore(res[2])
		if perr != nil {
			return ratelimit.Decision{}, fmt.Errorf("redis rate limit script: %w", perr)
		}
		d.RetryAfter = time.UnixMicro(oldest).Add(p.Window).Sub(now)
	}
	return d, nil
}

func parseScore(v any) (int64, error) {
	str, ok := v.(string)
	if !ok {
		return 0, fmt.Errorf("unexpected score type %T", v)
	}
	f, err := strconv.ParseFloat(str, 64)
	if err != nil {
		return 0, fmt.Errorf("parse score %q: %w", str, err)
	}
	return int64(f), nil
}

// Reset removes the log for key.
func (s *RateLimitStore) Reset(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
