// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthGate Contributors

package gate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
)

// Sliding window defaults.
const (
	DefaultWindow      = time.Minute
	DefaultMaxRequests = 10
)

// LimitResult is the outcome of counting one request.
type LimitResult struct {
	Allowed    bool
	Count      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter counts requests per key over a trailing window.
type Limiter interface {
	Allow(ctx context.Context, key string) (LimitResult, error)
}

func validateWindow(window time.Duration, limit int) error {
	if window <= 0 {
		return oops.Code("GATE_LIMITER_INVALID").With("window", window.String()).Errorf("window must be positive")
	}
	if limit <= 0 {
		return oops.Code("GATE_LIMITER_INVALID").With("limit", limit).Errorf("limit must be positive")
	}
	return nil
}

// MemoryLimiter is a sliding-log limiter held in process memory.
// A janitor goroutine evicts idle keys until Stop is called.
type MemoryLimiter struct {
	window time.Duration
	limit  int
	now    func() time.Time

	mu       sync.Mutex
	requests map[string][]time.Time

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// MemoryLimiterOption configures a MemoryLimiter.
type MemoryLimiterOption func(*MemoryLimiter)

// WithLimiterClock overrides the limiter's time source.
func WithLimiterClock(now func() time.Time) MemoryLimiterOption {
	return func(l *MemoryLimiter) { l.now = now }
}

// NewMemoryLimiter creates a MemoryLimiter and starts its janitor.
func NewMemoryLimiter(window time.Duration, limit int, opts ...MemoryLimiterOption) (*MemoryLimiter, error) {
	if err := validateWindow(window, limit); err != nil {
		return nil, err
	}
	l := &MemoryLimiter{
		window:   window,
		limit:    limit,
		now:      time.Now,
		requests: make(map[string][]time.Time),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	go l.janitor()
	return l, nil
}

// Allow implements Limiter. Denied requests are not recorded.
func (l *MemoryLimiter) Allow(_ context.Context, key string) (LimitResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	live := prune(l.requests[key], now.Add(-l.window))

	if len(live) >= l.limit {
		l.requests[key] = live
		return LimitResult{
			Allowed:    false,
			Count:      len(live),
			RetryAfter: live[0].Add(l.window).Sub(now),
		}, nil
	}

	live = append(live, now)
	l.requests[key] = live
	return LimitResult{Allowed: true, Count: len(live), Remaining: l.limit - len(live)}, nil
}

// prune drops timestamps at or before cutoff. ts is sorted ascending.
func prune(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	return ts[i:]
}

func (l *MemoryLimiter) janitor() {
	defer close(l.done)
	ticker := time.NewTicker(l.window)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}

func (l *MemoryLimiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.window)
	for key, ts := range l.requests {
		if live := prune(ts, cutoff); len(live) == 0 {
			delete(l.requests, key)
		} else {
			l.requests[key] = live
		}
	}
}

// Keys returns the number of tracked keys.
func (l *MemoryLimiter) Keys() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.requests)
}

// Stop halts the janitor and waits for it to exit. Safe to call repeatedly.
func (l *MemoryLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
	<-l.done
}

// slidingWindowScript trims the sorted set to the window, admits the request
// if under the limit, and reports {allowed, count, retry_after_ms}.
var slidingWindowScript = redis.NewScript(`
local key    = KEYS[1]
local now    = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit  = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local allowed = 0
if count < limit then
  redis.call('ZADD', key, now, member)
  count = count + 1
  allowed = 1
end
redis.call('PEXPIRE', key, window)

local retry = 0
if allowed == 0 then
  local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
  if oldest[2] then
    retry = tonumber(oldest[2]) + window - now
  end
end
return {allowed, count, retry}
`)

// RedisLimiter is a sliding-log limiter shared across processes through a
// Redis sorted set per key.
type RedisLimiter struct {
	client redis.Scripter
	prefix string
	window time.Duration
	limit  int
	now    func() time.Time
}

// NewRedisLimiter creates a RedisLimiter. Keys are stored under prefix.
func NewRedisLimiter(client redis.Scripter, prefix string, window time.Duration, limit int) (*RedisLimiter, error) {
	if client == nil {
		return nil, oops.Code("GATE_LIMITER_INVALID").Errorf("redis client is required")
	}
	if err := validateWindow(window, limit); err != nil {
		return nil, err
	}
	return &RedisLimiter{client: client, prefix: prefix, window: window, limit: limit, now: time.Now}, nil
}

// Allow implements Limiter.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (LimitResult, error) {
	nowMs := l.now().UnixMilli()
	res, err := slidingWindowScript.Run(ctx, l.client,
		[]string{fmt.Sprintf("%s%s", l.prefix, key)},
		nowMs, l.window.Milliseconds(), l.limit, ulid.Make().String(),
	).Int64Slice()
	if err != nil {
		return LimitResult{}, oops.Code("GATE_LIMITER_FAILED").With("key", key).Wrap(err)
	}
	if len(res) != 3 {
		return LimitResult{}, oops.Code("GATE_LIMITER_FAILED").With("key", key).Errorf("unexpected script reply %v", res)
	}

	count := int(res[1])
	return LimitResult{
		Allowed:    res[0] == 1,
		Count:      count,
		Remaining:  max(l.limit-count, 0),
		RetryAfter: time.Duration(res[2]) * time.Millisecond,
	}, nil
}

// SlidingWindowRule denies clients that exceed the limiter's budget.
// Clients are keyed by IP.
type SlidingWindowRule struct {
	mode    Mode
	limiter Limiter
}

// NewSlidingWindowRule creates a SlidingWindowRule.
func NewSlidingWindowRule(mode Mode, limiter Limiter) (*SlidingWindowRule, error) {
	if limiter == nil {
		return nil, oops.Code("GATE_LIMITER_INVALID").Errorf("limiter is required")
	}
	return &SlidingWindowRule{mode: mode, limiter: limiter}, nil
}

// Name implements Rule.
func (s *SlidingWindowRule) Name() string { return "sliding-window" }

// Mode implements Rule.
func (s *SlidingWindowRule) Mode() Mode { return s.mode }

// Evaluate implements Rule.
func (s *SlidingWindowRule) Evaluate(ctx context.Context, req RequestDetails) (RuleResult, error) {
	res, err := s.limiter.Allow(ctx, req.IP)
	if err != nil {
		return RuleResult{}, err
	}
	if res.Allowed {
		return RuleResult{Conclusion: Allow}, nil
	}
	return RuleResult{
		Conclusion: Deny,
		Reason:     ReasonRateLimit,
		Detail:     fmt.Sprintf("%d requests in window", res.Count),
		RetryAfter: res.RetryAfter,
	}, nil
}

var (
	_ Limiter = (*MemoryLimiter)(nil)
	_ Limiter = (*RedisLimiter)(nil)
	_ Rule    = (*SlidingWindowRule)(nil)
)
