// Package ratelimit implements fixed-window counters in Redis so limits hold
// across every instance of the service.
package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Decision is the outcome of a limit check.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter is the capability handed to request handlers.
type Limiter interface {
	// Check reports whether key is still under its limit without counting.
	Check(ctx context.Context, key string) Decision
	// Increment records one attempt for key.
	Increment(ctx context.Context, key string)
	// Hit records one attempt and reports whether it was within the limit.
	Hit(ctx context.Context, key string) Decision
	// Reset clears the counter for key.
	Reset(ctx context.Context, key string)
}

// RedisLimiter is a fixed-window counter: INCR per attempt, EXPIRE on the
// first attempt of a window. Redis failures fail open.
type RedisLimiter struct {
	rdb    redis.Cmdable
	name   string
	limit  int
	window time.Duration
}

// New returns a limiter allowing limit attempts per window. name namespaces
// its keys ("ratelimit:<name>:<key>").
func New(rdb redis.Cmdable, name string, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, name: name, limit: limit, window: window}
}

func (l *RedisLimiter) key(k string) string {
	return "ratelimit:" + l.name + ":" + k
}

func (l *RedisLimiter) Check(ctx context.Context, key string) Decision {
	k := l.key(key)
	count, err := l.rdb.Get(ctx, k).Int()
	if err == redis.Nil {
		return l.decision(0, 0)
	}
	if err != nil {
		l.failOpen(err, key)
		return l.decision(0, 0)
	}
	return l.decision(count, l.ttl(ctx, k))
}

func (l *RedisLimiter) Increment(ctx context.Context, key string) {
	if _, _, err := l.incr(ctx, l.key(key)); err != nil {
		l.failOpen(err, key)
	}
}

func (l *RedisLimiter) Hit(ctx context.Context, key string) Decision {
	count, ttl, err := l.incr(ctx, l.key(key))
	if err != nil {
		l.failOpen(err, key)
		return l.decision(0, 0)
	}
	// The attempt that crosses the limit is itself rejected.
	d := l.decision(count-1, ttl)
	if count > l.limit {
		d.Allowed = false
	}
	return d
}

func (l *RedisLimiter) Reset(ctx context.Context, key string) {
	if err := l.rdb.Del(ctx, l.key(key)).Err(); err != nil {
		l.failOpen(err, key)
	}
}

// incr counts one attempt and returns the count with the window's remaining
// TTL. A key without an expiry (first attempt, or an earlier EXPIRE that never
// landed) gets the window applied here, so no counter outlives its window.
func (l *RedisLimiter) incr(ctx context.Context, k string) (int, time.Duration, error) {
	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	if _, err := l.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		ttl = pipe.TTL(ctx, k)
		return nil
	}); err != nil {
		return 0, 0, err
	}
	d, err := l.ensureExpiry(ctx, k, ttl.Val())
	if err != nil {
		return 0, 0, err
	}
	return int(incr.Val()), d, nil
}

func (l *RedisLimiter) ensureExpiry(ctx context.Context, k string, ttl time.Duration) (time.Duration, error) {
	if ttl >= 0 {
		return ttl, nil
	}
	if err := l.rdb.Expire(ctx, k, l.window).Err(); err != nil {
		return 0, err
	}
	return l.window, nil
}

func (l *RedisLimiter) ttl(ctx context.Context, k string) time.Duration {
	d, err := l.rdb.TTL(ctx, k).Result()
	if err != nil {
		return l.window
	}
	if d, err = l.ensureExpiry(ctx, k, d); err != nil {
		l.failOpen(err, k)
		return l.window
	}
	return d
}

// decision builds the result for a window that already holds count attempts.
func (l *RedisLimiter) decision(count int, ttl time.Duration) Decision {
	d := Decision{Allowed: count < l.limit, Limit: l.limit, Remaining: l.limit - count - 1}
	if d.Remaining < 0 {
		d.Remaining = 0
	}
	if !d.Allowed {
		d.RetryAfter = ttl
	}
	return d
}

func (l *RedisLimiter) failOpen(err error, key string) {
	log.Warn().Err(err).Str("limiter", l.name).Str("key", key).Msg("rate limiter unavailable, allowing request")
}
