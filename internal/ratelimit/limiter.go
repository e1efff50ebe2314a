// Package ratelimit counts attempts per key over a sliding window.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/htkfoods/storefront/internal/config"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "coupon_attempts:"

type Decision struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

type Limiter interface {
	// Allow records an attempt for key and reports whether it fits the window.
	Allow(ctx context.Context, key string) (Decision, error)
}

type redisLimiter struct {
	client *redis.Client
	cfg    *config.RateConfig
	now    func() time.Time
}

func NewRedisLimiter(client *redis.Client, cfg *config.RateConfig) Limiter {
	return &redisLimiter{client: client, cfg: cfg, now: time.Now}
}

// Attempts live in a sorted set scored by time in milliseconds. Entries older
// than the window are trimmed on every call.
func (r *redisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	key = keyPrefix + key
	now := r.now()
	windowStart := now.Add(-r.cfg.WindowSize).UnixMilli()

	pipe := r.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart, 10))
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixMilli()), Member: strconv.FormatInt(now.UnixNano(), 10)})
	count := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, r.cfg.WindowSize)

	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, fmt.Errorf("redis pipeline error for rate limit check: %w", err)
	}

	attempts := count.Val()
	if attempts <= r.cfg.MaxAttempts {
		return Decision{Allowed: true, Remaining: r.cfg.MaxAttempts - attempts}, nil
	}

	scores, err := r.client.ZRangeArgsWithScores(ctx, redis.ZRangeArgs{Key: key, Start: 0, Stop: 0}).Result()
	if err != nil || len(scores) == 0 {
		slog.Warn("Failed to get oldest attempt for rate limit", slog.String("key", key), slog.Any("error", err))
		return Decision{Allowed: false, RetryAfter: r.cfg.WindowSize}, nil
	}

	oldest := time.UnixMilli(int64(scores[0].Score))
	return Decision{Allowed: false, RetryAfter: max(oldest.Add(r.cfg.WindowSize).Sub(now), 0)}, nil
}

type memoryLimiter struct {
	cfg *config.RateConfig
	now func() time.Time

	mu        sync.Mutex
	attempts  map[string][]time.Time
	lastSweep time.Time
}

// NewMemoryLimiter keeps the window in process memory, for single-instance
// deployments without Redis.
func NewMemoryLimiter(cfg *config.RateConfig) Limiter {
	return &memoryLimiter{cfg: cfg, now: time.Now, attempts: make(map[string][]time.Time)}
}

func (m *memoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	windowStart := now.Add(-m.cfg.WindowSize)
	m.sweep(now, windowStart)

	kept := m.attempts[key][:0]
	for _, at := range m.attempts[key] {
		if at.After(windowStart) {
			kept = append(kept, at)
		}
	}
	kept = append(kept, now)
	m.attempts[key] = kept

	attempts := int64(len(kept))
	if attempts <= m.cfg.MaxAttempts {
		return Decision{Allowed: true, Remaining: m.cfg.MaxAttempts - attempts}, nil
	}

	return Decision{Allowed: false, RetryAfter: kept[0].Add(m.cfg.WindowSize).Sub(now)}, nil
}

// sweep drops keys with no attempt left in the window, at most once per
// window length.
func (m *memoryLimiter) sweep(now, windowStart time.Time) {
	if now.Sub(m.lastSweep) < m.cfg.WindowSize {
		return
	}
	m.lastSweep = now

	for key, times := range m.attempts {
		if len(times) == 0 || !times[len(times)-1].After(windowStart) {
			delete(m.attempts, key)
		}
	}
}
