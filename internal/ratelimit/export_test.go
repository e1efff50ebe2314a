package ratelimit

import "time"

// WithClock swaps the time source of limiters built by this package.
func WithClock(l Limiter, now func() time.Time) Limiter {
	switch v := l.(type) {
	case *redisLimiter:
		v.now = now
	case *memoryLimiter:
		v.now = now
	}
	return l
}

// TrackedKeys reports how many keys a memory limiter still holds.
func TrackedKeys(l Limiter) int {
	m := l.(*memoryLimiter)
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.attempts)
}
