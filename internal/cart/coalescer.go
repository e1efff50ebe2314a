package cart

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

type FlushFunc[T any] func(ctx context.Context, value T) error

// Coalescer collects submitted values and writes only the latest one, once
// no new value has arrived for the quiet period, or at the latest maxDelay
// after the first value of a burst.
type Coalescer[T any] struct {
	quiet      time.Duration
	maxDelay   time.Duration
	flush      FlushFunc[T]
	newBackOff func() backoff.BackOff
	onResult   func(error)

	mu         sync.Mutex
	pending    bool
	latest     T
	burstStart time.Time
	timer      *time.Timer
	closed     bool

	// flushMu keeps writes in submission order.
	flushMu sync.Mutex
}

func NewCoalescer[T any](quiet, maxDelay time.Duration, flush FlushFunc[T], newBackOff func() backoff.BackOff) *Coalescer[T] {
	if maxDelay < quiet {
		maxDelay = quiet
	}
	if newBackOff == nil {
		newBackOff = func() backoff.BackOff { return &backoff.StopBackOff{} }
	}

	return &Coalescer[T]{
		quiet:      quiet,
		maxDelay:   maxDelay,
		flush:      flush,
		newBackOff: newBackOff,
	}
}

// OnResult registers a hook called after every flush attempt sequence.
func (c *Coalescer[T]) OnResult(fn func(error)) *Coalescer[T] {
	c.onResult = fn
	return c
}

// Submit replaces the pending value. It never blocks on a write.
func (c *Coalescer[T]) Submit(value T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	now := time.Now()
	c.latest = value
	if !c.pending {
		c.pending = true
		c.burstStart = now
	}

	delay := c.quiet
	if remaining := c.burstStart.Add(c.maxDelay).Sub(now); remaining < delay {
		delay = max(remaining, 0)
	}

	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(delay, func() {
		_ = c.Flush(context.Background())
	})
}

func (c *Coalescer[T]) hasPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.pending
}

// Flush writes the pending value now, retrying with the configured backoff.
func (c *Coalescer[T]) Flush(ctx context.Context) error {
	c.flushMu.Lock()
	defer c.flushMu.Unlock()

	value, ok := c.take()
	if !ok {
		return nil
	}

	err := backoff.Retry(func() error {
		return c.flush(ctx, value)
	}, backoff.WithContext(c.newBackOff(), ctx))

	if c.onResult != nil {
		c.onResult(err)
	}

	return err
}

// Close stops accepting values and flushes what is pending.
func (c *Coalescer[T]) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	return c.Flush(ctx)
}

func (c *Coalescer[T]) take() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	if !c.pending {
		return zero, false
	}

	value := c.latest
	c.latest = zero
	c.pending = false
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}

	return value, true
}
