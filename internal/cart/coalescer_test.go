package cart_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/htkfoods/storefront/internal/cart"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	values []int
	times  []time.Time
}

func (r *recorder) flush(_ context.Context, v int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.values = append(r.values, v)
	r.times = append(r.times, time.Now())
	return nil
}

func (r *recorder) snapshot() []int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]int(nil), r.values...)
}

func TestCoalescer(t *testing.T) {
	t.Run("Burst collapses into the latest value", func(t *testing.T) {
		// Arrange
		rec := &recorder{}
		c := cart.NewCoalescer(30*time.Millisecond, time.Second, rec.flush, nil)

		// Act
		for i := 1; i <= 5; i++ {
			c.Submit(i)
		}

		// Assert
		assert.True(t, cart.HasPending(c))
		require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
		time.Sleep(60 * time.Millisecond)
		assert.Equal(t, []int{5}, rec.snapshot())
		assert.False(t, cart.HasPending(c))
	})

	t.Run("Max delay bounds a steady stream", func(t *testing.T) {
		// Arrange
		rec := &recorder{}
		c := cart.NewCoalescer(40*time.Millisecond, 80*time.Millisecond, rec.flush, nil)
		start := time.Now()

		// Act
		for i := 1; i <= 25; i++ {
			c.Submit(i)
			time.Sleep(10 * time.Millisecond)
		}

		// Assert
		values := rec.snapshot()
		require.NotEmpty(t, values, "a write must happen before the stream ends")
		rec.mu.Lock()
		first := rec.times[0]
		rec.mu.Unlock()
		assert.Less(t, first.Sub(start), 200*time.Millisecond)
		assert.Less(t, len(values), 25)
	})

	t.Run("Flush writes immediately and only once", func(t *testing.T) {
		rec := &recorder{}
		c := cart.NewCoalescer(time.Hour, time.Hour, rec.flush, nil)

		c.Submit(7)
		require.NoError(t, c.Flush(context.Background()))
		require.NoError(t, c.Flush(context.Background()))

		assert.Equal(t, []int{7}, rec.snapshot())
	})

	t.Run("Close flushes and rejects later values", func(t *testing.T) {
		rec := &recorder{}
		c := cart.NewCoalescer(time.Hour, time.Hour, rec.flush, nil)

		c.Submit(1)
		require.NoError(t, c.Close(context.Background()))
		c.Submit(2)

		assert.Equal(t, []int{1}, rec.snapshot())
		assert.False(t, cart.HasPending(c))
	})

	t.Run("Transient failures are retried", func(t *testing.T) {
		// Arrange
		attempts := 0
		var results []error
		c := cart.NewCoalescer(time.Hour, time.Hour, func(_ context.Context, v int) error {
			attempts++
			if attempts < 3 {
				return errors.New("unavailable")
			}
			return nil
		}, func() backoff.BackOff {
			return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 3)
		}).OnResult(func(err error) { results = append(results, err) })

		// Act
		c.Submit(1)
		err := c.Flush(context.Background())

		// Assert
		require.NoError(t, err)
		assert.Equal(t, 3, attempts)
		assert.Equal(t, []error{nil}, results)
	})

	t.Run("Gives up after the retry budget", func(t *testing.T) {
		attempts := 0
		c := cart.NewCoalescer(time.Hour, time.Hour, func(_ context.Context, v int) error {
			attempts++
			return errors.New("unavailable")
		}, func() backoff.BackOff {
			return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 2)
		})

		c.Submit(1)
		err := c.Flush(context.Background())

		assert.Error(t, err)
		assert.Equal(t, 3, attempts)
		assert.False(t, cart.HasPending(c), "a failed value is dropped, not requeued")
	})
}
