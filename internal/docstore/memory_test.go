package docstore_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/htkfoods/storefront/internal/docstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counter struct {
	N int `json:"n"`
}

func TestMemoryStore_SetAndGet(t *testing.T) {
	ctx := t.Context()

	t.Run("Missing document", func(t *testing.T) {
		store := docstore.NewMemoryStore()

		doc, err := store.Get(ctx, docstore.CartPath("u1"))

		assert.Nil(t, doc)
		assert.ErrorIs(t, err, docstore.ErrNotFound)
	})

	t.Run("Replace bumps version", func(t *testing.T) {
		// Arrange
		store := docstore.NewMemoryStore()
		path := docstore.CartPath("u1")

		// Act
		require.NoError(t, store.Set(ctx, path, map[string]any{"a": 1, "b": 2}, docstore.SetOptions{}))
		require.NoError(t, store.Set(ctx, path, map[string]any{"a": 3}, docstore.SetOptions{}))
		doc, err := store.Get(ctx, path)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, int64(2), doc.Version)
		assert.JSONEq(t, `{"a":3}`, string(doc.Data))
	})

	t.Run("Merge keeps untouched fields", func(t *testing.T) {
		// Arrange
		store := docstore.NewMemoryStore()
		path := docstore.RewardsPath("u1")
		require.NoError(t, store.Set(ctx, path, json.RawMessage(`{"points":10,"tier":"Bronze"}`), docstore.SetOptions{}))

		// Act
		err := store.Set(ctx, path, json.RawMessage(`{"points":20}`), docstore.SetOptions{Merge: true})

		// Assert
		require.NoError(t, err)
		doc, err := store.Get(ctx, path)
		require.NoError(t, err)
		assert.JSONEq(t, `{"points":20,"tier":"Bronze"}`, string(doc.Data))
	})

	t.Run("Rejects non-object documents", func(t *testing.T) {
		store := docstore.NewMemoryStore()

		err := store.Set(ctx, docstore.CartPath("u1"), []int{1, 2}, docstore.SetOptions{})

		assert.Error(t, err)
	})
}

func TestMemoryStore_CompareAndSet(t *testing.T) {
	ctx := t.Context()
	path := docstore.RewardsPath("u1")

	t.Run("Zero version creates only when absent", func(t *testing.T) {
		store := docstore.NewMemoryStore()

		require.NoError(t, store.CompareAndSet(ctx, path, 0, counter{N: 1}))
		err := store.CompareAndSet(ctx, path, 0, counter{N: 2})

		assert.ErrorIs(t, err, docstore.ErrConflict)
	})

	t.Run("Stale version conflicts", func(t *testing.T) {
		store := docstore.NewMemoryStore()
		require.NoError(t, store.CompareAndSet(ctx, path, 0, counter{N: 1}))
		require.NoError(t, store.CompareAndSet(ctx, path, 1, counter{N: 2}))

		err := store.CompareAndSet(ctx, path, 1, counter{N: 3})

		assert.ErrorIs(t, err, docstore.ErrConflict)
		doc, err := store.Get(ctx, path)
		require.NoError(t, err)
		var got counter
		require.NoError(t, doc.Decode(&got))
		assert.Equal(t, 2, got.N)
	})
}

func TestMemoryStore_Subscribe(t *testing.T) {
	ctx := t.Context()
	path := docstore.WishlistPath("u1")

	t.Run("Delivers current value then changes", func(t *testing.T) {
		// Arrange
		store := docstore.NewMemoryStore()
		var seen []*docstore.Document

		// Act
		unsubscribe, err := store.Subscribe(ctx, path, func(doc *docstore.Document) {
			seen = append(seen, doc)
		})
		require.NoError(t, err)
		require.NoError(t, store.Set(ctx, path, counter{N: 1}, docstore.SetOptions{}))
		unsubscribe()
		require.NoError(t, store.Set(ctx, path, counter{N: 2}, docstore.SetOptions{}))

		// Assert
		require.Len(t, seen, 2)
		assert.Nil(t, seen[0])
		assert.JSONEq(t, `{"n":1}`, string(seen[1].Data))
		assert.Equal(t, 0, docstore.Subscribers(store, path))
	})

	t.Run("Unsubscribe is idempotent", func(t *testing.T) {
		store := docstore.NewMemoryStore()
		unsubscribe, err := store.Subscribe(ctx, path, func(*docstore.Document) {})
		require.NoError(t, err)

		unsubscribe()
		unsubscribe()

		assert.Equal(t, 0, docstore.Subscribers(store, path))
	})
}

func TestUpdate(t *testing.T) {
	ctx := t.Context()
	path := docstore.RewardsPath("u1")
	eager := func() backoff.BackOff {
		return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 1000)
	}

	increment := func(current *docstore.Document) (any, error) {
		var c counter
		if current != nil {
			if err := current.Decode(&c); err != nil {
				return nil, err
			}
		}
		c.N++
		return c, nil
	}

	t.Run("Concurrent increments are not lost", func(t *testing.T) {
		// Arrange
		store := docstore.NewMemoryStore()
		var wg sync.WaitGroup

		// Act
		for range 20 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, docstore.Update(ctx, store, path, eager, increment))
			}()
		}
		wg.Wait()

		// Assert
		doc, err := store.Get(ctx, path)
		require.NoError(t, err)
		var got counter
		require.NoError(t, doc.Decode(&got))
		assert.Equal(t, 20, got.N)
		assert.Equal(t, int64(20), doc.Version)
	})

	t.Run("Mutation error aborts without retry", func(t *testing.T) {
		store := docstore.NewMemoryStore()
		calls := 0
		boom := errors.New("boom")

		err := docstore.Update(ctx, store, path, eager, func(*docstore.Document) (any, error) {
			calls++
			return nil, boom
		})

		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, calls)
	})

	t.Run("Gives up after persistent conflicts", func(t *testing.T) {
		store := &conflictingStore{Store: docstore.NewMemoryStore()}

		err := docstore.Update(ctx, store, path, func() backoff.BackOff {
			return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 3)
		}, increment)

		assert.ErrorIs(t, err, docstore.ErrConflict)
		assert.Equal(t, 4, store.attempts)
	})
}

type conflictingStore struct {
	docstore.Store
	attempts int
}

func (s *conflictingStore) CompareAndSet(context.Context, string, int64, any) error {
	s.attempts++
	return docstore.ErrConflict
}

func TestPaths(t *testing.T) {
	assert.Equal(t, "users/u1/cart/main", docstore.CartPath("u1"))
	assert.Equal(t, "users/u1/rewards/main", docstore.RewardsPath("u1"))
	assert.Equal(t, "users/u1/wishlist/main", docstore.WishlistPath("u1"))
	assert.Equal(t, "coupons/SAVE20", docstore.CouponPath("SAVE20"))
}
