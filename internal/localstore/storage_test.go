package localstore_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/htkfoods/storefront/internal/cache"
	"github.com/htkfoods/storefront/internal/config"
	"github.com/htkfoods/storefront/internal/localstore"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheStorage(t *testing.T) {
	ctx := t.Context()
	ttl := 24 * time.Hour
	key := "guest:sess-42:cart"

	setup := func(t *testing.T) (localstore.Storage, redismock.ClientMock) {
		t.Helper()
		client, mock := redismock.NewClientMock()
		c := cache.NewRedisCache(client, &config.Cache{DefaultTTL: time.Minute})
		return localstore.NewCacheStorage(c, "sess-42", ttl), mock
	}

	t.Run("Set namespaces the key by session", func(t *testing.T) {
		// Arrange
		storage, mock := setup(t)
		encoded, _ := json.Marshal(`[{"id":"x"}]`)
		mock.ExpectSet(key, encoded, ttl).SetVal("OK")

		// Act
		err := storage.Set(ctx, localstore.KeyCart, `[{"id":"x"}]`)

		// Assert
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Get returns stored value", func(t *testing.T) {
		// Arrange
		storage, mock := setup(t)
		encoded, _ := json.Marshal(`[{"id":"x"}]`)
		mock.ExpectGet(key).SetVal(string(encoded))

		// Act
		value, ok, err := storage.Get(ctx, localstore.KeyCart)

		// Assert
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, `[{"id":"x"}]`, value)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Get reports absence", func(t *testing.T) {
		storage, mock := setup(t)
		mock.ExpectGet(key).SetErr(redis.Nil)

		value, ok, err := storage.Get(ctx, localstore.KeyCart)

		require.NoError(t, err)
		assert.False(t, ok)
		assert.Empty(t, value)
	})

	t.Run("Get surfaces redis errors", func(t *testing.T) {
		storage, mock := setup(t)
		mock.ExpectGet(key).SetErr(errors.New("boom"))

		_, ok, err := storage.Get(ctx, localstore.KeyCart)

		require.Error(t, err)
		assert.False(t, ok)
	})

	t.Run("Remove deletes the namespaced key", func(t *testing.T) {
		storage, mock := setup(t)
		mock.ExpectDel("guest:sess-42:coupon").SetVal(1)

		require.NoError(t, storage.Remove(ctx, localstore.KeyCoupon))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestMemoryStorage(t *testing.T) {
	ctx := t.Context()
	storage := localstore.NewMemoryStorage()

	_, ok, err := storage.Get(ctx, localstore.KeyCurrency)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, storage.Set(ctx, localstore.KeyCurrency, "USD"))
	value, ok, _ := storage.Get(ctx, localstore.KeyCurrency)
	assert.True(t, ok)
	assert.Equal(t, "USD", value)

	require.NoError(t, storage.Remove(ctx, localstore.KeyCurrency))
	_, ok, _ = storage.Get(ctx, localstore.KeyCurrency)
	assert.False(t, ok)
}
