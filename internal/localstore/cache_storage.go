package localstore

import (
	"context"
	"time"

	"github.com/htkfoods/storefront/internal/cache"
)

type cacheStorage struct {
	cache     cache.Cache
	sessionID string
	ttl       time.Duration
}

// NewCacheStorage keeps a session's guest keys in the shared cache under
// guest:{sessionID}:{key}. Every write refreshes the TTL.
func NewCacheStorage(c cache.Cache, sessionID string, ttl time.Duration) Storage {
	return &cacheStorage{cache: c, sessionID: sessionID, ttl: ttl}
}

func (s *cacheStorage) key(k string) string {
	return cache.Key(cache.GuestKeyPrefix, s.sessionID+":"+k)
}

func (s *cacheStorage) Get(ctx context.Context, key string) (string, bool, error) {
	var value string

	found, err := s.cache.Get(ctx, s.key(key), &value)
	if err != nil || !found {
		return "", false, err
	}

	return value, true, nil
}

func (s *cacheStorage) Set(ctx context.Context, key, value string) error {
	return s.cache.Set(ctx, s.key(key), value, s.ttl)
}

func (s *cacheStorage) Remove(ctx context.Context, key string) error {
	return s.cache.Delete(ctx, s.key(key))
}
