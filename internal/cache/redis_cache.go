package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/htkfoods/storefront/internal/config"
	"github.com/htkfoods/storefront/internal/metrics"
	"github.com/redis/go-redis/v9"
)

type redisCache struct {
	client *redis.Client
	cfg    *config.Cache
}

// NewRedisCache stores JSON values in Redis. Guest keys slide: every read
// pushes their expiry out by the guest TTL, so a returning shopper keeps
// their cart for as long as they keep visiting.
func NewRedisCache(client *redis.Client, cfg *config.Cache) Cache {
	return &redisCache{client: client, cfg: cfg}
}

func family(key string) string {
	f, _, _ := strings.Cut(key, ":")
	return f
}

func (r *redisCache) read(ctx context.Context, key string) *redis.StringCmd {
	if family(key) == GuestKeyPrefix && r.cfg.GuestTTL > 0 {
		return r.client.GetEx(ctx, key, r.cfg.GuestTTL)
	}
	return r.client.Get(ctx, key)
}

func (r *redisCache) Get(ctx context.Context, key string, value any) (bool, error) {
	f := family(key)

	data, err := r.read(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		metrics.CacheLookup(f, "miss")
		return false, nil
	case err != nil:
		metrics.CacheLookup(f, "error")
		return false, fmt.Errorf("failed to get key %s from redis: %w", key, err)
	}

	if err := json.Unmarshal(data, value); err != nil {
		metrics.CacheLookup(f, "error")
		return false, fmt.Errorf("failed to unmarshal cache data for key %s: %w", key, err)
	}

	metrics.CacheLookup(f, "hit")
	return true, nil
}

// Set falls back to the default TTL when ttl is not positive.
func (r *redisCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value for key %s: %w", key, err)
	}

	if ttl <= 0 {
		ttl = r.cfg.DefaultTTL
	}

	if err := r.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set key %s in redis: %w", key, err)
	}
	return nil
}

func (r *redisCache) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete key %s from redis: %w", key, err)
	}
	return nil
}

// The client is shared with the document store and closed by main.
func (r *redisCache) Close() error {
	return nil
}
