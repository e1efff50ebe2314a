package coupon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/htkfoods/storefront/internal/cache"
	"github.com/htkfoods/storefront/internal/docstore"
	"github.com/htkfoods/storefront/internal/models"
)

var ErrCouponNotFound = errors.New("coupon not found")

type Repository interface {
	// GetCoupon looks up an already normalized code.
	GetCoupon(ctx context.Context, code string) (*models.Coupon, error)
}

type couponRepository struct {
	docs docstore.Store
}

func NewCouponRepo(docs docstore.Store) Repository {
	return &couponRepository{docs: docs}
}

func (r *couponRepository) GetCoupon(ctx context.Context, code string) (*models.Coupon, error) {
	doc, err := r.docs.Get(ctx, docstore.CouponPath(code))
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, ErrCouponNotFound
		}
		return nil, fmt.Errorf("failed to get coupon %s: %w", code, err)
	}

	coupon := &models.Coupon{}
	if err := doc.Decode(coupon); err != nil {
		return nil, fmt.Errorf("failed to decode coupon %s: %w", code, err)
	}

	if coupon.Code == "" {
		coupon.Code = code
	}

	return coupon, nil
}

type cachedRepository struct {
	next  Repository
	cache cache.Cache
	ttl   time.Duration
}

// NewCachedRepo adds a short-lived read-through cache in front of next.
// Unknown codes are not cached so a newly created coupon works at once.
func NewCachedRepo(next Repository, c cache.Cache, ttl time.Duration) Repository {
	return &cachedRepository{next: next, cache: c, ttl: ttl}
}

func (r *cachedRepository) GetCoupon(ctx context.Context, code string) (*models.Coupon, error) {
	key := cache.Key(cache.CouponKeyPrefix, code)

	var cached models.Coupon
	found, err := r.cache.Get(ctx, key, &cached)
	if err != nil {
		slog.Warn("Coupon cache read failed", slog.String("code", code), slog.String("error", err.Error()))
	} else if found {
		return &cached, nil
	}

	coupon, err := r.next.GetCoupon(ctx, code)
	if err != nil {
		return nil, err
	}

	if err := r.cache.Set(ctx, key, coupon, r.ttl); err != nil {
		slog.Warn("Coupon cache write failed", slog.String("code", code), slog.String("error", err.Error()))
	}

	return coupon, nil
}
