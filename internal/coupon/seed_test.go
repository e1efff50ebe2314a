package coupon_test

import (
	"testing"

	"github.com/htkfoods/storefront/internal/coupon"
	"github.com/htkfoods/storefront/internal/docstore"
	"github.com/htkfoods/storefront/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeed(t *testing.T) {
	ctx := t.Context()
	docs := docstore.NewMemoryStore()
	t.Cleanup(func() { _ = docs.Close() })

	// Act
	require.NoError(t, coupon.Seed(ctx, docs, append(coupon.DemoCoupons, models.Coupon{Code: " spring5 ", Value: 5})))

	// Assert
	repo := coupon.NewCouponRepo(docs)
	for _, c := range coupon.DemoCoupons {
		got, err := repo.GetCoupon(ctx, c.Code)
		require.NoError(t, err)
		assert.Equal(t, c.Value, got.Value)
	}

	got, err := repo.GetCoupon(ctx, "SPRING5")
	require.NoError(t, err)
	assert.Equal(t, "SPRING5", got.Code)

	result, err := coupon.NewEvaluator(repo).Apply(ctx, "save20", 1000)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 150.0, coupon.ComputeDiscount(result.Coupon, 1000))
}
