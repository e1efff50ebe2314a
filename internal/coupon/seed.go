package coupon

import (
	"context"
	"fmt"

	"github.com/htkfoods/storefront/internal/docstore"
	"github.com/htkfoods/storefront/internal/models"
)

func ptr[T any](v T) *T { return &v }

// DemoCoupons are loaded into the in-memory store so a local run has codes
// to try.
var DemoCoupons = []models.Coupon{
	{Code: "WELCOME10", Type: models.CouponTypePercentage, Value: 10, MaxDiscount: ptr(100.0), IsActive: true},
	{Code: "SAVE20", Type: models.CouponTypePercentage, Value: 20, MinOrderValue: 500, MaxDiscount: ptr(150.0), IsActive: true},
	{Code: "FLAT100", Type: models.CouponTypeFixedAmount, Value: 100, MinOrderValue: 300, IsActive: true},
}

// Seed writes coupons under their normalized codes, replacing existing ones.
func Seed(ctx context.Context, docs docstore.Store, coupons []models.Coupon) error {
	for _, c := range coupons {
		c.Code = Normalize(c.Code)
		if err := docs.Set(ctx, docstore.CouponPath(c.Code), c, docstore.SetOptions{}); err != nil {
			return fmt.Errorf("failed to seed coupon %s: %w", c.Code, err)
		}
	}
	return nil
}
