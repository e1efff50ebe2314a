// Package coupon looks up promotional codes and computes the discount they
// grant on a cart subtotal.
package coupon

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/htkfoods/storefront/internal/currency"
	"github.com/htkfoods/storefront/internal/metrics"
	"github.com/htkfoods/storefront/internal/models"
	"github.com/shopspring/decimal"
)

func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

type Evaluator struct {
	repo Repository
	now  func() time.Time
}

func NewEvaluator(repo Repository) *Evaluator {
	return &Evaluator{repo: repo, now: time.Now}
}

// WithClock replaces the time source used for expiry checks.
func (e *Evaluator) WithClock(now func() time.Time) *Evaluator {
	e.now = now
	return e
}

// Apply validates code against subtotal. Rule violations are reported in
// the result; only a failed lookup returns an error.
func (e *Evaluator) Apply(ctx context.Context, code string, subtotal int64) (*models.CouponResult, error) {
	normalized := Normalize(code)
	if normalized == "" {
		return e.reject(models.CouponNotFound, "Please enter a coupon code"), nil
	}

	coupon, err := e.repo.GetCoupon(ctx, normalized)
	if err != nil {
		if errors.Is(err, ErrCouponNotFound) {
			return e.reject(models.CouponNotFound, "Invalid coupon code"), nil
		}
		metrics.CouponApplied("error")
		return nil, err
	}

	switch {
	case !coupon.IsActive:
		return e.reject(models.CouponInactive, "This coupon is no longer active"), nil
	case coupon.ExpiryDate != nil && coupon.ExpiryDate.Before(e.now()):
		return e.reject(models.CouponExpired, "This coupon has expired"), nil
	case coupon.UsageLimit > 0 && coupon.UsedCount >= coupon.UsageLimit:
		return e.reject(models.CouponUsageLimitReached, "This coupon has reached its usage limit"), nil
	case float64(subtotal) < coupon.MinOrderValue:
		return e.reject(models.CouponMinOrderNotMet,
			fmt.Sprintf("Minimum order of %s required for this coupon", currency.Format(coupon.MinOrderValue, currency.Base))), nil
	}

	metrics.CouponApplied("applied")

	return &models.CouponResult{
		Success: true,
		Message: fmt.Sprintf("Coupon %s applied successfully!", coupon.Code),
		Coupon:  coupon,
	}, nil
}

func (e *Evaluator) reject(reason models.CouponFailure, message string) *models.CouponResult {
	metrics.CouponApplied(string(reason))
	return &models.CouponResult{Success: false, Message: message, Reason: reason}
}

// ComputeDiscount returns the discount c grants on subtotal, never more than
// the subtotal and never more than MaxDiscount for percentage coupons. A
// coupon whose minimum order is no longer met grants nothing.
func ComputeDiscount(c *models.Coupon, subtotal int64) float64 {
	if c == nil || subtotal <= 0 || float64(subtotal) < c.MinOrderValue {
		return 0
	}

	base := decimal.NewFromInt(subtotal)
	var discount decimal.Decimal

	switch c.Type {
	case models.CouponTypePercentage:
		discount = base.Mul(decimal.NewFromFloat(c.Value)).Div(decimal.NewFromInt(100))
		if c.MaxDiscount != nil {
			discount = decimal.Min(discount, decimal.NewFromFloat(*c.MaxDiscount))
		}
	case models.CouponTypeFixedAmount:
		discount = decimal.NewFromFloat(c.Value)
	default:
		return 0
	}

	discount = decimal.Max(decimal.Zero, decimal.Min(discount, base))

	value, _ := discount.Round(2).Float64()
	return value
}

// Total is subtotal minus discount, floored at zero.
func Total(subtotal int64, discount float64) float64 {
	total, _ := decimal.NewFromInt(subtotal).Sub(decimal.NewFromFloat(discount)).Round(2).Float64()
	return math.Max(0, total)
}
