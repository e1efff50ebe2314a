package models

import "time"

type CouponType string

const (
	CouponTypePercentage  CouponType = "percentage"
	CouponTypeFixedAmount CouponType = "fixed_amount"
)

// Coupon is the persisted shape of coupons/{CODE}.
type Coupon struct {
	Code          string     `json:"code"`
	Type          CouponType `json:"type"`
	Value         float64    `json:"value"`
	MinOrderValue float64    `json:"minOrderValue"`
	MaxDiscount   *float64   `json:"maxDiscount,omitempty"`
	ExpiryDate    *time.Time `json:"expiryDate,omitempty"`
	UsageLimit    int        `json:"usageLimit"`
	UsedCount     int        `json:"usedCount"`
	IsActive      bool       `json:"isActive"`
}

type CouponFailure string

const (
	CouponNotFound          CouponFailure = "not_found"
	CouponInactive          CouponFailure = "inactive"
	CouponExpired           CouponFailure = "expired"
	CouponUsageLimitReached CouponFailure = "usage_limit_reached"
	CouponMinOrderNotMet    CouponFailure = "min_order_not_met"
)

// CouponResult reports a coupon apply attempt. Lookup failures are results, not errors.
type CouponResult struct {
	Success bool          `json:"success"`
	Message string        `json:"message"`
	Reason  CouponFailure `json:"reason,omitempty"`
	Coupon  *Coupon       `json:"coupon,omitempty"`
}

type ApplyCouponRequest struct {
	Code string `json:"code" validate:"required,max=64"`
}
