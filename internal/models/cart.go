package models

import "time"

// CartItem is one line of a cart. Price is in the base currency (INR).
type CartItem struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	Image    string `json:"image"`
	Quantity int    `json:"quantity"`
}

// CartRecord is the persisted shape of users/{uid}/cart/main.
type CartRecord struct {
	Items     []CartItem `json:"items"`
	Coupon    *Coupon    `json:"coupon"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

type CartMode string

const (
	CartModeAnonymous     CartMode = "anonymous"
	CartModeAuthenticated CartMode = "authenticated"
)

// CartView is a read-only snapshot with every derived value recomputed.
type CartView struct {
	Mode       CartMode   `json:"mode"`
	Items      []CartItem `json:"items"`
	Coupon     *Coupon    `json:"coupon,omitempty"`
	Subtotal   int64      `json:"subtotal"`
	Discount   float64    `json:"discount"`
	Total      float64    `json:"total"`
	Count      int        `json:"count"`
	DrawerOpen bool       `json:"drawer_open"`
}

type AddItemRequest struct {
	ID    string `json:"id"    validate:"required,max=128"`
	Name  string `json:"name"  validate:"required,max=256"`
	Price int64  `json:"price" validate:"min=0"`
	Image string `json:"image" validate:"omitempty,max=1024"`
}

type UpdateQuantityRequest struct {
	Quantity int `json:"quantity"`
}
