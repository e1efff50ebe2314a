// Package localstore is the guest (anonymous) key-value storage of a browser
// session. Values are opaque strings, usually JSON.
package localstore

import "context"

const (
	KeyCart     = "cart"
	KeyCoupon   = "coupon"
	KeyCurrency = "htk-currency"
	KeyLanguage = "htk-language"
	KeyWishlist = "wishlist"
	KeyCompare  = "compare"
)

type Storage interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}
