package cart

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/htkfoods/storefront/internal/docstore"
	"github.com/htkfoods/storefront/internal/localstore"
	"github.com/htkfoods/storefront/internal/models"
)

// backend is where the cart persists: anonymousBackend or
// *authenticatedBackend. The Store switches between them only in transition.
type backend interface {
	mode() models.CartMode
	uid() string
	persist(ctx context.Context, items []models.CartItem, c *models.Coupon)
}

type anonymousBackend struct {
	local  localstore.Storage
	logger *slog.Logger
}

func (anonymousBackend) mode() models.CartMode { return models.CartModeAnonymous }
func (anonymousBackend) uid() string           { return "" }

func (b anonymousBackend) persist(ctx context.Context, items []models.CartItem, c *models.Coupon) {
	if err := saveLocal(ctx, b.local, items, c); err != nil {
		b.logger.Warn("Failed to save guest cart", slog.String("error", err.Error()))
	}
}

type authenticatedBackend struct {
	userID      string
	queue       *Coalescer[models.CartRecord]
	unsubscribe docstore.Unsubscribe
	clock       func() time.Time

	// synced is false until the remote cart has been read. Writes are held
	// until then so they cannot replace a remote cart not yet seen.
	synced bool
}

func (*authenticatedBackend) mode() models.CartMode { return models.CartModeAuthenticated }
func (b *authenticatedBackend) uid() string         { return b.userID }

// persist only schedules the write; the queue decides when it happens.
func (b *authenticatedBackend) persist(_ context.Context, items []models.CartItem, c *models.Coupon) {
	if !b.synced {
		return
	}
	b.queue.Submit(models.CartRecord{
		Items:     cloneItems(items),
		Coupon:    c,
		UpdatedAt: b.clock().UTC(),
	})
}

func (b *authenticatedBackend) teardown(ctx context.Context) error {
	if b.unsubscribe != nil {
		b.unsubscribe()
	}
	return b.queue.Close(ctx)
}

func loadLocal(ctx context.Context, local localstore.Storage) ([]models.CartItem, *models.Coupon, error) {
	var items []models.CartItem
	var c *models.Coupon

	raw, ok, err := local.Get(ctx, localstore.KeyCart)
	if err != nil {
		return nil, nil, err
	}
	if ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &items); err != nil {
			return nil, nil, err
		}
	}

	raw, ok, err = local.Get(ctx, localstore.KeyCoupon)
	if err != nil {
		return nil, nil, err
	}
	if ok && raw != "" {
		c = &models.Coupon{}
		if err := json.Unmarshal([]byte(raw), c); err != nil {
			return nil, nil, err
		}
	}

	return sanitize(items), c, nil
}

func saveLocal(ctx context.Context, local localstore.Storage, items []models.CartItem, c *models.Coupon) error {
	data, err := json.Marshal(nonNil(items))
	if err != nil {
		return err
	}
	if err := local.Set(ctx, localstore.KeyCart, string(data)); err != nil {
		return err
	}

	if c == nil {
		return local.Remove(ctx, localstore.KeyCoupon)
	}

	data, err = json.Marshal(c)
	if err != nil {
		return err
	}
	return local.Set(ctx, localstore.KeyCoupon, string(data))
}

func clearLocal(ctx context.Context, local localstore.Storage) error {
	if err := local.Remove(ctx, localstore.KeyCart); err != nil {
		return err
	}
	return local.Remove(ctx, localstore.KeyCoupon)
}

// sanitize enforces one line per id and a quantity of at least one on data
// that came from storage.
func sanitize(items []models.CartItem) []models.CartItem {
	out := make([]models.CartItem, 0, len(items))
	index := make(map[string]int, len(items))

	for _, item := range items {
		if item.ID == "" {
			continue
		}
		item.Quantity = max(item.Quantity, 1)

		if i, ok := index[item.ID]; ok {
			out[i].Quantity += item.Quantity
			continue
		}
		index[item.ID] = len(out)
		out = append(out, item)
	}

	return out
}

// mergeItems keeps remote order, sums quantities of shared ids and appends
// guest-only lines.
func mergeItems(remote, guest []models.CartItem) []models.CartItem {
	return sanitize(append(cloneItems(remote), guest...))
}

func cloneItems(items []models.CartItem) []models.CartItem {
	out := make([]models.CartItem, len(items))
	copy(out, items)
	return out
}

func nonNil(items []models.CartItem) []models.CartItem {
	if items == nil {
		return []models.CartItem{}
	}
	return items
}
