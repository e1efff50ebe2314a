package wishlist

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/htkfoods/storefront/internal/localstore"
	"github.com/htkfoods/storefront/internal/models"
)

const MaxCompare = 4

var ErrCompareFull = errors.New("compare list is full")

// CompareList is the side-by-side comparison tray. It is kept in guest
// storage only and does not follow the signed-in user.
type CompareList struct {
	local localstore.Storage

	mu    sync.Mutex
	items []models.SavedProduct
}

func NewCompareList(ctx context.Context, local localstore.Storage) (*CompareList, error) {
	items, err := readList(ctx, local, localstore.KeyCompare)
	if err != nil {
		return nil, err
	}
	if len(items) > MaxCompare {
		items = items[:MaxCompare]
	}

	return &CompareList{local: local, items: items}, nil
}

func (c *CompareList) Items() []models.SavedProduct {
	c.mu.Lock()
	defer c.mu.Unlock()

	return clone(c.items)
}

// Toggle adds p or removes it when present. Adding to a full list returns
// ErrCompareFull and changes nothing.
func (c *CompareList) Toggle(ctx context.Context, p models.SavedProduct) (bool, []models.SavedProduct, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := clone(c.items)
	added := false
	if i := indexOf(next, p.ID); i >= 0 {
		next = slices.Delete(next, i, i+1)
	} else {
		if len(next) >= MaxCompare {
			return false, clone(c.items), ErrCompareFull
		}
		next = append(next, p)
		added = true
	}

	if err := writeList(ctx, c.local, localstore.KeyCompare, next); err != nil {
		return false, clone(c.items), err
	}
	c.items = next

	return added, clone(next), nil
}

func (c *CompareList) Remove(ctx context.Context, id string) ([]models.SavedProduct, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := indexOf(c.items, id)
	if i < 0 {
		return clone(c.items), nil
	}

	next := slices.Delete(clone(c.items), i, i+1)
	if err := writeList(ctx, c.local, localstore.KeyCompare, next); err != nil {
		return clone(c.items), err
	}
	c.items = next

	return clone(next), nil
}

func (c *CompareList) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.local.Remove(ctx, localstore.KeyCompare); err != nil {
		return err
	}
	c.items = nil

	return nil
}
