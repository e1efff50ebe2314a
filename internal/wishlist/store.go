// Package wishlist keeps the saved-for-later products of a browser session.
// Like the cart it lives in guest storage until the session signs in and
// then follows the user's remote document, but every change is written
// straight away.
package wishlist

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"sync"

	"github.com/htkfoods/storefront/internal/docstore"
	appErrors "github.com/htkfoods/storefront/internal/errors"
	"github.com/htkfoods/storefront/internal/identity"
	"github.com/htkfoods/storefront/internal/localstore"
	"github.com/htkfoods/storefront/internal/metrics"
	"github.com/htkfoods/storefront/internal/models"
)

type Store struct {
	local  localstore.Storage
	docs   docstore.Store
	logger *slog.Logger

	// writeMu orders writes; mu guards state and is never held across I/O.
	writeMu sync.Mutex

	mu          sync.Mutex
	uid         string
	generation  uint64
	items       []models.SavedProduct
	synced      bool
	unsubscribe docstore.Unsubscribe

	stopAuth func()
}

func New(ctx context.Context, local localstore.Storage, docs docstore.Store, auth identity.Provider, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{local: local, docs: docs, logger: logger, synced: true}
	s.items = s.loadLocal(ctx)
	s.stopAuth = auth.OnAuthChange(func(uid string) {
		s.transition(context.WithoutCancel(ctx), uid)
	})

	return s
}

func (s *Store) Items() []models.SavedProduct {
	s.mu.Lock()
	defer s.mu.Unlock()

	return clone(s.items)
}

func (s *Store) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return indexOf(s.items, id) >= 0
}

// Toggle saves p, or unsaves it when already saved. saved reports the state
// after the call.
func (s *Store) Toggle(ctx context.Context, p models.SavedProduct) (saved bool, items []models.SavedProduct, err error) {
	items, err = s.update(ctx, func(current []models.SavedProduct) []models.SavedProduct {
		if i := indexOf(current, p.ID); i >= 0 {
			saved = false
			return slices.Delete(current, i, i+1)
		}
		saved = true
		return append(current, p)
	})

	return saved, items, err
}

func (s *Store) Remove(ctx context.Context, id string) ([]models.SavedProduct, error) {
	return s.update(ctx, func(current []models.SavedProduct) []models.SavedProduct {
		if i := indexOf(current, id); i >= 0 {
			return slices.Delete(current, i, i+1)
		}
		return current
	})
}

func (s *Store) Clear(ctx context.Context) error {
	_, err := s.update(ctx, func([]models.SavedProduct) []models.SavedProduct { return nil })
	return err
}

// Close stops following identity changes and the remote document.
func (s *Store) Close() {
	if s.stopAuth != nil {
		s.stopAuth()
	}

	s.mu.Lock()
	s.generation++
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

func (s *Store) update(ctx context.Context, fn func([]models.SavedProduct) []models.SavedProduct) ([]models.SavedProduct, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if s.uid != "" && !s.synced {
		items := clone(s.items)
		s.mu.Unlock()
		return items, appErrors.DatabaseError("Wishlist is not loaded yet")
	}
	s.items = fn(clone(s.items))
	items, uid := clone(s.items), s.uid
	s.mu.Unlock()

	if uid == "" {
		if err := s.saveLocal(ctx, items); err != nil {
			return items, appErrors.InternalError("Failed to save wishlist").WithError(err)
		}
		return items, nil
	}

	if err := s.docs.Set(ctx, docstore.WishlistPath(uid), models.WishlistRecord{Items: items}, docstore.SetOptions{}); err != nil {
		metrics.DocstoreWriteFailed("wishlist")
		return items, appErrors.DatabaseError("Failed to save wishlist").WithError(err)
	}

	return items, nil
}

// transition discards the guest list on login; the remote document takes
// over through the subscription. Writes wait for the switch and are refused
// until the remote list has been delivered.
func (s *Store) transition(ctx context.Context, uid string) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if s.uid == uid {
		s.mu.Unlock()
		return
	}
	s.generation++
	gen := s.generation
	s.uid = uid
	old := s.unsubscribe
	s.unsubscribe = nil
	s.items = nil
	s.synced = uid == ""
	s.mu.Unlock()

	if old != nil {
		old()
	}

	if uid == "" {
		items := s.loadLocal(ctx)

		s.mu.Lock()
		if gen == s.generation {
			s.items = items
		}
		s.mu.Unlock()
		return
	}

	unsubscribe, err := s.docs.Subscribe(ctx, docstore.WishlistPath(uid), func(doc *docstore.Document) {
		s.applyRemote(gen, doc)
	})
	if err != nil {
		s.logger.Warn("Failed to subscribe to remote wishlist", slog.String("uid", uid), slog.String("error", err.Error()))
		return
	}

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		unsubscribe()
		return
	}
	s.unsubscribe = unsubscribe
	s.mu.Unlock()
}

func (s *Store) applyRemote(gen uint64, doc *docstore.Document) {
	var record models.WishlistRecord
	if doc != nil {
		if err := doc.Decode(&record); err != nil {
			s.logger.Warn("Ignoring undecodable remote wishlist", slog.String("path", doc.Path), slog.String("error", err.Error()))
			return
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen == s.generation {
		s.items = dedupe(record.Items)
		s.synced = true
	}
}

func (s *Store) loadLocal(ctx context.Context) []models.SavedProduct {
	items, err := readList(ctx, s.local, localstore.KeyWishlist)
	if err != nil {
		s.logger.Warn("Ignoring unreadable guest wishlist", slog.String("error", err.Error()))
		return nil
	}
	return items
}

func (s *Store) saveLocal(ctx context.Context, items []models.SavedProduct) error {
	return writeList(ctx, s.local, localstore.KeyWishlist, items)
}

func readList(ctx context.Context, local localstore.Storage, key string) ([]models.SavedProduct, error) {
	raw, ok, err := local.Get(ctx, key)
	if err != nil || !ok || raw == "" {
		return nil, err
	}

	var items []models.SavedProduct
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, err
	}

	return dedupe(items), nil
}

func writeList(ctx context.Context, local localstore.Storage, key string, items []models.SavedProduct) error {
	if len(items) == 0 {
		return local.Remove(ctx, key)
	}

	data, err := json.Marshal(items)
	if err != nil {
		return err
	}

	return local.Set(ctx, key, string(data))
}

func indexOf(items []models.SavedProduct, id string) int {
	return slices.IndexFunc(items, func(p models.SavedProduct) bool { return p.ID == id })
}

func dedupe(items []models.SavedProduct) []models.SavedProduct {
	out := make([]models.SavedProduct, 0, len(items))
	for _, p := range items {
		if p.ID == "" || indexOf(out, p.ID) >= 0 {
			continue
		}
		out = append(out, p)
	}
	return out
}

func clone(items []models.SavedProduct) []models.SavedProduct {
	out := make([]models.SavedProduct, len(items))
	copy(out, items)
	return out
}
