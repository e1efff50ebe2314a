// Package cart holds the shopping cart of one browser session. An anonymous
// cart lives in guest storage; once the session signs in the cart follows
// the user's remote document, written through a debounced queue and kept
// current by a live subscription.
package cart

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/htkfoods/storefront/internal/config"
	"github.com/htkfoods/storefront/internal/coupon"
	"github.com/htkfoods/storefront/internal/docstore"
	"github.com/htkfoods/storefront/internal/identity"
	"github.com/htkfoods/storefront/internal/localstore"
	"github.com/htkfoods/storefront/internal/metrics"
	"github.com/htkfoods/storefront/internal/models"
)

var ErrItemNotFound = errors.New("item not found in cart")

type CouponEvaluator interface {
	Apply(ctx context.Context, code string, subtotal int64) (*models.CouponResult, error)
}

type Deps struct {
	Local   localstore.Storage
	Docs    docstore.Store
	Coupons CouponEvaluator
	Auth    identity.Provider
	Logger  *slog.Logger
	Clock   func() time.Time
}

type Store struct {
	local   localstore.Storage
	docs    docstore.Store
	coupons CouponEvaluator
	cfg     config.Cart
	logger  *slog.Logger
	clock   func() time.Time

	mu         sync.Mutex
	backend    backend
	generation uint64
	items      []models.CartItem
	coupon     *models.Coupon
	drawerOpen bool
	watchers   map[uint64]func(models.CartView)
	nextWatch  uint64

	stopAuth func()
}

// New hydrates the guest cart and follows deps.Auth from then on.
func New(ctx context.Context, deps Deps, cfg *config.Cart) *Store {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	s := &Store{
		local:    deps.Local,
		docs:     deps.Docs,
		coupons:  deps.Coupons,
		cfg:      *cfg,
		logger:   logger,
		clock:    clock,
		watchers: make(map[uint64]func(models.CartView)),
	}

	s.backend = anonymousBackend{local: deps.Local, logger: logger}
	s.items, s.coupon = s.hydrateLocal(ctx)

	s.stopAuth = deps.Auth.OnAuthChange(func(uid string) {
		s.transition(context.WithoutCancel(ctx), uid)
	})

	return s
}

func (s *Store) View() models.CartView {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.viewLocked()
}

func (s *Store) Mode() models.CartMode {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.backend.mode()
}

// Add puts one unit of item in the cart. An existing line keeps its price
// and gains one unit. The drawer opens either way.
func (s *Store) Add(ctx context.Context, item models.CartItem) models.CartView {
	return s.mutate(ctx, func() error {
		for i := range s.items {
			if s.items[i].ID == item.ID {
				s.items[i].Quantity++
				s.drawerOpen = true
				return nil
			}
		}

		item.Quantity = 1
		s.items = append(s.items, item)
		s.drawerOpen = true
		return nil
	})
}

func (s *Store) Remove(ctx context.Context, id string) (models.CartView, error) {
	var view models.CartView
	err := s.mutateErr(ctx, &view, func() error {
		for i := range s.items {
			if s.items[i].ID == id {
				s.items = append(s.items[:i:i], s.items[i+1:]...)
				return nil
			}
		}
		return ErrItemNotFound
	})
	return view, err
}

// UpdateQuantity sets the quantity of a line, never below one.
func (s *Store) UpdateQuantity(ctx context.Context, id string, quantity int) (models.CartView, error) {
	var view models.CartView
	err := s.mutateErr(ctx, &view, func() error {
		for i := range s.items {
			if s.items[i].ID == id {
				s.items[i].Quantity = max(quantity, 1)
				return nil
			}
		}
		return ErrItemNotFound
	})
	return view, err
}

// Clear empties items and coupon in memory, guest storage and, when signed
// in, the remote cart.
func (s *Store) Clear(ctx context.Context) models.CartView {
	view := s.mutate(ctx, func() error {
		s.items = nil
		s.coupon = nil
		return nil
	})

	if err := clearLocal(ctx, s.local); err != nil {
		s.logger.Warn("Failed to clear guest cart", slog.String("error", err.Error()))
	}

	return view
}

// ApplyCoupon validates code against the current subtotal and attaches the
// coupon on success.
func (s *Store) ApplyCoupon(ctx context.Context, code string) (*models.CouponResult, models.CartView, error) {
	subtotal := s.View().Subtotal

	result, err := s.coupons.Apply(ctx, code, subtotal)
	if err != nil {
		return nil, s.View(), err
	}

	if !result.Success {
		return result, s.View(), nil
	}

	view := s.mutate(ctx, func() error {
		s.coupon = result.Coupon
		return nil
	})

	return result, view, nil
}

// RemoveCoupon detaches any coupon. It is safe to call without one.
func (s *Store) RemoveCoupon(ctx context.Context) models.CartView {
	s.mu.Lock()
	if s.coupon == nil {
		view := s.viewLocked()
		s.mu.Unlock()
		return view
	}
	s.mu.Unlock()

	return s.mutate(ctx, func() error {
		s.coupon = nil
		return nil
	})
}

func (s *Store) CloseDrawer() models.CartView {
	s.mu.Lock()
	s.drawerOpen = false
	view := s.viewLocked()
	watchers := s.watchersLocked()
	s.mu.Unlock()

	emit(watchers, view)
	return view
}

// Watch calls fn with the current view and after every change until the
// returned func is called. fn must not block.
func (s *Store) Watch(fn func(models.CartView)) func() {
	s.mu.Lock()
	s.nextWatch++
	id := s.nextWatch
	s.watchers[id] = fn
	view := s.viewLocked()
	s.mu.Unlock()

	fn(view)

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		delete(s.watchers, id)
	}
}

// Flush writes any pending remote update now.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	auth, ok := s.backend.(*authenticatedBackend)
	s.mu.Unlock()

	if !ok {
		return nil
	}
	return auth.queue.Flush(ctx)
}

// Close stops following identity changes and flushes pending writes.
func (s *Store) Close(ctx context.Context) error {
	if s.stopAuth != nil {
		s.stopAuth()
	}

	s.mu.Lock()
	s.generation++
	old := s.backend
	s.backend = anonymousBackend{local: s.local, logger: s.logger}
	s.mu.Unlock()

	if auth, ok := old.(*authenticatedBackend); ok {
		return auth.teardown(ctx)
	}
	return nil
}

// transition moves the cart to the backend for uid ("" is anonymous).
func (s *Store) transition(ctx context.Context, uid string) {
	s.mu.Lock()
	if s.backend.uid() == uid {
		s.mu.Unlock()
		return
	}
	s.generation++
	gen := s.generation
	old := s.backend
	guestItems, guestCoupon := cloneItems(s.items), s.coupon
	wasAnonymous := old.mode() == models.CartModeAnonymous
	s.mu.Unlock()

	if auth, ok := old.(*authenticatedBackend); ok {
		if err := auth.teardown(ctx); err != nil {
			s.logger.Warn("Failed to flush cart before switching user",
				slog.String("uid", auth.userID),
				slog.String("error", err.Error()),
			)
		}
	}

	if uid == "" {
		items, c := s.hydrateLocal(ctx)

		s.mu.Lock()
		if gen != s.generation {
			s.mu.Unlock()
			return
		}
		s.backend = anonymousBackend{local: s.local, logger: s.logger}
		s.items, s.coupon = items, c
		view, watchers := s.viewLocked(), s.watchersLocked()
		s.mu.Unlock()

		s.logger.Info("Cart switched to guest storage")
		emit(watchers, view)
		return
	}

	if wasAnonymous && s.cfg.LoginPolicy == config.LoginPolicyMerge && len(guestItems) > 0 {
		s.mergeGuestCart(ctx, uid, guestItems, guestCoupon)
	}

	path := docstore.CartPath(uid)
	queue := NewCoalescer(s.cfg.Debounce, s.cfg.MaxDelay, func(ctx context.Context, record models.CartRecord) error {
		return s.docs.Set(ctx, path, record, docstore.SetOptions{})
	}, s.flushBackOff).OnResult(func(err error) {
		metrics.CartFlushed(err)
		if err != nil {
			metrics.DocstoreWriteFailed("cart")
			s.logger.Warn("Cart write-through failed", slog.String("uid", uid), slog.String("error", err.Error()))
		}
	})

	items, c, synced := s.loadRemote(ctx, uid)
	auth := &authenticatedBackend{userID: uid, queue: queue, clock: s.clock, synced: synced}

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return
	}
	// The remote document replaces the guest cart.
	s.backend = auth
	s.items, s.coupon = items, c
	s.mu.Unlock()

	unsubscribe, err := s.docs.Subscribe(ctx, path, func(doc *docstore.Document) {
		s.applyRemote(gen, doc)
	})
	if err != nil {
		s.logger.Warn("Failed to subscribe to remote cart", slog.String("uid", uid), slog.String("error", err.Error()))
		s.emitCurrent()
		return
	}

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		unsubscribe()
		return
	}
	auth.unsubscribe = unsubscribe
	s.mu.Unlock()

	s.logger.Info("Cart switched to remote storage", slog.String("uid", uid), slog.String("policy", s.cfg.LoginPolicy))
}

// loadRemote reads the user's cart before the subscription is in place.
// synced is false when the read failed and the remote state is unknown.
func (s *Store) loadRemote(ctx context.Context, uid string) ([]models.CartItem, *models.Coupon, bool) {
	doc, err := s.docs.Get(ctx, docstore.CartPath(uid))
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		return nil, nil, true
	case err != nil:
		s.logger.Warn("Remote cart unavailable, holding writes until it arrives", slog.String("uid", uid), slog.String("error", err.Error()))
		return nil, nil, false
	}

	var record models.CartRecord
	if err := doc.Decode(&record); err != nil {
		s.logger.Warn("Ignoring undecodable remote cart", slog.String("uid", uid), slog.String("error", err.Error()))
		return nil, nil, false
	}
	return sanitize(record.Items), record.Coupon, true
}

// mergeGuestCart folds the guest cart into the remote one and clears guest
// storage.
func (s *Store) mergeGuestCart(ctx context.Context, uid string, guestItems []models.CartItem, guestCoupon *models.Coupon) {
	path := docstore.CartPath(uid)

	var remote models.CartRecord
	doc, err := s.docs.Get(ctx, path)
	switch {
	case err == nil:
		if err := doc.Decode(&remote); err != nil {
			s.logger.Warn("Skipping cart merge, remote cart unreadable", slog.String("uid", uid), slog.String("error", err.Error()))
			return
		}
	case errors.Is(err, docstore.ErrNotFound):
	default:
		s.logger.Warn("Skipping cart merge, remote cart unavailable", slog.String("uid", uid), slog.String("error", err.Error()))
		return
	}

	merged := models.CartRecord{
		Items:     mergeItems(remote.Items, guestItems),
		Coupon:    remote.Coupon,
		UpdatedAt: s.clock().UTC(),
	}
	if merged.Coupon == nil {
		merged.Coupon = guestCoupon
	}

	if err := s.docs.Set(ctx, path, merged, docstore.SetOptions{}); err != nil {
		metrics.DocstoreWriteFailed("cart")
		s.logger.Warn("Failed to write merged cart", slog.String("uid", uid), slog.String("error", err.Error()))
		return
	}

	if err := clearLocal(ctx, s.local); err != nil {
		s.logger.Warn("Failed to clear guest cart after merge", slog.String("error", err.Error()))
	}
}

// applyRemote overwrites the in-memory cart with a pushed document unless
// the session has moved on to another backend since subscribing.
func (s *Store) applyRemote(gen uint64, doc *docstore.Document) {
	var record models.CartRecord
	if doc != nil {
		if err := doc.Decode(&record); err != nil {
			s.logger.Warn("Ignoring undecodable remote cart", slog.String("path", doc.Path), slog.String("error", err.Error()))
			return
		}
	}

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return
	}
	if auth, ok := s.backend.(*authenticatedBackend); ok {
		auth.synced = true
	}
	s.items = sanitize(record.Items)
	s.coupon = record.Coupon
	view, watchers := s.viewLocked(), s.watchersLocked()
	s.mu.Unlock()

	emit(watchers, view)
}

func (s *Store) mutate(ctx context.Context, fn func() error) models.CartView {
	var view models.CartView
	_ = s.mutateErr(ctx, &view, fn)
	return view
}

// mutateErr applies fn to the in-memory cart and persists the result
// through the active backend. The view is filled in either way.
func (s *Store) mutateErr(ctx context.Context, view *models.CartView, fn func() error) error {
	s.mu.Lock()
	if err := fn(); err != nil {
		*view = s.viewLocked()
		s.mu.Unlock()
		return err
	}

	s.backend.persist(ctx, s.items, s.coupon)
	*view = s.viewLocked()
	watchers := s.watchersLocked()
	s.mu.Unlock()

	emit(watchers, *view)
	return nil
}

func (s *Store) hydrateLocal(ctx context.Context) ([]models.CartItem, *models.Coupon) {
	items, c, err := loadLocal(ctx, s.local)
	if err != nil {
		s.logger.Warn("Ignoring unreadable guest cart", slog.String("error", err.Error()))
		return nil, nil
	}
	return items, c
}

func (s *Store) flushBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = time.Second

	return backoff.WithMaxRetries(b, s.cfg.FlushRetries)
}

func (s *Store) emitCurrent() {
	s.mu.Lock()
	view, watchers := s.viewLocked(), s.watchersLocked()
	s.mu.Unlock()

	emit(watchers, view)
}

func (s *Store) viewLocked() models.CartView {
	var subtotal int64
	var count int
	for _, item := range s.items {
		subtotal += item.Price * int64(item.Quantity)
		count += item.Quantity
	}

	discount := coupon.ComputeDiscount(s.coupon, subtotal)

	return models.CartView{
		Mode:       s.backend.mode(),
		Items:      nonNil(cloneItems(s.items)),
		Coupon:     s.coupon,
		Subtotal:   subtotal,
		Discount:   discount,
		Total:      coupon.Total(subtotal, discount),
		Count:      count,
		DrawerOpen: s.drawerOpen,
	}
}

func (s *Store) watchersLocked() []func(models.CartView) {
	fns := make([]func(models.CartView), 0, len(s.watchers))
	for _, fn := range s.watchers {
		fns = append(fns, fn)
	}
	return fns
}

func emit(watchers []func(models.CartView), view models.CartView) {
	for _, fn := range watchers {
		fn(view)
	}
}
