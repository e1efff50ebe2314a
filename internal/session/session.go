// Package session owns the per-browser state of the storefront: identity,
// guest storage, cart, wishlist, compare tray, recently viewed products and
// display preferences. Sessions are created on first visit and evicted
// after a period of inactivity.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/htkfoods/storefront/internal/cache"
	"github.com/htkfoods/storefront/internal/cart"
	"github.com/htkfoods/storefront/internal/config"
	"github.com/htkfoods/storefront/internal/currency"
	"github.com/htkfoods/storefront/internal/docstore"
	"github.com/htkfoods/storefront/internal/identity"
	"github.com/htkfoods/storefront/internal/localstore"
	"github.com/htkfoods/storefront/internal/metrics"
	"github.com/htkfoods/storefront/internal/models"
	"github.com/htkfoods/storefront/internal/recent"
	"github.com/htkfoods/storefront/internal/wishlist"
)

type CurrencyDetector interface {
	Detect(ctx context.Context, ip string) string
}

type Session struct {
	ID          string
	Identity    *identity.Hub
	Local       localstore.Storage
	Cart        *cart.Store
	Wishlist    *wishlist.Store
	Compare     *wishlist.CompareList
	Recent      *recent.Store
	Preferences *currency.Preferences

	lastSeen atomic.Int64
	holds    atomic.Int32
	clock    func() time.Time
	detected chan struct{}
}

func (s *Session) SignIn(uid string) { s.Identity.SignIn(uid) }
func (s *Session) SignOut()          { s.Identity.SignOut() }
func (s *Session) UserID() string    { return s.Identity.Current() }

// Detected is closed once the start-of-session currency detection is done.
func (s *Session) Detected() <-chan struct{} { return s.detected }

func (s *Session) Info(ctx context.Context) (models.SessionInfo, error) {
	prefs, err := s.Preferences.Get(ctx)
	uid := s.UserID()

	return models.SessionInfo{
		ID:            s.ID,
		UserID:        uid,
		Authenticated: uid != "",
		CartMode:      s.Cart.Mode(),
		Currency:      prefs.Currency,
		Language:      prefs.Language,
	}, err
}

// Hold keeps the session from idle eviction until release is called, for
// connections that outlive a single request such as the live feeds. The
// idle timer restarts on release.
func (s *Session) Hold() (release func()) {
	s.holds.Add(1)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.touch(s.clock())
			s.holds.Add(-1)
		})
	}
}

func (s *Session) touch(now time.Time) { s.lastSeen.Store(now.UnixNano()) }

func (s *Session) held() bool { return s.holds.Load() > 0 }

func (s *Session) idleSince(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, s.lastSeen.Load()))
}

func (s *Session) close(ctx context.Context) error {
	s.Wishlist.Close()
	return s.Cart.Close(ctx)
}

type Deps struct {
	// Cache backs guest storage. Nil keeps guest storage in process memory.
	Cache    cache.Cache
	Docs     docstore.Store
	Coupons  cart.CouponEvaluator
	Detector CurrencyDetector
	Logger   *slog.Logger
	Clock    func() time.Time
}

type Manager struct {
	deps Deps
	cfg  *config.Config

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool

	wg sync.WaitGroup
}

func NewManager(deps Deps, cfg *config.Config) *Manager {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}

	return &Manager{
		deps:     deps,
		cfg:      cfg,
		sessions: make(map[string]*Session),
	}
}

func NewID() string {
	return uuid.NewString()
}

var ErrClosed = errors.New("session manager is closed")

// Get returns a live session and marks it as active.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if ok {
		s.touch(m.deps.Clock())
	}
	return s, ok
}

// GetOrCreate returns the session for id, building it when this process has
// not seen id yet. Guest storage outlives the process, so a recreated
// session picks up the guest cart where it was left. ip seeds the one-time
// currency detection.
func (m *Manager) GetOrCreate(ctx context.Context, id, ip string) (*Session, error) {
	if s, ok := m.Get(id); ok {
		return s, nil
	}

	s, err := m.build(ctx, id)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = s.close(ctx)
		return nil, ErrClosed
	}
	if existing, ok := m.sessions[id]; ok {
		m.mu.Unlock()
		_ = s.close(ctx)
		existing.touch(m.deps.Clock())
		return existing, nil
	}
	m.sessions[id] = s
	m.wg.Add(1)
	m.mu.Unlock()

	metrics.SessionOpened()
	go m.detectCurrency(context.WithoutCancel(ctx), s, ip)

	return s, nil
}

func (m *Manager) build(ctx context.Context, id string) (*Session, error) {
	base := context.WithoutCancel(ctx)
	logger := m.deps.Logger.With(slog.String("session_id", id))

	var local localstore.Storage
	if m.deps.Cache != nil {
		local = localstore.NewCacheStorage(m.deps.Cache, id, m.cfg.Cache.GuestTTL)
	} else {
		local = localstore.NewMemoryStorage()
	}

	compare, err := wishlist.NewCompareList(ctx, local)
	if err != nil {
		logger.Warn("Ignoring unreadable compare list", slog.String("error", err.Error()))
		if err := local.Remove(ctx, localstore.KeyCompare); err != nil {
			return nil, err
		}
		if compare, err = wishlist.NewCompareList(ctx, local); err != nil {
			return nil, err
		}
	}

	hub := identity.NewHub()

	s := &Session{
		ID:       id,
		Identity: hub,
		Local:    local,
		Cart: cart.New(base, cart.Deps{
			Local:   local,
			Docs:    m.deps.Docs,
			Coupons: m.deps.Coupons,
			Auth:    hub,
			Logger:  logger,
			Clock:   m.deps.Clock,
		}, &m.cfg.Cart),
		Wishlist:    wishlist.New(base, local, m.deps.Docs, hub, logger),
		Compare:     compare,
		Recent:      recent.New(recent.DefaultCapacity),
		Preferences: currency.NewPreferences(local, m.cfg.Currency.Default),
		clock:       m.deps.Clock,
		detected:    make(chan struct{}),
	}
	s.touch(m.deps.Clock())

	return s, nil
}

// detectCurrency runs the start-of-session IP lookup unless the shopper
// already has a stored currency.
func (m *Manager) detectCurrency(ctx context.Context, s *Session, ip string) {
	defer m.wg.Done()
	defer close(s.detected)

	if m.deps.Detector == nil {
		return
	}

	chosen, err := s.Preferences.CurrencyChosen(ctx)
	if err != nil || chosen {
		return
	}

	code := m.deps.Detector.Detect(ctx, ip)

	// The shopper may have picked a currency while the lookup was running.
	if chosen, err := s.Preferences.CurrencyChosen(ctx); err != nil || chosen {
		return
	}
	if err := s.Preferences.SetCurrency(ctx, code); err != nil {
		m.deps.Logger.Debug("Detected currency not stored",
			slog.String("session_id", s.ID),
			slog.String("error", err.Error()),
		)
	}
}

// Evict closes and forgets one session, flushing its pending writes.
func (m *Manager) Evict(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return nil
	}

	metrics.SessionClosed()
	return s.close(ctx)
}

// EvictIdle evicts every session idle for longer than the configured
// timeout and returns how many went. Held sessions are never idle.
func (m *Manager) EvictIdle(ctx context.Context) int {
	now := m.deps.Clock()
	timeout := m.cfg.Session.IdleTimeout

	m.mu.Lock()
	var idle []string
	for id, s := range m.sessions {
		if !s.held() && s.idleSince(now) > timeout {
			idle = append(idle, id)
		}
	}
	m.mu.Unlock()

	for _, id := range idle {
		if err := m.Evict(ctx, id); err != nil {
			m.deps.Logger.Warn("Failed to flush evicted session",
				slog.String("session_id", id),
				slog.String("error", err.Error()),
			)
		}
	}

	return len(idle)
}

// RunJanitor evicts idle sessions every interval until ctx is done.
func (m *Manager) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.EvictIdle(ctx); n > 0 {
				m.deps.Logger.Info("Evicted idle sessions", slog.Int("count", n))
			}
		}
	}
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.sessions)
}

// CloseAll flushes and closes every session and refuses new ones.
func (m *Manager) CloseAll(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		metrics.SessionClosed()
		if err := s.close(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	m.wg.Wait()

	return errors.Join(errs...)
}
