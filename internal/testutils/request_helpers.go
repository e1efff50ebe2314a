package testutils

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/htkfoods/storefront/internal/api/middleware"
	"github.com/htkfoods/storefront/internal/config"
	"github.com/htkfoods/storefront/internal/coupon"
	"github.com/htkfoods/storefront/internal/docstore"
	"github.com/htkfoods/storefront/internal/models"
	"github.com/htkfoods/storefront/internal/session"
	"github.com/stretchr/testify/require"
)

// TestConfig keeps cart writes fast enough for tests to observe.
func TestConfig() *config.Config {
	return &config.Config{
		Cart: config.Cart{
			Debounce:     10 * time.Millisecond,
			MaxDelay:     50 * time.Millisecond,
			FlushRetries: 1,
			LoginPolicy:  config.LoginPolicyDiscard,
		},
		Currency:   config.Currency{Default: "INR"},
		Session:    config.Session{CookieName: "htk-session", IdleTimeout: 30 * time.Minute},
		RateConfig: config.RateConfig{MaxAttempts: 10, WindowSize: time.Minute},
	}
}

// NewTestManager returns a session manager backed by docs, with the demo
// coupons available. clock may be nil.
func NewTestManager(t *testing.T, docs docstore.Store, clock func() time.Time) *session.Manager {
	t.Helper()

	require.NoError(t, coupon.Seed(context.Background(), docs, coupon.DemoCoupons))

	m := session.NewManager(session.Deps{
		Docs:    docs,
		Coupons: coupon.NewEvaluator(coupon.NewCouponRepo(docs)),
		Logger:  discardLogger(),
		Clock:   clock,
	}, TestConfig())
	t.Cleanup(func() { _ = m.CloseAll(context.Background()) })

	return m
}

// NewTestSession returns a fresh session from its own manager.
func NewTestSession(t *testing.T, docs docstore.Store) *session.Session {
	t.Helper()

	sess, err := NewTestManager(t, docs, nil).GetOrCreate(context.Background(), session.NewID(), "127.0.0.1")
	require.NoError(t, err)

	return sess
}

// CreateTestRequestWithContext builds a request for a signed-in user.
func CreateTestRequestWithContext(method, target string, body io.Reader, sess *session.Session, userID string, pathParams map[string]string) *http.Request {
	req := CreateTestRequestWithoutContext(method, target, body, sess, pathParams)

	claims := &models.Claims{UserID: userID, Email: "test@example.com"}
	ctx := context.WithValue(req.Context(), middleware.UserContextKey, claims)

	return req.WithContext(ctx)
}

// CreateTestRequestWithoutContext builds a guest request. sess may be nil.
func CreateTestRequestWithoutContext(method, target string, body io.Reader, sess *session.Session, pathParams map[string]string) *http.Request {
	req := httptest.NewRequest(method, target, body)

	for key, value := range pathParams {
		req.SetPathValue(key, value)
	}

	ctx := middleware.WithLogger(req.Context(), discardLogger())
	if sess != nil {
		ctx = middleware.WithSession(ctx, sess)
	}

	return req.WithContext(ctx)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
