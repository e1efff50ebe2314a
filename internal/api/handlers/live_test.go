package handlers_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/htkfoods/storefront/internal/api/handlers"
	"github.com/htkfoods/storefront/internal/api/middleware"
	"github.com/htkfoods/storefront/internal/docstore"
	"github.com/htkfoods/storefront/internal/models"
	"github.com/htkfoods/storefront/internal/rewards/mocks"
	"github.com/htkfoods/storefront/internal/session"
	"github.com/htkfoods/storefront/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type liveBody struct {
	Type    string       `json:"type"`
	Cart    *cartBody    `json:"cart"`
	Rewards *accountBody `json:"rewards"`
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

// dialFeed serves handler with ctx applied to every request and returns a
// reader for the websocket messages.
func dialFeed(t *testing.T, handler http.HandlerFunc, ctx func(context.Context) context.Context) func() liveBody {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler(w, r.WithContext(ctx(r.Context())))
	}))
	t.Cleanup(server.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	return func() liveBody {
		var msg liveBody
		require.NoError(t, conn.ReadJSON(&msg))
		return msg
	}
}

func withSession(sess *session.Session) func(context.Context) context.Context {
	return func(ctx context.Context) context.Context {
		return middleware.WithSession(ctx, sess)
	}
}

func withUser(uid string) func(context.Context) context.Context {
	return func(ctx context.Context) context.Context {
		return context.WithValue(ctx, middleware.UserContextKey, &models.Claims{UserID: uid})
	}
}

func TestCartFeed(t *testing.T) {
	// Arrange
	docs := docstore.NewMemoryStore()
	t.Cleanup(func() { _ = docs.Close() })
	sess := testutils.NewTestSession(t, docs)

	read := dialFeed(t, handlers.NewLiveHandler(nil).CartFeed(), withSession(sess))

	// Act & Assert
	assert.Equal(t, "connected", read().Type)

	initial := read()
	assert.Equal(t, "cart_updated", initial.Type)
	require.NotNil(t, initial.Cart)
	assert.Empty(t, initial.Cart.Items)

	sess.Cart.Add(t.Context(), models.CartItem{ID: "ghee-500", Name: "Ghee", Price: 650})

	update := read()
	require.NotNil(t, update.Cart)
	require.Len(t, update.Cart.Items, 1)
	assert.Equal(t, "ghee-500", update.Cart.Items[0].ID)
	assert.Equal(t, int64(650), update.Cart.Subtotal)
}

func TestCartFeed_OutlivesIdleTimeout(t *testing.T) {
	// Arrange
	docs := docstore.NewMemoryStore()
	t.Cleanup(func() { _ = docs.Close() })
	clk := &testClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	manager := testutils.NewTestManager(t, docs, clk.Now)
	sess, err := manager.GetOrCreate(t.Context(), session.NewID(), "127.0.0.1")
	require.NoError(t, err)
	sess.SignIn("u1")

	read := dialFeed(t, handlers.NewLiveHandler(nil).CartFeed(), withSession(sess))
	require.Equal(t, "connected", read().Type)
	require.Equal(t, "cart_updated", read().Type)

	// Act
	clk.Advance(31 * time.Minute)
	evicted := manager.EvictIdle(t.Context())
	require.NoError(t, docs.Set(t.Context(), docstore.CartPath("u1"),
		models.CartRecord{Items: []models.CartItem{{ID: "atta-5kg", Name: "Atta", Price: 320, Quantity: 1}}}, docstore.SetOptions{}))

	// Assert
	assert.Zero(t, evicted)
	update := read()
	require.NotNil(t, update.Cart)
	require.Len(t, update.Cart.Items, 1)
	assert.Equal(t, "atta-5kg", update.Cart.Items[0].ID)
}

func TestCartFeed_NotAWebsocket(t *testing.T) {
	docs := docstore.NewMemoryStore()
	t.Cleanup(func() { _ = docs.Close() })
	sess := testutils.NewTestSession(t, docs)
	recorder := httptest.NewRecorder()

	handlers.NewLiveHandler(nil).CartFeed()(recorder, testutils.CreateTestRequestWithoutContext(http.MethodGet, "/api/v1/cart/live", nil, sess, nil))

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestRewardsFeed(t *testing.T) {
	t.Run("Success - Pushes account updates", func(t *testing.T) {
		// Arrange
		mockService := new(mocks.Service)
		mockService.On("Watch", mock.Anything, "user-1", mock.Anything).
			Run(func(args mock.Arguments) {
				push := args.Get(2).(func(*models.RewardsAccount))
				push(&models.RewardsAccount{Points: 1250, Tier: models.TierGold})
			}).
			Return(func() {}, nil).Once()

		read := dialFeed(t, handlers.NewLiveHandler(mockService).RewardsFeed(), withUser("user-1"))

		// Act
		greeting := read()
		update := read()

		// Assert
		assert.Equal(t, "connected", greeting.Type)
		assert.Equal(t, "rewards_updated", update.Type)
		require.NotNil(t, update.Rewards)
		assert.Equal(t, int64(1250), update.Rewards.Points)
		assert.Equal(t, models.TierGold, update.Rewards.Tier)
		assert.Equal(t, int64(120), update.Rewards.RedeemableRupees)
		mockService.AssertExpectations(t)
	})

	t.Run("Failure - Watch error is a plain HTTP error", func(t *testing.T) {
		// Arrange
		mockService := new(mocks.Service)
		mockService.On("Watch", mock.Anything, "user-1", mock.Anything).
			Return(nil, errors.New("document store unavailable")).Once()
		req := testutils.CreateTestRequestWithContext(http.MethodGet, "/api/v1/rewards/live", nil, nil, "user-1", nil)
		recorder := httptest.NewRecorder()

		// Act
		handlers.NewLiveHandler(mockService).RewardsFeed()(recorder, req)

		// Assert
		assert.Equal(t, http.StatusInternalServerError, recorder.Code)
		mockService.AssertExpectations(t)
	})

	t.Run("Failure - Unauthorized", func(t *testing.T) {
		mockService := new(mocks.Service)
		recorder := httptest.NewRecorder()

		handlers.NewLiveHandler(mockService).RewardsFeed()(recorder, testutils.CreateTestRequestWithoutContext(http.MethodGet, "/api/v1/rewards/live", nil, nil, nil))

		assert.Equal(t, http.StatusUnauthorized, recorder.Code)
		mockService.AssertNotCalled(t, "Watch", mock.Anything, mock.Anything, mock.Anything)
	})
}
