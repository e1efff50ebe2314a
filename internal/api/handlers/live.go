package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/htkfoods/storefront/internal/api/middleware"
	"github.com/htkfoods/storefront/internal/models"
	"github.com/htkfoods/storefront/internal/rewards"
	"github.com/htkfoods/storefront/internal/utils/response"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

type liveMessage struct {
	Type    string           `json:"type"`
	Message string           `json:"message,omitempty"`
	Cart    *cartResponse    `json:"cart,omitempty"`
	Rewards *accountResponse `json:"rewards,omitempty"`
}

// liveRender builds a message when it is about to be written, so dropped
// updates cost nothing.
type liveRender func() liveMessage

type LiveHandler struct {
	rewardsService rewards.Service
	upgrader       websocket.Upgrader
	pingPeriod     time.Duration
}

func NewLiveHandler(rewardsService rewards.Service) *LiveHandler {
	return &LiveHandler{
		rewardsService: rewardsService,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		pingPeriod: pingPeriod,
	}
}

// CartFeed streams the session cart over a websocket. The current cart is
// sent right after the greeting, then again on every change, including
// changes pushed from another device. The session is held while the feed
// is open so idle eviction cannot cut it off.
func (h *LiveHandler) CartFeed() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {

		sess, ok := sessionFrom(w, r)
		if !ok {
			return
		}

		release := sess.Hold()
		defer release()

		h.stream(w, r, "Cart sync enabled", func(ctx context.Context, send func(liveRender)) (func(), error) {
			return sess.Cart.Watch(func(view models.CartView) {
				send(func() liveMessage {
					payload := present(ctx, sess, view)
					return liveMessage{Type: "cart_updated", Cart: &payload}
				})
			}), nil
		})
	}
}

// RewardsFeed streams the signed-in user's points balance and tier.
func (h *LiveHandler) RewardsFeed() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {

		uid, ok := userFrom(w, r)
		if !ok {
			return
		}

		h.stream(w, r, "Rewards sync enabled", func(ctx context.Context, send func(liveRender)) (func(), error) {
			return h.rewardsService.Watch(ctx, uid, func(acc *models.RewardsAccount) {
				send(func() liveMessage {
					return liveMessage{Type: "rewards_updated", Rewards: &accountResponse{
						RewardsAccount:   acc,
						RedeemableRupees: rewards.PointsToRupees(acc.Points),
					}}
				})
			})
		})
	}
}

// stream attaches a source before upgrading, so a failed attach is still a
// plain HTTP error, then relays what it sends until the client goes away.
func (h *LiveHandler) stream(w http.ResponseWriter, r *http.Request, greeting string,
	attach func(ctx context.Context, send func(liveRender)) (func(), error)) {

	logger := middleware.LoggerFromContext(r.Context())

	// Only the newest message matters; a slow client skips the ones in between.
	updates := make(chan liveRender, 1)
	send := func(msg liveRender) {
		for {
			select {
			case updates <- msg:
				return
			default:
			}
			select {
			case <-updates:
			default:
			}
		}
	}

	stop, err := attach(r.Context(), send)
	if err != nil {
		logger.Error("Failed to attach live feed", slog.String("error", err.Error()))
		response.Error(w, asAppError(err, "Failed to start live feed"))
		return
	}
	defer stop()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("WebSocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)

		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(liveMessage{Type: "connected", Message: greeting}); err != nil {
		return
	}

	logger.Info("Live feed opened", slog.String("path", r.URL.Path))
	defer logger.Info("Live feed closed", slog.String("path", r.URL.Path))

	ticker := time.NewTicker(h.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case render := <-updates:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(render()); err != nil {
				logger.Debug("Live feed write failed", slog.String("error", err.Error()))
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
