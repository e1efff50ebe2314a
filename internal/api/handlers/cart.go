package handlers

import (
	stdErrors "errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/htkfoods/storefront/internal/api/middleware"
	"github.com/htkfoods/storefront/internal/cart"
	"github.com/htkfoods/storefront/internal/errors"
	"github.com/htkfoods/storefront/internal/models"
	"github.com/htkfoods/storefront/internal/ratelimit"
	"github.com/htkfoods/storefront/internal/utils"
	"github.com/htkfoods/storefront/internal/utils/response"
)

var sanitize = utils.SanitizeText

type CartHandler struct {
	couponLimiter ratelimit.Limiter
	validator     *validator.Validate
}

func NewCartHandler(couponLimiter ratelimit.Limiter) *CartHandler {
	return &CartHandler{couponLimiter: couponLimiter, validator: validator.New()}
}

func (h *CartHandler) GetCart() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {

		sess, ok := sessionFrom(w, r)
		if !ok {
			return
		}

		response.Success(w, http.StatusOK, present(r.Context(), sess, sess.Cart.View()))
	}
}

func (h *CartHandler) AddItem() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {

		logger := middleware.LoggerFromContext(r.Context())

		sess, ok := sessionFrom(w, r)
		if !ok {
			return
		}

		var req models.AddItemRequest
		if !utils.ParseAndValidate(r, w, &req, h.validator) {
			logger.Warn("Invalid add to cart input")
			return
		}

		view := sess.Cart.Add(r.Context(), models.CartItem{
			ID:    req.ID,
			Name:  sanitize(req.Name),
			Price: req.Price,
			Image: req.Image,
		})

		logger.Info("Item added to cart", slog.String("itemId", req.ID), slog.Int("count", view.Count))
		response.Success(w, http.StatusOK, present(r.Context(), sess, view))
	}
}

func (h *CartHandler) UpdateQuantity() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {

		logger := middleware.LoggerFromContext(r.Context())

		sess, ok := sessionFrom(w, r)
		if !ok {
			return
		}

		id := r.PathValue("id")

		var req models.UpdateQuantityRequest
		if !utils.ParseAndValidate(r, w, &req, h.validator) {
			logger.Warn("Invalid quantity input", slog.String("itemId", id))
			return
		}

		view, err := sess.Cart.UpdateQuantity(r.Context(), id, req.Quantity)
		if err != nil {
			h.itemError(w, r, id, err)
			return
		}

		response.Success(w, http.StatusOK, present(r.Context(), sess, view))
	}
}

func (h *CartHandler) RemoveItem() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {

		sess, ok := sessionFrom(w, r)
		if !ok {
			return
		}

		id := r.PathValue("id")

		view, err := sess.Cart.Remove(r.Context(), id)
		if err != nil {
			h.itemError(w, r, id, err)
			return
		}

		middleware.LoggerFromContext(r.Context()).Info("Item removed from cart", slog.String("itemId", id))
		response.Success(w, http.StatusOK, present(r.Context(), sess, view))
	}
}

func (h *CartHandler) ClearCart() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {

		sess, ok := sessionFrom(w, r)
		if !ok {
			return
		}

		view := sess.Cart.Clear(r.Context())

		middleware.LoggerFromContext(r.Context()).Info("Cart cleared")
		response.Success(w, http.StatusOK, present(r.Context(), sess, view))
	}
}

type applyCouponResponse struct {
	Result *models.CouponResult `json:"result"`
	Cart   cartResponse         `json:"cart"`
}

// ApplyCoupon answers 200 for rejected codes too; the result says why.
func (h *CartHandler) ApplyCoupon() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {

		logger := middleware.LoggerFromContext(r.Context())

		sess, ok := sessionFrom(w, r)
		if !ok {
			return
		}

		var req models.ApplyCouponRequest
		if !utils.ParseAndValidate(r, w, &req, h.validator) {
			logger.Warn("Invalid coupon input")
			return
		}

		decision, err := h.couponLimiter.Allow(r.Context(), sess.ID)
		if err != nil {
			logger.Error("Coupon rate limit check failed", slog.String("error", err.Error()))
			response.Error(w, errors.ThirdPartyError("Rate limit check failed").WithError(err))
			return
		}
		if !decision.Allowed {
			logger.Warn("Coupon attempts exceeded", slog.Duration("retryAfter", decision.RetryAfter))
			w.Header().Set("Retry-After", strconv.Itoa(int(decision.RetryAfter.Seconds())))
			response.Error(w, errors.TooManyRequestsError("Too many coupon attempts. Please try again later."))
			return
		}

		result, view, err := sess.Cart.ApplyCoupon(r.Context(), req.Code)
		if err != nil {
			logger.Error("Coupon lookup failed", slog.String("error", err.Error()))
			response.Error(w, asAppError(err, "Failed to look up coupon"))
			return
		}

		logger.Info("Coupon apply attempted",
			slog.Bool("applied", result.Success),
			slog.String("reason", string(result.Reason)),
		)
		response.Success(w, http.StatusOK, applyCouponResponse{Result: result, Cart: present(r.Context(), sess, view)})
	}
}

func (h *CartHandler) RemoveCoupon() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {

		sess, ok := sessionFrom(w, r)
		if !ok {
			return
		}

		response.Success(w, http.StatusOK, present(r.Context(), sess, sess.Cart.RemoveCoupon(r.Context())))
	}
}

func (h *CartHandler) CloseDrawer() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {

		sess, ok := sessionFrom(w, r)
		if !ok {
			return
		}

		response.Success(w, http.StatusOK, present(r.Context(), sess, sess.Cart.CloseDrawer()))
	}
}

func (h *CartHandler) itemError(w http.ResponseWriter, r *http.Request, id string, err error) {
	if stdErrors.Is(err, cart.ErrItemNotFound) {
		middleware.LoggerFromContext(r.Context()).Warn("Cart item not found", slog.String("itemId", id))
		response.Error(w, errors.NotFoundError("Item not found in cart").WithDetail(id))
		return
	}

	response.Error(w, asAppError(err, "Failed to update cart"))
}
