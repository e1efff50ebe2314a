package handlers

import (
	stdErrors "errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/htkfoods/storefront/internal/api/middleware"
	"github.com/htkfoods/storefront/internal/errors"
	"github.com/htkfoods/storefront/internal/models"
	"github.com/htkfoods/storefront/internal/utils"
	"github.com/htkfoods/storefront/internal/utils/response"
	"github.com/htkfoods/storefront/internal/wishlist"
)

type WishlistHandler struct {
	validator *validator.Validate
}

func NewWishlistHandler() *WishlistHandler {
	return &WishlistHandler{validator: validator.New()}
}

type toggleResponse struct {
	Saved bool                  `json:"saved"`
	Items []models.SavedProduct `json:"items"`
}

func (h *WishlistHandler) GetWishlist() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {

		sess, ok := sessionFrom(w, r)
		if !ok {
			return
		}

		response.Success(w, http.StatusOK, sess.Wishlist.Items())
	}
}

func (h *WishlistHandler) ToggleWishlist() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {

		logger := middleware.LoggerFromContext(r.Context())

		sess, ok := sessionFrom(w, r)
		if !ok {
			return
		}

		var req models.SaveProductRequest
		if !utils.ParseAndValidate(r, w, &req, h.validator) {
			logger.Warn("Invalid wishlist input")
			return
		}

		saved, items, err := sess.Wishlist.Toggle(r.Context(), sanitizeProduct(req.Product()))
		if err != nil {
			logger.Error("Failed to update wishlist", slog.String("error", err.Error()))
			response.Error(w, asAppError(err, "Failed to save wishlist"))
			return
		}

		response.Success(w, http.StatusOK, toggleResponse{Saved: saved, Items: items})
	}
}

func (h *WishlistHandler) RemoveWishlistItem() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {

		sess, ok := sessionFrom(w, r)
		if !ok {
			return
		}

		items, err := sess.Wishlist.Remove(r.Context(), r.PathValue("id"))
		if err != nil {
			middleware.LoggerFromContext(r.Context()).Error("Failed to update wishlist", slog.String("error", err.Error()))
			response.Error(w, asAppError(err, "Failed to save wishlist"))
			return
		}

		response.Success(w, http.StatusOK, items)
	}
}

func (h *WishlistHandler) GetCompare() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {

		sess, ok := sessionFrom(w, r)
		if !ok {
			return
		}

		response.Success(w, http.StatusOK, sess.Compare.Items())
	}
}

func (h *WishlistHandler) ToggleCompare() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {

		logger := middleware.LoggerFromContext(r.Context())

		sess, ok := sessionFrom(w, r)
		if !ok {
			return
		}

		var req models.SaveProductRequest
		if !utils.ParseAndValidate(r, w, &req, h.validator) {
			logger.Warn("Invalid compare input")
			return
		}

		added, items, err := sess.Compare.Toggle(r.Context(), sanitizeProduct(req.Product()))
		if stdErrors.Is(err, wishlist.ErrCompareFull) {
			response.Error(w, errors.ConflictError("You can compare up to 4 products"))
			return
		}
		if err != nil {
			logger.Error("Failed to update compare list", slog.String("error", err.Error()))
			response.Error(w, errors.InternalError("Failed to save compare list").WithError(err))
			return
		}

		response.Success(w, http.StatusOK, toggleResponse{Saved: added, Items: items})
	}
}

func (h *WishlistHandler) ClearCompare() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {

		sess, ok := sessionFrom(w, r)
		if !ok {
			return
		}

		if err := sess.Compare.Clear(r.Context()); err != nil {
			middleware.LoggerFromContext(r.Context()).Error("Failed to clear compare list", slog.String("error", err.Error()))
			response.Error(w, errors.InternalError("Failed to save compare list").WithError(err))
			return
		}

		response.Success(w, http.StatusOK, []models.SavedProduct{})
	}
}
