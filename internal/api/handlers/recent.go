package handlers

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/htkfoods/storefront/internal/models"
	"github.com/htkfoods/storefront/internal/utils"
	"github.com/htkfoods/storefront/internal/utils/response"
)

type RecentHandler struct {
	validator *validator.Validate
}

func NewRecentHandler() *RecentHandler {
	return &RecentHandler{validator: validator.New()}
}

func (h *RecentHandler) GetRecent() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {

		sess, ok := sessionFrom(w, r)
		if !ok {
			return
		}

		response.Success(w, http.StatusOK, nonNilProducts(sess.Recent.Items()))
	}
}

func (h *RecentHandler) AddRecent() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {

		sess, ok := sessionFrom(w, r)
		if !ok {
			return
		}

		var req models.SaveProductRequest
		if !utils.ParseAndValidate(r, w, &req, h.validator) {
			return
		}

		response.Success(w, http.StatusOK, sess.Recent.Add(sanitizeProduct(req.Product())))
	}
}

func nonNilProducts(items []models.SavedProduct) []models.SavedProduct {
	if items == nil {
		return []models.SavedProduct{}
	}
	return items
}
