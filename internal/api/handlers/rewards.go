package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/htkfoods/storefront/internal/api/middleware"
	"github.com/htkfoods/storefront/internal/models"
	"github.com/htkfoods/storefront/internal/rewards"
	"github.com/htkfoods/storefront/internal/utils"
	"github.com/htkfoods/storefront/internal/utils/response"
)

type RewardsHandler struct {
	rewardsService rewards.Service
	validator      *validator.Validate
}

func NewRewardsHandler(rewardsService rewards.Service) *RewardsHandler {
	return &RewardsHandler{rewardsService: rewardsService, validator: validator.New()}
}

type accountResponse struct {
	*models.RewardsAccount
	RedeemableRupees int64 `json:"redeemable_rupees"`
}

func (h *RewardsHandler) GetAccount() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {

		logger := middleware.LoggerFromContext(r.Context())

		uid, ok := userFrom(w, r)
		if !ok {
			return
		}

		ctx, cancel := utils.WithDBTimeout(r.Context())
		defer cancel()

		acc, err := h.rewardsService.Account(ctx, uid)
		if err != nil {
			logger.Error("Failed to load rewards account", slog.String("error", err.Error()))
			response.Error(w, asAppError(err, "Failed to load rewards"))
			return
		}

		response.Success(w, http.StatusOK, accountResponse{
			RewardsAccount:   acc,
			RedeemableRupees: rewards.PointsToRupees(acc.Points),
		})
	}
}

// Redeem answers 200 when the balance or amount does not allow it; the
// result carries the reason.
func (h *RewardsHandler) Redeem() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {

		logger := middleware.LoggerFromContext(r.Context())

		uid, ok := userFrom(w, r)
		if !ok {
			return
		}

		var req models.RedeemRequest
		if !utils.ParseAndValidate(r, w, &req, h.validator) {
			logger.Warn("Invalid redeem input")
			return
		}

		ctx, cancel := utils.WithDBTimeout(r.Context())
		defer cancel()

		result, err := h.rewardsService.RedeemPoints(ctx, uid, req.Points)
		if err != nil {
			logger.Error("Failed to redeem points", slog.Int64("points", req.Points), slog.String("error", err.Error()))
			response.Error(w, asAppError(err, "Failed to redeem points"))
			return
		}

		logger.Info("Redeem attempted",
			slog.Int64("points", req.Points),
			slog.Bool("success", result.Success),
			slog.Int64("balance", result.Balance),
		)
		response.Success(w, http.StatusOK, result)
	}
}

func (h *RewardsHandler) Quote() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {

		uid, ok := userFrom(w, r)
		if !ok {
			return
		}

		points, err := utils.QueryInt64(r, "points")
		if err != nil {
			response.Error(w, err)
			return
		}

		ctx, cancel := utils.WithDBTimeout(r.Context())
		defer cancel()

		quote, err := h.rewardsService.Quote(ctx, uid, points)
		if err != nil {
			middleware.LoggerFromContext(r.Context()).Error("Failed to quote redemption", slog.String("error", err.Error()))
			response.Error(w, asAppError(err, "Failed to load rewards"))
			return
		}

		response.Success(w, http.StatusOK, quote)
	}
}
