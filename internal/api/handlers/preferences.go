package handlers

import (
	stdErrors "errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/htkfoods/storefront/internal/api/middleware"
	"github.com/htkfoods/storefront/internal/currency"
	"github.com/htkfoods/storefront/internal/errors"
	"github.com/htkfoods/storefront/internal/models"
	"github.com/htkfoods/storefront/internal/utils"
	"github.com/htkfoods/storefront/internal/utils/response"
)

type PreferencesHandler struct {
	validator *validator.Validate
}

func NewPreferencesHandler() *PreferencesHandler {
	return &PreferencesHandler{validator: validator.New()}
}

type supportedCurrency struct {
	Code   string `json:"code"`
	Symbol string `json:"symbol"`
}

type preferencesResponse struct {
	models.Preferences
	Supported []supportedCurrency `json:"supported_currencies"`
}

// GetPreferences also lists the currencies the shopper can switch to.
func (h *PreferencesHandler) GetPreferences() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {

		sess, ok := sessionFrom(w, r)
		if !ok {
			return
		}

		prefs, err := sess.Preferences.Get(r.Context())
		if err != nil {
			middleware.LoggerFromContext(r.Context()).Warn("Failed to read preferences", slog.String("error", err.Error()))
		}

		supported := currency.Supported()
		resp := preferencesResponse{Preferences: prefs, Supported: make([]supportedCurrency, 0, len(supported))}
		for _, c := range supported {
			resp.Supported = append(resp.Supported, supportedCurrency{Code: c.Code, Symbol: c.Symbol})
		}

		response.Success(w, http.StatusOK, resp)
	}
}

// UpdatePreferences stores whichever of currency and language is set.
func (h *PreferencesHandler) UpdatePreferences() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {

		logger := middleware.LoggerFromContext(r.Context())

		sess, ok := sessionFrom(w, r)
		if !ok {
			return
		}

		var req models.Preferences
		if !utils.ParseAndValidate(r, w, &req, h.validator) {
			return
		}

		if req.Currency != "" {
			if err := sess.Preferences.SetCurrency(r.Context(), req.Currency); err != nil {
				h.preferenceError(w, r, "currency", err)
				return
			}
			logger.Info("Currency changed", slog.String("currency", req.Currency))
		}

		if req.Language != "" {
			if err := sess.Preferences.SetLanguage(r.Context(), req.Language); err != nil {
				h.preferenceError(w, r, "language", err)
				return
			}
		}

		prefs, err := sess.Preferences.Get(r.Context())
		if err != nil {
			response.Error(w, errors.InternalError("Failed to read preferences").WithError(err))
			return
		}

		response.Success(w, http.StatusOK, prefs)
	}
}

type conversion struct {
	Amount    float64 `json:"amount"`
	Currency  string  `json:"currency"`
	Converted float64 `json:"converted"`
	Display   string  `json:"display"`
}

// Convert turns a base-currency amount into the requested currency, or the
// session's currency when none is given.
func (h *PreferencesHandler) Convert() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {

		sess, ok := sessionFrom(w, r)
		if !ok {
			return
		}

		amount, err := utils.QueryFloat(r, "amount")
		if err != nil {
			response.Error(w, err)
			return
		}

		code := r.URL.Query().Get("currency")
		if code == "" {
			prefs, _ := sess.Preferences.Get(r.Context())
			code = prefs.Currency
		}

		c, ok := currency.Lookup(code)
		if !ok {
			response.Error(w, errors.AddValidationError("currency", "is not supported"))
			return
		}

		converted := currency.Convert(amount, c.Code)
		response.Success(w, http.StatusOK, conversion{
			Amount:    amount,
			Currency:  c.Code,
			Converted: converted,
			Display:   currency.Format(converted, c.Code),
		})
	}
}

func (h *PreferencesHandler) preferenceError(w http.ResponseWriter, r *http.Request, field string, err error) {
	if stdErrors.Is(err, currency.ErrUnsupportedCurrency) || stdErrors.Is(err, currency.ErrUnsupportedLanguage) {
		response.Error(w, errors.AddValidationError(field, "is not supported"))
		return
	}

	middleware.LoggerFromContext(r.Context()).Error("Failed to save preference", slog.String("field", field), slog.String("error", err.Error()))
	response.Error(w, errors.InternalError("Failed to save preferences").WithError(err))
}
