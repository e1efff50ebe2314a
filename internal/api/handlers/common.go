package handlers

import (
	"context"
	"net/http"

	"github.com/htkfoods/storefront/internal/api/middleware"
	"github.com/htkfoods/storefront/internal/currency"
	"github.com/htkfoods/storefront/internal/errors"
	"github.com/htkfoods/storefront/internal/models"
	"github.com/htkfoods/storefront/internal/session"
	"github.com/htkfoods/storefront/internal/utils/response"
)

// sessionFrom fails the request when the session middleware did not run.
func sessionFrom(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		middleware.LoggerFromContext(r.Context()).Error("Session missing from request context")
		response.Error(w, errors.InternalError("session middleware not installed"))
		return nil, false
	}
	return sess, true
}

func userFrom(w http.ResponseWriter, r *http.Request) (string, bool) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		middleware.LoggerFromContext(r.Context()).Warn("Unauthorized access attempt: missing user claims")
		response.Error(w, errors.UnauthorizedError("Authentication required"))
		return "", false
	}
	return claims.UserID, true
}

// asAppError keeps AppErrors as they are and wraps anything else.
func asAppError(err error, message string) error {
	if _, ok := errors.IsAppError(err); ok {
		return err
	}
	return errors.DatabaseError(message).WithError(err)
}

type displayAmounts struct {
	Currency string `json:"currency"`
	Subtotal string `json:"subtotal"`
	Discount string `json:"discount"`
	Total    string `json:"total"`
}

type cartResponse struct {
	models.CartView
	Display displayAmounts `json:"display"`
}

// present adds the amounts in the shopper's display currency.
func present(ctx context.Context, sess *session.Session, view models.CartView) cartResponse {
	prefs, err := sess.Preferences.Get(ctx)
	if err != nil {
		middleware.LoggerFromContext(ctx).Warn("Falling back to default currency")
	}
	code := prefs.Currency

	return cartResponse{
		CartView: view,
		Display: displayAmounts{
			Currency: code,
			Subtotal: currency.Display(float64(view.Subtotal), code),
			Discount: currency.Display(view.Discount, code),
			Total:    currency.Display(view.Total, code),
		},
	}
}

func sanitizeProduct(p models.SavedProduct) models.SavedProduct {
	p.Name = sanitize(p.Name)
	return p
}
