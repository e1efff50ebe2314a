package handlers

import (
	"log/slog"
	"net/http"

	"github.com/htkfoods/storefront/internal/api/middleware"
	"github.com/htkfoods/storefront/internal/errors"
	"github.com/htkfoods/storefront/internal/utils/response"
)

type SessionHandler struct{}

func NewSessionHandler() *SessionHandler {
	return &SessionHandler{}
}

func (h *SessionHandler) GetSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {

		sess, ok := sessionFrom(w, r)
		if !ok {
			return
		}

		info, err := sess.Info(r.Context())
		if err != nil {
			response.Error(w, errors.InternalError("Failed to read session").WithError(err))
			return
		}

		response.Success(w, http.StatusOK, info)
	}
}

// Logout returns the session to guest mode. Pending cart writes are flushed
// first; the guest cart from before login comes back.
func (h *SessionHandler) Logout() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {

		logger := middleware.LoggerFromContext(r.Context())

		sess, ok := sessionFrom(w, r)
		if !ok {
			return
		}

		uid := sess.UserID()
		if uid != "" {
			if err := sess.Cart.Flush(r.Context()); err != nil {
				logger.Warn("Failed to save cart before sign out", slog.String("userId", uid), slog.String("error", err.Error()))
			}
		}
		sess.SignOut()

		info, err := sess.Info(r.Context())
		if err != nil {
			response.Error(w, errors.InternalError("Failed to read session").WithError(err))
			return
		}

		if uid != "" {
			logger.Info("Session signed out", slog.String("userId", uid))
		}
		response.Success(w, http.StatusOK, info)
	}
}
