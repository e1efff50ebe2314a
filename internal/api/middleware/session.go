package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/gorilla/sessions"
	"github.com/htkfoods/storefront/internal/config"
	"github.com/htkfoods/storefront/internal/errors"
	"github.com/htkfoods/storefront/internal/session"
	"github.com/htkfoods/storefront/internal/utils/response"
)

type sessionContextKey struct{}

const sessionIDField = "sid"

type SessionMiddleware struct {
	cookies sessions.Store
	manager *session.Manager
	name    string
}

// NewSessionMiddleware keeps the session id in an HMAC-signed cookie.
func NewSessionMiddleware(manager *session.Manager, cfg *config.Session, key []byte) *SessionMiddleware {
	store := sessions.NewCookieStore(key)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   30 * 24 * 60 * 60,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	}

	return &SessionMiddleware{cookies: store, manager: manager, name: cfg.CookieName}
}

// Handle attaches the browser session to the request, creating it on the
// first visit. A verified token for a different user than the session's
// current one signs the session in.
func (m *SessionMiddleware) Handle(next http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {

		logger := LoggerFromContext(r.Context())

		cookie, err := m.cookies.Get(r, m.name)
		if err != nil {
			logger.Debug("Discarding unreadable session cookie", slog.String("error", err.Error()))
		}

		id, _ := cookie.Values[sessionIDField].(string)
		if id == "" {
			id = session.NewID()
			cookie.Values[sessionIDField] = id
			if err := cookie.Save(r, w); err != nil {
				logger.Error("Failed to save session cookie", slog.String("error", err.Error()))
				response.Error(w, errors.InternalError("Failed to start session").WithError(err))
				return
			}
		}

		sess, err := m.manager.GetOrCreate(r.Context(), id, ClientIP(r))
		if err != nil {
			logger.Error("Failed to load session", slog.String("error", err.Error()))
			response.Error(w, errors.InternalError("Session unavailable").WithError(err))
			return
		}

		if claims, ok := ClaimsFromContext(r.Context()); ok && claims.UserID != sess.UserID() {
			sess.SignIn(claims.UserID)
			logger.Info("Session signed in", slog.String("userId", claims.UserID))
		}

		logger = logger.With(slog.String("session_id", sess.ID))
		ctx := context.WithValue(r.Context(), sessionContextKey{}, sess)
		ctx = context.WithValue(ctx, LoggerKey, logger)

		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

func SessionFromContext(ctx context.Context) (*session.Session, bool) {
	sess, ok := ctx.Value(sessionContextKey{}).(*session.Session)
	return sess, ok && sess != nil
}

// WithSession stores sess for SessionFromContext.
func WithSession(ctx context.Context, sess *session.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// ClientIP is the first X-Forwarded-For hop, or the peer address.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
