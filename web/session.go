package web

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/sessions"
)

// sessionIDKey names the cookie value holding the auth session id.
const sessionIDKey = "sessionId"

var errNoCookieSession = errors.New("no session in cookie")

// NewCookieStore returns the store for the browser session cookie. Cookies are
// HttpOnly and SameSite=Lax, and Secure only when secure is set. A
// non-positive maxAge keeps the store default.
func NewCookieStore(key []byte, secure bool, maxAge time.Duration) *sessions.CookieStore {
	store := sessions.NewCookieStore(key)
	store.Options.Path = "/"
	store.Options.HttpOnly = true
	store.Options.Secure = secure
	store.Options.SameSite = http.SameSiteLaxMode

	if maxAge > 0 {
		store.MaxAge(int(maxAge.Seconds()))
	}

	return store
}

// cookieSession loads the signed session cookie. A cookie that fails to
// decode is replaced by a fresh session, so the error is only logged.
func (h *Handler) cookieSession(r *http.Request) *sessions.Session {
	session, err := h.cookieStore.Get(r, h.sessionName)
	if err != nil {
		slog.DebugContext(r.Context(), "discarding unreadable session cookie", "error", err)
	}

	return session
}

// cookieSessionID returns the auth session id remembered in the cookie, or
// errNoCookieSession.
func (h *Handler) cookieSessionID(r *http.Request) (string, error) {
	sessionID, ok := h.cookieSession(r).Values[sessionIDKey].(string)
	if !ok || sessionID == "" {
		return "", errNoCookieSession
	}

	return sessionID, nil
}

func (h *Handler) rememberSession(w http.ResponseWriter, r *http.Request, sessionID string) error {
	session := h.cookieSession(r)
	session.Values[sessionIDKey] = sessionID

	err := session.Save(r, w)
	if err != nil {
		return fmt.Errorf("failed to save session cookie: %w", err)
	}

	return nil
}

// forgetCookieSession expires the cookie. Requests without one are left
// alone.
func (h *Handler) forgetCookieSession(w http.ResponseWriter, r *http.Request) error {
	if _, err := r.Cookie(h.sessionName); err != nil {
		return nil
	}

	session := h.cookieSession(r)
	delete(session.Values, sessionIDKey)
	session.Options.MaxAge = -1

	err := session.Save(r, w)
	if err != nil {
		return fmt.Errorf("failed to clear session cookie: %w", err)
	}

	return nil
}
