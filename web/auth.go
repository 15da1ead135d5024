package web

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/csrf"
	"github.com/swiftie-vault/eastereggs/auth"
	authcontext "github.com/swiftie-vault/eastereggs/auth/context"
)

const csrfHeader = "X-CSRF-Token"

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")

	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}

	token = strings.TrimSpace(token)

	return token, token != ""
}

// csrfExemptions skips the CSRF check on unsafe requests that carry no
// session cookie, such as bearer-token clients. Safe methods always pass
// through so the token stays available. plaintext tells the CSRF middleware
// that the server is not behind TLS.
func (h *Handler) csrfExemptions(plaintext bool, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasBearer := bearerToken(r)
		_, cookieErr := r.Cookie(h.sessionName)

		if !isSafeMethod(r.Method) && (hasBearer || cookieErr != nil) {
			r = csrf.UnsafeSkipCheck(r)
		}

		if plaintext {
			r = csrf.PlaintextHTTPRequest(r)
		}

		next.ServeHTTP(w, r)
	})
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	default:
		return false
	}
}

func handleCSRFFailure(w http.ResponseWriter, r *http.Request) {
	slog.DebugContext(r.Context(), "csrf check failed", "reason", csrf.FailureReason(r))

	respondMessage(w, r, http.StatusForbidden, "Invalid CSRF token")
}

func isAuthFailure(err error) bool {
	var (
		sessionNotFoundErr *auth.SessionNotFoundError
		sessionExpiredErr  *auth.SessionExpiredError
		userNotFoundErr    *auth.UserNotFoundError
	)

	return errors.Is(err, auth.ErrInvalidToken) ||
		errors.As(err, &sessionNotFoundErr) ||
		errors.As(err, &sessionExpiredErr) ||
		errors.As(err, &userNotFoundErr)
}

// authMiddleware resolves the caller from a bearer token or, failing that,
// from the session cookie. Stale credentials leave the request anonymous.
func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token, ok := bearerToken(r); ok {
			session, err := h.authSvc.Authenticate(r.Context(), token)
			if err != nil {
				if !isAuthFailure(err) {
					respondError(w, r, err)

					return
				}

				slog.DebugContext(r.Context(), "ignoring invalid bearer token", "error", err)
				next.ServeHTTP(w, r)

				return
			}

			ctx := authcontext.WithSessionID(r.Context(), session.ID)
			ctx = authcontext.WithSubject(ctx, session.UserID)

			next.ServeHTTP(w, r.WithContext(ctx))

			return
		}

		sessionID, err := h.cookieSessionID(r)
		if err != nil {
			next.ServeHTTP(w, r)

			return
		}

		session, err := h.authSvc.GetSession(r.Context(), sessionID)
		if err == nil {
			_, err = h.authSvc.GetUser(r.Context(), session.UserID)
		}

		if err != nil {
			if !isAuthFailure(err) {
				respondError(w, r, err)

				return
			}

			h.forgetSession(w, r, sessionID)
			next.ServeHTTP(w, r)

			return
		}

		ctx := authcontext.WithSessionID(r.Context(), session.ID)
		ctx = authcontext.WithSubject(ctx, session.UserID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// forgetSession drops a dead session from the store and from the cookie.
func (h *Handler) forgetSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	err := h.authSvc.Logout(r.Context(), sessionID)
	if err != nil && !isAuthFailure(err) {
		slog.ErrorContext(r.Context(), "error on logging out session", "sessionId", sessionID, "error", err)
	}

	err = h.forgetCookieSession(w, r)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to forget session cookie", "error", err)
	}
}

func isAuthenticated(r *http.Request) bool {
	return authcontext.IsAuthenticated(r.Context())
}

func (h *Handler) AuthenticatedOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isAuthenticated(r) {
			respondMessage(w, r, http.StatusUnauthorized, "Authentication required")

			return
		}

		next.ServeHTTP(w, r)
	})
}

type userView struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type credentialsRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type sessionResponse struct {
	Success      bool     `json:"success"`
	User         userView `json:"user"`
	SessionToken string   `json:"sessionToken"`
	Message      string   `json:"message"`
}

func (h *Handler) HandleCSRFToken() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := csrf.Token(r)

		w.Header().Set(csrfHeader, token)
		respondJSON(w, r, http.StatusOK, map[string]string{"csrfToken": token})
	})
}

// startSession logs the user in and remembers the session in the cookie for
// browser clients.
func (h *Handler) startSession(w http.ResponseWriter, r *http.Request, username, password string) (*auth.LoginResult, error) {
	result, err := h.authSvc.Login(r.Context(), username, password)
	if err != nil {
		return nil, err
	}

	err = h.rememberSession(w, r, result.Session.ID)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to remember session", "error", err)
	}

	return result, nil
}

func (h *Handler) HandleRegister() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req credentialsRequest

		err := h.decodeValidate(r, &req)
		if err != nil {
			respondError(w, r, err)

			return
		}

		_, err = h.authSvc.Register(r.Context(), req.Username, req.Password)
		if err != nil {
			respondError(w, r, err)

			return
		}

		result, err := h.startSession(w, r, req.Username, req.Password)
		if err != nil {
			respondError(w, r, err)

			return
		}

		respondJSON(w, r, http.StatusCreated, sessionResponse{
			Success:      true,
			User:         userView{ID: result.User.ID, Username: result.User.Username},
			SessionToken: result.Token,
			Message:      "User registered successfully",
		})
	})
}

func (h *Handler) HandleLogin() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req credentialsRequest

		err := h.decodeValidate(r, &req)
		if err != nil {
			respondError(w, r, err)

			return
		}

		result, err := h.startSession(w, r, req.Username, req.Password)
		if err != nil {
			respondError(w, r, err)

			return
		}

		respondJSON(w, r, http.StatusOK, sessionResponse{
			Success:      true,
			User:         userView{ID: result.User.ID, Username: result.User.Username},
			SessionToken: result.Token,
			Message:      "Login successful",
		})
	})
}

func (h *Handler) HandleLogout() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID, ok := authcontext.SessionIDFromContext(r.Context())
		if ok {
			err := h.authSvc.Logout(r.Context(), sessionID)
			if err != nil && !isAuthFailure(err) {
				respondError(w, r, err)

				return
			}
		}

		err := h.forgetCookieSession(w, r)
		if err != nil {
			slog.ErrorContext(r.Context(), "failed to forget session cookie", "error", err)
		}

		respondJSON(w, r, http.StatusOK, map[string]any{"success": true, "message": "Logout successful"})
	})
}

func (h *Handler) HandleMe() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := h.authSvc.GetCurrentUser(r.Context())
		if err != nil {
			respondError(w, r, err)

			return
		}

		respondJSON(w, r, http.StatusOK, map[string]any{
			"success": true,
			"user":    userView{ID: user.ID, Username: user.Username},
		})
	})
}

func (h *Handler) HandleUpdateProfile() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondMessage(w, r, http.StatusForbidden, "Profile updates are not allowed")
	})
}
