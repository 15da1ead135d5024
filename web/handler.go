package web

import (
	"context"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/csrf"
	"github.com/gorilla/sessions"
	"github.com/swiftie-vault/eastereggs/auth"
	"github.com/swiftie-vault/eastereggs/discuss"
	"github.com/swiftie-vault/eastereggs/eggs"
	"github.com/swiftie-vault/eastereggs/likes"
	"github.com/swiftie-vault/eastereggs/metrics"
)

const DefaultMaxUploadBytes int64 = 100 << 20

type Config struct {
	SessionName        string
	CSRFAuthKey        []byte
	CSRFTrustedOrigins []string
	CORSAllowedOrigins []string
	// SecureCookies marks cookies Secure and makes CSRF checks expect HTTPS.
	SecureCookies  bool
	MaxUploadBytes int64
}

type Handler struct {
	mux            *http.ServeMux
	handler        http.Handler
	authSvc        *auth.Service
	eggsSvc        *eggs.Service
	discussSvc     *discuss.Service
	likesSvc       *likes.Service
	cookieStore    *sessions.CookieStore
	sessionName    string
	maxUploadBytes int64
	validate       *validator.Validate
}

var _ http.Handler = (*Handler)(nil)

func NewHandler(
	authSvc *auth.Service,
	eggsSvc *eggs.Service,
	discussSvc *discuss.Service,
	likesSvc *likes.Service,
	cookieStore *sessions.CookieStore,
	cfg Config,
) *Handler {
	h := &Handler{
		mux:            nil,
		handler:        nil,
		authSvc:        authSvc,
		eggsSvc:        eggsSvc,
		discussSvc:     discussSvc,
		likesSvc:       likesSvc,
		cookieStore:    cookieStore,
		sessionName:    cfg.SessionName,
		maxUploadBytes: cfg.MaxUploadBytes,
		validate:       validator.New(validator.WithRequiredStructEnabled()),
	}

	h.validate.RegisterTagNameFunc(jsonFieldName)

	if h.maxUploadBytes <= 0 {
		h.maxUploadBytes = DefaultMaxUploadBytes
	}

	{
		h.mux = &http.ServeMux{}
		h.handler = metrics.Routes(h.mux)

		h.registerRoutes()
	}

	{
		h.handler = h.authMiddleware(h.handler)

		{
			csrfMiddleware := csrf.Protect(
				cfg.CSRFAuthKey,
				csrf.TrustedOrigins(cfg.CSRFTrustedOrigins),
				csrf.Secure(cfg.SecureCookies),
				csrf.Path("/"),
				csrf.ErrorHandler(http.HandlerFunc(handleCSRFFailure)),
			)

			h.handler = csrfMiddleware(h.handler)
			h.handler = h.csrfExemptions(!cfg.SecureCookies, h.handler)
		}

		{
			corsMiddleware := cors.Handler(cors.Options{
				AllowedOrigins:   cfg.CORSAllowedOrigins,
				AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
				AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", csrfHeader},
				ExposedHeaders:   []string{csrfHeader},
				AllowCredentials: true,
				MaxAge:           300,
			})

			h.handler = corsMiddleware(h.handler)
		}

		h.handler = metrics.Middleware(h.handler)
		h.handler = recoverMiddleware(h.handler)
	}

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.handler.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.mux.Handle("GET /api/health", h.HandleHealth())
	h.mux.Handle("GET /api/catalog", h.HandleCatalog())
	h.mux.Handle("GET /metrics", metrics.Handler())

	h.mux.Handle("GET /api/auth/csrf", h.HandleCSRFToken())
	h.mux.Handle("POST /api/auth/register", h.HandleRegister())
	h.mux.Handle("POST /api/auth/login", h.HandleLogin())
	h.mux.Handle("POST /api/auth/logout", h.HandleLogout())
	h.mux.Handle("GET /api/auth/me", h.AuthenticatedOnly(h.HandleMe()))

	h.mux.Handle("PUT /api/users/profile", h.AuthenticatedOnly(h.HandleUpdateProfile()))
	h.mux.Handle("GET /api/users/me/likes", h.AuthenticatedOnly(h.HandleMyLikes()))

	h.mux.Handle("GET /api/easter-eggs", h.HandleListEggs())
	h.mux.Handle("POST /api/easter-eggs", h.AuthenticatedOnly(h.HandleCreateEgg()))
	h.mux.Handle("GET /api/easter-eggs/{eggId}", h.HandleGetEgg())
	h.mux.Handle("PUT /api/easter-eggs/{eggId}", h.AuthenticatedOnly(h.HandleUpdateEgg()))
	h.mux.Handle("DELETE /api/easter-eggs/{eggId}", h.AuthenticatedOnly(h.HandleDeleteEgg()))

	h.mux.Handle("GET /api/easter-eggs/{eggId}/comments", h.HandleListComments())
	h.mux.Handle("GET /api/easter-eggs/{eggId}/comment-count", h.HandleCommentCount())
	h.mux.Handle("POST /api/easter-eggs/{eggId}/upvote", h.AuthenticatedOnly(h.HandleUpvote()))
	h.mux.Handle("GET /api/easter-eggs/{eggId}/like-status", h.AuthenticatedOnly(h.HandleLikeStatus()))
	h.mux.Handle("GET /api/easter-eggs/{eggId}/upvote-count", h.HandleUpvoteCount())

	h.mux.Handle("POST /api/comments", h.AuthenticatedOnly(h.HandleCreateComment()))
	h.mux.Handle("POST /api/comments/{commentId}/like", h.AuthenticatedOnly(h.HandleLikeComment()))
}

func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func(ctx context.Context) {
			if err := recover(); err != nil {
				slog.ErrorContext(
					ctx,
					"recovered from panic",
					"error",
					err,
					"stack",
					string(debug.Stack()),
				)

				respondMessage(w, r, http.StatusInternalServerError, "Internal server error")
			}
		}(r.Context())

		next.ServeHTTP(w, r)
	})
}

func (h *Handler) HandleHealth() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, r, http.StatusOK, map[string]any{
			"status":    "OK",
			"timestamp": time.Now().UTC(),
		})
	})
}

func (h *Handler) HandleCatalog() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, r, http.StatusOK, h.eggsSvc.Catalog())
	})
}
