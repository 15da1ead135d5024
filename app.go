package eastereggs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/nasermirzaei89/env"
	"github.com/swiftie-vault/eastereggs/auth"
	"github.com/swiftie-vault/eastereggs/db/sqlite3"
	"github.com/swiftie-vault/eastereggs/discuss"
	"github.com/swiftie-vault/eastereggs/eggs"
	"github.com/swiftie-vault/eastereggs/likes"
	"github.com/swiftie-vault/eastereggs/markdown"
	"github.com/swiftie-vault/eastereggs/media"
	"github.com/swiftie-vault/eastereggs/media/supabase"
	"github.com/swiftie-vault/eastereggs/metrics"
	"github.com/swiftie-vault/eastereggs/random"
	"github.com/swiftie-vault/eastereggs/server"
	"github.com/swiftie-vault/eastereggs/web"
)

const (
	DefaultDSN            = "file:eastereggs.db"
	DefaultSessionName    = "eastereggs"
	DefaultImageBucket    = "easter-egg-images"
	DefaultVideoBucket    = "easter-egg-videos"
	sessionPurgeInterval  = time.Hour
	bloomFilterCapacity   = 10_000
	bloomFilterFalseRatio = 0.01
)

type Config struct {
	DSN    string
	Server server.Server

	TokenSecret        string
	SessionTTL         time.Duration
	SessionName        string
	SessionKey         string
	CSRFAuthKey        string
	CSRFTrustedOrigins []string
	CORSAllowedOrigins []string
	SecureCookies      bool

	Supabase       supabase.Config
	MaxUploadBytes int64
}

// ConfigFromEnv reads the configuration from environment variables. Secrets
// that are not set are generated, so sessions do not survive a restart.
func ConfigFromEnv() (Config, error) {
	sessionTTL, err := time.ParseDuration(env.GetString("SESSION_TTL", auth.DefaultSessionTTL.String()))
	if err != nil {
		return Config{}, fmt.Errorf("failed to parse SESSION_TTL: %w", err)
	}

	maxUploadBytes, err := strconv.ParseInt(env.GetString("MAX_UPLOAD_BYTES", strconv.FormatInt(web.DefaultMaxUploadBytes, 10)), 10, 64)
	if err != nil {
		return Config{}, fmt.Errorf("failed to parse MAX_UPLOAD_BYTES: %w", err)
	}

	srv := server.Server{
		Port: env.GetString("PORT", server.DefaultPort),
		Host: env.GetString("HOST", ""),
		TLS: server.ServerTLS{
			Enabled: env.GetBool("TLS_ENABLED", false),
			Mode:    env.GetString("TLS_MODE", server.DefaultTLSMode),
			AutoCert: &server.ServerTLSAutoCert{
				CacheDir: env.GetString("TLS_AUTOCERT_CACHE_DIR", "./cert-cache"),
				Domains:  env.GetStringSlice("TLS_AUTOCERT_DOMAINS", []string{}),
				Email:    env.GetString("TLS_AUTOCERT_EMAIL", ""),
			},
			CertFile: env.GetString("TLS_CERT_FILE", ""),
			KeyFile:  env.GetString("TLS_KEY_FILE", ""),
		},
	}

	cfg := Config{
		DSN:                env.GetString("DB_DSN", DefaultDSN),
		Server:             srv,
		TokenSecret:        env.GetString("TOKEN_SECRET", random.String(32)),
		SessionTTL:         sessionTTL,
		SessionName:        env.GetString("SESSION_NAME", DefaultSessionName),
		SessionKey:         env.GetString("SESSION_KEY", random.String(32)),
		CSRFAuthKey:        env.GetString("CSRF_AUTH_KEY", random.String(16)),
		CSRFTrustedOrigins: env.GetStringSlice("CSRF_TRUSTED_ORIGINS", []string{}),
		CORSAllowedOrigins: env.GetStringSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
		SecureCookies:      env.GetBool("SECURE_COOKIES", srv.TLS.Enabled),
		Supabase: supabase.Config{
			URL:         env.GetString("SUPABASE_URL", ""),
			Key:         env.GetString("SUPABASE_KEY", ""),
			ImageBucket: env.GetString("SUPABASE_IMAGE_BUCKET", DefaultImageBucket),
			VideoBucket: env.GetString("SUPABASE_VIDEO_BUCKET", DefaultVideoBucket),
		},
		MaxUploadBytes: maxUploadBytes,
	}

	return cfg, nil
}

type App struct {
	server  *server.Server
	handler *web.Handler
	authSvc *auth.Service
	db      *sql.DB
}

func NewApp(ctx context.Context, cfg Config) (*App, error) {
	db, err := sqlite3.NewDB(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}

	app, err := newApp(ctx, db, cfg)
	if err != nil {
		closeErr := db.Close()
		if closeErr != nil {
			slog.ErrorContext(ctx, "failed to close database", "error", closeErr)
		}

		return nil, err
	}

	return app, nil
}

func newApp(ctx context.Context, db *sql.DB, cfg Config) (*App, error) {
	err := sqlite3.MigrateUp(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("failed to run database migrations: %w", err)
	}

	authSvc := auth.NewService(
		sqlite3.NewUserRepository(db),
		sqlite3.NewSessionRepository(db),
		auth.NewTokens(cfg.TokenSecret),
		cfg.SessionTTL,
	)

	err = authSvc.LoadBloomFilter(ctx, bloomFilterCapacity, bloomFilterFalseRatio)
	if err != nil {
		return nil, fmt.Errorf("failed to load bloom filter: %w", err)
	}

	uploader, err := newUploader(ctx, cfg.Supabase)
	if err != nil {
		return nil, fmt.Errorf("failed to create media uploader: %w", err)
	}

	likesSvc := likes.NewService(sqlite3.NewLikeRepository(db))
	discussSvc := discuss.NewService(sqlite3.NewCommentRepository(db), likesSvc)
	eggsSvc := eggs.NewService(sqlite3.NewEggRepository(db), uploader, markdown.NewRenderer())

	cookieStore := web.NewCookieStore([]byte(cfg.SessionKey), cfg.SecureCookies, cfg.SessionTTL)

	httpHandler := web.NewHandler(authSvc, eggsSvc, discussSvc, likesSvc, cookieStore, web.Config{
		SessionName:        cfg.SessionName,
		CSRFAuthKey:        []byte(cfg.CSRFAuthKey),
		CSRFTrustedOrigins: cfg.CSRFTrustedOrigins,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		SecureCookies:      cfg.SecureCookies,
		MaxUploadBytes:     cfg.MaxUploadBytes,
	})

	srv := cfg.Server

	app := &App{
		server:  &srv,
		handler: httpHandler,
		authSvc: authSvc,
		db:      db,
	}

	return app, nil
}

// newUploader returns the Supabase uploader, or one that rejects every upload
// when Supabase is not configured.
func newUploader(ctx context.Context, cfg supabase.Config) (media.Uploader, error) {
	uploader, err := supabase.NewUploader(cfg)
	if err != nil {
		if errors.Is(err, media.ErrStorageDisabled) {
			slog.WarnContext(ctx, "media storage is disabled, only url posts are accepted")

			return metrics.InstrumentUploader(media.DisabledUploader{}), nil
		}

		return nil, err
	}

	return metrics.InstrumentUploader(uploader), nil
}

func (app *App) Handler() *web.Handler {
	return app.handler
}

func (app *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	defer func() {
		err := app.Close()
		if err != nil {
			slog.ErrorContext(ctx, "failed to close app", "error", err)
		}
	}()

	go app.purgeSessions(ctx)

	err := app.server.Run(ctx, app.handler)
	if err != nil {
		return fmt.Errorf("failed to run server: %w", err)
	}

	return nil
}

func (app *App) Close() error {
	err := app.db.Close()
	if err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	return nil
}

func (app *App) purgeSessions(ctx context.Context) {
	ticker := time.NewTicker(sessionPurgeInterval)
	defer ticker.Stop()

	for {
		deleted, err := app.authSvc.PurgeExpiredSessions(ctx)
		if err != nil {
			slog.ErrorContext(ctx, "failed to purge expired sessions", "error", err)
		} else if deleted > 0 {
			slog.InfoContext(ctx, "purged expired sessions", "count", deleted)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ParseLogLevel maps debug, info, warn and error to slog levels. Anything
// else falls back to info.
func ParseLogLevel(levelStr string) slog.Level {
	switch levelStr {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		slog.Warn("unknown log level, defaulting to info", "level", levelStr)

		return slog.LevelInfo
	}
}
