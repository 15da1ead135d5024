package eastereggs_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swiftie-vault/eastereggs"
	"github.com/swiftie-vault/eastereggs/server"
)

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("SESSION_TTL", "2h")
	t.Setenv("MAX_UPLOAD_BYTES", "1024")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.test,https://b.test")
	t.Setenv("TLS_ENABLED", "true")
	t.Setenv("SUPABASE_URL", "https://project.supabase.co")

	cfg, err := eastereggs.ConfigFromEnv()
	require.NoError(t, err)

	assert.Equal(t, 2*time.Hour, cfg.SessionTTL)
	assert.Equal(t, int64(1024), cfg.MaxUploadBytes)
	assert.Equal(t, []string{"https://a.test", "https://b.test"}, cfg.CORSAllowedOrigins)
	assert.True(t, cfg.SecureCookies)
	assert.Equal(t, server.DefaultPort, cfg.Server.Port)
	assert.Equal(t, "https://project.supabase.co", cfg.Supabase.URL)
	assert.Equal(t, eastereggs.DefaultImageBucket, cfg.Supabase.ImageBucket)
	assert.Len(t, cfg.CSRFAuthKey, 32)
	assert.NotEmpty(t, cfg.TokenSecret)
}

func TestConfigFromEnv_InvalidSessionTTL(t *testing.T) {
	t.Setenv("SESSION_TTL", "forever")

	_, err := eastereggs.ConfigFromEnv()
	require.Error(t, err)
}

func TestNewApp(t *testing.T) {
	cfg, err := eastereggs.ConfigFromEnv()
	require.NoError(t, err)

	cfg.DSN = fmt.Sprintf("file:app-%s?mode=memory&cache=shared", uuid.NewString())

	app, err := eastereggs.NewApp(t.Context(), cfg)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = app.Close()
	})

	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"OK"`)
}
