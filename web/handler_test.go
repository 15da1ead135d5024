package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swiftie-vault/eastereggs/auth"
	"github.com/swiftie-vault/eastereggs/db/sqlite3"
	"github.com/swiftie-vault/eastereggs/discuss"
	"github.com/swiftie-vault/eastereggs/eggs"
	"github.com/swiftie-vault/eastereggs/likes"
	"github.com/swiftie-vault/eastereggs/markdown"
	"github.com/swiftie-vault/eastereggs/media"
	"github.com/swiftie-vault/eastereggs/web"
)

type fakeUploader struct {
	mu      sync.Mutex
	uploads []media.Upload
}

func (u *fakeUploader) Upload(_ context.Context, upload media.Upload) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.uploads = append(u.uploads, upload)

	return fmt.Sprintf("https://cdn.test/%s/%s/%s", upload.Kind, upload.OwnerID, upload.Filename), nil
}

func (u *fakeUploader) Delete(context.Context, string) error {
	return nil
}

func newServer(t *testing.T, uploader media.Uploader) *httptest.Server {
	t.Helper()

	db, err := sqlite3.NewDB(t.Context(), fmt.Sprintf("file:web-%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = db.Close()
	})

	require.NoError(t, sqlite3.MigrateUp(t.Context(), db))

	authSvc := auth.NewService(
		sqlite3.NewUserRepository(db),
		sqlite3.NewSessionRepository(db),
		auth.NewTokens("test-token-secret"),
		0,
	)
	likesSvc := likes.NewService(sqlite3.NewLikeRepository(db))
	discussSvc := discuss.NewService(sqlite3.NewCommentRepository(db), likesSvc)
	eggsSvc := eggs.NewService(sqlite3.NewEggRepository(db), uploader, markdown.NewRenderer())

	cookieStore := web.NewCookieStore([]byte("0123456789abcdef0123456789abcdef"), false, 0)

	h := web.NewHandler(authSvc, eggsSvc, discussSvc, likesSvc, cookieStore, web.Config{
		SessionName:        "eastereggs",
		CSRFAuthKey:        []byte("abcdef0123456789abcdef0123456789"),
		CSRFTrustedOrigins: nil,
		CORSAllowedOrigins: []string{"http://localhost:5173"},
		SecureCookies:      false,
		MaxUploadBytes:     1 << 20,
	})

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	return srv
}

type apiClient struct {
	t      *testing.T
	srv    *httptest.Server
	client *http.Client
	header http.Header
}

func newClient(t *testing.T, srv *httptest.Server) *apiClient {
	t.Helper()

	return &apiClient{t: t, srv: srv, client: srv.Client(), header: http.Header{}}
}

func (c *apiClient) withToken(token string) *apiClient {
	header := c.header.Clone()
	header.Set("Authorization", "Bearer "+token)

	return &apiClient{t: c.t, srv: c.srv, client: c.client, header: header}
}

func (c *apiClient) send(req *http.Request) (int, map[string]any) {
	c.t.Helper()

	for key, values := range c.header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	resp, err := c.client.Do(req)
	require.NoError(c.t, err)

	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)

	var body map[string]any
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(c.t, json.Unmarshal(raw, &body))
	}

	return resp.StatusCode, body
}

func (c *apiClient) do(method, path string, payload any) (int, map[string]any) {
	c.t.Helper()

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(c.t, err)

		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(c.t.Context(), method, c.srv.URL+path, body)
	require.NoError(c.t, err)

	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.send(req)
}

func (c *apiClient) getList(path string) (int, []map[string]any) {
	c.t.Helper()

	req, err := http.NewRequestWithContext(c.t.Context(), http.MethodGet, c.srv.URL+path, nil)
	require.NoError(c.t, err)

	for key, values := range c.header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	resp, err := c.client.Do(req)
	require.NoError(c.t, err)

	defer resp.Body.Close()

	var list []map[string]any
	if resp.StatusCode == http.StatusOK {
		require.NoError(c.t, json.NewDecoder(resp.Body).Decode(&list))
	}

	return resp.StatusCode, list
}

func (c *apiClient) register(username string) string {
	c.t.Helper()

	status, body := c.do(http.MethodPost, "/api/auth/register", map[string]string{
		"username": username,
		"password": "lover1989",
	})
	require.Equal(c.t, http.StatusCreated, status, body)

	token, ok := body["sessionToken"].(string)
	require.True(c.t, ok)
	require.NotEmpty(c.t, token)

	return token
}

func TestHealthAndCatalog(t *testing.T) {
	t.Parallel()

	c := newClient(t, newServer(t, media.DisabledUploader{}))

	status, body := c.do(http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "OK", body["status"])

	status, body = c.do(http.MethodGet, "/api/catalog", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body["albums"], "Folklore")
}

func TestAuthFlow(t *testing.T) {
	t.Parallel()

	c := newClient(t, newServer(t, media.DisabledUploader{}))

	token := c.register("swiftie13")

	status, body := c.do(http.MethodPost, "/api/auth/register", map[string]string{
		"username": "swiftie13",
		"password": "lover1989",
	})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "Username already exists", body["error"])

	status, body = c.do(http.MethodPost, "/api/auth/register", map[string]string{"username": "nopass"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Field password failed on required", body["error"])

	status, body = c.withToken(token).do(http.MethodGet, "/api/auth/me", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "swiftie13", body["user"].(map[string]any)["username"])

	status, _ = c.do(http.MethodPost, "/api/auth/login", map[string]string{
		"username": "swiftie13",
		"password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body = c.do(http.MethodPost, "/api/auth/login", map[string]string{
		"username": "swiftie13",
		"password": "lover1989",
	})
	require.Equal(t, http.StatusOK, status)

	second := body["sessionToken"].(string)

	status, _ = c.withToken(second).do(http.MethodPut, "/api/users/profile", map[string]string{"username": "x"})
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = c.withToken(second).do(http.MethodPost, "/api/auth/logout", nil)
	assert.Equal(t, http.StatusOK, status)

	status, body = c.withToken(second).do(http.MethodGet, "/api/auth/me", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Authentication required", body["error"])

	status, _ = c.withToken(token).do(http.MethodGet, "/api/auth/me", nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = c.withToken("not-a-token").do(http.MethodGet, "/api/easter-eggs", nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestEggLifecycle(t *testing.T) {
	t.Parallel()

	c := newClient(t, newServer(t, media.DisabledUploader{}))

	alice := c.withToken(c.register("alice"))
	bob := c.withToken(c.register("bob"))

	status, _ := c.do(http.MethodPost, "/api/easter-eggs", map[string]string{"title": "x", "description": "y"})
	require.Equal(t, http.StatusUnauthorized, status)

	status, body := alice.do(http.MethodPost, "/api/easter-eggs", map[string]any{"title": "  ", "description": "y"})
	require.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid title: title is required", body["error"])

	status, body = alice.do(http.MethodPost, "/api/easter-eggs", map[string]any{"title": "x", "description": "y", "album": "Unknown"})
	require.Equal(t, http.StatusBadRequest, status)

	status, egg := alice.do(http.MethodPost, "/api/easter-eggs", map[string]any{
		"title":       "Clock at midnight",
		"description": "Look at the **clock**",
		"album":       "Lover",
		"image_url":   []string{"https://img.test/1.png", "not a url"},
	})
	require.Equal(t, http.StatusCreated, status, egg)

	eggID := egg["id"].(string)
	assert.Equal(t, "alice", egg["username"])
	assert.Equal(t, []any{"https://img.test/1.png"}, egg["image_url"])
	assert.Contains(t, egg["description_html"], "<strong>clock</strong>")

	status, list := c.getList("/api/easter-eggs?album=Lover")
	require.Equal(t, http.StatusOK, status)
	require.Len(t, list, 1)
	assert.Equal(t, eggID, list[0]["id"])

	status, _ = c.getList("/api/easter-eggs?sort=random")
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = bob.do(http.MethodPut, "/api/easter-eggs/"+eggID, map[string]string{"title": "Mine now"})
	assert.Equal(t, http.StatusForbidden, status)

	status, body = alice.do(http.MethodPut, "/api/easter-eggs/"+eggID, map[string]string{"title": "Clock at 13"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Clock at 13", body["title"])
	assert.Equal(t, "Look at the **clock**", body["description"])

	status, body = bob.do(http.MethodPost, "/api/easter-eggs/"+eggID+"/upvote", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["liked"])
	assert.Equal(t, "liked", body["action"])
	assert.InDelta(t, 1, body["upvotes_count"], 0)

	status, body = bob.do(http.MethodGet, "/api/easter-eggs/"+eggID+"/like-status", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["liked"])

	status, body = alice.do(http.MethodGet, "/api/easter-eggs/"+eggID+"/like-status", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["liked"])
	assert.InDelta(t, 1, body["upvotes_count"], 0)

	status, body = c.do(http.MethodGet, "/api/easter-eggs/"+eggID+"/upvote-count", nil)
	require.Equal(t, http.StatusOK, status)
	assert.InDelta(t, 1, body["upvotes_count"], 0)

	status, body = bob.do(http.MethodGet, "/api/users/me/likes", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []any{eggID}, body["easter_egg_ids"])

	status, _ = c.getList("/api/easter-eggs?liked=true")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, list = bob.getList("/api/easter-eggs?liked=true")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, list, 1)

	status, list = alice.getList("/api/easter-eggs?liked=true")
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, list)

	status, root := bob.do(http.MethodPost, "/api/comments", map[string]string{
		"easter_egg_id": eggID,
		"content":       "Thirteen everywhere",
	})
	require.Equal(t, http.StatusCreated, status, root)

	rootID := root["id"].(string)

	status, reply := alice.do(http.MethodPost, "/api/comments", map[string]string{
		"easter_egg_id": eggID,
		"content":       "[REPLY_TO:" + rootID + "] right?",
	})
	require.Equal(t, http.StatusCreated, status, reply)
	assert.Equal(t, rootID, reply["parent_comment_id"])
	assert.Equal(t, "right?", reply["content"])

	status, _ = alice.do(http.MethodPost, "/api/comments", map[string]string{
		"easter_egg_id": "missing",
		"content":       "hello",
	})
	assert.Equal(t, http.StatusNotFound, status)

	status, body = alice.do(http.MethodPost, "/api/comments/"+rootID+"/like", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["liked"])
	assert.InDelta(t, 1, body["upvotes_count"], 0)

	status, comments := alice.getList("/api/easter-eggs/" + eggID + "/comments")
	require.Equal(t, http.StatusOK, status)
	require.Len(t, comments, 1)
	assert.Equal(t, rootID, comments[0]["id"])
	assert.Equal(t, true, comments[0]["user_liked"])
	assert.InDelta(t, 1, comments[0]["upvotes_count"], 0)

	replies := comments[0]["replies"].([]any)
	require.Len(t, replies, 1)
	assert.Equal(t, reply["id"], replies[0].(map[string]any)["id"])
	assert.InDelta(t, 1, replies[0].(map[string]any)["depth"], 0)

	status, comments = c.getList("/api/easter-eggs/" + eggID + "/comments")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, comments[0]["user_liked"])

	status, body = c.do(http.MethodGet, "/api/easter-eggs/"+eggID+"/comment-count", nil)
	require.Equal(t, http.StatusOK, status)
	assert.InDelta(t, 2, body["count"], 0)

	status, body = c.do(http.MethodGet, "/api/easter-eggs/"+eggID, nil)
	require.Equal(t, http.StatusOK, status)
	assert.InDelta(t, 2, body["comments_count"], 0)

	status, _ = bob.do(http.MethodDelete, "/api/easter-eggs/"+eggID, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, body = alice.do(http.MethodDelete, "/api/easter-eggs/"+eggID, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["success"])

	status, body = c.do(http.MethodGet, "/api/easter-eggs/"+eggID, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Easter egg not found", body["error"])

	status, _ = c.getList("/api/easter-eggs/" + eggID + "/comments")
	assert.Equal(t, http.StatusNotFound, status)
}

func multipartRequest(t *testing.T, url string, fields map[string]string, fileField, fileName, contentType string) *http.Request {
	t.Helper()

	var buf bytes.Buffer

	mw := multipart.NewWriter(&buf)

	for key, value := range fields {
		require.NoError(t, mw.WriteField(key, value))
	}

	if fileField != "" {
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, fileField, fileName))
		header.Set("Content-Type", contentType)

		part, err := mw.CreatePart(header)
		require.NoError(t, err)

		_, err = part.Write([]byte("fake media bytes"))
		require.NoError(t, err)
	}

	require.NoError(t, mw.Close())

	req, err := http.NewRequestWithContext(t.Context(), http.MethodPost, url, &buf)
	require.NoError(t, err)

	req.Header.Set("Content-Type", mw.FormDataContentType())

	return req
}

func TestCreateEgg_Multipart(t *testing.T) {
	t.Parallel()

	uploader := &fakeUploader{}
	srv := newServer(t, uploader)
	c := newClient(t, srv)
	alice := c.withToken(c.register("alice"))

	req := multipartRequest(t, srv.URL+"/api/easter-eggs", map[string]string{
		"title":       "Cardigan",
		"description": "Sequins",
		"album":       "Folklore",
		"image_url":   `["https://img.test/old.png"]`,
	}, "image", "cardigan.png", "image/png")

	status, egg := alice.send(req)
	require.Equal(t, http.StatusCreated, status, egg)

	require.Len(t, uploader.uploads, 1)
	assert.Equal(t, media.KindImage, uploader.uploads[0].Kind)
	assert.Equal(t, "cardigan.png", uploader.uploads[0].Filename)

	assert.Equal(t, []any{
		"https://img.test/old.png",
		"https://cdn.test/image/" + egg["id"].(string) + "/cardigan.png",
	}, egg["image_url"])

	req = multipartRequest(t, srv.URL+"/api/easter-eggs", map[string]string{
		"title":       "Wrong kind",
		"description": "Video in the image slot",
	}, "image", "clip.mp4", "video/mp4")

	status, _ = alice.send(req)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestCreateEgg_StorageDisabled(t *testing.T) {
	t.Parallel()

	srv := newServer(t, media.DisabledUploader{})
	c := newClient(t, srv)
	alice := c.withToken(c.register("alice"))

	req := multipartRequest(t, srv.URL+"/api/easter-eggs", map[string]string{
		"title":       "Cardigan",
		"description": "Sequins",
	}, "video", "cardigan.mp4", "video/mp4")

	status, body := alice.send(req)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "Media storage is not configured", body["error"])

	status, list := c.getList("/api/easter-eggs")
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, list)
}

func TestCreateEgg_TooLarge(t *testing.T) {
	t.Parallel()

	srv := newServer(t, &fakeUploader{})
	c := newClient(t, srv)
	alice := c.withToken(c.register("alice"))

	status, _ := alice.do(http.MethodPost, "/api/easter-eggs", map[string]string{
		"title":       "Long",
		"description": strings.Repeat("a", (1<<20)+1024),
	})
	assert.Equal(t, http.StatusRequestEntityTooLarge, status)
}

func TestCookieSessionRequiresCSRFToken(t *testing.T) {
	t.Parallel()

	srv := newServer(t, media.DisabledUploader{})

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	c := newClient(t, srv)
	c.client = &http.Client{Jar: jar}

	status, body := c.do(http.MethodPost, "/api/auth/register", map[string]string{
		"username": "cookie",
		"password": "lover1989",
	})
	require.Equal(t, http.StatusCreated, status, body)

	status, body = c.do(http.MethodGet, "/api/auth/me", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "cookie", body["user"].(map[string]any)["username"])

	egg := map[string]string{"title": "Via cookie", "description": "Browser post"}

	status, body = c.do(http.MethodPost, "/api/easter-eggs", egg)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "Invalid CSRF token", body["error"])

	status, body = c.do(http.MethodGet, "/api/auth/csrf", nil)
	require.Equal(t, http.StatusOK, status)

	token, ok := body["csrfToken"].(string)
	require.True(t, ok)
	require.NotEmpty(t, token)

	c.header.Set("X-CSRF-Token", token)

	status, body = c.do(http.MethodPost, "/api/easter-eggs", egg)
	assert.Equal(t, http.StatusCreated, status, body)

	status, _ = c.do(http.MethodPost, "/api/auth/logout", nil)
	require.Equal(t, http.StatusOK, status)

	status, _ = c.do(http.MethodGet, "/api/auth/me", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestRegister_SessionCookieOverPlainHTTP(t *testing.T) {
	t.Parallel()

	srv := newServer(t, media.DisabledUploader{})

	req, err := http.NewRequestWithContext(
		t.Context(),
		http.MethodPost,
		srv.URL+"/api/auth/register",
		strings.NewReader(`{"username":"reputation","password":"lover1989"}`),
	)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)

	defer resp.Body.Close()

	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var session *http.Cookie

	for _, cookie := range resp.Cookies() {
		if cookie.Name == "eastereggs" {
			session = cookie
		}
	}

	require.NotNil(t, session)
	assert.False(t, session.Secure)
	assert.True(t, session.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, session.SameSite)
	assert.Equal(t, "/", session.Path)
}

func TestNewCookieStore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		secure     bool
		maxAge     time.Duration
		wantMaxAge int
	}{
		{name: "plain http keeps default max age", secure: false, maxAge: 0, wantMaxAge: 86400 * 30},
		{name: "tls with session ttl", secure: true, maxAge: 2 * time.Hour, wantMaxAge: 7200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store := web.NewCookieStore([]byte("0123456789abcdef0123456789abcdef"), tt.secure, tt.maxAge)

			assert.Equal(t, tt.secure, store.Options.Secure)
			assert.True(t, store.Options.HttpOnly)
			assert.Equal(t, http.SameSiteLaxMode, store.Options.SameSite)
			assert.Equal(t, tt.wantMaxAge, store.Options.MaxAge)
		})
	}
}
