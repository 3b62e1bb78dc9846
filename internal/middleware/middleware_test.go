package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"galaxy/internal/database"
	"galaxy/internal/models"
	"galaxy/internal/session"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func newManager(t *testing.T) (*session.Manager, int) {
	t.Helper()
	log := zaptest.NewLogger(t)
	store, err := database.Open(context.Background(), filepath.Join(t.TempDir(), "mw.db"), log)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	id, err := store.InsertUser(context.Background(), &models.User{
		RealName: "Ada", Username: "ada", Email: "ada@example.com", Password: "x",
		Profession: "Engineer", ProfessionGroup: "engineer", StarColor: "#89ABCD",
	})
	require.NoError(t, err)

	m := session.NewManager(store, session.Options{Secret: []byte("test-secret"), Expiration: time.Hour}, log)
	return m, id
}

func TestRequireAuthRedirectsAnonymous(t *testing.T) {
	rec := httptest.NewRecorder()
	RequireAuth(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboard", nil))

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
}

func TestRequireAuthRedirectsJSONClients(t *testing.T) {
	for _, header := range []struct{ key, value string }{
		{"Accept", "application/json"},
		{"X-Requested-With", "XMLHttpRequest"},
	} {
		req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
		req.Header.Set(header.key, header.value)
		rec := httptest.NewRecorder()
		RequireAuth(okHandler).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusFound, rec.Code, header.key)
		assert.Equal(t, "/login", rec.Header().Get("Location"), header.key)
	}
}

func TestSessionMiddlewareAttachesSession(t *testing.T) {
	m, userID := newManager(t)

	login := httptest.NewRecorder()
	_, err := m.Start(context.Background(), login, userID, "ada")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	for _, c := range login.Result().Cookies() {
		req.AddCookie(c)
	}

	var seen *session.Session
	h := SessionMiddleware(m, zaptest.NewLogger(t))(RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = session.FromContext(r.Context())
	})))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.NotNil(t, seen)
	assert.Equal(t, userID, seen.UserID())
	assert.Equal(t, "ada", seen.Username())
}

func TestSessionMiddlewareClearsBadCookie(t *testing.T) {
	m, _ := newManager(t)

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: "not-a-token"})
	rec := httptest.NewRecorder()
	SessionMiddleware(m, zaptest.NewLogger(t))(RequireAuth(okHandler)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusFound, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, session.CookieName, cookies[0].Name)
	assert.Less(t, cookies[0].MaxAge, 0)
}

func TestLoggerRecordsStatus(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	h := chimw.RequestID(Logger(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/brew", nil))

	entries := logs.FilterMessage("request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "GET", fields["method"])
	assert.Equal(t, "/brew", fields["path"])
	assert.EqualValues(t, http.StatusTeapot, fields["status"])
	assert.NotEmpty(t, fields["request_id"])
}

func TestSecureHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SecureHeadersMiddleware(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Contains(t, rec.Header().Get("Content-Security-Policy"), "default-src 'self'")
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestRateLimiterBlocksPostsOnly(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute, zaptest.NewLogger(t))
	h := rl.Middleware(okHandler)

	do := func(method string) int {
		req := httptest.NewRequest(method, "/login", nil)
		req.RemoteAddr = "10.0.0.1:4242"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, do(http.MethodPost))
	assert.Equal(t, http.StatusOK, do(http.MethodPost))
	assert.Equal(t, http.StatusTooManyRequests, do(http.MethodPost))
	assert.Equal(t, http.StatusOK, do(http.MethodGet))
}

func TestRateLimiterRunStopsOnCancel(t *testing.T) {
	rl := NewRateLimiter(1, time.Millisecond, zaptest.NewLogger(t))
	require.True(t, rl.allow("10.0.0.2"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rl.Run(ctx) }()

	require.Eventually(t, func() bool {
		rl.mu.Lock()
		defer rl.mu.Unlock()
		return len(rl.clients) == 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
