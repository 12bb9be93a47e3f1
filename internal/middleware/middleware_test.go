package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/enoki/backend/internal/model/chat"
)

func echoIdentity() http.Handler {
	return Identity(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(IdentityFrom(r.Context()).Owner()))
	}))
}

func TestIdentityFromHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(UserIDHeader, "42")
	req.Header.Set(AnonIDHeader, "abc")
	resp := httptest.NewRecorder()
	echoIdentity().ServeHTTP(resp, req)
	assert.Equal(t, "user:42", resp.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: AnonCookieName, Value: "cookie-id"})
	resp = httptest.NewRecorder()
	echoIdentity().ServeHTTP(resp, req)
	assert.Equal(t, "anon:cookie-id", resp.Body.String())
	assert.Empty(t, resp.Result().Cookies())
}

func TestIdentityIssuesAnonymousCookie(t *testing.T) {
	resp := httptest.NewRecorder()
	echoIdentity().ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))

	cookies := resp.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, AnonCookieName, cookies[0].Name)
	assert.Equal(t, "anon:"+cookies[0].Value, resp.Body.String())
}

func TestRateLimiter(t *testing.T) {
	now := time.Unix(1700000000, 0)
	l := NewRateLimiter(5 * time.Second)
	l.now = func() time.Time { return now }

	ok, _ := l.Allow("user:1")
	assert.True(t, ok)
	ok, wait := l.Allow("user:1")
	assert.False(t, ok)
	assert.InDelta(t, 5, wait.Seconds(), 0.01)

	ok, _ = l.Allow("user:2")
	assert.True(t, ok)

	now = now.Add(5 * time.Second)
	ok, _ = l.Allow("user:1")
	assert.True(t, ok)
}

func TestRateLimitMiddlewareResponds429(t *testing.T) {
	l := NewRateLimiter(5 * time.Second)
	h := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req = req.WithContext(WithIdentity(req.Context(), chat.Identity{UserID: "1"}))
		resp := httptest.NewRecorder()
		h.ServeHTTP(resp, req)
		return resp
	}

	assert.Equal(t, http.StatusOK, send().Code)
	resp := send()
	require.Equal(t, http.StatusTooManyRequests, resp.Code)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.EqualValues(t, 5, body["retry_after"])
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"http://localhost:5173"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/chat", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusNoContent, resp.Code)
	assert.Equal(t, "http://localhost:5173", resp.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/chat", nil)
	req.Header.Set("Origin", "http://evil.example")
	resp = httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Empty(t, resp.Header().Get("Access-Control-Allow-Origin"))
}
