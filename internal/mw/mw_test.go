package mw

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/time/rate"
)

const testSecret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func signToken(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return signed
}

func perform(r http.Handler, method, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func bearer(token string) http.Header {
	return http.Header{"Authorization": []string{"Bearer " + token}}
}

func TestClientAuth(t *testing.T) {
	r := gin.New()
	r.GET("/me", ClientAuth(testSecret), func(c *gin.Context) {
		id, ok := ClientID(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, gin.H{"client_id": id})
	})
	exp := time.Now().Add(time.Hour).Unix()

	testCases := []struct {
		name   string
		header http.Header
		status int
		body   string
	}{
		{name: "numeric subject", header: bearer(signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": 7, "exp": exp})), status: http.StatusOK, body: `{"client_id":7}`},
		{name: "string subject", header: bearer(signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": "8", "exp": exp})), status: http.StatusOK, body: `{"client_id":8}`},
		{name: "missing header", header: nil, status: http.StatusUnauthorized},
		{name: "wrong secret", header: bearer(signToken(t, jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{"sub": 7, "exp": exp})), status: http.StatusUnauthorized},
		{name: "wrong algorithm", header: bearer(signToken(t, jwt.SigningMethodHS512, []byte(testSecret), jwt.MapClaims{"sub": 7, "exp": exp})), status: http.StatusUnauthorized},
		{name: "expired", header: bearer(signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": 7, "exp": time.Now().Add(-time.Minute).Unix()})), status: http.StatusUnauthorized},
		{name: "non-numeric subject", header: bearer(signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": "alice", "exp": exp})), status: http.StatusUnauthorized},
		{name: "zero subject", header: bearer(signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": 0, "exp": exp})), status: http.StatusUnauthorized},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := perform(r, http.MethodGet, "/me", tc.header)
			assert.Equal(t, tc.status, w.Code)
			if tc.body != "" {
				assert.JSONEq(t, tc.body, w.Body.String())
			} else {
				assert.Contains(t, w.Body.String(), `"code":"UNAUTHORIZED"`)
			}
		})
	}
}

func TestRateLimiter(t *testing.T) {
	r := gin.New()
	r.Use(RateLimiter(rate.Limit(1), 2))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/ping", nil).Code)
	assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/ping", nil).Code)

	w := perform(r, http.MethodGet, "/ping", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "RATE_LIMITED")
}

func TestRateLimiter_KeyedByClient(t *testing.T) {
	r := gin.New()
	r.GET("/ping", ClientAuth(testSecret), RateLimiter(rate.Limit(1), 1), func(c *gin.Context) { c.Status(http.StatusOK) })
	exp := time.Now().Add(time.Hour).Unix()
	seven := bearer(signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": 7, "exp": exp}))
	eight := bearer(signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": 8, "exp": exp}))

	assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/ping", seven).Code)
	assert.Equal(t, http.StatusTooManyRequests, perform(r, http.MethodGet, "/ping", seven).Code)
	// Same address, different client.
	assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/ping", eight).Code)
}

func TestResponseCache(t *testing.T) {
	rc := NewResponseCache(time.Minute)
	calls := 0
	r := gin.New()
	r.GET("/sessions", rc.Middleware(), func(c *gin.Context) {
		calls++
		c.JSON(http.StatusOK, gin.H{"calls": calls})
	})
	r.GET("/missing", rc.Middleware(), func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "nope"})
	})

	first := perform(r, http.MethodGet, "/sessions", nil)
	second := perform(r, http.MethodGet, "/sessions", nil)
	assert.JSONEq(t, `{"calls":1}`, first.Body.String())
	assert.JSONEq(t, `{"calls":1}`, second.Body.String())
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.Equal(t, "application/json; charset=utf-8", second.Header().Get("Content-Type"))

	// Different query string, different entry.
	assert.JSONEq(t, `{"calls":2}`, perform(r, http.MethodGet, "/sessions?from=2025-11-05", nil).Body.String())

	rc.Purge()
	assert.Zero(t, rc.Len())
	assert.JSONEq(t, `{"calls":3}`, perform(r, http.MethodGet, "/sessions", nil).Body.String())

	perform(r, http.MethodGet, "/missing", nil)
	assert.Equal(t, 1, rc.Len(), "errors are not cached")
}

func TestResponseCache_PurgeDuringRequest(t *testing.T) {
	rc := NewResponseCache(time.Minute)
	var mu sync.Mutex
	body := "old"
	entered := make(chan struct{})
	release := make(chan struct{})
	first := true

	r := gin.New()
	r.GET("/sessions", rc.Middleware(), func(c *gin.Context) {
		mu.Lock()
		snapshot, block := body, first
		first = false
		mu.Unlock()
		if block {
			close(entered)
			<-release
		}
		c.String(http.StatusOK, snapshot)
	})

	done := make(chan *httptest.ResponseRecorder)
	go func() { done <- perform(r, http.MethodGet, "/sessions", nil) }()
	<-entered

	// A booking commits and purges while the search is still running.
	mu.Lock()
	body = "new"
	mu.Unlock()
	rc.Purge()
	close(release)

	stale := <-done
	assert.Equal(t, "old", stale.Body.String())
	assert.Zero(t, rc.Len(), "a response computed across a purge is not stored")

	next := perform(r, http.MethodGet, "/sessions", nil)
	assert.Equal(t, "new", next.Body.String())
	assert.Empty(t, next.Header().Get("X-Cache"))
}

func TestRequestIDAndAccessLog(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	r := gin.New()
	r.Use(RequestID(), AccessLog(zap.New(core)))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	w := perform(r, http.MethodGet, "/ok", http.Header{"X-Request-Id": []string{"req-1"}})
	assert.Equal(t, "req-1", w.Header().Get("X-Request-ID"))

	w = perform(r, http.MethodGet, "/boom", nil)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zap.InfoLevel, entries[0].Level)
	assert.Equal(t, "req-1", entries[0].ContextMap()["request_id"])
	assert.Equal(t, "/ok", entries[0].ContextMap()["path"])
	assert.Equal(t, zap.ErrorLevel, entries[1].Level)
}
