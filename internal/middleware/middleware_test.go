package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nahidhasan98/icon-sync/internal/logger"
)

var ok = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestAPIKeyAuth(t *testing.T) {
	m := New(logger.Nop(), 0)
	m.SetAPIKeys([]string{"a-secure-admin-key"})
	h := m.APIKeyAuth(ok)

	tests := []struct {
		name   string
		path   string
		header map[string]string
		want   int
		body   string
	}{
		{"health is public", "/health", nil, http.StatusOK, ""},
		{"webhook is public", "/webhook/github", nil, http.StatusOK, ""},
		{"missing key", "/deliveries", nil, http.StatusUnauthorized, `{"error":"Missing API key","code":"UNAUTHORIZED"}`},
		{"wrong key", "/deliveries", map[string]string{"X-API-Key": "nope"}, http.StatusUnauthorized, `{"error":"Invalid API key","code":"UNAUTHORIZED"}`},
		{"header key", "/deliveries", map[string]string{"X-API-Key": "a-secure-admin-key"}, http.StatusOK, ""},
		{"bearer key", "/plan", map[string]string{"Authorization": "Bearer a-secure-admin-key"}, http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
			if tt.body != "" {
				assert.JSONEq(t, tt.body, rec.Body.String())
			}
		})
	}
}

func TestRateLimiter(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return clock }

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.2"))

	clock = clock.Add(time.Minute)
	assert.True(t, rl.Allow("10.0.0.1"))
}

func TestRateLimitMiddleware(t *testing.T) {
	m := New(logger.Nop(), 1)
	h := m.RateLimit(ok)

	req := httptest.NewRequest(http.MethodPost, "/webhook/github", nil)
	req.Header.Set("X-Forwarded-For", "192.0.2.1, 10.0.0.1")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestRecovery(t *testing.T) {
	m := New(logger.Nop(), 0)
	h := m.Recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "INTERNAL_ERROR")
}

func TestSecurityHeaders(t *testing.T) {
	m := New(logger.Nop(), 0)
	rec := httptest.NewRecorder()
	m.Security(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/deliveries", nil))

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	rec = httptest.NewRecorder()
	m.Security(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Empty(t, rec.Header().Get("Cache-Control"))
}

func TestRateLimiter_PrunesIdleClients(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(5, time.Minute)
	rl.now = func() time.Time { return clock }

	rl.Allow("10.0.0.1")
	rl.Allow("10.0.0.2")
	assert.Equal(t, 2, rl.Len())

	clock = clock.Add(2 * time.Minute)
	rl.Allow("10.0.0.3")
	assert.Equal(t, 1, rl.Len())
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:51234"
	assert.Equal(t, "192.0.2.7", clientIP(req))

	req.Header.Set("X-Real-IP", "198.51.100.2")
	assert.Equal(t, "198.51.100.2", clientIP(req))

	req.Header.Set("X-Forwarded-For", " 203.0.113.9 , 10.0.0.1")
	assert.Equal(t, "203.0.113.9", clientIP(req))
}

func TestPublicPaths(t *testing.T) {
	m := New(logger.Nop(), 0)
	m.SetAPIKeys([]string{"a-secure-admin-key"})
	m.SetPublicPaths("/metrics")
	h := m.APIKeyAuth(ok)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogging_TagsDelivery(t *testing.T) {
	var buf bytes.Buffer
	m := New(logger.NewWithWriter(&buf, "info", "json"), 0)
	h := m.Logging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte("ignored"))
	}))

	req := httptest.NewRequest(http.MethodPost, "/webhook/github", nil)
	req.Header.Set("X-GitHub-Delivery", "72d3162e-cc78-11e3-81ab-4c9367dc0958")
	req.Header.Set("X-GitHub-Event", "push")
	h.ServeHTTP(httptest.NewRecorder(), req)

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "72d3162e-cc78-11e3-81ab-4c9367dc0958", line["delivery"])
	assert.Equal(t, "push", line["event"])
	assert.Equal(t, float64(http.StatusAccepted), line["status"])
	assert.Equal(t, float64(len("ignored")), line["bytes"])
}
