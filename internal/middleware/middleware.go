package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nahidhasan98/icon-sync/internal/logger"
	"github.com/nahidhasan98/icon-sync/internal/models"
)

// DefaultRequestsPerMinute is used when New is given a non-positive limit
const DefaultRequestsPerMinute = 60

// DefaultPublicPaths skip API key auth. The webhook carries its own signature.
var DefaultPublicPaths = []string{"/health", "/webhook/github"}

// Middleware represents the middleware dependencies
type Middleware struct {
	log         *logger.Logger
	rateLimiter *RateLimiter
	apiKeys     [][]byte
	public      map[string]bool
}

// New creates a new middleware instance
func New(log *logger.Logger, requestsPerMinute int) *Middleware {
	if requestsPerMinute <= 0 {
		requestsPerMinute = DefaultRequestsPerMinute
	}
	m := &Middleware{
		log:         log,
		rateLimiter: NewRateLimiter(requestsPerMinute, time.Minute),
	}
	m.SetPublicPaths(DefaultPublicPaths...)
	return m
}

// SetAPIKeys sets the valid API keys for authentication
func (m *Middleware) SetAPIKeys(keys []string) {
	m.apiKeys = m.apiKeys[:0]
	for _, key := range keys {
		m.apiKeys = append(m.apiKeys, []byte(key))
	}
}

// SetPublicPaths replaces the set of paths served without an API key
func (m *Middleware) SetPublicPaths(paths ...string) {
	m.public = make(map[string]bool, len(paths))
	for _, p := range paths {
		m.public[p] = true
	}
}

// Logging logs every request. Webhook deliveries are tagged with their
// GitHub delivery id and event so retries can be traced.
func (m *Middleware) Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		fields := map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rw.statusCode,
			"bytes":       rw.written,
			"duration":    time.Since(start).String(),
			"remote_addr": clientIP(r),
			"user_agent":  r.UserAgent(),
		}
		if id := r.Header.Get("X-GitHub-Delivery"); id != "" {
			fields["delivery"] = id
			fields["event"] = r.Header.Get("X-GitHub-Event")
		}

		log := m.log.WithFields(fields)
		if rw.statusCode >= http.StatusInternalServerError {
			log.Warn("HTTP request failed")
			return
		}
		log.Info("HTTP request completed")
	})
}

// Recovery handles panics and returns a 500 error
func (m *Middleware) Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				m.log.With("stack", string(debug.Stack())).Errorf("Panic in %s %s: %v", r.Method, r.URL.Path, err)
				writeError(w, http.StatusInternalServerError, "Internal server error", "INTERNAL_ERROR")
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// RateLimit applies rate limiting based on client IP address
func (m *Middleware) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)

		if !m.rateLimiter.Allow(ip) {
			m.log.Warnf("Rate limit exceeded for client: %s", ip)
			w.Header().Set("Retry-After", strconv.Itoa(int(m.rateLimiter.window.Seconds())))
			writeError(w, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.", "TOO_MANY_REQUESTS")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// APIKeyAuth requires a valid key in X-API-Key or an Authorization bearer
// token on every non-public path.
func (m *Middleware) APIKeyAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.public[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		apiKey := r.Header.Get("X-API-Key")
		if apiKey == "" {
			apiKey, _ = strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		}

		if apiKey == "" {
			m.log.Warnf("Missing API key from %s", clientIP(r))
			writeError(w, http.StatusUnauthorized, "Missing API key", "UNAUTHORIZED")
			return
		}

		if !m.validAPIKey(apiKey) {
			m.log.Warnf("Invalid API key from %s", clientIP(r))
			writeError(w, http.StatusUnauthorized, "Invalid API key", "UNAUTHORIZED")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// validAPIKey compares against every key in constant time
func (m *Middleware) validAPIKey(provided string) bool {
	ok := 0
	for _, key := range m.apiKeys {
		ok |= subtle.ConstantTimeCompare([]byte(provided), key)
	}
	return ok == 1
}

// Security adds basic security headers. Nothing but the health check may be cached.
func (m *Middleware) Security(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")

		if r.URL.Path != "/health" {
			h.Set("Cache-Control", "no-store")
		}

		next.ServeHTTP(w, r)
	})
}

// RateLimiter is a fixed-window limiter keyed by client
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*bucket
	limit   int
	window  time.Duration
	now     func() time.Time
	checked time.Time
}

type bucket struct {
	tokens     int
	lastRefill time.Time
}

// NewRateLimiter allows requests per client per window
func NewRateLimiter(requests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		clients: make(map[string]*bucket),
		limit:   requests,
		window:  window,
		now:     time.Now,
	}
}

// Allow spends one token of the client's bucket, refilling it once the window has passed
func (rl *RateLimiter) Allow(client string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.prune(now)

	b, ok := rl.clients[client]
	if !ok || now.Sub(b.lastRefill) >= rl.window {
		b = &bucket{tokens: rl.limit, lastRefill: now}
		rl.clients[client] = b
	}

	if b.tokens == 0 {
		return false
	}
	b.tokens--
	return true
}

// Len returns the number of tracked clients
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

// prune drops buckets idle for a full window, at most once per window.
// Callers hold mu.
func (rl *RateLimiter) prune(now time.Time) {
	if now.Sub(rl.checked) < rl.window {
		return
	}
	rl.checked = now
	for client, b := range rl.clients {
		if now.Sub(b.lastRefill) >= rl.window {
			delete(rl.clients, client)
		}
	}
}

// clientIP returns the first X-Forwarded-For hop, X-Real-IP, or the
// remote host without its port
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// responseWriter captures the status code and body size
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    int
}

func (rw *responseWriter) WriteHeader(statusCode int) {
	rw.statusCode = statusCode
	rw.ResponseWriter.WriteHeader(statusCode)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += n
	return n, err
}

// writeError writes the same JSON error shape the handlers use
func writeError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(models.ErrorResponse{Error: message, Code: code})
}
