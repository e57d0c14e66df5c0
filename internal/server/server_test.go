package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nahidhasan98/icon-sync/internal/config"
	"github.com/nahidhasan98/icon-sync/internal/deliveries"
	"github.com/nahidhasan98/icon-sync/internal/handlers"
	"github.com/nahidhasan98/icon-sync/internal/logger"
	"github.com/nahidhasan98/icon-sync/internal/reconcile"
)

type noSync struct{}

func (noSync) Run(context.Context, reconcile.Request) (*reconcile.Result, error)  { return nil, nil }
func (noSync) Plan(context.Context, reconcile.Request) (*reconcile.Result, error) { return nil, nil }

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	db, err := deliveries.Open(filepath.Join(t.TempDir(), "deliveries.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := config.Default()
	cfg.Security.APIKeys = []string{"a-secure-admin-key"}

	h := handlers.New(noSync{}, db, nil, handlers.Options{WebhookSecret: "s"}, logger.Nop())
	ts := httptest.NewServer(New(cfg, h, logger.Nop()).Routes())
	t.Cleanup(ts.Close)
	return ts
}

func TestRoutes(t *testing.T) {
	ts := newTestServer(t)

	get := func(path, key string) int {
		req, err := http.NewRequest(http.MethodGet, ts.URL+path, nil)
		require.NoError(t, err)
		if key != "" {
			req.Header.Set("X-API-Key", key)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusOK, get("/health", ""))
	assert.Equal(t, http.StatusUnauthorized, get("/deliveries", ""))
	assert.Equal(t, http.StatusOK, get("/deliveries", "a-secure-admin-key"))
	assert.Equal(t, http.StatusNotFound, get("/deliveries/unknown", "a-secure-admin-key"))
	assert.Equal(t, http.StatusMethodNotAllowed, get("/webhook/github", ""))

	resp, err := http.Post(ts.URL+"/webhook/github", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
