package github

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nahidhasan98/icon-sync/internal/logger"
	"github.com/nahidhasan98/icon-sync/internal/store"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.Client(), srv.URL, "acme", "icons", logger.Nop())
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, v interface{}) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestGetRefAndCommit(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, userAgent, r.Header.Get("User-Agent"))
		switch r.URL.Path {
		case "/repos/acme/icons/git/ref/heads/master":
			writeJSON(t, w, 200, map[string]interface{}{"ref": "refs/heads/master", "object": map[string]string{"sha": "c1"}})
		case "/repos/acme/icons/git/commits/c1":
			writeJSON(t, w, 200, map[string]interface{}{
				"sha":     "c1",
				"tree":    map[string]string{"sha": "t1"},
				"parents": []map[string]string{{"sha": "c0"}},
			})
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	head, err := c.GetRef(ctx, "heads/master")
	require.NoError(t, err)
	assert.Equal(t, "c1", head)

	commit, err := c.GetCommit(ctx, head)
	require.NoError(t, err)
	assert.Equal(t, &store.Commit{SHA: "c1", TreeSHA: "t1", Parents: []string{"c0"}}, commit)

	_, err = c.GetRef(ctx, "heads/missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestGetTreeRecursive(t *testing.T) {
	truncated := false
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/acme/icons/git/trees/t1", r.URL.Path)
		assert.Equal(t, "1", r.URL.Query().Get("recursive"))
		writeJSON(t, w, 200, map[string]interface{}{
			"sha": "t1",
			"tree": []map[string]string{
				{"path": "icons", "mode": "040000", "type": "tree", "sha": "t2"},
				{"path": "icons/a.png", "mode": "100755", "type": "blob", "sha": "b1"},
			},
			"truncated": truncated,
		})
	})

	entries, err := c.GetTreeRecursive(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, []store.Entry{
		{Path: "icons", Mode: store.ModeDir, Type: store.EntryTree, SHA: "t2"},
		{Path: "icons/a.png", Mode: store.ModeExecutable, Type: store.EntryBlob, SHA: "b1"},
	}, entries)

	truncated = true
	_, err = c.GetTreeRecursive(context.Background(), "t1")
	assert.Error(t, err)
}

func TestWrites(t *testing.T) {
	var bodies = map[string]map[string]interface{}{}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		bodies[r.Method+" "+r.URL.Path] = body

		switch r.URL.Path {
		case "/repos/acme/icons/git/blobs":
			writeJSON(t, w, 201, map[string]string{"sha": "b1"})
		case "/repos/acme/icons/git/trees":
			writeJSON(t, w, 201, map[string]string{"sha": "t9"})
		case "/repos/acme/icons/git/commits":
			writeJSON(t, w, 201, map[string]string{"sha": "c9"})
		case "/repos/acme/icons/git/refs/heads/master":
			writeJSON(t, w, 200, map[string]interface{}{
				"ref":    "refs/heads/master",
				"url":    "https://api.github.com/repos/acme/icons/git/refs/heads/master",
				"object": map[string]string{"sha": "c9"},
			})
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	blob, err := c.CreateBlob(ctx, []byte("png"))
	require.NoError(t, err)
	assert.Equal(t, "b1", blob)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("png")), bodies["POST /repos/acme/icons/git/blobs"]["content"])
	assert.Equal(t, "base64", bodies["POST /repos/acme/icons/git/blobs"]["encoding"])

	tree, err := c.CreateTree(ctx, []store.Entry{{Path: "icons/a.png", Mode: store.ModeExecutable, Type: store.EntryBlob, SHA: blob}})
	require.NoError(t, err)
	assert.Equal(t, "t9", tree)
	treeBody := bodies["POST /repos/acme/icons/git/trees"]
	assert.NotContains(t, treeBody, "base_tree")
	assert.Len(t, treeBody["tree"], 1)

	commit, err := c.CreateCommit(ctx, "Updated icons", tree, []string{"c1"})
	require.NoError(t, err)
	assert.Equal(t, "c9", commit)
	assert.Equal(t, []interface{}{"c1"}, bodies["POST /repos/acme/icons/git/commits"]["parents"])

	status, err := c.UpdateRef(ctx, "heads/master", commit)
	require.NoError(t, err)
	assert.Equal(t, &store.RefStatus{
		Ref: "refs/heads/master",
		SHA: "c9",
		URL: "https://api.github.com/repos/acme/icons/git/refs/heads/master",
	}, status)
	assert.Equal(t, false, bodies["PATCH /repos/acme/icons/git/refs/heads/master"]["force"])
}

func TestCreateTreeRejectsTreeEntries(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected request %s", r.URL.Path)
	})

	_, err := c.CreateTree(context.Background(), []store.Entry{{Path: "icons", Type: store.EntryTree}})

	assert.Error(t, err)
}

func TestUpdateRefConflict(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusUnprocessableEntity, map[string]string{"message": "Update is not a fast forward"})
	})

	_, err := c.UpdateRef(context.Background(), "heads/master", "c9")

	assert.ErrorIs(t, err, store.ErrRefConflict)
	assert.Contains(t, err.Error(), "not a fast forward")
}

func TestGetFileContent(t *testing.T) {
	content := []byte("<svg>icon</svg>")
	encoded := base64.StdEncoding.EncodeToString(content)
	// the API wraps base64 at 60 columns
	wrapped := encoded[:5] + "\n" + encoded[5:] + "\n"

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/repos/octo/app/contents/res/drawable/a b.svg":
			assert.Equal(t, "abc123", r.URL.Query().Get("ref"))
			writeJSON(t, w, 200, map[string]string{"type": "file", "sha": "b1", "encoding": "base64", "content": wrapped})
		case "/repos/octo/app/contents/res/drawable/big.png":
			writeJSON(t, w, 200, map[string]string{"type": "file", "sha": "b2", "encoding": "none", "content": ""})
		case "/repos/octo/app/git/blobs/b2":
			assert.Equal(t, "application/vnd.github.v3.raw", r.Header.Get("Accept"))
			_, _ = w.Write(content)
		case "/repos/octo/app/contents/res/drawable":
			writeJSON(t, w, 200, map[string]string{"type": "dir"})
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()
	loc := store.Location{Owner: "octo", Repo: "app", Ref: "abc123"}

	b, err := c.GetFileContent(ctx, loc, "res/drawable/a b.svg")
	require.NoError(t, err)
	assert.Equal(t, content, b)

	b, err = c.GetFileContent(ctx, loc, "res/drawable/big.png")
	require.NoError(t, err)
	assert.Equal(t, content, b)

	_, err = c.GetFileContent(ctx, loc, "res/drawable")
	assert.Error(t, err)

	_, err = c.GetFileContent(ctx, loc, "res/drawable/missing.png")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestNewTokenSource(t *testing.T) {
	ts, err := NewTokenSource(AuthConfig{Strategy: AuthToken, Token: "s3cret"})
	require.NoError(t, err)
	tok, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "s3cret", tok.AccessToken)

	_, err = NewTokenSource(AuthConfig{Strategy: AuthToken})
	assert.Error(t, err)

	_, err = NewTokenSource(AuthConfig{Strategy: "ldap"})
	assert.Error(t, err)

	_, err = NewTokenSource(AuthConfig{Strategy: AuthApp, AppID: 1, InstallationID: 2, PrivateKey: []byte("not a key")})
	assert.Error(t, err)
}

func TestAppTokenSource(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})

	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/app/installations/42/access_tokens", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		claims := &jwt.RegisteredClaims{}
		_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
			return &key.PublicKey, nil
		})
		require.NoError(t, err)
		assert.Equal(t, "7", claims.Issuer)

		writeJSON(t, w, http.StatusCreated, map[string]interface{}{
			"token":      "ghs_installation",
			"expires_at": time.Now().Add(time.Hour),
		})
	}))
	defer srv.Close()

	ts, err := NewTokenSource(AuthConfig{
		Strategy:       AuthApp,
		AppID:          7,
		InstallationID: 42,
		PrivateKey:     keyPEM,
		BaseURL:        srv.URL,
	})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		tok, err := ts.Token()
		require.NoError(t, err)
		assert.Equal(t, "ghs_installation", tok.AccessToken)
	}
	assert.Equal(t, 1, calls)
}

func TestHTTPClientSendsToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer s3cret", r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `{"ref":"refs/heads/master","object":{"sha":"c1"}}`)
	}))
	defer srv.Close()

	ts, err := NewTokenSource(AuthConfig{Token: "s3cret"})
	require.NoError(t, err)
	c := NewClient(NewHTTPClient(context.Background(), ts, 5*time.Second), srv.URL, "acme", "icons", logger.Nop())

	head, err := c.GetRef(context.Background(), "heads/master")
	require.NoError(t, err)
	assert.Equal(t, "c1", head)
}

func TestNewClientBaseURL(t *testing.T) {
	c := NewClient(http.DefaultClient, "", "acme", "icons", logger.Nop())
	assert.Equal(t, DefaultBaseURL+"/", c.api.BaseURL.String())

	c = NewClient(http.DefaultClient, "https://ghe.example.com/api/v3", "acme", "icons", logger.Nop())
	assert.Equal(t, "https://ghe.example.com/api/v3/", c.api.BaseURL.String())
}

func TestErrorsMapToStoreSentinels(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/repos/acme/icons/git/commits/gone":
			writeJSON(t, w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		default:
			writeJSON(t, w, http.StatusBadGateway, map[string]string{"message": "upstream"})
		}
	})
	ctx := context.Background()

	_, err := c.GetCommit(ctx, "gone")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = c.GetTreeRecursive(ctx, "t1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, store.ErrNotFound)
	assert.NotErrorIs(t, err, store.ErrRefConflict)
}
