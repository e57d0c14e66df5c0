package github

import (
	"context"
	"crypto/rsa"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/oauth2"
)

// Auth strategies
const (
	AuthToken = "token"
	AuthApp   = "app"
)

// AuthConfig selects how requests are authenticated
type AuthConfig struct {
	Strategy string // "token" or "app"
	Token    string

	AppID          int64
	InstallationID int64
	PrivateKey     []byte // PEM encoded RSA key of the GitHub App

	BaseURL string
}

// NewTokenSource builds the credential source for cfg.Strategy. The store
// client only ever sees the resulting oauth2 transport.
func NewTokenSource(cfg AuthConfig) (oauth2.TokenSource, error) {
	switch cfg.Strategy {
	case AuthToken, "":
		if cfg.Token == "" {
			return nil, fmt.Errorf("github: token strategy needs a token")
		}
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token}), nil
	case AuthApp:
		return NewAppTokenSource(cfg.AppID, cfg.InstallationID, cfg.PrivateKey, cfg.BaseURL)
	default:
		return nil, fmt.Errorf("github: unknown auth strategy %q", cfg.Strategy)
	}
}

// NewHTTPClient returns an http.Client that authenticates with ts
func NewHTTPClient(ctx context.Context, ts oauth2.TokenSource, timeout time.Duration) *http.Client {
	client := oauth2.NewClient(ctx, ts)
	client.Timeout = timeout
	return client
}

// appTokenSource exchanges a short-lived App JWT for an installation token
type appTokenSource struct {
	appID          int64
	installationID int64
	key            *rsa.PrivateKey
	baseURL        string
	timeout        time.Duration
	now            func() time.Time
}

// NewAppTokenSource returns a token source minting GitHub App installation
// tokens. Tokens are cached until shortly before they expire.
func NewAppTokenSource(appID, installationID int64, privateKeyPEM []byte, baseURL string) (oauth2.TokenSource, error) {
	if appID == 0 || installationID == 0 {
		return nil, fmt.Errorf("github: app strategy needs an app id and an installation id")
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("github: parse app private key: %w", err)
	}
	if _, err := newAPI(http.DefaultClient, baseURL); err != nil {
		return nil, err
	}

	src := &appTokenSource{
		appID:          appID,
		installationID: installationID,
		key:            key,
		baseURL:        baseURL,
		timeout:        30 * time.Second,
		now:            time.Now,
	}
	return oauth2.ReuseTokenSource(nil, src), nil
}

// appJWT signs the bearer token that identifies the App itself
func (s *appTokenSource) appJWT() (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		// backdated to tolerate clock drift
		IssuedAt:  jwt.NewNumericDate(now.Add(-60 * time.Second)),
		ExpiresAt: jwt.NewNumericDate(now.Add(9 * time.Minute)),
		Issuer:    strconv.FormatInt(s.appID, 10),
	}
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.key)
}

func (s *appTokenSource) Token() (*oauth2.Token, error) {
	signed, err := s.appJWT()
	if err != nil {
		return nil, fmt.Errorf("github: sign app jwt: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	// the App authenticates as itself with the JWT for this one call
	api, err := newAPI(oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: signed})), s.baseURL)
	if err != nil {
		return nil, err
	}

	tok, _, err := api.Apps.CreateInstallationToken(ctx, s.installationID, nil)
	if err != nil {
		return nil, fmt.Errorf("github: request installation token: %w", err)
	}

	return &oauth2.Token{AccessToken: tok.GetToken(), Expiry: tok.GetExpiresAt()}, nil
}
