package gitstore

import (
	"net/http"

	"golang.org/x/oauth2"
)

// TokenAuth authenticates git smart-HTTP requests with a token from source,
// sent as basic auth the way GitHub expects for app and personal tokens.
type TokenAuth struct {
	Source oauth2.TokenSource
}

// Name implements transport.AuthMethod
func (a *TokenAuth) Name() string {
	return "http-token-source"
}

func (a *TokenAuth) String() string {
	return a.Name() + " - x-access-token:*******"
}

// SetAuth implements the go-git http.AuthMethod. A token that cannot be
// obtained leaves the request unauthenticated so the server rejects it.
func (a *TokenAuth) SetAuth(r *http.Request) {
	if a == nil || a.Source == nil {
		return
	}
	tok, err := a.Source.Token()
	if err != nil {
		return
	}
	r.SetBasicAuth("x-access-token", tok.AccessToken)
}
