package oauth

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/timmy/hubexport/internal/domain"
)

// AuthorizeRequest holds the parameters embedded in the authorization URL.
type AuthorizeRequest struct {
	ClientID    string
	RedirectURI string
	Scopes      []string
	State       string
}

// AuthorizeURLBuilder builds provider authorization URLs. The PKCE secrets it
// generates are returned to the caller rather than stashed anywhere.
type AuthorizeURLBuilder struct {
	endpoint string
	newPKCE  func() (*domain.PKCE, error)
}

// NewAuthorizeURLBuilder creates a builder for the given authorize endpoint.
func NewAuthorizeURLBuilder(endpoint string) *AuthorizeURLBuilder {
	return &AuthorizeURLBuilder{endpoint: endpoint, newPKCE: NewPKCE}
}

// Build returns the authorization URL and the PKCE secrets bound to it.
func (b *AuthorizeURLBuilder) Build(req AuthorizeRequest) (string, *domain.PKCE, error) {
	u, err := url.Parse(b.endpoint)
	if err != nil {
		return "", nil, fmt.Errorf("parse authorize endpoint: %w", err)
	}

	pkce, err := b.newPKCE()
	if err != nil {
		return "", nil, err
	}

	q := u.Query()
	q.Set("response_type", "code")
	q.Set("client_id", req.ClientID)
	q.Set("redirect_uri", req.RedirectURI)
	q.Set("scope", strings.Join(req.Scopes, " "))
	q.Set("state", req.State)
	q.Set("nonce", pkce.Nonce)
	q.Set("code_challenge", pkce.Challenge)
	q.Set("code_challenge_method", "S256")
	u.RawQuery = q.Encode()

	return u.String(), pkce, nil
}
