package oauth

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/hubexport/internal/domain"
	"github.com/timmy/hubexport/internal/logger"
)

// Token is the successful answer of the token endpoint.
type Token struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
}

// ExchangerConfig holds configuration for the token exchanger.
type ExchangerConfig struct {
	TokenURL    string
	UserInfoURL string
	ClientID    string
	RedirectURI string
	Timeout     time.Duration
}

// TokenExchanger trades an authorization code for an access token using the
// PKCE verifier stored for the session.
type TokenExchanger struct {
	client *resty.Client
	store  *PKCEStore
	cfg    ExchangerConfig
}

// NewTokenExchanger creates a new token exchanger.
// Parameters:
//   - store: PKCE store the verifier is loaded from and erased in.
//   - cfg: provider endpoints, client id, redirect URI and request timeout.
// Returns:
//   - *TokenExchanger: exchanger bound to the provider.
func NewTokenExchanger(store *PKCEStore, cfg ExchangerConfig) *TokenExchanger {
	client := resty.New()
	client.SetHeader("Accept", "application/json")
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	} else {
		client.SetTimeout(30 * time.Second)
	}

	return &TokenExchanger{client: client, store: store, cfg: cfg}
}

// Exchange redeems code for the session identified by state. On success the
// stored verifier and nonce are erased; they are single-use.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - state: state token the verifier is keyed by.
//   - code: authorization code from the callback.
// Returns:
//   - *Token: access token issued by the provider.
//   - error: ErrMissingVerifier, *domain.TokenExchangeError or a transport error.
func (e *TokenExchanger) Exchange(ctx context.Context, state, code string) (*Token, error) {
	verifier, err := e.store.Verifier(ctx, state)
	if err != nil {
		return nil, err
	}

	var token Token
	resp, err := e.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"grant_type":    "authorization_code",
			"code":          code,
			"redirect_uri":  e.cfg.RedirectURI,
			"client_id":     e.cfg.ClientID,
			"code_verifier": verifier,
		}).
		SetResult(&token).
		Post(e.cfg.TokenURL)
	if err != nil {
		return nil, fmt.Errorf("failed to call token endpoint: %w", err)
	}

	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return nil, &domain.TokenExchangeError{
			StatusCode: resp.StatusCode(),
			Body:       string(resp.Body()),
		}
	}
	if token.AccessToken == "" {
		return nil, &domain.TokenExchangeError{
			StatusCode: resp.StatusCode(),
			Body:       "response has no access_token",
		}
	}

	if err := e.store.Clear(ctx, state); err != nil {
		logger.FromContext(ctx).WithError(err).Warn("Failed to clear PKCE verifier")
	}

	return &token, nil
}

type userInfoResponse struct {
	PreferredUsername string `json:"preferred_username"`
	Name              string `json:"name"`
	Sub               string `json:"sub"`
}

// UserInfo returns the username of the token's owner.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - accessToken: bearer token from Exchange.
// Returns:
//   - string: preferred_username, or name when it is missing.
//   - error: non-nil if the request fails or no username is present.
func (e *TokenExchanger) UserInfo(ctx context.Context, accessToken string) (string, error) {
	var info userInfoResponse
	resp, err := e.client.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		SetResult(&info).
		Get(e.cfg.UserInfoURL)
	if err != nil {
		return "", fmt.Errorf("failed to call userinfo endpoint: %w", err)
	}
	if resp.StatusCode() != 200 {
		return "", fmt.Errorf("userinfo endpoint returned HTTP %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	switch {
	case info.PreferredUsername != "":
		return info.PreferredUsername, nil
	case info.Name != "":
		return info.Name, nil
	default:
		return "", fmt.Errorf("userinfo response has no username")
	}
}
