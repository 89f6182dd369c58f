package domain

import (
	"bytes"
	"encoding/json"
)

// AuthSession is one OAuth attempt. State is generated fresh per attempt and
// CodeVerifier is cleared once the token exchange succeeds.
type AuthSession struct {
	State        string
	CodeVerifier string
	AccessToken  string
	Username     string
}

// PKCE holds the secrets produced while building an authorization URL.
type PKCE struct {
	Verifier  string `json:"verifier"`
	Challenge string `json:"challenge"`
	Nonce     string `json:"nonce"`
}

// AuthorizationResponse is the payload delivered back by the redirect target,
// either over the message channel or through the storage fallback.
type AuthorizationResponse struct {
	Code             string          `json:"code,omitempty"`
	State            json.RawMessage `json:"state,omitempty"`
	Error            string          `json:"error,omitempty"`
	ErrorDescription string          `json:"error_description,omitempty"`
}

// UnwrapState returns the state string whether it was sent flat ("abc") or
// nested ({"state":"abc"}).
func (r *AuthorizationResponse) UnwrapState() string {
	raw := bytes.TrimSpace(r.State)
	if len(raw) == 0 {
		return ""
	}

	var flat string
	if err := json.Unmarshal(raw, &flat); err == nil {
		return flat
	}

	var nested struct {
		State json.RawMessage `json:"state"`
	}
	if err := json.Unmarshal(raw, &nested); err == nil && len(nested.State) > 0 {
		inner := AuthorizationResponse{State: nested.State}
		return inner.UnwrapState()
	}
	return ""
}

// CallbackMessage is a cross-window message together with the origin it was posted from.
type CallbackMessage struct {
	Origin   string
	Response AuthorizationResponse
}
