// Package oauth implements the PKCE authorization-code handshake driven from
// a browser popup: state generation and verification, the two delivery
// channels for the authorization response, and the token exchange.
package oauth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"github.com/timmy/hubexport/internal/domain"
)

// stateBytes is 256 bits of entropy.
const stateBytes = 32

// GenerateState returns a fresh hex-encoded 256-bit anti-forgery token.
func GenerateState() (string, error) {
	b := make([]byte, stateBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// VerifyState succeeds iff incoming equals expected exactly.
func VerifyState(expected, incoming string) error {
	if expected == "" || len(expected) != len(incoming) {
		return domain.ErrAuthStateMismatch
	}
	if subtle.ConstantTimeCompare([]byte(expected), []byte(incoming)) != 1 {
		return domain.ErrAuthStateMismatch
	}
	return nil
}
