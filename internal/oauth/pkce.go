package oauth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/timmy/hubexport/internal/domain"
)

// KeyValueStore is the persistence the handshake needs across the redirect boundary.
type KeyValueStore interface {
	Put(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Take(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, keys ...string) error
}

const (
	verifierKeyPrefix = "pkce_code_verifier:"
	nonceKeyPrefix    = "pkce_nonce:"
)

// NewPKCE generates a verifier, its S256 challenge and a nonce.
func NewPKCE() (*domain.PKCE, error) {
	verifier, err := randomURLSafe(32)
	if err != nil {
		return nil, fmt.Errorf("generate code verifier: %w", err)
	}
	nonce, err := randomURLSafe(16)
	if err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	sum := sha256.Sum256([]byte(verifier))
	return &domain.PKCE{
		Verifier:  verifier,
		Challenge: base64.RawURLEncoding.EncodeToString(sum[:]),
		Nonce:     nonce,
	}, nil
}

func randomURLSafe(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// PKCEStore keeps the verifier and nonce of an in-flight handshake, keyed by
// the session state, until the token exchange consumes them.
type PKCEStore struct {
	kv  KeyValueStore
	ttl time.Duration
}

// NewPKCEStore creates a PKCE store. Entries expire after ttl.
func NewPKCEStore(kv KeyValueStore, ttl time.Duration) *PKCEStore {
	return &PKCEStore{kv: kv, ttl: ttl}
}

// Save persists the secrets for state.
func (s *PKCEStore) Save(ctx context.Context, state string, pkce *domain.PKCE) error {
	if err := s.kv.Put(ctx, verifierKeyPrefix+state, pkce.Verifier, s.ttl); err != nil {
		return err
	}
	return s.kv.Put(ctx, nonceKeyPrefix+state, pkce.Nonce, s.ttl)
}

// Verifier returns the stored verifier for state, or domain.ErrMissingVerifier.
func (s *PKCEStore) Verifier(ctx context.Context, state string) (string, error) {
	v, err := s.kv.Get(ctx, verifierKeyPrefix+state)
	if errors.Is(err, domain.ErrNotFound) || (err == nil && v == "") {
		return "", domain.ErrMissingVerifier
	}
	if err != nil {
		return "", err
	}
	return v, nil
}

// Clear erases the verifier and nonce for state.
func (s *PKCEStore) Clear(ctx context.Context, state string) error {
	return s.kv.Delete(ctx, verifierKeyPrefix+state, nonceKeyPrefix+state)
}
