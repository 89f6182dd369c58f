package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthCancelled means the popup was closed before any response arrived.
	ErrAuthCancelled = errors.New("authorization cancelled: popup closed")
	// ErrAuthTimeout means no response arrived before the handshake deadline.
	ErrAuthTimeout = errors.New("authorization timed out")
	// ErrAuthStateMismatch means the response state does not belong to this session.
	ErrAuthStateMismatch = errors.New("authorization state mismatch")
	// ErrMissingVerifier means the PKCE verifier for the session is gone.
	ErrMissingVerifier = errors.New("missing PKCE code verifier")
	// ErrAlreadyExists is returned by repository clients when the destination exists.
	ErrAlreadyExists = errors.New("repository already exists")
	// ErrRunInProgress is returned when a run is started while another is active.
	ErrRunInProgress = errors.New("a workflow run is already in progress")
	// ErrNotFound is returned by stores for absent keys.
	ErrNotFound = errors.New("not found")
)

// ValidationError is a bad user input. It is never retried.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// ProviderError carries an error reported by the OAuth provider in the redirect.
type ProviderError struct {
	Code        string
	Description string
}

func (e *ProviderError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("authorization failed: %s: %s", e.Code, e.Description)
	}
	return fmt.Sprintf("authorization failed: %s", e.Code)
}

// TokenExchangeError is a non-2xx answer from the token endpoint.
type TokenExchangeError struct {
	StatusCode int
	Body       string
}

func (e *TokenExchangeError) Error() string {
	return fmt.Sprintf("token exchange failed: HTTP %d: %s", e.StatusCode, e.Body)
}

// AuthError wraps any failure of the authentication stage.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string { return "authentication: " + e.Err.Error() }
func (e *AuthError) Unwrap() error { return e.Err }

// SubmissionError means creating the job of Kind failed.
type SubmissionError struct {
	Kind JobKind
	Err  error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submit %s job: %v", e.Kind, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// PollError means polling the job of Kind failed.
type PollError struct {
	Kind  JobKind
	JobID string
	Err   error
}

func (e *PollError) Error() string {
	return fmt.Sprintf("poll %s job %s: %v", e.Kind, e.JobID, e.Err)
}

func (e *PollError) Unwrap() error { return e.Err }

// PublishError is a repository create or upload failure other than ErrAlreadyExists.
type PublishError struct {
	RepositoryID string
	Err          error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish %s: %v", e.RepositoryID, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// RetriesExhaustedError is the terminal failure of a run.
type RetriesExhaustedError struct {
	Attempts int
	Err      error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetriesExhaustedError) Unwrap() error { return e.Err }

// IsRetryable reports whether err should go through the retry engine.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var verr *ValidationError
	return !errors.As(err, &verr)
}
