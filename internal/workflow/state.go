// Package workflow drives one export run through authentication, job
// submission, polling and publishing, resuming at the first incomplete stage
// after a failure.
package workflow

import (
	"time"

	"github.com/timmy/hubexport/internal/domain"
)

// State is the value the retry engine transitions. Methods never mutate the
// receiver.
type State struct {
	Stage      domain.Stage
	RetryCount int
	MaxRetries int
	LastError  string
}

// Decision tells the engine what to do after a failure.
type Decision struct {
	Retry bool
	Delay time.Duration
}

var nextStage = map[domain.Stage]domain.Stage{
	domain.StageAuthenticating: domain.StageSubmitting,
	domain.StageSubmitting:     domain.StagePolling,
	domain.StagePolling:        domain.StagePublishing,
	domain.StagePublishing:     domain.StageSucceeded,
}

// NewState returns an idle state. maxRetries below 1 is raised to 1.
func NewState(maxRetries int) State {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return State{Stage: domain.StageIdle, MaxRetries: maxRetries}
}

// Start begins a user-initiated run. It is the only transition that resets
// RetryCount.
func (s State) Start() State {
	return State{Stage: domain.StageAuthenticating, MaxRetries: s.MaxRetries}
}

// Advance moves to the stage after the current one. Terminal states stay put.
func (s State) Advance() State {
	if next, ok := nextStage[s.Stage]; ok {
		s.Stage = next
	}
	return s
}

// Fail records err against the current attempt. Retryable errors resume at
// ResumeStage(artifacts) after Backoff(RetryCount); once RetryCount reaches
// MaxRetries, or for errors that are never retried, the state becomes failed.
func (s State) Fail(err error, artifacts *domain.Artifacts, unit time.Duration) (State, Decision) {
	s.RetryCount++
	if err != nil {
		s.LastError = err.Error()
	}

	if !domain.IsRetryable(err) || s.RetryCount >= s.MaxRetries {
		s.Stage = domain.StageFailed
		return s, Decision{}
	}

	s.Stage = ResumeStage(artifacts)
	return s, Decision{Retry: true, Delay: Backoff(s.RetryCount, unit)}
}

// Terminal reports whether no further transitions will happen.
func (s State) Terminal() bool {
	return s.Stage == domain.StageSucceeded || s.Stage == domain.StageFailed
}

// Attempts is the number of attempts made so far, the current one included.
func (s State) Attempts() int {
	if s.Stage == domain.StageFailed {
		return s.RetryCount
	}
	return s.RetryCount + 1
}

// ResumeStage picks the first stage whose output is missing.
func ResumeStage(a *domain.Artifacts) domain.Stage {
	switch {
	case !a.HasToken():
		return domain.StageAuthenticating
	case !a.HasJobIDs():
		return domain.StageSubmitting
	case !a.AllReady():
		return domain.StagePolling
	default:
		return domain.StagePublishing
	}
}

// Backoff returns 2^k units, the delay before the k-th retry.
func Backoff(k int, unit time.Duration) time.Duration {
	if k < 0 {
		k = 0
	}
	if k > 30 {
		k = 30
	}
	return unit * time.Duration(1<<uint(k))
}
