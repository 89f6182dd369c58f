package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/hubexport/internal/domain"
	"github.com/timmy/hubexport/internal/export"
	"github.com/timmy/hubexport/internal/logger"
	"github.com/timmy/hubexport/internal/publish"
)

// Authenticator runs the OAuth handshake.
type Authenticator interface {
	Authenticate(ctx context.Context) (*domain.AuthSession, error)
}

// Exporter submits and polls the export jobs.
type Exporter interface {
	Submit(ctx context.Context, sourceURL string) (map[domain.JobKind]*domain.ExportJob, error)
	Await(ctx context.Context, jobs map[domain.JobKind]*domain.ExportJob, progress export.ProgressFunc) error
	Refs(jobs map[domain.JobKind]*domain.ExportJob) *domain.JobRefs
}

// Config holds the retry engine settings.
type Config struct {
	MaxRetries  int
	BackoffUnit time.Duration
	License     string
}

// Request starts a run.
type Request struct {
	Dataset   string
	SourceURL string
}

// Result describes a successful run.
type Result struct {
	RunID        string
	RepositoryID string
	Username     string
	Attempts     int
	Refs         *domain.JobRefs
}

// Orchestrator owns at most one active run at a time.
type Orchestrator struct {
	auth  Authenticator
	jobs  Exporter
	repo  publish.Repository
	sink  StatusSink
	runs  RunStore
	cfg   Config
	sleep func(ctx context.Context, d time.Duration) error

	mu     sync.Mutex
	active bool
	cancel context.CancelFunc
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithSink sets the status sink. The default is LogSink.
func WithSink(sink StatusSink) Option {
	return func(o *Orchestrator) { o.sink = sink }
}

// WithRunStore persists every run's history.
func WithRunStore(runs RunStore) Option {
	return func(o *Orchestrator) { o.runs = runs }
}

// WithSleep replaces the backoff wait.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(o *Orchestrator) { o.sleep = sleep }
}

// NewOrchestrator creates an orchestrator.
// Parameters:
//   - auth: runs the OAuth handshake.
//   - jobs: submits and polls the export jobs.
//   - repo: destination repository client.
//   - cfg: retry bound, backoff unit and license; zero values take defaults.
//   - opts: optional sink, run store and sleep overrides.
// Returns:
//   - *Orchestrator: orchestrator ready for Run.
func NewOrchestrator(auth Authenticator, jobs Exporter, repo publish.Repository, cfg Config, opts ...Option) *Orchestrator {
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 3
	}
	if cfg.BackoffUnit <= 0 {
		cfg.BackoffUnit = time.Second
	}
	if cfg.License == "" {
		cfg.License = "cc-by-4.0"
	}

	o := &Orchestrator{
		auth:  auth,
		jobs:  jobs,
		repo:  repo,
		sink:  LogSink{},
		cfg:   cfg,
		sleep: sleepContext,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run validates the dataset name and drives a fresh run to succeeded or
// failed. Cancelling ctx or calling Close tears the run down: it returns the
// context error and emits nothing further.
// Parameters:
//   - ctx: context for cancellation; cancelling it tears the run down.
//   - req: dataset name and source API URL.
// Returns:
//   - *Result: run id, repository id, username, attempts and artifact URLs.
//   - error: ErrRunInProgress, *domain.ValidationError, *domain.RetriesExhaustedError,
//     a non-retryable stage error or ctx.Err().
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if !o.acquire(cancel) {
		return nil, domain.ErrRunInProgress
	}
	defer o.release()

	// The sink belongs to the active run, so validate only once we own it.
	if err := ValidateDataset(req.Dataset); err != nil {
		o.sink.Status(ctx, domain.StageFailed, err.Error())
		return nil, err
	}

	runID := uuid.New().String()
	ctx = logger.SetRunID(ctx, runID)
	ctx = logger.WithField(ctx, logger.FieldDataset, req.Dataset)

	sinks := MultiSink{o.sink}
	var recorder *RunRecorder
	if o.runs != nil {
		run := &domain.WorkflowRun{ID: runID, Dataset: req.Dataset, SourceURL: req.SourceURL, Stage: domain.StageIdle}
		if err := o.runs.Create(ctx, run); err != nil {
			logger.CtxWarn(ctx, "Failed to record run: %v", err)
		} else {
			recorder = NewRunRecorder(o.runs, runID)
			sinks = append(sinks, recorder)
		}
	}
	sink := newGuardedSink(ctx, sinks)
	defer sink.close()

	result := &Result{RunID: runID}
	artifacts := &domain.Artifacts{}
	state := NewState(o.cfg.MaxRetries).Start()
	sink.Status(ctx, state.Stage, stageMessage(state.Stage))

	for {
		stageCtx := logger.SetStage(ctx, string(state.Stage))
		err := o.runStage(stageCtx, state.Stage, req, artifacts, sink, result)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if err == nil {
			state = state.Advance()
			if state.Stage == domain.StageSucceeded {
				result.Attempts = state.Attempts()
				result.Username = artifacts.Username
				result.Refs = o.jobs.Refs(artifacts.Jobs)
				if recorder != nil {
					recorder.Published(ctx, result.RepositoryID)
				}
				sink.Status(ctx, state.Stage, fmt.Sprintf("Published to %s", result.RepositoryID))
				return result, nil
			}
			sink.Status(ctx, state.Stage, stageMessage(state.Stage))
			continue
		}

		failedAt := state.Stage
		var decision Decision
		state, decision = state.Fail(err, artifacts, o.cfg.BackoffUnit)
		if recorder != nil {
			recorder.Failure(ctx, state)
		}
		logger.With(logger.Fields{logger.FieldStage: string(failedAt)}).
			WithAttempt(state.RetryCount).
			Warn(ctx, "Stage failed: %v", err)

		if !decision.Retry {
			final := err
			if domain.IsRetryable(err) {
				final = &domain.RetriesExhaustedError{Attempts: state.RetryCount, Err: err}
			}
			sink.Status(ctx, domain.StageFailed, final.Error())
			return nil, final
		}

		sink.Status(ctx, state.Stage, fmt.Sprintf("Attempt %d failed at %s: %v. Retrying in %s",
			state.RetryCount, failedAt, err, decision.Delay))
		if err := o.sleep(ctx, decision.Delay); err != nil {
			return nil, err
		}
	}
}

// Close tears down the active run, if any.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel != nil {
		o.cancel()
	}
}

func (o *Orchestrator) acquire(cancel context.CancelFunc) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active {
		return false
	}
	o.active = true
	o.cancel = cancel
	return true
}

func (o *Orchestrator) release() {
	o.mu.Lock()
	o.active = false
	o.cancel = nil
	o.mu.Unlock()
}

func (o *Orchestrator) runStage(ctx context.Context, stage domain.Stage, req Request, a *domain.Artifacts, sink StatusSink, result *Result) error {
	switch stage {
	case domain.StageAuthenticating:
		session, err := o.auth.Authenticate(ctx)
		if err != nil {
			var aerr *domain.AuthError
			if errors.As(err, &aerr) {
				return err
			}
			return &domain.AuthError{Err: err}
		}
		a.AccessToken = session.AccessToken
		a.Username = session.Username
		logger.CtxInfo(ctx, "Authenticated as %s", session.Username)
		return nil

	case domain.StageSubmitting:
		jobs, err := o.jobs.Submit(ctx, req.SourceURL)
		if err != nil {
			return err
		}
		a.Jobs = jobs
		return nil

	case domain.StagePolling:
		return o.jobs.Await(ctx, a.Jobs, func(kind domain.JobKind, percent int) {
			sink.Progress(ctx, kind, percent)
		})

	case domain.StagePublishing:
		return o.publish(ctx, req, a, result)

	default:
		return fmt.Errorf("no work defined for stage %q", stage)
	}
}

func (o *Orchestrator) publish(ctx context.Context, req Request, a *domain.Artifacts, result *Result) error {
	repoID := a.Username + "/" + req.Dataset
	result.RepositoryID = repoID

	if err := o.repo.CreateRepository(ctx, a.AccessToken, repoID, o.cfg.License); err != nil {
		if !errors.Is(err, domain.ErrAlreadyExists) {
			return &domain.PublishError{RepositoryID: repoID, Err: err}
		}
		logger.CtxInfo(ctx, "Repository %s already exists, reusing it", repoID)
	}

	refs := o.jobs.Refs(a.Jobs)
	files := []publish.FileRef{
		{Path: domain.JobKindParquet.FileName(req.Dataset), SourceURL: refs.Parquet},
		{Path: domain.JobKindManifest.FileName(req.Dataset), SourceURL: refs.Manifest},
	}
	if err := o.repo.UploadByReference(ctx, a.AccessToken, repoID, files); err != nil {
		return &domain.PublishError{RepositoryID: repoID, Err: err}
	}
	return nil
}

func stageMessage(stage domain.Stage) string {
	switch stage {
	case domain.StageAuthenticating:
		return "Waiting for authorization in the browser"
	case domain.StageSubmitting:
		return "Submitting export jobs"
	case domain.StagePolling:
		return "Waiting for exports to finish"
	case domain.StagePublishing:
		return "Publishing to the repository"
	default:
		return string(stage)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
