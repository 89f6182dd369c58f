package workflow

import (
	"context"
	"sync"

	"github.com/timmy/hubexport/internal/domain"
	"github.com/timmy/hubexport/internal/logger"
)

// StatusSink receives the human-readable progress of a run. Progress calls for
// one kind carry non-decreasing percentages.
type StatusSink interface {
	Status(ctx context.Context, stage domain.Stage, message string)
	Progress(ctx context.Context, kind domain.JobKind, percent int)
}

// LogSink writes status updates to the context logger.
type LogSink struct{}

func (LogSink) Status(ctx context.Context, stage domain.Stage, message string) {
	logger.CtxInfo(logger.SetStage(ctx, string(stage)), "%s", message)
}

func (LogSink) Progress(ctx context.Context, kind domain.JobKind, percent int) {
	logger.With(logger.Fields{logger.FieldJobKind: string(kind)}).
		WithPercent(percent).
		Info(ctx, "Export %s at %d%%", kind, percent)
}

// MultiSink fans every update out to each sink in order.
type MultiSink []StatusSink

func (m MultiSink) Status(ctx context.Context, stage domain.Stage, message string) {
	for _, s := range m {
		s.Status(ctx, stage, message)
	}
}

func (m MultiSink) Progress(ctx context.Context, kind domain.JobKind, percent int) {
	for _, s := range m {
		s.Progress(ctx, kind, percent)
	}
}

// RunStore persists run history.
type RunStore interface {
	Create(ctx context.Context, run *domain.WorkflowRun) error
	UpdateStage(ctx context.Context, id string, stage domain.Stage, message string) error
	RecordFailure(ctx context.Context, id string, retryCount int, lastErr string) error
	SetRepositoryID(ctx context.Context, id, repositoryID string) error
}

// RunRecorder mirrors one run's transitions into a RunStore. Store errors are
// logged and never fail the run.
type RunRecorder struct {
	store RunStore
	runID string
}

// NewRunRecorder binds a recorder to runID.
func NewRunRecorder(store RunStore, runID string) *RunRecorder {
	return &RunRecorder{store: store, runID: runID}
}

func (r *RunRecorder) Status(ctx context.Context, stage domain.Stage, message string) {
	if err := r.store.UpdateStage(ctx, r.runID, stage, message); err != nil {
		logger.CtxWarn(ctx, "Failed to record stage %s: %v", stage, err)
	}
}

// Progress is not persisted; only stage transitions are.
func (r *RunRecorder) Progress(context.Context, domain.JobKind, int) {}

// Failure records the retry counter and last error of state.
func (r *RunRecorder) Failure(ctx context.Context, state State) {
	if err := r.store.RecordFailure(ctx, r.runID, state.RetryCount, state.LastError); err != nil {
		logger.CtxWarn(ctx, "Failed to record failure: %v", err)
	}
}

// Published records the destination repository of the run.
func (r *RunRecorder) Published(ctx context.Context, repositoryID string) {
	if err := r.store.SetRepositoryID(ctx, r.runID, repositoryID); err != nil {
		logger.CtxWarn(ctx, "Failed to record repository id: %v", err)
	}
}

// guardedSink drops every update once the run has been torn down.
type guardedSink struct {
	mu     sync.Mutex
	ctx    context.Context
	closed bool
	next   StatusSink
}

func newGuardedSink(ctx context.Context, next StatusSink) *guardedSink {
	return &guardedSink{ctx: ctx, next: next}
}

func (g *guardedSink) live() bool {
	return !g.closed && g.ctx.Err() == nil
}

func (g *guardedSink) Status(ctx context.Context, stage domain.Stage, message string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.live() {
		g.next.Status(ctx, stage, message)
	}
}

func (g *guardedSink) Progress(ctx context.Context, kind domain.JobKind, percent int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.live() {
		g.next.Progress(ctx, kind, percent)
	}
}

func (g *guardedSink) close() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
}
