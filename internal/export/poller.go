package export

import (
	"context"
	"time"

	"github.com/timmy/hubexport/internal/domain"
	"github.com/timmy/hubexport/internal/logger"
	"golang.org/x/sync/errgroup"
)

// ProgressFunc receives per-kind progress. Calls for one kind carry
// non-decreasing percentages; calls for different kinds interleave freely.
type ProgressFunc func(kind domain.JobKind, percent int)

// Service is the subset of Client the poller drives.
type Service interface {
	Submit(ctx context.Context, sourceURL string, kind domain.JobKind) (string, error)
	Status(ctx context.Context, jobID string, kind domain.JobKind) (Status, error)
	StatusURL(jobID string, kind domain.JobKind) string
}

// Poller submits both export jobs and waits for both to become terminal.
type Poller struct {
	service  Service
	interval time.Duration
}

// NewPoller creates a poller. A non-positive interval defaults to 5s.
// Parameters:
//   - service: export service contract to submit and poll through.
//   - interval: delay between two polls of the same job.
// Returns:
//   - *Poller: poller for the parquet and manifest jobs.
func NewPoller(service Service, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Poller{service: service, interval: interval}
}

// Submit creates one job per kind in parallel. Both must succeed; the first
// failure is returned as a *domain.SubmissionError naming its kind.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - sourceURL: source API URL the jobs read rows from.
// Returns:
//   - map[domain.JobKind]*domain.ExportJob: one submitted job per kind.
//   - error: *domain.SubmissionError if either submission fails.
func (p *Poller) Submit(ctx context.Context, sourceURL string) (map[domain.JobKind]*domain.ExportJob, error) {
	ids := make([]string, len(domain.JobKinds))

	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range domain.JobKinds {
		i, kind := i, kind
		g.Go(func() error {
			id, err := p.service.Submit(gctx, sourceURL, kind)
			if err != nil {
				return &domain.SubmissionError{Kind: kind, Err: err}
			}
			ids[i] = id
			logger.CtxInfo(logger.SetJob(gctx, id, string(kind)), "Submitted %s export job", kind)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	jobs := make(map[domain.JobKind]*domain.ExportJob, len(ids))
	for i, kind := range domain.JobKinds {
		jobs[kind] = &domain.ExportJob{JobID: ids[i], Kind: kind}
	}
	return jobs, nil
}

// Await polls every job that is not ready yet until all are terminal. The
// jobs are updated in place. The first poll failure cancels the sibling poll
// and is returned as a *domain.PollError.
// Parameters:
//   - ctx: context for cancellation; cancelling it stops every poll.
//   - jobs: submitted jobs, marked ready and updated with progress in place.
//   - progress: optional callback for non-decreasing per-kind percentages.
// Returns:
//   - error: *domain.PollError for the first failed poll, or ctx.Err().
func (p *Poller) Await(ctx context.Context, jobs map[domain.JobKind]*domain.ExportJob, progress ProgressFunc) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, kind := range domain.JobKinds {
		job, ok := jobs[kind]
		if !ok || job.Ready {
			continue
		}
		g.Go(func() error {
			return p.pollOne(gctx, job, progress)
		})
	}
	return g.Wait()
}

// SubmitAndAwait runs Submit then Await and returns the terminal URLs.
func (p *Poller) SubmitAndAwait(ctx context.Context, sourceURL string, progress ProgressFunc) (*domain.JobRefs, error) {
	jobs, err := p.Submit(ctx, sourceURL)
	if err != nil {
		return nil, err
	}
	if err := p.Await(ctx, jobs, progress); err != nil {
		return nil, err
	}
	return p.Refs(jobs), nil
}

// Refs returns the status URLs the publish step streams from.
func (p *Poller) Refs(jobs map[domain.JobKind]*domain.ExportJob) *domain.JobRefs {
	refs := &domain.JobRefs{}
	if j, ok := jobs[domain.JobKindParquet]; ok {
		refs.Parquet = p.service.StatusURL(j.JobID, j.Kind)
	}
	if j, ok := jobs[domain.JobKindManifest]; ok {
		refs.Manifest = p.service.StatusURL(j.JobID, j.Kind)
	}
	return refs
}

func (p *Poller) pollOne(ctx context.Context, job *domain.ExportJob, progress ProgressFunc) error {
	ctx = logger.SetJob(ctx, job.JobID, string(job.Kind))

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		status, err := p.service.Status(ctx, job.JobID, job.Kind)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &domain.PollError{Kind: job.Kind, JobID: job.JobID, Err: err}
		}

		if status.Terminal {
			job.MarkReady()
			if progress != nil {
				progress(job.Kind, 100)
			}
			logger.CtxInfo(ctx, "Export job %s is ready", job.JobID)
			return nil
		}

		if pct, changed := job.ObserveProgress(status.Percent()); changed && progress != nil {
			progress(job.Kind, pct)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
