// Package status implements the Status Aggregator: an
// on-demand view over the Job Store and Pipeline Registry. It owns no
// state of its own and fabricates nothing — every field is derived from
// a store query or the registry at call time.
package status

import (
	"context"
	"sort"
	"time"

	"github.com/integritystudio/alephauto/internal/domain"
)

// PipelineState is a pipeline's coarse, human-facing status.
type PipelineState string

const (
	StateRunning PipelineState = "running"
	StateFailing PipelineState = "failing"
	StateIdle    PipelineState = "idle"
)

// recentWindow is N in "failed > completed over the last N jobs".
const recentWindow = 50

// PipelineStatus is the per-pipeline document the aggregator produces.
type PipelineStatus struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Status        PipelineState  `json:"status"`
	CompletedJobs int            `json:"completed_jobs"`
	FailedJobs    int            `json:"failed_jobs"`
	Queued        int            `json:"queued"`
	Running       int            `json:"running"`
	LastRun       *lastRun       `json:"last_run,omitempty"`
	NextRun       *time.Time     `json:"next_run,omitempty"`
}

type lastRun struct {
	JobID  string        `json:"job_id"`
	Status domain.Status `json:"status"`
	At     time.Time     `json:"at"`
}

// RetryBucket counts in-flight retries at a given attempt tier.
type RetryBucket struct {
	Attempt1     int `json:"attempt_1"`
	Attempt2     int `json:"attempt_2"`
	Attempt3Plus int `json:"attempt_3_plus"`
	NearingLimit int `json:"nearing_limit"`
}

// Snapshot is the full system-status document.
type Snapshot struct {
	Pipelines    []PipelineStatus `json:"pipelines"`
	RetryMetrics RetryBucket      `json:"retry_metrics"`
}

// Store is the subset of the Job Store the aggregator reads.
type Store interface {
	DistinctPipelineIds(ctx context.Context) ([]string, error)
	Counts(ctx context.Context, pipelineID string) (domain.Counts, error)
	LastJob(ctx context.Context, pipelineID string) (*domain.Job, error)
	RecentByPipeline(ctx context.Context, pipelineID string, n int) ([]*domain.Job, error)
}

// Registry is the subset of the Pipeline Registry the aggregator reads.
type Registry interface {
	IDs() []string
	HumanName(pipelineID string) string
}

// Scheduler supplies the currently-scheduled retry set, for the global
// retryMetrics bucketing. QueuedRetries returns every job presently sitting in
// a scheduler queue (i.e. attempt > 1, awaiting NextRunAt).
type Scheduler interface {
	QueuedRetries() []*domain.Job
}

// Aggregator computes status.Snapshot on demand; it holds no counters.
type Aggregator struct {
	store       Store
	registry    Registry
	scheduler   Scheduler
	maxAttempts int
}

// New builds an Aggregator. maxAttempts feeds the nearingLimit bucket
// (attempt >= maxAttempts-1).
func New(store Store, registry Registry, scheduler Scheduler, maxAttempts int) *Aggregator {
	return &Aggregator{store: store, registry: registry, scheduler: scheduler, maxAttempts: maxAttempts}
}

// Snapshot computes the full system-status document.
func (a *Aggregator) Snapshot(ctx context.Context) (Snapshot, error) {
	ids, err := a.pipelineIDs(ctx)
	if err != nil {
		return Snapshot{}, err
	}

	pipelines := make([]PipelineStatus, 0, len(ids))
	for _, id := range ids {
		ps, err := a.pipelineStatus(ctx, id)
		if err != nil {
			return Snapshot{}, err
		}
		pipelines = append(pipelines, ps)
	}

	return Snapshot{
		Pipelines:    pipelines,
		RetryMetrics: a.retryMetrics(),
	}, nil
}

// Pipeline computes the status document for a single pipeline id.
func (a *Aggregator) Pipeline(ctx context.Context, pipelineID string) (PipelineStatus, error) {
	return a.pipelineStatus(ctx, pipelineID)
}

// pipelineIDs is the union of Registry.IDs() and
// Store.DistinctPipelineIds(); must not fabricate data when
// both report zero.
func (a *Aggregator) pipelineIDs(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string

	for _, id := range a.registry.IDs() {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}

	storeIDs, err := a.store.DistinctPipelineIds(ctx)
	if err != nil {
		return nil, err
	}
	for _, id := range storeIDs {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}

	sort.Strings(out)
	return out, nil
}

func (a *Aggregator) pipelineStatus(ctx context.Context, id string) (PipelineStatus, error) {
	counts, err := a.store.Counts(ctx, id)
	if err != nil {
		return PipelineStatus{}, err
	}

	ps := PipelineStatus{
		ID:            id,
		Name:          a.registry.HumanName(id),
		CompletedJobs: counts.Completed,
		FailedJobs:    counts.Failed,
		Queued:        counts.Queued,
		Running:       counts.Running,
		Status:        StateIdle,
	}

	last, err := a.store.LastJob(ctx, id)
	switch {
	case err == nil && last != nil:
		ps.LastRun = &lastRun{JobID: last.ID, Status: last.Status, At: last.CreatedAt}
		ps.NextRun = nextRunOf(last)
	default:
		// No rows yet for this pipeline id (freshly registered, never
		// triggered): leave LastRun nil and fall through to idle.
	}

	recent, err := a.store.RecentByPipeline(ctx, id, recentWindow)
	if err != nil {
		return PipelineStatus{}, err
	}
	ps.Status = deriveState(last, recent)

	return ps, nil
}

// deriveState implements status rule: running iff the last
// job is running; else failing iff failed > completed over the recent
// window; else idle.
func deriveState(last *domain.Job, recent []*domain.Job) PipelineState {
	if last != nil && last.Status == domain.StatusRunning {
		return StateRunning
	}

	var failed, completed int
	for _, j := range recent {
		switch j.Status {
		case domain.StatusFailed:
			failed++
		case domain.StatusCompleted:
			completed++
		}
	}
	if failed > completed {
		return StateFailing
	}
	return StateIdle
}

func nextRunOf(last *domain.Job) *time.Time {
	if last == nil || last.NextRunAt == nil {
		return nil
	}
	t := *last.NextRunAt
	return &t
}

// retryMetrics buckets every job the scheduler currently has queued for
// retry (attempt > 1) by attempt tier.
func (a *Aggregator) retryMetrics() RetryBucket {
	var b RetryBucket
	if a.scheduler == nil {
		return b
	}
	limit := a.maxAttempts - 1
	for _, job := range a.scheduler.QueuedRetries() {
		switch {
		case job.Attempt <= 1:
			b.Attempt1++
		case job.Attempt == 2:
			b.Attempt2++
		default:
			b.Attempt3Plus++
		}
		if job.Attempt >= limit {
			b.NearingLimit++
		}
	}
	return b
}
