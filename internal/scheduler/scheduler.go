// Package scheduler implements the Scheduler/Queue: a single
// global concurrency semaphore, per-pipeline FIFO admission in
// round-robin order, exponential backoff retry with an attempt-count
// circuit breaker, and cooperative cancellation with grace-period
// escalation.
//
// Follows internal/scheduler/interval_scheduler.go's poll loop and
// acquireJobLock/executeJob/runJob/handleJobSuccess/handleJobFailure/
// calculateBackoff/cancelAllActiveJobs shape, and
// internal/scheduler/state_machine.go's state machine (reused via
// internal/domain, which describes the same kind of state machine).
package scheduler

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/integritystudio/alephauto/internal/apperr"
	"github.com/integritystudio/alephauto/internal/clock"
	"github.com/integritystudio/alephauto/internal/config"
	"github.com/integritystudio/alephauto/internal/domain"
	"github.com/integritystudio/alephauto/internal/eventbus"
	"github.com/integritystudio/alephauto/internal/logging"
	"github.com/integritystudio/alephauto/internal/registry"
	"github.com/integritystudio/alephauto/internal/store"
	"github.com/integritystudio/alephauto/internal/worker"
)

// StorePatch is an alias for store.Patch: the scheduler and the Job
// Store agree on the same patch shape for transition calls.
type StorePatch = store.Patch

// Store is the subset of the Job Store the scheduler depends on.
type Store interface {
	Insert(ctx context.Context, job *domain.Job) error
	Transition(ctx context.Context, id string, newStatus domain.Status, patch StorePatch) (*domain.Job, error)
	Get(ctx context.Context, id string) (*domain.Job, error)
}

type runningJob struct {
	job    *domain.Job
	cancel context.CancelFunc
	done   chan struct{}
}

// Scheduler is the in-memory admission loop that runs registered
// pipelines under a global concurrency cap.
type Scheduler struct {
	cfg      config.SchedulerConfig
	store    Store
	bus      *eventbus.Bus
	runtime  *worker.Runtime
	registry *registry.Registry
	clock    clock.Clock
	logger   logging.Logger

	sem chan struct{}

	mu           sync.Mutex
	queues       map[string][]*domain.Job // pipelineID -> FIFO of queued jobs
	pipelineIDs  []string                 // round-robin order
	active       map[string]int           // pipelineID -> count of running jobs
	running      map[string]*runningJob   // jobID -> running bookkeeping

	tickCh chan struct{}
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New builds a Scheduler. Call Start to begin the admission loop.
func New(cfg config.SchedulerConfig, store Store, bus *eventbus.Bus, rt *worker.Runtime, reg *registry.Registry, clk clock.Clock, logger logging.Logger) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		store:    store,
		bus:      bus,
		runtime:  rt,
		registry: reg,
		clock:    clk,
		logger:   logger,
		sem:      make(chan struct{}, cfg.Concurrency),
		queues:   make(map[string][]*domain.Job),
		active:   make(map[string]int),
		running:  make(map[string]*runningJob),
		tickCh:   make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
	}
}

// Enqueue inserts job into the FIFO for its pipeline and emits
// job:created.
func (s *Scheduler) Enqueue(ctx context.Context, job *domain.Job) error {
	if _, err := s.registry.Resolve(job.PipelineID); err != nil {
		return err
	}
	if err := s.store.Insert(ctx, job); err != nil {
		return err
	}

	s.mu.Lock()
	if _, ok := s.queues[job.PipelineID]; !ok {
		s.pipelineIDs = append(s.pipelineIDs, job.PipelineID)
	}
	s.queues[job.PipelineID] = append(s.queues[job.PipelineID], job)
	s.mu.Unlock()

	s.bus.Publish(eventbus.Event{Name: eventbus.JobCreated, JobID: job.ID, PipelineID: job.PipelineID})
	s.poke()
	return nil
}

// Cancel cancels a job: queued jobs are dropped and
// transitioned directly; running jobs have their context cancelled.
// Escalation to hard termination after CancelGraceMS is done by
// SubprocessWorker (SIGTERM, then SIGKILL); an in-process worker is only
// signalled through its context.
func (s *Scheduler) Cancel(ctx context.Context, jobID string) error {
	s.mu.Lock()
	if rj, ok := s.running[jobID]; ok {
		s.mu.Unlock()
		rj.cancel()
		s.bus.Publish(eventbus.Event{Name: eventbus.JobCancelled, JobID: jobID})
		return nil
	}

	for pid, q := range s.queues {
		for i, j := range q {
			if j.ID == jobID {
				s.queues[pid] = append(q[:i], q[i+1:]...)
				s.mu.Unlock()
				_, err := s.store.Transition(ctx, jobID, domain.StatusCancelled, StorePatch{CompletedAt: timePtr(s.clock.Now())})
				if err == nil {
					s.bus.Publish(eventbus.Event{Name: eventbus.JobCancelled, JobID: jobID, PipelineID: pid})
				}
				return err
			}
		}
	}
	s.mu.Unlock()

	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if !domain.CanCancel(job.Status) {
		return apperr.New(apperr.KindNotCancellable, jobID)
	}

	updated, err := s.store.Transition(ctx, jobID, domain.StatusCancelled, StorePatch{CompletedAt: timePtr(s.clock.Now())})
	if err != nil {
		return err
	}
	s.bus.Publish(eventbus.Event{Name: eventbus.JobCancelled, JobID: updated.ID, PipelineID: updated.PipelineID})
	return nil
}

// QueuedRetries returns every job currently sitting in a pipeline queue
// with attempt > 1, i.e. scheduled for retry rather than its first
// attempt. Used by the Status Aggregator's retry-metrics bucketing.
func (s *Scheduler) QueuedRetries() []*domain.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Job
	for _, q := range s.queues {
		for _, j := range q {
			if j.Attempt > 1 {
				out = append(out, j)
			}
		}
	}
	return out
}

func (s *Scheduler) poke() {
	select {
	case s.tickCh <- struct{}{}:
	default:
	}
}

func timePtr(t time.Time) *time.Time { return &t }

func jitter(base time.Duration, rnd *rand.Rand) time.Duration {
	if base <= 0 {
		return 0
	}
	delta := time.Duration(rnd.Int63n(int64(base) / 2))
	return base + delta
}
