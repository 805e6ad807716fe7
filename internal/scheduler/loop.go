package scheduler

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/integritystudio/alephauto/internal/apperr"
	"github.com/integritystudio/alephauto/internal/domain"
	"github.com/integritystudio/alephauto/internal/eventbus"
)

const tickInterval = 200 * time.Millisecond

// Start begins the admission loop and blocks until ctx is cancelled or
// Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := s.clock.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.cancelAllActive()
			s.wg.Wait()
			return
		case <-s.stopCh:
			s.cancelAllActive()
			s.wg.Wait()
			return
		case <-ticker.C:
			s.tick(ctx)
		case <-s.tickCh:
			s.tick(ctx)
		}
	}
}

// Stop signals Start to return after draining running jobs.
func (s *Scheduler) Stop() { close(s.stopCh) }

// tick is the internal admission loop. It round-robins pipeline queues;
// for each head-of-line job ready to run it tries to acquire a global
// permit, bounded additionally by PER_PIPELINE_MAX.
func (s *Scheduler) tick(ctx context.Context) {
	now := s.clock.Now()

	s.mu.Lock()
	pipelines := append([]string(nil), s.pipelineIDs...)
	s.mu.Unlock()

	for _, pid := range pipelines {
		s.admitFromPipeline(ctx, pid, now)
	}
}

func (s *Scheduler) admitFromPipeline(ctx context.Context, pid string, now time.Time) {
	s.mu.Lock()
	q := s.queues[pid]
	if len(q) == 0 {
		s.mu.Unlock()
		return
	}
	head := q[0]
	if head.NextRunAt != nil && head.NextRunAt.After(now) {
		s.mu.Unlock()
		return
	}
	if s.active[pid] >= s.perPipelineMax() {
		s.mu.Unlock()
		return
	}

	select {
	case s.sem <- struct{}{}:
	default:
		s.mu.Unlock()
		return
	}

	s.queues[pid] = q[1:]
	s.active[pid]++
	s.mu.Unlock()

	s.runJob(ctx, head)
}

func (s *Scheduler) perPipelineMax() int {
	if s.cfg.PerPipelineMax > 0 {
		return s.cfg.PerPipelineMax
	}
	return s.cfg.Concurrency
}

// runJob admits job into the running state and spawns its attempt.
func (s *Scheduler) runJob(ctx context.Context, job *domain.Job) {
	runCtx, cancel := context.WithCancel(ctx)

	started := s.clock.Now()
	updated, err := s.store.Transition(ctx, job.ID, domain.StatusRunning, StorePatch{StartedAt: &started})
	if err != nil {
		cancel()
		s.requeueAfterAdmitFailure(job)
		s.logger.Error("scheduler: transition to running failed, requeued", zapErr(err), zap.String("job_id", job.ID))
		return
	}
	job = updated

	done := make(chan struct{})
	s.mu.Lock()
	s.running[job.ID] = &runningJob{job: job, cancel: cancel, done: done}
	s.mu.Unlock()

	s.bus.Publish(eventbus.Event{Name: eventbus.JobStarted, JobID: job.ID, PipelineID: job.PipelineID})

	descriptor, resolveErr := s.registry.Resolve(job.PipelineID)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(done)
		defer s.finishJob(job.PipelineID, job.ID)
		defer cancel()

		var result domain.JSONBlob
		var runErr error
		if resolveErr != nil {
			runErr = resolveErr
		} else {
			w := descriptor.WorkerFactory()
			result, runErr = s.runtime.Execute(runCtx, job, w)
		}
		s.handleOutcome(ctx, runCtx, job, result, runErr)
	}()
}

// requeueAfterAdmitFailure restores job to the head of its pipeline's
// FIFO and releases the admission slot it was holding, so a failed
// transition-to-running store call neither leaks the active count nor
// loses the in-memory job reference.
func (s *Scheduler) requeueAfterAdmitFailure(job *domain.Job) {
	s.mu.Lock()
	s.active[job.PipelineID]--
	s.queues[job.PipelineID] = append([]*domain.Job{job}, s.queues[job.PipelineID]...)
	s.mu.Unlock()
	s.release(job.PipelineID)
}

func (s *Scheduler) finishJob(pipelineID, jobID string) {
	s.mu.Lock()
	delete(s.running, jobID)
	s.active[pipelineID]--
	s.mu.Unlock()
	s.release(pipelineID)
}

func (s *Scheduler) release(_ string) {
	select {
	case <-s.sem:
	default:
	}
	s.poke()
}

// cancelAllActive cancels every in-flight attempt, for shutdown.
func (s *Scheduler) cancelAllActive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rj := range s.running {
		rj.cancel()
	}
}

func (s *Scheduler) rand() *rand.Rand {
	return rand.New(rand.NewSource(s.clock.Now().UnixNano()))
}

func zapErrKind(err error) string { return string(apperr.KindOf(err)) }
