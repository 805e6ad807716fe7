package scheduler

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/integritystudio/alephauto/internal/apperr"
	"github.com/integritystudio/alephauto/internal/domain"
	"github.com/integritystudio/alephauto/internal/eventbus"
	"github.com/integritystudio/alephauto/internal/logging"
)

func zapErr(err error) logging.Field { return zap.Error(err) }

// handleOutcome routes a finished attempt to success, retry, or terminal
// failure, following the handleJobSuccess/handleJobFailure split in
// internal/scheduler/interval_scheduler.go. storeCtx persists
// the outcome and must outlive runCtx, which may already be cancelled
// by the time the worker returns; runCtx is consulted only to tell a
// cancellation apart from an ordinary failure.
func (s *Scheduler) handleOutcome(storeCtx, runCtx context.Context, job *domain.Job, result domain.JSONBlob, runErr error) {
	if runErr == nil {
		s.handleSuccess(storeCtx, job, result)
		return
	}

	if runCtx.Err() != nil && apperr.KindOf(runErr) != apperr.KindRetryable {
		s.handleCancelled(storeCtx, job)
		return
	}

	s.handleFailure(storeCtx, job, runErr)
}

func (s *Scheduler) handleSuccess(ctx context.Context, job *domain.Job, result domain.JSONBlob) {
	completed := s.clock.Now()
	updated, err := s.store.Transition(ctx, job.ID, domain.StatusCompleted, StorePatch{
		CompletedAt: &completed,
		Result:      result,
	})
	if err != nil {
		s.logger.Error("scheduler: transition to completed failed", zapErr(err), zap.String("job_id", job.ID))
		return
	}
	s.bus.Publish(eventbus.Event{Name: eventbus.JobCompleted, JobID: updated.ID, PipelineID: updated.PipelineID, Data: result})
}

func (s *Scheduler) handleCancelled(ctx context.Context, job *domain.Job) {
	completed := s.clock.Now()
	updated, err := s.store.Transition(ctx, job.ID, domain.StatusCancelled, StorePatch{CompletedAt: &completed})
	if err != nil {
		s.logger.Error("scheduler: transition to cancelled failed", zapErr(err), zap.String("job_id", job.ID))
		return
	}
	s.bus.Publish(eventbus.Event{Name: eventbus.JobCancelled, JobID: updated.ID, PipelineID: updated.PipelineID})
}

// handleFailure implements the retry policy and circuit breaker:
// retryable failures under the attempt cap are rescheduled with
// exponential backoff and jitter; non-retryable failures, or retryable
// failures at or beyond the attempt cap (never above HardMaxAttempts),
// become terminal.
func (s *Scheduler) handleFailure(ctx context.Context, job *domain.Job, runErr error) {
	maxAttempts := s.maxAttemptsFor(job.PipelineID)
	retryable := apperr.Retryable(runErr)
	nextAttempt := job.Attempt + 1

	jobErr := &domain.JobError{
		Kind:           string(apperr.KindOf(runErr)),
		Message:        runErr.Error(),
		Classification: classificationOf(retryable),
	}

	if retryable && job.Attempt < maxAttempts {
		s.scheduleRetry(ctx, job, nextAttempt, jobErr)
		return
	}

	// Circuit breaker: attempt cap reached, or non-retryable.
	kind := jobErr.Kind
	if retryable {
		kind = string(apperr.KindCircuitBreak)
		jobErr.Kind = kind
		jobErr.Classification = "circuit_break"
	}

	completed := s.clock.Now()
	updated, err := s.store.Transition(ctx, job.ID, domain.StatusFailed, StorePatch{
		CompletedAt: &completed,
		Error:       jobErr,
	})
	if err != nil {
		s.logger.Error("scheduler: transition to failed failed", zapErr(err), zap.String("job_id", job.ID))
		return
	}
	s.bus.Publish(eventbus.Event{Name: eventbus.JobFailed, JobID: updated.ID, PipelineID: updated.PipelineID, Data: jobErr})
	if kind == string(apperr.KindCircuitBreak) {
		s.bus.Publish(eventbus.Event{Name: eventbus.RetryExhausted, JobID: updated.ID, PipelineID: updated.PipelineID})
	}
}

// scheduleRetry records the failed attempt and re-admits the job for a
// later attempt. The state machine has no direct running → queued
// edge, so this moves the job through running → failed → queued,
// publishing job:failed for the attempt before retry:scheduled for the
// next one.
func (s *Scheduler) scheduleRetry(ctx context.Context, job *domain.Job, nextAttempt int, jobErr *domain.JobError) {
	delay := s.calculateBackoff(nextAttempt)
	nextRunAt := s.clock.Now().Add(delay)
	completed := s.clock.Now()

	failed, err := s.store.Transition(ctx, job.ID, domain.StatusFailed, StorePatch{
		CompletedAt: &completed,
		Error:       jobErr,
	})
	if err != nil {
		s.logger.Error("scheduler: transition to failed (retry) failed", zapErr(err), zap.String("job_id", job.ID))
		return
	}
	s.bus.Publish(eventbus.Event{Name: eventbus.JobFailed, JobID: failed.ID, PipelineID: failed.PipelineID, Data: jobErr})

	updated, err := s.store.Transition(ctx, job.ID, domain.StatusQueued, StorePatch{
		Attempt:   &nextAttempt,
		NextRunAt: &nextRunAt,
	})
	if err != nil {
		s.logger.Error("scheduler: transition to queued (retry) failed", zapErr(err), zap.String("job_id", job.ID))
		return
	}

	s.bus.Publish(eventbus.Event{
		Name:       eventbus.RetryScheduled,
		JobID:      updated.ID,
		PipelineID: updated.PipelineID,
		Data:       map[string]any{"attempt": nextAttempt, "next_run_at": nextRunAt},
	})

	// Warning-level event at attempts 2 and 3, ahead of the circuit
	// breaker tripping at the hard attempt cap.
	if nextAttempt == 2 || nextAttempt == 3 {
		s.bus.Publish(eventbus.Event{Name: eventbus.JobProgress, JobID: updated.ID, PipelineID: updated.PipelineID,
			Data: map[string]any{"level": "warn", "message": "approaching retry limit", "attempt": nextAttempt}})
	}

	s.mu.Lock()
	if _, ok := s.queues[updated.PipelineID]; !ok {
		s.pipelineIDs = append(s.pipelineIDs, updated.PipelineID)
	}
	s.queues[updated.PipelineID] = append(s.queues[updated.PipelineID], updated)
	s.mu.Unlock()
	s.poke()
}

// HardMaxAttempts is the absolute attempt ceiling, never exceeded
// regardless of per-pipeline configuration.
const HardMaxAttempts = 5

func (s *Scheduler) maxAttemptsFor(pipelineID string) int {
	if d, err := s.registry.Resolve(pipelineID); err == nil && d.RetryPolicyOverride != nil && d.RetryPolicyOverride.MaxAttempts > 0 {
		if d.RetryPolicyOverride.MaxAttempts > HardMaxAttempts {
			return HardMaxAttempts
		}
		return d.RetryPolicyOverride.MaxAttempts
	}
	if s.cfg.MaxAttempts > HardMaxAttempts {
		return HardMaxAttempts
	}
	return s.cfg.MaxAttempts
}

// calculateBackoff returns an exponential backoff with jitter, base 1s,
// factor 2, capped at 60s, following internal/scheduler/
// interval_scheduler.go's calculateBackoff.
func (s *Scheduler) calculateBackoff(attempt int) time.Duration {
	base := s.cfg.BaseBackoff
	if base <= 0 {
		base = time.Second
	}
	factor := s.cfg.BackoffFactor
	if factor <= 0 {
		factor = 2
	}
	max := s.cfg.MaxBackoff
	if max <= 0 {
		max = 60 * time.Second
	}

	backoff := float64(base) * math.Pow(factor, float64(attempt-1))
	if backoff > float64(max) {
		backoff = float64(max)
	}
	return jitter(time.Duration(backoff), s.rand())
}

func classificationOf(retryable bool) string {
	if retryable {
		return "retryable"
	}
	return "non-retryable"
}
