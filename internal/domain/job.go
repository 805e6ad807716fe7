// Package domain holds the data model shared across the job control
// plane: Job, PipelineDescriptor, RetryRecord and Subscriber.
package domain

import (
	"context"
	"time"
)

// Status is a Job's lifecycle state.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// JobError is the structured error recorded on a terminally-failed Job.
type JobError struct {
	Kind           string `json:"kind"`
	Message        string `json:"message"`
	Stack          string `json:"stack,omitempty"`
	Classification string `json:"classification,omitempty"`
}

// GitInfo records the git side effects a worker produced, if any.
type GitInfo struct {
	Branch       string   `json:"branch,omitempty"`
	Commit       string   `json:"commit,omitempty"`
	PRURL        string   `json:"prUrl,omitempty"`
	ChangedFiles []string `json:"changedFiles,omitempty"`
}

// Job is a single unit of work belonging to a pipeline.
type Job struct {
	ID          string     `db:"id"           json:"id"`
	PipelineID  string     `db:"pipeline_id"  json:"pipeline_id"`
	Status      Status     `db:"status"       json:"status"`
	CreatedAt   time.Time  `db:"created_at"   json:"created_at"`
	StartedAt   *time.Time `db:"started_at"   json:"started_at,omitempty"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	Data        JSONBlob   `db:"data"         json:"data"`
	Result      JSONBlob   `db:"result"       json:"result,omitempty"`
	Error       *JobError  `db:"error"        json:"error,omitempty"`
	Attempt     int        `db:"attempt"      json:"attempt"`
	Git         *GitInfo   `db:"git"          json:"git,omitempty"`
	NextRunAt   *time.Time `db:"next_run_at"  json:"next_run_at,omitempty"`
}

// PipelineDescriptor registers a pipeline and its worker factory.
type PipelineDescriptor struct {
	ID                     string
	HumanName              string
	WorkerFactory          WorkerFactory
	DefaultConcurrencyCost int
	RetryPolicyOverride    *RetryPolicy
	Cron                   string
}

// RetryPolicy overrides the scheduler's default backoff/attempt cap for a
// single pipeline.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Factor      float64
}

// RetryRecord tracks a scheduled retry.
type RetryRecord struct {
	JobID     string
	Attempt   int
	NextRunAt time.Time
	Reason    string
}

// Subscriber is a connected push-channel session.
type Subscriber struct {
	SessionID    string
	ConnectedAt  time.Time
	DroppedCount int
}

// Counts summarizes a pipeline's job status distribution.
type Counts struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Running   int `json:"running"`
	Queued    int `json:"queued"`
	Cancelled int `json:"cancelled"`
}

// WorkerFactory produces a Worker able to execute jobs for a pipeline. It
// is implemented in internal/worker; declared here to avoid an import
// cycle between domain and worker.
type WorkerFactory func() Worker

// Worker is the contract a pipeline implementation must satisfy.
type Worker interface {
	Run(ctx context.Context, job *Job, sink ProgressSink) (result JSONBlob, err error)
}

// ProgressSink receives progress notifications from a running worker.
type ProgressSink interface {
	Progress(fraction float64, message string)
	Warn(message string)
}
