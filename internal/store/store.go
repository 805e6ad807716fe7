// Package store implements the Job Store: the authoritative,
// durably-persisted record of Job rows, backed by a single-file embedded
// SQLite database accessed through sqlx.
//
// This is a deliberate driver swap away from a PostgreSQL + jmoiron/sqlx
// combination: the column layout, connection-pool tuning pattern
// (internal/database/postgres.go) and repository method shapes
// (internal/database/job_repository.go) are kept; the wire dialect
// ($N placeholders, NOW(), NULLS LAST) is translated to SQLite's.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/integritystudio/alephauto/internal/apperr"
	"github.com/integritystudio/alephauto/internal/clock"
	"github.com/integritystudio/alephauto/internal/config"
	"github.com/integritystudio/alephauto/internal/domain"
	"github.com/integritystudio/alephauto/internal/logging"
)

// Store is the Job Store: the single owner of durable Job state.
type Store struct {
	db     *sqlx.DB
	clock  clock.Clock
	logger logging.Logger
}

const jobColumns = `id, pipeline_id, status, created_at, started_at, completed_at,
	data, result, error, attempt, git, next_run_at`

// Open connects to the SQLite database at cfg.Path, tunes the
// connection pool the way NewPostgresConnection does, verifies
// connectivity, and runs pending schema migrations.
func Open(ctx context.Context, cfg config.DatabaseConfig, clk clock.Clock, log logging.Logger) (*Store, error) {
	db, err := sqlx.Connect("sqlite3", cfg.Path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "open database", err)
	}

	// SQLite is single-writer; a large open-connection pool just causes
	// SQLITE_BUSY contention, so this is deliberately smaller than a
	// typical Postgres pool.
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "ping database", err)
	}

	s := &Store{db: db, clock: clk, logger: log}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying *sqlx.DB for health probes only.
func (s *Store) DB() *sqlx.DB { return s.db }

// Insert durably commits a new queued Job.
func (s *Store) Insert(ctx context.Context, job *domain.Job) error {
	if job.Status == "" {
		job.Status = domain.StatusQueued
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = s.clock.Now()
	}
	if job.Attempt == 0 {
		job.Attempt = 1
	}

	const q = `INSERT INTO jobs (id, pipeline_id, status, created_at, data, attempt)
		VALUES (:id, :pipeline_id, :status, :created_at, :data, :attempt)`

	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":          job.ID,
		"pipeline_id": job.PipelineID,
		"status":      job.Status,
		"created_at":  job.CreatedAt,
		"data":        []byte(job.Data),
		"attempt":     job.Attempt,
	})
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.Wrap(apperr.KindDuplicateID, job.ID, err)
		}
		return apperr.Wrap(apperr.KindStorage, "insert job", err)
	}
	return nil
}

// Patch carries the optional fields a transition may set.
type Patch struct {
	StartedAt   *time.Time
	CompletedAt *time.Time
	Result      domain.JSONBlob
	Error       *domain.JobError
	Attempt     *int
	Git         *domain.GitInfo
	NextRunAt   *time.Time
}

// Transition performs a compare-and-set status change: it reads the
// current status, validates the requested move against the allowed
// lifecycle shape, and only then commits, all inside a single
// transaction so concurrent transitions on the same id are
// linearised.
func (s *Store) Transition(ctx context.Context, id string, newStatus domain.Status, patch Patch) (*domain.Job, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "begin transition tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	job, err := s.getTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if err := domain.ValidateStateTransition(job.Status, newStatus); err != nil {
		return nil, apperr.Wrap(apperr.KindIllegalState, err.Error(), err)
	}

	job.Status = newStatus
	if patch.StartedAt != nil {
		job.StartedAt = patch.StartedAt
	}
	if patch.CompletedAt != nil {
		job.CompletedAt = patch.CompletedAt
	}
	if patch.Result != nil {
		job.Result = patch.Result
	}
	if patch.Error != nil {
		job.Error = patch.Error
	}
	if patch.Attempt != nil {
		job.Attempt = *patch.Attempt
	}
	if patch.Git != nil {
		job.Git = patch.Git
	}
	job.NextRunAt = patch.NextRunAt

	const q = `UPDATE jobs SET status=:status, started_at=:started_at, completed_at=:completed_at,
		result=:result, error=:error, attempt=:attempt, git=:git, next_run_at=:next_run_at
		WHERE id=:id`

	res, err := tx.NamedExecContext(ctx, q, map[string]any{
		"status":       job.Status,
		"started_at":   job.StartedAt,
		"completed_at": job.CompletedAt,
		"result":       nullableJSON(job.Result),
		"error":        marshalJobError(job.Error),
		"attempt":      job.Attempt,
		"git":          marshalGit(job.Git),
		"next_run_at":  job.NextRunAt,
		"id":           job.ID,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "update job", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, apperr.New(apperr.KindNotFound, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "commit transition", err)
	}
	return job, nil
}

// Get returns a single Job by id.
func (s *Store) Get(ctx context.Context, id string) (*domain.Job, error) {
	row := jobRow{}
	err := s.db.GetContext(ctx, &row, fmt.Sprintf(`SELECT %s FROM jobs WHERE id = ?`, jobColumns), id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.New(apperr.KindNotFound, id)
		}
		return nil, apperr.Wrap(apperr.KindStorage, "get job", err)
	}
	return row.toDomain()
}

func (s *Store) getTx(ctx context.Context, tx *sqlx.Tx, id string) (*domain.Job, error) {
	row := jobRow{}
	err := tx.GetContext(ctx, &row, fmt.Sprintf(`SELECT %s FROM jobs WHERE id = ?`, jobColumns), id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.New(apperr.KindNotFound, id)
		}
		return nil, apperr.Wrap(apperr.KindStorage, "get job", err)
	}
	return row.toDomain()
}

// ListFilter is the optional query narrowing for ListByPipeline.
type ListFilter struct {
	Status *domain.Status
	Limit  int
	Offset int
}

const maxListLimit = 100

// ListByPipeline returns jobs for pipelineID ordered by created_at DESC,
// limit clamped to 100.
func (s *Store) ListByPipeline(ctx context.Context, pipelineID string, f ListFilter) ([]*domain.Job, error) {
	limit := f.Limit
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}
	q := fmt.Sprintf(`SELECT %s FROM jobs WHERE pipeline_id = ?`, jobColumns)
	args := []any{pipelineID}
	if f.Status != nil {
		q += ` AND status = ?`
		args = append(args, *f.Status)
	}
	q += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, f.Offset)

	var rows []jobRow
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "list jobs", err)
	}
	out := make([]*domain.Job, 0, len(rows))
	for _, r := range rows {
		j, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, nil
}

// DistinctPipelineIds returns every pipeline id ever observed.
func (s *Store) DistinctPipelineIds(ctx context.Context) ([]string, error) {
	var ids []string
	if err := s.db.SelectContext(ctx, &ids, `SELECT DISTINCT pipeline_id FROM jobs`); err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "distinct pipeline ids", err)
	}
	return ids, nil
}

// Counts returns the status distribution for pipelineID.
func (s *Store) Counts(ctx context.Context, pipelineID string) (domain.Counts, error) {
	var rows []struct {
		Status string `db:"status"`
		N      int    `db:"n"`
	}
	err := s.db.SelectContext(ctx, &rows,
		`SELECT status, COUNT(*) AS n FROM jobs WHERE pipeline_id = ? GROUP BY status`, pipelineID)
	if err != nil {
		return domain.Counts{}, apperr.Wrap(apperr.KindStorage, "counts", err)
	}
	var c domain.Counts
	for _, r := range rows {
		c.Total += r.N
		switch domain.Status(r.Status) {
		case domain.StatusCompleted:
			c.Completed = r.N
		case domain.StatusFailed:
			c.Failed = r.N
		case domain.StatusRunning:
			c.Running = r.N
		case domain.StatusQueued:
			c.Queued = r.N
		case domain.StatusCancelled:
			c.Cancelled = r.N
		}
	}
	return c, nil
}

// LastJob returns the most recently created row for pipelineID, or
// NotFound if the pipeline has no rows.
func (s *Store) LastJob(ctx context.Context, pipelineID string) (*domain.Job, error) {
	row := jobRow{}
	q := fmt.Sprintf(`SELECT %s FROM jobs WHERE pipeline_id = ? ORDER BY created_at DESC LIMIT 1`, jobColumns)
	if err := s.db.GetContext(ctx, &row, q, pipelineID); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.New(apperr.KindNotFound, pipelineID)
		}
		return nil, apperr.Wrap(apperr.KindStorage, "last job", err)
	}
	return row.toDomain()
}

// RecentByPipeline returns the N most recent jobs, used by the Status
// Aggregator's failing/idle derivation.
func (s *Store) RecentByPipeline(ctx context.Context, pipelineID string, n int) ([]*domain.Job, error) {
	return s.ListByPipeline(ctx, pipelineID, ListFilter{Limit: n})
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(strings.ToUpper(err.Error()), "UNIQUE CONSTRAINT")
}
