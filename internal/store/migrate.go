package store

import (
	"context"
	"fmt"

	"github.com/integritystudio/alephauto/internal/apperr"
)

// migration is one forward-only, idempotent schema step.
type migration struct {
	version int
	stmts   []string
}

var migrations = []migration{
	{
		version: 1,
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`,
			`CREATE TABLE IF NOT EXISTS jobs (
				id           TEXT PRIMARY KEY,
				pipeline_id  TEXT NOT NULL,
				status       TEXT NOT NULL,
				created_at   TIMESTAMP NOT NULL,
				started_at   TIMESTAMP,
				completed_at TIMESTAMP,
				data         BLOB,
				result       BLOB,
				error        BLOB,
				attempt      INTEGER NOT NULL DEFAULT 1,
				git          BLOB,
				next_run_at  TIMESTAMP
			)`,
			`CREATE INDEX IF NOT EXISTS idx_jobs_pipeline_id ON jobs(pipeline_id)`,
			`CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status)`,
			`CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at DESC)`,
		},
	},
}

// migrate applies every migration whose version exceeds the current
// schema_version row, committing each step inside its own transaction.
func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return apperr.Wrap(apperr.KindStorage, "create schema_version table", err)
	}

	current, err := s.schemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := s.applyMigration(ctx, m); err != nil {
			return fmt.Errorf("store: migration %d: %w", m.version, err)
		}
		s.logger.Info("applied schema migration", logField("version", m.version))
	}
	return nil
}

func (s *Store) schemaVersion(ctx context.Context) (int, error) {
	var version int
	err := s.db.GetContext(ctx, &version, `SELECT COALESCE(MAX(version), 0) FROM schema_version`)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindStorage, "read schema_version", err)
	}
	return version, nil
}

func (s *Store) applyMigration(ctx context.Context, m migration) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.KindStorage, "begin migration tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range m.stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return apperr.Wrap(apperr.KindStorage, "exec migration statement", err)
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM schema_version`); err != nil {
		return apperr.Wrap(apperr.KindStorage, "clear schema_version", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (?)`, m.version); err != nil {
		return apperr.Wrap(apperr.KindStorage, "write schema_version", err)
	}
	if err := tx.Commit(); err != nil {
		return apperr.Wrap(apperr.KindStorage, "commit migration", err)
	}
	return nil
}

// Migrate runs all pending migrations and reports the final version; it
// is exposed for the "migrate" CLI subcommand.
func (s *Store) Migrate(ctx context.Context) (int, error) {
	if err := s.migrate(ctx); err != nil {
		return 0, err
	}
	return s.schemaVersion(ctx)
}

// ReconcileInterrupted marks every row left in status=running from a
// prior process lifetime as failed(kind=interrupted).3
// "Failure semantics" — called once during bootstrap before the
// scheduler starts admitting jobs.
func (s *Store) ReconcileInterrupted(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE jobs SET status = ?,
		completed_at = CURRENT_TIMESTAMP,
		error = ?
		WHERE status = ?`,
		string(interruptedStatus()),
		marshalJobError(interruptedError()),
		"running",
	)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindStorage, "reconcile interrupted jobs", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
