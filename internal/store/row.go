package store

import (
	"encoding/json"
	"time"

	"github.com/integritystudio/alephauto/internal/apperr"
	"github.com/integritystudio/alephauto/internal/domain"
)

// jobRow mirrors the jobs table layout for sqlx scanning; domain.Job
// stores structured Error/Git as typed pointers, which sqlite can only
// give us back as raw bytes, so the row type holds them as []byte and
// converts in toDomain.
type jobRow struct {
	ID          string     `db:"id"`
	PipelineID  string     `db:"pipeline_id"`
	Status      string     `db:"status"`
	CreatedAt   time.Time  `db:"created_at"`
	StartedAt   *time.Time `db:"started_at"`
	CompletedAt *time.Time `db:"completed_at"`
	Data        []byte     `db:"data"`
	Result      []byte     `db:"result"`
	Error       []byte     `db:"error"`
	Attempt     int        `db:"attempt"`
	Git         []byte     `db:"git"`
	NextRunAt   *time.Time `db:"next_run_at"`
}

func (r jobRow) toDomain() (*domain.Job, error) {
	j := &domain.Job{
		ID:          r.ID,
		PipelineID:  r.PipelineID,
		Status:      domain.Status(r.Status),
		CreatedAt:   r.CreatedAt,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
		Data:        domain.JSONBlob(r.Data),
		Result:      domain.JSONBlob(r.Result),
		Attempt:     r.Attempt,
		NextRunAt:   r.NextRunAt,
	}
	if len(r.Error) > 0 {
		var e domain.JobError
		if err := json.Unmarshal(r.Error, &e); err != nil {
			return nil, apperr.Wrap(apperr.KindStorage, "decode job error column", err)
		}
		j.Error = &e
	}
	if len(r.Git) > 0 {
		var g domain.GitInfo
		if err := json.Unmarshal(r.Git, &g); err != nil {
			return nil, apperr.Wrap(apperr.KindStorage, "decode job git column", err)
		}
		j.Git = &g
	}
	return j, nil
}

func nullableJSON(b domain.JSONBlob) any {
	if len(b) == 0 {
		return nil
	}
	return []byte(b)
}

func marshalJobError(e *domain.JobError) any {
	if e == nil {
		return nil
	}
	b, _ := json.Marshal(e)
	return b
}

func marshalGit(g *domain.GitInfo) any {
	if g == nil {
		return nil
	}
	b, _ := json.Marshal(g)
	return b
}
