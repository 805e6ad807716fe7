package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/integritystudio/alephauto/internal/apperr"
	"github.com/integritystudio/alephauto/internal/clock"
	"github.com/integritystudio/alephauto/internal/domain"
	"github.com/integritystudio/alephauto/internal/store"
)

// Scheduler is the subset of the scheduler the API depends on.
type Scheduler interface {
	Enqueue(ctx context.Context, job *domain.Job) error
	Cancel(ctx context.Context, jobID string) error
}

// Store is the subset of the Job Store the API depends on.
type Store interface {
	Get(ctx context.Context, id string) (*domain.Job, error)
	ListByPipeline(ctx context.Context, pipelineID string, f store.ListFilter) ([]*domain.Job, error)
}

// JobsHandler implements the generic pipeline trigger/cancel/list
// endpoints.
type JobsHandler struct {
	scheduler Scheduler
	store     Store
	ids       *clock.IDGenerator
	clk       clock.Clock
}

// NewJobsHandler builds a JobsHandler.
func NewJobsHandler(scheduler Scheduler, store Store, ids *clock.IDGenerator, clk clock.Clock) *JobsHandler {
	return &JobsHandler{scheduler: scheduler, store: store, ids: ids, clk: clk}
}

// Trigger handles POST /api/pipelines/:id/trigger.
func (h *JobsHandler) Trigger(c *gin.Context) {
	pipelineID := c.Param("id")

	var req TriggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, h.ids, apperr.Wrap(apperr.KindValidation, "invalid request body", err))
		return
	}
	repoPath, _ := req.Parameters["repositoryPath"].(string)
	if repoPath == "" {
		writeError(c, h.ids, apperr.New(apperr.KindValidation, "parameters.repositoryPath is required"))
		return
	}

	job, err := h.newJob(pipelineID, req.Parameters)
	if err != nil {
		writeError(c, h.ids, apperr.Wrap(apperr.KindValidation, "encode job data", err))
		return
	}

	if err := h.scheduler.Enqueue(c.Request.Context(), job); err != nil {
		writeError(c, h.ids, err)
		return
	}

	c.JSON(http.StatusCreated, TriggerResponse{
		JobID:      job.ID,
		PipelineID: job.PipelineID,
		Status:     string(job.Status),
	})
}

// Cancel handles DELETE /api/scans/:scanId and DELETE /api/pipelines/:id/jobs/:jobId.
func (h *JobsHandler) Cancel(c *gin.Context) {
	jobID := c.Param("jobId")
	if jobID == "" {
		jobID = c.Param("scanId")
	}
	if jobID == "" {
		jobID = c.Param("id")
	}

	if err := h.scheduler.Cancel(c.Request.Context(), jobID); err != nil {
		writeError(c, h.ids, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "job cancelled"})
}

// ListJobs handles GET /api/pipelines/:id/jobs.
func (h *JobsHandler) ListJobs(c *gin.Context) {
	pipelineID := c.Param("id")

	f := store.ListFilter{
		Limit:  queryInt(c, "limit", 50),
		Offset: queryInt(c, "offset", 0),
	}
	if s := c.Query("status"); s != "" {
		st := domain.Status(s)
		f.Status = &st
	}

	jobs, err := h.store.ListByPipeline(c.Request.Context(), pipelineID, f)
	if err != nil {
		writeError(c, h.ids, err)
		return
	}

	c.JSON(http.StatusOK, JobsListResponse{
		Jobs:    jobs,
		Total:   len(jobs),
		HasMore: len(jobs) == f.Limit,
	})
}

// GetJobStatus handles GET /api/scans/:scanId/status.
func (h *JobsHandler) GetJobStatus(c *gin.Context) {
	job, err := h.store.Get(c.Request.Context(), c.Param("scanId"))
	if err != nil {
		writeError(c, h.ids, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"scan_id": job.ID,
		"status":  job.Status,
		"attempt": job.Attempt,
	})
}

// GetJobResults handles GET /api/scans/:scanId/results.
func (h *JobsHandler) GetJobResults(c *gin.Context) {
	job, err := h.store.Get(c.Request.Context(), c.Param("scanId"))
	if err != nil {
		writeError(c, h.ids, err)
		return
	}
	if c.Query("format") == "summary" {
		c.JSON(http.StatusOK, gin.H{"summary": job.Result})
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": job.Result})
}

func (h *JobsHandler) newJob(pipelineID string, data map[string]any) (*domain.Job, error) {
	raw, err := marshalData(data)
	if err != nil {
		return nil, err
	}
	return &domain.Job{
		ID:         h.ids.NewJobID(pipelineID),
		PipelineID: pipelineID,
		Status:     domain.StatusQueued,
		CreatedAt:  h.clk.Now(),
		Data:       raw,
		Attempt:    1,
	}, nil
}

func queryInt(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
