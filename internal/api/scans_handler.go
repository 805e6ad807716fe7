package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/integritystudio/alephauto/internal/apperr"
	"github.com/integritystudio/alephauto/internal/clock"
	"github.com/integritystudio/alephauto/internal/domain"
	"github.com/integritystudio/alephauto/internal/store"
)

// DefaultScanPipelineID is the pipeline the legacy /api/scans/* surface
// is bound to.
const DefaultScanPipelineID = "duplicate-detection"

// ScansHandler implements the legacy single-pipeline convenience routes,
// each a thin wrapper over the generic JobsHandler bound to
// DefaultScanPipelineID.
type ScansHandler struct {
	jobs  *JobsHandler
	store Store
	ids   *clock.IDGenerator
	clk   clock.Clock
}

// NewScansHandler builds a ScansHandler sharing state with jobs.
func NewScansHandler(jobs *JobsHandler, st Store, ids *clock.IDGenerator, clk clock.Clock) *ScansHandler {
	return &ScansHandler{jobs: jobs, store: st, ids: ids, clk: clk}
}

// Start handles POST /api/scans/start.
func (h *ScansHandler) Start(c *gin.Context) {
	var req ScanStartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, h.ids, apperr.Wrap(apperr.KindValidation, "invalid request body", err))
		return
	}
	if req.RepositoryPath == "" {
		writeError(c, h.ids, apperr.New(apperr.KindValidation, "repositoryPath is required"))
		return
	}

	job, err := h.jobs.newJob(DefaultScanPipelineID, map[string]any{
		"repositoryPath": req.RepositoryPath,
		"options":        req.Options,
		"scan_type":      "single-project",
	})
	if err != nil {
		writeError(c, h.ids, apperr.Wrap(apperr.KindValidation, "encode job data", err))
		return
	}
	if err := h.jobs.scheduler.Enqueue(c.Request.Context(), job); err != nil {
		writeError(c, h.ids, err)
		return
	}

	c.JSON(http.StatusCreated, TriggerResponse{
		JobID:      job.ID,
		Status:     string(job.Status),
		StatusURL:  "/api/scans/" + job.ID + "/status",
		ResultsURL: "/api/scans/" + job.ID + "/results",
	})
}

// StartMulti handles POST /api/scans/start-multi.
func (h *ScansHandler) StartMulti(c *gin.Context) {
	var req ScanStartMultiRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, h.ids, apperr.Wrap(apperr.KindValidation, "invalid request body", err))
		return
	}
	if len(req.RepositoryPaths) < 2 {
		writeError(c, h.ids, apperr.New(apperr.KindValidation, "repositoryPaths must contain at least 2 entries"))
		return
	}

	jobs := make([]*domain.Job, 0, len(req.RepositoryPaths))
	for _, path := range req.RepositoryPaths {
		job, err := h.jobs.newJob(DefaultScanPipelineID, map[string]any{
			"repositoryPath": path,
			"groupName":      req.GroupName,
			"scan_type":      "multi-project",
		})
		if err != nil {
			writeError(c, h.ids, apperr.Wrap(apperr.KindValidation, "encode job data", err))
			return
		}
		if err := h.jobs.scheduler.Enqueue(c.Request.Context(), job); err != nil {
			writeError(c, h.ids, err)
			return
		}
		jobs = append(jobs, job)
	}

	ids := make([]string, 0, len(jobs))
	for _, j := range jobs {
		ids = append(ids, j.ID)
	}
	c.JSON(http.StatusCreated, gin.H{"jobIds": ids, "groupName": req.GroupName, "status": "queued"})
}

// Recent handles GET /api/scans/recent.
func (h *ScansHandler) Recent(c *gin.Context) {
	limit := clampLimit(queryInt(c, "limit", 20), 100)
	jobs, err := h.store.ListByPipeline(c.Request.Context(), DefaultScanPipelineID, store.ListFilter{Limit: limit})
	if err != nil {
		writeError(c, h.ids, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"scans": jobs, "count": len(jobs)})
}

// Stats handles GET /api/scans/stats.
func (h *ScansHandler) Stats(c *gin.Context) {
	jobs, err := h.store.ListByPipeline(c.Request.Context(), DefaultScanPipelineID, store.ListFilter{Limit: 100})
	if err != nil {
		writeError(c, h.ids, err)
		return
	}

	totals := map[string]int{}
	for _, j := range jobs {
		totals[string(j.Status)]++
	}
	c.JSON(http.StatusOK, gin.H{"totals": totals, "averages": gin.H{"sampleSize": len(jobs)}})
}
