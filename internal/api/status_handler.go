package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/integritystudio/alephauto/internal/clock"
	"github.com/integritystudio/alephauto/internal/status"
)

// Aggregator is the subset of the Status Aggregator the API depends on.
type Aggregator interface {
	Snapshot(ctx context.Context) (status.Snapshot, error)
	Pipeline(ctx context.Context, pipelineID string) (status.PipelineStatus, error)
}

// StatusHandler implements GET /api/status and GET /api/pipelines/:id/status.
type StatusHandler struct {
	aggregator Aggregator
	ids        *clock.IDGenerator
}

// NewStatusHandler builds a StatusHandler.
func NewStatusHandler(aggregator Aggregator, ids *clock.IDGenerator) *StatusHandler {
	return &StatusHandler{aggregator: aggregator, ids: ids}
}

// System handles GET /api/status.
func (h *StatusHandler) System(c *gin.Context) {
	snapshot, err := h.aggregator.Snapshot(c.Request.Context())
	if err != nil {
		writeError(c, h.ids, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

// Pipeline handles GET /api/pipelines/:id/status.
func (h *StatusHandler) Pipeline(c *gin.Context) {
	ps, err := h.aggregator.Pipeline(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.ids, err)
		return
	}
	c.JSON(http.StatusOK, ps)
}
