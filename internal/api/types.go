// Package api implements the Read/Mutation API: gin
// route handlers for triggering and cancelling jobs, listing job
// history, the aggregated status document, and the reports directory.
//
// Follows internal/api/api.go's router assembly and middleware
// ordering, and internal/api/v2/{routes,jobs_handler,
// triggers_handler}.go's route-group layout, pagination query-param
// parsing, and binding:"required" request structs.
package api

import "github.com/integritystudio/alephauto/internal/domain"

// TriggerRequest is the body of POST /api/pipelines/:id/trigger.
type TriggerRequest struct {
	Parameters map[string]any `json:"parameters" binding:"required"`
}

// ScanStartRequest is the body of POST /api/scans/start, the legacy
// single-repository alias bound to DefaultScanPipelineID.
type ScanStartRequest struct {
	RepositoryPath string `json:"repositoryPath" binding:"required"`
	Options        struct {
		ForceRefresh bool `json:"forceRefresh"`
	} `json:"options"`
}

// ScanStartMultiRequest is the body of POST /api/scans/start-multi, the
// multi-repository variant of the scan-start alias.
type ScanStartMultiRequest struct {
	RepositoryPaths []string `json:"repositoryPaths" binding:"required"`
	GroupName       string   `json:"groupName"`
}

// TriggerResponse is returned by both the generic trigger endpoint and
// the single-repository scan-start alias (POST /api/scans/start).
type TriggerResponse struct {
	JobID      string `json:"jobId"`
	PipelineID string `json:"pipelineId,omitempty"`
	Status     string `json:"status"`
	StatusURL  string `json:"status_url,omitempty"`
	ResultsURL string `json:"results_url,omitempty"`
}

// JobsListResponse is returned by GET /api/pipelines/:id/jobs.
type JobsListResponse struct {
	Jobs    []*domain.Job `json:"jobs"`
	Total   int           `json:"total"`
	HasMore bool          `json:"hasMore"`
}

// errorBody is the shape of every non-2xx JSON response.
type errorBody struct {
	Error struct {
		Kind          string `json:"kind"`
		Message       string `json:"message"`
		CorrelationID string `json:"correlationId,omitempty"`
	} `json:"error"`
}
