package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/integritystudio/alephauto/internal/apperr"
	"github.com/integritystudio/alephauto/internal/clock"
	"github.com/integritystudio/alephauto/internal/domain"
	"github.com/integritystudio/alephauto/internal/store"
)

func init() { gin.SetMode(gin.TestMode) }

type fakeScheduler struct {
	enqueued   []*domain.Job
	enqueueErr error
	cancelErr  error
	cancelled  []string
}

func (f *fakeScheduler) Enqueue(ctx context.Context, job *domain.Job) error {
	if f.enqueueErr != nil {
		return f.enqueueErr
	}
	f.enqueued = append(f.enqueued, job)
	return nil
}

func (f *fakeScheduler) Cancel(ctx context.Context, jobID string) error {
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.cancelled = append(f.cancelled, jobID)
	return nil
}

type fakeJobStore struct {
	jobs   map[string]*domain.Job
	getErr error
	listed []*domain.Job
	listErr error
	lastFilter store.ListFilter
}

func (f *fakeJobStore) Get(ctx context.Context, id string) (*domain.Job, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	job, ok := f.jobs[id]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "job not found")
	}
	return job, nil
}

func (f *fakeJobStore) ListByPipeline(ctx context.Context, pipelineID string, fl store.ListFilter) ([]*domain.Job, error) {
	f.lastFilter = fl
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.listed, nil
}

func newJobsHandler(sched *fakeScheduler, st *fakeJobStore) *JobsHandler {
	fake := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	ids := clock.NewIDGenerator(fake)
	return NewJobsHandler(sched, st, ids, fake)
}

func doRequest(h gin.HandlerFunc, method, path string, body []byte, params gin.Params) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	var reqBody *bytes.Reader
	if body != nil {
		reqBody = bytes.NewReader(body)
	} else {
		reqBody = bytes.NewReader(nil)
	}
	c.Request = httptest.NewRequest(method, path, reqBody)
	c.Request.Header.Set("Content-Type", "application/json")
	c.Params = params
	h(c)
	return w
}

func TestJobsHandler_TriggerRequiresRepositoryPath(t *testing.T) {
	sched := &fakeScheduler{}
	h := newJobsHandler(sched, &fakeJobStore{})

	body, _ := json.Marshal(TriggerRequest{Parameters: map[string]any{}})
	w := doRequest(h.Trigger, http.MethodPost, "/api/pipelines/p1/trigger", body, gin.Params{{Key: "id", Value: "p1"}})

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
	if len(sched.enqueued) != 0 {
		t.Error("expected no job enqueued")
	}
}

func TestJobsHandler_TriggerEnqueuesJob(t *testing.T) {
	sched := &fakeScheduler{}
	h := newJobsHandler(sched, &fakeJobStore{})

	body, _ := json.Marshal(TriggerRequest{Parameters: map[string]any{"repositoryPath": "/tmp/repo"}})
	w := doRequest(h.Trigger, http.MethodPost, "/api/pipelines/p1/trigger", body, gin.Params{{Key: "id", Value: "p1"}})

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if len(sched.enqueued) != 1 {
		t.Fatalf("expected one enqueued job, got %d", len(sched.enqueued))
	}
	if sched.enqueued[0].PipelineID != "p1" {
		t.Errorf("expected pipeline id p1, got %s", sched.enqueued[0].PipelineID)
	}

	var resp TriggerResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Status != string(domain.StatusQueued) {
		t.Errorf("expected queued status, got %s", resp.Status)
	}
}

func TestJobsHandler_TriggerSchedulerErrorPropagates(t *testing.T) {
	sched := &fakeScheduler{enqueueErr: apperr.New(apperr.KindUnknownPipeline, "unknown pipeline")}
	h := newJobsHandler(sched, &fakeJobStore{})

	body, _ := json.Marshal(TriggerRequest{Parameters: map[string]any{"repositoryPath": "/tmp/repo"}})
	w := doRequest(h.Trigger, http.MethodPost, "/api/pipelines/ghost/trigger", body, gin.Params{{Key: "id", Value: "ghost"}})

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for an unknown pipeline, got %d: %s", w.Code, w.Body.String())
	}
}

func TestJobsHandler_CancelFallsBackAcrossParamNames(t *testing.T) {
	sched := &fakeScheduler{}
	h := newJobsHandler(sched, &fakeJobStore{})

	w := doRequest(h.Cancel, http.MethodDelete, "/api/scans/j1", nil, gin.Params{{Key: "scanId", Value: "j1"}})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if len(sched.cancelled) != 1 || sched.cancelled[0] != "j1" {
		t.Errorf("expected job j1 cancelled via scanId param, got %v", sched.cancelled)
	}
}

func TestJobsHandler_ListJobsAppliesStatusFilterAndPaging(t *testing.T) {
	st := &fakeJobStore{listed: []*domain.Job{{ID: "j1"}, {ID: "j2"}}}
	h := newJobsHandler(&fakeScheduler{}, st)

	w := doRequest(h.ListJobs, http.MethodGet, "/api/pipelines/p1/jobs?status=completed&limit=2", nil, gin.Params{{Key: "id", Value: "p1"}})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp JobsListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Total != 2 || !resp.HasMore {
		t.Errorf("expected total 2 and hasMore true at the limit boundary, got %+v", resp)
	}
	if st.lastFilter.Status == nil || *st.lastFilter.Status != domain.StatusCompleted || st.lastFilter.Limit != 2 {
		t.Errorf("expected status=completed and limit=2 passed to the store, got %+v", st.lastFilter)
	}
}

func TestJobsHandler_GetJobStatusNotFound(t *testing.T) {
	h := newJobsHandler(&fakeScheduler{}, &fakeJobStore{jobs: map[string]*domain.Job{}})

	w := doRequest(h.GetJobStatus, http.MethodGet, "/api/scans/missing/status", nil, gin.Params{{Key: "scanId", Value: "missing"}})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestJobsHandler_GetJobResultsSummaryFormat(t *testing.T) {
	st := &fakeJobStore{jobs: map[string]*domain.Job{
		"j1": {ID: "j1", Result: domain.JSONBlob(`{"count":3}`)},
	}}
	h := newJobsHandler(&fakeScheduler{}, st)

	w := doRequest(h.GetJobResults, http.MethodGet, "/api/scans/j1/results?format=summary", nil, gin.Params{{Key: "scanId", Value: "j1"}})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp map[string]json.RawMessage
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := resp["summary"]; !ok {
		t.Errorf("expected a summary field, got %s", w.Body.String())
	}
}
