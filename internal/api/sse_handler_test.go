package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/integritystudio/alephauto/internal/clock"
	"github.com/integritystudio/alephauto/internal/eventbus"
	"github.com/integritystudio/alephauto/internal/logging"
	"github.com/integritystudio/alephauto/internal/push"
	"github.com/integritystudio/alephauto/internal/status"
)

func TestEventsHandler_StreamWritesSnapshotThenEvents(t *testing.T) {
	broker := push.New(push.Config{BatchWindow: 10 * time.Millisecond, QueueCap: 16}, clock.New(), logging.NewNop())
	defer broker.Stop()

	agg := &fakeAggregator{snapshot: status.Snapshot{Pipelines: []status.PipelineStatus{{ID: "p1"}}}}
	fake := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	h := NewEventsHandler(broker, agg, clock.NewIDGenerator(fake))

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)

	done := make(chan struct{})
	go func() {
		h.Stream(c)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	broker.Handle(eventbus.Event{Name: eventbus.JobCompleted, JobID: "j1"})
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected Stream to return after context cancellation")
	}

	body := w.Body.String()
	if !contains(body, "snapshot") {
		t.Errorf("expected the initial snapshot to be written, got %s", body)
	}
	if !contains(body, "job:completed") {
		t.Errorf("expected the published event to be written, got %s", body)
	}
}

func contains(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}
