package worker

import (
	"sync"
	"time"

	"github.com/integritystudio/alephauto/internal/clock"
	"github.com/integritystudio/alephauto/internal/eventbus"
)

// progressRateLimit caps progress events at one per job per 100ms,
// adapted from ProgressTracker (internal/scheduler/sse_publisher.go)
// whose threshold is a 5s/10-item window, tightened here to a fixed
// 100ms cadence.
const progressRateLimit = 100 * time.Millisecond

// eventSink implements domain.ProgressSink, translating progress/warn
// calls from a running worker into Event Bus publications, rate-limited
// per job.
type eventSink struct {
	bus        *eventbus.Bus
	clock      clock.Clock
	jobID      string
	pipelineID string

	mu       sync.Mutex
	lastSent time.Time
}

func newEventSink(bus *eventbus.Bus, clk clock.Clock, jobID, pipelineID string) *eventSink {
	return &eventSink{bus: bus, clock: clk, jobID: jobID, pipelineID: pipelineID}
}

// Progress reports fractional progress; the first sample in each
// progressRateLimit window is published and later samples within that
// window are dropped (no trailing sample is sent).
func (s *eventSink) Progress(fraction float64, message string) {
	s.mu.Lock()
	now := s.clock.Now()
	if !s.lastSent.IsZero() && now.Sub(s.lastSent) < progressRateLimit {
		s.mu.Unlock()
		return
	}
	s.lastSent = now
	s.mu.Unlock()

	s.bus.Publish(eventbus.Event{
		Name:       eventbus.JobProgress,
		JobID:      s.jobID,
		PipelineID: s.pipelineID,
		Data: map[string]any{
			"fraction": fraction,
			"message":  message,
			"level":    "info",
		},
	})
}

// Warn reports a warning-level progress event, exempt from the progress rate limit
// since warnings are lower-volume and higher-value than routine progress.
func (s *eventSink) Warn(message string) {
	s.bus.Publish(eventbus.Event{
		Name:       eventbus.JobProgress,
		JobID:      s.jobID,
		PipelineID: s.pipelineID,
		Data: map[string]any{
			"message": message,
			"level":   "warn",
		},
	})
}
