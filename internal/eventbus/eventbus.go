// Package eventbus implements the Event Bus: in-process
// pub/sub that fans job lifecycle events out to registered sinks,
// preserving per-job delivery order while never letting a slow sink
// block a fast one.
//
// Follows internal/events's sink-registration pattern
// (consumer.go/handler.go/noop_handler.go) and the progress-rate-limiting
// idea in internal/scheduler/sse_publisher.go, adapted from its 5s/10-item
// threshold down to a 100ms-per-job progress rate limit. The bus itself
// does not rate-limit: that limit is applied by internal/worker's event
// sink before progress events are published here.
package eventbus

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/integritystudio/alephauto/internal/logging"
)

// Name is a contractual event name.
type Name string

const (
	JobCreated      Name = "job:created"
	JobStarted      Name = "job:started"
	JobProgress     Name = "job:progress"
	JobCompleted    Name = "job:completed"
	JobFailed       Name = "job:failed"
	JobCancelled    Name = "job:cancelled"
	PipelineStatus  Name = "pipeline:status"
	RetryScheduled  Name = "retry:scheduled"
	RetryExhausted  Name = "retry:exhausted"
)

// Event is a single job-lifecycle occurrence.
type Event struct {
	Name       Name
	JobID      string
	PipelineID string
	Data       any
	Timestamp  time.Time
}

// Sink receives events delivered by the bus. Handle must not block for
// long: a slow Handle only delays that sink's own queue, per the bus's
// "slow sinks must not block fast sinks" contract.
type Sink interface {
	Name() string
	Handle(Event)
}

const defaultInboxSize = 1024

// Bus fans events out to every registered Sink, preserving the arrival
// order it was given (which, for a single job id, is the caller's FIFO
// order — per-job ordering guarantee).
type Bus struct {
	logger logging.Logger

	mu    sync.RWMutex
	sinks []*sinkWorker
}

type sinkWorker struct {
	sink   Sink
	inbox  chan Event
	logger logging.Logger

	mu      sync.Mutex
	dropped int
}

// New returns an empty Bus.
func New(logger logging.Logger) *Bus {
	return &Bus{logger: logger}
}

// Register attaches a sink. Sinks are normally registered at startup;
// dynamic subscription (push broadcaster sessions) is also supported:
// Register may be called at any time, including while events are being
// published.
func (b *Bus) Register(sink Sink) {
	w := &sinkWorker{
		sink:   sink,
		inbox:  make(chan Event, defaultInboxSize),
		logger: b.logger,
	}
	b.mu.Lock()
	b.sinks = append(b.sinks, w)
	b.mu.Unlock()
	go w.run()
}

// Unregister stops delivering to and tears down sink's worker. Used when
// a push-broadcaster subscriber disconnects.
func (b *Bus) Unregister(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	kept := b.sinks[:0]
	for _, w := range b.sinks {
		if w.sink.Name() == name {
			close(w.inbox)
			continue
		}
		kept = append(kept, w)
	}
	b.sinks = kept
}

// Publish delivers event to every registered sink. Delivery is
// best-effort and non-blocking per sink: a full inbox drops the event and
// increments that sink's drop counter rather than blocking the publisher
// or other sinks.
func (b *Bus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, w := range b.sinks {
		select {
		case w.inbox <- event:
		default:
			w.mu.Lock()
			w.dropped++
			w.mu.Unlock()
			b.logger.Warn("eventbus: sink inbox full, dropping event",
				zap.String("sink", w.sink.Name()),
				zap.String("event", string(event.Name)),
				zap.String("job_id", event.JobID))
		}
	}
}

func (w *sinkWorker) run() {
	for event := range w.inbox {
		w.sink.Handle(event)
	}
}
