// Package push implements the Push Broadcaster: it fans
// Event Bus occurrences out to connected subscriber sessions, batching
// each subscriber's incremental deliveries within a window and applying
// a bounded, priority-aware drop policy on overflow.
//
// Follows infrastructure/sse/broker.go's client registry and
// publish/broadcast loop and removeClient/disconnectAllClients shape,
// adapted from broadcast-everything-unbatched to per-subscriber
// batching with overflow and idle-disconnect handling.
package push

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/integritystudio/alephauto/internal/clock"
	"github.com/integritystudio/alephauto/internal/eventbus"
	"github.com/integritystudio/alephauto/internal/logging"
	"github.com/integritystudio/alephauto/internal/status"
)

// Envelope is what a subscriber actually receives: either the initial
// snapshot or a batch of coalesced incremental events.
type Envelope struct {
	Snapshot *status.Snapshot  `json:"snapshot,omitempty"`
	Events   []eventbus.Event  `json:"events,omitempty"`
	Dropped  int               `json:"dropped,omitempty"`
}

// Subscriber is a single connected push session.
type Subscriber struct {
	id     string
	out    chan Envelope
	cap    int
	mu     sync.Mutex
	queue  []eventbus.Event
	dropped int

	lastFlush time.Time
	idleSince time.Time

	closeOnce sync.Once
	done      chan struct{}
}

// Events returns the channel the caller (an SSE or websocket handler)
// should read batched envelopes from.
func (s *Subscriber) Events() <-chan Envelope { return s.out }

// Done is closed when the broker disconnects this subscriber (idle
// timeout, overflow, or broker shutdown).
func (s *Subscriber) Done() <-chan struct{} { return s.done }

func (s *Subscriber) close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Broker is the Push Broadcaster: an eventbus.Sink that fans events out
// to registered Subscribers.
type Broker struct {
	logger logging.Logger
	clock  clock.Clock
	ids    *clock.IDGenerator

	batchWindow    time.Duration
	queueCap       int
	idleDisconnect time.Duration

	mu   sync.Mutex
	subs map[string]*Subscriber

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// Config holds the broker's tuning knobs.
type Config struct {
	BatchWindow    time.Duration
	QueueCap       int
	IdleDisconnect time.Duration
}

// New builds a Broker. The caller supplies the initial snapshot to each
// Subscribe call (usually from a status.Aggregator).
func New(cfg Config, clk clock.Clock, logger logging.Logger) *Broker {
	return &Broker{
		logger:         logger,
		clock:          clk,
		ids:            clock.NewIDGenerator(clk),
		batchWindow:    cfg.BatchWindow,
		queueCap:       cfg.QueueCap,
		idleDisconnect: cfg.IdleDisconnect,
		subs:           make(map[string]*Subscriber),
		stopCh:         make(chan struct{}),
	}
}

// Name implements eventbus.Sink.
func (b *Broker) Name() string { return "push-broadcaster" }

// Handle implements eventbus.Sink: it fans event out to every connected
// subscriber's per-session queue.
func (b *Broker) Handle(event eventbus.Event) {
	b.mu.Lock()
	subs := make([]*Subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		b.enqueue(s, event)
	}
}

// enqueue appends event to s's queue, applying the overflow drop policy:
// drop the oldest job:progress first, then the oldest pipeline:status,
// and never drop job:failed or retry:exhausted.
func (b *Broker) enqueue(s *Subscriber, event eventbus.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) >= s.cap {
		if !b.dropOldest(s) {
			// Queue is full of undroppable events; drop the incoming one
			// instead of growing past cap.
			s.dropped++
			return
		}
	}
	s.queue = append(s.queue, event)
}

func (b *Broker) dropOldest(s *Subscriber) bool {
	for _, name := range []eventbus.Name{eventbus.JobProgress, eventbus.PipelineStatus} {
		for i, e := range s.queue {
			if e.Name == name {
				s.queue = append(s.queue[:i], s.queue[i+1:]...)
				s.dropped++
				return true
			}
		}
	}
	return false
}

// Subscribe registers a new subscriber, sends the initial snapshot
// envelope, and starts its batch-flush loop.
func (b *Broker) Subscribe(snapshot status.Snapshot) *Subscriber {
	s := &Subscriber{
		id:        b.newID(),
		out:       make(chan Envelope, 1),
		cap:       b.queueCap,
		lastFlush: b.clock.Now(),
		idleSince: b.clock.Now(),
		done:      make(chan struct{}),
	}

	b.mu.Lock()
	b.subs[s.id] = s
	b.mu.Unlock()

	// Snapshot is delivered outside the batch channel's normal capacity
	// limit: it is the first thing a new subscriber must see.
	s.out <- Envelope{Snapshot: &snapshot}

	b.wg.Add(1)
	go b.flushLoop(s)

	return s
}

// Unsubscribe removes and closes a subscriber.
func (b *Broker) Unsubscribe(id string) {
	b.mu.Lock()
	s, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
	}
	b.mu.Unlock()
	if ok {
		s.close()
	}
}

// Stop disconnects every subscriber and stops the broker's loops.
func (b *Broker) Stop() {
	close(b.stopCh)
	b.mu.Lock()
	ids := make([]string, 0, len(b.subs))
	for id := range b.subs {
		ids = append(ids, id)
	}
	b.mu.Unlock()
	for _, id := range ids {
		b.Unsubscribe(id)
	}
	b.wg.Wait()
}

// flushLoop coalesces s's queue into a batch envelope every batchWindow,
// and disconnects s after idleDisconnect of no successful delivery.
func (b *Broker) flushLoop(s *Subscriber) {
	defer b.wg.Done()
	ticker := b.clock.NewTicker(b.batchWindow)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-b.stopCh:
			return
		case <-ticker.C:
			b.flush(s)
			if b.idleDisconnect > 0 && b.clock.Since(s.idleSince) > b.idleDisconnect {
				b.logger.Warn("push: subscriber idle timeout", zap.String("subscriber_id", s.id))
				b.Unsubscribe(s.id)
				return
			}
		}
	}
}

func (b *Broker) flush(s *Subscriber) {
	s.mu.Lock()
	if len(s.queue) == 0 {
		s.mu.Unlock()
		return
	}
	events := s.queue
	dropped := s.dropped
	s.queue = nil
	s.dropped = 0
	s.mu.Unlock()

	select {
	case s.out <- Envelope{Events: events, Dropped: dropped}:
		s.idleSince = b.clock.Now()
	default:
		// Subscriber's transport hasn't drained the last envelope yet;
		// leave idleSince untouched so IDLE_DISCONNECT_MS can trip.
	}
}

func (b *Broker) newID() string {
	return b.ids.NewToken()
}
