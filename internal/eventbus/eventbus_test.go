package eventbus_test

import (
	"sync"
	"testing"
	"time"

	"github.com/integritystudio/alephauto/internal/eventbus"
	"github.com/integritystudio/alephauto/internal/logging"
)

func testLogger() logging.Logger {
	return logging.NewNop()
}

type recordingSink struct {
	name string
	mu   sync.Mutex
	got  []eventbus.Event
}

func newRecordingSink(name string) *recordingSink { return &recordingSink{name: name} }

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Handle(e eventbus.Event) {
	s.mu.Lock()
	s.got = append(s.got, e)
	s.mu.Unlock()
}

func (s *recordingSink) events() []eventbus.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]eventbus.Event, len(s.got))
	copy(out, s.got)
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestBus_DeliversToAllSinks(t *testing.T) {
	bus := eventbus.New(testLogger())
	a := newRecordingSink("a")
	b := newRecordingSink("b")
	bus.Register(a)
	bus.Register(b)

	bus.Publish(eventbus.Event{Name: eventbus.JobCreated, JobID: "job-1"})

	waitFor(t, func() bool { return len(a.events()) == 1 && len(b.events()) == 1 })
}

func TestBus_PerJobOrderPreserved(t *testing.T) {
	bus := eventbus.New(testLogger())
	sink := newRecordingSink("s")
	bus.Register(sink)

	sequence := []eventbus.Name{eventbus.JobCreated, eventbus.JobStarted, eventbus.JobProgress, eventbus.JobCompleted}
	for _, name := range sequence {
		bus.Publish(eventbus.Event{Name: name, JobID: "job-1"})
	}

	waitFor(t, func() bool { return len(sink.events()) == len(sequence) })

	got := sink.events()
	for i, name := range sequence {
		if got[i].Name != name {
			t.Errorf("event %d: expected %s, got %s", i, name, got[i].Name)
		}
	}
}

func TestBus_StampsTimestampWhenZero(t *testing.T) {
	bus := eventbus.New(testLogger())
	sink := newRecordingSink("s")
	bus.Register(sink)

	bus.Publish(eventbus.Event{Name: eventbus.JobCreated, JobID: "job-1"})

	waitFor(t, func() bool { return len(sink.events()) == 1 })
	if sink.events()[0].Timestamp.IsZero() {
		t.Error("expected Publish to stamp a zero Timestamp")
	}
}

func TestBus_UnregisterStopsDelivery(t *testing.T) {
	bus := eventbus.New(testLogger())
	sink := newRecordingSink("s")
	bus.Register(sink)
	bus.Publish(eventbus.Event{Name: eventbus.JobCreated, JobID: "job-1"})
	waitFor(t, func() bool { return len(sink.events()) == 1 })

	bus.Unregister("s")
	bus.Publish(eventbus.Event{Name: eventbus.JobStarted, JobID: "job-1"})
	time.Sleep(50 * time.Millisecond)

	if len(sink.events()) != 1 {
		t.Errorf("expected no further delivery after Unregister, got %d events", len(sink.events()))
	}
}

func TestBus_SlowSinkDoesNotBlockFastSink(t *testing.T) {
	bus := eventbus.New(testLogger())

	blocked := make(chan struct{})
	slow := &blockingSink{name: "slow", release: blocked}
	fast := newRecordingSink("fast")

	bus.Register(slow)
	bus.Register(fast)

	bus.Publish(eventbus.Event{Name: eventbus.JobCreated, JobID: "job-1"})

	waitFor(t, func() bool { return len(fast.events()) == 1 })
	close(blocked)
}

type blockingSink struct {
	name    string
	release chan struct{}
}

func (s *blockingSink) Name() string { return s.name }
func (s *blockingSink) Handle(eventbus.Event) {
	<-s.release
}
