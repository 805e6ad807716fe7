package worker

import (
	"sync"
	"testing"
	"time"

	"github.com/integritystudio/alephauto/internal/clock"
	"github.com/integritystudio/alephauto/internal/eventbus"
	"github.com/integritystudio/alephauto/internal/logging"
)

type testSink struct {
	mu  sync.Mutex
	got []eventbus.Event
}

func (s *testSink) Name() string { return "test" }

func (s *testSink) Handle(e eventbus.Event) {
	s.mu.Lock()
	s.got = append(s.got, e)
	s.mu.Unlock()
}

func (s *testSink) events() []eventbus.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]eventbus.Event, len(s.got))
	copy(out, s.got)
	return out
}

func waitForCount(t *testing.T, s *testSink, n int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(s.events()) >= n {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("expected at least %d events, got %d", n, len(s.events()))
}

func TestEventSink_ProgressRateLimited(t *testing.T) {
	fake := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	bus := eventbus.New(logging.NewNop())
	sink := &testSink{}
	bus.Register(sink)

	s := newEventSink(bus, fake, "job-1", "p")
	s.Progress(0.1, "first")
	s.Progress(0.2, "second, within the rate limit window")
	waitForCount(t, sink, 1)
	if len(sink.events()) != 1 {
		t.Fatalf("expected only the first progress event published, got %d", len(sink.events()))
	}

	fake.Advance(progressRateLimit + time.Millisecond)
	s.Progress(0.3, "third, after the window")
	waitForCount(t, sink, 2)

	data := sink.events()[1].Data.(map[string]any)
	if data["fraction"] != 0.3 {
		t.Errorf("expected second delivered event to carry fraction 0.3, got %v", data["fraction"])
	}
}

func TestEventSink_WarnNotRateLimited(t *testing.T) {
	fake := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	bus := eventbus.New(logging.NewNop())
	sink := &testSink{}
	bus.Register(sink)

	s := newEventSink(bus, fake, "job-1", "p")
	s.Warn("first warning")
	s.Warn("second warning")
	waitForCount(t, sink, 2)

	for _, e := range sink.events() {
		data := e.Data.(map[string]any)
		if data["level"] != "warn" {
			t.Errorf("expected warn-level data, got %v", data)
		}
	}
}
