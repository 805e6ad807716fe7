package push

import (
	"testing"
	"time"

	"github.com/integritystudio/alephauto/internal/clock"
	"github.com/integritystudio/alephauto/internal/eventbus"
	"github.com/integritystudio/alephauto/internal/logging"
	"github.com/integritystudio/alephauto/internal/status"
)

func newBroker(t *testing.T, cfg Config) (*Broker, *clock.Fake) {
	t.Helper()
	fake := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	if cfg.QueueCap == 0 {
		cfg.QueueCap = 4
	}
	b := New(cfg, fake, logging.NewNop())
	return b, fake
}

func TestBroker_SubscribeDeliversSnapshotFirst(t *testing.T) {
	b, _ := newBroker(t, Config{BatchWindow: time.Hour})
	defer b.Stop()

	snap := status.Snapshot{Pipelines: []status.PipelineStatus{{ID: "p1"}}}
	sub := b.Subscribe(snap)

	select {
	case env := <-sub.Events():
		if env.Snapshot == nil || len(env.Snapshot.Pipelines) != 1 {
			t.Fatalf("expected the initial snapshot envelope, got %+v", env)
		}
	default:
		t.Fatal("expected the snapshot envelope to be immediately available")
	}
}

func TestBroker_HandleEnqueuesAndFlushDelivers(t *testing.T) {
	b, _ := newBroker(t, Config{BatchWindow: time.Hour})
	defer b.Stop()

	sub := b.Subscribe(status.Snapshot{})
	<-sub.Events() // drain the snapshot

	b.Handle(eventbus.Event{Name: eventbus.JobProgress, JobID: "j1"})
	b.Handle(eventbus.Event{Name: eventbus.JobCompleted, JobID: "j1"})
	b.flush(sub)

	select {
	case env := <-sub.Events():
		if len(env.Events) != 2 {
			t.Fatalf("expected both events batched into one envelope, got %d", len(env.Events))
		}
	default:
		t.Fatal("expected a flushed envelope")
	}
}

func TestBroker_FlushSkipsEmptyQueue(t *testing.T) {
	b, _ := newBroker(t, Config{BatchWindow: time.Hour})
	defer b.Stop()

	sub := b.Subscribe(status.Snapshot{})
	<-sub.Events() // drain the snapshot

	b.flush(sub)

	select {
	case env := <-sub.Events():
		t.Fatalf("expected no envelope from flushing an empty queue, got %+v", env)
	default:
	}
}

func TestBroker_OverflowDropsProgressBeforeStatus(t *testing.T) {
	b, _ := newBroker(t, Config{BatchWindow: time.Hour, QueueCap: 2})
	defer b.Stop()

	sub := b.Subscribe(status.Snapshot{})
	<-sub.Events()

	b.Handle(eventbus.Event{Name: eventbus.PipelineStatus, JobID: "p"})
	b.Handle(eventbus.Event{Name: eventbus.JobProgress, JobID: "j1"})
	// Queue is now full (cap 2); this third event should evict the
	// queued job:progress rather than the pipeline:status.
	b.Handle(eventbus.Event{Name: eventbus.JobCompleted, JobID: "j2"})

	sub.mu.Lock()
	defer sub.mu.Unlock()
	if len(sub.queue) != 2 {
		t.Fatalf("expected queue clamped to cap 2, got %d", len(sub.queue))
	}
	for _, e := range sub.queue {
		if e.Name == eventbus.JobProgress {
			t.Error("expected job:progress to be dropped before pipeline:status")
		}
	}
	if sub.dropped != 1 {
		t.Errorf("expected dropped count 1, got %d", sub.dropped)
	}
}

func TestBroker_NeverDropsJobFailed(t *testing.T) {
	b, _ := newBroker(t, Config{BatchWindow: time.Hour, QueueCap: 1})
	defer b.Stop()

	sub := b.Subscribe(status.Snapshot{})
	<-sub.Events()

	b.Handle(eventbus.Event{Name: eventbus.JobFailed, JobID: "j1"})
	// Queue is already at cap with an undroppable event; the incoming
	// event should be the one discarded.
	b.Handle(eventbus.Event{Name: eventbus.RetryExhausted, JobID: "j2"})

	sub.mu.Lock()
	defer sub.mu.Unlock()
	if len(sub.queue) != 1 || sub.queue[0].Name != eventbus.JobFailed {
		t.Fatalf("expected job:failed to survive overflow, got %+v", sub.queue)
	}
	if sub.dropped != 1 {
		t.Errorf("expected the incoming event to be counted as dropped, got %d", sub.dropped)
	}
}

func TestBroker_UnsubscribeClosesSubscriber(t *testing.T) {
	b, _ := newBroker(t, Config{BatchWindow: time.Hour})
	defer b.Stop()

	sub := b.Subscribe(status.Snapshot{})
	<-sub.Events()

	b.Unsubscribe(sub.id)

	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("expected Done to close after Unsubscribe")
	}

	b.mu.Lock()
	_, ok := b.subs[sub.id]
	b.mu.Unlock()
	if ok {
		t.Error("expected subscriber removed from broker's registry")
	}
}

func TestBroker_StopDisconnectsAllSubscribers(t *testing.T) {
	b, _ := newBroker(t, Config{BatchWindow: time.Hour})

	sub1 := b.Subscribe(status.Snapshot{})
	sub2 := b.Subscribe(status.Snapshot{})
	<-sub1.Events()
	<-sub2.Events()

	b.Stop()

	for _, sub := range []*Subscriber{sub1, sub2} {
		select {
		case <-sub.Done():
		default:
			t.Error("expected Stop to close every subscriber")
		}
	}
}
