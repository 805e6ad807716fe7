package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/integritystudio/alephauto/internal/clock"
	"github.com/integritystudio/alephauto/internal/domain"
	"github.com/integritystudio/alephauto/internal/eventbus"
	"github.com/integritystudio/alephauto/internal/logging"
)

type funcWorker func(ctx context.Context, job *domain.Job, sink domain.ProgressSink) (domain.JSONBlob, error)

func (f funcWorker) Run(ctx context.Context, job *domain.Job, sink domain.ProgressSink) (domain.JSONBlob, error) {
	return f(ctx, job, sink)
}

func TestRuntime_ExecuteReturnsWorkerResult(t *testing.T) {
	fake := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	bus := eventbus.New(logging.NewNop())
	rt := New(bus, fake)

	job := &domain.Job{ID: "j1", PipelineID: "p"}
	w := funcWorker(func(ctx context.Context, job *domain.Job, sink domain.ProgressSink) (domain.JSONBlob, error) {
		sink.Progress(0.5, "halfway")
		return domain.JSONBlob(`{"ok":true}`), nil
	})

	result, err := rt.Execute(t.Context(), job, w)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if string(result) != `{"ok":true}` {
		t.Errorf("expected worker's result round-tripped, got %s", result)
	}
}

func TestRuntime_ExecutePropagatesError(t *testing.T) {
	fake := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	bus := eventbus.New(logging.NewNop())
	rt := New(bus, fake)

	wantErr := errors.New("boom")
	job := &domain.Job{ID: "j1", PipelineID: "p"}
	w := funcWorker(func(ctx context.Context, job *domain.Job, sink domain.ProgressSink) (domain.JSONBlob, error) {
		return nil, wantErr
	})

	_, err := rt.Execute(t.Context(), job, w)
	if !errors.Is(err, wantErr) {
		t.Errorf("expected the worker's error to propagate unchanged, got %v", err)
	}
}

func TestRuntime_ExecutePassesContextThrough(t *testing.T) {
	fake := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	bus := eventbus.New(logging.NewNop())
	rt := New(bus, fake)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	job := &domain.Job{ID: "j1", PipelineID: "p"}
	w := funcWorker(func(ctx context.Context, job *domain.Job, sink domain.ProgressSink) (domain.JSONBlob, error) {
		if ctx.Err() == nil {
			t.Error("expected the cancelled context to reach the worker")
		}
		return nil, ctx.Err()
	})

	if _, err := rt.Execute(ctx, job, w); err == nil {
		t.Error("expected an error from the cancelled context")
	}
}
