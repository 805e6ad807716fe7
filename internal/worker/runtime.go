// Package worker implements the Worker Runtime: it invokes a
// Worker — either an in-process function or a managed subprocess — under
// a cancellation context and a rate-limited progress/event sink, and
// returns its outcome to the scheduler. The runtime publishes only the
// progress and warning events raised through that sink; job lifecycle
// events are published by the scheduler.
package worker

import (
	"context"

	"github.com/integritystudio/alephauto/internal/clock"
	"github.com/integritystudio/alephauto/internal/domain"
	"github.com/integritystudio/alephauto/internal/eventbus"
)

// Runtime executes Workers on behalf of the scheduler.
type Runtime struct {
	bus   *eventbus.Bus
	clock clock.Clock
}

// New builds a Runtime whose event sinks publish progress and warning
// events to bus.
func New(bus *eventbus.Bus, clk clock.Clock) *Runtime {
	return &Runtime{bus: bus, clock: clk}
}

// Execute runs worker against job under ctx, returning the worker's
// declared result or a classified error. The Worker Runtime itself does
// not decide retry vs. terminal — that is the scheduler's job, acting on
// the error's apperr.Kind.
func (r *Runtime) Execute(ctx context.Context, job *domain.Job, w domain.Worker) (domain.JSONBlob, error) {
	sink := newEventSink(r.bus, r.clock, job.ID, job.PipelineID)
	return w.Run(ctx, job, sink)
}
