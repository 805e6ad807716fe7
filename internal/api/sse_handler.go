package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/integritystudio/alephauto/internal/clock"
	"github.com/integritystudio/alephauto/internal/push"
	"github.com/integritystudio/alephauto/internal/status"
)

// PushBroker is the subset of the Push Broadcaster the API depends on.
type PushBroker interface {
	Subscribe(snapshot status.Snapshot) *push.Subscriber
	Unsubscribe(id string)
}

// EventsHandler streams the Push Broadcaster's per-subscriber envelopes
// over server-sent events, following infrastructure/sse/middleware.go's
// Handler shape (SSE headers, subscribe, write loop,
// context-cancellation teardown).
type EventsHandler struct {
	broker     PushBroker
	aggregator Aggregator
	ids        *clock.IDGenerator
}

// NewEventsHandler builds an EventsHandler.
func NewEventsHandler(broker PushBroker, aggregator Aggregator, ids *clock.IDGenerator) *EventsHandler {
	return &EventsHandler{broker: broker, aggregator: aggregator, ids: ids}
}

// Stream handles GET /api/events.
func (h *EventsHandler) Stream(c *gin.Context) {
	ctx := c.Request.Context()

	snapshot, err := h.aggregator.Snapshot(ctx)
	if err != nil {
		writeError(c, h.ids, err)
		return
	}

	sub := h.broker.Subscribe(snapshot)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		writeError(c, h.ids, fmt.Errorf("streaming unsupported"))
		return
	}

	c.Status(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Done():
			return
		case envelope, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := writeSSE(c.Writer, envelope); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, envelope push.Envelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", payload)
	return err
}
