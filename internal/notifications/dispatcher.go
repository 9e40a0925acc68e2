package notifications

import (
	"context"
	"encoding/json"
	"time"

	"billboard/internal/middleware"
	"billboard/internal/observability"
)

const publishTimeout = 2 * time.Second

// Dispatcher hands events to the fan-out after a write has committed.
// Delivery is at most once: nothing is buffered for offline users or late
// room joiners, and failures are logged and dropped.
type Dispatcher struct {
	hub      *Hub
	notifier *Notifier
}

// NewDispatcher creates a dispatcher. With an enabled notifier, events go
// through Redis so every process's hub sees them; otherwise they are
// delivered to hub directly. Either argument may be nil.
func NewDispatcher(hub *Hub, notifier *Notifier) *Dispatcher {
	return &Dispatcher{hub: hub, notifier: notifier}
}

// Publish delivers e to its audience. It never returns an error.
func (d *Dispatcher) Publish(ctx context.Context, e Event) {
	if d == nil {
		return
	}
	channel := e.Channel()
	if channel == "" {
		middleware.Logger.Error("dropping event without audience", "event_type", e.Type)
		return
	}

	payload, err := json.Marshal(e)
	if err != nil {
		middleware.Logger.Error("failed to marshal event", "event_type", e.Type, "error", err)
		return
	}

	if d.notifier.Enabled() {
		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		err := d.notifier.Publish(pubCtx, channel, payload)
		cancel()
		if err == nil {
			observability.EventsPublished.WithLabelValues(string(e.Type), "redis").Inc()
			return
		}
		middleware.Logger.Warn("failed to publish event, delivering locally",
			"event_type", e.Type, "channel", channel, "error", err)
	}

	if d.hub == nil {
		return
	}
	d.hub.Deliver(channel, payload)
	observability.EventsPublished.WithLabelValues(string(e.Type), "local").Inc()
}
