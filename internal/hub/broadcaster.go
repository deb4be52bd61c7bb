package hub

import (
	"context"
	"errors"
	"log/slog"

	"chatroom/internal/metrics"
	"chatroom/internal/model"
)

// Broadcaster delivers an event to every live connection of a session.
// A pub/sub backed implementation can replace LocalBroadcaster when
// connections are spread over several processes.
type Broadcaster interface {
	Broadcast(ctx context.Context, sessionID int64, event model.Event) int
}

// LocalBroadcaster fans out to the subscribers held by an in-process Registry.
//
// Delivery is best effort: a failing subscriber is logged and skipped, and a
// subscriber that cannot keep up is closed.
type LocalBroadcaster struct {
	registry *Registry
	log      *slog.Logger
	metrics  *metrics.Metrics
}

// NewLocalBroadcaster creates a broadcaster over registry. m may be nil.
func NewLocalBroadcaster(registry *Registry, log *slog.Logger, m *metrics.Metrics) *LocalBroadcaster {
	return &LocalBroadcaster{registry: registry, log: log, metrics: m}
}

// Broadcast returns the number of subscribers the event was queued for.
func (b *LocalBroadcaster) Broadcast(ctx context.Context, sessionID int64, event model.Event) int {
	delivered := 0
	for _, sub := range b.registry.Members(sessionID) {
		err := sub.Deliver(event)
		switch {
		case err == nil:
			delivered++
			b.metrics.Delivered(metrics.DeliveryOK)
		case errors.Is(err, ErrSlowConsumer):
			b.metrics.Delivered(metrics.DeliverySlow)
			b.log.Warn("dropping slow subscriber", "session_id", sessionID, "conn_id", sub.ID())
			go sub.Close()
		default:
			b.metrics.Delivered(metrics.DeliveryClosed)
			b.log.Debug("skipping subscriber", "session_id", sessionID, "conn_id", sub.ID(), "error", err)
		}
	}
	b.log.DebugContext(ctx, "broadcast", "session_id", sessionID, "type", event.Kind, "delivered", delivered)
	return delivered
}
