package dispatch

import (
	"context"
	"log/slog"

	"github.com/tollkeep/tollkeep/internal/event"
	"github.com/tollkeep/tollkeep/internal/log"
)

// Router maps event types to handlers through a static table built at
// construction. Routing performs no business validation.
type Router struct {
	handlers map[string]Handler
	logger   *slog.Logger
}

// NewRouter wires the fixed routing table: completed checkouts to checkout,
// subscription updates and deletions to subscription.
func NewRouter(checkout, subscription Handler) *Router {
	return &Router{
		handlers: map[string]Handler{
			event.TypeCheckoutCompleted:   checkout,
			event.TypeSubscriptionUpdated: subscription,
			event.TypeSubscriptionDeleted: subscription,
		},
		logger: log.WithComponent("dispatch"),
	}
}

// Dispatch routes evt to its handler. Types outside the table are
// acknowledged without invoking any handler.
func (r *Router) Dispatch(ctx context.Context, evt event.Event) (Outcome, error) {
	h, ok := r.handlers[evt.Type]
	if !ok {
		r.logger.Debug("no handler for event type", "event_id", evt.ID, "event_type", evt.Type)
		return Acknowledged("unhandled type"), nil
	}
	return h.Handle(ctx, evt)
}
