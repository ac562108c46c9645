package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tollkeep/tollkeep/internal/event"
	"github.com/tollkeep/tollkeep/internal/events"
	"github.com/tollkeep/tollkeep/internal/log"
)

// SubscriptionHandler revokes entitlements when a subscription lapses. Only
// lapsed statuses act; every other transition is acknowledged untouched.
type SubscriptionHandler struct {
	ledger  Ledger
	revoker Revoker
	hub     *events.Hub
	logger  *slog.Logger
}

func NewSubscriptionHandler(l Ledger, r Revoker, hub *events.Hub) *SubscriptionHandler {
	return &SubscriptionHandler{
		ledger:  l,
		revoker: r,
		hub:     hub,
		logger:  log.WithComponent("dispatch"),
	}
}

func (h *SubscriptionHandler) Handle(ctx context.Context, evt event.Event) (Outcome, error) {
	sub, err := event.UnmarshalSubscription(evt)
	if err != nil {
		return Outcome{}, fmt.Errorf("subscription event %s: %w", evt.ID, err)
	}
	logger := h.logger.With("event_id", evt.ID, "subscription_id", sub.ID, "status", sub.Status)

	switch sub.Status {
	case event.SubscriptionUnpaid, event.SubscriptionCanceled, event.SubscriptionPaused:
	default:
		logger.Debug("subscription status requires no action")
		return Acknowledged("no action required"), nil
	}

	if sub.CustomerID == "" {
		logger.Warn("subscription rejected", "reason", "missing customer id")
		return Rejected("missing customer id"), nil
	}

	first, err := h.ledger.MarkIfNew(ctx, evt.ID, evt.Type)
	if err != nil {
		return Outcome{}, fmt.Errorf("mark event %s: %w", evt.ID, err)
	}
	if !first {
		logger.Info("duplicate delivery, revoke skipped")
		return Acknowledged("duplicate, already processed"), nil
	}

	n, err := h.revoker.RevokeByCustomer(ctx, sub.CustomerID)
	if err != nil {
		if uerr := h.ledger.Unmark(ctx, evt.ID); uerr != nil {
			logger.Error("failed to release ledger claim after revoke failure", "error", uerr)
		}
		return Outcome{}, fmt.Errorf("revoke entitlements for customer %s: %w", sub.CustomerID, err)
	}

	logger.Info("entitlements revoked", "customer_id", sub.CustomerID, "revoked", n)
	h.hub.Publish(events.TypeEntitlementRevoked, events.EntitlementNotice{
		CustomerID: sub.CustomerID,
		Revoked:    n,
	})
	return Processed("entitlements revoked"), nil
}
