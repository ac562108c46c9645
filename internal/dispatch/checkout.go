package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tollkeep/tollkeep/internal/entitlement"
	"github.com/tollkeep/tollkeep/internal/event"
	"github.com/tollkeep/tollkeep/internal/events"
	"github.com/tollkeep/tollkeep/internal/log"
)

// CheckoutConfig carries the business preconditions for fulfillment.
type CheckoutConfig struct {
	// ProductRef is the expected client reference on the session. Empty
	// accepts any reference.
	ProductRef string
	// MinAmount is the smallest amount_total, in minor currency units,
	// eligible for fulfillment.
	MinAmount int64
}

// CheckoutHandler validates completed checkout sessions and grants an
// entitlement exactly once per event id.
type CheckoutHandler struct {
	ledger  Ledger
	granter Granter
	hub     *events.Hub
	cfg     CheckoutConfig
	logger  *slog.Logger
}

func NewCheckoutHandler(l Ledger, g Granter, hub *events.Hub, cfg CheckoutConfig) *CheckoutHandler {
	return &CheckoutHandler{
		ledger:  l,
		granter: g,
		hub:     hub,
		cfg:     cfg,
		logger:  log.WithComponent("dispatch"),
	}
}

// Handle walks the precondition ladder in a fixed order and fulfills only
// sessions that clear every rung. Precondition failures return before any
// ledger claim, so they never consume the event id.
func (h *CheckoutHandler) Handle(ctx context.Context, evt event.Event) (Outcome, error) {
	sess, err := event.UnmarshalCheckoutSession(evt)
	if err != nil {
		return Outcome{}, fmt.Errorf("checkout event %s: %w", evt.ID, err)
	}
	logger := h.logger.With("event_id", evt.ID, "session_id", sess.ID)

	if h.cfg.ProductRef != "" && sess.ClientReferenceID != h.cfg.ProductRef {
		logger.Info("checkout ignored", "reason", "product mismatch")
		return Ignored("product mismatch"), nil
	}
	if sess.PaymentStatus != event.PaymentStatusPaid || sess.AmountTotal == nil {
		logger.Info("checkout ignored", "reason", "not paid", "payment_status", sess.PaymentStatus)
		return Ignored("not paid"), nil
	}
	if sess.CustomerDetails == nil || sess.CustomerDetails.Email == "" {
		logger.Warn("checkout rejected", "reason", "missing customer email")
		return Rejected("missing customer email"), nil
	}
	if sess.Mode == event.ModeSubscription || sess.Mode == event.ModeSetup {
		logger.Info("checkout ignored", "reason", "unsupported mode", "mode", sess.Mode)
		return Ignored("unsupported mode"), nil
	}
	if *sess.AmountTotal < h.cfg.MinAmount {
		logger.Warn("checkout rejected", "reason", "amount below threshold", "amount_total", *sess.AmountTotal)
		return Rejected("amount below threshold"), nil
	}

	first, err := h.ledger.MarkIfNew(ctx, evt.ID, evt.Type)
	if err != nil {
		return Outcome{}, fmt.Errorf("mark event %s: %w", evt.ID, err)
	}
	if !first {
		logger.Info("duplicate delivery, fulfillment skipped")
		return Acknowledged("duplicate, already processed"), nil
	}

	ent, err := h.granter.Grant(ctx, entitlement.Grant{
		SessionID:   sess.ID,
		Email:       sess.CustomerDetails.Email,
		Name:        sess.CustomerDetails.Name,
		AmountTotal: sess.AmountTotal,
		Currency:    sess.Currency,
		CustomerID:  sess.CustomerID,
	})
	if err != nil {
		// Release the claim so the provider's retry gets another attempt.
		if uerr := h.ledger.Unmark(ctx, evt.ID); uerr != nil {
			logger.Error("failed to release ledger claim after grant failure", "error", uerr)
		}
		return Outcome{}, fmt.Errorf("grant entitlement for session %s: %w", sess.ID, err)
	}

	logger.Info("entitlement granted", "entitlement_id", ent.ID, "amount_total", *sess.AmountTotal, "currency", sess.Currency)
	h.hub.Publish(events.TypeEntitlementGranted, events.EntitlementNotice{
		EntitlementID: ent.ID,
		SessionID:     ent.SessionID,
		Email:         ent.Email,
		CustomerID:    ent.CustomerID,
	})
	return Processed("entitlement granted"), nil
}
