package dispatch

import (
	"context"

	"github.com/tollkeep/tollkeep/internal/entitlement"
	"github.com/tollkeep/tollkeep/internal/event"
)

//go:generate mockgen -destination=mocks/mock_interfaces.go -package=mocks github.com/tollkeep/tollkeep/internal/dispatch Ledger,Granter,Revoker

// Handler processes one verified event.
type Handler interface {
	Handle(ctx context.Context, evt event.Event) (Outcome, error)
}

// Ledger is the processed-event ledger surface the handlers gate on.
type Ledger interface {
	MarkIfNew(ctx context.Context, eventID, eventType string) (bool, error)
	Unmark(ctx context.Context, eventID string) error
}

// Granter fulfills a completed checkout.
type Granter interface {
	Grant(ctx context.Context, g entitlement.Grant) (entitlement.Entitlement, error)
}

// Revoker withdraws every active entitlement held by a customer.
type Revoker interface {
	RevokeByCustomer(ctx context.Context, customerID string) (int64, error)
}
