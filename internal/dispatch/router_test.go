package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tollkeep/tollkeep/internal/event"
)

type stubHandler struct {
	calls   int
	outcome Outcome
	err     error
}

func (s *stubHandler) Handle(_ context.Context, _ event.Event) (Outcome, error) {
	s.calls++
	return s.outcome, s.err
}

func TestRouterRoutesByType(t *testing.T) {
	tests := []struct {
		eventType        string
		wantCheckout     int
		wantSubscription int
	}{
		{eventType: event.TypeCheckoutCompleted, wantCheckout: 1},
		{eventType: event.TypeSubscriptionUpdated, wantSubscription: 1},
		{eventType: event.TypeSubscriptionDeleted, wantSubscription: 1},
	}

	for _, tt := range tests {
		t.Run(tt.eventType, func(t *testing.T) {
			checkout := &stubHandler{outcome: Processed("entitlement granted")}
			subscription := &stubHandler{outcome: Processed("entitlements revoked")}
			r := NewRouter(checkout, subscription)

			out, err := r.Dispatch(context.Background(), event.Event{ID: "evt_r", Type: tt.eventType})
			assert.NoError(t, err)
			assert.Equal(t, KindProcessed, out.Kind)
			assert.Equal(t, tt.wantCheckout, checkout.calls)
			assert.Equal(t, tt.wantSubscription, subscription.calls)
		})
	}
}

func TestRouterUnknownTypeAcknowledged(t *testing.T) {
	checkout := &stubHandler{}
	subscription := &stubHandler{}
	r := NewRouter(checkout, subscription)

	out, err := r.Dispatch(context.Background(), event.Event{ID: "evt_u", Type: "foo.bar"})
	assert.NoError(t, err)
	assert.Equal(t, KindAcknowledged, out.Kind)
	assert.Equal(t, "unhandled type", out.Message)
	assert.Equal(t, 0, checkout.calls)
	assert.Equal(t, 0, subscription.calls)
}

func TestRouterPropagatesHandlerError(t *testing.T) {
	checkout := &stubHandler{err: errors.New("grant failed")}
	r := NewRouter(checkout, &stubHandler{})

	_, err := r.Dispatch(context.Background(), event.Event{ID: "evt_e", Type: event.TypeCheckoutCompleted})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "grant failed")
}
