package watch

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/tollkeep/tollkeep/internal/events"
)

func deliveryEvent(t *testing.T, id int64, n events.DeliveryNotice) events.Event {
	t.Helper()
	data, err := json.Marshal(n)
	if err != nil {
		t.Fatalf("marshal notice: %v", err)
	}
	return events.Event{ID: id, Type: events.TypeDeliveryReceived, At: time.Now(), Data: data}
}

func TestApplyDeliveryEventPrependsRows(t *testing.T) {
	var rows []DeliveryRow

	rows = applyDeliveryEvent(rows, deliveryEvent(t, 1, events.DeliveryNotice{
		DeliveryID: "dlv-first",
		EventType:  "checkout.session.completed",
		Outcome:    "processed",
		StatusCode: 200,
	}))
	rows = applyDeliveryEvent(rows, deliveryEvent(t, 2, events.DeliveryNotice{
		DeliveryID: "dlv-second",
		Outcome:    "signature_mismatch",
		StatusCode: 403,
	}))

	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].DeliveryID != "dlv-second" {
		t.Errorf("expected newest row first, got %q", rows[0].DeliveryID)
	}
	if rows[1].Outcome != "processed" {
		t.Errorf("expected outcome processed, got %q", rows[1].Outcome)
	}
}

func TestApplyDeliveryEventCapsBacklog(t *testing.T) {
	var rows []DeliveryRow
	for i := 0; i < maxDeliveryRows+10; i++ {
		rows = applyDeliveryEvent(rows, deliveryEvent(t, int64(i), events.DeliveryNotice{
			DeliveryID: "dlv",
			Outcome:    "processed",
		}))
	}
	if len(rows) != maxDeliveryRows {
		t.Errorf("expected backlog capped at %d, got %d", maxDeliveryRows, len(rows))
	}
}

func TestApplyDeliveryEventIgnoresOtherTypes(t *testing.T) {
	rows := applyDeliveryEvent(nil, events.Event{
		Type: events.TypeEntitlementGranted,
		Data: []byte(`{"session_id":"cs_1"}`),
	})
	if len(rows) != 0 {
		t.Errorf("expected no rows, got %d", len(rows))
	}
}

func TestApplyEntitlementEventGrantThenRevoke(t *testing.T) {
	states := make(map[string]*EntitlementState)

	grant, _ := json.Marshal(events.EntitlementNotice{
		SessionID: "cs_1",
		Email:     "alice@example.com",
	})
	applyEntitlementEvent(states, events.Event{Type: events.TypeEntitlementGranted, Data: grant})

	if s := states["cs_1"]; s == nil || s.Status != "granted" {
		t.Fatalf("expected granted state for cs_1, got %+v", s)
	}

	revoke, _ := json.Marshal(events.EntitlementNotice{SessionID: "cs_1"})
	applyEntitlementEvent(states, events.Event{Type: events.TypeEntitlementRevoked, Data: revoke})

	s := states["cs_1"]
	if s.Status != "revoked" {
		t.Errorf("expected revoked, got %q", s.Status)
	}
	if s.Email != "alice@example.com" {
		t.Errorf("expected email preserved across revoke, got %q", s.Email)
	}
	if len(states) != 1 {
		t.Errorf("expected one state, got %d", len(states))
	}
}

func TestApplyEntitlementEventFallsBackToCustomerKey(t *testing.T) {
	states := make(map[string]*EntitlementState)

	revoke, _ := json.Marshal(events.EntitlementNotice{CustomerID: "cus_9", Revoked: 2})
	applyEntitlementEvent(states, events.Event{Type: events.TypeEntitlementRevoked, Data: revoke})

	if s := states["cus_9"]; s == nil || s.Status != "revoked" {
		t.Fatalf("expected revoked state keyed by customer, got %+v", s)
	}
}

func TestDescribeEventDelivery(t *testing.T) {
	e := deliveryEvent(t, 7, events.DeliveryNotice{
		DeliveryID: "0123456789abcdef",
		EventType:  "checkout.session.completed",
		Outcome:    "rejected",
		StatusCode: 422,
		Message:    "missing session id",
	})

	desc := describeEvent(e)
	for _, needle := range []string{"[01234567]", "checkout.session.completed", "rejected", "(422)", "missing session id"} {
		if !strings.Contains(desc, needle) {
			t.Errorf("expected description to contain %q, got %q", needle, desc)
		}
	}
}
