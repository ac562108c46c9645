package delivery

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/tollkeep/tollkeep/internal/storage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "state.db")
	db, err := storage.OpenSQLite(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db)
}

func TestRecordAndGet(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)

	id, err := s.Record(context.Background(), Delivery{
		EventID:    "evt_1",
		EventType:  "checkout.session.completed",
		Outcome:    "processed",
		StatusCode: 200,
		Message:    "entitlement granted",
		BodySize:   412,
		RemoteAddr: "192.0.2.10:4422",
		Payload:    []byte(`{"id":"evt_1"}`),
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if id == "" {
		t.Fatal("Record returned empty id")
	}

	got, err := s.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.EventID != "evt_1" || got.Outcome != "processed" || got.StatusCode != 200 {
		t.Fatalf("unexpected delivery: %#v", got)
	}
	if string(got.Payload) != `{"id":"evt_1"}` {
		t.Fatalf("payload = %q", got.Payload)
	}
	if got.ReceivedAt.IsZero() {
		t.Fatal("received_at not set")
	}
}

func TestRecordWithoutEventFields(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)

	// Failed verifications have no event identity and no stored payload.
	id, err := s.Record(context.Background(), Delivery{
		Outcome:    "signature_mismatch",
		StatusCode: 403,
		Message:    "signature verification failed",
		BodySize:   99,
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}

	got, err := s.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.EventID != "" || got.EventType != "" {
		t.Fatalf("expected empty event fields, got %#v", got)
	}
	if len(got.Payload) != 0 {
		t.Fatalf("expected no payload, got %d bytes", len(got.Payload))
	}
}

func TestGetMissing(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)

	_, err := s.Get(context.Background(), "absent")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestListFilters(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)

	rows := []Delivery{
		{EventID: "evt_a", EventType: "checkout.session.completed", Outcome: "processed", StatusCode: 200},
		{EventID: "evt_b", EventType: "customer.subscription.deleted", Outcome: "rejected", StatusCode: 422},
		{EventID: "evt_a", EventType: "checkout.session.completed", Outcome: "acknowledged", StatusCode: 200},
	}
	for i := range rows {
		if _, err := s.Record(context.Background(), rows[i]); err != nil {
			t.Fatalf("Record %d: %v", i, err)
		}
	}

	all, err := s.List(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("len = %d, want 3", len(all))
	}

	rejected, err := s.List(context.Background(), Filter{Outcome: "rejected"})
	if err != nil {
		t.Fatalf("List rejected: %v", err)
	}
	if len(rejected) != 1 || rejected[0].EventID != "evt_b" {
		t.Fatalf("unexpected rejected list: %#v", rejected)
	}

	byEvent, err := s.List(context.Background(), Filter{EventID: "evt_a"})
	if err != nil {
		t.Fatalf("List by event: %v", err)
	}
	if len(byEvent) != 2 {
		t.Fatalf("len = %d, want 2", len(byEvent))
	}

	byType, err := s.List(context.Background(), Filter{EventType: "customer.subscription.deleted"})
	if err != nil {
		t.Fatalf("List by type: %v", err)
	}
	if len(byType) != 1 || byType[0].EventID != "evt_b" {
		t.Fatalf("unexpected type list: %#v", byType)
	}

	limited, err := s.List(context.Background(), Filter{Limit: 1})
	if err != nil {
		t.Fatalf("List limited: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("len = %d, want 1", len(limited))
	}
}

func TestCountAndPrune(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)

	for i := 0; i < 3; i++ {
		if _, err := s.Record(context.Background(), Delivery{Outcome: "processed", StatusCode: 200}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	n, err := s.Count(context.Background())
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 3 {
		t.Fatalf("Count = %d, want 3", n)
	}

	removed, err := s.PruneOlderThan(context.Background(), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("PruneOlderThan: %v", err)
	}
	if removed != 3 {
		t.Fatalf("removed = %d, want 3", removed)
	}
}
