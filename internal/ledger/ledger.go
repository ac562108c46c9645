// Package ledger records which provider events have already been fulfilled.
//
// The ledger is the idempotency gate for webhook processing: providers
// redeliver events on timeouts and retries, and every redelivery carries the
// same event id. MarkIfNew claims an id atomically, so exactly one delivery
// of a given event performs side effects; the rest are acknowledged without
// doing work. Marks survive restarts because they live in the same SQLite
// database as the rest of the service state.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type Ledger struct {
	db *sql.DB
}

func New(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// MarkIfNew claims eventID and reports whether this call was the first to do
// so. The insert-if-absent is a single statement, so concurrent deliveries of
// the same event race safely: exactly one caller sees true.
func (l *Ledger) MarkIfNew(ctx context.Context, eventID, eventType string) (bool, error) {
	if eventID == "" {
		return false, fmt.Errorf("eventID is empty")
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := l.db.ExecContext(ctx, `
INSERT OR IGNORE INTO processed_events(event_id, event_type, processed_at)
VALUES(?, ?, ?);
`, eventID, eventType, now)
	if err != nil {
		return false, fmt.Errorf("mark event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark event rows: %w", err)
	}
	return n == 1, nil
}

// Unmark releases a claim taken by MarkIfNew. Handlers call it when
// fulfillment fails after the claim, so the provider's retry of the same
// event gets another attempt instead of being swallowed as a duplicate.
func (l *Ledger) Unmark(ctx context.Context, eventID string) error {
	if eventID == "" {
		return fmt.Errorf("eventID is empty")
	}
	if _, err := l.db.ExecContext(ctx, `DELETE FROM processed_events WHERE event_id = ?;`, eventID); err != nil {
		return fmt.Errorf("unmark event: %w", err)
	}
	return nil
}

// Seen reports whether eventID has been marked, without claiming it.
func (l *Ledger) Seen(ctx context.Context, eventID string) (bool, error) {
	var one int
	err := l.db.QueryRowContext(ctx, `SELECT 1 FROM processed_events WHERE event_id = ?;`, eventID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query event mark: %w", err)
	}
	return true, nil
}

func (l *Ledger) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM processed_events;`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count event marks: %w", err)
	}
	return n, nil
}

// PruneOlderThan deletes marks processed before cutoff and returns how many
// were removed. Pruned events would be fulfilled again if the provider
// redelivered them, so retention should comfortably exceed the provider's
// retry horizon.
func (l *Ledger) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := l.db.ExecContext(ctx, `DELETE FROM processed_events WHERE processed_at < ?;`,
		cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("prune event marks: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune event marks rows: %w", err)
	}
	return n, nil
}
