// Package delivery is the audit log of webhook deliveries: one row per
// inbound request, whatever its fate, so operators can answer "what did the
// provider send us and what did we do with it".
package delivery

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Delivery is one recorded webhook request.
type Delivery struct {
	ID         string
	EventID    string
	EventType  string
	Outcome    string
	StatusCode int
	Message    string
	BodySize   int64
	RemoteAddr string
	Payload    []byte
	ReceivedAt time.Time
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Record inserts d and returns its id. A zero ID gets a fresh uuid and a
// zero ReceivedAt gets the current time.
func (s *Store) Record(ctx context.Context, d Delivery) (string, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.ReceivedAt.IsZero() {
		d.ReceivedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO deliveries(
  id, event_id, event_type, outcome, status_code, message, body_size, remote_addr, payload, received_at
)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`, d.ID, nullable(d.EventID), nullable(d.EventType), d.Outcome, d.StatusCode, nullable(d.Message),
		d.BodySize, nullable(d.RemoteAddr), d.Payload, d.ReceivedAt.Format(time.RFC3339Nano))
	if err != nil {
		return "", fmt.Errorf("record delivery: %w", err)
	}
	return d.ID, nil
}

// ErrNotFound is returned by Get for an unknown delivery id.
var ErrNotFound = errors.New("delivery not found")

// Get returns one delivery by id, or ErrNotFound if absent.
func (s *Store) Get(ctx context.Context, id string) (Delivery, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, event_id, event_type, outcome, status_code, message, body_size, remote_addr, payload, received_at
FROM deliveries
WHERE id = ?;
`, id)
	return scanDelivery(row)
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Outcome   string
	EventID   string
	EventType string
	Limit     int
}

// List returns deliveries newest-first.
func (s *Store) List(ctx context.Context, f Filter) ([]Delivery, error) {
	if f.Limit <= 0 {
		f.Limit = 100
	}

	query := `
SELECT id, event_id, event_type, outcome, status_code, message, body_size, remote_addr, payload, received_at
FROM deliveries
WHERE (? = '' OR outcome = ?)
  AND (? = '' OR event_id = ?)
  AND (? = '' OR event_type = ?)
ORDER BY received_at DESC, id DESC
LIMIT ?;
`
	rows, err := s.db.QueryContext(ctx, query, f.Outcome, f.Outcome, f.EventID, f.EventID, f.EventType, f.EventType, f.Limit)
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	defer rows.Close()

	var out []Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list deliveries rows: %w", err)
	}
	return out, nil
}

func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM deliveries;`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count deliveries: %w", err)
	}
	return n, nil
}

// PruneOlderThan deletes deliveries received before cutoff and returns how
// many were removed.
func (s *Store) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM deliveries WHERE received_at < ?;`,
		cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("prune deliveries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune deliveries rows: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDelivery(row rowScanner) (Delivery, error) {
	var (
		d          Delivery
		eventID    sql.NullString
		eventType  sql.NullString
		message    sql.NullString
		remoteAddr sql.NullString
		receivedAt string
	)
	err := row.Scan(&d.ID, &eventID, &eventType, &d.Outcome, &d.StatusCode, &message, &d.BodySize, &remoteAddr, &d.Payload, &receivedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Delivery{}, ErrNotFound
	}
	if err != nil {
		return Delivery{}, fmt.Errorf("scan delivery: %w", err)
	}

	if eventID.Valid {
		d.EventID = eventID.String
	}
	if eventType.Valid {
		d.EventType = eventType.String
	}
	if message.Valid {
		d.Message = message.String
	}
	if remoteAddr.Valid {
		d.RemoteAddr = remoteAddr.String
	}
	if t, err := time.Parse(time.RFC3339Nano, receivedAt); err == nil {
		d.ReceivedAt = t
	}
	return d, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
