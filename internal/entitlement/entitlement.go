// Package entitlement stores what paid checkouts have purchased: one row per
// checkout session, granted when the session completes and revoked when the
// customer's subscription lapses.
package entitlement

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusActive  Status = "active"
	StatusRevoked Status = "revoked"
)

// ErrNotFound is returned by GetBySession for a session with no entitlement.
var ErrNotFound = errors.New("entitlement not found")

// Grant is the fulfillment request built from a completed checkout session.
type Grant struct {
	SessionID   string
	Email       string
	Name        string
	AmountTotal *int64
	Currency    string
	CustomerID  string
}

type Entitlement struct {
	ID          string
	SessionID   string
	Email       string
	Name        string
	AmountTotal *int64
	Currency    string
	CustomerID  string
	Status      Status
	GrantedAt   time.Time
	RevokedAt   *time.Time
}

// Granter fulfills a completed checkout.
type Granter interface {
	Grant(ctx context.Context, g Grant) (Entitlement, error)
}

// Revoker withdraws every active entitlement held by a customer.
type Revoker interface {
	RevokeByCustomer(ctx context.Context, customerID string) (int64, error)
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Grant inserts an entitlement for g.SessionID and returns the stored row.
// The session id is unique, so granting the same session twice returns the
// original row instead of creating a second entitlement.
func (s *Store) Grant(ctx context.Context, g Grant) (Entitlement, error) {
	if g.SessionID == "" {
		return Entitlement{}, fmt.Errorf("session id is empty")
	}
	if g.Email == "" {
		return Entitlement{}, fmt.Errorf("email is empty")
	}

	id := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339Nano)

	_, err := s.db.ExecContext(ctx, `
INSERT OR IGNORE INTO entitlements(
  id, session_id, email, name, amount_total, currency, customer_id, status, granted_at
)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?);
`, id, g.SessionID, g.Email, nullable(g.Name), g.AmountTotal, nullable(g.Currency), nullable(g.CustomerID), StatusActive, now)
	if err != nil {
		return Entitlement{}, fmt.Errorf("insert entitlement: %w", err)
	}

	ent, err := s.GetBySession(ctx, g.SessionID)
	if err != nil {
		return Entitlement{}, fmt.Errorf("load granted entitlement: %w", err)
	}
	return ent, nil
}

// RevokeByCustomer marks every active entitlement of customerID revoked and
// returns how many rows changed. Unknown customers revoke zero rows; that is
// not an error, since the provider may notify about subscriptions this
// service never fulfilled.
func (s *Store) RevokeByCustomer(ctx context.Context, customerID string) (int64, error) {
	if customerID == "" {
		return 0, fmt.Errorf("customer id is empty")
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, `
UPDATE entitlements
SET status = ?, revoked_at = ?
WHERE customer_id = ? AND status = ?;
`, StatusRevoked, now, customerID, StatusActive)
	if err != nil {
		return 0, fmt.Errorf("revoke entitlements: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("revoke entitlements rows: %w", err)
	}
	return n, nil
}

// GetBySession returns the entitlement granted for a checkout session, or
// ErrNotFound if none exists.
func (s *Store) GetBySession(ctx context.Context, sessionID string) (Entitlement, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, session_id, email, name, amount_total, currency, customer_id, status, granted_at, revoked_at
FROM entitlements
WHERE session_id = ?;
`, sessionID)
	return scanEntitlement(row)
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Email string
	Limit int
}

// List returns entitlements newest-first.
func (s *Store) List(ctx context.Context, f Filter) ([]Entitlement, error) {
	if f.Limit <= 0 {
		f.Limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, session_id, email, name, amount_total, currency, customer_id, status, granted_at, revoked_at
FROM entitlements
WHERE (? = '' OR email = ?)
ORDER BY granted_at DESC
LIMIT ?;
`, f.Email, f.Email, f.Limit)
	if err != nil {
		return nil, fmt.Errorf("list entitlements: %w", err)
	}
	defer rows.Close()

	var out []Entitlement
	for rows.Next() {
		ent, err := scanEntitlement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list entitlements rows: %w", err)
	}
	return out, nil
}

func (s *Store) CountActive(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entitlements WHERE status = ?;`, StatusActive).Scan(&n); err != nil {
		return 0, fmt.Errorf("count active entitlements: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntitlement(row rowScanner) (Entitlement, error) {
	var (
		e           Entitlement
		name        sql.NullString
		amountTotal sql.NullInt64
		currency    sql.NullString
		customerID  sql.NullString
		statusS     string
		grantedAtS  string
		revokedAtS  sql.NullString
	)
	err := row.Scan(&e.ID, &e.SessionID, &e.Email, &name, &amountTotal, &currency, &customerID, &statusS, &grantedAtS, &revokedAtS)
	if errors.Is(err, sql.ErrNoRows) {
		return Entitlement{}, ErrNotFound
	}
	if err != nil {
		return Entitlement{}, fmt.Errorf("scan entitlement: %w", err)
	}

	e.Status = Status(statusS)
	if name.Valid {
		e.Name = name.String
	}
	if amountTotal.Valid {
		v := amountTotal.Int64
		e.AmountTotal = &v
	}
	if currency.Valid {
		e.Currency = currency.String
	}
	if customerID.Valid {
		e.CustomerID = customerID.String
	}
	if t, err := time.Parse(time.RFC3339Nano, grantedAtS); err == nil {
		e.GrantedAt = t
	}
	if revokedAtS.Valid {
		if t, err := time.Parse(time.RFC3339Nano, revokedAtS.String); err == nil {
			e.RevokedAt = &t
		}
	}
	return e, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
