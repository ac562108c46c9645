package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// OpenSQLite opens (and creates if needed) the SQLite database at path and
// ensures required tables exist.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	// The ledger's insert-if-absent guarantee rests on SQLite locking, which
	// network filesystems do not provide reliably.
	if err := validateSQLiteFilesystem(path); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Basic health check + apply a few safe pragmas.
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(pctx, "PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign_keys: %w", err)
	}
	if _, err := db.ExecContext(pctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	if err := BootstrapSQLite(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// BootstrapSQLite creates tables/indexes if missing.
//
// processed_events is the idempotency ledger: the primary key on event_id is
// what makes concurrent deliveries of the same event race safely.
func BootstrapSQLite(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS processed_events (
  event_id     TEXT PRIMARY KEY,
  event_type   TEXT NOT NULL,
  processed_at TEXT NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS deliveries (
  id          TEXT PRIMARY KEY,
  event_id    TEXT,
  event_type  TEXT,
  outcome     TEXT NOT NULL,
  status_code INTEGER NOT NULL,
  message     TEXT,
  body_size   INTEGER NOT NULL DEFAULT 0,
  remote_addr TEXT,
  payload     BLOB,
  received_at TEXT NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS entitlements (
  id           TEXT PRIMARY KEY,
  session_id   TEXT UNIQUE,
  email        TEXT NOT NULL,
  name         TEXT,
  amount_total INTEGER,
  currency     TEXT,
  customer_id  TEXT,
  status       TEXT NOT NULL,
  granted_at   TEXT NOT NULL,
  revoked_at   TEXT
);`,
		`CREATE INDEX IF NOT EXISTS deliveries_received_at_idx ON deliveries(received_at);`,
		`CREATE INDEX IF NOT EXISTS deliveries_event_id_idx ON deliveries(event_id);`,
		`CREATE INDEX IF NOT EXISTS entitlements_customer_id_idx ON entitlements(customer_id);`,
		`CREATE INDEX IF NOT EXISTS entitlements_email_idx ON entitlements(email);`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap sqlite: %w", err)
		}
	}
	return nil
}
