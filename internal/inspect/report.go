// Package inspect renders delivery reports for the CLI: one delivery's
// audit row cross-referenced against the idempotency ledger and any
// entitlement its checkout session produced.
package inspect

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tollkeep/tollkeep/internal/delivery"
	"github.com/tollkeep/tollkeep/internal/entitlement"
	"github.com/tollkeep/tollkeep/internal/ledger"
)

// Report is the structured JSON representation of a delivery report.
type Report struct {
	DeliveryID  string           `json:"delivery_id"`
	EventID     string           `json:"event_id,omitempty"`
	EventType   string           `json:"event_type,omitempty"`
	Outcome     string           `json:"outcome"`
	StatusCode  int              `json:"status_code"`
	Message     string           `json:"message,omitempty"`
	BodySize    int64            `json:"body_size"`
	RemoteAddr  string           `json:"remote_addr,omitempty"`
	ReceivedAt  time.Time        `json:"received_at"`
	Processed   bool             `json:"processed"`
	Entitlement *EntitlementInfo `json:"entitlement,omitempty"`
	Payload     json.RawMessage  `json:"payload,omitempty"`
}

// EntitlementInfo is the entitlement linked to the delivery's session.
type EntitlementInfo struct {
	ID        string     `json:"id"`
	SessionID string     `json:"session_id"`
	Email     string     `json:"email"`
	Status    string     `json:"status"`
	GrantedAt time.Time  `json:"granted_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

// BuildReport renders a terminal-friendly report for a delivery.
func BuildReport(ctx context.Context, db *sql.DB, deliveryID string) (string, error) {
	report, err := gatherReportData(ctx, db, deliveryID)
	if err != nil {
		return "", err
	}

	var out strings.Builder
	fmt.Fprintf(&out, "Delivery Report\n")
	fmt.Fprintf(&out, "Delivery ID : %s\n", report.DeliveryID)
	fmt.Fprintf(&out, "Event ID    : %s\n", renderUnset(report.EventID, "<none>"))
	fmt.Fprintf(&out, "Event Type  : %s\n", renderUnset(report.EventType, "<none>"))
	fmt.Fprintf(&out, "Outcome     : %s\n", report.Outcome)
	if report.Message != "" {
		fmt.Fprintf(&out, "Status      : %d (%s)\n", report.StatusCode, report.Message)
	} else {
		fmt.Fprintf(&out, "Status      : %d\n", report.StatusCode)
	}
	fmt.Fprintf(&out, "Received    : %s\n", report.ReceivedAt.Format(time.RFC3339))
	fmt.Fprintf(&out, "From        : %s\n", renderUnset(report.RemoteAddr, "<unknown>"))
	fmt.Fprintf(&out, "Body Size   : %d bytes\n", report.BodySize)
	fmt.Fprintf(&out, "\n")

	if report.Processed {
		fmt.Fprintf(&out, "Ledger      : event marked processed\n")
	} else {
		fmt.Fprintf(&out, "Ledger      : event not in ledger\n")
	}

	if report.Entitlement != nil {
		e := report.Entitlement
		fmt.Fprintf(&out, "Entitlement : %s (%s, %s)\n", e.ID, e.Email, e.Status)
		fmt.Fprintf(&out, "  session   : %s\n", e.SessionID)
		fmt.Fprintf(&out, "  granted   : %s\n", e.GrantedAt.Format(time.RFC3339))
		if e.RevokedAt != nil {
			fmt.Fprintf(&out, "  revoked   : %s\n", e.RevokedAt.Format(time.RFC3339))
		}
	} else {
		fmt.Fprintf(&out, "Entitlement : <none>\n")
	}

	fmt.Fprintf(&out, "\n")
	fmt.Fprintf(&out, "Payload     :\n")
	payload := prettyJSON(report.Payload)
	for _, line := range strings.Split(strings.TrimSpace(payload), "\n") {
		fmt.Fprintf(&out, "  %s\n", line)
	}

	return strings.TrimRight(out.String(), "\n") + "\n", nil
}

// BuildJSONReport returns the machine-readable JSON delivery report.
func BuildJSONReport(ctx context.Context, db *sql.DB, deliveryID string) (string, error) {
	report, err := gatherReportData(ctx, db, deliveryID)
	if err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal json report: %w", err)
	}
	return string(data), nil
}

func gatherReportData(ctx context.Context, db *sql.DB, deliveryID string) (*Report, error) {
	if strings.TrimSpace(deliveryID) == "" {
		return nil, fmt.Errorf("delivery id is required")
	}

	d, err := delivery.NewStore(db).Get(ctx, deliveryID)
	if err != nil {
		if errors.Is(err, delivery.ErrNotFound) {
			return nil, fmt.Errorf("delivery %q not found", deliveryID)
		}
		return nil, fmt.Errorf("query delivery %q: %w", deliveryID, err)
	}

	report := &Report{
		DeliveryID: d.ID,
		EventID:    d.EventID,
		EventType:  d.EventType,
		Outcome:    d.Outcome,
		StatusCode: d.StatusCode,
		Message:    d.Message,
		BodySize:   d.BodySize,
		RemoteAddr: d.RemoteAddr,
		ReceivedAt: d.ReceivedAt,
	}
	if json.Valid(d.Payload) {
		report.Payload = json.RawMessage(d.Payload)
	}

	if d.EventID != "" {
		seen, err := ledger.New(db).Seen(ctx, d.EventID)
		if err != nil {
			return nil, fmt.Errorf("check ledger for %q: %w", d.EventID, err)
		}
		report.Processed = seen
	}

	// A checkout payload carries its session id at data.object.id; when one
	// is present, the matching entitlement completes the picture.
	if sessionID := sessionIDFromPayload(d.Payload); sessionID != "" {
		ent, err := entitlement.NewStore(db).GetBySession(ctx, sessionID)
		switch {
		case err == nil:
			report.Entitlement = &EntitlementInfo{
				ID:        ent.ID,
				SessionID: ent.SessionID,
				Email:     ent.Email,
				Status:    string(ent.Status),
				GrantedAt: ent.GrantedAt,
				RevokedAt: ent.RevokedAt,
			}
		case errors.Is(err, entitlement.ErrNotFound):
			// Delivery never produced one; nothing to report.
		default:
			return nil, fmt.Errorf("query entitlement for session %q: %w", sessionID, err)
		}
	}

	return report, nil
}

func sessionIDFromPayload(payload []byte) string {
	if len(payload) == 0 {
		return ""
	}
	var env struct {
		Data struct {
			Object struct {
				ID string `json:"id"`
			} `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &env); err != nil {
		return ""
	}
	return env.Data.Object.ID
}

func prettyJSON(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "<not stored>"
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return string(raw)
	}
	return string(out)
}

func renderUnset(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
