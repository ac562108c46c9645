package api

import (
	"encoding/json"
	"time"
)

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status             string `json:"status"`
	UptimeSeconds      int64  `json:"uptime_seconds"`
	DeliveriesTotal    int64  `json:"deliveries_total"`
	LedgerSize         int64  `json:"ledger_size"`
	EntitlementsActive int64  `json:"entitlements_active"`
}

// DeliverySummary is one row of GET /v1/deliveries.
type DeliverySummary struct {
	ID         string    `json:"id"`
	EventID    string    `json:"event_id,omitempty"`
	EventType  string    `json:"event_type,omitempty"`
	Outcome    string    `json:"outcome"`
	StatusCode int       `json:"status_code"`
	Message    string    `json:"message,omitempty"`
	BodySize   int64     `json:"body_size"`
	RemoteAddr string    `json:"remote_addr,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// DeliveryListResponse is returned by GET /v1/deliveries.
type DeliveryListResponse struct {
	Deliveries []DeliverySummary `json:"deliveries"`
}

// DeliveryDetail is returned by GET /v1/deliveries/{deliveryID}. Unlike the
// list rows it carries the stored payload: as JSON when the stored bytes are
// valid JSON, base64-encoded otherwise (a verified but undecodable payload
// is still kept for debugging).
type DeliveryDetail struct {
	DeliverySummary
	Payload    json.RawMessage `json:"payload,omitempty"`
	PayloadRaw []byte          `json:"payload_raw,omitempty"`
}

// EntitlementSummary is one row of GET /v1/entitlements.
type EntitlementSummary struct {
	ID          string     `json:"id"`
	SessionID   string     `json:"session_id"`
	Email       string     `json:"email"`
	Name        string     `json:"name,omitempty"`
	AmountTotal *int64     `json:"amount_total,omitempty"`
	Currency    string     `json:"currency,omitempty"`
	CustomerID  string     `json:"customer_id,omitempty"`
	Status      string     `json:"status"`
	GrantedAt   time.Time  `json:"granted_at"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
}

// EntitlementListResponse is returned by GET /v1/entitlements.
type EntitlementListResponse struct {
	Entitlements []EntitlementSummary `json:"entitlements"`
}

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}
