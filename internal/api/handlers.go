package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tollkeep/tollkeep/internal/delivery"
	"github.com/tollkeep/tollkeep/internal/entitlement"
)

// handleHealthz reports liveness plus a few cheap counters. Counter failures
// degrade to zero rather than failing the probe.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	deliveries, err := s.deliveries.Count(ctx)
	if err != nil {
		s.logger.Error("healthz: count deliveries", "error", err)
	}
	ledgerSize, err := s.ledger.Count(ctx)
	if err != nil {
		s.logger.Error("healthz: count ledger", "error", err)
	}
	active, err := s.entitlements.CountActive(ctx)
	if err != nil {
		s.logger.Error("healthz: count entitlements", "error", err)
	}

	respondJSON(w, http.StatusOK, HealthzResponse{
		Status:             "ok",
		UptimeSeconds:      int64(time.Since(s.startTime).Seconds()),
		DeliveriesTotal:    deliveries,
		LedgerSize:         ledgerSize,
		EntitlementsActive: active,
	})
}

// handleListDeliveries returns recent deliveries, newest first. Filters:
// ?outcome=, ?event_type=, ?event_id=, ?limit=.
func (s *Server) handleListDeliveries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := delivery.Filter{
		Outcome:   q.Get("outcome"),
		EventType: q.Get("event_type"),
		EventID:   q.Get("event_id"),
	}
	limit, ok := s.parseLimit(w, q.Get("limit"))
	if !ok {
		return
	}
	filter.Limit = limit

	rows, err := s.deliveries.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("list deliveries", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list deliveries")
		return
	}

	resp := DeliveryListResponse{Deliveries: make([]DeliverySummary, 0, len(rows))}
	for _, d := range rows {
		resp.Deliveries = append(resp.Deliveries, deliverySummary(d))
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleGetDelivery returns one delivery including its stored payload.
func (s *Server) handleGetDelivery(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "deliveryID")

	d, err := s.deliveries.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, delivery.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "delivery not found")
			return
		}
		s.logger.Error("get delivery", "id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get delivery")
		return
	}

	detail := DeliveryDetail{DeliverySummary: deliverySummary(d)}
	if json.Valid(d.Payload) {
		detail.Payload = json.RawMessage(d.Payload)
	} else {
		detail.PayloadRaw = d.Payload
	}
	respondJSON(w, http.StatusOK, detail)
}

// handleListEntitlements returns entitlements, newest first. Filters:
// ?email=, ?limit=.
func (s *Server) handleListEntitlements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := entitlement.Filter{Email: q.Get("email")}
	limit, ok := s.parseLimit(w, q.Get("limit"))
	if !ok {
		return
	}
	filter.Limit = limit

	rows, err := s.entitlements.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("list entitlements", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list entitlements")
		return
	}

	resp := EntitlementListResponse{Entitlements: make([]EntitlementSummary, 0, len(rows))}
	for _, e := range rows {
		resp.Entitlements = append(resp.Entitlements, EntitlementSummary{
			ID:          e.ID,
			SessionID:   e.SessionID,
			Email:       e.Email,
			Name:        e.Name,
			AmountTotal: e.AmountTotal,
			Currency:    e.Currency,
			CustomerID:  e.CustomerID,
			Status:      string(e.Status),
			GrantedAt:   e.GrantedAt,
			RevokedAt:   e.RevokedAt,
		})
	}
	respondJSON(w, http.StatusOK, resp)
}

func deliverySummary(d delivery.Delivery) DeliverySummary {
	return DeliverySummary{
		ID:         d.ID,
		EventID:    d.EventID,
		EventType:  d.EventType,
		Outcome:    d.Outcome,
		StatusCode: d.StatusCode,
		Message:    d.Message,
		BodySize:   d.BodySize,
		RemoteAddr: d.RemoteAddr,
		ReceivedAt: d.ReceivedAt,
	}
}

// parseLimit reads a limit query parameter. Empty means "use the store
// default". On a bad value it writes a 400 and returns ok=false.
func (s *Server) parseLimit(w http.ResponseWriter, raw string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		s.writeError(w, http.StatusBadRequest, "invalid limit")
		return 0, false
	}
	return limit, true
}

// respondJSON is a helper to write JSON responses
func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
