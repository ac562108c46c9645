package api

import (
	"net/http"
	"sync"

	"gopkg.in/yaml.v3"
)

// openAPIDoc caches the rendered OpenAPI document. The surface is static, so
// it is built and marshalled once.
type openAPIDoc struct {
	once sync.Once
	body []byte
	err  error
}

func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	s.openAPI.once.Do(func() {
		s.openAPI.body, s.openAPI.err = yaml.Marshal(buildOpenAPIDoc())
	})
	if s.openAPI.err != nil {
		s.logger.Error("render openapi document", "error", s.openAPI.err)
		s.writeError(w, http.StatusInternalServerError, "failed to render document")
		return
	}

	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(s.openAPI.body)
}

// buildOpenAPIDoc returns an OpenAPI 3.1 document covering the admin API.
func buildOpenAPIDoc() map[string]any {
	secured := []any{map[string]any{"BearerAuth": []string{}}}

	paths := map[string]any{
		"/healthz": map[string]any{
			"get": map[string]any{
				"operationId": "getHealthz",
				"summary":     "Liveness probe with delivery, ledger, and entitlement counters",
				"responses": map[string]any{
					"200": map[string]any{"description": "Service is up"},
				},
			},
		},
		"/v1/deliveries": map[string]any{
			"get": map[string]any{
				"operationId": "listDeliveries",
				"summary":     "List recorded webhook deliveries, newest first (scope deliveries:ro)",
				"parameters": []any{
					queryParam("outcome", "Filter by outcome (processed, ignored, rejected, ...)"),
					queryParam("event_type", "Filter by provider event type"),
					queryParam("event_id", "Filter by provider event id"),
					queryParam("limit", "Maximum rows to return (default 100)"),
				},
				"responses": map[string]any{
					"200": map[string]any{"description": "Delivery list"},
					"400": map[string]any{"description": "Bad request"},
					"401": map[string]any{"description": "Missing or invalid bearer token"},
					"403": map[string]any{"description": "Insufficient scope"},
				},
				"security": secured,
			},
		},
		"/v1/deliveries/{deliveryID}": map[string]any{
			"get": map[string]any{
				"operationId": "getDelivery",
				"summary":     "Fetch one delivery including its stored payload (scope deliveries:ro)",
				"parameters": []any{
					map[string]any{
						"name":     "deliveryID",
						"in":       "path",
						"required": true,
						"schema":   map[string]any{"type": "string"},
					},
				},
				"responses": map[string]any{
					"200": map[string]any{"description": "Delivery detail"},
					"401": map[string]any{"description": "Missing or invalid bearer token"},
					"403": map[string]any{"description": "Insufficient scope"},
					"404": map[string]any{"description": "Unknown delivery id"},
				},
				"security": secured,
			},
		},
		"/v1/entitlements": map[string]any{
			"get": map[string]any{
				"operationId": "listEntitlements",
				"summary":     "List entitlements, newest first (scope entitlements:ro)",
				"parameters": []any{
					queryParam("email", "Filter by buyer email"),
					queryParam("limit", "Maximum rows to return (default 100)"),
				},
				"responses": map[string]any{
					"200": map[string]any{"description": "Entitlement list"},
					"400": map[string]any{"description": "Bad request"},
					"401": map[string]any{"description": "Missing or invalid bearer token"},
					"403": map[string]any{"description": "Insufficient scope"},
				},
				"security": secured,
			},
		},
		"/v1/events": map[string]any{
			"get": map[string]any{
				"operationId": "streamEvents",
				"summary":     "Server-sent event stream of deliveries and entitlement changes (scope events:ro)",
				"responses": map[string]any{
					"200": map[string]any{
						"description": "text/event-stream; supports Last-Event-ID replay",
					},
					"401": map[string]any{"description": "Missing or invalid bearer token"},
					"403": map[string]any{"description": "Insufficient scope"},
				},
				"security": secured,
			},
		},
	}

	return map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":   "Tollkeep Admin API",
			"version": "1.0",
		},
		"paths": paths,
		"components": map[string]any{
			"securitySchemes": map[string]any{
				"BearerAuth": map[string]any{
					"type":   "http",
					"scheme": "bearer",
				},
			},
		},
	}
}

func queryParam(name, description string) map[string]any {
	return map[string]any{
		"name":        name,
		"in":          "query",
		"required":    false,
		"description": description,
		"schema":      map[string]any{"type": "string"},
	}
}
