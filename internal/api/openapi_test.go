package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestBuildOpenAPIDoc_Structure(t *testing.T) {
	doc := buildOpenAPIDoc()

	if doc["openapi"] != "3.1.0" {
		t.Errorf("expected openapi 3.1.0, got %v", doc["openapi"])
	}

	paths := doc["paths"].(map[string]any)
	for _, p := range []string{"/healthz", "/v1/deliveries", "/v1/deliveries/{deliveryID}", "/v1/entitlements", "/v1/events"} {
		if _, ok := paths[p]; !ok {
			t.Errorf("expected path %s in document", p)
		}
	}

	deliveries := paths["/v1/deliveries"].(map[string]any)
	get := deliveries["get"].(map[string]any)
	if get["operationId"] != "listDeliveries" {
		t.Errorf("expected operationId listDeliveries, got %v", get["operationId"])
	}
	if _, ok := get["security"]; !ok {
		t.Error("expected /v1/deliveries to require auth")
	}

	healthz := paths["/healthz"].(map[string]any)
	healthzGet := healthz["get"].(map[string]any)
	if _, ok := healthzGet["security"]; ok {
		t.Error("expected /healthz to be unauthenticated")
	}
}

func TestBuildOpenAPIDoc_SecurityScheme(t *testing.T) {
	doc := buildOpenAPIDoc()

	components, ok := doc["components"].(map[string]any)
	if !ok {
		t.Fatal("expected components")
	}
	schemes := components["securitySchemes"].(map[string]any)
	bearer := schemes["BearerAuth"].(map[string]any)
	if bearer["type"] != "http" || bearer["scheme"] != "bearer" {
		t.Errorf("unexpected BearerAuth scheme: %v", bearer)
	}
}

func TestHandleOpenAPI_NoAuth(t *testing.T) {
	server := newTestServer(&mockDeliveries{}, &mockEntitlements{})

	req := httptest.NewRequest(http.MethodGet, "/openapi.yaml", nil)
	rr := httptest.NewRecorder()
	server.setupRoutes().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/yaml" {
		t.Fatalf("expected application/yaml, got %q", ct)
	}

	var doc map[string]any
	if err := yaml.Unmarshal(rr.Body.Bytes(), &doc); err != nil {
		t.Fatalf("response is not valid YAML: %v", err)
	}
	if doc["openapi"] != "3.1.0" {
		t.Errorf("expected openapi 3.1.0, got %v", doc["openapi"])
	}
	paths, ok := doc["paths"].(map[string]any)
	if !ok {
		t.Fatalf("expected paths map in document")
	}
	if _, ok := paths["/v1/deliveries"]; !ok {
		t.Error("expected /v1/deliveries in document")
	}
}
