package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/tollkeep/tollkeep/internal/delivery"
	"github.com/tollkeep/tollkeep/internal/dispatch"
	"github.com/tollkeep/tollkeep/internal/event"
	"github.com/tollkeep/tollkeep/internal/events"
	"github.com/tollkeep/tollkeep/internal/signature"
)

const checkoutEventBody = `{"id":"evt_1","type":"checkout.session.completed","created":1700000000,"data":{"object":{"id":"cs_1"}}}`

// mockDispatcher is a mock implementation of Dispatcher for testing.
type mockDispatcher struct {
	dispatchFn func(ctx context.Context, ev event.Event) (dispatch.Outcome, error)
	calls      int
}

func (m *mockDispatcher) Dispatch(ctx context.Context, ev event.Event) (dispatch.Outcome, error) {
	m.calls++
	if m.dispatchFn != nil {
		return m.dispatchFn(ctx, ev)
	}
	return dispatch.Processed("entitlement granted"), nil
}

// mockRecorder is a mock implementation of DeliveryRecorder for testing.
type mockRecorder struct {
	recorded []delivery.Delivery
	recordFn func(ctx context.Context, d delivery.Delivery) (string, error)
}

func (m *mockRecorder) Record(ctx context.Context, d delivery.Delivery) (string, error) {
	m.recorded = append(m.recorded, d)
	if m.recordFn != nil {
		return m.recordFn(ctx, d)
	}
	return "del-1", nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testConfig() Config {
	return Config{
		Listen: "127.0.0.1:0",
		Secret: "test-secret",
	}
}

// signedRequest builds a POST with a valid signature over body.
func signedRequest(t *testing.T, secret string, body []byte) *http.Request {
	t.Helper()
	req := httptest.NewRequest("POST", "/webhook", bytes.NewReader(body))
	req.Header.Set(DefaultSignatureHeader, signature.SignHeader(secret, time.Now().Unix(), body))
	return req
}

func lastRecorded(t *testing.T, mr *mockRecorder) delivery.Delivery {
	t.Helper()
	if len(mr.recorded) != 1 {
		t.Fatalf("recorded %d deliveries, want 1", len(mr.recorded))
	}
	return mr.recorded[0]
}

func TestHandleWebhook_ValidSignature(t *testing.T) {
	body := []byte(checkoutEventBody)

	md := &mockDispatcher{
		dispatchFn: func(ctx context.Context, ev event.Event) (dispatch.Outcome, error) {
			if ev.ID != "evt_1" {
				t.Errorf("event ID = %v, want evt_1", ev.ID)
			}
			if ev.Type != event.TypeCheckoutCompleted {
				t.Errorf("event type = %v, want %v", ev.Type, event.TypeCheckoutCompleted)
			}
			return dispatch.Processed("entitlement granted"), nil
		},
	}
	mr := &mockRecorder{}
	server := New(testConfig(), md, mr, nil, testLogger())

	rec := httptest.NewRecorder()
	server.handleWebhook(rec, signedRequest(t, "test-secret", body))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp Response
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Received {
		t.Error("received = false, want true")
	}
	if resp.Message != "entitlement granted" {
		t.Errorf("message = %q, want %q", resp.Message, "entitlement granted")
	}

	d := lastRecorded(t, mr)
	if d.Outcome != "processed" {
		t.Errorf("recorded outcome = %q, want processed", d.Outcome)
	}
	if d.EventID != "evt_1" {
		t.Errorf("recorded event ID = %q, want evt_1", d.EventID)
	}
	if d.StatusCode != http.StatusOK {
		t.Errorf("recorded status = %d, want %d", d.StatusCode, http.StatusOK)
	}
	if !bytes.Equal(d.Payload, body) {
		t.Error("recorded payload does not match request body")
	}
	if d.BodySize != int64(len(body)) {
		t.Errorf("recorded body size = %d, want %d", d.BodySize, len(body))
	}
}

func TestHandleWebhook_InvalidSignature(t *testing.T) {
	body := []byte(checkoutEventBody)
	wrongSignature := fmt.Sprintf("t=%d,v1=%s", time.Now().Unix(), strings.Repeat("0", 64))

	md := &mockDispatcher{
		dispatchFn: func(ctx context.Context, ev event.Event) (dispatch.Outcome, error) {
			t.Fatal("Dispatch should not be called with invalid signature")
			return dispatch.Outcome{}, nil
		},
	}
	mr := &mockRecorder{}
	server := New(testConfig(), md, mr, nil, testLogger())

	req := httptest.NewRequest("POST", "/webhook", bytes.NewReader(body))
	req.Header.Set(DefaultSignatureHeader, wrongSignature)
	rec := httptest.NewRecorder()

	server.handleWebhook(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}

	var resp Response
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Received {
		t.Error("received = true, want false")
	}
	// Message should be generic (no details leaked)
	if resp.Message != "forbidden" {
		t.Errorf("message = %q, want generic %q", resp.Message, "forbidden")
	}

	d := lastRecorded(t, mr)
	if d.Outcome != "signature_mismatch" {
		t.Errorf("recorded outcome = %q, want signature_mismatch", d.Outcome)
	}
	if d.Payload != nil {
		t.Error("unverified payload must not be recorded")
	}
}

func TestHandleWebhook_MissingSignature(t *testing.T) {
	md := &mockDispatcher{
		dispatchFn: func(ctx context.Context, ev event.Event) (dispatch.Outcome, error) {
			t.Fatal("Dispatch should not be called without signature")
			return dispatch.Outcome{}, nil
		},
	}
	mr := &mockRecorder{}
	server := New(testConfig(), md, mr, nil, testLogger())

	req := httptest.NewRequest("POST", "/webhook", strings.NewReader(checkoutEventBody))
	// No signature header set
	rec := httptest.NewRecorder()

	server.handleWebhook(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}

	d := lastRecorded(t, mr)
	if d.Outcome != "missing_signature" {
		t.Errorf("recorded outcome = %q, want missing_signature", d.Outcome)
	}
}

func TestHandleWebhook_MalformedSignatureHeader(t *testing.T) {
	body := []byte(checkoutEventBody)

	mr := &mockRecorder{}
	server := New(testConfig(), &mockDispatcher{}, mr, nil, testLogger())

	req := httptest.NewRequest("POST", "/webhook", bytes.NewReader(body))
	req.Header.Set(DefaultSignatureHeader, "not-a-signature")
	rec := httptest.NewRecorder()

	server.handleWebhook(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	d := lastRecorded(t, mr)
	if d.Outcome != "malformed_header" {
		t.Errorf("recorded outcome = %q, want malformed_header", d.Outcome)
	}
}

func TestHandleWebhook_StaleSignature(t *testing.T) {
	body := []byte(checkoutEventBody)
	staleTimestamp := time.Now().Add(-time.Hour).Unix()

	mr := &mockRecorder{}
	server := New(testConfig(), &mockDispatcher{}, mr, nil, testLogger())

	req := httptest.NewRequest("POST", "/webhook", bytes.NewReader(body))
	req.Header.Set(DefaultSignatureHeader, signature.SignHeader("test-secret", staleTimestamp, body))
	rec := httptest.NewRecorder()

	server.handleWebhook(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}

	d := lastRecorded(t, mr)
	if d.Outcome != "stale_signature" {
		t.Errorf("recorded outcome = %q, want stale_signature", d.Outcome)
	}
}

func TestHandleWebhook_TamperedBody(t *testing.T) {
	body := []byte(checkoutEventBody)
	header := signature.SignHeader("test-secret", time.Now().Unix(), body)

	tampered := bytes.Replace(body, []byte("evt_1"), []byte("evt_2"), 1)

	mr := &mockRecorder{}
	server := New(testConfig(), &mockDispatcher{}, mr, nil, testLogger())

	req := httptest.NewRequest("POST", "/webhook", bytes.NewReader(tampered))
	req.Header.Set(DefaultSignatureHeader, header)
	rec := httptest.NewRecorder()

	server.handleWebhook(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}

	d := lastRecorded(t, mr)
	if d.Outcome != "signature_mismatch" {
		t.Errorf("recorded outcome = %q, want signature_mismatch", d.Outcome)
	}
}

func TestHandleWebhook_ReencodedBodyFailsVerification(t *testing.T) {
	body := []byte(checkoutEventBody)
	header := signature.SignHeader("test-secret", time.Now().Unix(), body)

	// Semantically identical JSON with different bytes.
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		t.Fatalf("unmarshal fixture: %v", err)
	}
	reencoded, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	if bytes.Equal(reencoded, body) {
		t.Fatal("fixture did not change representation")
	}

	server := New(testConfig(), &mockDispatcher{}, &mockRecorder{}, nil, testLogger())

	req := httptest.NewRequest("POST", "/webhook", bytes.NewReader(reencoded))
	req.Header.Set(DefaultSignatureHeader, header)
	rec := httptest.NewRecorder()

	server.handleWebhook(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
}

func TestHandleWebhook_BodyTooLarge(t *testing.T) {
	body := bytes.Repeat([]byte("a"), 2*1024*1024) // 2MB

	config := testConfig()
	config.MaxBodySize = 1048576 // 1MB limit

	md := &mockDispatcher{}
	mr := &mockRecorder{}
	server := New(config, md, mr, nil, testLogger())

	rec := httptest.NewRecorder()
	server.handleWebhook(rec, signedRequest(t, "test-secret", body))

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusRequestEntityTooLarge)
	}
	if md.calls != 0 {
		t.Errorf("dispatcher called %d times, want 0", md.calls)
	}

	d := lastRecorded(t, mr)
	if d.Outcome != "too_large" {
		t.Errorf("recorded outcome = %q, want too_large", d.Outcome)
	}
	if d.Payload != nil {
		t.Error("oversized payload must not be recorded")
	}
}

func TestHandleWebhook_EmptyBody(t *testing.T) {
	mr := &mockRecorder{}
	server := New(testConfig(), &mockDispatcher{}, mr, nil, testLogger())

	req := httptest.NewRequest("POST", "/webhook", strings.NewReader(""))
	req.Header.Set(DefaultSignatureHeader, signature.SignHeader("test-secret", time.Now().Unix(), nil))
	rec := httptest.NewRecorder()

	server.handleWebhook(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	d := lastRecorded(t, mr)
	if d.Outcome != "incomplete_body" {
		t.Errorf("recorded outcome = %q, want incomplete_body", d.Outcome)
	}
}

func TestHandleWebhook_MalformedPayload(t *testing.T) {
	body := []byte("not json at all")

	md := &mockDispatcher{
		dispatchFn: func(ctx context.Context, ev event.Event) (dispatch.Outcome, error) {
			t.Fatal("Dispatch should not be called for undecodable payloads")
			return dispatch.Outcome{}, nil
		},
	}
	mr := &mockRecorder{}
	server := New(testConfig(), md, mr, nil, testLogger())

	rec := httptest.NewRecorder()
	server.handleWebhook(rec, signedRequest(t, "test-secret", body))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	var resp Response
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Message != "malformed event payload" {
		t.Errorf("message = %q, want %q", resp.Message, "malformed event payload")
	}

	// The payload passed verification, so the audit row keeps it.
	d := lastRecorded(t, mr)
	if d.Outcome != "malformed_payload" {
		t.Errorf("recorded outcome = %q, want malformed_payload", d.Outcome)
	}
	if !bytes.Equal(d.Payload, body) {
		t.Error("verified payload should be recorded even when undecodable")
	}
	if d.EventID != "" {
		t.Errorf("recorded event ID = %q, want empty", d.EventID)
	}
}

func TestHandleWebhook_MissingEventID(t *testing.T) {
	body := []byte(`{"type":"checkout.session.completed","data":{"object":{}}}`)

	mr := &mockRecorder{}
	server := New(testConfig(), &mockDispatcher{}, mr, nil, testLogger())

	rec := httptest.NewRecorder()
	server.handleWebhook(rec, signedRequest(t, "test-secret", body))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	d := lastRecorded(t, mr)
	if d.Outcome != "malformed_payload" {
		t.Errorf("recorded outcome = %q, want malformed_payload", d.Outcome)
	}
}

func TestHandleWebhook_RejectedOutcome(t *testing.T) {
	md := &mockDispatcher{
		dispatchFn: func(ctx context.Context, ev event.Event) (dispatch.Outcome, error) {
			return dispatch.Rejected("missing customer email"), nil
		},
	}
	mr := &mockRecorder{}
	server := New(testConfig(), md, mr, nil, testLogger())

	rec := httptest.NewRecorder()
	server.handleWebhook(rec, signedRequest(t, "test-secret", []byte(checkoutEventBody)))

	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnprocessableEntity)
	}

	var resp Response
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Received {
		t.Error("received = false, want true for a handler verdict")
	}
	if resp.Message != "missing customer email" {
		t.Errorf("message = %q, want %q", resp.Message, "missing customer email")
	}

	d := lastRecorded(t, mr)
	if d.Outcome != "rejected" {
		t.Errorf("recorded outcome = %q, want rejected", d.Outcome)
	}
}

func TestHandleWebhook_IgnoredOutcomeDefault(t *testing.T) {
	md := &mockDispatcher{
		dispatchFn: func(ctx context.Context, ev event.Event) (dispatch.Outcome, error) {
			return dispatch.Ignored("product mismatch"), nil
		},
	}
	server := New(testConfig(), md, &mockRecorder{}, nil, testLogger())

	rec := httptest.NewRecorder()
	server.handleWebhook(rec, signedRequest(t, "test-secret", []byte(checkoutEventBody)))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestHandleWebhook_IgnoredOutcomeStrict(t *testing.T) {
	config := testConfig()
	config.StrictIgnores = true

	md := &mockDispatcher{
		dispatchFn: func(ctx context.Context, ev event.Event) (dispatch.Outcome, error) {
			return dispatch.Ignored("product mismatch"), nil
		},
	}
	server := New(config, md, &mockRecorder{}, nil, testLogger())

	rec := httptest.NewRecorder()
	server.handleWebhook(rec, signedRequest(t, "test-secret", []byte(checkoutEventBody)))

	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnprocessableEntity)
	}
}

func TestHandleWebhook_DispatchError(t *testing.T) {
	md := &mockDispatcher{
		dispatchFn: func(ctx context.Context, ev event.Event) (dispatch.Outcome, error) {
			return dispatch.Outcome{}, errors.New("db locked")
		},
	}
	mr := &mockRecorder{}
	server := New(testConfig(), md, mr, nil, testLogger())

	rec := httptest.NewRecorder()
	server.handleWebhook(rec, signedRequest(t, "test-secret", []byte(checkoutEventBody)))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}

	var resp Response
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Received {
		t.Error("received = true, want false")
	}
	if resp.Message != "internal error" {
		t.Errorf("message = %q, want %q", resp.Message, "internal error")
	}

	d := lastRecorded(t, mr)
	if d.Outcome != "error" {
		t.Errorf("recorded outcome = %q, want error", d.Outcome)
	}
	if d.EventID != "evt_1" {
		t.Errorf("recorded event ID = %q, want evt_1", d.EventID)
	}
}

func TestHandleWebhook_DispatchMalformedObject(t *testing.T) {
	md := &mockDispatcher{
		dispatchFn: func(ctx context.Context, ev event.Event) (dispatch.Outcome, error) {
			return dispatch.Outcome{}, fmt.Errorf("decode checkout session: %w", event.ErrMalformedPayload)
		},
	}
	mr := &mockRecorder{}
	server := New(testConfig(), md, mr, nil, testLogger())

	rec := httptest.NewRecorder()
	server.handleWebhook(rec, signedRequest(t, "test-secret", []byte(checkoutEventBody)))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	d := lastRecorded(t, mr)
	if d.Outcome != "malformed_payload" {
		t.Errorf("recorded outcome = %q, want malformed_payload", d.Outcome)
	}
}

func TestHandleWebhook_RecorderFailureStillResponds(t *testing.T) {
	mr := &mockRecorder{
		recordFn: func(ctx context.Context, d delivery.Delivery) (string, error) {
			return "", errors.New("disk full")
		},
	}
	server := New(testConfig(), &mockDispatcher{}, mr, nil, testLogger())

	rec := httptest.NewRecorder()
	server.handleWebhook(rec, signedRequest(t, "test-secret", []byte(checkoutEventBody)))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp Response
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Received {
		t.Error("received = false, want true")
	}
}

func TestHandleWebhook_PublishesDeliveryNotice(t *testing.T) {
	hub := events.NewHub(8)
	ch, cancel := hub.Subscribe()
	defer cancel()

	server := New(testConfig(), &mockDispatcher{}, &mockRecorder{}, hub, testLogger())

	rec := httptest.NewRecorder()
	server.handleWebhook(rec, signedRequest(t, "test-secret", []byte(checkoutEventBody)))

	select {
	case ev := <-ch:
		if ev.Type != events.TypeDeliveryReceived {
			t.Errorf("event type = %q, want %q", ev.Type, events.TypeDeliveryReceived)
		}
		var notice events.DeliveryNotice
		if err := json.Unmarshal(ev.Data, &notice); err != nil {
			t.Fatalf("failed to decode notice: %v", err)
		}
		if notice.DeliveryID != "del-1" {
			t.Errorf("delivery ID = %q, want del-1", notice.DeliveryID)
		}
		if notice.Outcome != "processed" {
			t.Errorf("outcome = %q, want processed", notice.Outcome)
		}
		if notice.EventID != "evt_1" {
			t.Errorf("event ID = %q, want evt_1", notice.EventID)
		}
	default:
		t.Fatal("no delivery notice published")
	}
}

func TestHandleWebhook_CustomSignatureHeader(t *testing.T) {
	body := []byte(checkoutEventBody)

	config := testConfig()
	config.SignatureHeader = "Stripe-Signature"

	server := New(config, &mockDispatcher{}, &mockRecorder{}, nil, testLogger())

	req := httptest.NewRequest("POST", "/webhook", bytes.NewReader(body))
	req.Header.Set("Stripe-Signature", signature.SignHeader("test-secret", time.Now().Unix(), body))
	rec := httptest.NewRecorder()

	server.handleWebhook(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestNew_AppliesDefaults(t *testing.T) {
	config := Config{
		Listen: "127.0.0.1:0",
		Secret: "test-secret",
		// Path, SignatureHeader and MaxBodySize not set - should get defaults
	}

	server := New(config, &mockDispatcher{}, &mockRecorder{}, nil, testLogger())

	if server.config.Path != DefaultPath {
		t.Errorf("Path = %v, want %v", server.config.Path, DefaultPath)
	}
	if server.config.SignatureHeader != DefaultSignatureHeader {
		t.Errorf("SignatureHeader = %v, want %v", server.config.SignatureHeader, DefaultSignatureHeader)
	}
	if server.config.MaxBodySize != DefaultMaxBodySize {
		t.Errorf("MaxBodySize = %d, want %d", server.config.MaxBodySize, DefaultMaxBodySize)
	}
}
