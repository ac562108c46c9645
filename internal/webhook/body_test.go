package webhook

import (
	"bytes"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/iotest"
)

func TestCollectBody_ReturnsExactBytes(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)

	req := httptest.NewRequest("POST", "/webhook", bytes.NewReader(payload))
	got, err := collectBody(req, 1024)
	if err != nil {
		t.Fatalf("collectBody() error = %v", err)
	}

	if !bytes.Equal(got, payload) {
		t.Errorf("body = %q, want %q", got, payload)
	}
}

func TestCollectBody_ExactlyAtLimit(t *testing.T) {
	payload := bytes.Repeat([]byte("a"), 64)

	req := httptest.NewRequest("POST", "/webhook", bytes.NewReader(payload))
	got, err := collectBody(req, 64)
	if err != nil {
		t.Fatalf("collectBody() error = %v", err)
	}
	if len(got) != 64 {
		t.Errorf("len(body) = %d, want 64", len(got))
	}
}

func TestCollectBody_OneByteOverLimit(t *testing.T) {
	payload := bytes.Repeat([]byte("a"), 65)

	req := httptest.NewRequest("POST", "/webhook", bytes.NewReader(payload))
	_, err := collectBody(req, 64)
	if !errors.Is(err, ErrBodyTooLarge) {
		t.Errorf("error = %v, want ErrBodyTooLarge", err)
	}
}

func TestCollectBody_EmptyBody(t *testing.T) {
	req := httptest.NewRequest("POST", "/webhook", strings.NewReader(""))
	_, err := collectBody(req, 64)
	if !errors.Is(err, ErrBodyIncomplete) {
		t.Errorf("error = %v, want ErrBodyIncomplete", err)
	}
}

func TestCollectBody_ReadFailure(t *testing.T) {
	req := httptest.NewRequest("POST", "/webhook", iotest.ErrReader(errors.New("connection reset")))
	_, err := collectBody(req, 64)
	if !errors.Is(err, ErrBodyIncomplete) {
		t.Errorf("error = %v, want ErrBodyIncomplete", err)
	}
}
