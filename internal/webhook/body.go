package webhook

import (
	"errors"
	"fmt"
	"io"
	"net/http"
)

var (
	// ErrBodyTooLarge reports a request body over the configured cap.
	ErrBodyTooLarge = errors.New("request body too large")

	// ErrBodyIncomplete reports an empty body or a read that failed before
	// the client finished sending.
	ErrBodyIncomplete = errors.New("incomplete request body")
)

// collectBody reads the request body to EOF and returns the exact bytes
// received. The signature covers the raw payload, so the bytes are never
// re-encoded or truncated. Reading one byte past maxBytes detects
// over-limit bodies.
func collectBody(r *http.Request, maxBytes int64) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBodyIncomplete, err)
	}
	if int64(len(body)) > maxBytes {
		return nil, ErrBodyTooLarge
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrBodyIncomplete)
	}
	return body, nil
}
