// Package signature implements the payment provider's webhook signing scheme:
// HMAC-SHA256 over "{timestamp}.{payload}" carried in a header of the form
// t=<unix>,v1=<hex>[,v1=<hex>...]. Multiple v1 values appear during secret
// rotation; a payload is authentic if any of them matches.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultTolerance is the maximum accepted age of a signed timestamp.
const DefaultTolerance = 5 * time.Minute

var (
	// ErrMalformedHeader reports a header that does not follow the
	// t=<unix>,v1=<hex> structure.
	ErrMalformedHeader = errors.New("malformed signature header")

	// ErrStaleTimestamp reports a signed timestamp outside the tolerance
	// window. Replays of captured requests land here.
	ErrStaleTimestamp = errors.New("signature timestamp outside tolerance")

	// ErrMismatch reports that no signature candidate matched the payload.
	ErrMismatch = errors.New("signature mismatch")
)

// Header is the parsed form of a signature header value.
type Header struct {
	Timestamp  int64
	Signatures []string // hex-encoded v1 candidates, in header order
}

// ParseHeader splits a signature header value into its timestamp and v1
// signature candidates. Unknown schemes (v0 etc.) are skipped, matching the
// provider's own tooling.
func ParseHeader(value string) (Header, error) {
	var h Header
	if strings.TrimSpace(value) == "" {
		return h, fmt.Errorf("%w: empty value", ErrMalformedHeader)
	}

	sawTimestamp := false
	for _, part := range strings.Split(value, ",") {
		key, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return h, fmt.Errorf("%w: element is not key=value", ErrMalformedHeader)
		}
		switch key {
		case "t":
			ts, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				return h, fmt.Errorf("%w: invalid timestamp", ErrMalformedHeader)
			}
			h.Timestamp = ts
			sawTimestamp = true
		case "v1":
			if val != "" {
				h.Signatures = append(h.Signatures, val)
			}
		}
	}

	if !sawTimestamp {
		return h, fmt.Errorf("%w: missing timestamp element", ErrMalformedHeader)
	}
	if len(h.Signatures) == 0 {
		return h, fmt.Errorf("%w: no v1 signatures", ErrMalformedHeader)
	}
	return h, nil
}

// Compute returns the hex-encoded HMAC-SHA256 of "{timestamp}.{payload}"
// under secret. The signed content concatenates the decimal timestamp, a
// single dot, and the raw payload bytes.
func Compute(secret string, timestamp int64, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignHeader builds a complete signature header value for payload at the
// given timestamp. Used by the generator tool and by tests.
func SignHeader(secret string, timestamp int64, payload []byte) string {
	return fmt.Sprintf("t=%d,v1=%s", timestamp, Compute(secret, timestamp, payload))
}

// Verifier checks inbound payloads against the shared signing secret.
// Verification is a pure function of the payload, header, secret, tolerance
// and clock; it keeps no state between calls.
type Verifier struct {
	secret    string
	tolerance time.Duration
	now       func() time.Time
}

// NewVerifier returns a Verifier for the given shared secret. A zero or
// negative tolerance selects DefaultTolerance.
func NewVerifier(secret string, tolerance time.Duration) *Verifier {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Verifier{
		secret:    secret,
		tolerance: tolerance,
		now:       time.Now,
	}
}

// Verify checks that headerValue proves payload was signed with the shared
// secret within the tolerance window. The payload must be the exact bytes
// received on the wire; any re-encoding breaks the MAC.
func (v *Verifier) Verify(payload []byte, headerValue string) error {
	if v.secret == "" {
		return errors.New("verifier has no signing secret")
	}

	header, err := ParseHeader(headerValue)
	if err != nil {
		return err
	}

	skew := v.now().Sub(time.Unix(header.Timestamp, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > v.tolerance {
		return fmt.Errorf("%w: skew %s exceeds %s", ErrStaleTimestamp, skew.Truncate(time.Second), v.tolerance)
	}

	expected, err := hex.DecodeString(Compute(v.secret, header.Timestamp, payload))
	if err != nil {
		return fmt.Errorf("decode expected mac: %w", err)
	}

	for _, candidate := range header.Signatures {
		raw, err := hex.DecodeString(candidate)
		if err != nil {
			continue // not valid hex, cannot match
		}
		if subtle.ConstantTimeCompare(expected, raw) == 1 {
			return nil
		}
	}
	return ErrMismatch
}
