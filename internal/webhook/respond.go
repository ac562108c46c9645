package webhook

import (
	"errors"
	"net/http"

	"github.com/tollkeep/tollkeep/internal/dispatch"
	"github.com/tollkeep/tollkeep/internal/event"
	"github.com/tollkeep/tollkeep/internal/signature"
)

// errMissingSignature reports a request without the signature header.
var errMissingSignature = errors.New("missing signature header")

// failure describes a request that never reached a handler verdict: the
// outcome class recorded in the delivery log, the HTTP status, and the
// response message. Details stay in the log; the message carries none.
type failure struct {
	class   string
	status  int
	message string
}

// classify maps collection, verification and decode errors to a failure.
// Signature failures all answer 403 with the same generic message.
func classify(err error) failure {
	switch {
	case errors.Is(err, ErrBodyTooLarge):
		return failure{"too_large", http.StatusRequestEntityTooLarge, "payload too large"}
	case errors.Is(err, ErrBodyIncomplete):
		return failure{"incomplete_body", http.StatusBadRequest, "incomplete request body"}
	case errors.Is(err, errMissingSignature):
		return failure{"missing_signature", http.StatusForbidden, "forbidden"}
	case errors.Is(err, signature.ErrMalformedHeader):
		return failure{"malformed_header", http.StatusBadRequest, "malformed signature header"}
	case errors.Is(err, signature.ErrStaleTimestamp):
		return failure{"stale_signature", http.StatusForbidden, "forbidden"}
	case errors.Is(err, signature.ErrMismatch):
		return failure{"signature_mismatch", http.StatusForbidden, "forbidden"}
	case errors.Is(err, event.ErrMalformedPayload):
		return failure{"malformed_payload", http.StatusBadRequest, "malformed event payload"}
	default:
		return failure{"error", http.StatusInternalServerError, "internal error"}
	}
}

// statusFor maps a handler outcome to its HTTP status. Processed,
// acknowledged and ignored deliveries answer 200, which stops provider
// retries. Rejections answer 422: the payload can never satisfy the
// preconditions, so retrying the same bytes cannot help. With strict
// ignores enabled, skipped deliveries also answer 422 so they show up on
// the provider dashboard.
func statusFor(o dispatch.Outcome, strictIgnores bool) int {
	switch o.Kind {
	case dispatch.KindIgnored:
		if strictIgnores {
			return http.StatusUnprocessableEntity
		}
		return http.StatusOK
	case dispatch.KindRejected:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusOK
	}
}
