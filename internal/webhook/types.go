package webhook

import (
	"context"
	"time"

	"github.com/tollkeep/tollkeep/internal/delivery"
	"github.com/tollkeep/tollkeep/internal/dispatch"
	"github.com/tollkeep/tollkeep/internal/event"
)

// Dispatcher routes a verified, decoded event to its handler and reports
// the handler's verdict.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev event.Event) (dispatch.Outcome, error)
}

// DeliveryRecorder persists the audit row for one webhook request.
type DeliveryRecorder interface {
	Record(ctx context.Context, d delivery.Delivery) (string, error)
}

// Config holds webhook server configuration.
type Config struct {
	// Listen is the address the webhook server binds to.
	Listen string

	// Path is the URL path the provider posts to (default: "/webhook")
	Path string

	// SignatureHeader is the HTTP header carrying the provider signature
	// (default: "Tollkeep-Signature")
	SignatureHeader string

	// Secret is the shared signing secret. Never logged, never echoed.
	Secret string

	// Tolerance is the maximum accepted signature timestamp age
	// (default: 5 minutes)
	Tolerance time.Duration

	// MaxBodySize is the maximum allowed request body size in bytes (default: 1MB)
	MaxBodySize int64

	// StrictIgnores answers 422 instead of 200 for deliveries skipped by a
	// business precondition, making skips visible on the provider dashboard.
	StrictIgnores bool
}

// Response is the JSON body returned for every webhook request. Received
// reports whether the delivery made it through verification and dispatch
// to a handler verdict; transport and verification failures answer false.
type Response struct {
	Received bool   `json:"received"`
	Message  string `json:"message"`
}

// Default values
const (
	DefaultPath            = "/webhook"
	DefaultSignatureHeader = "Tollkeep-Signature"
	DefaultMaxBodySize     = 1048576 // 1 MB
)
