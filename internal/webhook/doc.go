// Package webhook implements the payment provider's webhook endpoint with
// signed-payload verification.
//
// The provider posts event notifications to a single configured path. Every
// request is verified against the shared signing secret before anything
// else looks at the payload, then decoded and dispatched to the handler for
// its event type. Whatever happens, each request lands one row in the
// delivery audit log and one notice on the in-process event hub.
//
// # Security Model
//
// - Signatures are HMAC-SHA256 over "{timestamp}.{payload}" carried in the
//   signature header as t=<unix>,v1=<hex> (crypto/subtle comparison)
// - Signed timestamps outside the tolerance window are rejected, which
//   bounds the replay of captured requests
// - Body size limits enforced before verification
// - Signature failures answer a generic 403 (no details leaked)
// - Request payloads are persisted only after verification succeeds
// - Request logging excludes body content; the secret is never logged
//
// # Request Flow
//
//  1. HTTP POST arrives at the configured path
//  2. Body collected to EOF, bit-exact (413 if over limit, 400 if empty
//     or truncated)
//  3. Signature header extracted (403 if missing)
//  4. Signature verified over the raw bytes (403 on staleness or mismatch,
//     400 on a malformed header)
//  5. Envelope decoded (400 if not a valid event document)
//  6. Event dispatched to its handler
//  7. Handler outcome mapped to a status: processed/acknowledged 200,
//     ignored 200 (422 in strict mode), rejected 422, handler error 500
//  8. Delivery recorded and published; JSON {received, message} returned
//
// A 2xx answer tells the provider the delivery is settled. Non-2xx answers
// trigger provider-side retries, which the idempotency ledger makes safe.
//
// # Example Usage
//
//	cfg := webhook.Config{
//		Listen:      "127.0.0.1:8080",
//		Secret:      os.Getenv("TOLLKEEP_SIGNING_SECRET"),
//		MaxBodySize: 1048576,
//	}
//
//	server := webhook.New(cfg, router, deliveries, hub, logger)
//	if err := server.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
package webhook
