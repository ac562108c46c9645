// Package dispatch routes verified provider events to handlers and reports
// what each delivery did as an Outcome.
//
// The router maps event types to handlers through a static table; types with
// no entry are acknowledged without work so the provider stops retrying
// notifications this service will never act on.
//
// Handlers own the idempotency contract:
//   - Every side effect is gated on the processed-event ledger, so the same
//     event id fulfills at most once no matter how many times it is delivered.
//   - The ledger claim and the side effect are effectively transactional: a
//     failed side effect releases the claim, and the error propagates so the
//     provider retries the delivery.
//   - Business preconditions fail fast with an Ignored or Rejected outcome
//     before any claim is taken.
//
// Outcomes, not HTTP statuses, are the handler vocabulary. The webhook layer
// maps them to transport codes.
package dispatch
