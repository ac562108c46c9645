// Package event defines the provider's notification envelope and the typed
// payloads the receiver acts on.
package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Event types this receiver routes. Anything else falls through to the
// default acknowledge handler.
const (
	TypeCheckoutCompleted   = "checkout.session.completed"
	TypeSubscriptionUpdated = "customer.subscription.updated"
	TypeSubscriptionDeleted = "customer.subscription.deleted"
)

// ErrMalformedPayload reports a body that is not a valid event document.
var ErrMalformedPayload = errors.New("malformed event payload")

// Event is one provider notification. The same ID may be delivered more than
// once; handlers treat redelivery as a no-op after the first successful
// processing.
type Event struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    json.RawMessage `json:"-"`
}

// CreatedAt returns the event creation time.
func (e Event) CreatedAt() time.Time {
	return time.Unix(e.Created, 0).UTC()
}

type envelope struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// Parse decodes verified raw bytes into an Event. The bytes must already
// have passed signature verification; Parse performs no authenticity checks.
func Parse(raw []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if env.ID == "" {
		return Event{}, fmt.Errorf("%w: missing event id", ErrMalformedPayload)
	}
	if env.Type == "" {
		return Event{}, fmt.Errorf("%w: missing event type", ErrMalformedPayload)
	}
	return Event{
		ID:      env.ID,
		Type:    env.Type,
		Created: env.Created,
		Data:    env.Data.Object,
	}, nil
}

// CheckoutSession payment statuses.
const (
	PaymentStatusPaid              = "paid"
	PaymentStatusUnpaid            = "unpaid"
	PaymentStatusNoPaymentRequired = "no_payment_required"
)

// CheckoutSession modes.
const (
	ModePayment      = "payment"
	ModeSubscription = "subscription"
	ModeSetup        = "setup"
)

// CustomerDetails carries the buyer fields collected at checkout.
type CustomerDetails struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// CheckoutSession is the payload of a checkout.session.completed event.
// AmountTotal is nil when the provider omits it, which the checkout handler
// treats as not paid.
type CheckoutSession struct {
	ID                string           `json:"id"`
	PaymentStatus     string           `json:"payment_status"`
	Mode              string           `json:"mode"`
	AmountTotal       *int64           `json:"amount_total"`
	Currency          string           `json:"currency"`
	ClientReferenceID string           `json:"client_reference_id"`
	CustomerID        string           `json:"customer"`
	CustomerDetails   *CustomerDetails `json:"customer_details"`
}

// Subscription statuses the provider reports.
const (
	SubscriptionActive     = "active"
	SubscriptionTrialing   = "trialing"
	SubscriptionPastDue    = "past_due"
	SubscriptionUnpaid     = "unpaid"
	SubscriptionCanceled   = "canceled"
	SubscriptionPaused     = "paused"
	SubscriptionIncomplete = "incomplete"
)

// SubscriptionRecord is the payload of customer.subscription.* events.
type SubscriptionRecord struct {
	ID         string `json:"id"`
	CustomerID string `json:"customer"`
	Status     string `json:"status"`
}

// UnmarshalCheckoutSession decodes an event's data object as a checkout
// session.
func UnmarshalCheckoutSession(ev Event) (CheckoutSession, error) {
	var s CheckoutSession
	if len(ev.Data) == 0 {
		return s, fmt.Errorf("%w: event %s has no data object", ErrMalformedPayload, ev.ID)
	}
	if err := json.Unmarshal(ev.Data, &s); err != nil {
		return s, fmt.Errorf("%w: decode checkout session: %v", ErrMalformedPayload, err)
	}
	return s, nil
}

// UnmarshalSubscription decodes an event's data object as a subscription
// record.
func UnmarshalSubscription(ev Event) (SubscriptionRecord, error) {
	var s SubscriptionRecord
	if len(ev.Data) == 0 {
		return s, fmt.Errorf("%w: event %s has no data object", ErrMalformedPayload, ev.ID)
	}
	if err := json.Unmarshal(ev.Data, &s); err != nil {
		return s, fmt.Errorf("%w: decode subscription: %v", ErrMalformedPayload, err)
	}
	return s, nil
}
