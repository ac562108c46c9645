package dispatch

// Kind classifies how a handler disposed of an event.
type Kind string

const (
	// KindProcessed means the event triggered its side effect.
	KindProcessed Kind = "processed"
	// KindAcknowledged means the event was valid but required no work,
	// typically a duplicate or an unhandled type.
	KindAcknowledged Kind = "acknowledged"
	// KindIgnored means a business precondition was not met and the event
	// was deliberately skipped.
	KindIgnored Kind = "ignored"
	// KindRejected means the event carried incomplete or unacceptable data
	// and will never satisfy preconditions.
	KindRejected Kind = "rejected"
)

// Outcome is a handler's verdict on one delivery, with a short diagnostic
// suitable for the response body and the delivery log.
type Outcome struct {
	Kind    Kind
	Message string
}

func Processed(message string) Outcome {
	return Outcome{Kind: KindProcessed, Message: message}
}

func Acknowledged(message string) Outcome {
	return Outcome{Kind: KindAcknowledged, Message: message}
}

func Ignored(message string) Outcome {
	return Outcome{Kind: KindIgnored, Message: message}
}

func Rejected(message string) Outcome {
	return Outcome{Kind: KindRejected, Message: message}
}
