// hookgen builds signed test deliveries for a tollkeep receiver. It
// generates a provider-shaped event envelope, signs it with the shared
// secret, and either prints a curl-ready delivery or POSTs it directly.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/tollkeep/tollkeep/internal/event"
	"github.com/tollkeep/tollkeep/internal/signature"
	"github.com/tollkeep/tollkeep/internal/webhook"
)

const defaultTarget = "http://localhost:8080/webhook"

func main() {
	_ = godotenv.Load()
	os.Exit(run(os.Args[1:]))
}

type genOptions struct {
	eventType     string
	eventID       string
	sessionID     string
	email         string
	buyerName     string
	amount        int64
	currency      string
	product       string
	customer      string
	paymentStatus string
	mode          string
	subStatus     string
	created       int64
	payloadFile   string
}

type signedDelivery struct {
	Header    string          `json:"header"`
	Signature string          `json:"signature"`
	Payload   json.RawMessage `json:"payload"`
}

func run(args []string) int {
	fs := flag.NewFlagSet("hookgen", flag.ContinueOnError)

	secret := fs.String("secret", os.Getenv("TOLLKEEP_WEBHOOK_SECRET"), "Signing secret (or TOLLKEEP_WEBHOOK_SECRET env var)")
	eventType := fs.String("type", event.TypeCheckoutCompleted, "Event type")
	eventID := fs.String("event-id", "", "Event id (default: generated)")
	sessionID := fs.String("session-id", "", "Checkout session id (default: generated)")
	email := fs.String("email", "buyer@example.com", "Customer email")
	buyerName := fs.String("name", "Test Buyer", "Customer name")
	amount := fs.Int64("amount", 2900, "Amount total in the currency's minor unit")
	currency := fs.String("currency", "usd", "Currency code")
	product := fs.String("product", "", "Client reference id carried by the session")
	customer := fs.String("customer", "", "Customer id (default: generated)")
	paymentStatus := fs.String("payment-status", event.PaymentStatusPaid, "Checkout payment status")
	mode := fs.String("mode", event.ModePayment, "Checkout mode")
	subStatus := fs.String("status", event.SubscriptionCanceled, "Subscription status")
	skew := fs.Duration("skew", 0, "Offset applied to the signing timestamp (e.g. -10m to simulate a stale signature)")
	header := fs.String("header", webhook.DefaultSignatureHeader, "Signature header name")
	payloadFile := fs.String("payload", "", "Sign a raw payload file ('-' for stdin) instead of generating an event")
	sendURL := fs.String("send", "", "POST the signed delivery to this URL")
	jsonOut := fs.Bool("json", false, "Output header and payload as JSON")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: hookgen [flags]")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Build a signed test delivery. Without --send the delivery is printed")
		fmt.Fprintln(os.Stderr, "as a curl command; with --send it is POSTed directly.")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Flags:")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 1
	}

	if *secret == "" {
		fmt.Fprintln(os.Stderr, "Error: signing secret required. Use --secret or TOLLKEEP_WEBHOOK_SECRET env var.")
		return 1
	}

	opts := genOptions{
		eventType:     *eventType,
		eventID:       *eventID,
		sessionID:     *sessionID,
		email:         *email,
		buyerName:     *buyerName,
		amount:        *amount,
		currency:      *currency,
		product:       *product,
		customer:      *customer,
		paymentStatus: *paymentStatus,
		mode:          *mode,
		subStatus:     *subStatus,
		created:       time.Now().Unix(),
		payloadFile:   *payloadFile,
	}

	payload, err := buildPayload(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build payload: %v\n", err)
		return 1
	}

	timestamp := time.Now().Add(*skew).Unix()
	headerValue := signature.SignHeader(*secret, timestamp, payload)

	if *sendURL != "" {
		return send(*sendURL, *header, headerValue, payload)
	}

	if *jsonOut {
		out := signedDelivery{
			Header:    *header,
			Signature: headerValue,
			Payload:   payload,
		}
		encoded, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(encoded))
		return 0
	}

	printCurl(*header, headerValue, payload)
	return 0
}

// buildPayload produces the raw bytes to sign: a caller-supplied file,
// or a generated envelope for the requested event type.
func buildPayload(opts genOptions) ([]byte, error) {
	if opts.payloadFile != "" {
		if opts.payloadFile == "-" {
			return io.ReadAll(os.Stdin)
		}
		return os.ReadFile(opts.payloadFile)
	}

	eventID := opts.eventID
	if eventID == "" {
		eventID = newID("evt")
	}

	envelope := map[string]any{
		"id":      eventID,
		"type":    opts.eventType,
		"created": opts.created,
		"data": map[string]any{
			"object": buildObject(opts),
		},
	}
	return json.Marshal(envelope)
}

func buildObject(opts genOptions) any {
	switch opts.eventType {
	case event.TypeCheckoutCompleted:
		sessionID := opts.sessionID
		if sessionID == "" {
			sessionID = newID("cs")
		}
		customer := opts.customer
		if customer == "" {
			customer = newID("cus")
		}
		return map[string]any{
			"id":                  sessionID,
			"payment_status":      opts.paymentStatus,
			"mode":                opts.mode,
			"amount_total":        opts.amount,
			"currency":            opts.currency,
			"client_reference_id": opts.product,
			"customer":            customer,
			"customer_details": map[string]any{
				"email": opts.email,
				"name":  opts.buyerName,
			},
		}

	case event.TypeSubscriptionUpdated, event.TypeSubscriptionDeleted:
		customer := opts.customer
		if customer == "" {
			customer = newID("cus")
		}
		return map[string]any{
			"id":       newID("sub"),
			"customer": customer,
			"status":   opts.subStatus,
		}

	default:
		// Unhandled types still make useful test traffic: the receiver
		// should acknowledge them without acting.
		return map[string]any{}
	}
}

func newID(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func send(url, headerName, headerValue string, payload []byte) int {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build request: %v\n", err)
		return 1
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerName, headerValue)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Send failed: %v\n", err)
		return 1
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	fmt.Printf("%s\n%s\n", resp.Status, strings.TrimSpace(string(body)))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return 0
	}
	return 1
}

func printCurl(headerName, headerValue string, payload []byte) {
	fmt.Printf("%s: %s\n\n", headerName, headerValue)
	fmt.Printf("%s\n\n", payload)
	fmt.Println("Deliver with:")
	fmt.Printf("  curl -X POST %s \\\n", defaultTarget)
	fmt.Printf("    -H 'Content-Type: application/json' \\\n")
	fmt.Printf("    -H '%s: %s' \\\n", headerName, headerValue)
	fmt.Printf("    -d '%s'\n", payload)
}
