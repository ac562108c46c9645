// relay is a sample fulfillment hook for tollkeep. It reads the grant or
// revoke notice from stdin, appends it to a JSONL journal, and optionally
// forwards it to an HTTP endpoint such as a chat webhook.
//
// Wire it into config.yaml:
//
//	hooks:
//	  on_grant: /usr/local/bin/relay
//	  on_revoke: /usr/local/bin/relay
//
// Configuration comes from the environment:
//
//	RELAY_JOURNAL      journal path (default ./fulfillment.jsonl)
//	RELAY_FORWARD_URL  optional endpoint that receives the notice as JSON
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/tollkeep/tollkeep/internal/notify"
)

const (
	defaultJournal = "fulfillment.jsonl"

	// maxNoticeBytes caps stdin; real notices are a few hundred bytes.
	maxNoticeBytes = 1 << 20

	// forwardTimeout must stay below the server's hooks.timeout.
	forwardTimeout = 5 * time.Second
)

type options struct {
	journalPath string
	forwardURL  string
}

func optionsFromEnv() options {
	opts := options{
		journalPath: os.Getenv("RELAY_JOURNAL"),
		forwardURL:  os.Getenv("RELAY_FORWARD_URL"),
	}
	if opts.journalPath == "" {
		opts.journalPath = defaultJournal
	}
	return opts
}

func main() {
	if err := run(os.Stdin, optionsFromEnv()); err != nil {
		fmt.Fprintf(os.Stderr, "relay: %v\n", err)
		os.Exit(1)
	}
}

func run(in io.Reader, opts options) error {
	raw, err := io.ReadAll(io.LimitReader(in, maxNoticeBytes))
	if err != nil {
		return fmt.Errorf("read notice: %w", err)
	}

	action, err := validate(raw)
	if err != nil {
		return err
	}

	if err := appendJournal(opts.journalPath, raw); err != nil {
		return fmt.Errorf("journal %s notice: %w", action, err)
	}

	if opts.forwardURL != "" {
		if err := forward(opts.forwardURL, raw); err != nil {
			return fmt.Errorf("forward %s notice: %w", action, err)
		}
	}
	return nil
}

// validate decodes the notice far enough to reject documents tollkeep would
// never send. The raw bytes are journaled and forwarded untouched.
func validate(raw []byte) (string, error) {
	var probe struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return "", fmt.Errorf("decode notice: %w", err)
	}

	switch probe.Action {
	case "grant":
		var n notify.GrantNotice
		if err := json.Unmarshal(raw, &n); err != nil {
			return "", fmt.Errorf("decode grant notice: %w", err)
		}
		if n.SessionID == "" {
			return "", fmt.Errorf("grant notice missing session_id")
		}
	case "revoke":
		var n notify.RevokeNotice
		if err := json.Unmarshal(raw, &n); err != nil {
			return "", fmt.Errorf("decode revoke notice: %w", err)
		}
		if n.CustomerID == "" {
			return "", fmt.Errorf("revoke notice missing customer_id")
		}
	default:
		return "", fmt.Errorf("unknown action %q", probe.Action)
	}
	return probe.Action, nil
}

func appendJournal(path string, raw []byte) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	line := append(bytes.TrimSpace(raw), '\n')
	_, err = f.Write(line)
	return err
}

func forward(url string, raw []byte) error {
	client := &http.Client{Timeout: forwardTimeout}
	resp, err := client.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("endpoint answered %s", resp.Status)
	}
	return nil
}
