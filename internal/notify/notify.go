// Package notify runs operator-configured hook executables when entitlements
// change. Hooks receive one JSON document on stdin and must exit within the
// configured timeout; a hanging hook gets SIGTERM, then SIGKILL after a
// grace period.
//
// Hook failures are logged and swallowed: the entitlement change is already
// durable by the time a hook runs, and a flaky notification must not make
// the provider retry a fulfilled event.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/tollkeep/tollkeep/internal/entitlement"
	"github.com/tollkeep/tollkeep/internal/log"
)

const (
	// maxStderrBytes caps the stderr captured from a hook.
	maxStderrBytes = 64 * 1024

	// terminationGracePeriod is the time between SIGTERM and SIGKILL.
	terminationGracePeriod = 5 * time.Second

	// DefaultTimeout bounds hook execution when the config does not.
	DefaultTimeout = 10 * time.Second
)

// Runner executes hook binaries with a JSON payload on stdin.
type Runner struct {
	timeout time.Duration
	logger  *slog.Logger
}

func NewRunner(timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Runner{
		timeout: timeout,
		logger:  log.WithComponent("notify"),
	}
}

// Run starts hookPath, writes payload as JSON to its stdin, and waits for
// exit. The hook deliberately outlives request cancellation: by the time it
// runs the entitlement change is committed, so it gets its full timeout.
func (r *Runner) Run(hookPath string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode hook payload: %w", err)
	}

	cmd := exec.Command(hookPath)
	cmd.Stdin = bytes.NewReader(body)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	r.logger.Debug("running hook", "hook", filepath.Base(hookPath), "timeout", r.timeout)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start hook: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() { waitErr <- cmd.Wait() }()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-waitErr:
		if err != nil {
			return fmt.Errorf("hook %s: %w (stderr: %s)", filepath.Base(hookPath), err, truncateStderr(stderr.String()))
		}
		return nil
	case <-timer.C:
		r.logger.Warn("hook timed out, sending SIGTERM", "hook", filepath.Base(hookPath))
		if cmd.Process != nil {
			_ = cmd.Process.Signal(syscall.SIGTERM)
		}

		grace := time.NewTimer(terminationGracePeriod)
		defer grace.Stop()
		select {
		case <-waitErr:
		case <-grace.C:
			r.logger.Warn("hook did not exit after SIGTERM, sending SIGKILL", "hook", filepath.Base(hookPath))
			if cmd.Process != nil {
				_ = cmd.Process.Kill()
			}
			<-waitErr
		}
		return fmt.Errorf("hook %s timed out after %s", filepath.Base(hookPath), r.timeout)
	}
}

// GrantNotice is the document a grant hook reads from stdin.
type GrantNotice struct {
	Action        string    `json:"action"`
	EntitlementID string    `json:"entitlement_id"`
	SessionID     string    `json:"session_id"`
	Email         string    `json:"email"`
	Name          string    `json:"name,omitempty"`
	AmountTotal   *int64    `json:"amount_total,omitempty"`
	Currency      string    `json:"currency,omitempty"`
	CustomerID    string    `json:"customer_id,omitempty"`
	GrantedAt     time.Time `json:"granted_at"`
}

// RevokeNotice is the document a revoke hook reads from stdin.
type RevokeNotice struct {
	Action     string `json:"action"`
	CustomerID string `json:"customer_id"`
	Revoked    int64  `json:"revoked"`
}

type grantHook struct {
	next   entitlement.Granter
	hook   string
	runner *Runner
	logger *slog.Logger
}

// WrapGranter decorates next so a successful grant also runs hookPath.
// An empty path returns next unchanged.
func WrapGranter(next entitlement.Granter, hookPath string, runner *Runner) entitlement.Granter {
	if hookPath == "" {
		return next
	}
	return &grantHook{
		next:   next,
		hook:   hookPath,
		runner: runner,
		logger: log.WithComponent("notify"),
	}
}

func (g *grantHook) Grant(ctx context.Context, gr entitlement.Grant) (entitlement.Entitlement, error) {
	ent, err := g.next.Grant(ctx, gr)
	if err != nil {
		return ent, err
	}
	notice := GrantNotice{
		Action:        "grant",
		EntitlementID: ent.ID,
		SessionID:     ent.SessionID,
		Email:         ent.Email,
		Name:          ent.Name,
		AmountTotal:   ent.AmountTotal,
		Currency:      ent.Currency,
		CustomerID:    ent.CustomerID,
		GrantedAt:     ent.GrantedAt,
	}
	if err := g.runner.Run(g.hook, notice); err != nil {
		g.logger.Error("grant hook failed", "session_id", ent.SessionID, "error", err)
	}
	return ent, nil
}

type revokeHook struct {
	next   entitlement.Revoker
	hook   string
	runner *Runner
	logger *slog.Logger
}

// WrapRevoker decorates next so a revoke that changed rows also runs
// hookPath. An empty path returns next unchanged.
func WrapRevoker(next entitlement.Revoker, hookPath string, runner *Runner) entitlement.Revoker {
	if hookPath == "" {
		return next
	}
	return &revokeHook{
		next:   next,
		hook:   hookPath,
		runner: runner,
		logger: log.WithComponent("notify"),
	}
}

func (r *revokeHook) RevokeByCustomer(ctx context.Context, customerID string) (int64, error) {
	n, err := r.next.RevokeByCustomer(ctx, customerID)
	if err != nil {
		return n, err
	}
	if n == 0 {
		// Nothing changed, nothing to announce.
		return n, nil
	}
	notice := RevokeNotice{
		Action:     "revoke",
		CustomerID: customerID,
		Revoked:    n,
	}
	if err := r.runner.Run(r.hook, notice); err != nil {
		r.logger.Error("revoke hook failed", "customer_id", customerID, "error", err)
	}
	return n, nil
}

func truncateStderr(s string) string {
	if len(s) > maxStderrBytes {
		return s[:maxStderrBytes]
	}
	return s
}
