// Package doctor validates tollkeep configuration beyond what the loader
// enforces: hook executables that exist, token scopes that resolve, and
// settings whose values are legal but probably not what the operator meant.
package doctor

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/tollkeep/tollkeep/internal/auth"
	"github.com/tollkeep/tollkeep/internal/config"
	"github.com/tollkeep/tollkeep/internal/webhook"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor validates a loaded configuration.
type Doctor struct {
	cfg *config.Config
}

// New creates a Doctor from a loaded config.
func New(cfg *config.Config) *Doctor {
	return &Doctor{cfg: cfg}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.validateServiceConfig(r)
	d.validateWebhook(r)
	d.validateAPIConfig(r)
	d.validateTokenScopes(r)
	d.validateHooks(r)
	d.validateCheckout(r)
	d.warnRetention(r)
	d.warnDeprecatedSyntax(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

// validateServiceConfig checks required service fields.
func (d *Doctor) validateServiceConfig(r *Result) {
	if d.cfg.State.Path == "" {
		d.addError(r, "service", "state.path", "state.path is required")
	}
}

// validateWebhook checks the provider-facing listener settings.
func (d *Doctor) validateWebhook(r *Result) {
	if d.cfg.Webhook.Listen == "" {
		d.addError(r, "webhook", "webhook.listen", "webhook.listen is required")
	}
	if d.cfg.Webhook.Secret == "" {
		d.addError(r, "webhook", "webhook.secret", "webhook.secret is required")
	}

	if _, err := webhook.ParseMaxBodySize(d.cfg.Webhook.MaxBodySize); err != nil {
		d.addError(r, "webhook", "webhook.max_body_size",
			fmt.Sprintf("invalid max_body_size %q: %v", d.cfg.Webhook.MaxBodySize, err))
	}

	tol := d.cfg.Webhook.Tolerance
	if tol > time.Hour {
		d.addWarning(r, "webhook", "webhook.tolerance",
			fmt.Sprintf("tolerance %s widens the replay window; providers typically sign within 5m", tol))
	}
	if tol > 0 && tol < 30*time.Second {
		d.addWarning(r, "webhook", "webhook.tolerance",
			fmt.Sprintf("tolerance %s leaves little room for clock skew", tol))
	}

	if d.cfg.API.Enabled && d.cfg.Webhook.Listen != "" && d.cfg.Webhook.Listen == d.cfg.API.Listen {
		d.addError(r, "webhook", "webhook.listen",
			fmt.Sprintf("webhook and API share listen address %q", d.cfg.Webhook.Listen))
	}
}

// validateAPIConfig checks admin API server settings.
func (d *Doctor) validateAPIConfig(r *Result) {
	if !d.cfg.API.Enabled {
		return
	}
	if d.cfg.API.Listen == "" {
		d.addError(r, "api", "api.listen", "api.listen is required when API is enabled")
	}
	if d.cfg.API.Auth.APIKey == "" && len(d.cfg.API.Auth.Tokens) == 0 {
		d.addWarning(r, "api", "api.auth", "API enabled but no authentication configured")
	}
}

// validateTokenScopes checks that scopes resolve and token values are sane.
func (d *Doctor) validateTokenScopes(r *Result) {
	seen := make(map[string]int)
	for i, token := range d.cfg.API.Auth.Tokens {
		tokenField := fmt.Sprintf("api.auth.tokens[%d].token", i)

		if token.Token == "" {
			d.addWarning(r, "token_scopes", tokenField,
				"token value is empty (possibly unresolved environment variable)")
		} else {
			if prev, dup := seen[token.Token]; dup {
				d.addError(r, "token_scopes", tokenField,
					fmt.Sprintf("token value duplicates api.auth.tokens[%d]", prev))
			}
			seen[token.Token] = i
			if token.Token == d.cfg.API.Auth.APIKey {
				d.addWarning(r, "token_scopes", tokenField,
					"token value equals the legacy api_key and will always authenticate as admin")
			}
		}

		for j, scope := range token.Scopes {
			field := fmt.Sprintf("api.auth.tokens[%d].scopes[%d]", i, j)
			d.validateSingleScope(r, scope, field)
		}
	}
}

func (d *Doctor) validateSingleScope(r *Result, scope, field string) {
	if auth.KnownScope(scope) {
		return
	}

	if !strings.Contains(scope, ":") {
		d.addError(r, "token_scopes", field,
			fmt.Sprintf("invalid scope %q (expected format: resource:access)", scope))
		return
	}

	// A :rw grant normalizes to its :ro form; on a read-only API it adds
	// nothing, but it is not a typo worth failing on.
	if res, ok := strings.CutSuffix(scope, ":rw"); ok && auth.KnownScope(res+":ro") {
		d.addWarning(r, "token_scopes", field,
			fmt.Sprintf("scope %q grants nothing beyond %q on a read-only API", scope, res+":ro"))
		return
	}

	d.addError(r, "token_scopes", field,
		fmt.Sprintf("unknown scope %q (known: %s)", scope, strings.Join(auth.KnownScopes, ", ")))
}

// validateHooks stats configured hook executables.
func (d *Doctor) validateHooks(r *Result) {
	hooks := []struct {
		field string
		path  string
	}{
		{"hooks.on_grant", d.cfg.Hooks.OnGrant},
		{"hooks.on_revoke", d.cfg.Hooks.OnRevoke},
	}

	configured := false
	for _, h := range hooks {
		if h.path == "" {
			continue
		}
		configured = true

		info, err := os.Stat(h.path)
		if err != nil {
			d.addError(r, "hooks", h.field, fmt.Sprintf("hook %q not found", h.path))
			continue
		}
		if info.IsDir() {
			d.addError(r, "hooks", h.field, fmt.Sprintf("hook %q is a directory", h.path))
			continue
		}
		if info.Mode()&0o111 == 0 {
			d.addWarning(r, "hooks", h.field, fmt.Sprintf("hook %q is not executable", h.path))
		}
	}

	if configured && d.cfg.Hooks.Timeout <= 0 {
		d.addError(r, "hooks", "hooks.timeout", "hooks.timeout must be positive")
	}
}

// validateCheckout checks fulfillment rule settings.
func (d *Doctor) validateCheckout(r *Result) {
	if d.cfg.Checkout.MinAmount < 0 {
		d.addError(r, "checkout", "checkout.min_amount", "min_amount cannot be negative")
	}
}

// warnRetention flags retention windows that invite trouble.
func (d *Doctor) warnRetention(r *Result) {
	ret := d.cfg.Retention

	// Providers retry failed deliveries for days. A ledger pruned inside
	// that horizon treats a late retry as a brand-new event.
	if ret.Ledger > 0 && ret.Ledger < 72*time.Hour {
		d.addWarning(r, "retention", "retention.ledger",
			fmt.Sprintf("ledger retention %s is shorter than typical provider retry horizons; late retries will be processed twice", ret.Ledger))
	}

	if (ret.Deliveries > 0 || ret.Ledger > 0) && ret.SweepInterval > 0 && ret.SweepInterval < time.Minute {
		d.addWarning(r, "retention", "retention.sweep_interval",
			fmt.Sprintf("sweep interval %s is very short (< 1m)", ret.SweepInterval))
	}
}

// warnDeprecatedSyntax warns about legacy config patterns.
func (d *Doctor) warnDeprecatedSyntax(r *Result) {
	if d.cfg.API.Auth.APIKey != "" && len(d.cfg.API.Auth.Tokens) > 0 {
		d.addWarning(r, "deprecated", "api.auth",
			"both api_key and tokens configured; prefer tokens array only")
	}
	if d.cfg.API.Auth.APIKey != "" && len(d.cfg.API.Auth.Tokens) == 0 {
		d.addWarning(r, "deprecated", "api.auth.api_key",
			"legacy api_key grants full access; migrate to tokens array with scopes")
	}
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Configuration valid.\n")
		return b.String()
	}

	if r.Valid && len(r.Warnings) > 0 {
		b.WriteString("Configuration valid")
		fmt.Fprintf(&b, " (%d warning(s))\n", len(r.Warnings))
	}

	if !r.Valid {
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		if e.Field != "" {
			fmt.Fprintf(&b, "  ERROR [%s] %s: %s\n", e.Category, e.Field, e.Message)
		} else {
			fmt.Fprintf(&b, "  ERROR [%s] %s\n", e.Category, e.Message)
		}
	}
	for _, w := range r.Warnings {
		if w.Field != "" {
			fmt.Fprintf(&b, "  WARN  [%s] %s: %s\n", w.Category, w.Field, w.Message)
		} else {
			fmt.Fprintf(&b, "  WARN  [%s] %s\n", w.Category, w.Message)
		}
	}

	return b.String()
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
