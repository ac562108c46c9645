package config

import "time"

// Config represents the complete tollkeep configuration.
type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	State     StateConfig     `yaml:"state"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Checkout  CheckoutConfig  `yaml:"checkout,omitempty"`
	API       APIConfig       `yaml:"api,omitempty"`
	Retention RetentionConfig `yaml:"retention,omitempty"`
	Hooks     HooksConfig     `yaml:"hooks,omitempty"`

	// Source is the absolute path of the loaded config file.
	Source string `yaml:"-"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// StateConfig defines state storage settings.
type StateConfig struct {
	Path string `yaml:"path"`
}

// WebhookConfig defines the provider-facing webhook listener.
type WebhookConfig struct {
	Listen          string        `yaml:"listen"`
	Path            string        `yaml:"path,omitempty"`
	SignatureHeader string        `yaml:"signature_header,omitempty"`
	Secret          string        `yaml:"secret"`
	Tolerance       time.Duration `yaml:"tolerance,omitempty"`
	MaxBodySize     string        `yaml:"max_body_size,omitempty"`
	StrictIgnores   bool          `yaml:"strict_ignores,omitempty"`
}

// CheckoutConfig defines fulfillment rules for checkout events.
type CheckoutConfig struct {
	// ProductRef is the client reference a checkout session must carry.
	// Empty accepts any reference.
	ProductRef string `yaml:"product_ref,omitempty"`

	// MinAmount is the smallest amount (in the currency's minor unit)
	// accepted for fulfillment.
	MinAmount int64 `yaml:"min_amount,omitempty"`
}

// APIConfig defines the admin API server settings.
type APIConfig struct {
	Enabled bool          `yaml:"enabled"`
	Listen  string        `yaml:"listen"`
	Auth    APIAuthConfig `yaml:"auth"`
}

// APIAuthConfig defines API authentication settings.
type APIAuthConfig struct {
	// APIKey is the legacy single bearer token (admin/full access).
	// Prefer Tokens for scoped access.
	APIKey string     `yaml:"api_key,omitempty"`
	Tokens []APIToken `yaml:"tokens,omitempty"`
}

// APIToken defines a bearer token and its scopes.
type APIToken struct {
	Token  string   `yaml:"token"`
	Scopes []string `yaml:"scopes"`
}

// RetentionConfig defines how long audit data is kept. Zero keeps rows
// forever.
type RetentionConfig struct {
	Deliveries    time.Duration `yaml:"deliveries,omitempty"`
	Ledger        time.Duration `yaml:"ledger,omitempty"`
	SweepInterval time.Duration `yaml:"sweep_interval,omitempty"`
}

// HooksConfig names executables run after fulfillment changes.
type HooksConfig struct {
	OnGrant  string        `yaml:"on_grant,omitempty"`
	OnRevoke string        `yaml:"on_revoke,omitempty"`
	Timeout  time.Duration `yaml:"timeout,omitempty"`
}

// ChecksumManifest is the parsed .checksums file.
type ChecksumManifest struct {
	Version     int               `yaml:"version"`
	GeneratedAt string            `yaml:"generated_at"`
	Hashes      map[string]string `yaml:"hashes"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "tollkeep",
			LogLevel:  "info",
			LogFormat: "json",
		},
		State: StateConfig{
			Path: "./data/tollkeep.db",
		},
		Webhook: WebhookConfig{
			Listen: "127.0.0.1:8080",
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8081",
		},
		Retention: RetentionConfig{
			SweepInterval: time.Hour,
		},
		Hooks: HooksConfig{
			Timeout: 10 * time.Second,
		},
	}
}
