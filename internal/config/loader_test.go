package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		env     map[string]string
		wantErr bool
		checkFn func(t *testing.T, cfg *Config)
	}{
		{
			name: "minimal valid config",
			yaml: `
state:
  path: ./test.db
webhook:
  listen: 127.0.0.1:9090
  secret: whsec_test
`,
			wantErr: false,
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Webhook.Listen != "127.0.0.1:9090" {
					t.Error("webhook.listen not parsed")
				}
				if cfg.Webhook.Secret != "whsec_test" {
					t.Error("webhook.secret not parsed")
				}
				// Check defaults applied
				if cfg.Service.Name != "tollkeep" {
					t.Error("default service.name not applied")
				}
				if cfg.Service.LogLevel != "info" || cfg.Service.LogFormat != "json" {
					t.Error("default log settings not applied")
				}
				if cfg.Retention.SweepInterval != time.Hour {
					t.Error("default retention.sweep_interval not applied")
				}
				if cfg.Hooks.Timeout != 10*time.Second {
					t.Error("default hooks.timeout not applied")
				}
				if cfg.API.Enabled {
					t.Error("api should be disabled by default")
				}
			},
		},
		{
			name: "full config parses all sections",
			yaml: `
service:
  name: tollkeep-staging
  log_level: debug
  log_format: text
state:
  path: /var/lib/tollkeep/state.db
webhook:
  listen: 0.0.0.0:8080
  path: /hooks/payment
  signature_header: Stripe-Signature
  secret: whsec_full
  tolerance: 3m
  max_body_size: 2MB
  strict_ignores: true
checkout:
  product_ref: prod_tollkeep
  min_amount: 500
api:
  enabled: true
  listen: 127.0.0.1:9000
  auth:
    tokens:
      - token: tk_read
        scopes: [deliveries:ro, events:ro]
retention:
  deliveries: 720h
  ledger: 2160h
  sweep_interval: 30m
hooks:
  on_grant: /usr/local/bin/grant.sh
  on_revoke: /usr/local/bin/revoke.sh
  timeout: 5s
`,
			wantErr: false,
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Service.Name != "tollkeep-staging" {
					t.Error("service.name not parsed")
				}
				if cfg.Webhook.Tolerance != 3*time.Minute {
					t.Errorf("webhook.tolerance = %v, want 3m", cfg.Webhook.Tolerance)
				}
				if cfg.Webhook.Path != "/hooks/payment" {
					t.Error("webhook.path not parsed")
				}
				if cfg.Webhook.SignatureHeader != "Stripe-Signature" {
					t.Error("webhook.signature_header not parsed")
				}
				if cfg.Webhook.MaxBodySize != "2MB" {
					t.Error("webhook.max_body_size not parsed")
				}
				if !cfg.Webhook.StrictIgnores {
					t.Error("webhook.strict_ignores not parsed")
				}
				if cfg.Checkout.ProductRef != "prod_tollkeep" || cfg.Checkout.MinAmount != 500 {
					t.Error("checkout section not parsed")
				}
				if !cfg.API.Enabled || cfg.API.Listen != "127.0.0.1:9000" {
					t.Error("api section not parsed")
				}
				if len(cfg.API.Auth.Tokens) != 1 || cfg.API.Auth.Tokens[0].Token != "tk_read" {
					t.Fatal("api token not parsed")
				}
				if len(cfg.API.Auth.Tokens[0].Scopes) != 2 {
					t.Error("api token scopes not parsed")
				}
				if cfg.Retention.Deliveries != 720*time.Hour {
					t.Error("retention.deliveries not parsed")
				}
				if cfg.Retention.SweepInterval != 30*time.Minute {
					t.Error("retention.sweep_interval not parsed")
				}
				if cfg.Hooks.OnGrant != "/usr/local/bin/grant.sh" || cfg.Hooks.Timeout != 5*time.Second {
					t.Error("hooks section not parsed")
				}
			},
		},
		{
			name: "env var interpolation",
			yaml: `
state:
  path: ${DB_PATH}
webhook:
  listen: 127.0.0.1:9090
  secret: ${WEBHOOK_SECRET}
`,
			env: map[string]string{
				"DB_PATH":        "/tmp/tollkeep.db",
				"WEBHOOK_SECRET": "whsec_from_env",
			},
			wantErr: false,
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.State.Path != "/tmp/tollkeep.db" {
					t.Errorf("env var not interpolated in state.path: %s", cfg.State.Path)
				}
				if cfg.Webhook.Secret != "whsec_from_env" {
					t.Error("env var not interpolated in webhook.secret")
				}
			},
		},
		{
			name: "missing secret env var fails validation",
			yaml: `
state:
  path: ./test.db
webhook:
  listen: 127.0.0.1:9090
  secret: ${MISSING_WEBHOOK_SECRET}
`,
			env:     map[string]string{}, // MISSING_WEBHOOK_SECRET not set
			wantErr: true,
		},
		{
			name: "missing secret",
			yaml: `
state:
  path: ./test.db
webhook:
  listen: 127.0.0.1:9090
`,
			wantErr: true,
		},
		{
			name: "invalid log level",
			yaml: `
service:
  log_level: verbose
state:
  path: ./test.db
webhook:
  listen: 127.0.0.1:9090
  secret: whsec_test
`,
			wantErr: true,
		},
		{
			name: "invalid log format",
			yaml: `
service:
  log_format: xml
state:
  path: ./test.db
webhook:
  listen: 127.0.0.1:9090
  secret: whsec_test
`,
			wantErr: true,
		},
		{
			name: "negative tolerance",
			yaml: `
state:
  path: ./test.db
webhook:
  listen: 127.0.0.1:9090
  secret: whsec_test
  tolerance: -30s
`,
			wantErr: true,
		},
		{
			name: "api enabled without credentials",
			yaml: `
state:
  path: ./test.db
webhook:
  listen: 127.0.0.1:9090
  secret: whsec_test
api:
  enabled: true
`,
			wantErr: true,
		},
		{
			name: "api token without scopes",
			yaml: `
state:
  path: ./test.db
webhook:
  listen: 127.0.0.1:9090
  secret: whsec_test
api:
  enabled: true
  auth:
    tokens:
      - token: tk_no_scopes
`,
			wantErr: true,
		},
		{
			name: "api disabled skips auth validation",
			yaml: `
state:
  path: ./test.db
webhook:
  listen: 127.0.0.1:9090
  secret: whsec_test
api:
  enabled: false
`,
			wantErr: false,
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.API.Enabled {
					t.Error("api should stay disabled")
				}
			},
		},
		{
			name: "negative retention window",
			yaml: `
state:
  path: ./test.db
webhook:
  listen: 127.0.0.1:9090
  secret: whsec_test
retention:
  deliveries: -24h
`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Set up environment
			for k, v := range tt.env {
				os.Setenv(k, v)
				defer os.Unsetenv(k)
			}

			// Create temp config file
			tmpDir := t.TempDir()
			configPath := filepath.Join(tmpDir, "config.yaml")
			if err := os.WriteFile(configPath, []byte(tt.yaml), 0644); err != nil {
				t.Fatalf("failed to write test config: %v", err)
			}

			// Load config
			cfg, err := Load(configPath)

			if (err != nil) != tt.wantErr {
				t.Errorf("Load() error = %v, wantErr %v", err, tt.wantErr)
				return
			}

			if !tt.wantErr && tt.checkFn != nil {
				tt.checkFn(t, cfg)
			}
		})
	}
}

func TestLoadDirectoryPath(t *testing.T) {
	tmpDir := t.TempDir()
	yaml := "state:\n  path: ./test.db\nwebhook:\n  listen: 127.0.0.1:9090\n  secret: whsec_test\n"
	if err := os.WriteFile(filepath.Join(tmpDir, "config.yaml"), []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() with directory failed: %v", err)
	}
	if cfg.Webhook.Secret != "whsec_test" {
		t.Error("config.yaml inside directory not loaded")
	}
	if filepath.Base(cfg.Source) != "config.yaml" {
		t.Errorf("Source = %s, want a config.yaml path", cfg.Source)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("Load() should fail for a missing file")
	}
}

func TestLoadChecksumVerification(t *testing.T) {
	const body = "state:\n  path: ./test.db\nwebhook:\n  listen: 127.0.0.1:9090\n  secret: whsec_test\n"

	writeConfig := func(t *testing.T) (string, string) {
		t.Helper()
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.yaml")
		if err := os.WriteFile(configPath, []byte(body), 0644); err != nil {
			t.Fatal(err)
		}
		return tmpDir, configPath
	}

	t.Run("locked config loads", func(t *testing.T) {
		tmpDir, configPath := writeConfig(t)
		if err := GenerateChecksums(tmpDir, []string{"config.yaml"}); err != nil {
			t.Fatalf("GenerateChecksums() failed: %v", err)
		}
		if _, err := Load(configPath); err != nil {
			t.Fatalf("Load() after lock failed: %v", err)
		}
	})

	t.Run("tampered config rejected", func(t *testing.T) {
		tmpDir, configPath := writeConfig(t)
		if err := GenerateChecksums(tmpDir, []string{"config.yaml"}); err != nil {
			t.Fatalf("GenerateChecksums() failed: %v", err)
		}
		if err := os.WriteFile(configPath, []byte(body+"# edited after lock\n"), 0644); err != nil {
			t.Fatal(err)
		}

		_, err := Load(configPath)
		if err == nil {
			t.Fatal("Load() should reject a config changed after locking")
		}
		if !strings.Contains(err.Error(), "verification failed") {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("unlisted config rejected", func(t *testing.T) {
		tmpDir, configPath := writeConfig(t)
		// Manifest exists but does not cover config.yaml.
		if err := GenerateChecksums(tmpDir, []string{"other.yaml"}); err != nil {
			t.Fatalf("GenerateChecksums() failed: %v", err)
		}

		_, err := Load(configPath)
		if err == nil {
			t.Fatal("Load() should reject a config absent from the manifest")
		}
		if !strings.Contains(err.Error(), "no hash in checksums") {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("no manifest skips verification", func(t *testing.T) {
		_, configPath := writeConfig(t)
		if _, err := Load(configPath); err != nil {
			t.Fatalf("Load() without manifest failed: %v", err)
		}
	})
}

func TestDiscoverConfigEnvVar(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("webhook: {}\n"), 0644); err != nil {
		t.Fatal(err)
	}

	os.Setenv("TOLLKEEP_CONFIG", configPath)
	defer os.Unsetenv("TOLLKEEP_CONFIG")

	got, err := DiscoverConfig()
	if err != nil {
		t.Fatalf("DiscoverConfig() failed: %v", err)
	}
	if got != configPath {
		t.Errorf("DiscoverConfig() = %s, want %s", got, configPath)
	}
}

func TestInterpolateEnv(t *testing.T) {
	tests := []struct {
		name  string
		input string
		env   map[string]string
		want  string
	}{
		{
			name:  "simple replacement",
			input: "path: ${HOME_DIR}/data",
			env:   map[string]string{"HOME_DIR": "/users/test"},
			want:  "path: /users/test/data",
		},
		{
			name:  "multiple vars",
			input: "${USER}:${PASS}@${HOST}",
			env: map[string]string{
				"USER": "admin",
				"PASS": "secret",
				"HOST": "localhost",
			},
			want: "admin:secret@localhost",
		},
		{
			name:  "undefined var unchanged",
			input: "key: ${UNDEFINED}",
			env:   map[string]string{},
			want:  "key: ${UNDEFINED}",
		},
		{
			name:  "no vars",
			input: "plain text",
			env:   map[string]string{},
			want:  "plain text",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				os.Setenv(k, v)
				defer os.Unsetenv(k)
			}

			got := interpolateEnv(tt.input)
			if got != tt.want {
				t.Errorf("interpolateEnv() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCheckResolved(t *testing.T) {
	if err := checkResolved("webhook.secret", "whsec_plain"); err != nil {
		t.Errorf("plain value should pass: %v", err)
	}

	err := checkResolved("webhook.secret", "${TOLLKEEP_SECRET}")
	if err == nil {
		t.Fatal("unresolved placeholder should fail")
	}
	if !strings.Contains(err.Error(), "TOLLKEEP_SECRET") {
		t.Errorf("error should name the missing variable: %v", err)
	}
}
