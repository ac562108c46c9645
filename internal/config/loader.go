package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads and parses configuration from a file. Environment references
// of the form ${VAR} are interpolated before parsing, the file is verified
// against the directory's .checksums manifest when one exists, defaults are
// applied, and the result is validated.
func Load(configPath string) (*Config, error) {
	// Resolve to absolute path for consistent relative path resolution
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	// Check if path is a directory or a file
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}

	if info.IsDir() {
		// Directory provided - look for config.yaml inside
		absPath = filepath.Join(absPath, "config.yaml")
		if _, err := os.Stat(absPath); err != nil {
			return nil, fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}

	cfg, err := loadConfigFile(absPath)
	if err != nil {
		return nil, err
	}
	cfg.Source = absPath

	// Apply config defaults before validation
	cfg = applyConfigDefaults(cfg)

	// Hash-verify the configuration file if a .checksums manifest exists
	if err := verifyConfigHash(absPath); err != nil {
		return nil, err
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// DiscoverConfig finds the configuration file by checking standard locations.
// Priority order: $TOLLKEEP_CONFIG, ~/.config/tollkeep/config.yaml,
// /etc/tollkeep/config.yaml, ./config.yaml
func DiscoverConfig() (string, error) {
	// 1. Check environment variable
	if path := os.Getenv("TOLLKEEP_CONFIG"); path != "" {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	// 2. Check user config directory
	if homeDir, err := os.UserHomeDir(); err == nil {
		userConfig := filepath.Join(homeDir, ".config", "tollkeep", "config.yaml")
		if _, err := os.Stat(userConfig); err == nil {
			return userConfig, nil
		}
	}

	// 3. Check system config directory
	systemConfig := "/etc/tollkeep/config.yaml"
	if _, err := os.Stat(systemConfig); err == nil {
		return systemConfig, nil
	}

	// 4. Fallback to config in current directory
	localConfig := "./config.yaml"
	if _, err := os.Stat(localConfig); err == nil {
		return localConfig, nil
	}

	return "", fmt.Errorf("no config found (checked: $TOLLKEEP_CONFIG, ~/.config/tollkeep, /etc/tollkeep, ./config.yaml)")
}

// loadConfigFile loads and parses a single config file.
func loadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	// Apply environment variable interpolation
	interpolated := interpolateEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(interpolated), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return &cfg, nil
}

// verifyConfigHash checks the file against the .checksums manifest in its
// directory. A missing manifest skips verification; a manifest that does
// not list the file, or lists a different hash, is an error.
func verifyConfigHash(path string) error {
	dir := filepath.Dir(path)

	checksums, err := LoadChecksums(dir)
	if err != nil {
		// No .checksums manifest; integrity verification is not enabled.
		return nil
	}

	basename := filepath.Base(path)
	expectedHash, ok := checksums.Hashes[basename]
	if !ok {
		return fmt.Errorf("config file %s has no hash in checksums at %s\n"+
			"Run: tollkeep config lock --config %s", basename, dir, path)
	}

	if err := VerifyFileHash(path, expectedHash); err != nil {
		return fmt.Errorf("config verification failed for %s: %w\n"+
			"This indicates tampering or unauthorized modification.\n"+
			"If you edited this file intentionally, run: tollkeep config lock --config %s", path, err, path)
	}

	return nil
}

// applyConfigDefaults merges default values into config where not explicitly set.
func applyConfigDefaults(cfg *Config) *Config {
	defaults := Defaults()

	// Apply service defaults if not set
	if cfg.Service.Name == "" {
		cfg.Service.Name = defaults.Service.Name
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = defaults.Service.LogLevel
	}
	if cfg.Service.LogFormat == "" {
		cfg.Service.LogFormat = defaults.Service.LogFormat
	}

	// Apply state defaults if not set
	if cfg.State.Path == "" {
		cfg.State.Path = defaults.State.Path
	}

	// Apply webhook defaults if not set
	if cfg.Webhook.Listen == "" {
		cfg.Webhook.Listen = defaults.Webhook.Listen
	}

	// Apply API defaults if not set
	if cfg.API.Listen == "" {
		cfg.API.Listen = defaults.API.Listen
	}

	// Apply retention defaults if not set
	if cfg.Retention.SweepInterval == 0 {
		cfg.Retention.SweepInterval = defaults.Retention.SweepInterval
	}

	// Apply hook defaults if not set
	if cfg.Hooks.Timeout == 0 {
		cfg.Hooks.Timeout = defaults.Hooks.Timeout
	}

	return cfg
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is (not expanded).
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		// Extract variable name from ${VAR}
		varName := envVarPattern.FindStringSubmatch(match)[1]

		// Look up environment variable
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}

		// If not found, leave the placeholder (will fail validation if required)
		return match
	})
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	// Service validation
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Service.LogLevel] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[cfg.Service.LogFormat] {
		return fmt.Errorf("service.log_format must be one of: json, text (got %q)", cfg.Service.LogFormat)
	}

	// State validation
	if cfg.State.Path == "" {
		return fmt.Errorf("state.path is required")
	}

	// Webhook validation
	if cfg.Webhook.Listen == "" {
		return fmt.Errorf("webhook.listen is required")
	}
	if cfg.Webhook.Secret == "" {
		return fmt.Errorf("webhook.secret is required")
	}
	if err := checkResolved("webhook.secret", cfg.Webhook.Secret); err != nil {
		return err
	}
	if cfg.Webhook.Tolerance < 0 {
		return fmt.Errorf("webhook.tolerance must not be negative")
	}

	// Checkout validation
	if cfg.Checkout.MinAmount < 0 {
		return fmt.Errorf("checkout.min_amount must not be negative")
	}

	// Retention validation
	if cfg.Retention.Deliveries < 0 {
		return fmt.Errorf("retention.deliveries must not be negative")
	}
	if cfg.Retention.Ledger < 0 {
		return fmt.Errorf("retention.ledger must not be negative")
	}
	if cfg.Retention.SweepInterval <= 0 {
		return fmt.Errorf("retention.sweep_interval must be positive")
	}

	// Hook validation
	if cfg.Hooks.Timeout <= 0 {
		return fmt.Errorf("hooks.timeout must be positive")
	}
	if err := checkResolved("hooks.on_grant", cfg.Hooks.OnGrant); err != nil {
		return err
	}
	if err := checkResolved("hooks.on_revoke", cfg.Hooks.OnRevoke); err != nil {
		return err
	}

	// API auth validation
	if cfg.API.Enabled {
		if cfg.API.Listen == "" {
			return fmt.Errorf("api.listen is required when the API is enabled")
		}
		if cfg.API.Auth.APIKey == "" && len(cfg.API.Auth.Tokens) == 0 {
			return fmt.Errorf("api.auth: at least one of api_key or tokens is required when the API is enabled")
		}
		if err := checkResolved("api.auth.api_key", cfg.API.Auth.APIKey); err != nil {
			return err
		}
		for i, tok := range cfg.API.Auth.Tokens {
			if tok.Token == "" {
				return fmt.Errorf("api.auth.tokens[%d].token is required", i)
			}
			if err := checkResolved(fmt.Sprintf("api.auth.tokens[%d].token", i), tok.Token); err != nil {
				return err
			}
			if len(tok.Scopes) == 0 {
				return fmt.Errorf("api.auth.tokens[%d].scopes must be non-empty", i)
			}
		}
	}

	return nil
}

// checkResolved rejects values still carrying a ${VAR} placeholder after
// interpolation (security: an unset secret must fail loudly, not flow on as
// a literal).
func checkResolved(field, value string) error {
	if !envVarPattern.MatchString(value) {
		return nil
	}
	matches := envVarPattern.FindStringSubmatch(value)
	if len(matches) > 1 {
		return fmt.Errorf("%s: environment variable ${%s} is not set", field, matches[1])
	}
	return fmt.Errorf("%s: unresolved environment variable", field)
}
