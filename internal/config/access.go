package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// redactedValue replaces secret material in full-config dumps. Exact-path
// lookups via GetPath still return the real value.
const redactedValue = "[redacted]"

// GetPath retrieves a value from the configuration using a dot-notation path.
func (c *Config) GetPath(path string) (any, error) {
	// Convert to map for generic traversal
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}

	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return getValue(m, path)
}

// Redacted returns a copy of the configuration with secret material masked,
// for dumps and logs.
func (c *Config) Redacted() *Config {
	out := *c

	if out.Webhook.Secret != "" {
		out.Webhook.Secret = redactedValue
	}
	if out.API.Auth.APIKey != "" {
		out.API.Auth.APIKey = redactedValue
	}
	if len(c.API.Auth.Tokens) > 0 {
		out.API.Auth.Tokens = make([]APIToken, len(c.API.Auth.Tokens))
		for i, tok := range c.API.Auth.Tokens {
			out.API.Auth.Tokens[i] = APIToken{Token: redactedValue, Scopes: tok.Scopes}
		}
	}

	return &out
}

func getValue(m map[string]any, path string) (any, error) {
	parts := strings.Split(path, ".")
	var current any = m

	for _, part := range parts {
		if part == "" {
			continue
		}

		m, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("path %q breaks at %q (not a map)", path, part)
		}

		val, exists := m[part]
		if !exists {
			return nil, fmt.Errorf("path %q: key %q not found", path, part)
		}
		current = val
	}

	return current, nil
}
