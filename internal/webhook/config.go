package webhook

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tollkeep/tollkeep/internal/config"
)

// FromGlobalConfig converts the loaded webhook section into a runtime
// Config. The body size limit arrives as a string ("1MB", "65536") and is
// parsed here; the secret arrives with environment references already
// resolved.
func FromGlobalConfig(wc config.WebhookConfig) (Config, error) {
	if wc.Secret == "" {
		return Config{}, fmt.Errorf("webhook: no signing secret configured")
	}

	maxBodySize, err := ParseMaxBodySize(wc.MaxBodySize)
	if err != nil {
		return Config{}, fmt.Errorf("webhook: invalid max_body_size %q: %w", wc.MaxBodySize, err)
	}

	return Config{
		Listen:          wc.Listen,
		Path:            wc.Path,
		SignatureHeader: wc.SignatureHeader,
		Secret:          wc.Secret,
		Tolerance:       wc.Tolerance,
		MaxBodySize:     maxBodySize,
		StrictIgnores:   wc.StrictIgnores,
	}, nil
}

// ParseMaxBodySize parses size strings like "1MB", "64KB", "1048576" to bytes.
// Returns DefaultMaxBodySize if empty.
func ParseMaxBodySize(size string) (int64, error) {
	if size == "" {
		return DefaultMaxBodySize, nil
	}

	// Handle unit suffixes (KB, MB, GB)
	upper := strings.ToUpper(size)
	multiplier := int64(1)

	if strings.HasSuffix(upper, "KB") {
		multiplier = 1024
		size = strings.TrimSuffix(upper, "KB")
	} else if strings.HasSuffix(upper, "MB") {
		multiplier = 1024 * 1024
		size = strings.TrimSuffix(upper, "MB")
	} else if strings.HasSuffix(upper, "GB") {
		multiplier = 1024 * 1024 * 1024
		size = strings.TrimSuffix(upper, "GB")
	}

	// Parse numeric value
	value, err := strconv.ParseInt(strings.TrimSpace(size), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size value: %w", err)
	}

	if value <= 0 {
		return 0, fmt.Errorf("size must be positive")
	}

	result := value * multiplier
	if result < 0 { // Check for overflow
		return 0, fmt.Errorf("size too large")
	}

	return result, nil
}
