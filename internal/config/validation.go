package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/law-makers/rednote/internal/proxy"
	"github.com/law-makers/rednote/internal/utils/headers"
	urlutil "github.com/law-makers/rednote/internal/utils/url"
)

func validate(c *Config) error {
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	if c.OpTimeout <= 0 {
		return fmt.Errorf("operation timeout must be > 0")
	}
	if c.LaunchTimeout <= 0 {
		return fmt.Errorf("launch timeout must be > 0")
	}
	if c.InteractionDelay < 0 {
		return fmt.Errorf("interaction delay must be >= 0")
	}
	if c.ChromePath == "" && !slices.Contains(Channels, c.Channel) {
		return fmt.Errorf("browser channel must be one of %s, got %q", strings.Join(Channels, ", "), c.Channel)
	}
	if c.ProfileDir == "" {
		return fmt.Errorf("profile directory is required")
	}
	if c.StateFile == "" {
		return fmt.Errorf("state file is required")
	}
	if err := urlutil.ValidateURL(c.SiteURL); err != nil {
		return fmt.Errorf("site url: %w", err)
	}
	if err := urlutil.ValidateURL(c.ExploreURL); err != nil {
		return fmt.Errorf("explore url: %w", err)
	}
	for _, p := range proxy.ParseList(c.Proxy) {
		if !strings.Contains(p, "://") {
			return fmt.Errorf("proxy %q must include a scheme (e.g., http://host:port)", p)
		}
	}
	if _, err := headers.Parse(c.ImageHeaders); err != nil {
		return fmt.Errorf("image header: %w", err)
	}
	if c.LoginPollAttempts <= 0 || c.LoginPollAttempts > MaxLoginPollAttempts {
		return fmt.Errorf("login poll attempts must be between 1 and %d", MaxLoginPollAttempts)
	}
	if c.LoginSettle < 0 {
		return fmt.Errorf("login settle must be >= 0")
	}
	if c.LoginPollInterval <= 0 {
		return fmt.Errorf("login poll interval must be > 0")
	}
	if c.DetailRateLimitRPS < 0 || c.ImageRateLimitRPS < 0 {
		return fmt.Errorf("rate limits must be >= 0")
	}
	if c.DetailRateLimitBurst <= 0 || c.ImageRateLimitBurst <= 0 {
		return fmt.Errorf("rate limit bursts must be > 0")
	}
	if c.OCRWorkers <= 0 {
		return fmt.Errorf("OCR workers must be > 0")
	}
	if c.ImageTimeout <= 0 {
		return fmt.Errorf("image timeout must be > 0")
	}
	if c.CacheMaxSizeBytes <= 0 {
		return fmt.Errorf("cache max size must be > 0")
	}
	return nil
}
