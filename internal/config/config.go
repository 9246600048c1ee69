package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/law-makers/rednote/internal/auth"
	"github.com/spf13/cobra"
)

// Config holds application configuration values
type Config struct {
	// Logging
	LogLevel      string
	JSONLog       bool
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int

	// Browser
	ProfileDir       string
	StateFile        string
	Channel          string
	ChromePath       string
	Headless         bool
	InteractionDelay time.Duration
	OpTimeout        time.Duration
	LaunchTimeout    time.Duration
	UserAgent        string
	Proxy            string
	EvasionFlags     []string

	// Site
	SiteURL           string
	ExploreURL        string
	SelectorsFile     string
	LoginSettle       time.Duration
	LoginPollAttempts int
	LoginPollInterval time.Duration

	// Rate Limiting
	DetailRateLimitRPS   float64
	DetailRateLimitBurst int
	ImageRateLimitRPS    float64
	ImageRateLimitBurst  int

	// OCR
	OCRLanguages      string
	TesseractPath     string
	ImageHeaders      []string
	OCRWorkers        int
	ImageTimeout      time.Duration
	CacheTTL          time.Duration
	CacheMaxSizeBytes int64
}

// Default returns a Config holding only the built-in defaults. Paths under
// the home directory are left empty when it cannot be determined.
func Default() *Config {
	cfg := &Config{
		LogLevel:             DefaultLogLevel,
		JSONLog:              DefaultJSONLog,
		LogMaxSizeMB:         DefaultLogMaxSizeMB,
		LogMaxBackups:        DefaultLogMaxBackups,
		Channel:              DefaultChannel,
		Headless:             DefaultHeadless,
		InteractionDelay:     DefaultInteractionDelay,
		OpTimeout:            DefaultOpTimeout,
		LaunchTimeout:        DefaultLaunchTimeout,
		UserAgent:            DefaultUserAgent,
		EvasionFlags:         append([]string(nil), DefaultEvasionFlags...),
		SiteURL:              DefaultSiteURL,
		ExploreURL:           DefaultExploreURL,
		LoginSettle:          DefaultLoginSettle,
		LoginPollAttempts:    DefaultLoginPollAttempts,
		LoginPollInterval:    DefaultLoginPollInterval,
		DetailRateLimitRPS:   DefaultDetailRateLimitRPS,
		DetailRateLimitBurst: DefaultDetailRateLimitBurst,
		ImageRateLimitRPS:    DefaultImageRateLimitRPS,
		ImageRateLimitBurst:  DefaultImageRateLimitBurst,
		OCRLanguages:         DefaultOCRLanguages,
		OCRWorkers:           DefaultOCRWorkers,
		ImageTimeout:         DefaultImageTimeout,
		CacheTTL:             DefaultCacheTTL,
		CacheMaxSizeBytes:    DefaultCacheMaxSizeBytes,
	}
	if path, err := auth.DefaultStatePath(); err == nil {
		cfg.StateFile = path
		cfg.ProfileDir = filepath.Join(filepath.Dir(path), "profile")
	}
	return cfg
}

// Load builds a Config by combining defaults, environment variables (REDNOTE_*)
// and CLI flags, in that order. Pass the executing command so its inherited
// flags can be read.
func Load(cmd *cobra.Command) (*Config, error) {
	cfg := Default()

	if err := applyEnv(cfg, os.Getenv); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}

	if cmd != nil {
		if err := applyFlags(cfg, cmd); err != nil {
			return nil, err
		}
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	str := map[string]*string{
		"REDNOTE_LOG_LEVEL":   &cfg.LogLevel,
		"REDNOTE_LOG_FILE":    &cfg.LogFile,
		"REDNOTE_PROFILE_DIR": &cfg.ProfileDir,
		"REDNOTE_STATE_FILE":  &cfg.StateFile,
		"REDNOTE_CHANNEL":     &cfg.Channel,
		"REDNOTE_CHROME_PATH": &cfg.ChromePath,
		"REDNOTE_USER_AGENT":  &cfg.UserAgent,
		"REDNOTE_PROXY":       &cfg.Proxy,
		"REDNOTE_SITE_URL":    &cfg.SiteURL,
		"REDNOTE_SELECTORS":   &cfg.SelectorsFile,
		"REDNOTE_OCR_LANGS":   &cfg.OCRLanguages,
		"REDNOTE_TESSERACT":   &cfg.TesseractPath,
	}
	for name, dst := range str {
		if v := strings.TrimSpace(getenv(name)); v != "" {
			*dst = v
		}
	}

	if v := getenv("REDNOTE_HEADLESS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("REDNOTE_HEADLESS: %w", err)
		}
		cfg.Headless = b
	}
	if v := getenv("REDNOTE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("REDNOTE_TIMEOUT: %w", err)
		}
		cfg.OpTimeout = d
	}
	if v := getenv("REDNOTE_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("REDNOTE_DELAY: %w", err)
		}
		cfg.InteractionDelay = d
	}
	if v := getenv("REDNOTE_RATE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("REDNOTE_RATE: %w", err)
		}
		cfg.DetailRateLimitRPS = f
	}
	if v := getenv("REDNOTE_LOGIN_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("REDNOTE_LOGIN_ATTEMPTS: %w", err)
		}
		cfg.LoginPollAttempts = n
	}
	if v := getenv("REDNOTE_OCR_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("REDNOTE_OCR_WORKERS: %w", err)
		}
		cfg.OCRWorkers = n
	}
	return nil
}

func applyFlags(cfg *Config, cmd *cobra.Command) error {
	str := map[string]*string{
		"log-file":    &cfg.LogFile,
		"profile-dir": &cfg.ProfileDir,
		"state-file":  &cfg.StateFile,
		"channel":     &cfg.Channel,
		"chrome-path": &cfg.ChromePath,
		"proxy":       &cfg.Proxy,
		"user-agent":  &cfg.UserAgent,
		"selectors":   &cfg.SelectorsFile,
		"tesseract":   &cfg.TesseractPath,
		"ocr-langs":   &cfg.OCRLanguages,
	}
	for name, dst := range str {
		if s, _ := flagValue(cmd, name); s != "" {
			*dst = s
		}
	}

	if s, _ := flagValue(cmd, "timeout"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid --timeout: %w", err)
		}
		cfg.OpTimeout = d
	}
	if s, _ := flagValue(cmd, "delay"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid --delay: %w", err)
		}
		cfg.InteractionDelay = d
	}
	if s, changed := flagValue(cmd, "rate"); changed {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("invalid --rate: %w", err)
		}
		cfg.DetailRateLimitRPS = f
	}
	if f := cmd.Flags().Lookup("image-header"); f != nil && f.Changed {
		h, err := cmd.Flags().GetStringArray("image-header")
		if err != nil {
			return fmt.Errorf("invalid --image-header: %w", err)
		}
		cfg.ImageHeaders = h
	}
	if s, _ := flagValue(cmd, "json"); s == "true" {
		cfg.JSONLog = true
	}
	if s, _ := flagValue(cmd, "quiet"); s == "true" {
		cfg.LogLevel = "error"
	}
	if s, _ := flagValue(cmd, "verbose"); s == "true" {
		cfg.LogLevel = "debug"
	}
	return nil
}

// flagValue reads a flag from cmd, including persistent flags of its parents
func flagValue(cmd *cobra.Command, name string) (string, bool) {
	f := cmd.Flags().Lookup(name)
	if f == nil {
		f = cmd.PersistentFlags().Lookup(name)
	}
	if f == nil {
		return "", false
	}
	return f.Value.String(), f.Changed
}
