// Package config loads the orthoforge YAML configuration.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/entrhq/orthoforge/pkg/browser"
)

// ErrMissingAPIKey is returned when no language-model API key could be
// resolved from flags, environment or the config file.
var ErrMissingAPIKey = errors.New("config: language model API key is required")

// Config represents the full orthoforge configuration
type Config struct {
	Platform  PlatformConfig `yaml:"platform" json:"platform"`
	Browser   BrowserConfig  `yaml:"browser" json:"browser"`
	Limits    LimitsConfig   `yaml:"limits" json:"limits"`
	LLM       LLMConfig      `yaml:"llm" json:"llm"`
	Paths     PathsConfig    `yaml:"paths" json:"paths"`
	Timing    TimingConfig   `yaml:"timing" json:"timing"`
	Popup     PopupConfig    `yaml:"popup" json:"popup"`
	Selectors Selectors      `yaml:"selectors" json:"selectors"`
	Logging   LoggingConfig  `yaml:"logging" json:"logging"`
}

// PlatformConfig locates the exercise platform
type PlatformConfig struct {
	BaseURL      string `yaml:"base_url" json:"base_url"`
	LoginURL     string `yaml:"login_url" json:"login_url"`
	ExercisesURL string `yaml:"exercises_url" json:"exercises_url"`
}

// BrowserConfig controls the launched browsers
type BrowserConfig struct {
	Headless    bool             `yaml:"headless" json:"headless"`
	ProfileRoot string           `yaml:"profile_root" json:"profile_root"`
	Viewport    browser.Viewport `yaml:"viewport" json:"viewport"`
	Locale      string           `yaml:"locale" json:"locale"`
	SlowMo      time.Duration    `yaml:"slow_mo" json:"slow_mo"`
	Timeout     time.Duration    `yaml:"timeout" json:"timeout"`

	// Install downloads the Playwright driver and Chromium when missing
	Install bool `yaml:"install" json:"install"`
}

// LaunchOptions converts the section into browser launch options.
func (b BrowserConfig) LaunchOptions() browser.LaunchOptions {
	vp := b.Viewport
	return browser.LaunchOptions{
		Headless: b.Headless,
		Viewport: &vp,
		Locale:   b.Locale,
		SlowMo:   b.SlowMo,
		Timeout:  b.Timeout,
	}
}

// LimitsConfig holds the global admission caps
type LimitsConfig struct {
	MaxBrowsers int `yaml:"max_browsers" json:"max_browsers"`
	MaxSolves   int `yaml:"max_solves" json:"max_solves"`

	// MaxRestarts is how many times a session is relaunched after a
	// restart signal before the account gives up for this run
	MaxRestarts int `yaml:"max_restarts" json:"max_restarts"`
}

// LLMConfig configures the language model client
type LLMConfig struct {
	Model             string        `yaml:"model" json:"model"`
	BaseURL           string        `yaml:"base_url" json:"base_url"`
	APIKey            string        `yaml:"api_key" json:"api_key"`
	RequestsPerMinute int           `yaml:"requests_per_minute" json:"requests_per_minute"`
	Timeout           time.Duration `yaml:"timeout" json:"timeout"`
}

// PathsConfig locates the persisted files
type PathsConfig struct {
	Accounts       string `yaml:"accounts" json:"accounts"`
	ActiveAccounts string `yaml:"active_accounts" json:"active_accounts"`
	SessionTimes   string `yaml:"session_times" json:"session_times"`
}

// TimingConfig holds loop pacing and bounded waits
type TimingConfig struct {
	// ReportInterval is how often remaining session time is reported
	ReportInterval time.Duration `yaml:"report_interval" json:"report_interval"`

	// SelectionBackoff is the pause after finding no runnable exercise
	SelectionBackoff time.Duration `yaml:"selection_backoff" json:"selection_backoff"`

	// StableTimeout bounds the wait for the page to settle
	StableTimeout time.Duration `yaml:"stable_timeout" json:"stable_timeout"`

	// ElementTimeout bounds individual element waits
	ElementTimeout time.Duration `yaml:"element_timeout" json:"element_timeout"`

	NextRetries    int           `yaml:"next_retries" json:"next_retries"`
	NextRetryDelay time.Duration `yaml:"next_retry_delay" json:"next_retry_delay"`

	// ThinkMin and ThinkMax bound the human-like delay before answering
	ThinkMin time.Duration `yaml:"think_min" json:"think_min"`
	ThinkMax time.Duration `yaml:"think_max" json:"think_max"`
}

// PopupConfig caps the training popup sub-solver
type PopupConfig struct {
	MaxIterations int           `yaml:"max_iterations" json:"max_iterations"`
	MaxDuration   time.Duration `yaml:"max_duration" json:"max_duration"`
}

// LoggingConfig defines logging configuration
type LoggingConfig struct {
	// Level is one of debug, info, warn, error
	Level string `yaml:"level" json:"level"`

	// Stderr mirrors log lines to stderr
	Stderr bool `yaml:"stderr" json:"stderr"`
}

// DefaultConfig returns a configuration suitable for most use cases
func DefaultConfig() *Config {
	root := defaultDataDir()
	return &Config{
		Platform: PlatformConfig{
			BaseURL:      "https://www.projet-voltaire.fr",
			LoginURL:     "https://www.projet-voltaire.fr/voltaire/com.woonoz.gwt.woonoz.Voltaire/Voltaire.html?returnUrl=www.projet-voltaire.fr/choix-parcours/&applicationCode=pv",
			ExercisesURL: "https://www.projet-voltaire.fr/choix-parcours/",
		},
		Browser: BrowserConfig{
			Headless:    true,
			ProfileRoot: filepath.Join(root, "profiles"),
			Viewport: browser.Viewport{
				Width:  browser.DefaultViewportWidth,
				Height: browser.DefaultViewportHeight,
			},
			Locale:  "fr-FR",
			Timeout: browser.DefaultTimeout,
			Install: true,
		},
		Limits: LimitsConfig{
			MaxBrowsers: browser.DefaultMaxBrowsers,
			MaxSolves:   4,
			MaxRestarts: 3,
		},
		LLM: LLMConfig{
			RequestsPerMinute: 60,
			Timeout:           60 * time.Second,
		},
		Paths: PathsConfig{
			Accounts:       filepath.Join(root, "accounts.yaml"),
			ActiveAccounts: filepath.Join(root, "active-accounts.yaml"),
			SessionTimes:   filepath.Join(root, "session-times.json"),
		},
		Timing: TimingConfig{
			ReportInterval:   10 * time.Second,
			SelectionBackoff: 5 * time.Second,
			StableTimeout:    10 * time.Second,
			ElementTimeout:   5 * time.Second,
			NextRetries:      5,
			NextRetryDelay:   time.Second,
			ThinkMin:         800 * time.Millisecond,
			ThinkMax:         2500 * time.Millisecond,
		},
		Popup: PopupConfig{
			MaxIterations: 40,
			MaxDuration:   3 * time.Minute,
		},
		Selectors: DefaultSelectors(),
		Logging: LoggingConfig{
			Level:  "info",
			Stderr: true,
		},
	}
}

func defaultDataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".orthoforge"
	}
	return filepath.Join(homeDir, ".orthoforge")
}

// Load reads the YAML file at path over the defaults. An empty path returns
// the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Relative paths are resolved against the config file's directory.
	base := filepath.Dir(path)
	cfg.Paths.Accounts = resolve(base, cfg.Paths.Accounts)
	cfg.Paths.ActiveAccounts = resolve(base, cfg.Paths.ActiveAccounts)
	cfg.Paths.SessionTimes = resolve(base, cfg.Paths.SessionTimes)
	cfg.Browser.ProfileRoot = resolve(base, cfg.Browser.ProfileRoot)

	return cfg, nil
}

func resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	for name, raw := range map[string]string{
		"platform.base_url":      c.Platform.BaseURL,
		"platform.login_url":     c.Platform.LoginURL,
		"platform.exercises_url": c.Platform.ExercisesURL,
	} {
		if raw == "" {
			return fmt.Errorf("%s is required", name)
		}
		if u, err := url.Parse(raw); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s is not an absolute URL: %q", name, raw)
		}
	}

	if c.Limits.MaxBrowsers < 1 {
		return fmt.Errorf("limits.max_browsers must be at least 1, got %d", c.Limits.MaxBrowsers)
	}
	if c.Limits.MaxSolves < 1 {
		return fmt.Errorf("limits.max_solves must be at least 1, got %d", c.Limits.MaxSolves)
	}

	if c.Limits.MaxRestarts < 0 {
		return fmt.Errorf("limits.max_restarts cannot be negative")
	}

	if c.Browser.ProfileRoot == "" {
		return fmt.Errorf("browser.profile_root is required")
	}
	if c.Browser.Timeout < 0 || c.Browser.SlowMo < 0 {
		return fmt.Errorf("browser timeouts cannot be negative")
	}

	if c.Paths.Accounts == "" {
		return fmt.Errorf("paths.accounts is required")
	}
	if c.LLM.RequestsPerMinute < 0 {
		return fmt.Errorf("llm.requests_per_minute cannot be negative")
	}

	if c.Timing.NextRetries < 1 {
		return fmt.Errorf("timing.next_retries must be at least 1")
	}
	if c.Timing.ThinkMin < 0 || c.Timing.ThinkMax < c.Timing.ThinkMin {
		return fmt.Errorf("timing.think_min must be >= 0 and <= timing.think_max")
	}
	if c.Timing.ReportInterval <= 0 {
		return fmt.Errorf("timing.report_interval must be positive")
	}

	if c.Popup.MaxIterations < 1 || c.Popup.MaxDuration <= 0 {
		return fmt.Errorf("popup caps must be positive")
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s (must be 'debug', 'info', 'warn', or 'error')", c.Logging.Level)
	}

	return c.Selectors.Validate()
}
