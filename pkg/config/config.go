// Package config holds DeepDiver's YAML configuration and resolves it from
// the user file, the project file and the environment.
package config

import (
	"fmt"
	"time"

	"github.com/entrhq/deepdiver/pkg/content"
	"github.com/entrhq/deepdiver/pkg/jobs"
	"github.com/entrhq/deepdiver/pkg/podcast"
)

// Config represents the complete DeepDiver configuration.
type Config struct {
	Browser    BrowserConfig    `yaml:"browser"`
	Generation GenerationConfig `yaml:"generation"`
	Locators   LocatorConfig    `yaml:"locators"`
	Sessions   SessionConfig    `yaml:"sessions"`
	Content    ContentConfig    `yaml:"content"`
	Podcasts   PodcastConfig    `yaml:"podcasts"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// BrowserConfig controls how the remote browser is reached and driven.
type BrowserConfig struct {
	CDPURL            string        `yaml:"cdp_url"`
	BaseURL           string        `yaml:"base_url"`
	ConnectTimeout    time.Duration `yaml:"connect_timeout"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout"`
	StepTimeout       time.Duration `yaml:"step_timeout"`
	InstallDriver     bool          `yaml:"install_driver"`
	DownloadDir       string        `yaml:"download_dir"`
}

// GenerationConfig controls job monitoring. Budgets and Defaults are keyed
// by job kind; Defaults values are the kind's parameter settings.
type GenerationConfig struct {
	PollInterval time.Duration                `yaml:"poll_interval"`
	Budgets      map[string]time.Duration     `yaml:"budgets"`
	Defaults     map[string]map[string]string `yaml:"defaults"`
}

// LocatorConfig points at an optional catalog overriding the built-in one.
type LocatorConfig struct {
	Catalog string        `yaml:"catalog"`
	Backoff time.Duration `yaml:"backoff"`
}

// Session store backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// SessionConfig controls where sessions and artifact records are kept.
type SessionConfig struct {
	Dir        string        `yaml:"dir"`
	Backend    string        `yaml:"backend"`
	SQLitePath string        `yaml:"sqlite_path"`
	MaxAge     time.Duration `yaml:"max_age"`
	Keep       int           `yaml:"keep"`
}

// ContentConfig controls document checks before upload.
type ContentConfig struct {
	Formats     []string `yaml:"formats"`
	MaxFileSize string   `yaml:"max_file_size"`
	TempDir     string   `yaml:"temp_dir"`
}

// PodcastConfig controls the library of downloaded audio overviews.
// NamingPattern may use {title}, {timestamp}, {date} and {time}.
type PodcastConfig struct {
	Dir           string        `yaml:"dir"`
	NamingPattern string        `yaml:"naming_pattern"`
	MaxAge        time.Duration `yaml:"max_age"`
}

// MetricsConfig names the Prometheus textfile written after each command.
// Empty disables it.
type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

type LoggingConfig struct {
	Debug bool `yaml:"debug"`
}

// DefaultConfig returns a configuration suitable for a local Chrome on the
// default debugging port.
func DefaultConfig() *Config {
	return &Config{
		Browser: BrowserConfig{
			BaseURL:           "https://notebooklm.google.com",
			ConnectTimeout:    10 * time.Second,
			NavigationTimeout: 30 * time.Second,
			StepTimeout:       10 * time.Second,
			DownloadDir:       "./output/downloads",
		},
		Generation: GenerationConfig{
			PollInterval: 5 * time.Second,
			Budgets:      map[string]time.Duration{},
			Defaults:     map[string]map[string]string{},
		},
		Locators: LocatorConfig{
			Backoff: 250 * time.Millisecond,
		},
		Sessions: SessionConfig{
			Dir:     "./sessions",
			Backend: BackendFile,
			MaxAge:  30 * 24 * time.Hour,
			Keep:    10,
		},
		Content: ContentConfig{
			Formats:     append([]string(nil), content.DefaultFormats...),
			MaxFileSize: content.DefaultMaxSize,
			TempDir:     "./temp",
		},
		Podcasts: PodcastConfig{
			Dir:           "./output/podcasts",
			NamingPattern: podcast.DefaultPattern,
			MaxAge:        30 * 24 * time.Hour,
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Browser.BaseURL == "" {
		return fmt.Errorf("browser.base_url is required")
	}
	if c.Browser.ConnectTimeout <= 0 {
		return fmt.Errorf("browser.connect_timeout must be positive")
	}
	if c.Browser.NavigationTimeout <= 0 {
		return fmt.Errorf("browser.navigation_timeout must be positive")
	}
	if c.Browser.StepTimeout <= 0 {
		return fmt.Errorf("browser.step_timeout must be positive")
	}

	if c.Generation.PollInterval <= 0 {
		return fmt.Errorf("generation.poll_interval must be positive")
	}
	for name, budget := range c.Generation.Budgets {
		if _, err := jobs.ParseKind(name); err != nil {
			return fmt.Errorf("generation.budgets: %w", err)
		}
		if budget <= 0 {
			return fmt.Errorf("generation.budgets.%s must be positive", name)
		}
	}
	for name, settings := range c.Generation.Defaults {
		kind, err := jobs.ParseKind(name)
		if err != nil {
			return fmt.Errorf("generation.defaults: %w", err)
		}
		if _, err := jobs.ParamsFromSettings(kind, settings); err != nil {
			return fmt.Errorf("generation.defaults.%s: %w", name, err)
		}
	}

	switch c.Sessions.Backend {
	case BackendFile:
	case BackendSQLite:
		if c.Sessions.SQLitePath == "" {
			return fmt.Errorf("sessions.sqlite_path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("invalid sessions.backend: %s (must be 'file' or 'sqlite')", c.Sessions.Backend)
	}
	if c.Sessions.Dir == "" {
		return fmt.Errorf("sessions.dir is required")
	}
	if c.Sessions.Keep < 0 {
		return fmt.Errorf("sessions.keep cannot be negative")
	}

	if _, err := content.ParseSize(c.Content.MaxFileSize); err != nil {
		return fmt.Errorf("content.max_file_size: %w", err)
	}

	if c.Podcasts.Dir == "" {
		return fmt.Errorf("podcasts.dir is required")
	}
	if err := podcast.ValidatePattern(c.Podcasts.NamingPattern); err != nil {
		return fmt.Errorf("podcasts.naming_pattern: %w", err)
	}
	if c.Podcasts.MaxAge < 0 {
		return fmt.Errorf("podcasts.max_age cannot be negative")
	}
	return nil
}

// JobBudgets returns the per-kind budgets with configured values layered
// over jobs.DefaultBudgets.
func (c *Config) JobBudgets() map[jobs.Kind]time.Duration {
	out := make(map[jobs.Kind]time.Duration, len(jobs.DefaultBudgets))
	for k, v := range jobs.DefaultBudgets {
		out[k] = v
	}
	for name, v := range c.Generation.Budgets {
		if k, err := jobs.ParseKind(name); err == nil {
			out[k] = v
		}
	}
	return out
}

// JobParams builds parameters for kind from the configured defaults with
// override applied on top.
func (c *Config) JobParams(kind jobs.Kind, override map[string]string) (jobs.Params, error) {
	return jobs.ParamsFromSettings(kind, jobs.MergeSettings(c.Generation.Defaults[string(kind)], override))
}
