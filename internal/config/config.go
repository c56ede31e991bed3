// Package config handles application configuration from a YAML file.
package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Feed is one configured feed source.
type Feed struct {
	URL   string `yaml:"url"`
	Label string `yaml:"label"`
}

// Config holds the application configuration.
type Config struct {
	Name         string
	OutputDir    string
	DatabasePath string
	LogLevel     string
	DateFormat   string

	ItemsPerPage int
	MaxPages     int
	MaxEntries   int

	ActivityThresholdDays int

	FetchTimeout         time.Duration
	RunTimeout           time.Duration
	MaxConcurrentFetches int

	Feeds []Feed
}

// rawConfig mirrors the YAML document; durations come in as strings.
type rawConfig struct {
	Name                  string `yaml:"name"`
	OutputDir             string `yaml:"output_dir"`
	DatabasePath          string `yaml:"database_path"`
	LogLevel              string `yaml:"log_level"`
	DateFormat            string `yaml:"date_format"`
	ItemsPerPage          *int   `yaml:"items_per_page"`
	MaxPages              *int   `yaml:"max_pages"`
	MaxEntries            *int   `yaml:"max_entries"`
	ActivityThresholdDays *int   `yaml:"activity_threshold_days"`
	FetchTimeout          string `yaml:"fetch_timeout"`
	RunTimeout            string `yaml:"run_timeout"`
	MaxConcurrentFetches  *int   `yaml:"max_concurrent_fetches"`
	Feeds                 []Feed `yaml:"feeds"`
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the operator
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg := &Config{
		Name:                  stringOr(raw.Name, "Planet"),
		OutputDir:             stringOr(raw.OutputDir, "./output"),
		DatabasePath:          stringOr(raw.DatabasePath, "./data/planet.db"),
		LogLevel:              stringOr(raw.LogLevel, "info"),
		DateFormat:            stringOr(raw.DateFormat, "January 2, 2006 3:04 PM MST"),
		ItemsPerPage:          intOr(raw.ItemsPerPage, 25),
		MaxPages:              intOr(raw.MaxPages, 10),
		MaxEntries:            intOr(raw.MaxEntries, 0),
		ActivityThresholdDays: intOr(raw.ActivityThresholdDays, 30),
		MaxConcurrentFetches:  intOr(raw.MaxConcurrentFetches, 8),
		Feeds:                 raw.Feeds,
	}

	if cfg.FetchTimeout, err = durationOr(raw.FetchTimeout, 30*time.Second); err != nil {
		return nil, fmt.Errorf("fetch_timeout: %w", err)
	}
	if cfg.RunTimeout, err = durationOr(raw.RunTimeout, 5*time.Minute); err != nil {
		return nil, fmt.Errorf("run_timeout: %w", err)
	}

	for i := range cfg.Feeds {
		if cfg.Feeds[i].Label == "" {
			cfg.Feeds[i].Label = cfg.Feeds[i].URL
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.ItemsPerPage <= 0 {
		return fmt.Errorf("items_per_page must be positive, got %d", c.ItemsPerPage)
	}
	if c.MaxPages <= 0 {
		return fmt.Errorf("max_pages must be positive, got %d", c.MaxPages)
	}
	if c.MaxEntries < 0 {
		return fmt.Errorf("max_entries must not be negative, got %d", c.MaxEntries)
	}
	if c.ActivityThresholdDays <= 0 {
		return fmt.Errorf("activity_threshold_days must be positive, got %d", c.ActivityThresholdDays)
	}
	if c.MaxConcurrentFetches <= 0 {
		return fmt.Errorf("max_concurrent_fetches must be positive, got %d", c.MaxConcurrentFetches)
	}
	if len(c.Feeds) == 0 {
		return fmt.Errorf("no feeds configured")
	}
	seen := make(map[string]bool, len(c.Feeds))
	for _, f := range c.Feeds {
		u, err := url.Parse(f.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid feed URL %q", f.URL)
		}
		if seen[f.URL] {
			return fmt.Errorf("duplicate feed URL %q", f.URL)
		}
		seen[f.URL] = true
	}
	return nil
}

// ActivityThreshold returns the inactivity window as a duration.
func (c *Config) ActivityThreshold() time.Duration {
	return time.Duration(c.ActivityThresholdDays) * 24 * time.Hour
}

func stringOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func durationOr(v string, def time.Duration) (time.Duration, error) {
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", v)
	}
	return d, nil
}
