// Package models defines data structures for configuration, work items and documents.
package models

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DedupPolicy selects which signal decides that an item was already fetched.
type DedupPolicy string

const (
	// DedupArtifact trusts the output file only.
	DedupArtifact DedupPolicy = "artifact"
	// DedupStatus trusts the status column only.
	DedupStatus DedupPolicy = "status"
	// DedupEither skips when either signal says done.
	DedupEither DedupPolicy = "either"
)

// Config holds runtime configuration for a fetch run.
// Values come from an optional YAML file, then CLI flags override them.
type Config struct {
	Input     string `yaml:"input"`
	OutputDir string `yaml:"output_dir"`
	Extension string `yaml:"extension"`

	DelayMin  time.Duration `yaml:"delay_min"`
	DelayMax  time.Duration `yaml:"delay_max"`
	DwellMin  time.Duration `yaml:"dwell_min"`
	DwellMax  time.Duration `yaml:"dwell_max"`
	Retries   int           `yaml:"retries"`
	RetryBase time.Duration `yaml:"retry_base"`
	Timeout   time.Duration `yaml:"timeout"`
	MaxItems  int           `yaml:"max_items"`

	SlugLength int         `yaml:"slug_length"`
	Dedup      DedupPolicy `yaml:"dedup"`

	UserAgent string            `yaml:"user_agent"`
	Headers   map[string]string `yaml:"headers"`
	Proxy     string            `yaml:"proxy"`

	CacheDir string        `yaml:"cache_dir"`
	CacheTTL time.Duration `yaml:"cache_ttl"`

	TemplatePath string `yaml:"template_path"`
	DateLabel    string `yaml:"date_label"`

	Languages []string `yaml:"languages"`

	DBPath    string `yaml:"db_path"`
	NoHistory bool   `yaml:"no_history"`

	LogFile  string `yaml:"log_file"`
	LogLevel string `yaml:"log_level"`
}

// DefaultUserAgent mirrors a desktop browser.
const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36"

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		Input:      "posts.csv",
		OutputDir:  "articles",
		Extension:  "md",
		DelayMin:   2 * time.Second,
		DelayMax:   5 * time.Second,
		Retries:    3,
		RetryBase:  5 * time.Second,
		Timeout:    30 * time.Second,
		SlugLength: 20,
		Dedup:      DedupArtifact,
		UserAgent:  DefaultUserAgent,
		Headers: map[string]string{
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
			"Accept-Language": "en-US,en;q=0.5",
			"Connection":      "keep-alive",
		},
		CacheTTL:  24 * time.Hour,
		DateLabel: "Published",
		Languages: []string{"english", "chinese"},
		DBPath:    "postgrab.db",
		LogLevel:  "info",
	}
}

// LoadConfig reads a YAML config file on top of the defaults.
// A missing file is not an error when optional is true.
func LoadConfig(path string, optional bool) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Input == "" {
		return errors.New("input path is required")
	}
	if c.OutputDir == "" {
		return errors.New("output directory is required")
	}
	if c.DelayMin < 0 || c.DelayMax < c.DelayMin {
		return fmt.Errorf("invalid delay range %s-%s", c.DelayMin, c.DelayMax)
	}
	if c.DwellMin < 0 || c.DwellMax < c.DwellMin {
		return fmt.Errorf("invalid dwell range %s-%s", c.DwellMin, c.DwellMax)
	}
	if c.Retries < 1 {
		return fmt.Errorf("retries must be at least 1, got %d", c.Retries)
	}
	if c.RetryBase < 0 {
		return fmt.Errorf("retry base must not be negative, got %s", c.RetryBase)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if c.MaxItems < 0 {
		return fmt.Errorf("max items must not be negative, got %d", c.MaxItems)
	}
	if c.SlugLength < 1 {
		return fmt.Errorf("slug length must be at least 1, got %d", c.SlugLength)
	}
	switch c.Dedup {
	case DedupArtifact, DedupStatus, DedupEither:
	default:
		return fmt.Errorf("unknown dedup policy %q", c.Dedup)
	}
	return nil
}
