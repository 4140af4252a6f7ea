package fetch

import (
	"fmt"

	"github.com/dtnitsch/postgrab/models"
	"github.com/urfave/cli/v2"
)

// LoadConfig reads the config file named by --config and applies any flags
// that were set on the command line.
func LoadConfig(c *cli.Context) (models.Config, error) {
	// the default path is optional, an explicit one is not
	cfg, err := models.LoadConfig(c.String("config"), !c.IsSet("config"))
	if err != nil {
		return cfg, err
	}

	if c.IsSet("input") {
		cfg.Input = c.String("input")
	}
	if c.IsSet("output-dir") {
		cfg.OutputDir = c.String("output-dir")
	}
	if c.IsSet("extension") {
		cfg.Extension = c.String("extension")
	}
	if c.IsSet("delay-min") {
		cfg.DelayMin = c.Duration("delay-min")
	}
	if c.IsSet("delay-max") {
		cfg.DelayMax = c.Duration("delay-max")
	}
	if c.IsSet("retries") {
		cfg.Retries = c.Int("retries")
	}
	if c.IsSet("retry-base") {
		cfg.RetryBase = c.Duration("retry-base")
	}
	if c.IsSet("timeout") {
		cfg.Timeout = c.Duration("timeout")
	}
	if c.IsSet("max-items") {
		cfg.MaxItems = c.Int("max-items")
	}
	if c.IsSet("slug-length") {
		cfg.SlugLength = c.Int("slug-length")
	}
	if c.IsSet("dedup") {
		cfg.Dedup = models.DedupPolicy(c.String("dedup"))
	}
	if c.IsSet("proxy") {
		cfg.Proxy = c.String("proxy")
	}
	if c.IsSet("cache-dir") {
		cfg.CacheDir = c.String("cache-dir")
	}
	if c.IsSet("template") {
		cfg.TemplatePath = c.String("template")
	}
	if c.IsSet("db") {
		cfg.DBPath = c.String("db")
	}
	if c.IsSet("no-history") {
		cfg.NoHistory = c.Bool("no-history")
	}
	if c.IsSet("log-file") {
		cfg.LogFile = c.String("log-file")
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
