package fetch

import (
	"github.com/urfave/cli/v2"
)

// DefaultConfigPath is read when --config is not given. Its absence is fine.
const DefaultConfigPath = "postgrab.yaml"

// Flags returns the flags of the fetch command. Flags override the config file
// only when set explicitly.
func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Value: DefaultConfigPath, Usage: "YAML config file"},
		&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Usage: "work-item CSV (default posts.csv)"},
		&cli.StringFlag{Name: "output-dir", Aliases: []string{"o"}, Usage: "directory for saved articles (default articles)"},
		&cli.StringFlag{Name: "extension", Usage: "artifact file extension (default md)"},
		&cli.DurationFlag{Name: "delay-min", Usage: "minimum pause between fetches (default 2s)"},
		&cli.DurationFlag{Name: "delay-max", Usage: "maximum pause between fetches (default 5s)"},
		&cli.IntFlag{Name: "retries", Usage: "attempts per item, including the first (default 3)"},
		&cli.DurationFlag{Name: "retry-base", Usage: "backoff unit; the n-th retry waits n times this (default 5s)"},
		&cli.DurationFlag{Name: "timeout", Usage: "per-request timeout (default 30s)"},
		&cli.IntFlag{Name: "max-items", Usage: "stop after this many fetches (0 = no limit)"},
		&cli.IntFlag{Name: "slug-length", Usage: "title runes used for file names (default 20)"},
		&cli.StringFlag{Name: "dedup", Usage: "what marks an item done: artifact, status or either (default artifact)"},
		&cli.StringFlag{Name: "proxy", Usage: "HTTP proxy URL"},
		&cli.StringFlag{Name: "cache-dir", Usage: "cache raw pages in this directory"},
		&cli.StringFlag{Name: "template", Usage: "text/template file for artifacts"},
		&cli.StringFlag{Name: "db", Usage: "history database path (default postgrab.db)"},
		&cli.BoolFlag{Name: "no-history", Usage: "do not record the run in the history database"},
		&cli.StringFlag{Name: "log-file", Usage: "also write JSON logs to this file"},
		&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error"},
		&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: "table", Usage: "summary format: table, yaml or json"},
		&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "only log errors"},
	}
}
