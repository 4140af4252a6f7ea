package fetch

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/dtnitsch/postgrab/internal/logging"
	"github.com/dtnitsch/postgrab/pkg/fetcher"
	"github.com/urfave/cli/v2"
)

// Exit codes of the fetch command.
const (
	ExitOK       = 0
	ExitFailures = 1
	ExitFatal    = 2
)

// FetchAction runs one pass over the work-item list and prints the summary.
func FetchAction(c *cli.Context) error {
	cfg, err := LoadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), ExitFatal)
	}

	logLevel, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return cli.Exit(err.Error(), ExitFatal)
	}
	if c.Bool("quiet") {
		logLevel = slog.LevelError
	}
	logger, closeLog := logging.Setup(cfg.LogFile, logLevel)
	defer func() { _ = closeLog() }()

	driver, cleanup, err := Build(cfg, logger)
	if err != nil {
		logger.Error("failed to set up run", "error", err)
		return cli.Exit(err.Error(), ExitFatal)
	}
	defer cleanup()

	summary, runErr := driver.Run(c.Context)
	if summary != nil {
		if err := WriteSummary(c.App.Writer, summary, c.String("format")); err != nil {
			logger.Error("failed to write summary", "error", err)
		}
	}

	if runErr != nil {
		var initErr *fetcher.SessionInitError
		if errors.As(runErr, &initErr) {
			return cli.Exit(fmt.Sprintf("aborted: %v", runErr), ExitFatal)
		}
		return cli.Exit(runErr.Error(), ExitFatal)
	}
	if summary.HasFailures() {
		return cli.Exit("", ExitFailures)
	}
	return nil
}
