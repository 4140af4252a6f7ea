package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	historycmd "github.com/dtnitsch/postgrab/internal/db"
	"github.com/dtnitsch/postgrab/internal/fetch"
	"github.com/urfave/cli/v2"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(fetch.ExitFatal)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "postgrab",
		Usage: "Fetch every article in a CSV list into local Markdown files, resuming where the last run stopped",
		Commands: []*cli.Command{
			{
				Name:   "fetch",
				Usage:  "Fetch pending articles from the input list",
				Flags:  fetch.Flags(),
				Action: fetch.FetchAction,
			},
			{
				Name:  "history",
				Usage: "Inspect previous runs recorded in the history database",
				Subcommands: []*cli.Command{
					{
						Name:   "runs",
						Usage:  "List recent runs",
						Flags:  historycmd.Flags(),
						Action: historycmd.RunsAction,
					},
					{
						Name:      "attempts",
						Usage:     "Show every fetch attempt of a run (latest run by default)",
						ArgsUsage: "[run-id]",
						Flags:     historycmd.Flags(),
						Action:    historycmd.AttemptsAction,
					},
					{
						Name:   "failed",
						Usage:  "List URLs whose latest attempt failed",
						Flags:  historycmd.Flags(),
						Action: historycmd.FailedAction,
					},
				},
			},
		},
	}
}
