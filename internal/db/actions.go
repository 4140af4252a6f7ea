// Package db holds the history subcommands over the run database.
package db

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli/v2"
)

// RunsAction lists recent runs, newest first.
func RunsAction(c *cli.Context) error {
	database, err := openDB(c)
	if err != nil {
		return err
	}
	defer database.Close()

	runs, err := database.ListRuns(c.Int("limit"))
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Fprintln(c.App.Writer, "No runs found")
		return nil
	}

	t := newTable(c, "")
	t.AppendHeader(table.Row{"Run", "Started", "State", "Total", "Completed", "Failed", "Skipped", "Written", "Input"})
	for _, r := range runs {
		t.AppendRow(table.Row{
			r.RunID,
			r.StartedAt.Local().Format(timeLayout),
			r.State,
			r.Total,
			r.Completed,
			r.Failed,
			r.Skipped,
			humanize.Bytes(uint64(r.BytesWritten)),
			r.InputPath,
		})
	}
	t.Render()

	fmt.Fprintf(c.App.Writer, "\nTotal: %d runs\n", len(runs))
	fmt.Fprintln(c.App.Writer, "Tip: Use 'postgrab history attempts <run>' to see each fetch attempt")
	return nil
}

// AttemptsAction shows every fetch attempt of one run.
func AttemptsAction(c *cli.Context) error {
	database, err := openDB(c)
	if err != nil {
		return err
	}
	defer database.Close()

	runID, err := GetRunIDOrLatest(c, database)
	if err != nil {
		return err
	}

	run, err := database.GetRun(runID)
	if err != nil {
		return fmt.Errorf("failed to get run: %w", err)
	}

	accesses, err := database.ListAccesses(runID)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "Run %s (%s), started %s\n", run.RunID, run.State, humanize.Time(run.StartedAt))
	if len(accesses) == 0 {
		fmt.Fprintln(c.App.Writer, "No fetch attempts recorded")
		return nil
	}

	t := newTable(c, "")
	t.AppendHeader(table.Row{"#", "URL", "Attempt", "Status", "Result", "Duration", "Cache"})
	for i, a := range accesses {
		result := "ok"
		if !a.Success {
			result = a.ErrorType
		}
		cache := ""
		if a.FromCache {
			cache = "hit"
		}
		t.AppendRow(table.Row{i + 1, truncate(a.URL, 60), a.Attempt, a.StatusCode, result, a.Duration, cache})
	}
	t.Render()
	return nil
}

// FailedAction lists URLs whose latest attempt failed and that have no article yet.
func FailedAction(c *cli.Context) error {
	database, err := openDB(c)
	if err != nil {
		return err
	}
	defer database.Close()

	failed, err := database.ListFailedURLs(c.Int("limit"))
	if err != nil {
		return err
	}
	if len(failed) == 0 {
		fmt.Fprintln(c.App.Writer, "No failed URLs")
		return nil
	}

	t := newTable(c, "Failed URLs")
	t.AppendHeader(table.Row{"URL", "Last attempt", "Error", "Message"})
	for _, f := range failed {
		t.AppendRow(table.Row{
			truncate(f.URL, 60),
			f.LastAttempt.Local().Format(timeLayout),
			f.ErrorType,
			truncate(f.ErrorMessage, 60),
		})
	}
	t.Render()
	return nil
}
