package db

import (
	"fmt"

	dbpkg "github.com/dtnitsch/postgrab/pkg/db"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli/v2"
)

const timeLayout = "2006-01-02 15:04:05"

// Flags are shared by every history subcommand.
func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "db",
			Usage: "Path to the history database",
			Value: dbpkg.DefaultDBName,
		},
		&cli.IntFlag{
			Name:  "limit",
			Usage: "Maximum number of rows to show (0 for all)",
			Value: 20,
		},
	}
}

func openDB(c *cli.Context) (*dbpkg.DB, error) {
	database, err := dbpkg.Open(c.String("db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return database, nil
}

// GetRunIDOrLatest returns the run ID from args, or the latest run if not provided.
func GetRunIDOrLatest(c *cli.Context, database *dbpkg.DB) (string, error) {
	if c.NArg() > 0 {
		return c.Args().First(), nil
	}

	runs, err := database.ListRuns(1)
	if err != nil {
		return "", fmt.Errorf("failed to get latest run: %w", err)
	}
	if len(runs) == 0 {
		return "", fmt.Errorf("no runs found. Run 'postgrab fetch' first")
	}
	return runs[0].RunID, nil
}

func newTable(c *cli.Context, title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(c.App.Writer)
	t.SetStyle(table.StyleRounded)
	if title != "" {
		t.SetTitle(title)
	}
	return t
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
