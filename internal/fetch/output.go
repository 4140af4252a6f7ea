package fetch

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dtnitsch/postgrab/internal/pipeline"
	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"gopkg.in/yaml.v3"
)

// WriteSummary renders summary to w as a table, YAML or JSON.
func WriteSummary(w io.Writer, summary *pipeline.Summary, format string) error {
	switch format {
	case "", "table":
		writeTable(w, summary)
		return nil
	case "yaml":
		data, err := yaml.Marshal(summary)
		if err != nil {
			return fmt.Errorf("failed to marshal summary: %w", err)
		}
		_, err = w.Write(data)
		return err
	case "json":
		data, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal summary: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}
	return fmt.Errorf("unknown output format %q (use: table, yaml or json)", format)
}

func writeTable(w io.Writer, s *pipeline.Summary) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.SetTitle("Run " + s.RunID)
	t.AppendHeader(table.Row{"Total", "Completed", "Failed", "Skipped", "Remaining", "Written", "Duration"})
	t.AppendRow(table.Row{
		s.Total,
		s.Completed,
		s.Failed,
		s.Skipped,
		s.Remaining,
		humanize.Bytes(uint64(s.BytesWritten)),
		s.Duration.Round(time.Millisecond),
	})
	t.Render()

	if s.Cancelled {
		fmt.Fprintln(w, "Run was cancelled; re-run to continue where it stopped.")
	}

	if len(s.Failures) == 0 {
		return
	}
	ft := table.NewWriter()
	ft.SetOutputMirror(w)
	ft.SetStyle(table.StyleRounded)
	ft.SetTitle("Failed items")
	ft.AppendHeader(table.Row{"#", "Title", "URL", "Error"})
	for i, f := range s.Failures {
		ft.AppendRow(table.Row{i + 1, f.Title, f.URL, f.ErrorType})
	}
	ft.Render()
}
