package models

import (
	"fmt"
	"strings"
)

// Status is the processing state of a single work item.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// ParseStatus maps a status cell to a Status. Empty cells are pending.
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "pending":
		return StatusPending, nil
	case "completed":
		return StatusCompleted, nil
	case "failed":
		return StatusFailed, nil
	case "skipped":
		return StatusSkipped, nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

func (s Status) String() string {
	return string(s)
}

// IsTerminal reports whether the status ends processing for the current run.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusSkipped
}

// Well-known column names of the work-item table.
const (
	ColumnTitle    = "title"
	ColumnSummary  = "summary"
	ColumnDate     = "date"
	ColumnURL      = "url"
	ColumnCategory = "category"
	ColumnStatus   = "status"
)

// WorkItem is one article to fetch.
type WorkItem struct {
	Title    string
	Summary  string
	Date     string
	URL      string
	Category string
	Status   Status

	// Extra holds the cells of columns the pipeline does not interpret, by their
	// position in the list header. Interpreted positions stay empty.
	Extra []string
}

// Field returns the value of an interpreted column by its normalized name.
func (w *WorkItem) Field(column string) string {
	switch column {
	case ColumnTitle:
		return w.Title
	case ColumnSummary:
		return w.Summary
	case ColumnDate:
		return w.Date
	case ColumnURL:
		return w.URL
	case ColumnCategory:
		return w.Category
	case ColumnStatus:
		return w.Status.String()
	}
	return ""
}

// SetField assigns an interpreted column. Status is not settable through here.
func (w *WorkItem) SetField(column, value string) {
	switch column {
	case ColumnTitle:
		w.Title = value
	case ColumnSummary:
		w.Summary = value
	case ColumnDate:
		w.Date = value
	case ColumnURL:
		w.URL = value
	case ColumnCategory:
		w.Category = value
	}
}

// ExtraAt returns the carried-through cell at header position i, or "".
func (w *WorkItem) ExtraAt(i int) string {
	if i < 0 || i >= len(w.Extra) {
		return ""
	}
	return w.Extra[i]
}

// SetExtra stores a carried-through cell at header position i.
func (w *WorkItem) SetExtra(i int, value string) {
	if i >= len(w.Extra) {
		w.Extra = append(w.Extra, make([]string, i+1-len(w.Extra))...)
	}
	w.Extra[i] = value
}

// Columns maps each header position to the interpreted column it holds, or ""
// for a column carried through untouched. Names match ignoring case and
// surrounding space; only the first column with a given name is interpreted.
func Columns(header []string) []string {
	out := make([]string, len(header))
	seen := make(map[string]bool, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(h))
		switch name {
		case ColumnTitle, ColumnSummary, ColumnDate, ColumnURL, ColumnCategory, ColumnStatus:
			if !seen[name] {
				out[i] = name
				seen[name] = true
			}
		}
	}
	return out
}

// WorkItemList is the ordered list of items plus the header it was read with,
// kept verbatim so a save reproduces it.
// Insertion order is processing order.
type WorkItemList struct {
	Header []string
	Items  []*WorkItem
}

// Len returns the number of items.
func (l *WorkItemList) Len() int {
	return len(l.Items)
}

// Counts tallies items by status.
func (l *WorkItemList) Counts() map[Status]int {
	counts := make(map[Status]int, 4)
	for _, item := range l.Items {
		counts[item.Status]++
	}
	return counts
}
