package pipeline

import (
	"fmt"
	"time"
)

// Summary reports the outcome of one run.
type Summary struct {
	RunID     string `json:"run_id" yaml:"run_id"`
	Input     string `json:"input" yaml:"input"`
	OutputDir string `json:"output_dir" yaml:"output_dir"`

	Total     int `json:"total" yaml:"total"`
	Completed int `json:"completed" yaml:"completed"`
	Failed    int `json:"failed" yaml:"failed"`
	Skipped   int `json:"skipped" yaml:"skipped"`
	// Remaining counts items this run never reached.
	Remaining int `json:"remaining" yaml:"remaining"`

	BytesWritten int64         `json:"bytes_written" yaml:"bytes_written"`
	StartedAt    time.Time     `json:"started_at" yaml:"started_at"`
	Duration     time.Duration `json:"duration" yaml:"duration"`
	Cancelled    bool          `json:"cancelled,omitempty" yaml:"cancelled,omitempty"`

	Failures []Failure `json:"failures,omitempty" yaml:"failures,omitempty"`
}

// Failure describes one item that ended failed.
type Failure struct {
	Title     string `json:"title" yaml:"title"`
	URL       string `json:"url" yaml:"url"`
	ErrorType string `json:"error_type" yaml:"error_type"`
	Error     string `json:"error" yaml:"error"`
}

// HasFailures reports whether any item failed.
func (s *Summary) HasFailures() bool {
	return s.Failed > 0
}

// String renders the summary as a single log-friendly line.
func (s *Summary) String() string {
	return fmt.Sprintf("total=%d completed=%d failed=%d skipped=%d remaining=%d",
		s.Total, s.Completed, s.Failed, s.Skipped, s.Remaining)
}
