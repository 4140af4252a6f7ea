package models

import (
	"strings"
	"time"
)

// RawPage is what a fetch session hands to an extractor.
type RawPage struct {
	URL         string    `json:"url"`
	FinalURL    string    `json:"final_url,omitempty"`
	StatusCode  int       `json:"status_code"`
	ContentType string    `json:"content_type,omitempty"`
	Body        []byte    `json:"-"`
	FetchedAt   time.Time `json:"fetched_at"`
	FromCache   bool      `json:"from_cache,omitempty"`
}

// FetchedDocument is the structured content of one article.
type FetchedDocument struct {
	Title     string `json:"title"`
	Date      string `json:"date"`
	Body      string `json:"body"`
	SourceURL string `json:"source_url"`
	Language  string `json:"language,omitempty"`
}

// JoinParagraphs trims paragraphs, drops empty ones and joins the rest with a blank line.
func JoinParagraphs(paragraphs []string) string {
	kept := make([]string, 0, len(paragraphs))
	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n\n")
}

// IsEmpty reports whether the document carries neither a title nor a body.
func (d *FetchedDocument) IsEmpty() bool {
	return strings.TrimSpace(d.Title) == "" && strings.TrimSpace(d.Body) == ""
}
