// Package extractor turns a fetched page into a FetchedDocument.
package extractor

import (
	"errors"
	"fmt"

	"github.com/dtnitsch/postgrab/models"
)

// Extractor pulls title, date and body text out of a raw page.
type Extractor interface {
	Extract(page *models.RawPage) (*models.FetchedDocument, error)
}

// ErrEmptyDocument is wrapped when a page yields neither a title nor a body.
var ErrEmptyDocument = errors.New("no title or body found")

// ExtractionError reports that a page could not be turned into a document.
type ExtractionError struct {
	URL string
	Err error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("failed to extract %s: %v", e.URL, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// sourceURL prefers the post-redirect URL.
func sourceURL(page *models.RawPage) string {
	if page.FinalURL != "" {
		return page.FinalURL
	}
	return page.URL
}

// Chain tries each extractor in order. The first document with a body wins;
// failing that, the first document with only a title.
type Chain []Extractor

// Extract implements Extractor.
func (c Chain) Extract(page *models.RawPage) (*models.FetchedDocument, error) {
	var partial *models.FetchedDocument
	var lastErr error

	for _, ex := range c {
		doc, err := ex.Extract(page)
		if err != nil {
			lastErr = err
			continue
		}
		if doc.Body != "" {
			if doc.Title == "" && partial != nil {
				doc.Title = partial.Title
			}
			return doc, nil
		}
		if partial == nil {
			partial = doc
		}
	}

	if partial != nil {
		return partial, nil
	}
	if lastErr == nil {
		lastErr = &ExtractionError{URL: sourceURL(page), Err: ErrEmptyDocument}
	}
	return nil, lastErr
}
