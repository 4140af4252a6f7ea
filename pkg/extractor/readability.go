package extractor

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/dtnitsch/postgrab/models"
	"github.com/go-shiori/go-readability"
)

// ReadabilityExtractor finds the main content with go-readability and renders
// it as markdown. Used when the page does not follow the expected layout.
type ReadabilityExtractor struct {
	converter *md.Converter
}

func NewReadabilityExtractor() *ReadabilityExtractor {
	return &ReadabilityExtractor{converter: md.NewConverter("", true, nil)}
}

// Extract implements Extractor.
func (r *ReadabilityExtractor) Extract(page *models.RawPage) (*models.FetchedDocument, error) {
	src := sourceURL(page)

	parsedURL, err := url.Parse(src)
	if err != nil {
		return nil, &ExtractionError{URL: src, Err: fmt.Errorf("invalid page url: %w", err)}
	}

	parser := readability.NewParser()
	article, err := parser.Parse(bytes.NewReader(page.Body), parsedURL)
	if err != nil {
		return nil, &ExtractionError{URL: src, Err: err}
	}

	body, err := r.converter.ConvertString(article.Content)
	if err != nil {
		return nil, &ExtractionError{URL: src, Err: fmt.Errorf("failed to convert content: %w", err)}
	}

	out := &models.FetchedDocument{
		Title:     normalizeText(article.Title),
		Body:      strings.TrimSpace(body),
		SourceURL: src,
	}
	if article.PublishedTime != nil {
		out.Date = article.PublishedTime.Format("2006-01-02")
	}

	if out.IsEmpty() {
		return nil, &ExtractionError{URL: src, Err: ErrEmptyDocument}
	}
	return out, nil
}
