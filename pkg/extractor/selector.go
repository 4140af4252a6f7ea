package extractor

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/dtnitsch/postgrab/models"
)

// Default selectors for a typical blog post layout.
const (
	DefaultTitleSelector = "h1"
	DefaultDateSelector  = "time"
	DefaultBodySelector  = "article p"
)

// SelectorExtractor reads fixed CSS selectors.
type SelectorExtractor struct {
	TitleSelector string
	DateSelector  string
	BodySelector  string
}

func NewSelectorExtractor() *SelectorExtractor {
	return &SelectorExtractor{
		TitleSelector: DefaultTitleSelector,
		DateSelector:  DefaultDateSelector,
		BodySelector:  DefaultBodySelector,
	}
}

// Extract implements Extractor.
func (s *SelectorExtractor) Extract(page *models.RawPage) (*models.FetchedDocument, error) {
	src := sourceURL(page)

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, &ExtractionError{URL: src, Err: err}
	}

	out := &models.FetchedDocument{
		Title:     normalizeText(doc.Find(s.TitleSelector).First().Text()),
		SourceURL: src,
	}

	dateSel := doc.Find(s.DateSelector).First()
	out.Date = normalizeText(dateSel.Text())
	if out.Date == "" {
		if dt, ok := dateSel.Attr("datetime"); ok {
			out.Date = strings.TrimSpace(dt)
		}
	}

	var paragraphs []string
	doc.Find(s.BodySelector).Each(func(_ int, p *goquery.Selection) {
		paragraphs = append(paragraphs, normalizeText(p.Text()))
	})
	out.Body = models.JoinParagraphs(paragraphs)

	if out.IsEmpty() {
		return nil, &ExtractionError{URL: src, Err: ErrEmptyDocument}
	}
	return out, nil
}

// normalizeText collapses runs of whitespace into single spaces.
func normalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
