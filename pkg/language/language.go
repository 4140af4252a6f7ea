// Package language tags documents with the language their body is written in.
package language

import (
	"fmt"
	"strings"

	"github.com/pemistahl/lingua-go"
)

// Detector guesses the language of a text from a fixed candidate set.
// The zero value detects nothing.
type Detector struct {
	detector lingua.LanguageDetector
	only     *lingua.Language
}

// NewDetector builds a detector for the named languages ("english", "chinese", ...).
// An empty list disables detection.
func NewDetector(names []string) (*Detector, error) {
	langs := make([]lingua.Language, 0, len(names))
	seen := make(map[lingua.Language]bool)
	for _, name := range names {
		lang, err := parse(name)
		if err != nil {
			return nil, err
		}
		if !seen[lang] {
			seen[lang] = true
			langs = append(langs, lang)
		}
	}

	switch len(langs) {
	case 0:
		return &Detector{}, nil
	case 1:
		// lingua needs at least two candidates; with one there is nothing to decide
		return &Detector{only: &langs[0]}, nil
	}

	return &Detector{
		detector: lingua.NewLanguageDetectorBuilder().
			FromLanguages(langs...).
			Build(),
	}, nil
}

// Detect returns the lower-case ISO 639-1 code of text's language, or "" when
// unsure or detection is disabled.
func (d *Detector) Detect(text string) string {
	if d == nil || strings.TrimSpace(text) == "" {
		return ""
	}
	if d.only != nil {
		return code(*d.only)
	}
	if d.detector == nil {
		return ""
	}
	lang, ok := d.detector.DetectLanguageOf(text)
	if !ok {
		return ""
	}
	return code(lang)
}

func parse(name string) (lingua.Language, error) {
	name = strings.TrimSpace(name)
	for _, lang := range lingua.AllLanguages() {
		if strings.EqualFold(lang.String(), name) || strings.EqualFold(lang.IsoCode639_1().String(), name) {
			return lang, nil
		}
	}
	return lingua.Unknown, fmt.Errorf("unknown language: %q", name)
}

func code(lang lingua.Language) string {
	return strings.ToLower(lang.IsoCode639_1().String())
}
