package artifact_manager

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/dtnitsch/postgrab/pkg/storage"
)

const (
	DefaultDir       = "articles"
	DefaultExtension = "md"
	DefaultDateLabel = "Published"
)

// DefaultTemplate renders a heading, a date line and the body paragraphs.
const DefaultTemplate = `# {{ .Title }}

{{ .DateLabel }}: {{ .Date }}

{{ .Body }}
`

// Artifact is the data available to the output template.
type Artifact struct {
	Title     string
	Date      string
	DateLabel string
	Body      string
	SourceURL string
	Language  string
	Category  string
}

// Options configures a Manager. Zero values fall back to the defaults above.
type Options struct {
	Dir          string
	Extension    string
	TemplatePath string
	DateLabel    string
}

// Manager writes one rendered file per fetched document into a flat directory.
type Manager struct {
	dir       string
	ext       string
	dateLabel string
	tmpl      *template.Template
	storage   *storage.Storage
}

// NewManager creates a new Artifact Manager instance.
// It ensures the output directory exists.
func NewManager(opts Options) (*Manager, error) {
	if opts.Dir == "" {
		opts.Dir = DefaultDir
	}
	if opts.Extension == "" {
		opts.Extension = DefaultExtension
	}
	if opts.DateLabel == "" {
		opts.DateLabel = DefaultDateLabel
	}

	text := DefaultTemplate
	if opts.TemplatePath != "" {
		data, err := os.ReadFile(opts.TemplatePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read template: %w", err)
		}
		text = string(data)
	}
	tmpl, err := template.New("artifact").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}

	if err := os.MkdirAll(opts.Dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	return &Manager{
		dir:       opts.Dir,
		ext:       strings.TrimPrefix(opts.Extension, "."),
		dateLabel: opts.DateLabel,
		tmpl:      tmpl,
		storage:   &storage.Storage{},
	}, nil
}

// Dir returns the output directory.
func (m *Manager) Dir() string {
	return m.dir
}

// Path returns where the artifact named slug lives.
// Example: articles/Hello-World.md
func (m *Manager) Path(slug string) string {
	return filepath.Join(m.dir, slug+"."+m.ext)
}

// Exists reports whether a non-empty artifact named slug is already on disk.
// Empty files are leftovers of an interrupted run and do not count.
func (m *Manager) Exists(slug string) bool {
	path := m.Path(slug)
	if !m.storage.HasFile(path) {
		return false
	}
	stats, err := m.storage.GetFileStats(path)
	return err == nil && stats.SizeBytes > 0
}

// Render executes the template for a.
func (m *Manager) Render(a Artifact) ([]byte, error) {
	if a.DateLabel == "" {
		a.DateLabel = m.dateLabel
	}
	var buf bytes.Buffer
	if err := m.tmpl.Execute(&buf, a); err != nil {
		return nil, fmt.Errorf("failed to render artifact: %w", err)
	}
	return buf.Bytes(), nil
}

// Write renders a and saves it atomically under slug. It returns the number
// of bytes written. All failures are *storage.PersistenceError.
func (m *Manager) Write(slug string, a Artifact) (int, error) {
	path := m.Path(slug)

	content, err := m.Render(a)
	if err != nil {
		return 0, &storage.PersistenceError{Path: path, Err: err}
	}
	if err := m.storage.SaveFile(path, content, 0644); err != nil {
		return 0, err
	}
	return len(content), nil
}
