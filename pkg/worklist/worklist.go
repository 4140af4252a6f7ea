// Package worklist loads and persists the table of work items.
//
// The table is a CSV file with a header row. The url column is required. Title,
// summary, date, category and status are interpreted and any other column is
// carried through by position, so a save keeps the header and every cell as
// read. Save always writes a status column.
package worklist

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dtnitsch/postgrab/internal/common"
	"github.com/dtnitsch/postgrab/models"
	"github.com/dtnitsch/postgrab/pkg/storage"
)

// FormatError reports a malformed work-item table.
type FormatError struct {
	Path string
	Line int // 0 when the problem is not tied to a line
	Msg  string
}

func (e *FormatError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.Path, e.Line, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Msg)
}

// NotFoundError reports that the work-item table does not exist.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("work item list not found: %s", e.Path)
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Store reads and writes work-item tables on the local filesystem.
type Store struct {
	storage *storage.Storage
}

// NewStore returns a Store.
func NewStore() *Store {
	return &Store{storage: &storage.Storage{}}
}

// Load reads the table at path.
func (s *Store) Load(path string) (*models.WorkItemList, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &NotFoundError{Path: path}
		}
		return nil, fmt.Errorf("failed to read work items: %w", err)
	}
	return Parse(path, bytes.TrimPrefix(data, utf8BOM))
}

// Parse decodes a work-item table. name is only used in error messages.
func Parse(name string, data []byte) (*models.WorkItemList, error) {
	reader := csv.NewReader(bytes.NewReader(data))

	header, err := reader.Read()
	if err == io.EOF {
		return nil, &FormatError{Path: name, Msg: "empty file, missing header"}
	}
	if err != nil {
		return nil, csvFormatError(name, err)
	}

	columns := models.Columns(header)
	if !hasColumn(columns, models.ColumnURL) {
		return nil, &FormatError{Path: name, Line: 1, Msg: "missing required column \"url\""}
	}

	list := &models.WorkItemList{Header: header}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, csvFormatError(name, err)
		}
		line, _ := reader.FieldPos(0)

		if isBlank(record) {
			continue
		}

		item := &models.WorkItem{Status: models.StatusPending}
		for i, value := range record {
			switch columns[i] {
			case models.ColumnStatus:
				status, err := models.ParseStatus(value)
				if err != nil {
					return nil, &FormatError{Path: name, Line: line, Msg: err.Error()}
				}
				item.Status = status
			case models.ColumnURL:
				item.URL = common.SanitizeURL(value)
			case "":
				item.SetExtra(i, value)
			default:
				item.SetField(columns[i], value)
			}
		}

		if item.URL == "" {
			return nil, &FormatError{Path: name, Line: line, Msg: "empty url"}
		}
		list.Items = append(list.Items, item)
	}

	return list, nil
}

// Save writes the full table, including status, to path atomically.
func (s *Store) Save(list *models.WorkItemList, path string) error {
	data, err := Encode(list)
	if err != nil {
		return &storage.PersistenceError{Path: path, Err: err}
	}
	return s.storage.SaveFile(path, data, 0644)
}

// Encode renders the table as CSV. A status column is appended if the header lacks one.
func Encode(list *models.WorkItemList) ([]byte, error) {
	header := append([]string(nil), list.Header...)
	if len(header) == 0 {
		header = []string{models.ColumnTitle, models.ColumnSummary, models.ColumnDate, models.ColumnURL, models.ColumnCategory}
	}
	columns := models.Columns(header)
	if !hasColumn(columns, models.ColumnStatus) {
		header = append(header, models.ColumnStatus)
		columns = append(columns, models.ColumnStatus)
	}

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write(header); err != nil {
		return nil, err
	}

	row := make([]string, len(header))
	for _, item := range list.Items {
		for i, column := range columns {
			if column == "" {
				row[i] = item.ExtraAt(i)
				continue
			}
			row[i] = item.Field(column)
		}
		if err := writer.Write(row); err != nil {
			return nil, err
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func csvFormatError(name string, err error) error {
	var perr *csv.ParseError
	if errors.As(err, &perr) {
		return &FormatError{Path: name, Line: perr.Line, Msg: perr.Err.Error()}
	}
	return &FormatError{Path: name, Msg: err.Error()}
}

func hasColumn(columns []string, name string) bool {
	for _, c := range columns {
		if c == name {
			return true
		}
	}
	return false
}

func isBlank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
