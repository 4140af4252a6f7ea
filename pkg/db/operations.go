package db

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"time"
)

// InsertURL parses and inserts a URL, returning the url_id.
// If the URL already exists, returns the existing url_id.
func (db *DB) InsertURL(rawURL string) (int64, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return 0, fmt.Errorf("failed to parse URL: %w", err)
	}

	// Check if URL already exists
	var existingID int64
	err = db.QueryRow("SELECT url_id FROM urls WHERE original_url = ?", rawURL).Scan(&existingID)
	if err == nil {
		return existingID, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to check existing URL: %w", err)
	}

	result, err := db.Exec(`
		INSERT INTO urls (original_url, scheme, domain, path)
		VALUES (?, ?, ?, ?)
	`, rawURL, parsed.Scheme, parsed.Host, parsed.Path)
	if err != nil {
		return 0, fmt.Errorf("failed to insert URL: %w", err)
	}

	urlID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get URL ID: %w", err)
	}
	return urlID, nil
}

// GetURLID returns the url_id for a given original URL.
func (db *DB) GetURLID(originalURL string) (int64, error) {
	var urlID int64
	err := db.QueryRow("SELECT url_id FROM urls WHERE original_url = ?", originalURL).Scan(&urlID)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("URL not found: %s", originalURL)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get URL ID: %w", err)
	}
	return urlID, nil
}

// Access is one fetch attempt of one URL within a run.
type Access struct {
	AccessID     int64
	RunID        string
	URL          string
	Attempt      int
	AccessedAt   time.Time
	StatusCode   int
	ErrorType    string
	ErrorMessage string
	Duration     time.Duration
	FromCache    bool
	Success      bool
}

// RecordAccess records a fetch attempt in url_accesses.
func (db *DB) RecordAccess(a Access) error {
	urlID, err := db.InsertURL(a.URL)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		INSERT INTO url_accesses (run_id, url_id, attempt, status_code, error_type, error_message, duration_ms, from_cache, success)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.RunID, urlID, a.Attempt, a.StatusCode, NewNullString(a.ErrorType), NewNullString(a.ErrorMessage),
		a.Duration.Milliseconds(), a.FromCache, a.Success)
	if err != nil {
		return fmt.Errorf("failed to record access: %w", err)
	}
	return nil
}

// GetLastAccess returns the most recent access record for a URL, or nil if
// it was never fetched.
func (db *DB) GetLastAccess(rawURL string) (*Access, error) {
	var a Access
	var errorType, errorMessage sql.NullString
	var durationMS int64
	err := db.QueryRow(`
		SELECT a.access_id, a.run_id, u.original_url, a.attempt, a.accessed_at, a.status_code,
		       a.error_type, a.error_message, a.duration_ms, a.from_cache, a.success
		FROM url_accesses a
		JOIN urls u ON a.url_id = u.url_id
		WHERE u.original_url = ?
		ORDER BY a.access_id DESC
		LIMIT 1
	`, rawURL).Scan(&a.AccessID, &a.RunID, &a.URL, &a.Attempt, &a.AccessedAt, &a.StatusCode,
		&errorType, &errorMessage, &durationMS, &a.FromCache, &a.Success)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last access: %w", err)
	}
	a.ErrorType = errorType.String
	a.ErrorMessage = errorMessage.String
	a.Duration = time.Duration(durationMS) * time.Millisecond
	return &a, nil
}

// ListAccesses returns every attempt of a run in the order they were made.
func (db *DB) ListAccesses(runID string) ([]Access, error) {
	rows, err := db.Query(`
		SELECT a.access_id, a.run_id, u.original_url, a.attempt, a.accessed_at, a.status_code,
		       a.error_type, a.error_message, a.duration_ms, a.from_cache, a.success
		FROM url_accesses a
		JOIN urls u ON a.url_id = u.url_id
		WHERE a.run_id = ?
		ORDER BY a.access_id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accesses: %w", err)
	}
	defer rows.Close()

	var accesses []Access
	for rows.Next() {
		var a Access
		var errorType, errorMessage sql.NullString
		var durationMS int64
		if err := rows.Scan(&a.AccessID, &a.RunID, &a.URL, &a.Attempt, &a.AccessedAt, &a.StatusCode,
			&errorType, &errorMessage, &durationMS, &a.FromCache, &a.Success); err != nil {
			return nil, fmt.Errorf("failed to scan access: %w", err)
		}
		a.ErrorType = errorType.String
		a.ErrorMessage = errorMessage.String
		a.Duration = time.Duration(durationMS) * time.Millisecond
		accesses = append(accesses, a)
	}
	return accesses, rows.Err()
}

// FailedURL is a URL whose most recent attempt failed.
type FailedURL struct {
	URL          string
	RunID        string
	LastAttempt  time.Time
	ErrorType    string
	ErrorMessage string
}

// ListFailedURLs returns URLs whose latest recorded attempt failed and that
// have no saved document.
func (db *DB) ListFailedURLs(limit int) ([]FailedURL, error) {
	query := `
		SELECT u.original_url, a.run_id, a.accessed_at, a.error_type, a.error_message
		FROM url_accesses a
		JOIN urls u ON a.url_id = u.url_id
		WHERE a.access_id = (SELECT MAX(access_id) FROM url_accesses WHERE url_id = a.url_id)
		  AND a.success = 0
		  AND NOT EXISTS (SELECT 1 FROM documents d WHERE d.url_id = a.url_id)
		ORDER BY a.access_id DESC
	`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list failed URLs: %w", err)
	}
	defer rows.Close()

	var failed []FailedURL
	for rows.Next() {
		var f FailedURL
		var errorType, errorMessage sql.NullString
		if err := rows.Scan(&f.URL, &f.RunID, &f.LastAttempt, &errorType, &errorMessage); err != nil {
			return nil, fmt.Errorf("failed to scan failed URL: %w", err)
		}
		f.ErrorType = errorType.String
		f.ErrorMessage = errorMessage.String
		failed = append(failed, f)
	}
	return failed, rows.Err()
}

// Document points at an artifact written to disk.
type Document struct {
	RunID       string
	URL         string
	Slug        string
	FilePath    string
	ContentHash string
	SizeBytes   int64
	Title       string
	Language    string
}

// SaveDocument inserts or updates the document row for a URL.
func (db *DB) SaveDocument(d Document) error {
	urlID, err := db.InsertURL(d.URL)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		INSERT INTO documents (url_id, run_id, slug, file_path, content_hash, size_bytes, title, language)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(url_id) DO UPDATE SET
			run_id = excluded.run_id,
			slug = excluded.slug,
			file_path = excluded.file_path,
			content_hash = excluded.content_hash,
			size_bytes = excluded.size_bytes,
			title = excluded.title,
			language = excluded.language,
			created_at = CURRENT_TIMESTAMP
	`, urlID, d.RunID, d.Slug, d.FilePath, d.ContentHash, d.SizeBytes, NewNullString(d.Title), NewNullString(d.Language))
	if err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}
	return nil
}

// GetDocument returns the document saved for a URL, or nil.
func (db *DB) GetDocument(rawURL string) (*Document, error) {
	var d Document
	var title, language sql.NullString
	err := db.QueryRow(`
		SELECT d.run_id, u.original_url, d.slug, d.file_path, d.content_hash, d.size_bytes, d.title, d.language
		FROM documents d
		JOIN urls u ON d.url_id = u.url_id
		WHERE u.original_url = ?
	`, rawURL).Scan(&d.RunID, &d.URL, &d.Slug, &d.FilePath, &d.ContentHash, &d.SizeBytes, &title, &language)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	d.Title = title.String
	d.Language = language.String
	return &d, nil
}

// NewNullString maps "" to NULL.
func NewNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
