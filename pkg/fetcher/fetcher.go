// Package fetcher owns the resource used to retrieve pages.
//
// A Session is opened once, used for every fetch of a run, and closed once.
package fetcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/dtnitsch/postgrab/models"
)

// Session retrieves raw pages.
type Session interface {
	// Open allocates the underlying resource. Failure is fatal for the run.
	Open(ctx context.Context) error
	// Fetch retrieves one page. Failures are *RetrievalError.
	Fetch(ctx context.Context, url string) (*models.RawPage, error)
	// Close releases the resource.
	Close() error
}

// ErrNotOpen is returned by Fetch when the session was never opened or is closed.
var ErrNotOpen = errors.New("fetch session is not open")

// SessionInitError reports that the fetch resource could not be started.
type SessionInitError struct {
	Err error
}

func (e *SessionInitError) Error() string {
	return fmt.Sprintf("failed to open fetch session: %v", e.Err)
}

func (e *SessionInitError) Unwrap() error {
	return e.Err
}

// RetrievalError reports a failed fetch of a single URL.
type RetrievalError struct {
	URL        string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *RetrievalError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("failed to fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("failed to fetch %s: %v", e.URL, e.Err)
}

func (e *RetrievalError) Unwrap() error {
	return e.Err
}
