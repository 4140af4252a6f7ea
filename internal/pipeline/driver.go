// Package pipeline walks a work-item list in order and turns each pending item
// into a saved article, keeping the list's status column current as it goes.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dtnitsch/postgrab/internal/common"
	"github.com/dtnitsch/postgrab/models"
	"github.com/dtnitsch/postgrab/pkg/artifact_manager"
	"github.com/dtnitsch/postgrab/pkg/db"
	"github.com/dtnitsch/postgrab/pkg/extractor"
	"github.com/dtnitsch/postgrab/pkg/fetcher"
	"github.com/dtnitsch/postgrab/pkg/language"
	"github.com/dtnitsch/postgrab/pkg/naming"
	"github.com/dtnitsch/postgrab/pkg/pacing"
	"github.com/dtnitsch/postgrab/pkg/storage"
	"github.com/google/uuid"
)

// ErrInvalidURL marks an item whose url is not an absolute http(s) URL. It is never retried.
var ErrInvalidURL = errors.New("not an absolute http(s) url")

// ItemStore loads and saves the work-item list.
type ItemStore interface {
	Load(path string) (*models.WorkItemList, error)
	Save(list *models.WorkItemList, path string) error
}

// History receives an audit trail of the run. Failures are logged, never fatal.
type History interface {
	StartRun(r db.Run) error
	RecordAccess(a db.Access) error
	SaveDocument(d db.Document) error
	FinishRun(r db.Run) error
}

// Deps are the collaborators of a Driver. Store, Session, Extractor and
// Artifacts are required.
type Deps struct {
	Store     ItemStore
	Session   fetcher.Session
	Extractor extractor.Extractor
	Artifacts *artifact_manager.Manager
	Namer     naming.Namer       // default naming.TitleNamer
	Detector  *language.Detector // nil disables language tagging
	History   History            // nil disables history
	Logger    *slog.Logger
}

// Options tune a run.
type Options struct {
	InputPath string
	Dedup     models.DedupPolicy
	Retry     pacing.RetryPolicy
	// Delay is waited before every fetch except the first of the run.
	Delay pacing.Jitter
	// MaxItems caps the number of items fetched; 0 means no cap.
	MaxItems int
}

// Driver runs the fetch pipeline over one work-item list.
type Driver struct {
	deps Deps
	opts Options
}

func New(deps Deps, opts Options) *Driver {
	if deps.Namer == nil {
		deps.Namer = naming.TitleNamer{Length: naming.DefaultLength}
	}
	if deps.History == nil {
		deps.History = nopHistory{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if opts.Dedup == "" {
		opts.Dedup = models.DedupArtifact
	}
	if opts.Delay == nil {
		opts.Delay = pacing.None()
	}
	if opts.Retry.Attempts < 1 {
		opts.Retry.Attempts = 1
	}
	return &Driver{deps: deps, opts: opts}
}

// run holds the mutable state of a single Run call.
type run struct {
	*Driver
	list    *models.WorkItemList
	summary *Summary
	logger  *slog.Logger

	sessionOpen bool
	fetches     int
	// dirty is set when the last list save failed and must be retried.
	dirty bool
}

// Run processes the list at Options.InputPath. It returns an error only when
// the list cannot be loaded or the fetch session cannot be opened; per-item
// failures are reported in the Summary. The summary is returned even when
// the run aborts after loading.
func (d *Driver) Run(ctx context.Context) (*Summary, error) {
	started := time.Now()

	list, err := d.deps.Store.Load(d.opts.InputPath)
	if err != nil {
		return nil, err
	}

	r := &run{
		Driver: d,
		list:   list,
		summary: &Summary{
			RunID:     uuid.NewString(),
			Input:     d.opts.InputPath,
			OutputDir: d.deps.Artifacts.Dir(),
			StartedAt: started,
			Total:     list.Len(),
		},
	}
	r.logger = d.deps.Logger.With("run_id", r.summary.RunID)

	if err := d.deps.History.StartRun(db.Run{
		RunID:     r.summary.RunID,
		StartedAt: started,
		InputPath: d.opts.InputPath,
		OutputDir: r.summary.OutputDir,
		Total:     r.summary.Total,
	}); err != nil {
		r.logger.Warn("failed to record run start", "error", err)
	}

	r.logger.Info("starting run",
		"input", d.opts.InputPath,
		"items", list.Len(),
		"dedup", d.opts.Dedup,
		"max_attempts", d.opts.Retry.Attempts,
		"max_items", d.opts.MaxItems,
	)

	defer r.closeSession()
	runErr := r.loop(ctx)
	r.closeSession()

	if r.dirty {
		if err := r.save(); err != nil {
			r.logger.Error("failed to save work items at end of run", "error", err)
		}
	}

	r.summary.Remaining = r.summary.Total - r.summary.Completed - r.summary.Failed - r.summary.Skipped
	r.summary.Duration = time.Since(started)

	state := db.RunFinished
	switch {
	case runErr != nil:
		state = db.RunAborted
	case r.summary.Cancelled:
		state = db.RunCancelled
	}
	finished := time.Now()
	if err := d.deps.History.FinishRun(db.Run{
		RunID:        r.summary.RunID,
		FinishedAt:   &finished,
		State:        state,
		Total:        r.summary.Total,
		Completed:    r.summary.Completed,
		Failed:       r.summary.Failed,
		Skipped:      r.summary.Skipped,
		BytesWritten: r.summary.BytesWritten,
	}); err != nil {
		r.logger.Warn("failed to record run end", "error", err)
	}

	r.logger.Info("run finished",
		"state", state,
		"total", r.summary.Total,
		"completed", r.summary.Completed,
		"failed", r.summary.Failed,
		"skipped", r.summary.Skipped,
		"remaining", r.summary.Remaining,
		"bytes", r.summary.BytesWritten,
		"duration", r.summary.Duration.Round(time.Millisecond),
	)

	return r.summary, runErr
}

func (r *run) loop(ctx context.Context) error {
	for i, item := range r.list.Items {
		if ctx.Err() != nil {
			r.summary.Cancelled = true
			r.logger.Warn("run cancelled", "processed", i, "remaining", len(r.list.Items)-i)
			return nil
		}

		slug := r.deps.Namer.Name(item)
		logger := r.logger.With("item", i+1, "total", r.list.Len(), "slug", slug, "url", item.URL)

		if r.alreadyDone(item, slug, logger) {
			prior := item.Status
			if item.Status != models.StatusCompleted {
				item.Status = models.StatusSkipped
			}
			r.summary.Skipped++
			logger.Info("skipping item, already fetched", "status", item.Status)
			if err := r.save(); err != nil {
				// the artifact is on disk; only the status cell is stale
				item.Status = prior
				logger.Error("failed to save work items", "path", r.opts.InputPath, "error", err)
			}
			continue
		}

		if !common.IsHTTPURL(item.URL) {
			r.fail(item, fmt.Errorf("%w: %q", ErrInvalidURL, item.URL), logger)
			r.persist(item, logger)
			continue
		}

		if r.opts.MaxItems > 0 && r.fetches >= r.opts.MaxItems {
			logger.Info("max items reached, stopping", "max_items", r.opts.MaxItems)
			return nil
		}

		if r.fetches > 0 {
			delay := r.opts.Delay()
			logger.Debug("pacing", "delay", delay)
			if err := pacing.Sleep(ctx, delay); err != nil {
				r.summary.Cancelled = true
				logger.Warn("run cancelled during pacing delay")
				return nil
			}
		}

		if !r.sessionOpen {
			if err := r.deps.Session.Open(ctx); err != nil {
				var initErr *fetcher.SessionInitError
				if !errors.As(err, &initErr) {
					err = &fetcher.SessionInitError{Err: err}
				}
				logger.Error("failed to open fetch session, aborting run", "error", err)
				return err
			}
			r.sessionOpen = true
		}

		r.fetches++
		r.processItem(ctx, item, slug, logger)
		r.persist(item, logger)
	}
	return nil
}

// alreadyDone applies the dedup policy.
func (r *run) alreadyDone(item *models.WorkItem, slug string, logger *slog.Logger) bool {
	completed := item.Status == models.StatusCompleted

	switch r.opts.Dedup {
	case models.DedupStatus:
		return completed
	case models.DedupEither:
		return completed || r.deps.Artifacts.Exists(slug)
	default:
		exists := r.deps.Artifacts.Exists(slug)
		if completed && !exists {
			logger.Warn("item marked completed but artifact is missing, fetching again",
				"path", r.deps.Artifacts.Path(slug))
		}
		return exists
	}
}

// processItem fetches, extracts and writes one item with retries, then sets
// its terminal status.
func (r *run) processItem(ctx context.Context, item *models.WorkItem, slug string, logger *slog.Logger) {
	logger.Info("fetching item", "title", item.Title)
	start := time.Now()

	var written int
	err := pacing.Retry(ctx, r.opts.Retry, func(attempt int) error {
		n, err := r.attempt(ctx, item, slug, attempt)
		if err != nil {
			if !retryable(err) {
				return pacing.Permanent(err)
			}
			return err
		}
		written = n
		return nil
	}, func(attempt int, err error, wait time.Duration) {
		logger.Warn("attempt failed, retrying",
			"attempt", attempt,
			"max_attempts", r.opts.Retry.Attempts,
			"wait", wait,
			"error_type", errorType(err),
			"error", err,
		)
	})

	if err != nil {
		r.fail(item, err, logger.With("duration", time.Since(start).Round(time.Millisecond)))
		return
	}

	item.Status = models.StatusCompleted
	r.summary.Completed++
	r.summary.BytesWritten += int64(written)
	logger.Info("item completed", "bytes", written, "path", r.deps.Artifacts.Path(slug), "duration", time.Since(start).Round(time.Millisecond))
}

// attempt runs one fetch+extract+write cycle and records it in the history.
func (r *run) attempt(ctx context.Context, item *models.WorkItem, slug string, attempt int) (int, error) {
	start := time.Now()
	access := db.Access{RunID: r.summary.RunID, URL: item.URL, Attempt: attempt}

	n, err := func() (int, error) {
		// an in-flight fetch is allowed to finish; it is bounded by the session timeout
		page, err := r.deps.Session.Fetch(context.WithoutCancel(ctx), item.URL)
		if err != nil {
			return 0, err
		}
		access.StatusCode = page.StatusCode
		access.FromCache = page.FromCache

		doc, err := r.deps.Extractor.Extract(page)
		if err != nil {
			return 0, err
		}
		return r.write(item, slug, doc)
	}()

	access.Duration = time.Since(start)
	access.Success = err == nil
	if err != nil {
		access.ErrorType = errorType(err)
		access.ErrorMessage = err.Error()
		var retrievalErr *fetcher.RetrievalError
		if errors.As(err, &retrievalErr) && retrievalErr.StatusCode != 0 {
			access.StatusCode = retrievalErr.StatusCode
		}
	}
	if herr := r.deps.History.RecordAccess(access); herr != nil {
		r.logger.Warn("failed to record access", "url", item.URL, "error", herr)
	}

	return n, err
}

// write renders doc into the artifact for slug.
func (r *run) write(item *models.WorkItem, slug string, doc *models.FetchedDocument) (int, error) {
	if doc == nil || doc.IsEmpty() {
		return 0, &extractor.ExtractionError{URL: item.URL, Err: extractor.ErrEmptyDocument}
	}

	title := doc.Title
	if title == "" {
		title = item.Title
	}
	date := doc.Date
	if date == "" {
		date = item.Date
	}
	source := doc.SourceURL
	if source == "" {
		source = item.URL
	}
	lang := doc.Language
	if lang == "" {
		lang = r.deps.Detector.Detect(doc.Body)
	}

	n, err := r.deps.Artifacts.Write(slug, artifact_manager.Artifact{
		Title:     title,
		Date:      date,
		Body:      doc.Body,
		SourceURL: source,
		Language:  lang,
		Category:  item.Category,
	})
	if err != nil {
		return 0, err
	}

	if err := r.deps.History.SaveDocument(db.Document{
		RunID:       r.summary.RunID,
		URL:         item.URL,
		Slug:        slug,
		FilePath:    r.deps.Artifacts.Path(slug),
		ContentHash: common.ContentHash([]byte(doc.Body)),
		SizeBytes:   int64(n),
		Title:       title,
		Language:    lang,
	}); err != nil {
		r.logger.Warn("failed to record document", "url", item.URL, "error", err)
	}
	return n, nil
}

// persist saves the list after a fetched item was handled. A failed save marks
// the item failed; the next save retries the write.
func (r *run) persist(item *models.WorkItem, logger *slog.Logger) {
	err := r.save()
	if err == nil {
		return
	}
	logger.Error("failed to save work items", "path", r.opts.InputPath, "error", err)

	if item.Status == models.StatusFailed {
		return
	}
	r.summary.Completed--
	r.fail(item, err, logger)
}

// fail sets item Failed and records why.
func (r *run) fail(item *models.WorkItem, err error, logger *slog.Logger) {
	item.Status = models.StatusFailed
	r.summary.Failed++
	r.summary.Failures = append(r.summary.Failures, Failure{
		Title:     item.Title,
		URL:       item.URL,
		ErrorType: errorType(err),
		Error:     err.Error(),
	})
	logger.Error("item failed", "error_type", errorType(err), "error", err)
}

func (r *run) save() error {
	if err := r.deps.Store.Save(r.list, r.opts.InputPath); err != nil {
		r.dirty = true
		return err
	}
	r.dirty = false
	return nil
}

func (r *run) closeSession() {
	if !r.sessionOpen {
		return
	}
	r.sessionOpen = false
	if err := r.deps.Session.Close(); err != nil {
		r.logger.Warn("failed to close fetch session", "error", err)
	}
}

// retryable reports whether another attempt could succeed.
func retryable(err error) bool {
	var retrievalErr *fetcher.RetrievalError
	var extractionErr *extractor.ExtractionError
	return errors.As(err, &retrievalErr) || errors.As(err, &extractionErr)
}

// errorType classifies err for logs and history.
func errorType(err error) string {
	var retrievalErr *fetcher.RetrievalError
	var extractionErr *extractor.ExtractionError
	var persistenceErr *storage.PersistenceError
	switch {
	case errors.Is(err, ErrInvalidURL):
		return "invalid_url"
	case errors.As(err, &retrievalErr):
		return "retrieval_error"
	case errors.As(err, &extractionErr):
		return "extraction_error"
	case errors.As(err, &persistenceErr):
		return "persistence_error"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	}
	return "error"
}

type nopHistory struct{}

func (nopHistory) StartRun(db.Run) error          { return nil }
func (nopHistory) RecordAccess(db.Access) error   { return nil }
func (nopHistory) SaveDocument(db.Document) error { return nil }
func (nopHistory) FinishRun(db.Run) error         { return nil }

var _ History = (*db.DB)(nil)
