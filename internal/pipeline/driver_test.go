package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dtnitsch/postgrab/models"
	"github.com/dtnitsch/postgrab/pkg/artifact_manager"
	"github.com/dtnitsch/postgrab/pkg/db"
	"github.com/dtnitsch/postgrab/pkg/extractor"
	"github.com/dtnitsch/postgrab/pkg/fetcher"
	"github.com/dtnitsch/postgrab/pkg/pacing"
	"github.com/dtnitsch/postgrab/pkg/storage"
	"github.com/dtnitsch/postgrab/pkg/worklist"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const threeItems = `title,summary,date,url,category
Alpha,first,2024-01-01,https://blog.test/a,news
Beta,second,2024-01-02,https://blog.test/b,news
Gamma,third,2024-01-03,https://blog.test/c,tech
`

func articleHTML(title string) string {
	return fmt.Sprintf(`<html><body><h1>%s</h1><time>2024-02-02</time>
<article><p>Paragraph one of %s.</p><p>Paragraph two.</p></article></body></html>`, title, title)
}

// fakeSession serves canned pages. failures[url] is the number of leading
// attempts that fail; -1 fails forever.
type fakeSession struct {
	mu       sync.Mutex
	pages    map[string]string
	failures map[string]int
	calls    map[string]int
	openErr  error
	opens    int
	closes   int
	onFetch  func(url string)
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		pages: map[string]string{
			"https://blog.test/a": articleHTML("Alpha"),
			"https://blog.test/b": articleHTML("Beta"),
			"https://blog.test/c": articleHTML("Gamma"),
		},
		failures: map[string]int{},
		calls:    map[string]int{},
	}
}

func (f *fakeSession) Open(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens++
	return f.openErr
}

func (f *fakeSession) Fetch(_ context.Context, url string) (*models.RawPage, error) {
	f.mu.Lock()
	f.calls[url]++
	n := f.calls[url]
	fail := f.failures[url]
	html, ok := f.pages[url]
	hook := f.onFetch
	f.mu.Unlock()

	if hook != nil {
		hook(url)
	}
	if fail < 0 || n <= fail {
		return nil, &fetcher.RetrievalError{URL: url, Err: errors.New("connection refused")}
	}
	if !ok {
		return nil, &fetcher.RetrievalError{URL: url, StatusCode: 404, Err: errors.New("not found")}
	}
	return &models.RawPage{URL: url, StatusCode: 200, Body: []byte(html)}, nil
}

func (f *fakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

func (f *fakeSession) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

type testEnv struct {
	input     string
	artifacts *artifact_manager.Manager
	session   *fakeSession
	store     ItemStore
	logs      io.Writer
}

func newTestEnv(t *testing.T, csv string) *testEnv {
	t.Helper()
	dir := t.TempDir()
	input := filepath.Join(dir, "posts.csv")
	require.NoError(t, os.WriteFile(input, []byte(csv), 0644))

	artifacts, err := artifact_manager.NewManager(artifact_manager.Options{Dir: filepath.Join(dir, "articles")})
	require.NoError(t, err)

	return &testEnv{
		input:     input,
		artifacts: artifacts,
		session:   newFakeSession(),
		store:     worklist.NewStore(),
		logs:      io.Discard,
	}
}

func (e *testEnv) driver(opts Options, history History) *Driver {
	opts.InputPath = e.input
	if opts.Retry.Attempts == 0 {
		opts.Retry = pacing.RetryPolicy{Attempts: 3}
	}
	return New(Deps{
		Store:     e.store,
		Session:   e.session,
		Extractor: extractor.NewSelectorExtractor(),
		Artifacts: e.artifacts,
		History:   history,
		Logger:    slog.New(slog.NewTextHandler(e.logs, nil)),
	}, opts)
}

func (e *testEnv) statuses(t *testing.T) []models.Status {
	t.Helper()
	list, err := worklist.NewStore().Load(e.input)
	require.NoError(t, err)
	out := make([]models.Status, 0, list.Len())
	for _, item := range list.Items {
		out = append(out, item.Status)
	}
	return out
}

func (e *testEnv) artifactCount(t *testing.T) int {
	t.Helper()
	entries, err := os.ReadDir(e.artifacts.Dir())
	require.NoError(t, err)
	n := 0
	for _, entry := range entries {
		if filepath.Ext(entry.Name()) == ".md" {
			n++
		}
	}
	return n
}

func TestRun_ThreeItemsOneUnreachable(t *testing.T) {
	env := newTestEnv(t, threeItems)
	env.session.failures["https://blog.test/b"] = -1

	summary, err := env.driver(Options{}, nil).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 2, summary.Completed)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 0, summary.Skipped)
	assert.Equal(t, 0, summary.Remaining)
	assert.Equal(t, 2, env.artifactCount(t))
	assert.Equal(t, []models.Status{models.StatusCompleted, models.StatusFailed, models.StatusCompleted}, env.statuses(t))

	assert.Equal(t, 3, env.session.calls["https://blog.test/b"])
	assert.Equal(t, 1, env.session.opens)
	assert.Equal(t, 1, env.session.closes)

	require.Len(t, summary.Failures, 1)
	assert.Equal(t, "retrieval_error", summary.Failures[0].ErrorType)
	assert.NotEmpty(t, summary.RunID)
}

func TestRun_CompletedItemsHaveArtifacts(t *testing.T) {
	env := newTestEnv(t, threeItems)

	_, err := env.driver(Options{}, nil).Run(context.Background())
	require.NoError(t, err)

	data, err := os.ReadFile(env.artifacts.Path("Alpha"))
	require.NoError(t, err)
	assert.Equal(t, "# Alpha\n\nPublished: 2024-02-02\n\nParagraph one of Alpha.\n\nParagraph two.\n", string(data))

	for _, slug := range []string{"Alpha", "Beta", "Gamma"} {
		assert.True(t, env.artifacts.Exists(slug), slug)
	}
}

func TestRun_Idempotent(t *testing.T) {
	env := newTestEnv(t, threeItems)

	first, err := env.driver(Options{}, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, first.Completed)
	callsAfterFirst := env.session.totalCalls()

	second, err := env.driver(Options{}, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second.Completed)
	assert.Equal(t, 3, second.Skipped)
	assert.Equal(t, callsAfterFirst, env.session.totalCalls())
	// completed status survives a skip
	assert.Equal(t, []models.Status{models.StatusCompleted, models.StatusCompleted, models.StatusCompleted}, env.statuses(t))
	// nothing to fetch, so the session is never opened
	assert.Equal(t, 1, env.session.opens)
}

func TestRun_TransientFailureRecovers(t *testing.T) {
	env := newTestEnv(t, threeItems)
	env.session.failures["https://blog.test/a"] = 2

	summary, err := env.driver(Options{}, nil).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Completed)
	assert.Equal(t, 3, env.session.calls["https://blog.test/a"])
	assert.Equal(t, models.StatusCompleted, env.statuses(t)[0])
}

func TestRun_ExhaustedRetriesLeaveNoArtifact(t *testing.T) {
	env := newTestEnv(t, threeItems)
	env.session.failures["https://blog.test/a"] = 3

	summary, err := env.driver(Options{}, nil).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Failed)
	assert.False(t, env.artifacts.Exists("Alpha"))
	_, statErr := os.Stat(env.artifacts.Path("Alpha"))
	assert.True(t, os.IsNotExist(statErr))
	assert.Equal(t, models.StatusFailed, env.statuses(t)[0])
}

func TestRun_FailedItemsAreRetriedNextRun(t *testing.T) {
	env := newTestEnv(t, threeItems)
	env.session.failures["https://blog.test/b"] = 3

	_, err := env.driver(Options{}, nil).Run(context.Background())
	require.NoError(t, err)

	summary, err := env.driver(Options{}, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Completed)
	assert.Equal(t, 2, summary.Skipped)
	assert.Equal(t, 4, env.session.calls["https://blog.test/b"])
}

func TestRun_ResumesAfterInterruption(t *testing.T) {
	env := newTestEnv(t, threeItems)

	// stop after the first item, as if the process died there
	first, err := env.driver(Options{MaxItems: 1}, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first.Completed)
	assert.Equal(t, 2, first.Remaining)
	assert.Equal(t, []models.Status{models.StatusCompleted, models.StatusPending, models.StatusPending}, env.statuses(t))

	second, err := env.driver(Options{}, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, second.Skipped)
	assert.Equal(t, 2, second.Completed)

	assert.Equal(t, 1, env.session.calls["https://blog.test/a"])
	assert.Equal(t, 1, env.session.calls["https://blog.test/b"])
	assert.Equal(t, 1, env.session.calls["https://blog.test/c"])
}

func TestRun_ResumesFromArtifactsWithoutStatus(t *testing.T) {
	env := newTestEnv(t, threeItems)
	// artifact written but the list never saved
	_, err := env.artifacts.Write("Alpha", artifact_manager.Artifact{Title: "Alpha", Body: "x"})
	require.NoError(t, err)

	summary, err := env.driver(Options{}, nil).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 0, env.session.calls["https://blog.test/a"])
	assert.Equal(t, models.StatusSkipped, env.statuses(t)[0])
}

func TestRun_SlugCollisionSkipsSecond(t *testing.T) {
	csv := `title,url
Breaking news today part one,https://blog.test/a
Breaking news today part two,https://blog.test/b
`
	env := newTestEnv(t, csv)

	summary, err := env.driver(Options{}, nil).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Completed)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 0, env.session.calls["https://blog.test/b"])
	assert.Equal(t, []models.Status{models.StatusCompleted, models.StatusSkipped}, env.statuses(t))
	assert.Equal(t, 1, env.artifactCount(t))
}

func TestRun_SessionInitFailureAborts(t *testing.T) {
	env := newTestEnv(t, threeItems)
	env.session.openErr = errors.New("browser failed to launch")

	summary, err := env.driver(Options{}, nil).Run(context.Background())

	var initErr *fetcher.SessionInitError
	require.True(t, errors.As(err, &initErr))
	require.NotNil(t, summary)
	assert.Equal(t, 3, summary.Remaining)
	assert.Equal(t, 0, env.session.totalCalls())
	assert.Equal(t, 0, env.session.closes)
	assert.Equal(t, []models.Status{models.StatusPending, models.StatusPending, models.StatusPending}, env.statuses(t))
}

func TestRun_CancelledBetweenItems(t *testing.T) {
	env := newTestEnv(t, threeItems)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env.session.onFetch = func(string) { cancel() }

	summary, err := env.driver(Options{}, nil).Run(ctx)
	require.NoError(t, err)

	// the in-flight fetch finishes, nothing after it starts
	assert.True(t, summary.Cancelled)
	assert.Equal(t, 1, summary.Completed)
	assert.Equal(t, 2, summary.Remaining)
	assert.Equal(t, 1, env.session.totalCalls())
	assert.Equal(t, 1, env.session.closes)
	assert.Equal(t, []models.Status{models.StatusCompleted, models.StatusPending, models.StatusPending}, env.statuses(t))
}

func TestRun_CancelDuringBackoffFailsItem(t *testing.T) {
	env := newTestEnv(t, threeItems)
	env.session.failures["https://blog.test/a"] = -1
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env.session.onFetch = func(string) { cancel() }

	summary, err := env.driver(Options{}, nil).Run(ctx)
	require.NoError(t, err)

	assert.True(t, summary.Cancelled)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, env.session.calls["https://blog.test/a"])
	assert.Equal(t, 1, env.session.closes)
	assert.Equal(t, models.StatusFailed, env.statuses(t)[0])
}

func TestRun_DelayOnlyBetweenFetches(t *testing.T) {
	env := newTestEnv(t, threeItems)
	_, err := env.artifacts.Write("Alpha", artifact_manager.Artifact{Title: "Alpha", Body: "x"})
	require.NoError(t, err)

	delays := 0
	opts := Options{Delay: func() time.Duration {
		delays++
		return 0
	}}
	_, err = env.driver(opts, nil).Run(context.Background())
	require.NoError(t, err)

	// Alpha is skipped without waiting; Beta is the first fetch; only Gamma waits
	assert.Equal(t, 1, delays)
}

func TestRun_DedupPolicies(t *testing.T) {
	// Alpha: status completed, no artifact. Beta: status pending, artifact on disk.
	csv := `title,url,status
Alpha,https://blog.test/a,completed
Beta,https://blog.test/b,pending
`
	tests := []struct {
		policy      models.DedupPolicy
		fetchAlpha  bool
		fetchBeta   bool
		wantSkipped int
	}{
		{models.DedupArtifact, true, false, 1},
		{models.DedupStatus, false, true, 1},
		{models.DedupEither, false, false, 2},
	}

	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			env := newTestEnv(t, csv)
			_, err := env.artifacts.Write("Beta", artifact_manager.Artifact{Title: "Beta", Body: "old"})
			require.NoError(t, err)

			summary, err := env.driver(Options{Dedup: tt.policy}, nil).Run(context.Background())
			require.NoError(t, err)

			assert.Equal(t, tt.fetchAlpha, env.session.calls["https://blog.test/a"] > 0)
			assert.Equal(t, tt.fetchBeta, env.session.calls["https://blog.test/b"] > 0)
			assert.Equal(t, tt.wantSkipped, summary.Skipped)
		})
	}
}

func TestRun_ExtractionErrorIsRetried(t *testing.T) {
	env := newTestEnv(t, threeItems)
	env.session.pages["https://blog.test/a"] = "<html><body><div>cookie wall</div></body></html>"

	summary, err := env.driver(Options{}, nil).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, env.session.calls["https://blog.test/a"])
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, "extraction_error", summary.Failures[0].ErrorType)
	assert.False(t, env.artifacts.Exists("Alpha"))
}

func TestRun_TitleAndDateFallBackToItem(t *testing.T) {
	env := newTestEnv(t, threeItems)
	env.session.pages["https://blog.test/a"] = "<html><body><article><p>Only a body.</p></article></body></html>"

	_, err := env.driver(Options{}, nil).Run(context.Background())
	require.NoError(t, err)

	data, err := os.ReadFile(env.artifacts.Path("Alpha"))
	require.NoError(t, err)
	assert.Equal(t, "# Alpha\n\nPublished: 2024-01-01\n\nOnly a body.\n", string(data))
}

// flakyStore fails the first n saves.
type flakyStore struct {
	*worklist.Store
	failures int
	saves    int
}

func (s *flakyStore) Save(list *models.WorkItemList, path string) error {
	s.saves++
	if s.saves <= s.failures {
		return &storage.PersistenceError{Path: path, Err: errors.New("disk full")}
	}
	return s.Store.Save(list, path)
}

func TestRun_ListSaveFailureMarksItemFailed(t *testing.T) {
	env := newTestEnv(t, threeItems)
	env.store = &flakyStore{Store: worklist.NewStore(), failures: 1}

	summary, err := env.driver(Options{}, nil).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Completed)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, "persistence_error", summary.Failures[0].ErrorType)
	// the next save carried the failed status to disk
	assert.Equal(t, []models.Status{models.StatusFailed, models.StatusCompleted, models.StatusCompleted}, env.statuses(t))
}

func TestRun_ArtifactWriteFailureIsNotRetried(t *testing.T) {
	env := newTestEnv(t, threeItems)
	require.NoError(t, os.MkdirAll(filepath.Join(env.artifacts.Path("Alpha"), "blocker"), 0755))

	summary, err := env.driver(Options{}, nil).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, env.session.calls["https://blog.test/a"])
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, "persistence_error", summary.Failures[0].ErrorType)
}

func TestRun_InvalidURLFailsWithoutFetch(t *testing.T) {
	env := newTestEnv(t, `title,url
Broken,ftp://blog.test/a
Fine,https://blog.test/b
`)

	summary, err := env.driver(Options{}, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Completed)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, "invalid_url", summary.Failures[0].ErrorType)
	assert.Equal(t, 0, env.session.calls["ftp://blog.test/a"])
	assert.Equal(t, []models.Status{models.StatusFailed, models.StatusCompleted}, env.statuses(t))
}

func TestRun_InvalidURLDoesNotTouchSessionOrPacing(t *testing.T) {
	env := newTestEnv(t, `title,url
Broken,ftp://blog.test/a
Also broken,/relative/path
Fine,https://blog.test/b
`)

	delays := 0
	opts := Options{MaxItems: 1, Delay: func() time.Duration {
		delays++
		return 0
	}}
	summary, err := env.driver(opts, nil).Run(context.Background())
	require.NoError(t, err)

	// invalid items neither wait, count as fetches, nor open the session
	assert.Equal(t, 0, delays)
	assert.Equal(t, 2, summary.Failed)
	assert.Equal(t, 1, summary.Completed)
	assert.Equal(t, 0, summary.Remaining)
	assert.Equal(t, 1, env.session.opens)
	assert.Equal(t, 1, env.session.totalCalls())
}

func TestRun_InvalidURLWithBrokenSessionDoesNotAbort(t *testing.T) {
	env := newTestEnv(t, "title,url\nBroken,ftp://blog.test/a\n")
	env.session.openErr = errors.New("no browser")

	summary, err := env.driver(Options{}, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 0, env.session.opens)
}

func TestRun_SkipSaveFailureKeepsPriorStatus(t *testing.T) {
	env := newTestEnv(t, `title,url,status
Alpha,https://blog.test/a,completed
Beta,https://blog.test/b,
`)
	_, err := env.artifacts.Write("Alpha", artifact_manager.Artifact{Title: "Alpha", Body: "x"})
	require.NoError(t, err)
	env.store = &flakyStore{Store: worklist.NewStore(), failures: 1}

	summary, err := env.driver(Options{}, nil).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 1, summary.Completed)
	assert.Equal(t, 0, summary.Failed)
	assert.Empty(t, summary.Failures)
	assert.Equal(t, 0, env.session.calls["https://blog.test/a"])
	assert.Equal(t, []models.Status{models.StatusCompleted, models.StatusCompleted}, env.statuses(t))
}

func TestRun_MissingInput(t *testing.T) {
	env := newTestEnv(t, threeItems)
	env.input = filepath.Join(t.TempDir(), "missing.csv")

	summary, err := env.driver(Options{}, nil).Run(context.Background())
	assert.Nil(t, summary)
	var notFound *worklist.NotFoundError
	assert.True(t, errors.As(err, &notFound))
}

func TestRun_RecordsHistory(t *testing.T) {
	env := newTestEnv(t, threeItems)
	env.session.failures["https://blog.test/b"] = -1

	history, err := db.Open(":memory:")
	require.NoError(t, err)
	defer history.Close()

	summary, err := env.driver(Options{}, history).Run(context.Background())
	require.NoError(t, err)

	run, err := history.GetRun(summary.RunID)
	require.NoError(t, err)
	assert.Equal(t, db.RunFinished, run.State)
	assert.Equal(t, 2, run.Completed)
	assert.Equal(t, 1, run.Failed)

	accesses, err := history.ListAccesses(summary.RunID)
	require.NoError(t, err)
	assert.Len(t, accesses, 5)

	failed, err := history.ListFailedURLs(0)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "https://blog.test/b", failed[0].URL)

	doc, err := history.GetDocument("https://blog.test/a")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "Alpha", doc.Slug)
}

func TestRun_ItemLogsCarryPosition(t *testing.T) {
	env := newTestEnv(t, threeItems)
	var logs bytes.Buffer
	env.logs = &logs

	_, err := env.driver(Options{}, nil).Run(context.Background())
	require.NoError(t, err)

	assert.Regexp(t, `msg="fetching item" run_id=\S+ item=2 total=3 slug=Beta`, logs.String())
}
