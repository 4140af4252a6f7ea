package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/dtnitsch/postgrab/models"
	"github.com/dtnitsch/postgrab/pkg/pacing"
	"github.com/go-resty/resty/v2"
)

// DefaultTimeout bounds a single page request.
const DefaultTimeout = 30 * time.Second

// HTTPOptions configures an HTTPSession.
type HTTPOptions struct {
	Timeout   time.Duration
	UserAgent string
	Headers   map[string]string
	Proxy     string
	// Dwell is waited after every successful fetch, standing in for a reader
	// scrolling through the page. nil disables it.
	Dwell  pacing.Jitter
	Logger *slog.Logger
}

// HTTPSession fetches pages with a pooled resty client.
type HTTPSession struct {
	opts   HTTPOptions
	logger *slog.Logger

	mu     sync.Mutex
	client *resty.Client
	closed bool
}

// NewHTTPSession returns an unopened session.
func NewHTTPSession(opts HTTPOptions) *HTTPSession {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = models.DefaultUserAgent
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPSession{opts: opts, logger: logger}
}

// Open builds the HTTP client.
func (s *HTTPSession) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return &SessionInitError{Err: errors.New("session already closed")}
	}
	if s.client != nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return &SessionInitError{Err: err}
	}

	client := resty.New().
		SetTimeout(s.opts.Timeout).
		SetRetryCount(0).
		SetLogger(restyLogger{s.logger}).
		SetHeader("User-Agent", s.opts.UserAgent).
		SetHeaders(s.opts.Headers)

	if s.opts.Proxy != "" {
		proxyURL, err := url.Parse(s.opts.Proxy)
		if err != nil || proxyURL.Scheme == "" || proxyURL.Host == "" {
			return &SessionInitError{Err: fmt.Errorf("invalid proxy %q", s.opts.Proxy)}
		}
		client.SetProxy(proxyURL.String())
	}

	s.client = client
	s.logger.Debug("HTTP session opened", "timeout", s.opts.Timeout, "proxy", s.opts.Proxy != "")
	return nil
}

// Fetch performs a GET bounded by the session timeout.
func (s *HTTPSession) Fetch(ctx context.Context, rawURL string) (*models.RawPage, error) {
	s.mu.Lock()
	client := s.client
	s.mu.Unlock()
	if client == nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, ErrNotOpen)
	}

	reqCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	resp, err := client.R().SetContext(reqCtx).Get(rawURL)
	if err != nil {
		return nil, &RetrievalError{URL: rawURL, Err: err}
	}
	if !resp.IsSuccess() {
		return nil, &RetrievalError{
			URL:        rawURL,
			StatusCode: resp.StatusCode(),
			Err:        fmt.Errorf("unexpected response %q", resp.Status()),
		}
	}

	body := resp.Body()
	if len(body) == 0 {
		return nil, &RetrievalError{URL: rawURL, StatusCode: resp.StatusCode(), Err: errors.New("empty response body")}
	}

	page := &models.RawPage{
		URL:         rawURL,
		FinalURL:    rawURL,
		StatusCode:  resp.StatusCode(),
		ContentType: resp.Header().Get("Content-Type"),
		Body:        body,
		FetchedAt:   time.Now(),
	}
	if raw := resp.RawResponse; raw != nil && raw.Request != nil && raw.Request.URL != nil {
		page.FinalURL = raw.Request.URL.String()
	}

	if s.opts.Dwell != nil {
		// the page is already in hand; an interrupted dwell changes nothing
		_ = pacing.Sleep(ctx, s.opts.Dwell())
	}

	return page, nil
}

// Close drops idle connections. The session cannot be reopened.
func (s *HTTPSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	if s.client != nil {
		s.client.GetClient().CloseIdleConnections()
		s.client = nil
		s.logger.Debug("HTTP session closed")
	}
	return nil
}

// restyLogger routes resty's internal messages through slog.
type restyLogger struct {
	logger *slog.Logger
}

func (l restyLogger) Errorf(format string, v ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, v...), "component", "resty")
}

func (l restyLogger) Warnf(format string, v ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, v...), "component", "resty")
}

func (l restyLogger) Debugf(format string, v ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, v...), "component", "resty")
}
