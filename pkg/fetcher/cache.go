package fetcher

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/dtnitsch/postgrab/models"
	"github.com/dtnitsch/postgrab/pkg/caching"
)

// CachingSession serves pages from a TTL file cache before asking the wrapped
// session. Open and Close pass straight through.
type CachingSession struct {
	Session
	cache  *caching.Cache
	logger *slog.Logger
}

// NewCachingSession wraps inner with cache.
func NewCachingSession(inner Session, cache *caching.Cache, logger *slog.Logger) *CachingSession {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachingSession{Session: inner, cache: cache, logger: logger}
}

// Fetch returns the cached body for url when fresh, otherwise fetches and stores it.
func (s *CachingSession) Fetch(ctx context.Context, url string) (*models.RawPage, error) {
	if data, ok := s.cache.Get(url); ok {
		s.logger.Debug("cache hit", "url", url, "bytes", len(data))
		return &models.RawPage{
			URL:        url,
			FinalURL:   url,
			StatusCode: http.StatusOK,
			Body:       data,
			FetchedAt:  time.Now(),
			FromCache:  true,
		}, nil
	}

	page, err := s.Session.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(url, page.Body); err != nil {
		s.logger.Warn("failed to cache page", "url", url, "error", err)
	}
	return page, nil
}
