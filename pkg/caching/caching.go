package caching

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dtnitsch/postgrab/internal/common"
	"github.com/dtnitsch/postgrab/pkg/storage"
)

// Cache provides a simple file-based cache with a TTL.
// A non-positive TTL never expires entries.
type Cache struct {
	path    string
	ttl     time.Duration
	storage *storage.Storage
}

// NewCache creates a new Cache instance.
// The cache path will be created if it doesn't exist.
func NewCache(path string, ttl time.Duration) (*Cache, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &Cache{
		path:    path,
		ttl:     ttl,
		storage: &storage.Storage{},
	}, nil
}

// key is the SHA256 of the URL, so any URL maps to a safe filename.
func (c *Cache) key(url string) string {
	return common.ContentHash([]byte(url))
}

// Get returns the cached bytes for url if present and not expired.
func (c *Cache) Get(url string) ([]byte, bool) {
	filePath := filepath.Join(c.path, c.key(url))

	stats, err := c.storage.GetFileStats(filePath)
	if err != nil {
		return nil, false
	}
	if c.ttl > 0 && time.Since(stats.ModTime) > c.ttl {
		return nil, false
	}

	data, err := c.storage.ReadFile(filePath)
	if err != nil {
		return nil, false
	}
	return data, true
}

// Set stores data for url.
func (c *Cache) Set(url string, data []byte) error {
	filePath := filepath.Join(c.path, c.key(url))
	if err := c.storage.SaveFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write to cache: %w", err)
	}
	return nil
}
