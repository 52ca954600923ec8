// Package cache provides a small on-disk cache for review server resources
// that change rarely, such as the root resource with its capability and
// link data. Entries expire by modification time.
package cache

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/reviewtools/postreview/internal/files"
	"github.com/reviewtools/postreview/internal/perms"
)

// Cache manages cached server resources.
// NewCache should be used to create instances of Cache.
type Cache struct {
	// dir is the directory where cache files are stored.
	dir string

	// ttl is the time-to-live for cached entries.
	ttl time.Duration

	// enabled determines if caching is enabled.
	enabled bool

	// refresh forces cache refresh when true.
	refresh bool

	// logger is used for logging cache operations.
	logger hclog.Logger
}

// NewCache creates a new cache instance for server resources.
func NewCache(logger hclog.Logger, opts ...Option) (*Cache, error) {
	options, err := NewOptions(opts...)
	if err != nil {
		return nil, err
	}

	// Only create cache directory if caching is enabled.
	if options.enabled {
		if err := files.EnsureAtLeastRegularDir(options.dir); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
	}

	return &Cache{
		dir:     options.dir,
		logger:  logger.Named("cache"),
		enabled: options.enabled,
		refresh: options.refreshCache,
		ttl:     options.ttl,
	}, nil
}

// Get returns the cached payload for key if present and fresh.
func (c *Cache) Get(key string) ([]byte, bool) {
	if !c.enabled || c.refresh {
		return nil, false
	}

	path := c.entryPath(key)
	if c.isExpired(path) {
		c.logger.Debug("Cache expired or missing", "key", key, "path", path)

		return nil, false
	}

	data, err := os.ReadFile(path)
	if err != nil {
		c.logger.Debug("Failed to read cache file", "path", path, "error", err)

		return nil, false
	}

	c.logger.Debug("Using cached entry", "key", key, "path", path)

	return data, true
}

// Store saves a payload for key, replacing any existing entry atomically.
func (c *Cache) Store(key string, data []byte) error {
	if !c.enabled {
		return nil
	}

	path := c.entryPath(key)

	// Create temporary file first, then rename into place.
	tmpFile, err := os.CreateTemp(c.dir, "tmp-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = os.Remove(tmpPath) // Clean up on any error.
	}()

	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	_ = tmpFile.Close()

	if err := os.Chmod(tmpPath, perms.RegularFile); err != nil {
		return fmt.Errorf("failed to set cache file permissions: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename cache file: %w", err)
	}

	c.logger.Debug("Cached entry", "key", key, "path", path)

	return nil
}

// entryPath derives the on-disk file name for a cache key from its hash.
func (c *Cache) entryPath(key string) string {
	hash := sha256.Sum256([]byte(key))
	return filepath.Join(c.dir, fmt.Sprintf("%x.json", hash))
}

// isExpired checks if a cache file is expired based on modification time.
func (c *Cache) isExpired(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return true
	}

	return time.Since(info.ModTime()) > c.ttl
}
