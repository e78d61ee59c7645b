// Package textcache is the ocr_cache surface: an opaque content-hash keyed
// cache populated by the external OCR collaborator. The core treats it as
// a generic cache table and only supplies hit counting and eviction.
package textcache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stallwatch/stallwatch/internal/store"
)

// Cache wraps the ocr_cache table.
type Cache struct {
	pool   *store.Pool
	logger *slog.Logger
	retry  store.RetryPolicy
	now    func() time.Time
}

// New creates a cache over the given pool.
func New(pool *store.Pool, retry store.RetryPolicy, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	if retry.MaxRetries == 0 && retry.BaseDelay == 0 && retry.MaxDelay == 0 &&
		retry.JitterFraction == 0 && retry.Retryable == nil {
		retry = store.DefaultRetryPolicy()
	}
	return &Cache{pool: pool, logger: logger, retry: retry, now: time.Now}
}

// HashContent derives the cache key for a piece of captured content.
func HashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Get returns the cached value for a content hash and bumps its hit count.
// ok is false on a miss.
func (c *Cache) Get(ctx context.Context, contentHash string) (value string, ok bool, err error) {
	err = c.pool.WithConn(ctx, func(conn *store.Conn) error {
		scanErr := conn.DB().QueryRowContext(ctx, `
			SELECT value FROM ocr_cache WHERE content_hash = ?
		`, contentHash).Scan(&value)
		if errors.Is(scanErr, sql.ErrNoRows) {
			return nil
		}
		if scanErr != nil {
			return fmt.Errorf("cache lookup: %w", scanErr)
		}
		ok = true

		// Hit accounting feeds the eviction heuristic. A lost update here
		// only skews the count, so it rides the same connection without a
		// transaction.
		_, updErr := conn.DB().ExecContext(ctx, `
			UPDATE ocr_cache SET hit_count = hit_count + 1, last_hit_at = ?
			WHERE content_hash = ?
		`, c.now().UTC().Format(time.RFC3339Nano), contentHash)
		if updErr != nil {
			return fmt.Errorf("cache hit accounting: %w", updErr)
		}
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return value, ok, nil
}

// Put stores or refreshes a cache entry. The hit count of an existing
// entry is preserved.
func (c *Cache) Put(ctx context.Context, contentHash, value string) error {
	if contentHash == "" {
		return fmt.Errorf("cache put: content hash required")
	}

	return store.Retry(ctx, c.logger, c.retry, func() error {
		return c.pool.WithConn(ctx, func(conn *store.Conn) error {
			_, err := conn.DB().ExecContext(ctx, `
				INSERT INTO ocr_cache (content_hash, value, hit_count, created_at)
				VALUES (?, ?, 0, ?)
				ON CONFLICT(content_hash) DO UPDATE SET value = excluded.value
			`, contentHash, value, c.now().UTC().Format(time.RFC3339Nano))
			if err != nil {
				return fmt.Errorf("cache put: %w", err)
			}
			return nil
		})
	})
}

// Evict removes entries with fewer than minHits hits that are older than
// maxAge - the TTL-style heuristic for keeping the cache bounded. Returns
// how many entries were removed.
func (c *Cache) Evict(ctx context.Context, minHits int, maxAge time.Duration) (int64, error) {
	cutoff := c.now().UTC().Add(-maxAge).Format(time.RFC3339Nano)

	var removed int64
	err := store.Retry(ctx, c.logger, c.retry, func() error {
		return c.pool.WithConn(ctx, func(conn *store.Conn) error {
			res, err := conn.DB().ExecContext(ctx, `
				DELETE FROM ocr_cache WHERE hit_count < ? AND created_at < ?
			`, minHits, cutoff)
			if err != nil {
				return fmt.Errorf("cache evict: %w", err)
			}
			removed, err = res.RowsAffected()
			if err != nil {
				return fmt.Errorf("cache evict: rows affected: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		return 0, err
	}

	if removed > 0 {
		c.logger.Debug("evicted cache entries", "removed", removed, "min_hits", minHits)
	}
	return removed, nil
}

// Len returns the number of cached entries.
func (c *Cache) Len(ctx context.Context) (int, error) {
	var n int
	err := c.pool.WithConn(ctx, func(conn *store.Conn) error {
		return conn.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM ocr_cache`).Scan(&n)
	})
	if err != nil {
		return 0, fmt.Errorf("cache size: %w", err)
	}
	return n, nil
}
