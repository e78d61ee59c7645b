// Package scanqueue stores scan scheduling state for the external scan
// scheduler. The core only hands out the next pending item and records
// status changes; the scheduling policy itself lives with the scheduler.
package scanqueue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stallwatch/stallwatch/internal/ledger"
	"github.com/stallwatch/stallwatch/internal/store"
)

// Status is the scheduling state of one queue entry.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// Entry is one row of the search queue.
type Entry struct {
	ItemKey       string
	Status        Status
	Priority      int
	LastProcessed time.Time
}

// Queue is the search_queue surface.
type Queue struct {
	pool   *store.Pool
	logger *slog.Logger
	retry  store.RetryPolicy
	now    func() time.Time
}

// New creates a queue over the given pool.
func New(pool *store.Pool, retry store.RetryPolicy, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	if retry.MaxRetries == 0 && retry.BaseDelay == 0 && retry.MaxDelay == 0 &&
		retry.JitterFraction == 0 && retry.Retryable == nil {
		retry = store.DefaultRetryPolicy()
	}
	return &Queue{pool: pool, logger: logger, retry: retry, now: time.Now}
}

// Next returns the next pending item key: highest priority first, FIFO
// among ties (insertion order breaks the tie). ok is false when nothing is
// pending.
func (q *Queue) Next(ctx context.Context) (itemKey string, ok bool, err error) {
	err = q.pool.WithConn(ctx, func(c *store.Conn) error {
		row := c.DB().QueryRowContext(ctx, `
			SELECT item_key
			FROM search_queue
			WHERE status = ?
			ORDER BY priority DESC, rowid ASC
			LIMIT 1
		`, string(StatusPending))

		scanErr := row.Scan(&itemKey)
		if errors.Is(scanErr, sql.ErrNoRows) {
			return nil
		}
		if scanErr != nil {
			return fmt.Errorf("next pending item: %w", scanErr)
		}
		ok = true
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return itemKey, ok, nil
}

// SetStatus updates one entry's scheduling state and stamps
// last_processed. Unknown item keys are an error - the scheduler should
// only touch entries it was handed.
func (q *Queue) SetStatus(ctx context.Context, itemKey string, status Status) error {
	itemKey = ledger.NormalizeItemKey(itemKey)

	return store.Retry(ctx, q.logger, q.retry, func() error {
		return q.pool.WithConn(ctx, func(c *store.Conn) error {
			res, err := c.DB().ExecContext(ctx, `
				UPDATE search_queue
				SET status = ?, last_processed = ?
				WHERE item_key = ?
			`, string(status), q.now().UTC().Format(time.RFC3339Nano), itemKey)
			if err != nil {
				return fmt.Errorf("update item status: %w", err)
			}

			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("update item status: rows affected: %w", err)
			}
			if n == 0 {
				return fmt.Errorf("update item status: unknown item %q", itemKey)
			}
			return nil
		})
	})
}

// Add upserts an entry. An existing entry keeps its status but adopts the
// new priority.
func (q *Queue) Add(ctx context.Context, itemKey string, priority int) error {
	itemKey = ledger.NormalizeItemKey(itemKey)
	if itemKey == "" {
		return fmt.Errorf("add queue entry: item key required")
	}

	return store.Retry(ctx, q.logger, q.retry, func() error {
		return q.pool.WithConn(ctx, func(c *store.Conn) error {
			_, err := c.DB().ExecContext(ctx, `
				INSERT INTO search_queue (item_key, status, priority)
				VALUES (?, ?, ?)
				ON CONFLICT(item_key) DO UPDATE SET priority = excluded.priority
			`, itemKey, string(StatusPending), priority)
			if err != nil {
				return fmt.Errorf("upsert queue entry: %w", err)
			}
			return nil
		})
	})
}

// PendingCount returns how many entries are waiting.
func (q *Queue) PendingCount(ctx context.Context) (int, error) {
	var count int
	err := q.pool.WithConn(ctx, func(c *store.Conn) error {
		return c.DB().QueryRowContext(ctx, `
			SELECT COUNT(*) FROM search_queue WHERE status = ?
		`, string(StatusPending)).Scan(&count)
	})
	if err != nil {
		return 0, fmt.Errorf("count pending items: %w", err)
	}
	return count, nil
}
