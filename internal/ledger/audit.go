package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/stallwatch/stallwatch/internal/store"
)

// AppendValidation writes one audit-trail row on behalf of the external
// validation collaborator. The collaborator owns the before/after
// semantics; the ledger only persists them.
func (l *Ledger) AppendValidation(ctx context.Context, e ValidationEntry) (int64, error) {
	if e.Field == "" || e.Outcome == "" {
		return 0, fmt.Errorf("append validation: field and outcome required")
	}
	if e.LoggedAt.IsZero() {
		e.LoggedAt = l.now().UTC()
	}

	var id int64
	err := store.Retry(ctx, l.logger, l.retry, func() error {
		return l.pool.WithConn(ctx, func(c *store.Conn) error {
			res, err := c.DB().ExecContext(ctx, `
				INSERT INTO validation_log (field, before_value, after_value, outcome, note, logged_at)
				VALUES (?, ?, ?, ?, ?, ?)
			`, e.Field, nullString(e.Before), nullString(e.After), e.Outcome, nullString(e.Note), formatTime(e.LoggedAt))
			if err != nil {
				return fmt.Errorf("insert validation entry: %w", err)
			}
			id, err = res.LastInsertId()
			if err != nil {
				return fmt.Errorf("validation entry id: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// RecentValidations returns the newest audit-trail entries.
func (l *Ledger) RecentValidations(ctx context.Context, limit int) ([]ValidationEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	var entries []ValidationEntry
	err := l.pool.WithConn(ctx, func(c *store.Conn) error {
		rows, err := c.DB().QueryContext(ctx, `
			SELECT id, field, before_value, after_value, outcome, note, logged_at
			FROM validation_log
			ORDER BY logged_at DESC, id DESC
			LIMIT ?
		`, limit)
		if err != nil {
			return fmt.Errorf("query validation log: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var (
				e                   ValidationEntry
				before, after, note sql.NullString
				logged              string
			)
			if err := rows.Scan(&e.ID, &e.Field, &before, &after, &e.Outcome, &note, &logged); err != nil {
				return fmt.Errorf("scan validation entry: %w", err)
			}
			e.Before = before.String
			e.After = after.String
			e.Note = note.String
			e.LoggedAt, err = parseTime(logged)
			if err != nil {
				return fmt.Errorf("parse validation timestamp: %w", err)
			}
			entries = append(entries, e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	if entries == nil {
		entries = []ValidationEntry{}
	}
	return entries, nil
}
