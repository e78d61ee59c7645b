package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/stallwatch/stallwatch/internal/store"
)

// RecentTrades returns the newest trades, ordered by timestamp descending
// with the ledger id as a tiebreaker. Returns an empty slice (not nil)
// when the ledger is empty.
func (l *Ledger) RecentTrades(ctx context.Context, limit int) ([]TradeRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	var trades []TradeRecord
	err := l.pool.WithConn(ctx, func(c *store.Conn) error {
		rows, err := c.DB().QueryContext(ctx, `
			SELECT id, trader_id, item_key, previous_quantity, current_quantity,
			       delta, price_per_unit, total_value, trade_kind, observed_at, evidence_ref
			FROM trades
			ORDER BY observed_at DESC, id DESC
			LIMIT ?
		`, limit)
		if err != nil {
			return fmt.Errorf("query recent trades: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			t, err := scanTrade(rows)
			if err != nil {
				return err
			}
			trades = append(trades, t)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	if trades == nil {
		trades = []TradeRecord{}
	}
	return trades, nil
}

// StatsSince aggregates trades over a trailing window, grouped by trade
// kind: count, total value, average price, and total quantity moved.
func (l *Ledger) StatsSince(ctx context.Context, window time.Duration) ([]KindStats, error) {
	cutoff := l.now().UTC().Add(-window)

	var stats []KindStats
	err := l.pool.WithConn(ctx, func(c *store.Conn) error {
		rows, err := c.DB().QueryContext(ctx, `
			SELECT trade_kind, COUNT(*), SUM(total_value), AVG(price_per_unit), SUM(ABS(delta))
			FROM trades
			WHERE observed_at >= ?
			GROUP BY trade_kind
			ORDER BY trade_kind
		`, formatTime(cutoff))
		if err != nil {
			return fmt.Errorf("query trade stats: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var s KindStats
			var kind string
			if err := rows.Scan(&kind, &s.Count, &s.TotalValue, &s.AvgPrice, &s.QuantityMoved); err != nil {
				return fmt.Errorf("scan trade stats: %w", err)
			}
			s.Kind = TradeKind(kind)
			stats = append(stats, s)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	if stats == nil {
		stats = []KindStats{}
	}
	return stats, nil
}

// Inventory returns the current listings for one item, cheapest first.
func (l *Ledger) Inventory(ctx context.Context, itemKey string) ([]StockRow, error) {
	itemKey = NormalizeItemKey(itemKey)

	var out []StockRow
	err := l.pool.WithConn(ctx, func(c *store.Conn) error {
		rows, err := c.DB().QueryContext(ctx, `
			SELECT trader_id, item_id, quantity, price_per_unit, last_updated
			FROM current_inventory
			WHERE item_key = ?
			ORDER BY price_per_unit ASC, trader_id ASC
		`, itemKey)
		if err != nil {
			return fmt.Errorf("query inventory: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			row := StockRow{ItemKey: itemKey}
			var updated string
			if err := rows.Scan(&row.TraderID, &row.ItemID, &row.Quantity, &row.PricePerUnit, &updated); err != nil {
				return fmt.Errorf("scan inventory row: %w", err)
			}
			row.LastUpdated, err = parseTime(updated)
			if err != nil {
				return fmt.Errorf("parse inventory timestamp: %w", err)
			}
			out = append(out, row)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	if out == nil {
		out = []StockRow{}
	}
	return out, nil
}

// scanTrade reads one ledger row.
func scanTrade(rows *sql.Rows) (TradeRecord, error) {
	var (
		t        TradeRecord
		kind     string
		observed string
		evidence sql.NullString
	)
	err := rows.Scan(
		&t.ID,
		&t.TraderID,
		&t.ItemKey,
		&t.PreviousQuantity,
		&t.CurrentQuantity,
		&t.Delta,
		&t.PricePerUnit,
		&t.TotalValue,
		&kind,
		&observed,
		&evidence,
	)
	if err != nil {
		return TradeRecord{}, fmt.Errorf("scan trade: %w", err)
	}

	t.Kind = TradeKind(kind)
	t.EvidenceRef = evidence.String
	t.ObservedAt, err = parseTime(observed)
	if err != nil {
		return TradeRecord{}, fmt.Errorf("parse trade timestamp: %w", err)
	}

	return t, nil
}
