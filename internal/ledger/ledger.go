package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stallwatch/stallwatch/internal/store"
)

// Ledger converts observation batches into trade records and current-state
// upserts, atomically per batch. It is the only writer of the trades and
// current_inventory tables.
type Ledger struct {
	pool   *store.Pool
	logger *slog.Logger
	retry  store.RetryPolicy
	keys   *keyLock

	// now is swapped out in tests for deterministic timestamps.
	now func() time.Time
}

// NewLedger creates a ledger over the given pool. Writes are retried with
// the given policy; a zero policy uses the default.
func NewLedger(pool *store.Pool, retry store.RetryPolicy, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	if retry.MaxRetries == 0 && retry.BaseDelay == 0 && retry.MaxDelay == 0 &&
		retry.JitterFraction == 0 && retry.Retryable == nil {
		retry = store.DefaultRetryPolicy()
	}
	return &Ledger{
		pool:   pool,
		logger: logger,
		retry:  retry,
		keys:   newKeyLock(),
		now:    time.Now,
	}
}

// DiffBatch processes everything currently shown for one item across all
// traders in this scan cycle. Inside one atomic transaction per batch:
//
//   - first sighting of a (trader, item) key inserts state only, no trade
//   - unchanged quantity is a no-op
//   - changed quantity emits exactly one TradeRecord (delta>0 restock,
//     delta<0 purchase) and upserts the state row
//
// Duplicate trader entries within one batch: last one in iteration order
// wins; the batch is compacted before processing so a duplicate never
// yields an intermediate trade.
//
// Returns the ids of newly created trade records, in batch order. On any
// failure the transaction rolls back entirely and both tables are exactly
// as they were before the call.
func (l *Ledger) DiffBatch(ctx context.Context, itemKey string, observations []Observation) ([]int64, error) {
	itemKey = NormalizeItemKey(itemKey)
	if itemKey == "" {
		return nil, fmt.Errorf("diff batch: item key required")
	}

	unlock := l.keys.lock(itemKey)
	defer unlock()

	compact := compactObservations(observations)

	var ids []int64
	err := store.Retry(ctx, l.logger, l.retry, func() error {
		ids = ids[:0]
		return l.pool.WithConn(ctx, func(c *store.Conn) error {
			tx, err := c.BeginTx(ctx)
			if err != nil {
				return fmt.Errorf("begin diff tx: %w", err)
			}
			defer tx.Rollback() // No-op if committed

			now := l.now().UTC()
			for _, obs := range compact {
				id, created, err := applyObservation(ctx, tx, itemKey, obs, now)
				if err != nil {
					return err
				}
				if created {
					ids = append(ids, id)
				}
			}

			if err := tx.Commit(); err != nil {
				return fmt.Errorf("commit diff batch: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if len(ids) > 0 {
		l.logger.Debug("diff batch recorded trades",
			"item", itemKey,
			"observations", len(compact),
			"trades", len(ids),
		)
	}

	// Return empty slice instead of nil
	if ids == nil {
		ids = []int64{}
	}
	return ids, nil
}

// DetectDisappearance closes out state rows for traders who vanished from
// a fresh scan of itemKey. observedTraders is the complete set of trader
// ids actually seen this cycle. For each state row whose trader is absent,
// one sold_out TradeRecord is emitted (current quantity 0, delta equal to
// minus the previous quantity) and the row is deleted - all in one
// transaction.
//
// Idempotent: a second run with the same observed set creates zero new
// records, because the rows no longer exist.
func (l *Ledger) DetectDisappearance(ctx context.Context, itemKey string, observedTraders []string) ([]int64, error) {
	itemKey = NormalizeItemKey(itemKey)
	if itemKey == "" {
		return nil, fmt.Errorf("detect disappearance: item key required")
	}

	observed := make(map[string]struct{}, len(observedTraders))
	for _, id := range observedTraders {
		observed[id] = struct{}{}
	}

	unlock := l.keys.lock(itemKey)
	defer unlock()

	var ids []int64
	err := store.Retry(ctx, l.logger, l.retry, func() error {
		ids = ids[:0]
		return l.pool.WithConn(ctx, func(c *store.Conn) error {
			tx, err := c.BeginTx(ctx)
			if err != nil {
				return fmt.Errorf("begin disappearance tx: %w", err)
			}
			defer tx.Rollback()

			rows, err := readItemStock(ctx, tx, itemKey)
			if err != nil {
				return err
			}

			now := l.now().UTC()
			for _, row := range rows {
				if _, ok := observed[row.TraderID]; ok {
					continue
				}

				id, err := insertTrade(ctx, tx, TradeRecord{
					TraderID:         row.TraderID,
					ItemKey:          itemKey,
					PreviousQuantity: row.Quantity,
					CurrentQuantity:  0,
					Delta:            -row.Quantity,
					PricePerUnit:     row.PricePerUnit,
					TotalValue:       float64(row.Quantity) * row.PricePerUnit,
					Kind:             KindSoldOut,
					ObservedAt:       now,
				})
				if err != nil {
					return err
				}
				ids = append(ids, id)

				if _, err := tx.ExecContext(ctx, `
					DELETE FROM current_inventory
					WHERE trader_id = ? AND item_key = ? AND item_id = ?
				`, row.TraderID, itemKey, row.ItemID); err != nil {
					return fmt.Errorf("delete vanished stock row: %w", err)
				}
			}

			if err := tx.Commit(); err != nil {
				return fmt.Errorf("commit disappearance batch: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if len(ids) > 0 {
		l.logger.Info("traders vanished from item",
			"item", itemKey,
			"sold_out", len(ids),
		)
	}

	if ids == nil {
		ids = []int64{}
	}
	return ids, nil
}

// compactObservations keeps only the last observation per (trader, item
// variant), preserving the order of last occurrence.
func compactObservations(observations []Observation) []Observation {
	type obsKey struct{ trader, itemID string }

	last := make(map[obsKey]int, len(observations))
	for i, obs := range observations {
		last[obsKey{obs.TraderID, obs.ItemID}] = i
	}

	compact := make([]Observation, 0, len(last))
	for i, obs := range observations {
		if last[obsKey{obs.TraderID, obs.ItemID}] == i {
			compact = append(compact, obs)
		}
	}
	return compact
}

// applyObservation diffs one observation against the stored state row and
// records the inferred trade, if any. Returns the new trade id and whether
// one was created.
func applyObservation(ctx context.Context, tx *sql.Tx, itemKey string, obs Observation, now time.Time) (int64, bool, error) {
	var (
		prevQuantity int
		prevPrice    float64
	)
	err := tx.QueryRowContext(ctx, `
		SELECT quantity, price_per_unit
		FROM current_inventory
		WHERE trader_id = ? AND item_key = ? AND item_id = ?
	`, obs.TraderID, itemKey, obs.ItemID).Scan(&prevQuantity, &prevPrice)

	if errors.Is(err, sql.ErrNoRows) {
		// First sighting is not a trade.
		if err := upsertStock(ctx, tx, itemKey, obs, now); err != nil {
			return 0, false, err
		}
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read stock row: %w", err)
	}

	if prevQuantity == obs.Quantity {
		return 0, false, nil
	}

	delta := obs.Quantity - prevQuantity
	kind := KindPurchase
	if delta > 0 {
		kind = KindRestock
	}

	// Previous price is authoritative when known; fall back to the
	// observed price for rows stored before prices were captured.
	price := prevPrice
	if price == 0 {
		price = obs.PricePerUnit
	}

	id, err := insertTrade(ctx, tx, TradeRecord{
		TraderID:         obs.TraderID,
		ItemKey:          itemKey,
		PreviousQuantity: prevQuantity,
		CurrentQuantity:  obs.Quantity,
		Delta:            delta,
		PricePerUnit:     price,
		TotalValue:       abs(delta) * price,
		Kind:             kind,
		ObservedAt:       now,
		EvidenceRef:      obs.EvidenceRef,
	})
	if err != nil {
		return 0, false, err
	}

	if err := upsertStock(ctx, tx, itemKey, obs, now); err != nil {
		return 0, false, err
	}

	return id, true, nil
}

// insertTrade appends one row to the trade ledger.
func insertTrade(ctx context.Context, tx *sql.Tx, t TradeRecord) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO trades
		(trader_id, item_key, previous_quantity, current_quantity, delta,
		 price_per_unit, total_value, trade_kind, observed_at, evidence_ref)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		t.TraderID,
		t.ItemKey,
		t.PreviousQuantity,
		t.CurrentQuantity,
		t.Delta,
		t.PricePerUnit,
		t.TotalValue,
		string(t.Kind),
		formatTime(t.ObservedAt),
		nullString(t.EvidenceRef),
	)
	if err != nil {
		return 0, fmt.Errorf("insert trade: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("trade id: %w", err)
	}
	return id, nil
}

// upsertStock writes the observed quantity/price as the new current state.
func upsertStock(ctx context.Context, tx *sql.Tx, itemKey string, obs Observation, now time.Time) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO current_inventory
		(trader_id, item_key, item_id, quantity, price_per_unit, last_updated)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(trader_id, item_key, item_id) DO UPDATE SET
			quantity = excluded.quantity,
			price_per_unit = excluded.price_per_unit,
			last_updated = excluded.last_updated
	`,
		obs.TraderID,
		itemKey,
		obs.ItemID,
		obs.Quantity,
		obs.PricePerUnit,
		formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("upsert stock row: %w", err)
	}
	return nil
}

// readItemStock returns every state row for one item key.
func readItemStock(ctx context.Context, tx *sql.Tx, itemKey string) ([]StockRow, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT trader_id, item_id, quantity, price_per_unit
		FROM current_inventory
		WHERE item_key = ?
	`, itemKey)
	if err != nil {
		return nil, fmt.Errorf("query item stock: %w", err)
	}
	defer rows.Close()

	var out []StockRow
	for rows.Next() {
		row := StockRow{ItemKey: itemKey}
		if err := rows.Scan(&row.TraderID, &row.ItemID, &row.Quantity, &row.PricePerUnit); err != nil {
			return nil, fmt.Errorf("scan stock row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stock rows: %w", err)
	}

	return out, nil
}

func abs(delta int) float64 {
	if delta < 0 {
		return float64(-delta)
	}
	return float64(delta)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
