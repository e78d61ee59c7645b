// Package report renders trade data for the CLI and exports it to
// spreadsheets. Rendering is deterministic - output depends only on the
// rows passed in, so it golden-tests cleanly.
package report

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/stallwatch/stallwatch/internal/ledger"
	"github.com/stallwatch/stallwatch/internal/store"
)

// RenderTrades writes a human-readable trade table.
func RenderTrades(w io.Writer, trades []ledger.TradeRecord) error {
	if len(trades) == 0 {
		_, err := fmt.Fprintln(w, "no trades recorded")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTIME\tKIND\tTRADER\tITEM\tQTY\tDELTA\tPRICE\tVALUE")
	for _, t := range trades {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%d->%d\t%+d\t%.2f\t%.2f\n",
			t.ID,
			t.ObservedAt.UTC().Format(time.RFC3339),
			t.Kind,
			t.TraderID,
			t.ItemKey,
			t.PreviousQuantity,
			t.CurrentQuantity,
			t.Delta,
			t.PricePerUnit,
			t.TotalValue,
		)
	}
	return tw.Flush()
}

// RenderStats writes per-kind aggregates for a trailing window.
func RenderStats(w io.Writer, window time.Duration, stats []ledger.KindStats) error {
	fmt.Fprintf(w, "trade statistics, trailing %s\n\n", window)

	if len(stats) == 0 {
		_, err := fmt.Fprintln(w, "no trades in window")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tCOUNT\tTOTAL VALUE\tAVG PRICE\tQTY MOVED")
	for _, s := range stats {
		fmt.Fprintf(tw, "%s\t%d\t%.2f\t%.2f\t%d\n",
			s.Kind, s.Count, s.TotalValue, s.AvgPrice, s.QuantityMoved)
	}
	return tw.Flush()
}

// RenderInventory writes the current listings for one item, cheapest first.
func RenderInventory(w io.Writer, itemKey string, rows []ledger.StockRow) error {
	fmt.Fprintf(w, "current inventory for %q\n\n", itemKey)

	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "no traders currently list this item")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TRADER\tVARIANT\tQTY\tPRICE\tUPDATED")
	for _, r := range rows {
		variant := r.ItemID
		if variant == "" {
			variant = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%.2f\t%s\n",
			r.TraderID, variant, r.Quantity, r.PricePerUnit,
			r.LastUpdated.UTC().Format(time.RFC3339))
	}
	return tw.Flush()
}

// RenderPoolStats writes the pool/health snapshot.
func RenderPoolStats(w io.Writer, s store.Stats) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "capacity\t%d\n", s.Capacity)
	fmt.Fprintf(tw, "active\t%d\n", s.Active)
	fmt.Fprintf(tw, "total created\t%d\n", s.TotalCreated)
	fmt.Fprintf(tw, "leaks detected\t%d\n", s.LeaksDetected)
	fmt.Fprintf(tw, "replaced\t%d\n", s.Replaced)
	fmt.Fprintf(tw, "acquire wait avg/max\t%s / %s\n", s.AvgAcquireWait, s.MaxAcquireWait)
	fmt.Fprintf(tw, "validation avg/max\t%s / %s\n", s.AvgValidation, s.MaxValidation)
	return tw.Flush()
}
