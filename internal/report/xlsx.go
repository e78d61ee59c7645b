package report

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/stallwatch/stallwatch/internal/ledger"
)

// ExportXLSX writes trades and per-kind statistics to a spreadsheet with
// two sheets, Trades and Stats.
func ExportXLSX(path string, trades []ledger.TradeRecord, stats []ledger.KindStats) error {
	f := excelize.NewFile()
	defer f.Close()

	const tradesSheet = "Trades"
	if err := f.SetSheetName("Sheet1", tradesSheet); err != nil {
		return fmt.Errorf("rename trades sheet: %w", err)
	}

	tradeHeaders := []string{
		"ID", "Observed At", "Kind", "Trader", "Item",
		"Previous Qty", "Current Qty", "Delta", "Price", "Total Value", "Evidence",
	}
	if err := writeRow(f, tradesSheet, 1, toCells(tradeHeaders)); err != nil {
		return err
	}
	for i, t := range trades {
		cells := []any{
			t.ID,
			t.ObservedAt.UTC().Format(time.RFC3339),
			string(t.Kind),
			t.TraderID,
			t.ItemKey,
			t.PreviousQuantity,
			t.CurrentQuantity,
			t.Delta,
			t.PricePerUnit,
			t.TotalValue,
			t.EvidenceRef,
		}
		if err := writeRow(f, tradesSheet, i+2, cells); err != nil {
			return err
		}
	}

	const statsSheet = "Stats"
	if _, err := f.NewSheet(statsSheet); err != nil {
		return fmt.Errorf("create stats sheet: %w", err)
	}
	statHeaders := []string{"Kind", "Count", "Total Value", "Avg Price", "Qty Moved"}
	if err := writeRow(f, statsSheet, 1, toCells(statHeaders)); err != nil {
		return err
	}
	for i, s := range stats {
		cells := []any{string(s.Kind), s.Count, s.TotalValue, s.AvgPrice, s.QuantityMoved}
		if err := writeRow(f, statsSheet, i+2, cells); err != nil {
			return err
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save spreadsheet: %w", err)
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, cells []any) error {
	for col, v := range cells {
		name, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return fmt.Errorf("cell name: %w", err)
		}
		if err := f.SetCellValue(sheet, name, v); err != nil {
			return fmt.Errorf("set cell %s: %w", name, err)
		}
	}
	return nil
}

func toCells(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
