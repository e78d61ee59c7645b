package report

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/stallwatch/stallwatch/internal/ledger"
)

func TestExportXLSX_WritesBothSheets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.xlsx")

	trades := []ledger.TradeRecord{
		{
			ID: 1, TraderID: "trader-a", ItemKey: "gpu",
			PreviousQuantity: 5, CurrentQuantity: 2, Delta: -3,
			PricePerUnit: 300000, TotalValue: 900000,
			Kind:       ledger.KindPurchase,
			ObservedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		},
	}
	stats := []ledger.KindStats{
		{Kind: ledger.KindPurchase, Count: 1, TotalValue: 900000, AvgPrice: 300000, QuantityMoved: 3},
	}

	require.NoError(t, ExportXLSX(path, trades, stats))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.ElementsMatch(t, []string{"Trades", "Stats"}, f.GetSheetList())

	header, err := f.GetCellValue("Trades", "A1")
	require.NoError(t, err)
	assert.Equal(t, "ID", header)

	trader, err := f.GetCellValue("Trades", "D2")
	require.NoError(t, err)
	assert.Equal(t, "trader-a", trader)

	kind, err := f.GetCellValue("Trades", "C2")
	require.NoError(t, err)
	assert.Equal(t, "purchase", kind)

	observed, err := f.GetCellValue("Trades", "B2")
	require.NoError(t, err)
	assert.Equal(t, "2026-03-01T12:00:00Z", observed)

	statKind, err := f.GetCellValue("Stats", "A2")
	require.NoError(t, err)
	assert.Equal(t, "purchase", statKind)

	count, err := f.GetCellValue("Stats", "B2")
	require.NoError(t, err)
	assert.Equal(t, "1", count)
}

func TestExportXLSX_EmptyLedgerStillWritesHeaders(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.xlsx")

	require.NoError(t, ExportXLSX(path, nil, nil))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	header, err := f.GetCellValue("Trades", "A1")
	require.NoError(t, err)
	assert.Equal(t, "ID", header)

	statHeader, err := f.GetCellValue("Stats", "A1")
	require.NoError(t, err)
	assert.Equal(t, "Kind", statHeader)
}
