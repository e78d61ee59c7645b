package ledger

import (
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// TradeKind classifies an inferred trade event.
type TradeKind string

const (
	// KindRestock: quantity increased for an existing listing.
	KindRestock TradeKind = "restock"

	// KindPurchase: quantity decreased but the listing still exists.
	KindPurchase TradeKind = "purchase"

	// KindSoldOut: the listing vanished from a fresh scan entirely.
	KindSoldOut TradeKind = "sold_out"
)

// Observation is one trader's listing of an item as seen in a scan cycle.
// A zero or negative quantity is an authoritative present observation, not
// a disappearance - only DetectDisappearance removes rows.
type Observation struct {
	TraderID string

	// ItemID distinguishes variants of the same item key. Usually empty.
	ItemID string

	Quantity     int
	PricePerUnit float64

	// EvidenceRef optionally links the capture frame this observation was
	// read from.
	EvidenceRef string
}

// TradeRecord is one row of the append-only trade ledger. Never mutated
// after insert.
type TradeRecord struct {
	ID               int64
	TraderID         string
	ItemKey          string
	PreviousQuantity int
	CurrentQuantity  int
	Delta            int
	PricePerUnit     float64
	TotalValue       float64
	Kind             TradeKind
	ObservedAt       time.Time
	EvidenceRef      string
}

// StockRow is the latest known quantity/price for one (trader, item, item
// variant) key. At most one row exists per key; last writer wins.
type StockRow struct {
	TraderID     string
	ItemKey      string
	ItemID       string
	Quantity     int
	PricePerUnit float64
	LastUpdated  time.Time
}

// KindStats aggregates trades of one kind over a trailing window.
type KindStats struct {
	Kind          TradeKind
	Count         int64
	TotalValue    float64
	AvgPrice      float64
	QuantityMoved int64
}

// ValidationEntry is one row of the audit trail written by the external
// validation collaborator.
type ValidationEntry struct {
	ID       int64
	Field    string
	Before   string
	After    string
	Outcome  string
	Note     string
	LoggedAt time.Time
}

// NormalizeItemKey canonicalizes an OCR-derived item key: Unicode NFC,
// surrounding whitespace trimmed, internal whitespace runs collapsed.
// OCR output is not guaranteed to be normalized, and two spellings of the
// same item must map to the same ledger key.
func NormalizeItemKey(key string) string {
	key = norm.NFC.String(strings.TrimSpace(key))
	return strings.Join(strings.Fields(key), " ")
}

// timeLayout is how timestamps are persisted. UTC, sortable as text.
const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}
