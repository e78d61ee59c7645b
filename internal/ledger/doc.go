// Package ledger infers trade events by diffing scan observations against
// the persisted current-state table.
//
// Trade kinds are derived deterministically from the quantity delta:
// delta>0 is a restock, delta<0 with the listing still present is a
// purchase, and a listing removed entirely is sold_out with quantity 0.
// Every quantity change produces exactly one TradeRecord in the same
// transaction that upserts the state row - the ledger and the state table
// can never disagree.
//
// Processing for one item key is serialized through a per-key mutex;
// distinct items diff fully in parallel. Batches are atomic: a failed
// batch leaves both tables exactly as they were.
package ledger
