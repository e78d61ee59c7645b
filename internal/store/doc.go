// Package store provides the self-healing SQLite connection pool backing
// the stallwatch trade ledger.
//
// The pool owns a fixed-size set of wrapped connections:
//   - Acquire/Release with a bounded acquire timeout and leak accounting
//   - WithConn scoped acquisition that guarantees release on every exit path
//   - A 3-step health probe (liveness query, transactional no-op,
//     integrity check) run by the periodic sweep and on demand
//   - Transparent replacement of broken or stale handles so capacity stays
//     constant for the process lifetime
//   - A retry wrapper with exponential backoff and jitter for
//     classified-transient errors (SQLITE_BUSY, SQLITE_LOCKED)
//
// # Locking
//
// Structural pool mutations take mu; statistics counters take the lighter
// statsMu. The two are never held together, so stats snapshots are never
// serialized behind handle replacement.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout: wait for locks instead of failing immediately
//   - cache_size/mmap_size: fixed tuning shared by every handle
//   - foreign_keys=ON: enforce referential integrity
//
// The schema (trades, current_inventory, search_queue, ocr_cache,
// validation_log) is embedded and applied idempotently, with incremental
// migrations tracked via PRAGMA user_version.
package store
