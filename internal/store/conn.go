package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added hit_count index on ocr_cache for eviction scans
const currentSchemaVersion = 1

// HealthState tracks a connection handle through its lifecycle.
//
// Transitions: fresh→in_use on acquire; in_use→idle on release+pass;
// in_use→unhealthy on a failed probe; unhealthy→retired immediately;
// idle→unhealthy on sweep failure; idle→retired on staleness.
// retired is terminal - the pool creates a fresh replacement.
type HealthState string

const (
	StateFresh     HealthState = "fresh"
	StateInUse     HealthState = "in_use"
	StateIdle      HealthState = "idle"
	StateUnhealthy HealthState = "unhealthy"
	StateRetired   HealthState = "retired"
)

// Tuning holds the fixed SQLite tuning parameters applied to every
// connection the pool creates. All handles share identical tuning for the
// process lifetime.
type Tuning struct {
	// CacheSizeKB is the page cache size in kibibytes.
	CacheSizeKB int

	// MmapSize is the memory-mapped I/O window in bytes.
	MmapSize int64

	// BusyTimeout is how long SQLite waits on a locked database before
	// returning SQLITE_BUSY.
	BusyTimeout time.Duration
}

// DefaultTuning returns the tuning used when the config does not override it.
func DefaultTuning() Tuning {
	return Tuning{
		CacheSizeKB: 64 * 1024,
		MmapSize:    256 * 1024 * 1024,
		BusyTimeout: 5 * time.Second,
	}
}

// Conn wraps one native SQLite connection with lifecycle metadata.
//
// A Conn is exclusively owned by exactly one borrower while checked out;
// otherwise it is owned by the pool. The underlying sql.DB is capped at a
// single native connection so the handle maps 1:1 onto a SQLite connection.
type Conn struct {
	id        string
	db        *sql.DB
	createdAt time.Time

	mu              sync.Mutex
	state           HealthState
	lastUsedAt      time.Time
	lastValidatedAt time.Time
	txCount         int64
	validationErr   error
}

// openConn opens a new underlying connection with the given tuning and
// returns a wrapped handle in the fresh state.
func openConn(path string, tuning Tuning) (*Conn, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// One native connection per handle - the pool does its own pooling.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := applyPragmas(db, tuning); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}

	now := time.Now().UTC()
	return &Conn{
		id:         uuid.NewString(),
		db:         db,
		createdAt:  now,
		state:      StateFresh,
		lastUsedAt: now,
	}, nil
}

// applyPragmas sets required SQLite configuration:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - busy timeout for lock contention
//   - page cache and mmap sizing
//   - foreign key enforcement
func applyPragmas(db *sql.DB, tuning Tuning) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", tuning.BusyTimeout.Milliseconds()),
		fmt.Sprintf("PRAGMA cache_size = -%d", tuning.CacheSizeKB),
		fmt.Sprintf("PRAGMA mmap_size = %d", tuning.MmapSize),
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
		version = 1
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 adds the hit_count index used by cache eviction scans.
// New databases get it from schema.sql; databases created before v1 need it
// added explicitly.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_ocr_cache_hits
		ON ocr_cache(hit_count)
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// ID returns the handle's unique identifier.
func (c *Conn) ID() string {
	return c.id
}

// DB returns the underlying sql.DB for direct queries.
// Only the current borrower may call this.
func (c *Conn) DB() *sql.DB {
	return c.db
}

// BeginTx starts a transaction and counts it against the handle.
func (c *Conn) BeginTx(ctx context.Context) (*sql.Tx, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.txCount++
	c.lastUsedAt = time.Now().UTC()
	c.mu.Unlock()

	return tx, nil
}

// State returns the current lifecycle state.
func (c *Conn) State() HealthState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// TxCount returns the number of transactions started on this handle.
func (c *Conn) TxCount() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.txCount
}

// Age returns how long the handle has existed.
func (c *Conn) Age(now time.Time) time.Duration {
	return now.Sub(c.createdAt)
}

// IdleFor returns how long the handle has been unused.
func (c *Conn) IdleFor(now time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return now.Sub(c.lastUsedAt)
}

// ValidationError returns the error from the most recent failed probe, or
// nil if the last probe passed.
func (c *Conn) ValidationError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.validationErr
}

// markInUse transitions the handle to in_use on acquire.
func (c *Conn) markInUse() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateInUse
	c.lastUsedAt = time.Now().UTC()
}

// markIdle transitions the handle to idle after a passed release probe.
func (c *Conn) markIdle() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateIdle
	c.lastUsedAt = time.Now().UTC()
	c.validationErr = nil
}

// markUnhealthy records a failed probe.
func (c *Conn) markUnhealthy(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateUnhealthy
	c.validationErr = err
}

// markValidated records a passed probe.
func (c *Conn) markValidated(at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastValidatedAt = at
	c.validationErr = nil
}

// retire transitions the handle to its terminal state and closes the
// underlying connection. Safe to call more than once.
func (c *Conn) retire() error {
	c.mu.Lock()
	alreadyRetired := c.state == StateRetired
	c.state = StateRetired
	c.mu.Unlock()

	if alreadyRetired {
		return nil
	}
	return c.db.Close()
}
