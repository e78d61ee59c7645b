package store

import (
	"context"
	"fmt"
	"time"
)

// HealthStatus is the outcome of a probe.
type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusUnhealthy HealthStatus = "unhealthy"
)

// HealthReport is the result of a full validation probe.
// Probe failures are reported here as values, never as panics - the pool
// manager consumes the status and decides what to do with the handle.
type HealthReport struct {
	Status  HealthStatus
	Latency time.Duration
	Err     error
}

// Validator probes pooled connections for liveness and integrity.
// Every probe carries its own deadline so a stuck connection cannot stall
// the caller indefinitely.
type Validator struct {
	timeout time.Duration
}

// NewValidator creates a validator with the given per-probe deadline.
// A zero timeout falls back to one second.
func NewValidator(timeout time.Duration) *Validator {
	if timeout <= 0 {
		timeout = time.Second
	}
	return &Validator{timeout: timeout}
}

// Ping runs the cheap liveness probe: a trivial query with a short deadline.
// Used on acquire and release, where the full 3-step probe would be too
// expensive per operation.
func (v *Validator) Ping(c *Conn) error {
	ctx, cancel := context.WithTimeout(context.Background(), v.timeout)
	defer cancel()

	var one int
	if err := c.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("liveness query: %w", err)
	}
	return nil
}

// Validate runs the full 3-step probe:
//
//	(a) a trivial liveness query
//	(b) a transactional no-op (begin/commit)
//	(c) an integrity check (PRAGMA quick_check)
//
// The handle's last-validated timestamp and validation error are updated
// from the outcome. Validate never returns an error - failures are carried
// in the report's Status and Err fields.
func (v *Validator) Validate(c *Conn) HealthReport {
	start := time.Now()

	err := v.probe(c)

	report := HealthReport{
		Status:  StatusHealthy,
		Latency: time.Since(start),
	}
	if err != nil {
		report.Status = StatusUnhealthy
		report.Err = err
		c.markUnhealthy(err)
	} else {
		c.markValidated(time.Now().UTC())
	}

	return report
}

func (v *Validator) probe(c *Conn) error {
	ctx, cancel := context.WithTimeout(context.Background(), v.timeout)
	defer cancel()

	// Step 1: liveness
	var one int
	if err := c.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("liveness query: %w", err)
	}

	// Step 2: transactional no-op
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin probe tx: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit probe tx: %w", err)
	}

	// Step 3: integrity check
	var result string
	if err := c.db.QueryRowContext(ctx, "PRAGMA quick_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}

	return nil
}
