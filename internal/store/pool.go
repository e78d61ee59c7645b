package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrClosed is returned for operations on a closed pool.
var ErrClosed = errors.New("store: pool is closed")

// Config holds pool construction parameters. Size is fixed for the process
// lifetime once the pool is built.
type Config struct {
	// Path is the SQLite database file.
	Path string

	// Size is the fixed number of pooled connections.
	Size int

	// AcquireTimeout bounds how long Acquire blocks when the pool is empty.
	AcquireTimeout time.Duration

	// MaxAge retires handles older than this on release or sweep.
	MaxAge time.Duration

	// MaxIdle marks handles unused for longer than this as candidates for
	// the full sweep probe.
	MaxIdle time.Duration

	// SweepInterval is the period of the health sweep.
	SweepInterval time.Duration

	// ProbeTimeout is the per-probe deadline for health checks.
	ProbeTimeout time.Duration

	// Tuning is applied to every connection the pool creates.
	Tuning Tuning

	// Retry governs replacement-connection creation after init.
	Retry RetryPolicy
}

// withDefaults fills zero-valued fields.
func (c Config) withDefaults() Config {
	if c.Size <= 0 {
		c.Size = 4
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = 5 * time.Second
	}
	if c.MaxAge <= 0 {
		c.MaxAge = time.Hour
	}
	if c.MaxIdle <= 0 {
		c.MaxIdle = 5 * time.Minute
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Minute
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = time.Second
	}
	if c.Tuning == (Tuning{}) {
		c.Tuning = DefaultTuning()
	}
	if c.Retry.MaxRetries == 0 && c.Retry.BaseDelay == 0 && c.Retry.MaxDelay == 0 &&
		c.Retry.JitterFraction == 0 && c.Retry.Retryable == nil {
		c.Retry = DefaultRetryPolicy()
	}
	return c
}

// Stats is a point-in-time snapshot of pool health.
type Stats struct {
	Capacity       int
	Active         int
	TotalCreated   int64
	LeaksDetected  int64
	Replaced       int64
	AvgAcquireWait time.Duration
	MaxAcquireWait time.Duration
	AvgValidation  time.Duration
	MaxValidation  time.Duration
}

// Pool owns a fixed-size set of wrapped SQLite connections.
//
// Structural mutations (registering and retiring handles) are guarded by mu.
// Statistics counters live behind the lighter statsMu so stat reads are
// never serialized behind structural pool changes. The two locks are never
// held together.
type Pool struct {
	cfg       Config
	logger    *slog.Logger
	validator *Validator

	mu     sync.Mutex
	conns  map[string]*Conn
	free   chan *Conn
	closed bool
	done   chan struct{}

	statsMu      sync.Mutex
	active       int
	totalCreated int64
	leaks        int64
	replaced     int64
	acquireWaits latencyWindow
	validations  latencyWindow
}

// NewPool opens the database, applies the schema, and creates the initial
// set of connections. Failure to create any of the initial connections is
// fatal: the partially built pool is torn down and a FATAL_INIT error
// returned.
func NewPool(cfg Config, logger *slog.Logger) (*Pool, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()

	p := &Pool{
		cfg:       cfg,
		logger:    logger,
		validator: NewValidator(cfg.ProbeTimeout),
		conns:     make(map[string]*Conn, cfg.Size),
		free:      make(chan *Conn, cfg.Size),
		done:      make(chan struct{}),
	}

	for i := 0; i < cfg.Size; i++ {
		c, err := openConn(cfg.Path, cfg.Tuning)
		if err != nil {
			p.teardown()
			return nil, NewFatalInit(fmt.Errorf("connection %d of %d: %w", i+1, cfg.Size, err))
		}

		// The first connection bootstraps the schema for everyone.
		if i == 0 {
			if err := applySchema(c.DB()); err != nil {
				c.retire()
				p.teardown()
				return nil, NewFatalInit(err)
			}
		}

		p.register(c)
		p.free <- c
	}

	logger.Info("connection pool ready",
		"path", cfg.Path,
		"size", cfg.Size,
		"acquire_timeout", cfg.AcquireTimeout,
	)

	return p, nil
}

// Acquire returns an exclusively owned handle, blocking up to the
// configured acquire timeout when the pool is empty. On timeout the leak
// counter is incremented and a RESOURCE_EXHAUSTED error returned so the
// caller can apply backpressure.
//
// A cheap liveness probe runs on the handle before it is handed out; a
// failed probe transparently swaps in a freshly created handle.
func (p *Pool) Acquire(ctx context.Context) (*Conn, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	start := time.Now()
	timer := time.NewTimer(p.cfg.AcquireTimeout)
	defer timer.Stop()

	var c *Conn
	select {
	case c = <-p.free:
	case <-p.done:
		return nil, ErrClosed
	case <-timer.C:
		p.statsMu.Lock()
		p.leaks++
		p.statsMu.Unlock()
		p.logger.Error("acquire timed out with empty pool, probable handle leak",
			"timeout", p.cfg.AcquireTimeout,
		)
		return nil, NewResourceExhausted(p.cfg.AcquireTimeout.String())
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	p.statsMu.Lock()
	p.acquireWaits.record(time.Since(start))
	p.statsMu.Unlock()

	if err := p.validator.Ping(c); err != nil {
		p.logger.Warn("acquire-time probe failed, swapping in fresh handle",
			"conn", c.ID(),
			"error", err,
		)
		c.markUnhealthy(err)
		repl, rerr := p.replace(ctx, c)
		if rerr != nil {
			return nil, rerr
		}
		c = repl
	}

	c.markInUse()
	p.statsMu.Lock()
	p.active++
	p.statsMu.Unlock()

	return c, nil
}

// Release returns a handle to the pool after a post-use health probe and a
// staleness check. Healthy and fresh handles go back to the free list;
// unhealthy or stale ones are closed and replaced so capacity stays
// constant.
func (p *Pool) Release(c *Conn) {
	p.statsMu.Lock()
	p.active--
	p.statsMu.Unlock()

	if err := p.validator.Ping(c); err != nil {
		p.logger.Warn("release-time probe failed, replacing handle",
			"conn", c.ID(),
			"error", err,
		)
		c.markUnhealthy(err)
		p.replaceIntoPool(c)
		return
	}

	if age := c.Age(time.Now().UTC()); age > p.cfg.MaxAge {
		p.logger.Debug("retiring stale handle",
			"conn", c.ID(),
			"age", age,
			"tx_count", c.TxCount(),
		)
		p.replaceIntoPool(c)
		return
	}

	c.markIdle()
	p.putFree(c)
}

// WithConn acquires a handle, runs fn with it, and guarantees release on
// every exit path. This scoped-acquisition contract is the only supported
// way to touch a handle: no handle is ever silently leaked on an error.
func (p *Pool) WithConn(ctx context.Context, fn func(*Conn) error) error {
	c, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer p.Release(c)
	return fn(c)
}

// Run executes the periodic health sweep until ctx is done.
func (p *Pool) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Sweep()
		}
	}
}

// Sweep drains the idle side of the pool, runs the full 3-step probe on
// handles idle beyond max_idle, replaces failures and stale handles, and
// returns everything to the pool. Probes run per handle before
// re-insertion - the structural lock is never held for the whole sweep, so
// concurrent Acquire calls only contend on the short drain/refill window.
func (p *Pool) Sweep() {
	now := time.Now().UTC()

	var drained []*Conn
drain:
	for {
		select {
		case c := <-p.free:
			drained = append(drained, c)
		default:
			break drain
		}
	}

	for _, c := range drained {
		if age := c.Age(now); age > p.cfg.MaxAge {
			p.logger.Debug("sweep retiring stale handle", "conn", c.ID(), "age", age)
			p.replaceIntoPool(c)
			continue
		}

		if c.IdleFor(now) > p.cfg.MaxIdle {
			report := p.validator.Validate(c)
			p.statsMu.Lock()
			p.validations.record(report.Latency)
			p.statsMu.Unlock()

			if report.Status != StatusHealthy {
				p.logger.Warn("sweep probe failed, replacing handle",
					"conn", c.ID(),
					"error", report.Err,
				)
				p.replaceIntoPool(c)
				continue
			}
		}

		p.putFree(c)
	}

	// Replacement failures above may have shrunk the pool. Refill to
	// capacity rather than running below it - and never leave it empty.
	p.refill()
}

// Stats returns a point-in-time snapshot of pool counters and recent
// latencies. Only statsMu is taken, so snapshots are never blocked behind
// structural pool changes.
func (p *Pool) Stats() Stats {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()

	avgWait, maxWait := p.acquireWaits.avgMax()
	avgVal, maxVal := p.validations.avgMax()

	return Stats{
		Capacity:       p.cfg.Size,
		Active:         p.active,
		TotalCreated:   p.totalCreated,
		LeaksDetected:  p.leaks,
		Replaced:       p.replaced,
		AvgAcquireWait: avgWait,
		MaxAcquireWait: maxWait,
		AvgValidation:  avgVal,
		MaxValidation:  maxVal,
	}
}

// Close retires every handle and marks the pool closed. Handles still
// checked out are retired in place; their borrowers will see errors on
// next use.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.done)
	conns := make([]*Conn, 0, len(p.conns))
	for _, c := range p.conns {
		conns = append(conns, c)
	}
	p.conns = make(map[string]*Conn)
	p.mu.Unlock()

drain:
	for {
		select {
		case <-p.free:
		default:
			break drain
		}
	}

	var firstErr error
	for _, c := range conns {
		if c.State() == StateInUse {
			p.logger.Warn("closing pool with checked-out handle", "conn", c.ID())
		}
		if err := c.retire(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

// register adds a newly created handle to the pool's structural state.
func (p *Pool) register(c *Conn) {
	p.mu.Lock()
	p.conns[c.id] = c
	p.mu.Unlock()

	p.statsMu.Lock()
	p.totalCreated++
	p.statsMu.Unlock()
}

// putFree returns a handle to the free list, or retires it if the pool has
// closed underneath it.
func (p *Pool) putFree(c *Conn) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()

	if closed {
		c.retire()
		return
	}

	// Never blocks: the channel capacity equals the fixed pool size.
	p.free <- c
}

// replace retires old and creates its replacement with the same fixed
// tuning. Creation runs under the retry policy; only pool init treats a
// creation failure as fatal. The replacement is registered but NOT placed
// on the free list - the caller decides where it goes.
func (p *Pool) replace(ctx context.Context, old *Conn) (*Conn, error) {
	p.mu.Lock()
	delete(p.conns, old.id)
	p.mu.Unlock()

	if err := old.retire(); err != nil {
		p.logger.Warn("error closing retired handle", "conn", old.ID(), "error", err)
	}

	var repl *Conn
	err := Retry(ctx, p.logger, p.cfg.Retry, func() error {
		c, err := openConn(p.cfg.Path, p.cfg.Tuning)
		if err != nil {
			return err
		}
		repl = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create replacement connection: %w", err)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		repl.retire()
		return nil, ErrClosed
	}
	p.conns[repl.id] = repl
	p.mu.Unlock()

	p.statsMu.Lock()
	p.totalCreated++
	p.replaced++
	p.statsMu.Unlock()

	p.logger.Info("replaced connection handle",
		"retired", old.ID(),
		"replacement", repl.ID(),
	)

	return repl, nil
}

// replaceIntoPool replaces old and puts the replacement on the free list.
// On replacement failure the pool runs below capacity until the next sweep
// refills it.
func (p *Pool) replaceIntoPool(old *Conn) {
	repl, err := p.replace(context.Background(), old)
	if err != nil {
		p.logger.Error("replacement failed, pool below capacity until refill",
			"retired", old.ID(),
			"error", err,
		)
		return
	}
	repl.markIdle()
	p.putFree(repl)
}

// refill opens connections until the pool is back at capacity. Called from
// the sweep; an empty pool is fully re-initialized here rather than left
// at zero.
func (p *Pool) refill() {
	for {
		p.mu.Lock()
		missing := p.cfg.Size - len(p.conns)
		closed := p.closed
		empty := len(p.conns) == 0
		p.mu.Unlock()

		if closed || missing <= 0 {
			return
		}
		if empty {
			p.logger.Warn("pool empty after sweep, re-initializing", "size", p.cfg.Size)
		}

		c, err := openConn(p.cfg.Path, p.cfg.Tuning)
		if err != nil {
			p.logger.Error("refill failed", "error", err)
			return
		}
		p.register(c)
		c.markIdle()
		p.putFree(c)
	}
}

// teardown closes everything during a failed initialization.
func (p *Pool) teardown() {
	p.mu.Lock()
	p.closed = true
	close(p.done)
	conns := p.conns
	p.conns = make(map[string]*Conn)
	p.mu.Unlock()

drain:
	for {
		select {
		case <-p.free:
		default:
			break drain
		}
	}

	for _, c := range conns {
		c.retire()
	}
}

// latencyWindow keeps the most recent probe/wait durations for the stats
// snapshot. Callers hold statsMu.
type latencyWindow struct {
	samples [64]time.Duration
	n       int
	next    int
}

func (w *latencyWindow) record(d time.Duration) {
	w.samples[w.next] = d
	w.next = (w.next + 1) % len(w.samples)
	if w.n < len(w.samples) {
		w.n++
	}
}

func (w *latencyWindow) avgMax() (avg, max time.Duration) {
	if w.n == 0 {
		return 0, 0
	}
	var sum time.Duration
	for i := 0; i < w.n; i++ {
		s := w.samples[i]
		sum += s
		if s > max {
			max = s
		}
	}
	return sum / time.Duration(w.n), max
}
