package store

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T, cfg Config) *Pool {
	t.Helper()

	if cfg.Path == "" {
		cfg.Path = filepath.Join(t.TempDir(), "pool.db")
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	p, err := NewPool(cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

func TestNewPool_CreatesFixedNumberOfConnections(t *testing.T) {
	p := newTestPool(t, Config{Size: 3})

	stats := p.Stats()
	assert.Equal(t, 3, stats.Capacity)
	assert.Equal(t, int64(3), stats.TotalCreated)
	assert.Equal(t, 0, stats.Active)
}

func TestNewPool_FatalInitOnUnreachablePath(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	_, err := NewPool(Config{
		Path: "/nonexistent-dir/sub/pool.db",
		Size: 2,
	}, logger)

	require.Error(t, err)
	assert.True(t, IsFatalInit(err))
}

func TestAcquire_HandsOutDistinctHandles(t *testing.T) {
	p := newTestPool(t, Config{Size: 3})
	ctx := context.Background()

	seen := make(map[string]bool)
	var conns []*Conn
	for i := 0; i < 3; i++ {
		c, err := p.Acquire(ctx)
		require.NoError(t, err)
		assert.False(t, seen[c.ID()], "handle %s handed out twice", c.ID())
		seen[c.ID()] = true
		assert.Equal(t, StateInUse, c.State())
		conns = append(conns, c)
	}

	assert.Equal(t, 3, p.Stats().Active)

	for _, c := range conns {
		p.Release(c)
	}
	assert.Equal(t, 0, p.Stats().Active)
}

func TestAcquire_TimesOutWhenPoolExhausted(t *testing.T) {
	p := newTestPool(t, Config{Size: 1, AcquireTimeout: 50 * time.Millisecond})
	ctx := context.Background()

	c, err := p.Acquire(ctx)
	require.NoError(t, err)
	defer p.Release(c)

	_, err = p.Acquire(ctx)
	require.Error(t, err)
	assert.True(t, IsResourceExhausted(err))
	assert.Equal(t, int64(1), p.Stats().LeaksDetected)
}

func TestAcquire_RespectsContextCancellation(t *testing.T) {
	p := newTestPool(t, Config{Size: 1, AcquireTimeout: 5 * time.Second})

	c, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer p.Release(c)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = p.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAcquire_AfterCloseReturnsErrClosed(t *testing.T) {
	p := newTestPool(t, Config{Size: 1})
	require.NoError(t, p.Close())

	_, err := p.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestAcquire_SwapsInFreshHandleOnProbeFailure(t *testing.T) {
	p := newTestPool(t, Config{Size: 1, AcquireTimeout: time.Second})
	ctx := context.Background()

	// Break the free handle's underlying connection while it sits in the
	// pool, as a crashed database would.
	broken := <-p.free
	require.NoError(t, broken.db.Close())
	p.free <- broken

	c, err := p.Acquire(ctx)
	require.NoError(t, err)
	defer p.Release(c)

	assert.NotEqual(t, broken.ID(), c.ID())
	assert.Equal(t, StateInUse, c.State())
	assert.Equal(t, StateRetired, broken.State())

	var one int
	require.NoError(t, c.DB().QueryRow("SELECT 1").Scan(&one))

	stats := p.Stats()
	assert.Equal(t, int64(1), stats.Replaced)
	assert.Equal(t, int64(2), stats.TotalCreated)
	assert.Equal(t, 1, stats.Capacity)
}

func TestAcquire_CloseWhileWaitingReturnsErrClosed(t *testing.T) {
	p := newTestPool(t, Config{Size: 1, AcquireTimeout: 5 * time.Second})
	ctx := context.Background()

	c, err := p.Acquire(ctx)
	require.NoError(t, err)
	_ = c

	result := make(chan error, 1)
	go func() {
		_, err := p.Acquire(ctx)
		result <- err
	}()

	time.Sleep(20 * time.Millisecond)
	start := time.Now()
	require.NoError(t, p.Close())

	select {
	case err := <-result:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("waiter did not observe pool close")
	}

	// The waiter unblocked on close, not on the acquire timeout, and a
	// closed pool is not mistaken for a leak.
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, int64(0), p.Stats().LeaksDetected)
}

func TestRelease_ReturnsHandleForReuse(t *testing.T) {
	p := newTestPool(t, Config{Size: 1, AcquireTimeout: time.Second})
	ctx := context.Background()

	c1, err := p.Acquire(ctx)
	require.NoError(t, err)
	p.Release(c1)

	c2, err := p.Acquire(ctx)
	require.NoError(t, err)
	defer p.Release(c2)

	assert.Equal(t, c1.ID(), c2.ID())
}

func TestRelease_ReplacesStaleHandle(t *testing.T) {
	p := newTestPool(t, Config{Size: 1, MaxAge: time.Nanosecond})
	ctx := context.Background()

	c, err := p.Acquire(ctx)
	require.NoError(t, err)
	oldID := c.ID()
	p.Release(c)

	stats := p.Stats()
	assert.Equal(t, int64(1), stats.Replaced)
	assert.Equal(t, int64(2), stats.TotalCreated)

	repl, err := p.Acquire(ctx)
	require.NoError(t, err)
	defer p.Release(repl)
	assert.NotEqual(t, oldID, repl.ID())
}

func TestRelease_ReplacesUnhealthyHandle(t *testing.T) {
	p := newTestPool(t, Config{Size: 1})
	ctx := context.Background()

	c, err := p.Acquire(ctx)
	require.NoError(t, err)

	// Closing the underlying connection makes the release probe fail.
	require.NoError(t, c.db.Close())
	p.Release(c)

	assert.Equal(t, int64(1), p.Stats().Replaced)

	repl, err := p.Acquire(ctx)
	require.NoError(t, err)
	defer p.Release(repl)
	assert.NotEqual(t, c.ID(), repl.ID())
}

func TestWithConn_ReleasesOnEveryPath(t *testing.T) {
	p := newTestPool(t, Config{Size: 1, AcquireTimeout: time.Second})
	ctx := context.Background()

	err := p.WithConn(ctx, func(c *Conn) error {
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	// The handle must be back in the pool despite the error.
	err = p.WithConn(ctx, func(c *Conn) error {
		var one int
		return c.DB().QueryRow("SELECT 1").Scan(&one)
	})
	assert.NoError(t, err)
	assert.Equal(t, 0, p.Stats().Active)
}

func TestSweep_ValidatesLongIdleHandles(t *testing.T) {
	p := newTestPool(t, Config{Size: 2, MaxIdle: time.Nanosecond})

	time.Sleep(5 * time.Millisecond)
	p.Sweep()

	stats := p.Stats()
	assert.Greater(t, stats.MaxValidation, time.Duration(0))
	assert.Equal(t, int64(0), stats.Replaced)

	// Full capacity survives the sweep.
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		c, err := p.Acquire(ctx)
		require.NoError(t, err)
		defer p.Release(c)
	}
}

func TestSweep_ReplacesStaleHandlesAndKeepsCapacity(t *testing.T) {
	p := newTestPool(t, Config{Size: 2, MaxAge: time.Nanosecond, AcquireTimeout: time.Second})

	p.Sweep()

	stats := p.Stats()
	assert.Equal(t, int64(2), stats.Replaced)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		c, err := p.Acquire(ctx)
		require.NoError(t, err)
		defer p.Release(c)
	}
}

func TestClose_IsIdempotent(t *testing.T) {
	p := newTestPool(t, Config{Size: 2})

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
}

func TestPool_ConcurrentBorrowers(t *testing.T) {
	p := newTestPool(t, Config{Size: 4, AcquireTimeout: 5 * time.Second})
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- p.WithConn(ctx, func(c *Conn) error {
				var one int
				return c.DB().QueryRow("SELECT 1").Scan(&one)
			})
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 0, p.Stats().Active)
}

func TestLatencyWindow_AvgMax(t *testing.T) {
	var w latencyWindow
	avg, max := w.avgMax()
	assert.Equal(t, time.Duration(0), avg)
	assert.Equal(t, time.Duration(0), max)

	w.record(10 * time.Millisecond)
	w.record(20 * time.Millisecond)
	w.record(30 * time.Millisecond)

	avg, max = w.avgMax()
	assert.Equal(t, 20*time.Millisecond, avg)
	assert.Equal(t, 30*time.Millisecond, max)
}

func TestLatencyWindow_WrapsAround(t *testing.T) {
	var w latencyWindow
	for i := 0; i < len(w.samples)+10; i++ {
		w.record(time.Millisecond)
	}
	avg, max := w.avgMax()
	assert.Equal(t, time.Millisecond, avg)
	assert.Equal(t, time.Millisecond, max)
}
