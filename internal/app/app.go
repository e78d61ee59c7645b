// Package app wires the stallwatch components into one explicit
// application context. Construction order is config → pool → ledger →
// queue → cache; teardown is the reverse. There are no module-level
// singletons - everything that needs a component receives it from here.
package app

import (
	"context"
	"log/slog"

	"github.com/stallwatch/stallwatch/internal/config"
	"github.com/stallwatch/stallwatch/internal/ledger"
	"github.com/stallwatch/stallwatch/internal/scanqueue"
	"github.com/stallwatch/stallwatch/internal/store"
	"github.com/stallwatch/stallwatch/internal/textcache"
)

// App owns the lifecycle of every core component.
type App struct {
	Config *config.Config
	Logger *slog.Logger
	Pool   *store.Pool
	Ledger *ledger.Ledger
	Queue  *scanqueue.Queue
	Cache  *textcache.Cache

	stopSweep context.CancelFunc
	sweepDone chan struct{}
}

// New builds the application context and starts the pool's health sweep.
// A pool initialization failure aborts startup with a FATAL_INIT error.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	retry := retryPolicy(cfg.Retry)

	pool, err := store.NewPool(store.Config{
		Path:           cfg.Database.Path,
		Size:           cfg.Pool.Size,
		AcquireTimeout: cfg.Pool.AcquireTimeout,
		MaxAge:         cfg.Pool.MaxAge,
		MaxIdle:        cfg.Pool.MaxIdle,
		SweepInterval:  cfg.Pool.SweepInterval,
		ProbeTimeout:   cfg.Pool.ProbeTimeout,
		Tuning: store.Tuning{
			CacheSizeKB: cfg.Database.CacheSizeKB,
			MmapSize:    cfg.Database.MmapSize,
			BusyTimeout: cfg.Database.BusyTimeout,
		},
		Retry: retry,
	}, logger)
	if err != nil {
		return nil, err
	}

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		pool.Run(sweepCtx)
	}()

	return &App{
		Config:    cfg,
		Logger:    logger,
		Pool:      pool,
		Ledger:    ledger.NewLedger(pool, retry, logger),
		Queue:     scanqueue.New(pool, retry, logger),
		Cache:     textcache.New(pool, retry, logger),
		stopSweep: stopSweep,
		sweepDone: sweepDone,
	}, nil
}

// Close stops the health sweep and closes the pool.
func (a *App) Close() error {
	if a.stopSweep != nil {
		a.stopSweep()
		<-a.sweepDone
	}
	return a.Pool.Close()
}

// retryPolicy converts the config shape to the store's policy struct.
func retryPolicy(rc config.RetryConfig) store.RetryPolicy {
	return store.RetryPolicy{
		MaxRetries:     rc.MaxRetries,
		BaseDelay:      rc.BaseDelay,
		MaxDelay:       rc.MaxDelay,
		JitterFraction: rc.JitterFraction,
	}
}
