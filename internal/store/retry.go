package store

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"
)

// RetryPolicy controls how write operations are retried on transient
// storage errors.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int

	// BaseDelay is the delay before the first retry. Each subsequent
	// retry doubles it, capped at MaxDelay.
	BaseDelay time.Duration

	// MaxDelay caps the per-attempt delay.
	MaxDelay time.Duration

	// JitterFraction adds up to this fraction of random jitter to each
	// delay, spreading out competing writers.
	JitterFraction float64

	// Retryable classifies errors. Nil means IsTransient.
	Retryable func(error) bool
}

// DefaultRetryPolicy returns the policy used when the config does not
// override it.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:     4,
		BaseDelay:      50 * time.Millisecond,
		MaxDelay:       2 * time.Second,
		JitterFraction: 0.25,
	}
}

// Retry runs op, retrying on classified-transient errors with exponential
// backoff and jitter. Non-transient errors (constraint violations and the
// like) propagate immediately without retry. When the retry budget is
// exhausted, the last error is returned for the caller to treat as fatal
// for that call.
func Retry(ctx context.Context, logger *slog.Logger, policy RetryPolicy, op func() error) error {
	if logger == nil {
		logger = slog.Default()
	}
	retryable := policy.Retryable
	if retryable == nil {
		retryable = IsTransient
	}

	var lastErr error
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(policy, attempt-1)
			logger.Warn("transient storage error, retrying",
				"attempt", attempt,
				"max_retries", policy.MaxRetries,
				"delay", delay,
				"error", lastErr,
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err := op()
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("retry budget exhausted after %d attempts: %w", policy.MaxRetries+1, lastErr)
}

// backoffDelay computes min(base·2^attempt, max) plus up to JitterFraction
// of random jitter.
func backoffDelay(policy RetryPolicy, attempt int) time.Duration {
	delay := policy.BaseDelay << uint(attempt)
	if delay > policy.MaxDelay || delay <= 0 {
		delay = policy.MaxDelay
	}
	if policy.JitterFraction > 0 {
		jitter := time.Duration(rand.Float64() * policy.JitterFraction * float64(delay))
		delay += jitter
	}
	return delay
}
