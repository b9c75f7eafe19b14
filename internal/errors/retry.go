package errors

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/edgeandnode/candidate-selection/internal/logging"
)

// ErrTransient marks a failure that another attempt, usually against the next
// ranked candidate, may not hit.
var ErrTransient = errors.New("transient failure")

type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }
func (e *transientError) Is(target error) bool {
	return target == ErrTransient
}

// Transient wraps err so IsTransient reports true. Nil stays nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err is worth another attempt.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrCircuitOpen)
}

// RetryConfig configures retry behavior
type RetryConfig struct {
	MaxAttempts  int           // Attempts after the first (default: 2)
	BaseDelay    time.Duration // Base delay for exponential backoff; zero retries immediately
	MaxDelay     time.Duration // Maximum delay between attempts (default: 1s)
	JitterFactor float64       // Jitter factor for randomization (default: 0.25 = ±25%)
}

// DefaultRetryConfig returns sensible defaults for dispatch fallback.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  2,
		BaseDelay:    10 * time.Millisecond,
		MaxDelay:     time.Second,
		JitterFactor: 0.25,
	}
}

// AttemptFunc runs one attempt. attempt is zero-based, so callers can index
// an ordered candidate list with it.
type AttemptFunc func(ctx context.Context, attempt int) error

// RetryStats describes how a retried call went.
type RetryStats struct {
	Attempts   int
	TotalDelay time.Duration
}

// Retry runs fn until it succeeds, returns a non-transient error, the
// attempts run out or ctx is done.
func Retry(ctx context.Context, config RetryConfig, fn AttemptFunc, logger logging.Logger) (RetryStats, error) {
	logger = logging.OrNop(logger)
	var (
		stats   RetryStats
		lastErr error
	)

	for attempt := 0; attempt <= config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return stats, fmt.Errorf("context cancelled: %w", err)
		}

		stats.Attempts++
		err := fn(ctx, attempt)
		if err == nil {
			if attempt > 0 {
				logger.Debug("retry succeeded after %d attempts", attempt+1)
			}
			return stats, nil
		}

		lastErr = err
		if !IsTransient(err) {
			return stats, err
		}
		if attempt == config.MaxAttempts {
			break
		}

		delay := backoff(attempt, config)
		if delay <= 0 {
			continue
		}
		logger.Debug("attempt %d failed: %v, waiting %v", attempt+1, err, delay)
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
			stats.TotalDelay += delay
		case <-ctx.Done():
			timer.Stop()
			return stats, fmt.Errorf("context cancelled during retry: %w", ctx.Err())
		}
	}

	return stats, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// backoff is BaseDelay * 2^attempt, capped at MaxDelay, with symmetric jitter.
func backoff(attempt int, config RetryConfig) time.Duration {
	if config.BaseDelay <= 0 {
		return 0
	}
	maxDelay := config.MaxDelay
	if maxDelay <= 0 {
		maxDelay = DefaultRetryConfig().MaxDelay
	}

	delay := time.Duration(float64(config.BaseDelay) * math.Pow(2, float64(attempt)))
	if delay > maxDelay || delay <= 0 {
		delay = maxDelay
	}

	if config.JitterFactor > 0 {
		jitter := float64(delay) * config.JitterFactor
		delay = time.Duration(float64(delay) + (rand.Float64()*2-1)*jitter)
		if delay < 0 {
			delay = config.BaseDelay
		}
		if delay > maxDelay {
			delay = maxDelay
		}
	}
	return delay
}
