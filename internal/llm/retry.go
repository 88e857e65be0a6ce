package llm

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"
)

// RetryPolicy wraps a single model call. It keeps no state between calls.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
}

// DefaultRetryPolicy is three attempts total with a 2s base delay doubling
// each attempt.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		Multiplier:  2,
		MaxDelay:    30 * time.Second,
	}
}

// Backoff returns the wait before the attempt following attempt (1-based).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(p.BaseDelay) * math.Pow(mult, float64(attempt-1))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	return time.Duration(d)
}

// Do runs fn until it succeeds, returns a non-transient error, or the attempt
// budget is spent. Non-transient errors are returned unchanged so callers can
// inspect their Kind; a spent budget yields *ExhaustedError. A cancelled ctx
// ends the loop with ctx.Err().
func (p RetryPolicy) Do(ctx context.Context, logger *slog.Logger, fn func(ctx context.Context) error) error {
	if logger == nil {
		logger = slog.Default()
	}
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if Classify(lastErr) != KindTransient {
			return lastErr
		}
		if attempt == attempts {
			break
		}

		backoff := p.Backoff(attempt)
		logger.Warn("Model call failed, will retry.",
			"attempt", attempt,
			"maxAttempts", attempts,
			"backoff", backoff.String(),
			"error", lastErr,
		)

		timer := time.NewTimer(backoff)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			logger.Error("Context cancelled during backoff. Aborting retries.", "error", ctx.Err())
			return ctx.Err()
		}
	}

	logger.Error("Model call failed after all retries.", "attempts", attempts, "error", lastErr)
	return &ExhaustedError{Attempts: attempts, Err: lastErr}
}

// ExhaustedError reports that every attempt failed transiently.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

