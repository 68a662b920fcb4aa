// Package retry runs operations with exponential backoff and jitter.
// Retryability is decided by error-message substrings, which covers the
// HTTP providers this engine talks to (rate limits, 5xx, flaky networks).
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"strings"
	"time"
)

// Config tunes the backoff schedule.
type Config struct {
	// MaxRetries is the number of retry attempts after the first try.
	MaxRetries int

	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration

	// MaxDelay caps the backoff growth.
	MaxDelay time.Duration

	// JitterFactor randomizes each delay by up to this fraction.
	JitterFactor float64

	// RetryableErrors are substrings marking an error as transient.
	RetryableErrors []string
}

// DefaultConfig returns the schedule used by the embedding and LLM
// clients.
func DefaultConfig() Config {
	return Config{
		MaxRetries:   3,
		BaseDelay:    time.Second,
		MaxDelay:     30 * time.Second,
		JitterFactor: 0.1,
		RetryableErrors: []string{
			"connection refused",
			"connection reset",
			"timeout",
			"rate limit",
			"429",
			"500",
			"502",
			"503",
			"504",
			"temporarily unavailable",
			"too many requests",
		},
	}
}

// Retryer applies a Config to operations.
type Retryer struct {
	cfg Config
}

// New creates a retryer, filling zero fields with defaults.
func New(cfg Config) *Retryer {
	def := DefaultConfig()
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if cfg.JitterFactor <= 0 {
		cfg.JitterFactor = def.JitterFactor
	}
	if len(cfg.RetryableErrors) == 0 {
		cfg.RetryableErrors = def.RetryableErrors
	}
	return &Retryer{cfg: cfg}
}

// Error wraps the last failure after retries ran out.
type Error struct {
	Operation string
	Attempts  int
	LastError error
	Exhausted bool
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Operation, e.Attempts, e.LastError)
}

func (e *Error) Unwrap() error { return e.LastError }

// IsExhausted reports whether err is a retry failure that ran out of
// attempts (as opposed to a non-retryable error returned as-is).
func IsExhausted(err error) bool {
	var re *Error
	return errors.As(err, &re) && re.Exhausted
}

// Do runs fn until it succeeds, fails non-retryably, or runs out of
// attempts.
func (r *Retryer) Do(ctx context.Context, operation string, fn func() error) error {
	_, err := DoWithResult(ctx, r, operation, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// DoWithResult runs fn with the retryer's schedule and returns its value.
func DoWithResult[T any](ctx context.Context, r *Retryer, operation string, fn func() (T, error)) (T, error) {
	var result T

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		var err error
		result, err = fn()
		if err == nil {
			return result, nil
		}

		if !r.isRetryable(err) {
			return result, err
		}
		if attempt >= r.cfg.MaxRetries {
			slog.Warn("Retries exhausted", "operation", operation, "attempts", attempt+1, "error", err)
			return result, &Error{
				Operation: operation,
				Attempts:  attempt + 1,
				LastError: err,
				Exhausted: true,
			}
		}

		delay := r.delay(attempt)
		slog.Debug("Retrying operation",
			"operation", operation, "attempt", attempt+1, "delay", delay, "error", err)

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (r *Retryer) isRetryable(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, s := range r.cfg.RetryableErrors {
		if strings.Contains(msg, strings.ToLower(s)) {
			return true
		}
	}
	return false
}

// delay computes the backoff for attempt n: base*2^n, capped, with jitter.
func (r *Retryer) delay(attempt int) time.Duration {
	d := float64(r.cfg.BaseDelay) * math.Pow(2, float64(attempt))
	if d > float64(r.cfg.MaxDelay) {
		d = float64(r.cfg.MaxDelay)
	}
	jitter := 1 + r.cfg.JitterFactor*(2*rand.Float64()-1)
	return time.Duration(d * jitter)
}
