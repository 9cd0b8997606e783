// Package retry runs operations with exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

var (
	// ErrMaxAttemptsExceeded is returned when every attempt failed with a retryable error.
	ErrMaxAttemptsExceeded = errors.New("max retry attempts exceeded")
	// ErrContextCancelled is returned when the context ends between attempts.
	ErrContextCancelled = errors.New("context cancelled during retry")
)

// Defaults used when a Config field is zero.
const (
	DefaultMaxAttempts  = 3
	DefaultInitialDelay = 200 * time.Millisecond
	DefaultMaxDelay     = 5 * time.Second
	DefaultMultiplier   = 2.0
)

// Config configures retry behavior.
type Config struct {
	// MaxAttempts includes the initial attempt.
	MaxAttempts  int           `env:"FETCH_RETRY_MAX_ATTEMPTS"  yaml:"max_attempts"`
	InitialDelay time.Duration `env:"FETCH_RETRY_INITIAL_DELAY" yaml:"initial_delay"`
	MaxDelay     time.Duration `env:"FETCH_RETRY_MAX_DELAY"     yaml:"max_delay"`
	Multiplier   float64       `yaml:"multiplier"`
	// IsRetryable decides whether an error is worth another attempt.
	IsRetryable func(error) bool `yaml:"-"`
}

// WithDefaults returns a copy of c with zero fields replaced by defaults.
func (c Config) WithDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = DefaultInitialDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultMaxDelay
	}
	if c.Multiplier <= 0 {
		c.Multiplier = DefaultMultiplier
	}
	if c.IsRetryable == nil {
		c.IsRetryable = DefaultIsRetryable
	}
	return c
}

var retryablePatterns = []string{
	"timeout",
	"deadline exceeded",
	"connection refused",
	"connection reset",
	"temporary failure",
	"network is unreachable",
	"eof",
}

// DefaultIsRetryable reports whether err looks like a transient network failure.
func DefaultIsRetryable(err error) bool {
	if err == nil {
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range retryablePatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// Retry calls fn until it succeeds, returns a non-retryable error, or the
// attempts run out.
func Retry(ctx context.Context, cfg Config, fn func() error) error {
	cfg = cfg.WithDefaults()

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %w", ErrContextCancelled, ctx.Err())
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !cfg.IsRetryable(err) {
			return err
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrContextCancelled, ctx.Err())
		case <-time.After(backoff(cfg, attempt)):
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrMaxAttemptsExceeded, cfg.MaxAttempts, lastErr)
}

func backoff(cfg Config, attempt int) time.Duration {
	d := time.Duration(float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1)))
	if d > cfg.MaxDelay {
		return cfg.MaxDelay
	}
	return d
}
