// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/luxfi/log"
)

const (
	DefaultMaxAttempts  = 3
	DefaultInitialDelay = time.Second
	DefaultMaxDelay     = 30 * time.Second
)

// ErrRetryExhausted wraps the last error once every attempt has failed.
var ErrRetryExhausted = errors.New("retry attempts exhausted")

// RetryConfig controls Execute.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// InitialDelay is the wait after the first failure. It doubles after every
	// further failure, capped at MaxDelay.
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// Jitter randomizes each delay by up to this fraction. Zero disables it.
	Jitter float64
	// Retryable classifies errors. Nil treats every error as retryable.
	Retryable func(error) bool

	timer backoff.Timer
}

// DefaultRetryConfig returns 3 attempts starting at a one second delay.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  DefaultMaxAttempts,
		InitialDelay: DefaultInitialDelay,
		MaxDelay:     DefaultMaxDelay,
	}
}

// RetryOption adjusts a RetryConfig.
type RetryOption func(*RetryConfig)

func WithMaxAttempts(n int) RetryOption {
	return func(c *RetryConfig) { c.MaxAttempts = n }
}

func WithInitialDelay(d time.Duration) RetryOption {
	return func(c *RetryConfig) { c.InitialDelay = d }
}

func WithMaxDelay(d time.Duration) RetryOption {
	return func(c *RetryConfig) { c.MaxDelay = d }
}

func WithJitter(fraction float64) RetryOption {
	return func(c *RetryConfig) { c.Jitter = fraction }
}

// WithClassifier stops retrying as soon as retryable returns false.
func WithClassifier(retryable func(error) bool) RetryOption {
	return func(c *RetryConfig) { c.Retryable = retryable }
}

// WithConfig replaces the schedule. A nil classifier in cfg keeps the current
// one.
func WithConfig(cfg RetryConfig) RetryOption {
	return func(c *RetryConfig) {
		timer, retryable := c.timer, c.Retryable
		*c = cfg
		if c.timer == nil {
			c.timer = timer
		}
		if c.Retryable == nil {
			c.Retryable = retryable
		}
	}
}

// WithTimer substitutes the timer used to wait between attempts.
func WithTimer(t backoff.Timer) RetryOption {
	return func(c *RetryConfig) { c.timer = t }
}

func (c *RetryConfig) newBackOff(ctx context.Context) backoff.BackOff {
	expBackOff := backoff.NewExponentialBackOff()
	expBackOff.InitialInterval = c.InitialDelay
	expBackOff.Multiplier = 2
	expBackOff.RandomizationFactor = c.Jitter
	expBackOff.MaxInterval = c.MaxDelay
	expBackOff.MaxElapsedTime = 0
	expBackOff.Reset()

	retries := uint64(c.MaxAttempts - 1)
	return backoff.WithContext(backoff.WithMaxRetries(expBackOff, retries), ctx)
}

// Execute runs operation until it succeeds, the attempt budget is spent, the
// classifier rejects an error, or ctx is done. Delays happen only between
// attempts. Exhaustion returns ErrRetryExhausted wrapping the last error; a
// non-retryable error and a context error are returned as they are.
func Execute[T any](
	ctx context.Context,
	logger log.Logger,
	operation func(context.Context) (T, error),
	opts ...RetryOption,
) (T, error) {
	cfg := DefaultRetryConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.MaxDelay < cfg.InitialDelay {
		cfg.MaxDelay = cfg.InitialDelay
	}

	var (
		result   T
		attempts int
	)
	op := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		attempts++
		res, err := operation(ctx)
		if err != nil {
			if cfg.Retryable != nil && !cfg.Retryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		result = res
		return nil
	}
	notify := func(err error, delay time.Duration) {
		logger.Warn("operation failed, retrying...",
			log.Int("attempt", attempts),
			log.Int("maxAttempts", cfg.MaxAttempts),
			log.Stringer("delay", delay),
			log.Err(err),
		)
	}

	err := backoff.RetryNotifyWithTimer(op, cfg.newBackOff(ctx), notify, cfg.timer)
	switch {
	case err == nil:
		return result, nil
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		return *new(T), err
	case cfg.Retryable != nil && !cfg.Retryable(err):
		return *new(T), err
	default:
		return *new(T), fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, attempts, err)
	}
}
