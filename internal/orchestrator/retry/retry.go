// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package retry provides bounded exponential backoff for the
// transient external-call failures defined in the external package
// (LLM HTTP errors, empty responses, timeouts), grounded on the
// teacher's services/trace/context/retry.go helper.
package retry

import (
	"context"
	"math/rand"
	"time"
)

// Config configures exponential backoff retry.
type Config struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
	JitterFactor   float64
}

// DefaultConfig is the orchestrator's default: 3 attempts, 1s initial
// backoff, per SPEC_FULL.md §4.5.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    3,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     10 * time.Second,
		BackoffFactor:  2.0,
		JitterFactor:   0.2,
	}
}

// RetryableFunc is the operation retried by Do. attempt is 1-indexed.
type RetryableFunc func(ctx context.Context, attempt int) error

// IsRetryable reports whether err should trigger another attempt.
// Callers inject their own classifier (e.g. external.Transient) since
// this package has no dependency on the external collaborators.
type IsRetryable func(err error) bool

// Do runs fn, retrying on errors that isRetryable accepts, until
// success, a non-retryable error, ctx cancellation, or MaxAttempts is
// reached.
func Do(ctx context.Context, cfg Config, isRetryable IsRetryable, fn RetryableFunc) error {
	backoff := cfg.InitialBackoff
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(jitter(backoff, cfg.JitterFactor)):
		}
		backoff = nextBackoff(backoff, cfg.BackoffFactor, cfg.MaxBackoff)
	}
	return lastErr
}

func jitter(base time.Duration, factor float64) time.Duration {
	if factor <= 0 {
		return base
	}
	delta := (rand.Float64()*2 - 1) * factor
	return time.Duration(float64(base) * (1.0 + delta))
}

func nextBackoff(current time.Duration, factor float64, max time.Duration) time.Duration {
	next := time.Duration(float64(current) * factor)
	if next > max {
		return max
	}
	return next
}
