// Copyright 2024 The docai Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

// Package pace provides strategies for pacing retries of failed operations,
// like delivering task status callbacks to the tracker or connecting to the
// database on startup.
//
// Strategies are plain interval generators. Retry drives them through
// github.com/cenkalti/backoff/v4, so context cancellation, attempt limits and
// permanent errors are handled the same way everywhere.
package pace

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Strategy generates intervals between consecutive attempts. Reset brings
// the strategy back to its first interval.
type Strategy interface {
	NextInterval() time.Duration
	Reset()
}

// BackOff adapts Strategy to backoff.BackOff. When maxAttempts is positive,
// backoff.Stop is returned after maxAttempts-1 intervals.
type BackOff struct {
	strategy    Strategy
	maxAttempts int
	intervals   int
}

// NewBackOff creates BackOff for given strategy.
func NewBackOff(s Strategy, maxAttempts int) *BackOff {
	return &BackOff{strategy: s, maxAttempts: maxAttempts}
}

// NextBackOff returns the next interval or backoff.Stop.
func (b *BackOff) NextBackOff() time.Duration {
	if b.maxAttempts > 0 && b.intervals >= b.maxAttempts-1 {
		return backoff.Stop
	}
	b.intervals++
	return b.strategy.NextInterval()
}

// Reset resets the underlying strategy and the attempt counter.
func (b *BackOff) Reset() {
	b.strategy.Reset()
	b.intervals = 0
}

// Retry calls op until it succeeds, returns permanent error (see Permanent),
// maxAttempts is reached or ctx is done. Function onRetry, if not nil, is
// called with the error and the interval before the next attempt. The last
// error is returned.
func Retry(
	ctx context.Context, s Strategy, maxAttempts int, op func() error,
	onRetry func(err error, next time.Duration),
) error {
	b := backoff.WithContext(NewBackOff(s, maxAttempts), ctx)
	return backoff.RetryNotify(op, b, onRetry)
}

// Permanent wraps err, so Retry stops immediately and returns err.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
