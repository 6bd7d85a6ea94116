// Copyright 2024 The docai Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package pace

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNegativeDuration = errors.New("durations cannot be negative")
	ErrMaxNotAboveMin   = errors.New("max must be greater than min")
	ErrRepeat           = errors.New("repeat must be at least 1")
)

// LinearBackoff grows intervals linearly from min to max. Each interval is
// returned repeat times before it's increased by step. Once max is reached,
// it stays there until Reset.
//
// For min=100ms, max=1s, step=300ms and repeat=2:
//
//	100ms, 100ms, 400ms, 400ms, 700ms, 700ms, 1s, 1s, 1s, ...
type LinearBackoff struct {
	min    time.Duration
	max    time.Duration
	step   time.Duration
	repeat int

	current time.Duration
	served  int
}

// NewLinearBackoff creates LinearBackoff. Durations cannot be negative, max
// must be greater than min and repeat must be at least 1.
func NewLinearBackoff(min, max, step time.Duration, repeat int) (*LinearBackoff, error) {
	if min < 0 || max < 0 || step < 0 {
		return nil, ErrNegativeDuration
	}
	if max <= min {
		return nil, fmt.Errorf("%w (min=%v, max=%v)", ErrMaxNotAboveMin, min,
			max)
	}
	if repeat < 1 {
		return nil, ErrRepeat
	}
	return &LinearBackoff{
		min: min, max: max, step: step, repeat: repeat, current: min,
	}, nil
}

// MustLinearBackoff is like NewLinearBackoff, but panics on invalid input.
// It's meant for package level defaults.
func MustLinearBackoff(min, max, step time.Duration, repeat int) *LinearBackoff {
	lb, err := NewLinearBackoff(min, max, step, repeat)
	if err != nil {
		panic(err)
	}
	return lb
}

// NextInterval returns the next interval.
func (lb *LinearBackoff) NextInterval() time.Duration {
	if lb.served == lb.repeat {
		lb.served = 0
		lb.current = min(lb.current+lb.step, lb.max)
	}
	lb.served++
	return lb.current
}

// Reset starts again from min.
func (lb *LinearBackoff) Reset() {
	lb.current = lb.min
	lb.served = 0
}
