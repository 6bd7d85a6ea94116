// Copyright 2024 The docai Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package pace

import "time"

// Fixed returns the same interval every time.
type Fixed time.Duration

// NewFixed creates Fixed strategy.
func NewFixed(interval time.Duration) Fixed {
	return Fixed(interval)
}

// NextInterval returns the fixed interval.
func (f Fixed) NextInterval() time.Duration { return time.Duration(f) }

// Reset is a no-op.
func (f Fixed) Reset() {}
