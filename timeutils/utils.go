// Copyright 2024 The docai Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

// Package timeutils contains timestamp helpers shared by the database layer
// and the HTTP API.
package timeutils

import (
	"time"
)

// Timestamp format for time.Time serialization and deserialization. This
// format is used to store timestamps in the database. Fractional part has
// fixed width, so for UTC timestamps lexicographical order is the same as
// chronological order.
const TimestampFormat = "2006-01-02T15:04:05.000000Z07:00"

// Now returns current time in UTC truncated to microseconds, so it survives
// ToString and FromString round trip unchanged.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// ToString serialize given time.Time to string based on TimestampFormat
// format. Time is moved to UTC first.
func ToString(t time.Time) string {
	return t.UTC().Format(TimestampFormat)
}

// FromString tries to recreate time.Time based on given string value according
// to TimestampFormat format.
func FromString(s string) (time.Time, error) {
	return time.Parse(TimestampFormat, s)
}

// In most cases FromString should be called on strings created by ToString and
// should succeed. In cases when we are pretty sure that FromString will
// succeed, we can use FromStringMust. If FromString would fail for given
// input, time.Time{} is returned.
func FromStringMust(s string) time.Time {
	t, err := FromString(s)
	if err != nil {
		return time.Time{}
	}
	return t
}
