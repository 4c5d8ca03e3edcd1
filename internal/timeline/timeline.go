// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package timeline provides the time arithmetic shared by the controllers and
// the presentation store.
package timeline

import "math"

// NsPerSec converts between the engine's nanosecond timestamps and seconds.
const NsPerSec = 1e9

// TimeSpan is a closed interval of seconds.
type TimeSpan struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Duration returns End - Start.
func (t TimeSpan) Duration() float64 {
	return t.End - t.Start
}

// Contains reports whether sec lies inside the span.
func (t TimeSpan) Contains(sec float64) bool {
	return t.Start <= sec && sec <= t.End
}

// Covers reports whether other lies entirely inside the span.
func (t TimeSpan) Covers(other TimeSpan) bool {
	return t.Start <= other.Start && other.End <= t.End
}

// Intersects reports whether the two spans overlap.
func (t TimeSpan) Intersects(other TimeSpan) bool {
	return !(other.End <= t.Start || other.Start >= t.End)
}

// Add shifts the span by sec.
func (t TimeSpan) Add(sec float64) TimeSpan {
	return TimeSpan{Start: t.Start + sec, End: t.End + sec}
}

// Equal compares spans exactly.
func (t TimeSpan) Equal(other TimeSpan) bool {
	return t.Start == other.Start && t.End == other.End
}

// FromNs converts nanoseconds to seconds.
func FromNs(ns int64) float64 {
	return float64(ns) / NsPerSec
}

// ToNs converts seconds to nanoseconds, rounding to the nearest nanosecond.
func ToNs(sec float64) int64 {
	return int64(math.Round(sec * NsPerSec))
}

// QuantizeResolution rounds a resolution down to a power of ten, so that
// nearby zoom levels share cached data. Non-positive input returns 0.
func QuantizeResolution(res float64) float64 {
	if res <= 0 || math.IsInf(res, 0) || math.IsNaN(res) {
		return 0
	}
	exp := int(math.Floor(math.Log10(res)))
	q := math.Pow10(exp)
	// Log10 can land just below an exact power of ten.
	if next := math.Pow10(exp + 1); next <= res {
		q = next
	}
	return q
}
