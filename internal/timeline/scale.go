// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package timeline

import "math"

// DesiredPxPerStep is the preferred distance between two grid lines.
const DesiredPxPerStep = 80

// TimeScale maps a time span onto a horizontal pixel range.
type TimeScale struct {
	bounds   TimeSpan
	startPx  float64
	endPx    float64
	secPerPx float64
}

// NewTimeScale returns a scale mapping bounds onto [startPx, endPx].
func NewTimeScale(bounds TimeSpan, startPx, endPx float64) *TimeScale {
	s := &TimeScale{bounds: bounds, startPx: startPx, endPx: endPx}
	s.updateSlope()
	return s
}

func (s *TimeScale) updateSlope() {
	s.secPerPx = s.bounds.Duration() / (s.endPx - s.startPx)
}

// Bounds returns the mapped time span.
func (s *TimeScale) Bounds() TimeSpan { return s.bounds }

// SecPerPx returns the number of seconds covered by one pixel.
func (s *TimeScale) SecPerPx() float64 { return s.secPerPx }

// SetBounds changes the mapped time span.
func (s *TimeScale) SetBounds(bounds TimeSpan) {
	s.bounds = bounds
	s.updateSlope()
}

// SetLimitsPx changes the pixel range.
func (s *TimeScale) SetLimitsPx(startPx, endPx float64) {
	s.startPx, s.endPx = startPx, endPx
	s.updateSlope()
}

// TimeToPx returns the x coordinate of sec.
func (s *TimeScale) TimeToPx(sec float64) float64 {
	return s.startPx + (sec-s.bounds.Start)/s.secPerPx
}

// PxToTime returns the time at x coordinate px.
func (s *TimeScale) PxToTime(px float64) float64 {
	return s.bounds.Start + (px-s.startPx)*s.secPerPx
}

// DeltaTimeToPx returns the width in whole pixels of a duration.
func (s *TimeScale) DeltaTimeToPx(sec float64) float64 {
	return math.Round(sec / s.secPerPx)
}

// DeltaPxToDuration returns the duration covered by px pixels.
func (s *TimeScale) DeltaPxToDuration(px float64) float64 {
	return px * s.secPerPx
}

// GridStepSize returns a step of the form {1,2,5}·10^k whose number of steps
// within rng is closest to desiredSteps.
func GridStepSize(rng, desiredSteps float64) float64 {
	initial := math.Pow(10, math.Floor(math.Log10(rng/desiredSteps)))
	dist := func(step float64) float64 {
		return math.Abs(rng/step - desiredSteps)
	}

	best, bestDist := initial, dist(initial)
	for _, m := range []float64{2, 5, 10} {
		if d := dist(m * initial); d < bestDist {
			best, bestDist = m*initial, d
		}
	}
	return best
}

// GridLines returns the times of the grid lines visible on the scale.
func GridLines(s *TimeScale, span TimeSpan) []float64 {
	width := s.DeltaTimeToPx(span.Duration())
	if width <= 0 {
		return nil
	}
	step := GridStepSize(span.Duration(), width/DesiredPxPerStep)
	var lines []float64
	for sec := math.Round(span.Start/step) * step; sec < span.End; sec += step {
		x := math.Floor(s.TimeToPx(sec))
		if x >= 0 && x <= width {
			lines = append(lines, sec)
		}
	}
	return lines
}
