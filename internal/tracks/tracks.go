// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package tracks implements the data pipelines of the track kinds. Each
// controller turns a requested window into a query and the result into
// columnar arrays for the presentation layer.
package tracks

import (
	"cmp"
	"math"
	"strings"

	"github.com/pmuetschard/gapid/internal/controller"
	"github.com/pmuetschard/gapid/internal/controllers"
	"github.com/pmuetschard/gapid/internal/state"
	"github.com/pmuetschard/gapid/internal/timeline"
)

// Limits caps the rows fetched for one window. Zero means the default.
type Limits struct {
	SliceRows    int
	CPUSliceRows int
}

// Register adds the controllers of every track kind to reg.
func Register(reg *controllers.TrackRegistry, limits Limits) {
	sliceRows := cmp.Or(limits.SliceRows, SliceRowLimit)
	cpuSliceRows := cmp.Or(limits.CPUSliceRows, CPUSliceRowLimit)

	reg.Register(state.SliceTrackKind, func(args controllers.TrackArgs) controller.Node {
		return newSliceTrack(args, sliceRows)
	})
	reg.Register(state.CounterTrackKind, NewCounterTrack)
	reg.Register(state.CPUFreqTrackKind, NewCPUFreqTrack)
	reg.Register(state.CPUSliceTrackKind, func(args controllers.TrackArgs) controller.Node {
		return newCPUSliceTrack(args, cpuSliceRows)
	})
	reg.Register(state.ProcessSummaryTrackKind, NewProcessSummaryTrack)
}

// Window is the part of a payload shared by all kinds.
type Window struct {
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Resolution float64 `json:"resolution"`
}

// Covered implements frontend.TrackPayload.
func (w Window) Covered() timeline.TimeSpan {
	return timeline.TimeSpan{Start: w.Start, End: w.End}
}

// DataResolution implements frontend.TrackPayload.
func (w Window) DataResolution() float64 {
	return w.Resolution
}

// minQuantumNs is the smallest bucket of a summary.
const minQuantumNs = 1000

// quantum returns the bucket size for a resolution and the window start
// aligned down to it.
func quantum(startNs int64, resolution float64) (bucketNs, windowStartNs int64) {
	bucketNs = max(int64(math.Round(resolution*10*timeline.NsPerSec)), minQuantumNs)
	windowStartNs = int64(math.Floor(float64(startNs)/float64(bucketNs))) * bucketNs
	return bucketNs, windowStartNs
}

// interner maps repeated strings to indexes into a shared table.
type interner struct {
	index   map[string]int
	strings []string
}

func newInterner() *interner {
	return &interner{index: make(map[string]int)}
}

func (in *interner) intern(s string) int {
	if i, ok := in.index[s]; ok {
		return i
	}
	i := len(in.strings)
	in.index[s] = i
	in.strings = append(in.strings, s)
	return i
}

// sqlString quotes s as a SQL string literal.
func sqlString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// finite replaces infinities, which JSON cannot carry, with fallback.
func finite(v, fallback float64) float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return fallback
	}
	return v
}

// windowTable returns the statements creating a single-row window table,
// the equivalent of the engine's window virtual table.
func windowTable(name string) []string {
	return []string{
		"drop table if exists " + name,
		"create temp table " + name + " (window_start integer, window_dur integer, quantum integer)",
		"insert into " + name + " values (0, 1, 0)",
	}
}
