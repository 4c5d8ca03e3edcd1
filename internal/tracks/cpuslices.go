// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package tracks

import (
	"context"
	"fmt"
	"math"

	"github.com/pmuetschard/gapid/internal/controller"
	"github.com/pmuetschard/gapid/internal/controllers"
	"github.com/pmuetschard/gapid/internal/engine"
	"github.com/pmuetschard/gapid/internal/state"
	"github.com/pmuetschard/gapid/internal/timeline"
)

// CPUSliceRowLimit caps the scheduling slices fetched for one window.
const CPUSliceRowLimit = 50000

// quantizeThreshold is the coarsest resolution, in seconds, at which CPU
// tracks still show individual slices rather than utilization buckets.
const quantizeThreshold = 0.001

// CPUDataKind tells which half of CPUSliceData is populated.
type CPUDataKind string

const (
	CPUSummary CPUDataKind = "summary"
	CPUSlices  CPUDataKind = "slice"
)

// CPUSliceData is either a utilization summary in fixed buckets or the
// individual scheduling slices of a CPU.
type CPUSliceData struct {
	Window
	Kind CPUDataKind `json:"kind"`

	BucketSizeSeconds float64   `json:"bucket_size_seconds,omitempty"`
	Utilizations      []float64 `json:"utilizations,omitempty"`

	Starts []float64 `json:"starts,omitempty"`
	Ends   []float64 `json:"ends,omitempty"`
	Utids  []int     `json:"utids,omitempty"`
}

// CPUSliceTrack publishes the scheduling of one CPU.
type CPUSliceTrack struct {
	*controllers.Track
	setup bool
	limit int
}

// NewCPUSliceTrack is the factory of CPU scheduling tracks.
func NewCPUSliceTrack(args controllers.TrackArgs) controller.Node {
	return newCPUSliceTrack(args, CPUSliceRowLimit)
}

func newCPUSliceTrack(args controllers.TrackArgs, limit int) *CPUSliceTrack {
	t := &CPUSliceTrack{limit: limit}
	t.Track = controllers.NewTrack(args, t.onBoundsChange)
	return t
}

// setupQueries creates the window table and the scheduling slices of the
// CPU clipped to it.
func (t *CPUSliceTrack) setupQueries(cpu int) []string {
	win := t.TableName("window")
	span := t.TableName("span")
	queries := []string{"drop view if exists " + span}
	queries = append(queries, windowTable(win)...)
	return append(queries, spanView(span, win,
		fmt.Sprintf("select ts, dur, cpu, utid from sched where cpu = %d", cpu), "s.cpu, s.utid"))
}

func (t *CPUSliceTrack) onBoundsChange(start, end, resolution float64) {
	cfg := controllers.ConfigOf[state.CPUSliceConfig](t.Track)
	e := t.Engine()
	needSetup := !t.setup
	setup := t.setupQueries(cfg.CPU)
	win := t.TableName("window")
	span := t.TableName("span")

	startNs, endNs := timeline.ToNs(start), timeline.ToNs(end)
	quantized := resolution >= quantizeThreshold
	var bucketNs int64
	windowStartNs := startNs
	if quantized {
		bucketNs, windowStartNs = quantum(startNs, resolution)
	}
	update := fmt.Sprintf("update %s set window_start = %d, window_dur = %d, quantum = %d",
		win, windowStartNs, max(1, endNs-windowStartNs), bucketNs)
	windowStart := timeline.FromNs(windowStartNs)

	t.Fetch(func(ctx context.Context) (func(), error) {
		if needSetup {
			if _, err := engine.QueryAll(ctx, e, setup...); err != nil {
				return nil, err
			}
		}
		if _, err := engine.QueryAll(ctx, e, update); err != nil {
			return nil, err
		}

		var data *CPUSliceData
		if quantized {
			utils, err := utilization(ctx, e, span, fmt.Sprintf("cpu = %d and utid != 0", cfg.CPU),
				windowStartNs, endNs, bucketNs)
			if err != nil {
				return nil, err
			}
			data = &CPUSliceData{
				Window:            Window{Start: windowStart, End: end, Resolution: resolution},
				Kind:              CPUSummary,
				BucketSizeSeconds: timeline.FromNs(bucketNs),
				Utilizations:      utils,
			}
		} else {
			var err error
			data, err = t.slices(ctx, e, span, cfg.CPU, windowStart, end, resolution)
			if err != nil {
				return nil, err
			}
		}
		return func() {
			t.setup = true
			t.Publish(data)
		}, nil
	})
}

func (t *CPUSliceTrack) slices(ctx context.Context, e engine.Engine, span string, cpu int, start, end, resolution float64) (*CPUSliceData, error) {
	r, err := engine.QueryAll(ctx, e, fmt.Sprintf("select ts, dur, utid from %s"+
		" where cpu = %d and utid != 0"+
		" order by ts"+
		" limit %d", span, cpu, t.limit))
	if err != nil {
		return nil, err
	}
	n := r.NumRecords
	data := &CPUSliceData{
		Window: Window{Start: start, End: end, Resolution: resolution},
		Kind:   CPUSlices,
		Starts: make([]float64, n),
		Ends:   make([]float64, n),
		Utids:  make([]int, n),
	}
	for row := 0; row < n; row++ {
		startSec := timeline.FromNs(r.Long(0, row))
		data.Starts[row] = startSec
		data.Ends[row] = startSec + timeline.FromNs(r.Long(1, row))
		data.Utids[row] = int(r.Long(2, row))
	}
	if n == t.limit {
		data.End = data.Starts[n-1]
	}
	return data, nil
}

// spanView creates a view of the intervals selected by source clipped to
// the window table win, the equivalent of the engine's span join. cols
// lists the extra columns of source to keep.
func spanView(name, win, source, cols string) string {
	return fmt.Sprintf("create temp view %s as "+
		"select max(s.ts, w.window_start) as ts, "+
		"min(s.ts + s.dur, w.window_start + w.window_dur) - max(s.ts, w.window_start) as dur, "+
		"%s from (%s) s, %s w "+
		"where s.ts < w.window_start + w.window_dur and s.ts + s.dur > w.window_start",
		name, cols, source, win)
}

// utilization computes the busy fraction of each bucket between startNs
// and endNs from the clipped intervals in span matching where.
func utilization(ctx context.Context, e engine.Engine, span, where string, startNs, endNs, bucketNs int64) ([]float64, error) {
	numBuckets := int(math.Ceil(float64(endNs-startNs) / float64(bucketNs)))
	if numBuckets <= 0 {
		return []float64{}, nil
	}
	utils := make([]float64, numBuckets)

	r, err := engine.QueryAll(ctx, e, fmt.Sprintf("with recursive buckets(b) as "+
		"(select 0 union all select b + 1 from buckets where b + 1 < %[1]d) "+
		"select b as bucket, "+
		"sum(min(ts + dur, %[2]d + (b + 1) * %[3]d) - max(ts, %[2]d + b * %[3]d)) / cast(%[3]d as float) as utilization "+
		"from buckets, %[4]s "+
		"where %[5]s and ts < %[2]d + (b + 1) * %[3]d and ts + dur > %[2]d + b * %[3]d "+
		"group by b", numBuckets, startNs, bucketNs, span, where))
	if err != nil {
		return nil, err
	}
	for row := 0; row < r.NumRecords; row++ {
		if bucket := int(r.Long(0, row)); bucket >= 0 && bucket < numBuckets {
			utils[bucket] = r.Double(1, row)
		}
	}
	return utils, nil
}
