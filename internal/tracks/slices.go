// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package tracks

import (
	"context"
	"fmt"

	"github.com/pmuetschard/gapid/internal/controller"
	"github.com/pmuetschard/gapid/internal/controllers"
	"github.com/pmuetschard/gapid/internal/engine"
	"github.com/pmuetschard/gapid/internal/state"
	"github.com/pmuetschard/gapid/internal/timeline"
)

// SliceRowLimit caps the slices fetched for one window.
const SliceRowLimit = 10000

// SliceData holds the slices of a thread in columnar form. Titles and
// Categories index into Strings.
type SliceData struct {
	Window
	Strings    []string  `json:"strings"`
	Starts     []float64 `json:"starts"`
	Ends       []float64 `json:"ends"`
	Depths     []int     `json:"depths"`
	Titles     []int     `json:"titles"`
	Categories []int     `json:"categories"`
}

// SliceTrack publishes the slices of one thread.
type SliceTrack struct {
	*controllers.Track
	limit int
}

// NewSliceTrack is the factory of slice tracks.
func NewSliceTrack(args controllers.TrackArgs) controller.Node {
	return newSliceTrack(args, SliceRowLimit)
}

func newSliceTrack(args controllers.TrackArgs, limit int) *SliceTrack {
	t := &SliceTrack{limit: limit}
	t.Track = controllers.NewTrack(args, t.onBoundsChange)
	return t
}

func (t *SliceTrack) onBoundsChange(start, end, resolution float64) {
	cfg := controllers.ConfigOf[state.SliceConfig](t.Track)
	e := t.Engine()
	// Slices starting before the window may still overlap it.
	query := fmt.Sprintf("select ts,dur,depth,cat,name from slices"+
		" where utid = %d"+
		" and ts >= %d - dur"+
		" and ts <= %d"+
		" and dur >= %d"+
		" order by ts"+
		" limit %d",
		cfg.Utid, timeline.ToNs(start), timeline.ToNs(end), timeline.ToNs(resolution), t.limit)

	t.Fetch(func(ctx context.Context) (func(), error) {
		r, err := engine.QueryAll(ctx, e, query)
		if err != nil {
			return nil, err
		}
		data := sliceData(r, start, end, resolution, t.limit)
		return func() { t.Publish(data) }, nil
	})
}

func sliceData(r *engine.Result, start, end, resolution float64, limit int) *SliceData {
	n := r.NumRecords
	data := &SliceData{
		Window:     Window{Start: start, End: end, Resolution: resolution},
		Starts:     make([]float64, n),
		Ends:       make([]float64, n),
		Depths:     make([]int, n),
		Titles:     make([]int, n),
		Categories: make([]int, n),
	}
	strs := newInterner()
	for row := 0; row < n; row++ {
		startSec := timeline.FromNs(r.Long(0, row))
		data.Starts[row] = startSec
		data.Ends[row] = startSec + timeline.FromNs(r.Long(1, row))
		data.Depths[row] = int(r.Long(2, row))
		data.Categories[row] = strs.intern(r.Text(3, row))
		data.Titles[row] = strs.intern(r.Text(4, row))
	}
	data.Strings = strs.strings
	if data.Strings == nil {
		data.Strings = []string{}
	}
	// A truncated result only covers the window up to its last slice.
	if n == limit && n > 0 {
		data.End = data.Starts[n-1]
	}
	return data
}
