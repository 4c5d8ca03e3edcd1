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

// CounterData holds the samples of a counter in columnar form.
type CounterData struct {
	Window
	MaximumValue float64   `json:"maximum_value"`
	MinimumValue float64   `json:"minimum_value"`
	Timestamps   []float64 `json:"timestamps"`
	Values       []float64 `json:"values"`
}

// CounterTrack publishes the samples of one counter.
type CounterTrack struct {
	*controllers.Track

	setup   bool
	maxSeen float64
	minSeen float64
}

// NewCounterTrack is the factory of counter tracks.
func NewCounterTrack(args controllers.TrackArgs) controller.Node {
	t := &CounterTrack{maxSeen: math.Inf(-1), minSeen: math.Inf(1)}
	t.Track = controllers.NewTrack(args, t.onBoundsChange)
	return t
}

func (t *CounterTrack) onBoundsChange(start, end, resolution float64) {
	cfg := controllers.ConfigOf[state.CounterConfig](t.Track)
	e := t.Engine()
	needSetup := !t.setup
	where := fmt.Sprintf("name = %s and ref = %d", sqlString(cfg.Name), cfg.Ref)

	t.Fetch(func(ctx context.Context) (func(), error) {
		maxSeen, minSeen := math.Inf(-1), math.Inf(1)
		if needSetup {
			r, err := engine.QueryAll(ctx, e, "select max(value), min(value) from counters where "+where)
			if err != nil {
				return nil, err
			}
			if r.NumRecords > 0 && !r.IsNull(0, 0) {
				maxSeen, minSeen = r.Double(0, 0), r.Double(1, 0)
			}
		}

		r, err := engine.QueryAll(ctx, e, fmt.Sprintf("select ts, value from counters"+
			" where %d <= ts_end and ts <= %d and %s"+
			" order by ts",
			timeline.ToNs(start), timeline.ToNs(end), where))
		if err != nil {
			return nil, err
		}
		data := &CounterData{
			Window:     Window{Start: start, End: end, Resolution: resolution},
			Timestamps: make([]float64, r.NumRecords),
			Values:     make([]float64, r.NumRecords),
		}
		for row := 0; row < r.NumRecords; row++ {
			data.Timestamps[row] = timeline.FromNs(r.Long(0, row))
			data.Values[row] = r.Double(1, row)
		}

		return func() {
			if needSetup {
				t.setup = true
				t.maxSeen, t.minSeen = maxSeen, minSeen
			}
			data.MaximumValue, data.MinimumValue = t.valueRange(cfg)
			t.Publish(data)
		}, nil
	})
}

// valueRange widens the observed range by the configured bounds.
func (t *CounterTrack) valueRange(cfg state.CounterConfig) (maxValue, minValue float64) {
	maxValue, minValue = t.maxSeen, t.minSeen
	if cfg.Max != nil {
		maxValue = math.Max(maxValue, *cfg.Max)
	}
	if cfg.Min != nil {
		minValue = math.Min(minValue, *cfg.Min)
	}
	return finite(maxValue, 0), finite(minValue, 0)
}
