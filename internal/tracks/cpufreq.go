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

// idleNone is the cpuidle value meaning the CPU is not idle.
const idleNone = 4294967295

// CPUFreqData holds the frequency and idle state intervals of a CPU. An
// idle value of -1 means the CPU was running.
type CPUFreqData struct {
	Window
	MaximumValue float64   `json:"maximum_value"`
	TsStarts     []float64 `json:"ts_starts"`
	TsEnds       []float64 `json:"ts_ends"`
	Idles        []int8    `json:"idles"`
	FreqKHz      []int     `json:"freq_khz"`
}

// CPUFreqTrack publishes the frequency of one CPU.
type CPUFreqTrack struct {
	*controllers.Track

	setup   bool
	maxSeen float64
}

// NewCPUFreqTrack is the factory of CPU frequency tracks.
func NewCPUFreqTrack(args controllers.TrackArgs) controller.Node {
	t := &CPUFreqTrack{maxSeen: math.Inf(-1)}
	t.Track = controllers.NewTrack(args, t.onBoundsChange)
	return t
}

// setupQueries creates the per-track views: the frequency and idle
// intervals of the CPU, and their intersection clipped to the window.
func (t *CPUFreqTrack) setupQueries(cpu int) []string {
	win := t.TableName("window")
	freq := t.TableName("freq")
	idle := t.TableName("idle")
	act := t.TableName("activity")

	queries := []string{
		"drop view if exists " + act,
		"drop view if exists " + idle,
		"drop view if exists " + freq,
	}
	queries = append(queries, windowTable(win)...)
	return append(queries,
		fmt.Sprintf("create temp view %s as "+
			"select ts, dur, ref as cpu, name as freq_name, value as freq_value "+
			"from counters "+
			"where name = 'cpufreq' and ref = %d and ref_type = 'cpu'", freq, cpu),
		fmt.Sprintf("create temp view %s as "+
			"select ts, dur, ref as cpu, name as idle_name, value as idle_value "+
			"from counters "+
			"where name = 'cpuidle' and ref = %d and ref_type = 'cpu'", idle, cpu),
		fmt.Sprintf("create temp view %[1]s as "+
			"select max(f.ts, i.ts, w.window_start) as ts, "+
			"min(f.ts + f.dur, i.ts + i.dur, w.window_start + w.window_dur) - max(f.ts, i.ts, w.window_start) as dur, "+
			"0 as quantum_ts, f.cpu as cpu, "+
			"case i.idle_value when %[5]d then -1 else i.idle_value end as idle, "+
			"f.freq_value as freq "+
			"from %[2]s f join %[3]s i on f.cpu = i.cpu "+
			"and i.ts < f.ts + f.dur and f.ts < i.ts + i.dur, %[4]s w "+
			"where max(f.ts, i.ts) < w.window_start + w.window_dur "+
			"and min(f.ts + f.dur, i.ts + i.dur) > w.window_start "+
			"order by ts", act, freq, idle, win, idleNone),
	)
}

func (t *CPUFreqTrack) onBoundsChange(start, end, resolution float64) {
	cfg := controllers.ConfigOf[state.CPUFreqConfig](t.Track)
	e := t.Engine()
	needSetup := !t.setup
	setup := t.setupQueries(cfg.CPU)
	startNs, endNs := timeline.ToNs(start), timeline.ToNs(end)
	update := fmt.Sprintf("update %s set window_start = %d, window_dur = %d, quantum = 0",
		t.TableName("window"), startNs, max(1, endNs-startNs))
	query := "select ts, dur, cast(idle as real), freq from " + t.TableName("activity")

	t.Fetch(func(ctx context.Context) (func(), error) {
		maxSeen := math.Inf(-1)
		if needSetup {
			if _, err := engine.QueryAll(ctx, e, setup...); err != nil {
				return nil, err
			}
			r, err := engine.QueryAll(ctx, e, fmt.Sprintf(
				"select max(value) from counters where name = 'cpufreq' and ref = %d", cfg.CPU))
			if err != nil {
				return nil, err
			}
			if r.NumRecords > 0 && !r.IsNull(0, 0) {
				maxSeen = r.Double(0, 0)
			}
		}

		r, err := engine.QueryAll(ctx, e, update, query)
		if err != nil {
			return nil, err
		}
		n := r.NumRecords
		data := &CPUFreqData{
			Window:   Window{Start: start, End: end, Resolution: resolution},
			TsStarts: make([]float64, n),
			TsEnds:   make([]float64, n),
			Idles:    make([]int8, n),
			FreqKHz:  make([]int, n),
		}
		for row := 0; row < n; row++ {
			startSec := timeline.FromNs(r.Long(0, row))
			data.TsStarts[row] = startSec
			data.TsEnds[row] = startSec + timeline.FromNs(r.Long(1, row))
			data.Idles[row] = int8(r.Double(2, row))
			data.FreqKHz[row] = int(r.Double(3, row))
		}

		return func() {
			if needSetup {
				t.setup = true
				t.maxSeen = maxSeen
			}
			data.MaximumValue = finite(math.Max(cfg.MaximumValue, t.maxSeen), 0)
			t.Publish(data)
		}, nil
	})
}
