// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package tracks

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pmuetschard/gapid/internal/actions"
	"github.com/pmuetschard/gapid/internal/controller"
	"github.com/pmuetschard/gapid/internal/controllers"
	"github.com/pmuetschard/gapid/internal/engine"
	"github.com/pmuetschard/gapid/internal/engine/enginetest"
	"github.com/pmuetschard/gapid/internal/events"
	"github.com/pmuetschard/gapid/internal/frontend"
	"github.com/pmuetschard/gapid/internal/session"
	"github.com/pmuetschard/gapid/internal/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// host declares one track controller per track in the state.
type host struct {
	controller.Base[int]
	s   *session.Session
	reg *controllers.TrackRegistry
}

func (h *host) Reconcile() []controller.Child {
	st := h.s.State()
	var children []controller.Child
	for _, id := range slices.Sorted(maps.Keys(st.Tracks)) {
		factory := h.reg.Get(st.Tracks[id].Kind)
		args := controllers.TrackArgs{TrackID: id, Engine: h.s.Engine(), Session: h.s}
		children = append(children, controller.Declare(id, func() controller.Node { return factory(args) }))
	}
	return children
}

type harness struct {
	s     *session.Session
	store *frontend.Store
}

func newHarness(t *testing.T, e engine.Engine) *harness {
	t.Helper()
	return newLimitedHarness(t, e, Limits{})
}

func newLimitedHarness(t *testing.T, e engine.Engine, limits Limits) *harness {
	t.Helper()
	bus := events.NewMemoryEventBus(events.MemoryBusConfig{})
	t.Cleanup(func() { bus.Close() })
	store := frontend.NewStore()
	_, err := store.Attach(bus)
	require.NoError(t, err)

	s := session.New(session.Config{Engine: e, Publisher: session.BusPublisher{Bus: bus}})
	reg := controllers.NewTrackRegistry()
	Register(reg, limits)
	s.SetRoot(&host{s: s, reg: reg})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return &harness{s: s, store: store}
}

func (h *harness) submit(t *testing.T, acts ...actions.Action) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.s.Submit(ctx, acts...))
}

func (h *harness) settle(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.s.Settle(ctx))
}

// request adds a track and asks it for data, then waits for the data.
func (h *harness) request(t *testing.T, kind string, cfg state.TrackConfig, start, end, res float64) frontend.TrackPayload {
	t.Helper()
	h.submit(t,
		actions.AddTrack("t", "0", kind, "track", state.ScrollingTrackGroup, cfg),
		actions.ReqTrackData("t", start, end, res))
	h.settle(t)
	data, ok := h.store.TrackData("t")
	require.True(t, ok, "no data published")
	return data
}

const bounds = "insert into trace_bounds values (0, 10000000000);"

func TestRegister(t *testing.T) {
	reg := controllers.NewTrackRegistry()
	Register(reg, Limits{})
	assert.Equal(t, []string{
		state.SliceTrackKind,
		state.CounterTrackKind,
		state.CPUFreqTrackKind,
		state.CPUSliceTrackKind,
		state.ProcessSummaryTrackKind,
	}, reg.Kinds())
}

func TestRegister_Limits(t *testing.T) {
	reg := controllers.NewTrackRegistry()
	Register(reg, Limits{SliceRows: 5})
	args := controllers.TrackArgs{TrackID: "1"}

	assert.Equal(t, 5, reg.Get(state.SliceTrackKind)(args).(*SliceTrack).limit)
	assert.Equal(t, CPUSliceRowLimit, reg.Get(state.CPUSliceTrackKind)(args).(*CPUSliceTrack).limit)
}

func TestSliceTrack_TruncatedResultNarrowsCoverage(t *testing.T) {
	e := enginetest.NewSQLite(t, bounds, `
		insert into slices (ts, dur, utid, depth, cat, name)
		with recursive n(i) as (select 0 union all select i + 1 from n where i + 1 < 11000)
		select i * 1000, 500, 1, i % 2, 'cat', 'slice' || (i % 3) from n;`)
	h := newHarness(t, e)

	data := h.request(t, state.SliceTrackKind, state.SliceConfig{Utid: 1}, 0, 10, 0)
	sd, ok := data.(*SliceData)
	require.True(t, ok)

	require.Len(t, sd.Starts, SliceRowLimit)
	assert.Equal(t, sd.Starts[SliceRowLimit-1], sd.End)
	assert.InDelta(t, 0.009999, sd.End, 1e-12)
	assert.Less(t, sd.End, 10.0)
	assert.Equal(t, []string{"cat", "slice0", "slice1", "slice2"}, sd.Strings)
	assert.Equal(t, []int{1, 2, 3, 1}, sd.Titles[:4])
	assert.Equal(t, []int{0, 1, 0, 1}, sd.Depths[:4])
	assert.Equal(t, 0, sd.Categories[9999])
}

func TestSliceTrack_UntruncatedKeepsWindow(t *testing.T) {
	e := enginetest.NewSQLite(t, bounds, `
		insert into slices (ts, dur, utid, depth, cat, name) values
		  (1000000000, 500000000, 1, 0, 'gfx', 'draw'),
		  (3000000000, 100, 1, 0, 'gfx', 'tiny'),
		  (4000000000, 500000000, 2, 0, 'gfx', 'other');`)
	h := newHarness(t, e)

	data := h.request(t, state.SliceTrackKind, state.SliceConfig{Utid: 1}, 0, 10, 0.001)
	sd := data.(*SliceData)

	assert.Equal(t, 10.0, sd.End)
	assert.Equal(t, []float64{1}, sd.Starts, "slices shorter than the resolution are skipped")
	assert.Equal(t, []float64{1.5}, sd.Ends)
}

func TestCounterTrack(t *testing.T) {
	e := enginetest.NewSQLite(t, bounds, `
		insert into counters (ts, dur, ts_end, name, value, ref, ref_type) values
		  (0, 1000000000, 1000000000, 'mem', 10, 3, 'upid'),
		  (1000000000, 1000000000, 2000000000, 'mem', 30, 3, 'upid'),
		  (5000000000, 1000000000, 6000000000, 'mem', 20, 3, 'upid'),
		  (0, 1000000000, 1000000000, 'mem', 99, 4, 'upid');`)
	h := newHarness(t, e)

	floor := -5.0
	data := h.request(t, state.CounterTrackKind, state.CounterConfig{Name: "mem", Ref: 3, Min: &floor}, 0.5, 2, 0.001)
	cd := data.(*CounterData)

	assert.Equal(t, []float64{0, 1}, cd.Timestamps)
	assert.Equal(t, []float64{10, 30}, cd.Values)
	assert.Equal(t, 30.0, cd.MaximumValue)
	assert.Equal(t, -5.0, cd.MinimumValue)
	assert.Equal(t, 0.5, cd.Start)
	assert.Equal(t, 2.0, cd.End)
}

func TestCounterTrack_AtMostOneFetch(t *testing.T) {
	fake := enginetest.NewFake(func(q string) *engine.Result {
		if strings.HasPrefix(q, "select max") {
			return engine.NewResult([]string{"max", "min"}, []any{5.0, 1.0})
		}
		return engine.NewResult([]string{"ts", "value"}, []any{int64(0), 2.0})
	})
	fake.Block()
	h := newHarness(t, fake)

	h.submit(t,
		actions.AddTrack("t", "0", state.CounterTrackKind, "c", state.ScrollingTrackGroup, state.CounterConfig{Name: "c"}),
		actions.ReqTrackData("t", 0, 10, 0.01))
	select {
	case <-fake.Started():
	case <-time.After(5 * time.Second):
		t.Fatal("fetch did not start")
	}

	h.submit(t, actions.ReqTrackData("t", 0, 20, 0.01))
	h.submit(t, actions.ReqTrackData("t", 0, 30, 0.01))
	assert.Len(t, fake.Queries(), 1)
	assert.Nil(t, h.s.Snapshot().Tracks["t"].DataReq, "dropped requests are still acknowledged")

	fake.Release()
	h.settle(t)
	assert.Len(t, fake.Queries(), 2)
	data, ok := h.store.TrackData("t")
	require.True(t, ok)
	assert.Equal(t, 10.0, data.Covered().End, "data of the first request")

	// Setup is done once.
	h.submit(t, actions.ReqTrackData("t", 0, 20, 0.01))
	h.settle(t)
	assert.Equal(t, 1, fake.Count("select max"))
	assert.Len(t, fake.Queries(), 3)
}

func TestCounterTrack_QueryErrorClearsBusy(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	fake := enginetest.NewFake(func(q string) *engine.Result {
		if fail.Load() {
			return engine.ErrorResult("no such table: counters")
		}
		return engine.NewResult([]string{"max", "min"}, []any{1.0, 0.0})
	})
	h := newHarness(t, fake)

	h.submit(t,
		actions.AddTrack("t", "0", state.CounterTrackKind, "c", state.ScrollingTrackGroup, state.CounterConfig{Name: "c"}),
		actions.ReqTrackData("t", 0, 10, 0.01))
	h.settle(t)
	_, ok := h.store.TrackData("t")
	assert.False(t, ok)

	fail.Store(false)
	h.submit(t, actions.ReqTrackData("t", 0, 10, 0.01))
	h.settle(t)
	_, ok = h.store.TrackData("t")
	assert.True(t, ok)
}

func TestCPUSliceTrack_Summary(t *testing.T) {
	e := enginetest.NewSQLite(t, bounds, `
		insert into sched (ts, dur, cpu, utid) values
		  (0, 500000000, 0, 1),
		  (500000000, 500000000, 0, 0),
		  (1000000000, 500000000, 0, 2),
		  (0, 2000000000, 1, 3);`)
	h := newHarness(t, e)

	data := h.request(t, state.CPUSliceTrackKind, state.CPUSliceConfig{CPU: 0}, 0, 2, 0.01)
	cd := data.(*CPUSliceData)

	require.Equal(t, CPUSummary, cd.Kind)
	assert.InDelta(t, 0.1, cd.BucketSizeSeconds, 1e-12)
	require.Len(t, cd.Utilizations, 20)
	for i, u := range cd.Utilizations {
		want := 0.0
		if i < 5 || (i >= 10 && i < 15) {
			want = 1
		}
		assert.InDelta(t, want, u, 1e-9, "bucket %d", i)
	}
}

func TestCPUSliceTrack_Slices(t *testing.T) {
	e := enginetest.NewSQLite(t, bounds, `
		insert into sched (ts, dur, cpu, utid) values
		  (0, 500000000, 0, 1),
		  (500000000, 500000000, 0, 0),
		  (1000000000, 500000000, 0, 2),
		  (3000000000, 500000000, 0, 2);`)
	h := newHarness(t, e)

	data := h.request(t, state.CPUSliceTrackKind, state.CPUSliceConfig{CPU: 0}, 0.25, 2, 0.0001)
	cd := data.(*CPUSliceData)

	require.Equal(t, CPUSlices, cd.Kind)
	assert.Equal(t, []float64{0.25, 1}, cd.Starts, "slices are clipped to the window")
	assert.Equal(t, []float64{0.5, 1.5}, cd.Ends)
	assert.Equal(t, []int{1, 2}, cd.Utids)
	assert.Equal(t, 2.0, cd.End)
}

func TestCPUSliceTrack_TruncatedResultEndsAtLastStart(t *testing.T) {
	e := enginetest.NewSQLite(t, bounds, `
		insert into sched (ts, dur, cpu, utid) values
		  (0, 500000000, 0, 1),
		  (600000000, 500000000, 0, 2),
		  (1200000000, 500000000, 0, 3);`)
	h := newLimitedHarness(t, e, Limits{CPUSliceRows: 2})

	data := h.request(t, state.CPUSliceTrackKind, state.CPUSliceConfig{CPU: 0}, 0, 2, 0.0001)
	cd := data.(*CPUSliceData)

	require.Equal(t, CPUSlices, cd.Kind)
	assert.Equal(t, []float64{0, 0.6}, cd.Starts)
	assert.Equal(t, 0.6, cd.End, "slices starting after the last fetched one are not covered")
	assert.InDelta(t, 1.1, cd.Ends[1], 1e-12)
}

func TestCPUFreqTrack(t *testing.T) {
	e := enginetest.NewSQLite(t, bounds, `
		insert into counters (ts, dur, ts_end, name, value, ref, ref_type) values
		  (0, 1000000000, 1000000000, 'cpufreq', 1000000, 0, 'cpu'),
		  (1000000000, 1000000000, 2000000000, 'cpufreq', 2000000, 0, 'cpu'),
		  (0, 500000000, 500000000, 'cpuidle', 4294967295, 0, 'cpu'),
		  (500000000, 1500000000, 2000000000, 'cpuidle', 1, 0, 'cpu'),
		  (0, 2000000000, 2000000000, 'cpufreq', 3000000, 1, 'cpu');`)
	h := newHarness(t, e)

	data := h.request(t, state.CPUFreqTrackKind, state.CPUFreqConfig{CPU: 0}, 0, 2, 0.001)
	fd := data.(*CPUFreqData)

	assert.Equal(t, []float64{0, 0.5, 1}, fd.TsStarts)
	assert.Equal(t, []float64{0.5, 1, 2}, fd.TsEnds)
	assert.Equal(t, []int8{-1, 1, 1}, fd.Idles)
	assert.Equal(t, []int{1000000, 1000000, 2000000}, fd.FreqKHz)
	assert.Equal(t, 2000000.0, fd.MaximumValue)
}

func TestProcessSummaryTrack(t *testing.T) {
	e := enginetest.NewSQLite(t, bounds, `
		insert into process (upid, pid, name) values (1, 100, 'app');
		insert into thread (utid, upid, tid, name) values (1, 1, 100, 'main'), (2, 1, 101, 'worker');
		insert into slices (ts, dur, utid, depth, cat, name) values
		  (0, 1000000000, 1, 0, 'c', 'a'),
		  (100000000, 100000000, 1, 1, 'c', 'nested'),
		  (1000000000, 1000000000, 2, 0, 'c', 'b');`)
	h := newHarness(t, e)

	data := h.request(t, state.ProcessSummaryTrackKind, state.ProcessSummaryConfig{Upid: 1, Utid: 1}, 0, 2, 0.01)
	pd := data.(*ProcessSummaryData)

	assert.InDelta(t, 0.1, pd.BucketSizeSeconds, 1e-12)
	require.Len(t, pd.Utilizations, 20)
	for i, u := range pd.Utilizations {
		want := 0.0
		if i < 5 || (i >= 10 && i < 15) {
			want = 1
		}
		assert.InDelta(t, want, u, 1e-9, "bucket %d", i)
	}
}

func TestQuantum(t *testing.T) {
	bucket, start := quantum(1234567890, 0.01)
	assert.Equal(t, int64(100000000), bucket)
	assert.Equal(t, int64(1200000000), start)

	bucket, _ = quantum(0, 0)
	assert.Equal(t, int64(minQuantumNs), bucket)
}

func TestSQLString(t *testing.T) {
	assert.Equal(t, "'it''s'", sqlString("it's"))
}
