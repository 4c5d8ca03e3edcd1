// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package controllers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"maps"
	"math"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pmuetschard/gapid/internal/actions"
	"github.com/pmuetschard/gapid/internal/controller"
	"github.com/pmuetschard/gapid/internal/engine"
	"github.com/pmuetschard/gapid/internal/frontend"
	"github.com/pmuetschard/gapid/internal/session"
	"github.com/pmuetschard/gapid/internal/state"
	"github.com/pmuetschard/gapid/internal/timeline"
	"golang.org/x/sync/errgroup"
)

// errTraceClosed stops discovery of a trace whose controller was torn down.
var errTraceClosed = errors.New("trace was closed")

// probeConcurrency bounds the parallel per-CPU frequency probes.
const probeConcurrency = 8

type traceMode int

const (
	traceInit traceMode = iota
	traceLoading
	traceReady
)

// TraceController discovers the content of one trace, then owns a
// controller per track and per ad-hoc query of that trace.
type TraceController struct {
	controller.Base[traceMode]

	env      *Env
	engineID string
	engine   engine.Engine
}

// NewTraceController returns the controller of engine engineID.
func NewTraceController(env *Env, engineID string) *TraceController {
	return &TraceController{env: env, engineID: engineID}
}

// Reconcile implements controller.Node.
func (c *TraceController) Reconcile() []controller.Child {
	s := c.env.Session
	cfg := s.State().Engine(c.engineID)

	switch c.State() {
	case traceInit:
		s.Dispatch(actions.SetEngineReady(c.engineID, false))
		c.engine = s.Engine()
		c.updateStatus("Opening trace")
		s.Go(func(ctx context.Context) func() {
			err := c.loadTrace(ctx)
			return func() {
				if c.Destroyed() {
					return
				}
				if err != nil {
					log.Printf("Trace %s: %v", c.engineID, err)
					c.updateStatus(fmt.Sprintf("Failed to load trace: %v", err))
					return
				}
				s.Dispatch(actions.SetEngineReady(c.engineID, true))
			}
		})
		c.SetState(traceLoading)

	case traceLoading:
		if c.engine != nil && cfg.Ready {
			c.SetState(traceReady)
		}

	case traceReady:
		return c.children()
	}
	return nil
}

func (c *TraceController) children() []controller.Child {
	s := c.env.Session
	st := s.State()
	var children []controller.Child

	for _, id := range slices.Sorted(maps.Keys(st.Tracks)) {
		t := st.Tracks[id]
		if t.EngineID != c.engineID || !c.env.Tracks.Has(t.Kind) {
			continue
		}
		factory := c.env.Tracks.Get(t.Kind)
		args := TrackArgs{TrackID: id, Engine: c.engine, Session: s}
		children = append(children, controller.Declare("track/"+id, func() controller.Node {
			return factory(args)
		}))
	}

	for _, id := range slices.Sorted(maps.Keys(st.Queries)) {
		if q := st.Queries[id]; q.EngineID != "" && q.EngineID != c.engineID {
			continue
		}
		children = append(children, controller.Declare("query/"+id, func() controller.Node {
			return NewQueryController(s, c.engine, id, c.env.QueryRowLimit)
		}))
	}
	return children
}

func (c *TraceController) updateStatus(msg string) {
	c.env.Session.Dispatch(actions.UpdateStatus(state.Status{Msg: msg, Timestamp: time.Now().Unix()}))
}

// dispatch applies actions on the control goroutine from discovery.
func (c *TraceController) dispatch(ctx context.Context, acts ...actions.Action) error {
	return c.onControl(ctx, func() { c.env.Session.Dispatch(acts...) })
}

// publish hands a message to the presentation layer from discovery.
func (c *TraceController) publish(ctx context.Context, kind session.Kind, payload any) error {
	return c.onControl(ctx, func() { c.env.Session.Publish(kind, payload) })
}

func (c *TraceController) status(ctx context.Context, msg string) error {
	return c.onControl(ctx, func() { c.updateStatus(msg) })
}

// onControl runs fn on the control goroutine unless the controller was
// torn down, in which case discovery is abandoned.
func (c *TraceController) onControl(ctx context.Context, fn func()) error {
	closed := false
	err := c.env.Session.Call(ctx, func() {
		if c.Destroyed() {
			closed = true
			return
		}
		fn()
	})
	if err == nil && closed {
		err = errTraceClosed
	}
	return err
}

// loadTrace runs discovery: bounds, then the track list unless tracks were
// restored, then the thread list, then the overview.
func (c *TraceController) loadTrace(ctx context.Context) error {
	bounds, err := engine.TraceBounds(ctx, c.engine)
	if err != nil {
		return err
	}
	traceTime := state.TraceTime{StartSec: bounds.Start, EndSec: bounds.End, LastUpdate: time.Now().Unix()}

	needTracks := false
	err = c.onControl(ctx, func() {
		s := c.env.Session
		acts := []actions.Action{actions.SetTraceTime(traceTime), actions.Navigate("/viewer")}
		if s.State().VisibleTraceTime.LastUpdate == 0 {
			acts = append(acts, actions.SetVisibleTraceTime(traceTime))
		}
		s.Dispatch(acts...)
		st := s.State()
		needTracks = len(st.PinnedTracks) == 0 && len(st.ScrollingTracks) == 0
	})
	if err != nil {
		return err
	}

	if needTracks {
		if err := c.listTracks(ctx); err != nil {
			return err
		}
	}
	if err := c.listThreads(ctx); err != nil {
		return err
	}
	return c.loadOverview(ctx, bounds)
}

func (c *TraceController) listTracks(ctx context.Context) error {
	if err := c.status(ctx, "Loading tracks"); err != nil {
		return err
	}

	numCPUs, err := engine.NumberOfCPUs(ctx, c.engine)
	if err != nil {
		return err
	}
	maxFreq, err := engine.QueryAll(ctx, c.engine, "select max(value) from counters where name = 'cpufreq'")
	if err != nil {
		return fmt.Errorf("loading max cpu frequency: %w", err)
	}
	maximumFreq := 0.0
	if maxFreq.NumRecords > 0 {
		maximumFreq = maxFreq.Double(0, 0)
	}

	var tracks []actions.Action
	for cpu := 0; cpu < numCPUs; cpu++ {
		tracks = append(tracks, actions.AddTrack("", c.engineID, state.CPUSliceTrackKind,
			fmt.Sprintf("CPU %d", cpu), state.ScrollingTrackGroup, state.CPUSliceConfig{CPU: cpu}))
	}

	hasFreq, err := c.probeCPUFreqs(ctx, numCPUs)
	if err != nil {
		return err
	}
	for cpu, ok := range hasFreq {
		if !ok {
			continue
		}
		tracks = append(tracks, actions.AddTrack("", c.engineID, state.CPUFreqTrackKind,
			fmt.Sprintf("CPU %d Frequency", cpu), state.ScrollingTrackGroup,
			state.CPUFreqConfig{CPU: cpu, MaximumValue: maximumFreq}))
	}

	counters, err := engine.QueryAll(ctx, c.engine, "select name, ref, ref_type, count(ref_type) "+
		"from counters "+
		"where ref is not null "+
		"group by name, ref, ref_type "+
		"order by ref_type desc")
	if err != nil {
		return fmt.Errorf("listing counters: %w", err)
	}
	for i := 0; i < counters.NumRecords; i++ {
		// Global counters are not bound to a process or thread.
		if !counters.IsNull(2, i) {
			continue
		}
		name := counters.Text(0, i)
		tracks = append(tracks, actions.AddTrack("", c.engineID, state.CounterTrackKind, name,
			state.ScrollingTrackGroup, state.CounterConfig{Name: name, Ref: int(counters.Long(1, i))}))
	}

	depths, err := engine.QueryAll(ctx, c.engine, "select utid, max(depth) from slices group by utid")
	if err != nil {
		return fmt.Errorf("loading slice depths: %w", err)
	}
	maxDepth := make(map[int]int, depths.NumRecords)
	for i := 0; i < depths.NumRecords; i++ {
		maxDepth[int(depths.Long(0, i))] = int(depths.Long(1, i))
	}

	threads, err := engine.QueryAll(ctx, c.engine, "select utid, tid, upid, pid, "+
		"thread.name as threadName, process.name as processName, total_dur "+
		"from thread left join process using(upid) left join ("+
		"  select upid, sum(dur) as total_dur"+
		"  from sched join thread using(utid)"+
		"  group by upid) using(upid) "+
		"group by utid, upid "+
		"order by total_dur desc, upid, utid")
	if err != nil {
		return fmt.Errorf("listing threads: %w", err)
	}

	return c.dispatch(ctx, groupTracks(c.engineID, tracks, counters, threads, maxDepth)...)
}

func (c *TraceController) probeCPUFreqs(ctx context.Context, numCPUs int) ([]bool, error) {
	hasFreq := make([]bool, numCPUs)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(probeConcurrency)
	for cpu := 0; cpu < numCPUs; cpu++ {
		g.Go(func() error {
			r, err := engine.QueryAll(gctx, c.engine, fmt.Sprintf(
				"select value from counters where name = 'cpufreq' and ref = %d limit 1", cpu))
			if err != nil {
				return fmt.Errorf("probing frequency of cpu %d: %w", cpu, err)
			}
			hasFreq[cpu] = r.NumRecords > 0
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return hasFreq, nil
}

// groupTracks turns the thread list into one group per process, or per
// thread without a process, each with a summary track, the scoped counter
// tracks and a slice track per thread with slices. Threads with neither
// slices nor scoped counters are skipped. Groups are added before the
// tracks that go into them.
func groupTracks(engineID string, tracks []actions.Action, counters, threads *engine.Result, maxDepth map[int]int) []actions.Action {
	counterUpids := make(map[int]bool)
	counterUtids := make(map[int]bool)
	for i := 0; i < counters.NumRecords; i++ {
		ref := int(counters.Long(1, i))
		switch counters.Text(2, i) {
		case "upid":
			counterUpids[ref] = true
		case "utid":
			counterUtids[ref] = true
		}
	}

	scopedCounters := func(refType string, ref int, groupID string) []actions.Action {
		var out []actions.Action
		for j := 0; j < counters.NumRecords; j++ {
			if counters.IsNull(2, j) || counters.Text(2, j) != refType || int(counters.Long(1, j)) != ref {
				continue
			}
			name := counters.Text(0, j)
			out = append(out, actions.AddTrack("", engineID, state.CounterTrackKind, name, groupID,
				state.CounterConfig{Name: name, Ref: ref}))
		}
		return out
	}

	upidGroups := make(map[int]string)
	utidGroups := make(map[int]string)
	var summaries, groups []actions.Action
	for i := 0; i < threads.NumRecords; i++ {
		hasUpid := !threads.IsNull(2, i)
		utid := int(threads.Long(0, i))
		tid := int(threads.Long(1, i))
		upid := 0
		if hasUpid {
			upid = int(threads.Long(2, i))
		}
		pid := int(threads.Long(3, i))
		threadName := text(threads, 4, i)
		processName := text(threads, 5, i)

		depth, hasSlices := maxDepth[utid]
		if !hasSlices && (!hasUpid || !counterUpids[upid]) && !counterUtids[utid] {
			continue
		}

		groupID := utidGroups[utid]
		if hasUpid {
			groupID = upidGroups[upid]
		}
		if groupID == "" {
			groupID = uuid.NewString()
			summaryID := uuid.NewString()
			if hasUpid {
				upidGroups[upid] = groupID
			} else {
				utidGroups[utid] = groupID
			}

			pidForColor := utid
			switch {
			case pid != 0:
				pidForColor = pid
			case tid != 0:
				pidForColor = tid
			case upid != 0:
				pidForColor = upid
			}
			summaryName := strconv.Itoa(tid) + " summary"
			groupName := threadName + " " + strconv.Itoa(tid)
			if hasUpid {
				summaryName = strconv.Itoa(pid) + " summary"
				groupName = processName + " " + strconv.Itoa(pid)
			}
			summaries = append(summaries, actions.AddTrack(summaryID, engineID, state.ProcessSummaryTrackKind,
				summaryName, "", state.ProcessSummaryConfig{PIDForColor: pidForColor, Upid: upid, Utid: utid}))
			groups = append(groups, actions.AddTrackGroup(engineID, groupName, groupID, summaryID, true))
			if hasUpid {
				groups = append(groups, scopedCounters("upid", upid, groupID)...)
			}
		}

		groups = append(groups, scopedCounters("utid", utid, groupID)...)

		if hasSlices {
			tracks = append(tracks, actions.AddTrack("", engineID, state.SliceTrackKind,
				fmt.Sprintf("%s [%d]", threadName, tid), groupID,
				state.SliceConfig{MaxDepth: depth, Upid: upid, Utid: utid}))
		}
	}

	out := make([]actions.Action, 0, len(summaries)+len(groups)+len(tracks))
	out = append(out, summaries...)
	out = append(out, groups...)
	return append(out, tracks...)
}

func floorNs(sec float64) int64 {
	return int64(math.Floor(sec * timeline.NsPerSec))
}

func ceilNs(sec float64) int64 {
	return int64(math.Ceil(sec * timeline.NsPerSec))
}

func text(r *engine.Result, col, row int) string {
	if r.IsNull(col, row) {
		return ""
	}
	return r.Text(col, row)
}

func (c *TraceController) listThreads(ctx context.Context) error {
	if err := c.status(ctx, "Reading thread list"); err != nil {
		return err
	}
	r, err := engine.QueryAll(ctx, c.engine, "select utid, tid, pid, thread.name, "+
		"ifnull(process.name, thread.name) "+
		"from thread left join process using(upid)")
	if err != nil {
		return fmt.Errorf("reading thread list: %w", err)
	}
	threads := make([]frontend.ThreadDesc, r.NumRecords)
	for i := range threads {
		threads[i] = frontend.ThreadDesc{
			Utid:       int(r.Long(0, i)),
			Tid:        int(r.Long(1, i)),
			Pid:        int(r.Long(2, i)),
			ThreadName: text(r, 3, i),
			ProcName:   text(r, 4, i),
		}
	}
	return c.publish(ctx, session.KindThreads, threads)
}

// loadOverview publishes per-CPU scheduling load for each overview bucket.
// If no bucket has scheduling data, it falls back to per-process slice load.
func (c *TraceController) loadOverview(ctx context.Context, bounds timeline.TimeSpan) error {
	steps := c.env.OverviewSteps
	stepSec := bounds.Duration() / float64(steps)

	hasSched := false
	for step := 0; step < steps; step++ {
		if err := c.status(ctx, fmt.Sprintf("Loading overview %.1f%%", 100.0*float64(step+1)/float64(steps))); err != nil {
			return err
		}
		startSec := bounds.Start + float64(step)*stepSec
		endSec := startSec + stepSec
		r, err := engine.QueryAll(ctx, c.engine, fmt.Sprintf("select sum(dur)/%s/1e9, cpu from sched "+
			"where ts >= %d and ts < %d and utid != 0 "+
			"group by cpu order by cpu",
			strconv.FormatFloat(stepSec, 'g', -1, 64), floorNs(startSec), ceilNs(endSec)))
		if err != nil {
			return fmt.Errorf("loading overview step %d: %w", step, err)
		}
		data := make(frontend.OverviewData, r.NumRecords)
		for i := 0; i < r.NumRecords; i++ {
			cpu := strconv.FormatInt(r.Long(1, i), 10)
			data[cpu] = []frontend.QuantizedLoad{{StartSec: startSec, EndSec: endSec, Load: r.Double(0, i)}}
			hasSched = true
		}
		if err := c.publish(ctx, session.KindOverview, data); err != nil {
			return err
		}
	}
	if hasSched {
		return nil
	}

	traceStartNs := timeline.ToNs(bounds.Start)
	stepNs := max(timeline.ToNs(stepSec), 1)
	r, err := engine.QueryAll(ctx, c.engine, fmt.Sprintf("select bucket, upid, "+
		"sum(utid_sum) / cast(%d as float) as upid_sum from thread inner join "+
		"(select cast((ts - %d) / %d as int) as bucket, sum(dur) as utid_sum, utid "+
		"from slices group by bucket, utid) "+
		"using(utid) group by bucket, upid", stepNs, traceStartNs, stepNs))
	if err != nil {
		return fmt.Errorf("loading slice overview: %w", err)
	}
	data := make(frontend.OverviewData)
	for i := 0; i < r.NumRecords; i++ {
		bucket := r.Long(0, i)
		upid := strconv.FormatInt(r.Long(1, i), 10)
		startSec := bounds.Start + stepSec*float64(bucket)
		data[upid] = append(data[upid], frontend.QuantizedLoad{StartSec: startSec, EndSec: startSec + stepSec, Load: r.Double(2, i)})
	}
	return c.publish(ctx, session.KindOverview, data)
}
