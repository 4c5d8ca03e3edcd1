// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package tracks

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/pmuetschard/gapid/internal/controller"
	"github.com/pmuetschard/gapid/internal/controllers"
	"github.com/pmuetschard/gapid/internal/engine"
	"github.com/pmuetschard/gapid/internal/state"
	"github.com/pmuetschard/gapid/internal/timeline"
)

// ProcessSummaryData is the utilization of a process in fixed buckets.
type ProcessSummaryData struct {
	Window
	BucketSizeSeconds float64   `json:"bucket_size_seconds"`
	Utilizations      []float64 `json:"utilizations"`
}

// ProcessSummaryTrack publishes how busy the threads of a process are,
// judged by their top-level slices.
type ProcessSummaryTrack struct {
	*controllers.Track
	setup bool
}

// NewProcessSummaryTrack is the factory of process summary tracks.
func NewProcessSummaryTrack(args controllers.TrackArgs) controller.Node {
	t := &ProcessSummaryTrack{}
	t.Track = controllers.NewTrack(args, t.onBoundsChange)
	return t
}

func (t *ProcessSummaryTrack) threadIDs(ctx context.Context, e engine.Engine, cfg state.ProcessSummaryConfig) ([]int64, error) {
	if cfg.Upid == 0 {
		return []int64{int64(cfg.Utid)}, nil
	}
	r, err := engine.QueryAll(ctx, e, fmt.Sprintf("select utid from thread where upid = %d", cfg.Upid))
	if err != nil {
		return nil, err
	}
	return r.Longs(0), nil
}

// setupQueries creates the window table and the top-level slices of the
// threads clipped to it. Each thread contributes its share of the load.
func (t *ProcessSummaryTrack) setupQueries(utids []int64) []string {
	win := t.TableName("window")
	span := t.TableName("span")
	ids := make([]string, len(utids))
	for i, id := range utids {
		ids[i] = strconv.FormatInt(id, 10)
	}
	queries := []string{"drop view if exists " + span}
	queries = append(queries, windowTable(win)...)
	return append(queries, spanView(span, win, fmt.Sprintf(
		"select ts, dur / %d as dur, 0 as cpu from slices where depth = 0 and utid in (%s)",
		max(len(utids), 1), strings.Join(ids, ",")), "s.cpu"))
}

func (t *ProcessSummaryTrack) onBoundsChange(start, end, resolution float64) {
	cfg := controllers.ConfigOf[state.ProcessSummaryConfig](t.Track)
	e := t.Engine()
	needSetup := !t.setup
	startNs, endNs := timeline.ToNs(start), timeline.ToNs(end)
	bucketNs, windowStartNs := quantum(startNs, resolution)
	update := fmt.Sprintf("update %s set window_start = %d, window_dur = %d, quantum = %d",
		t.TableName("window"), windowStartNs, max(1, endNs-windowStartNs), bucketNs)
	span := t.TableName("span")

	t.Fetch(func(ctx context.Context) (func(), error) {
		if needSetup {
			utids, err := t.threadIDs(ctx, e, cfg)
			if err != nil {
				return nil, err
			}
			if _, err := engine.QueryAll(ctx, e, t.setupQueries(utids)...); err != nil {
				return nil, err
			}
		}
		if _, err := engine.QueryAll(ctx, e, update); err != nil {
			return nil, err
		}
		utils, err := utilization(ctx, e, span, "cpu = 0", windowStartNs, endNs, bucketNs)
		if err != nil {
			return nil, err
		}
		data := &ProcessSummaryData{
			Window:            Window{Start: timeline.FromNs(windowStartNs), End: end, Resolution: resolution},
			BucketSizeSeconds: timeline.FromNs(bucketNs),
			Utilizations:      utils,
		}
		return func() {
			t.setup = true
			t.Publish(data)
		}, nil
	})
}
