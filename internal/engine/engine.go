// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package engine is the boundary to the trace query engine.
//
// An Engine executes query text and returns a typed columnar Result. Errors
// are reported in the result rather than returned, so that query failures
// can be surfaced to the user as text.
package engine

import (
	"context"
	"fmt"

	"github.com/pmuetschard/gapid/internal/timeline"
)

// Engine executes queries against a loaded trace.
type Engine interface {
	Query(ctx context.Context, query string) *Result
}

// QueryOneRow runs a query and returns its first row as integers.
func QueryOneRow(ctx context.Context, e Engine, query string) ([]int64, error) {
	r := e.Query(ctx, query)
	if err := r.Err(); err != nil {
		return nil, err
	}
	if r.NumRecords == 0 {
		return nil, ErrNoRows
	}
	row := make([]int64, len(r.Columns))
	for col := range r.Columns {
		row[col] = r.Long(col, 0)
	}
	return row, nil
}

// NumberOfCPUs returns the number of distinct CPUs with scheduling data.
func NumberOfCPUs(ctx context.Context, e Engine) (int, error) {
	row, err := QueryOneRow(ctx, e, "select count(distinct(cpu)) as cpuCount from sched")
	if err != nil {
		return 0, fmt.Errorf("counting cpus: %w", err)
	}
	return int(row[0]), nil
}

// NumberOfProcesses returns the number of processes in the trace.
func NumberOfProcesses(ctx context.Context, e Engine) (int, error) {
	row, err := QueryOneRow(ctx, e, "select count(*) from process")
	if err != nil {
		return 0, fmt.Errorf("counting processes: %w", err)
	}
	return int(row[0]), nil
}

// TraceBounds returns the span of the trace in seconds.
func TraceBounds(ctx context.Context, e Engine) (timeline.TimeSpan, error) {
	row, err := QueryOneRow(ctx, e, "select start_ts, end_ts from trace_bounds")
	if err != nil {
		return timeline.TimeSpan{}, fmt.Errorf("loading trace bounds: %w", err)
	}
	return timeline.TimeSpan{Start: timeline.FromNs(row[0]), End: timeline.FromNs(row[1])}, nil
}

// QueryAll runs queries in order and returns the result of the last one.
// It stops at the first query that reports an error.
func QueryAll(ctx context.Context, e Engine, queries ...string) (*Result, error) {
	var r *Result
	for _, q := range queries {
		r = e.Query(ctx, q)
		if err := r.Err(); err != nil {
			return nil, err
		}
	}
	return r, nil
}
