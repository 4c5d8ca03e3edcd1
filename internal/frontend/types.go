// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package frontend is the presentation side of the publish channel. It keeps
// the latest state snapshot and the data published for each track, and
// decides when a track needs fresh data.
package frontend

import (
	"github.com/pmuetschard/gapid/internal/timeline"
)

// QuantizedLoad is the load of one overview bucket, between 0 and 1.
type QuantizedLoad struct {
	StartSec float64 `json:"start_sec"`
	EndSec   float64 `json:"end_sec"`
	Load     float64 `json:"load"`
}

// OverviewData maps a CPU number or process name to loads. Published
// overview data is appended to what was published before.
type OverviewData map[string][]QuantizedLoad

// ThreadDesc describes one thread of the trace.
type ThreadDesc struct {
	Utid       int    `json:"utid"`
	Tid        int    `json:"tid"`
	Pid        int    `json:"pid"`
	ThreadName string `json:"thread_name"`
	ProcName   string `json:"proc_name"`
}

// TrackPayload is the data published by a track controller. It reports
// the window and resolution it was computed for.
type TrackPayload interface {
	Covered() timeline.TimeSpan
	DataResolution() float64
}

// TrackData pairs a payload with its track.
type TrackData struct {
	ID   string       `json:"id"`
	Data TrackPayload `json:"data"`
}

// QueryResult is the outcome of an ad-hoc query.
type QueryResult struct {
	ID            string           `json:"id"`
	Query         string           `json:"query"`
	Error         string           `json:"error,omitempty"`
	TotalRowCount int              `json:"total_row_count"`
	DurationMs    float64          `json:"duration_ms"`
	Columns       []string         `json:"columns"`
	Rows          []map[string]any `json:"rows"`
}
