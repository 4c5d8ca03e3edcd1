// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/pmuetschard/gapid/internal/actions"
	"github.com/pmuetschard/gapid/internal/frontend"
	"github.com/pmuetschard/gapid/internal/state"
)

// ViewerClient dispatches actions and reads the data published by the
// viewer core.
//
// Access this client through [Client.Viewer].
type ViewerClient struct {
	c *Client
}

// Action builds the wire form of an action. args is marshaled to JSON and
// may be nil.
func Action(name string, args any) actions.Envelope {
	env := actions.Envelope{Type: name}
	if args != nil {
		raw, err := json.Marshal(args)
		if err == nil {
			env.Args = raw
		}
	}
	return env
}

// Dispatch applies actions in order and returns the resulting state. With
// settle set it also waits for the queries the actions started.
func (v *ViewerClient) Dispatch(ctx context.Context, settle bool, acts ...actions.Envelope) (*state.State, error) {
	path := "/api/v1/actions"
	if settle {
		path += "?settle=true"
	}
	data, err := v.c.postJSON(ctx, path, acts)
	if err != nil {
		return nil, err
	}
	return decodeState(data)
}

// State returns the state as of the last settled dispatch loop.
func (v *ViewerClient) State(ctx context.Context) (*state.State, error) {
	data, err := v.c.get(ctx, "/api/v1/state")
	if err != nil {
		return nil, err
	}
	return decodeState(data)
}

func decodeState(data json.RawMessage) (*state.State, error) {
	var st state.State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to parse state: %w", err)
	}
	return &st, nil
}

// TrackData returns the raw data last published for a track. Its shape
// depends on the track kind.
func (v *ViewerClient) TrackData(ctx context.Context, trackID string) (json.RawMessage, error) {
	data, err := v.c.get(ctx, "/api/v1/tracks/"+url.PathEscape(trackID)+"/data")
	if err != nil {
		return nil, err
	}
	var td struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &td); err != nil {
		return nil, fmt.Errorf("failed to parse track data: %w", err)
	}
	return td.Data, nil
}

// DataCheck tells whether a track needs data for a visible window, and
// which window to request if so.
type DataCheck struct {
	NeedsData  bool    `json:"needs_data"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Resolution float64 `json:"resolution"`
}

// NeedsData checks the cached data of a track against the window
// [start, end] seconds drawn px pixels wide.
func (v *ViewerClient) NeedsData(ctx context.Context, trackID string, start, end float64, px int) (*DataCheck, error) {
	params := url.Values{}
	params.Set("start", strconv.FormatFloat(start, 'g', -1, 64))
	params.Set("end", strconv.FormatFloat(end, 'g', -1, 64))
	params.Set("px", strconv.Itoa(px))

	data, err := v.c.get(ctx, "/api/v1/tracks/"+url.PathEscape(trackID)+"/needs-data?"+params.Encode())
	if err != nil {
		return nil, err
	}
	var check DataCheck
	if err := json.Unmarshal(data, &check); err != nil {
		return nil, fmt.Errorf("failed to parse data check: %w", err)
	}
	return &check, nil
}

// Overview returns the overview load keyed by CPU or process.
func (v *ViewerClient) Overview(ctx context.Context) (frontend.OverviewData, error) {
	data, err := v.c.get(ctx, "/api/v1/overview")
	if err != nil {
		return nil, err
	}
	var ov frontend.OverviewData
	if err := json.Unmarshal(data, &ov); err != nil {
		return nil, fmt.Errorf("failed to parse overview: %w", err)
	}
	return ov, nil
}

// Threads returns the thread table.
func (v *ViewerClient) Threads(ctx context.Context) ([]frontend.ThreadDesc, error) {
	data, err := v.c.get(ctx, "/api/v1/threads")
	if err != nil {
		return nil, err
	}
	var threads []frontend.ThreadDesc
	if err := json.Unmarshal(data, &threads); err != nil {
		return nil, fmt.Errorf("failed to parse threads: %w", err)
	}
	return threads, nil
}

// QueryResult returns the result of an ad-hoc query.
func (v *ViewerClient) QueryResult(ctx context.Context, queryID string) (*frontend.QueryResult, error) {
	data, err := v.c.get(ctx, "/api/v1/queries/"+url.PathEscape(queryID))
	if err != nil {
		return nil, err
	}
	var res frontend.QueryResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("failed to parse query result: %w", err)
	}
	return &res, nil
}

// EngineStatus is the query progress of the trace engine.
type EngineStatus struct {
	Done      int64  `json:"done"`
	Scheduled int64  `json:"scheduled"`
	Status    string `json:"status"`
}

// Engine returns the query progress of the trace engine.
func (v *ViewerClient) Engine(ctx context.Context) (*EngineStatus, error) {
	data, err := v.c.get(ctx, "/api/v1/engine")
	if err != nil {
		return nil, err
	}
	var status EngineStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("failed to parse engine status: %w", err)
	}
	return &status, nil
}
