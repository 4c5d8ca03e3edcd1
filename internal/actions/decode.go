// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package actions

import (
	"encoding/json"
	"fmt"

	"github.com/pmuetschard/gapid/internal/state"
)

// Envelope is the wire form of an action sent by the presentation layer.
type Envelope struct {
	Type string          `json:"type"`
	Args json.RawMessage `json:"args,omitempty"`
}

type trackArgs struct {
	ID         string          `json:"id"`
	EngineID   string          `json:"engine_id"`
	Kind       string          `json:"kind"`
	Name       string          `json:"name"`
	TrackGroup string          `json:"track_group"`
	Config     json.RawMessage `json:"config"`
}

type groupArgs struct {
	ID             string `json:"id"`
	EngineID       string `json:"engine_id"`
	Name           string `json:"name"`
	SummaryTrackID string `json:"summary_track_id"`
	Collapsed      bool   `json:"collapsed"`
}

type dataReqArgs struct {
	TrackID    string  `json:"track_id"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Resolution float64 `json:"resolution"`
}

type queryArgs struct {
	QueryID  string `json:"query_id"`
	EngineID string `json:"engine_id"`
	Query    string `json:"query"`
}

type moveArgs struct {
	SrcID string `json:"src_id"`
	Op    MoveOp `json:"op"`
	DstID string `json:"dst_id"`
}

type idArgs struct {
	ID    string `json:"id"`
	Ready bool   `json:"ready"`
}

type permalinkArgs struct {
	RequestID string `json:"request_id"`
	Hash      string `json:"hash"`
}

type controlArgs struct {
	Name    string   `json:"name"`
	Value   any      `json:"value"`
	Options []string `json:"options"`
}

type routeArgs struct {
	Route string `json:"route"`
	Name  string `json:"name"`
}

// decoders maps wire type names to constructors. Replace is not accepted
// from the wire; whole-state replacement only comes from permalinks.
var decoders = map[string]func(json.RawMessage) (Action, error){
	"navigate": func(raw json.RawMessage) (Action, error) {
		var a routeArgs
		if err := unmarshal(raw, &a); err != nil {
			return nil, err
		}
		return Navigate(a.Route), nil
	},
	"openTrace": func(raw json.RawMessage) (Action, error) {
		var a routeArgs
		if err := unmarshal(raw, &a); err != nil {
			return nil, err
		}
		return OpenTrace(a.Name), nil
	},
	"addTrack": func(raw json.RawMessage) (Action, error) {
		var a trackArgs
		if err := unmarshal(raw, &a); err != nil {
			return nil, err
		}
		cfg, err := state.DecodeTrackConfig(a.Kind, a.Config)
		if err != nil {
			return nil, err
		}
		return AddTrack(a.ID, a.EngineID, a.Kind, a.Name, a.TrackGroup, cfg), nil
	},
	"removeTrack": func(raw json.RawMessage) (Action, error) {
		var a idArgs
		if err := unmarshal(raw, &a); err != nil {
			return nil, err
		}
		return RemoveTrack(a.ID), nil
	},
	"addTrackGroup": func(raw json.RawMessage) (Action, error) {
		var a groupArgs
		if err := unmarshal(raw, &a); err != nil {
			return nil, err
		}
		return AddTrackGroup(a.EngineID, a.Name, a.ID, a.SummaryTrackID, a.Collapsed), nil
	},
	"removeTrackGroup": func(raw json.RawMessage) (Action, error) {
		var a idArgs
		if err := unmarshal(raw, &a); err != nil {
			return nil, err
		}
		return RemoveTrackGroup(a.ID), nil
	},
	"reqTrackData": func(raw json.RawMessage) (Action, error) {
		var a dataReqArgs
		if err := unmarshal(raw, &a); err != nil {
			return nil, err
		}
		return ReqTrackData(a.TrackID, a.Start, a.End, a.Resolution), nil
	},
	"clearTrackDataReq": func(raw json.RawMessage) (Action, error) {
		var a dataReqArgs
		if err := unmarshal(raw, &a); err != nil {
			return nil, err
		}
		return ClearTrackDataReq(a.TrackID), nil
	},
	"executeQuery": func(raw json.RawMessage) (Action, error) {
		var a queryArgs
		if err := unmarshal(raw, &a); err != nil {
			return nil, err
		}
		return ExecuteQuery(a.QueryID, a.EngineID, a.Query), nil
	},
	"deleteQuery": func(raw json.RawMessage) (Action, error) {
		var a queryArgs
		if err := unmarshal(raw, &a); err != nil {
			return nil, err
		}
		return DeleteQuery(a.QueryID), nil
	},
	"moveTrack": func(raw json.RawMessage) (Action, error) {
		var a moveArgs
		if err := unmarshal(raw, &a); err != nil {
			return nil, err
		}
		if a.Op != MoveBefore && a.Op != MoveAfter {
			return nil, fmt.Errorf("invalid move op %q", a.Op)
		}
		return MoveTrack(a.SrcID, a.Op, a.DstID), nil
	},
	"toggleTrackPinned": func(raw json.RawMessage) (Action, error) {
		var a idArgs
		if err := unmarshal(raw, &a); err != nil {
			return nil, err
		}
		return ToggleTrackPinned(a.ID), nil
	},
	"toggleTrackGroupCollapsed": func(raw json.RawMessage) (Action, error) {
		var a idArgs
		if err := unmarshal(raw, &a); err != nil {
			return nil, err
		}
		return ToggleTrackGroupCollapsed(a.ID), nil
	},
	"setEngineReady": func(raw json.RawMessage) (Action, error) {
		var a idArgs
		if err := unmarshal(raw, &a); err != nil {
			return nil, err
		}
		return SetEngineReady(a.ID, a.Ready), nil
	},
	"createPermalink": func(json.RawMessage) (Action, error) {
		return CreatePermalink(), nil
	},
	"loadPermalink": func(raw json.RawMessage) (Action, error) {
		var a permalinkArgs
		if err := unmarshal(raw, &a); err != nil {
			return nil, err
		}
		return LoadPermalink(a.Hash), nil
	},
	"clearPermalink": func(json.RawMessage) (Action, error) {
		return ClearPermalink(), nil
	},
	"setVisibleTraceTime": func(raw json.RawMessage) (Action, error) {
		var a state.TraceTime
		if err := unmarshal(raw, &a); err != nil {
			return nil, err
		}
		return SetVisibleTraceTime(a), nil
	},
	"updateStatus": func(raw json.RawMessage) (Action, error) {
		var a state.Status
		if err := unmarshal(raw, &a); err != nil {
			return nil, err
		}
		return UpdateStatus(a), nil
	},
	"setConfig": func(raw json.RawMessage) (Action, error) {
		a := state.DefaultRecordConfig()
		if err := unmarshal(raw, &a); err != nil {
			return nil, err
		}
		return SetConfig(a), nil
	},
	"setConfigControl": func(raw json.RawMessage) (Action, error) {
		var a controlArgs
		if err := unmarshal(raw, &a); err != nil {
			return nil, err
		}
		return SetConfigControl(a.Name, a.Value), nil
	},
	"addConfigControl": func(raw json.RawMessage) (Action, error) {
		var a controlArgs
		if err := unmarshal(raw, &a); err != nil {
			return nil, err
		}
		return AddConfigControl(a.Name, a.Options...), nil
	},
	"removeConfigControl": func(raw json.RawMessage) (Action, error) {
		var a controlArgs
		if err := unmarshal(raw, &a); err != nil {
			return nil, err
		}
		return RemoveConfigControl(a.Name, a.Options...), nil
	},
	"toggleDisplayConfigAsPbtxt": func(json.RawMessage) (Action, error) {
		return ToggleDisplayConfigAsPbtxt(), nil
	},
}

// Decode turns a wire envelope into an action.
func Decode(env Envelope) (Action, error) {
	dec, ok := decoders[env.Type]
	if !ok {
		return nil, fmt.Errorf("unknown action type %q", env.Type)
	}
	a, err := dec(env.Args)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", env.Type, err)
	}
	return a, nil
}

func unmarshal(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}
