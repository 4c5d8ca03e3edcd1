// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package state

import (
	"encoding/json"
	"fmt"
)

// Track kinds. Every kind has exactly one config variant below and one
// registered controller.
const (
	SliceTrackKind          = "ChromeSliceTrack"
	CounterTrackKind        = "CounterTrack"
	CPUFreqTrackKind        = "CpuFreqTrack"
	CPUSliceTrackKind       = "CpuSliceTrack"
	ProcessSummaryTrackKind = "ProcessSummaryTrack"
)

// TrackConfig is the per-kind configuration carried by a track. The set of
// implementations is closed: only the types in this file satisfy it.
type TrackConfig interface {
	TrackKind() string
	trackConfig()
}

// SliceConfig configures a thread slice track.
type SliceConfig struct {
	MaxDepth int `json:"max_depth"`
	Upid     int `json:"upid"`
	Utid     int `json:"utid"`
}

// CounterConfig configures a counter track. Max and Min, when set, widen the
// value range beyond what is found in the trace.
type CounterConfig struct {
	Name string   `json:"name"`
	Ref  int      `json:"ref"`
	Max  *float64 `json:"max,omitempty"`
	Min  *float64 `json:"min,omitempty"`
}

// CPUFreqConfig configures a CPU frequency track.
type CPUFreqConfig struct {
	CPU          int     `json:"cpu"`
	MaximumValue float64 `json:"maximum_value"`
}

// CPUSliceConfig configures a CPU scheduling track.
type CPUSliceConfig struct {
	CPU int `json:"cpu"`
}

// ProcessSummaryConfig configures the summary track of a process or thread group.
// Upid is 0 for threads without a process.
type ProcessSummaryConfig struct {
	PIDForColor int `json:"pid_for_color"`
	Upid        int `json:"upid"`
	Utid        int `json:"utid"`
}

func (SliceConfig) TrackKind() string          { return SliceTrackKind }
func (CounterConfig) TrackKind() string        { return CounterTrackKind }
func (CPUFreqConfig) TrackKind() string        { return CPUFreqTrackKind }
func (CPUSliceConfig) TrackKind() string       { return CPUSliceTrackKind }
func (ProcessSummaryConfig) TrackKind() string { return ProcessSummaryTrackKind }

func (SliceConfig) trackConfig()          {}
func (CounterConfig) trackConfig()        {}
func (CPUFreqConfig) trackConfig()        {}
func (CPUSliceConfig) trackConfig()       {}
func (ProcessSummaryConfig) trackConfig() {}

// DecodeTrackConfig parses a serialized config of the given kind.
func DecodeTrackConfig(kind string, raw json.RawMessage) (TrackConfig, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var (
		cfg TrackConfig
		err error
	)
	switch kind {
	case SliceTrackKind:
		var c SliceConfig
		err = json.Unmarshal(raw, &c)
		cfg = c
	case CounterTrackKind:
		var c CounterConfig
		err = json.Unmarshal(raw, &c)
		cfg = c
	case CPUFreqTrackKind:
		var c CPUFreqConfig
		err = json.Unmarshal(raw, &c)
		cfg = c
	case CPUSliceTrackKind:
		var c CPUSliceConfig
		err = json.Unmarshal(raw, &c)
		cfg = c
	case ProcessSummaryTrackKind:
		var c ProcessSummaryConfig
		err = json.Unmarshal(raw, &c)
		cfg = c
	default:
		return nil, fmt.Errorf("unknown track kind %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding %s config: %w", kind, err)
	}
	return cfg, nil
}

type trackStateJSON struct {
	*trackStateAlias
	Config json.RawMessage `json:"config,omitempty"`
}

type trackStateAlias TrackState

// MarshalJSON writes the config alongside the track fields.
func (t *TrackState) MarshalJSON() ([]byte, error) {
	out := trackStateJSON{trackStateAlias: (*trackStateAlias)(t)}
	if t.Config != nil {
		raw, err := json.Marshal(t.Config)
		if err != nil {
			return nil, err
		}
		out.Config = raw
	}
	return json.Marshal(out)
}

// UnmarshalJSON resolves the config variant from the track kind.
func (t *TrackState) UnmarshalJSON(data []byte) error {
	in := trackStateJSON{trackStateAlias: (*trackStateAlias)(t)}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	cfg, err := DecodeTrackConfig(t.Kind, in.Config)
	if err != nil {
		return err
	}
	t.Config = cfg
	return nil
}
