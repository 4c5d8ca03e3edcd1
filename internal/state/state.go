// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package state holds the single application-state tree of the trace viewer.
package state

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/errors"
)

// ScrollingTrackGroup is the pseudo group id of tracks listed in the scrolling area.
const ScrollingTrackGroup = "ScrollingTracks"

// TrackDataRequest asks a track controller for data covering a window.
type TrackDataRequest struct {
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Resolution float64 `json:"resolution"`
}

// TrackState is one timeline row.
type TrackState struct {
	ID         string            `json:"id"`
	EngineID   string            `json:"engine_id"`
	Kind       string            `json:"kind"`
	Name       string            `json:"name"`
	TrackGroup string            `json:"track_group,omitempty"` // "" for group summary tracks
	DataReq    *TrackDataRequest `json:"data_req,omitempty"`
	Config     TrackConfig       `json:"-"`
}

// TrackGroupState is a collapsible group of tracks, one per process or thread.
type TrackGroupState struct {
	ID             string   `json:"id"`
	EngineID       string   `json:"engine_id"`
	Name           string   `json:"name"`
	Collapsed      bool     `json:"collapsed"`
	Tracks         []string `json:"tracks"`
	SummaryTrackID string   `json:"summary_track_id"`
}

// EngineConfig describes one open trace.
type EngineConfig struct {
	ID     string `json:"id"`
	Ready  bool   `json:"ready"`
	Source string `json:"source"`
}

// QueryConfig is a pending ad-hoc query.
type QueryConfig struct {
	ID       string `json:"id"`
	EngineID string `json:"engine_id"`
	Query    string `json:"query"`
}

// PermalinkConfig tracks a permalink request.
// RequestID is set when a permalink is requested, Hash once it has been created
// (or up front when a permalink is being loaded).
type PermalinkConfig struct {
	RequestID string `json:"request_id,omitempty"`
	Hash      string `json:"hash,omitempty"`
}

// TraceTime is a time span in seconds plus the epoch second it was last updated.
type TraceTime struct {
	StartSec   float64 `json:"start_sec"`
	EndSec     float64 `json:"end_sec"`
	LastUpdate int64   `json:"last_update"`
}

// DefaultTraceTime is the span used before a trace has been loaded.
func DefaultTraceTime() TraceTime {
	return TraceTime{StartSec: 0, EndSec: 10}
}

// Status is the status line shown by the presentation layer.
type Status struct {
	Msg       string `json:"msg"`
	Timestamp int64  `json:"timestamp"`
}

// State is the whole application state. It is only mutated by actions applied
// inside the dispatch loop.
type State struct {
	Route                string                      `json:"route"`
	NextID               int                         `json:"next_id"`
	RecordConfig         RecordConfig                `json:"record_config"`
	DisplayConfigAsPbtxt bool                        `json:"display_config_as_pbtxt"`
	Engines              map[string]*EngineConfig    `json:"engines"`
	TraceTime            TraceTime                   `json:"trace_time"`
	VisibleTraceTime     TraceTime                   `json:"visible_trace_time"`
	TrackGroups          map[string]*TrackGroupState `json:"track_groups"`
	Tracks               map[string]*TrackState      `json:"tracks"`
	ScrollingTracks      []string                    `json:"scrolling_tracks"`
	PinnedTracks         []string                    `json:"pinned_tracks"`
	Queries              map[string]*QueryConfig     `json:"queries"`
	Permalink            PermalinkConfig             `json:"permalink"`
	Status               Status                      `json:"status"`
}

// New returns an empty state.
func New() *State {
	return &State{
		RecordConfig:     DefaultRecordConfig(),
		Engines:          make(map[string]*EngineConfig),
		TraceTime:        DefaultTraceTime(),
		VisibleTraceTime: DefaultTraceTime(),
		TrackGroups:      make(map[string]*TrackGroupState),
		Tracks:           make(map[string]*TrackState),
		ScrollingTracks:  []string{},
		PinnedTracks:     []string{},
		Queries:          make(map[string]*QueryConfig),
	}
}

// Clear wipes everything that belongs to an open trace.
// The id counter, route and record config survive.
func (s *State) Clear() {
	s.Engines = make(map[string]*EngineConfig)
	s.TraceTime = DefaultTraceTime()
	s.VisibleTraceTime = DefaultTraceTime()
	s.TrackGroups = make(map[string]*TrackGroupState)
	s.Tracks = make(map[string]*TrackState)
	s.ScrollingTracks = []string{}
	s.PinnedTracks = []string{}
	s.Queries = make(map[string]*QueryConfig)
	s.Permalink = PermalinkConfig{}
	s.Status = Status{}
}

// AllocID returns the next id and advances the counter.
func (s *State) AllocID() string {
	id := fmt.Sprint(s.NextID)
	s.NextID++
	return id
}

// Track returns the track with the given id. A missing id is an invariant violation.
func (s *State) Track(id string) *TrackState {
	t, ok := s.Tracks[id]
	if !ok {
		panic(errors.AssertionFailedf("track %q does not exist", id))
	}
	return t
}

// TrackGroup returns the group with the given id. A missing id is an invariant violation.
func (s *State) TrackGroup(id string) *TrackGroupState {
	g, ok := s.TrackGroups[id]
	if !ok {
		panic(errors.AssertionFailedf("track group %q does not exist", id))
	}
	return g
}

// Engine returns the engine with the given id. A missing id is an invariant violation.
func (s *State) Engine(id string) *EngineConfig {
	e, ok := s.Engines[id]
	if !ok {
		panic(errors.AssertionFailedf("engine %q does not exist", id))
	}
	return e
}

// IsPinned reports whether the track is in the pinned list.
func (s *State) IsPinned(trackID string) bool {
	return indexOf(s.PinnedTracks, trackID) >= 0
}

// Clone returns a deep copy, used for snapshots handed to the presentation layer.
func (s *State) Clone() *State {
	data, err := json.Marshal(s)
	if err != nil {
		panic(errors.NewAssertionErrorWithWrappedErrf(err, "state is not serializable"))
	}
	out, err := Decode(data)
	if err != nil {
		panic(errors.NewAssertionErrorWithWrappedErrf(err, "state does not round-trip"))
	}
	return out
}

// Decode parses a serialized state and restores empty collections.
func Decode(data []byte) (*State, error) {
	out := New()
	if err := json.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("decoding state: %w", err)
	}
	if out.Engines == nil {
		out.Engines = make(map[string]*EngineConfig)
	}
	if out.TrackGroups == nil {
		out.TrackGroups = make(map[string]*TrackGroupState)
	}
	if out.Tracks == nil {
		out.Tracks = make(map[string]*TrackState)
	}
	if out.Queries == nil {
		out.Queries = make(map[string]*QueryConfig)
	}
	if out.ScrollingTracks == nil {
		out.ScrollingTracks = []string{}
	}
	if out.PinnedTracks == nil {
		out.PinnedTracks = []string{}
	}
	return out, nil
}

func indexOf(list []string, id string) int {
	for i, v := range list {
		if v == id {
			return i
		}
	}
	return -1
}
