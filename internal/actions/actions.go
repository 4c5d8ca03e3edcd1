// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package actions defines the discrete state transitions of the viewer.
//
// An Action is either a Mutation, which edits the state in place, or a
// Replace, which swaps the whole tree. The dispatch loop switches on the
// variant; nothing else may change the state.
package actions

import (
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/pmuetschard/gapid/internal/state"
)

// Action is a deterministic state transition.
type Action interface {
	Name() string
	action()
}

// Mutation edits the state in place.
type Mutation struct {
	name  string
	apply func(*state.State)
}

// Replace substitutes the whole state tree.
type Replace struct {
	State *state.State
}

func (m Mutation) Name() string { return m.name }
func (Replace) Name() string    { return "setState" }

func (Mutation) action() {}
func (Replace) action()  {}

// Apply runs the mutation against s.
func (m Mutation) Apply(s *state.State) {
	m.apply(s)
}

func mutation(name string, apply func(*state.State)) Action {
	return Mutation{name: name, apply: apply}
}

// Navigate changes the route.
func Navigate(route string) Action {
	return mutation("navigate", func(s *state.State) {
		s.Route = route
	})
}

// OpenTrace clears the state and registers a new engine for the named trace.
func OpenTrace(name string) Action {
	return mutation("openTrace", func(s *state.State) {
		s.Clear()
		id := s.AllocID()
		s.Engines[id] = &state.EngineConfig{ID: id, Source: name}
		s.Route = "/viewer"
	})
}

// AddTrack adds a track. An empty id allocates one. trackGroup is either
// state.ScrollingTrackGroup, the id of an existing group, or "" for tracks
// owned by a group as its summary.
func AddTrack(id, engineID, kind, name, trackGroup string, cfg state.TrackConfig) Action {
	return mutation("addTrack", func(s *state.State) {
		if cfg != nil && cfg.TrackKind() != kind {
			panic(errors.AssertionFailedf("track config of kind %s used for a %s track", cfg.TrackKind(), kind))
		}
		var group *state.TrackGroupState
		if trackGroup != "" && trackGroup != state.ScrollingTrackGroup {
			group = s.TrackGroup(trackGroup)
		}
		if id == "" {
			id = s.AllocID()
		}
		s.Tracks[id] = &state.TrackState{
			ID:         id,
			EngineID:   engineID,
			Kind:       kind,
			Name:       name,
			TrackGroup: trackGroup,
			Config:     cfg,
		}
		switch {
		case trackGroup == state.ScrollingTrackGroup:
			s.ScrollingTracks = append(s.ScrollingTracks, id)
		case group != nil:
			group.Tracks = append(group.Tracks, id)
		}
	})
}

// RemoveTrack deletes a track and every reference to it.
func RemoveTrack(id string) Action {
	return mutation("removeTrack", func(s *state.State) {
		t := s.Track(id)
		if t.TrackGroup != "" && t.TrackGroup != state.ScrollingTrackGroup {
			if g, ok := s.TrackGroups[t.TrackGroup]; ok {
				g.Tracks = remove(g.Tracks, id)
			}
		}
		s.ScrollingTracks = remove(s.ScrollingTracks, id)
		s.PinnedTracks = remove(s.PinnedTracks, id)
		delete(s.Tracks, id)
	})
}

// AddTrackGroup adds an empty track group.
func AddTrackGroup(engineID, name, id, summaryTrackID string, collapsed bool) Action {
	return mutation("addTrackGroup", func(s *state.State) {
		s.TrackGroups[id] = &state.TrackGroupState{
			ID:             id,
			EngineID:       engineID,
			Name:           name,
			Collapsed:      collapsed,
			Tracks:         []string{},
			SummaryTrackID: summaryTrackID,
		}
	})
}

// RemoveTrackGroup deletes a group together with its tracks and summary track.
func RemoveTrackGroup(id string) Action {
	return mutation("removeTrackGroup", func(s *state.State) {
		g := s.TrackGroup(id)
		doomed := append(slices.Clone(g.Tracks), g.SummaryTrackID)
		for _, trackID := range doomed {
			if trackID == "" {
				continue
			}
			s.PinnedTracks = remove(s.PinnedTracks, trackID)
			delete(s.Tracks, trackID)
		}
		delete(s.TrackGroups, id)
	})
}

// ReqTrackData records a pending data request for a track.
func ReqTrackData(trackID string, start, end, resolution float64) Action {
	return mutation("reqTrackData", func(s *state.State) {
		s.Track(trackID).DataReq = &state.TrackDataRequest{Start: start, End: end, Resolution: resolution}
	})
}

// ClearTrackDataReq acknowledges a pending data request. Clearing a track that
// was removed in the meantime is a no-op.
func ClearTrackDataReq(trackID string) Action {
	return mutation("clearTrackDataReq", func(s *state.State) {
		if t, ok := s.Tracks[trackID]; ok {
			t.DataReq = nil
		}
	})
}

// ExecuteQuery registers an ad-hoc query.
func ExecuteQuery(queryID, engineID, query string) Action {
	return mutation("executeQuery", func(s *state.State) {
		s.Queries[queryID] = &state.QueryConfig{ID: queryID, EngineID: engineID, Query: query}
	})
}

// DeleteQuery drops an ad-hoc query.
func DeleteQuery(queryID string) Action {
	return mutation("deleteQuery", func(s *state.State) {
		delete(s.Queries, queryID)
	})
}

// MoveOp positions a moved track relative to the destination.
type MoveOp string

const (
	MoveBefore MoveOp = "before"
	MoveAfter  MoveOp = "after"
)

// MoveTrack moves srcID before or after dstID within the pinned and scrolling lists.
func MoveTrack(srcID string, op MoveOp, dstID string) Action {
	move := func(list []string) []string {
		out := make([]string, 0, len(list))
		for _, cur := range list {
			if cur == dstID && op == MoveBefore {
				out = append(out, srcID)
			}
			if cur != srcID {
				out = append(out, cur)
			}
			if cur == dstID && op == MoveAfter {
				out = append(out, srcID)
			}
		}
		return out
	}
	return mutation("moveTrack", func(s *state.State) {
		s.Track(srcID)
		s.Track(dstID)
		if srcID == dstID {
			return
		}
		s.PinnedTracks = move(s.PinnedTracks)
		s.ScrollingTracks = move(s.ScrollingTracks)
	})
}

// ToggleTrackPinned moves a track in or out of the pinned list.
func ToggleTrackPinned(trackID string) Action {
	return mutation("toggleTrackPinned", func(s *state.State) {
		group := s.Track(trackID).TrackGroup
		if s.IsPinned(trackID) {
			s.PinnedTracks = remove(s.PinnedTracks, trackID)
			if group == state.ScrollingTrackGroup {
				s.ScrollingTracks = append([]string{trackID}, s.ScrollingTracks...)
			}
		} else {
			if group == state.ScrollingTrackGroup {
				s.ScrollingTracks = remove(s.ScrollingTracks, trackID)
			}
			s.PinnedTracks = append(s.PinnedTracks, trackID)
		}
	})
}

// ToggleTrackGroupCollapsed flips a group's collapsed flag.
func ToggleTrackGroupCollapsed(groupID string) Action {
	return mutation("toggleTrackGroupCollapsed", func(s *state.State) {
		g := s.TrackGroup(groupID)
		g.Collapsed = !g.Collapsed
	})
}

// SetEngineReady marks an engine ready or not.
func SetEngineReady(engineID string, ready bool) Action {
	return mutation("setEngineReady", func(s *state.State) {
		s.Engine(engineID).Ready = ready
	})
}

// CreatePermalink requests a permalink of the current state.
func CreatePermalink() Action {
	return mutation("createPermalink", func(s *state.State) {
		s.Permalink = state.PermalinkConfig{RequestID: s.AllocID()}
	})
}

// SetPermalink stores the hash of a created permalink if the request is still current.
func SetPermalink(requestID, hash string) Action {
	return mutation("setPermalink", func(s *state.State) {
		if requestID == s.Permalink.RequestID {
			s.Permalink.Hash = hash
		}
	})
}

// LoadPermalink requests loading the state stored under hash.
func LoadPermalink(hash string) Action {
	return mutation("loadPermalink", func(s *state.State) {
		s.Permalink = state.PermalinkConfig{RequestID: s.AllocID(), Hash: hash}
	})
}

// ClearPermalink forgets any permalink request.
func ClearPermalink() Action {
	return mutation("clearPermalink", func(s *state.State) {
		s.Permalink = state.PermalinkConfig{}
	})
}

// SetTraceTime sets the bounds of the whole trace.
func SetTraceTime(t state.TraceTime) Action {
	return mutation("setTraceTime", func(s *state.State) {
		s.TraceTime = t
	})
}

// SetVisibleTraceTime sets the visible window.
func SetVisibleTraceTime(t state.TraceTime) Action {
	return mutation("setVisibleTraceTime", func(s *state.State) {
		s.VisibleTraceTime = t
	})
}

// UpdateStatus sets the status line.
func UpdateStatus(status state.Status) Action {
	return mutation("updateStatus", func(s *state.State) {
		s.Status = status
	})
}

// SetState replaces the whole state tree.
func SetState(newState *state.State) Action {
	return Replace{State: newState}
}

// SetConfig replaces the record config.
func SetConfig(cfg state.RecordConfig) Action {
	return mutation("setConfig", func(s *state.State) {
		s.RecordConfig = cfg
	})
}

// SetConfigControl sets one free-form record config control.
func SetConfigControl(name string, value any) Action {
	return mutation("setConfigControl", func(s *state.State) {
		if s.RecordConfig.Extras == nil {
			s.RecordConfig.Extras = make(map[string]any)
		}
		s.RecordConfig.Extras[name] = value
	})
}

// AddConfigControl adds options to a list-valued control, skipping duplicates.
func AddConfigControl(name string, options ...string) Action {
	return mutation("addConfigControl", func(s *state.State) {
		list := configList(s, name)
		for _, opt := range options {
			if !slices.Contains(list, opt) {
				list = append(list, opt)
			}
		}
		s.RecordConfig.Extras[name] = list
	})
}

// RemoveConfigControl removes options from a list-valued control.
func RemoveConfigControl(name string, options ...string) Action {
	return mutation("removeConfigControl", func(s *state.State) {
		list := configList(s, name)
		list = slices.DeleteFunc(list, func(v string) bool {
			return slices.Contains(options, v)
		})
		s.RecordConfig.Extras[name] = list
	})
}

// ToggleDisplayConfigAsPbtxt flips the config editor display mode.
func ToggleDisplayConfigAsPbtxt() Action {
	return mutation("toggleDisplayConfigAsPbtxt", func(s *state.State) {
		s.DisplayConfigAsPbtxt = !s.DisplayConfigAsPbtxt
	})
}

func configList(s *state.State, name string) []string {
	if s.RecordConfig.Extras == nil {
		s.RecordConfig.Extras = make(map[string]any)
	}
	switch v := s.RecordConfig.Extras[name].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if str, ok := e.(string); ok {
				out = append(out, str)
			}
		}
		return out
	case nil:
		return []string{}
	default:
		panic(errors.AssertionFailedf("record config control %q is not a list", name))
	}
}

func remove(list []string, id string) []string {
	return slices.DeleteFunc(slices.Clone(list), func(v string) bool { return v == id })
}
