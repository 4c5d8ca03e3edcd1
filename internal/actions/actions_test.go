// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package actions

import (
	"fmt"
	"testing"

	"github.com/pmuetschard/gapid/internal/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func apply(t *testing.T, s *state.State, acts ...Action) {
	t.Helper()
	for _, a := range acts {
		m, ok := a.(Mutation)
		require.True(t, ok, "%s is not a mutation", a.Name())
		m.Apply(s)
	}
}

// checkIntegrity fails the test if any list or group references a track,
// group or engine that is not in the state.
func checkIntegrity(t *testing.T, s *state.State) {
	t.Helper()
	for _, list := range [][]string{s.ScrollingTracks, s.PinnedTracks} {
		for _, id := range list {
			assert.Contains(t, s.Tracks, id, "listed track %q does not exist", id)
		}
	}
	for gid, g := range s.TrackGroups {
		for _, id := range g.Tracks {
			assert.Contains(t, s.Tracks, id, "group %q lists missing track %q", gid, id)
		}
		if g.SummaryTrackID != "" {
			assert.Contains(t, s.Tracks, g.SummaryTrackID, "group %q has a missing summary track", gid)
		}
	}
	for id, tr := range s.Tracks {
		assert.Contains(t, s.Engines, tr.EngineID, "track %q uses a missing engine", id)
		if tr.TrackGroup != "" && tr.TrackGroup != state.ScrollingTrackGroup {
			assert.Contains(t, s.TrackGroups, tr.TrackGroup, "track %q is in a missing group", id)
		}
	}
}

// loaded returns a state with one engine, two scrolling tracks and a
// process group holding a summary track and one thread track.
func loaded(t *testing.T) *state.State {
	t.Helper()
	s := state.New()
	apply(t, s,
		OpenTrace("boot.db"),
		AddTrack("a", "0", state.CPUSliceTrackKind, "CPU 0", state.ScrollingTrackGroup, state.CPUSliceConfig{CPU: 0}),
		AddTrack("b", "0", state.CPUSliceTrackKind, "CPU 1", state.ScrollingTrackGroup, state.CPUSliceConfig{CPU: 1}),
		AddTrack("sum", "0", state.ProcessSummaryTrackKind, "app 10", "", state.ProcessSummaryConfig{Upid: 1}),
		AddTrackGroup("0", "app 10", "g", "sum", true),
		AddTrack("main", "0", state.SliceTrackKind, "main [10]", "g", state.SliceConfig{Upid: 1, Utid: 1}),
	)
	checkIntegrity(t, s)
	return s
}

func TestOpenTrace_ClearsAndAllocatesEngine(t *testing.T) {
	s := loaded(t)
	apply(t, s,
		ExecuteQuery("q", "0", "select 1"),
		SetConfigControl("durationSeconds", 5),
		CreatePermalink(),
	)
	next := s.NextID

	apply(t, s, OpenTrace("other.db"))

	id := fmt.Sprint(next)
	assert.Equal(t, map[string]*state.EngineConfig{id: {ID: id, Source: "other.db"}}, s.Engines)
	assert.Equal(t, next+1, s.NextID)
	assert.Equal(t, "/viewer", s.Route)
	assert.Empty(t, s.Tracks)
	assert.Empty(t, s.TrackGroups)
	assert.Empty(t, s.ScrollingTracks)
	assert.Empty(t, s.PinnedTracks)
	assert.Empty(t, s.Queries)
	assert.Equal(t, state.PermalinkConfig{}, s.Permalink)
	assert.Equal(t, 5, s.RecordConfig.Extras["durationSeconds"], "record config survives")
	checkIntegrity(t, s)
}

func TestAddTrack_ConfigKindMismatchPanics(t *testing.T) {
	s := loaded(t)
	assert.Panics(t, func() {
		apply(t, s, AddTrack("x", "0", state.CounterTrackKind, "x", state.ScrollingTrackGroup, state.CPUSliceConfig{}))
	})
	assert.NotContains(t, s.Tracks, "x")
}

func TestAddTrack_AllocatesID(t *testing.T) {
	s := loaded(t)
	next := s.NextID
	apply(t, s, AddTrack("", "0", state.CounterTrackKind, "mem", state.ScrollingTrackGroup, state.CounterConfig{Name: "mem"}))

	id := fmt.Sprint(next)
	require.Contains(t, s.Tracks, id)
	assert.Equal(t, []string{"a", "b", id}, s.ScrollingTracks)
	checkIntegrity(t, s)
}

func TestTrackSequences(t *testing.T) {
	tests := []struct {
		name      string
		acts      []Action
		scrolling []string
		pinned    []string
		tracks    []string
		check     func(t *testing.T, s *state.State)
	}{
		{
			name:      "remove scrolling track",
			acts:      []Action{RemoveTrack("a")},
			scrolling: []string{"b"},
			pinned:    []string{},
			tracks:    []string{"b", "main", "sum"},
		},
		{
			name:      "remove pinned group track",
			acts:      []Action{ToggleTrackPinned("main"), RemoveTrack("main")},
			scrolling: []string{"a", "b"},
			pinned:    []string{},
			tracks:    []string{"a", "b", "sum"},
			check: func(t *testing.T, s *state.State) {
				assert.Empty(t, s.TrackGroups["g"].Tracks)
			},
		},
		{
			name:      "remove group cascades",
			acts:      []Action{ToggleTrackPinned("main"), ToggleTrackPinned("a"), RemoveTrackGroup("g")},
			scrolling: []string{"b"},
			pinned:    []string{"a"},
			tracks:    []string{"a", "b"},
			check: func(t *testing.T, s *state.State) {
				assert.Empty(t, s.TrackGroups)
			},
		},
		{
			name:      "pin and unpin scrolling track",
			acts:      []Action{ToggleTrackPinned("b"), ToggleTrackPinned("b")},
			scrolling: []string{"b", "a"},
			pinned:    []string{},
			tracks:    []string{"a", "b", "main", "sum"},
		},
		{
			name:      "move before",
			acts:      []Action{MoveTrack("b", MoveBefore, "a")},
			scrolling: []string{"b", "a"},
			pinned:    []string{},
			tracks:    []string{"a", "b", "main", "sum"},
		},
		{
			name:      "move after",
			acts:      []Action{MoveTrack("a", MoveAfter, "b")},
			scrolling: []string{"b", "a"},
			pinned:    []string{},
			tracks:    []string{"a", "b", "main", "sum"},
		},
		{
			name:      "move onto itself",
			acts:      []Action{MoveTrack("a", MoveBefore, "a")},
			scrolling: []string{"a", "b"},
			pinned:    []string{},
			tracks:    []string{"a", "b", "main", "sum"},
		},
		{
			name:      "move within pinned",
			acts:      []Action{ToggleTrackPinned("a"), ToggleTrackPinned("main"), MoveTrack("main", MoveBefore, "a")},
			scrolling: []string{"b"},
			pinned:    []string{"main", "a"},
			tracks:    []string{"a", "b", "main", "sum"},
		},
		{
			name:      "toggle group collapsed",
			acts:      []Action{ToggleTrackGroupCollapsed("g")},
			scrolling: []string{"a", "b"},
			pinned:    []string{},
			tracks:    []string{"a", "b", "main", "sum"},
			check: func(t *testing.T, s *state.State) {
				assert.False(t, s.TrackGroups["g"].Collapsed)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := loaded(t)
			for _, a := range tt.acts {
				apply(t, s, a)
				checkIntegrity(t, s)
			}
			assert.Equal(t, tt.scrolling, s.ScrollingTracks)
			assert.Equal(t, tt.pinned, s.PinnedTracks)
			assert.ElementsMatch(t, tt.tracks, keys(s.Tracks))
			if tt.check != nil {
				tt.check(t, s)
			}
		})
	}
}

func TestMissingIDsPanic(t *testing.T) {
	tests := []struct {
		name string
		act  Action
	}{
		{name: "move unknown source", act: MoveTrack("ghost", MoveBefore, "a")},
		{name: "move to unknown destination", act: MoveTrack("a", MoveAfter, "ghost")},
		{name: "remove unknown track", act: RemoveTrack("ghost")},
		{name: "pin unknown track", act: ToggleTrackPinned("ghost")},
		{name: "remove unknown group", act: RemoveTrackGroup("ghost")},
		{name: "collapse unknown group", act: ToggleTrackGroupCollapsed("ghost")},
		{name: "request data of unknown track", act: ReqTrackData("ghost", 0, 1, 0.1)},
		{name: "ready unknown engine", act: SetEngineReady("7", true)},
		{name: "add to unknown group", act: AddTrack("x", "0", state.CPUSliceTrackKind, "x", "ghost", nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := loaded(t)
			assert.Panics(t, func() { apply(t, s, tt.act) })
			assert.Equal(t, []string{"a", "b"}, s.ScrollingTracks)
			assert.Empty(t, s.PinnedTracks)
			assert.NotContains(t, s.Tracks, "x")
			checkIntegrity(t, s)
		})
	}
}

func TestClearTrackDataReq_RemovedTrack(t *testing.T) {
	s := loaded(t)
	apply(t, s, ReqTrackData("a", 0, 1, 0.01))
	require.NotNil(t, s.Tracks["a"].DataReq)

	apply(t, s, ClearTrackDataReq("a"), ClearTrackDataReq("gone"))
	assert.Nil(t, s.Tracks["a"].DataReq)
}

func TestConfigControls(t *testing.T) {
	s := state.New()
	apply(t, s, AddConfigControl("atrace", "gfx", "view"))
	assert.Equal(t, []string{"gfx", "view"}, s.RecordConfig.Extras["atrace"])

	// After a snapshot round-trip the list holds []any.
	s = s.Clone()
	apply(t, s,
		AddConfigControl("atrace", "view", "input"),
		RemoveConfigControl("atrace", "gfx"),
		RemoveConfigControl("fresh", "x"),
	)
	assert.Equal(t, []string{"view", "input"}, s.RecordConfig.Extras["atrace"])
	assert.Equal(t, []string{}, s.RecordConfig.Extras["fresh"])

	apply(t, s, SetConfigControl("bufferKb", 64))
	assert.Panics(t, func() { apply(t, s, AddConfigControl("bufferKb", "x")) })
}

func TestPermalinkRequests(t *testing.T) {
	s := state.New()
	apply(t, s, CreatePermalink())
	req := s.Permalink.RequestID
	require.NotEmpty(t, req)

	apply(t, s, SetPermalink("stale", "nope"))
	assert.Empty(t, s.Permalink.Hash)

	apply(t, s, SetPermalink(req, "abc"))
	assert.Equal(t, "abc", s.Permalink.Hash)

	apply(t, s, LoadPermalink("def"))
	assert.Equal(t, "def", s.Permalink.Hash)
	assert.NotEqual(t, req, s.Permalink.RequestID)

	apply(t, s, ClearPermalink())
	assert.Equal(t, state.PermalinkConfig{}, s.Permalink)
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
