// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package state

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_ResolvesConfigFromKind(t *testing.T) {
	hi := 100.0
	configs := map[string]TrackConfig{
		SliceTrackKind:          SliceConfig{MaxDepth: 3, Upid: 1, Utid: 2},
		CounterTrackKind:        CounterConfig{Name: "mem", Ref: 4, Max: &hi},
		CPUFreqTrackKind:        CPUFreqConfig{CPU: 1, MaximumValue: 2.5e6},
		CPUSliceTrackKind:       CPUSliceConfig{CPU: 7},
		ProcessSummaryTrackKind: ProcessSummaryConfig{PIDForColor: 10, Upid: 1},
	}

	s := New()
	for kind, cfg := range configs {
		s.Tracks[kind] = &TrackState{ID: kind, EngineID: "0", Kind: kind, Name: kind, Config: cfg}
	}
	s.Tracks["bare"] = &TrackState{ID: "bare", EngineID: "0", Kind: ProcessSummaryTrackKind}

	out := s.Clone()
	for kind, cfg := range configs {
		require.Contains(t, out.Tracks, kind)
		assert.Equal(t, cfg, out.Tracks[kind].Config, kind)
		assert.Equal(t, kind, out.Tracks[kind].Config.TrackKind())
	}
	assert.Nil(t, out.Tracks["bare"].Config)
}

func TestDecode_Errors(t *testing.T) {
	_, err := Decode([]byte(`{"tracks":{"1":{"id":"1","kind":"NoSuchTrack","config":{}}}}`))
	assert.ErrorContains(t, err, `unknown track kind "NoSuchTrack"`)

	_, err = Decode([]byte(`{"tracks":{"1":{"id":"1","kind":"CpuSliceTrack","config":{"cpu":"zero"}}}}`))
	assert.ErrorContains(t, err, "decoding CpuSliceTrack config")

	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)
}

func TestDecode_RestoresEmptyCollections(t *testing.T) {
	s, err := Decode([]byte(`{"route":"/info","engines":null,"pinned_tracks":null}`))
	require.NoError(t, err)

	assert.Equal(t, "/info", s.Route)
	assert.NotNil(t, s.Engines)
	assert.NotNil(t, s.Tracks)
	assert.NotNil(t, s.TrackGroups)
	assert.NotNil(t, s.Queries)
	assert.Equal(t, []string{}, s.ScrollingTracks)
	assert.Equal(t, []string{}, s.PinnedTracks)
	assert.Equal(t, DefaultTraceTime(), s.TraceTime)
}

func TestClone_IsDeep(t *testing.T) {
	s := New()
	s.Engines["0"] = &EngineConfig{ID: "0", Source: "boot.db"}
	s.Tracks["1"] = &TrackState{ID: "1", EngineID: "0", Kind: CPUSliceTrackKind, TrackGroup: ScrollingTrackGroup,
		Config: CPUSliceConfig{CPU: 0}, DataReq: &TrackDataRequest{Start: 0, End: 1, Resolution: 0.1}}
	s.ScrollingTracks = []string{"1"}

	c := s.Clone()
	c.Tracks["1"].DataReq.End = 5
	c.Engines["0"].Ready = true
	c.ScrollingTracks[0] = "2"

	assert.Equal(t, 1.0, s.Tracks["1"].DataReq.End)
	assert.False(t, s.Engines["0"].Ready)
	assert.Equal(t, []string{"1"}, s.ScrollingTracks)
}

func TestTrackState_OmitsNilConfig(t *testing.T) {
	data, err := json.Marshal(&TrackState{ID: "1", Kind: CounterTrackKind})
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"config"`)
}

func TestLookups(t *testing.T) {
	s := New()
	assert.Equal(t, "0", s.AllocID())
	assert.Equal(t, "1", s.AllocID())

	assert.Panics(t, func() { s.Track("1") })
	assert.Panics(t, func() { s.TrackGroup("g") })
	assert.Panics(t, func() { s.Engine("0") })

	s.PinnedTracks = []string{"3"}
	assert.True(t, s.IsPinned("3"))
	assert.False(t, s.IsPinned("4"))
}

func TestClear_KeepsCounterAndRecordConfig(t *testing.T) {
	s := New()
	s.NextID = 9
	s.Route = "/record"
	s.RecordConfig.DurationSeconds = 30
	s.Engines["0"] = &EngineConfig{ID: "0"}
	s.Queries["q"] = &QueryConfig{ID: "q"}
	s.Permalink.Hash = "abc"

	s.Clear()

	assert.Equal(t, 9, s.NextID)
	assert.Equal(t, "/record", s.Route)
	assert.Equal(t, 30, s.RecordConfig.DurationSeconds)
	assert.Empty(t, s.Engines)
	assert.Empty(t, s.Queries)
	assert.Empty(t, s.Permalink.Hash)
}
