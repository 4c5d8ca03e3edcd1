// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package frontend

import (
	"context"
	"fmt"
	"log"
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/pmuetschard/gapid/internal/events"
	"github.com/pmuetschard/gapid/internal/state"
	"github.com/pmuetschard/gapid/internal/timeline"
)

// Store caches everything published by the core.
type Store struct {
	mu           sync.RWMutex
	state        *state.State
	trackData    map[string]TrackPayload
	overview     OverviewData
	threads      map[int]ThreadDesc
	queryResults map[string]*QueryResult
	redraws      uint64
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		state:        state.New(),
		trackData:    make(map[string]TrackPayload),
		overview:     make(OverviewData),
		threads:      make(map[int]ThreadDesc),
		queryResults: make(map[string]*QueryResult),
	}
}

// Attach subscribes the store to the viewer events of bus.
func (s *Store) Attach(bus events.EventBus) (events.SubscriptionID, error) {
	return bus.Subscribe(events.ViewerPrefix+"*", s.Handle)
}

// Handle applies one published event.
func (s *Store) Handle(ctx context.Context, event events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch event.Type {
	case events.EventState:
		st, ok := event.Payload.(*state.State)
		if !ok {
			return fmt.Errorf("state event carries %T", event.Payload)
		}
		if !slices.Equal(engineIDs(s.state), engineIDs(st)) {
			// A new trace was opened; data of the old one is stale.
			clear(s.trackData)
			clear(s.overview)
		}
		s.state = st

	case events.EventTrackData:
		td, ok := event.Payload.(TrackData)
		if !ok {
			return fmt.Errorf("track data event carries %T", event.Payload)
		}
		s.trackData[td.ID] = td.Data

	case events.EventOverview:
		data, ok := event.Payload.(OverviewData)
		if !ok {
			return fmt.Errorf("overview event carries %T", event.Payload)
		}
		for key, loads := range data {
			s.overview[key] = append(s.overview[key], loads...)
		}

	case events.EventThreads:
		threads, ok := event.Payload.([]ThreadDesc)
		if !ok {
			return fmt.Errorf("threads event carries %T", event.Payload)
		}
		clear(s.threads)
		for _, t := range threads {
			s.threads[t.Utid] = t
		}

	case events.EventQueryResult:
		res, ok := event.Payload.(*QueryResult)
		if !ok {
			return fmt.Errorf("query result event carries %T", event.Payload)
		}
		s.queryResults[res.ID] = res

	case events.EventLegacyTrace:
		return nil

	default:
		log.Printf("Frontend: ignoring %s", event.Type)
		return nil
	}
	s.redraws++
	return nil
}

func engineIDs(st *state.State) []string {
	return slices.Sorted(maps.Keys(st.Engines))
}

// State returns the latest state snapshot.
func (s *Store) State() *state.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// TrackData returns the latest data published for a track.
func (s *Store) TrackData(trackID string) (TrackPayload, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.trackData[trackID]
	return d, ok
}

// Overview returns a copy of the overview data.
func (s *Store) Overview() OverviewData {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(OverviewData, len(s.overview))
	for k, v := range s.overview {
		out[k] = slices.Clone(v)
	}
	return out
}

// Threads returns the thread table ordered by utid.
func (s *Store) Threads() []ThreadDesc {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ThreadDesc, 0, len(s.threads))
	for _, t := range s.threads {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Utid < out[j].Utid })
	return out
}

// Thread looks up one thread.
func (s *Store) Thread(utid int) (ThreadDesc, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.threads[utid]
	return t, ok
}

// QueryResult returns the result of an ad-hoc query.
func (s *Store) QueryResult(id string) (*QueryResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.queryResults[id]
	return r, ok
}

// Redraws counts the published messages that changed the store.
func (s *Store) Redraws() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.redraws
}

// NeedsData reports whether the cached data of a track fails to cover the
// visible window at the resolution of one pixel.
func (s *Store) NeedsData(trackID string, visible timeline.TimeSpan, secPerPx float64) bool {
	data, ok := s.TrackData(trackID)
	if !ok || data == nil {
		return true
	}
	if !data.Covered().Covers(visible) {
		return true
	}
	return data.DataResolution() != timeline.QuantizeResolution(secPerPx)
}

// RequestWindow returns the window to request for a visible span: one
// extra span on each side, at the quantized resolution.
func RequestWindow(visible timeline.TimeSpan, secPerPx float64) (start, end, resolution float64) {
	d := visible.Duration()
	return visible.Start - d, visible.End + d, timeline.QuantizeResolution(secPerPx)
}
