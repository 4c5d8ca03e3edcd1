// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package controllers

import (
	"context"
	"log"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/pmuetschard/gapid/internal/actions"
	"github.com/pmuetschard/gapid/internal/controller"
	"github.com/pmuetschard/gapid/internal/engine"
	"github.com/pmuetschard/gapid/internal/frontend"
	"github.com/pmuetschard/gapid/internal/registry"
	"github.com/pmuetschard/gapid/internal/session"
	"github.com/pmuetschard/gapid/internal/state"
	"github.com/pmuetschard/gapid/internal/timeline"
)

// TrackArgs is handed to a track factory.
type TrackArgs struct {
	TrackID string
	Engine  engine.Engine
	Session *session.Session
}

// TrackFactory builds the controller of one track.
type TrackFactory func(args TrackArgs) controller.Node

// TrackRegistry maps track kinds to their controllers.
type TrackRegistry = registry.Registry[TrackFactory]

// NewTrackRegistry returns an empty track registry.
func NewTrackRegistry() *TrackRegistry {
	return registry.New[TrackFactory]()
}

// BoundsFunc is called with the window a track should publish data for.
type BoundsFunc func(start, end, resolution float64)

type trackMode int

// Track is the base of every track controller. Each round it acknowledges a
// pending data request and forwards it to the kind's bounds hook.
type Track struct {
	controller.Base[trackMode]

	id       string
	engine   engine.Engine
	session  *session.Session
	onBounds BoundsFunc
	busy     bool
}

// NewTrack returns a track base calling onBounds for each data request.
func NewTrack(args TrackArgs, onBounds BoundsFunc) *Track {
	return &Track{
		id:       args.TrackID,
		engine:   args.Engine,
		session:  args.Session,
		onBounds: onBounds,
	}
}

// ID returns the track id.
func (t *Track) ID() string {
	return t.id
}

// Engine returns the query engine of the track's trace.
func (t *Track) Engine() engine.Engine {
	return t.engine
}

// TrackState returns the track's entry in the live state.
func (t *Track) TrackState() *state.TrackState {
	return t.session.State().Track(t.id)
}

// Config returns the track's config.
func (t *Track) Config() state.TrackConfig {
	return t.TrackState().Config
}

// ConfigOf returns the config of t as the variant of its kind. A track
// without a config gets the zero config; any other variant is an invariant
// violation.
func ConfigOf[C state.TrackConfig](t *Track) C {
	var zero C
	cfg := t.Config()
	if cfg == nil {
		return zero
	}
	c, ok := cfg.(C)
	if !ok {
		panic(errors.AssertionFailedf("track %s has a %T config, want %T", t.id, cfg, zero))
	}
	return c
}

// TableName derives a SQL identifier unique to this track. Track ids may
// be UUIDs, and '-' is not valid in an identifier.
func (t *Track) TableName(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(t.id, "-", "_")
}

// Publish hands data to the presentation layer.
func (t *Track) Publish(data frontend.TrackPayload) {
	t.session.Publish(session.KindTrackData, frontend.TrackData{ID: t.id, Data: data})
}

// Reconcile implements controller.Node.
func (t *Track) Reconcile() []controller.Child {
	req := t.TrackState().DataReq
	if req == nil {
		return nil
	}
	t.session.Dispatch(actions.ClearTrackDataReq(t.id))
	t.onBounds(req.Start, req.End, timeline.QuantizeResolution(req.Resolution))
	return nil
}

// Busy reports whether a fetch is in flight.
func (t *Track) Busy() bool {
	return t.busy
}

// Fetch runs load off the control goroutine unless a fetch is already in
// flight, in which case the request is dropped. The apply func returned by
// load runs back on the control goroutine; it is skipped if the track was
// torn down meanwhile. A failed load is logged and clears the busy flag.
func (t *Track) Fetch(load func(ctx context.Context) (apply func(), err error)) {
	if t.busy {
		return
	}
	t.busy = true
	t.session.Go(func(ctx context.Context) func() {
		apply, err := load(ctx)
		return func() {
			t.busy = false
			if t.Destroyed() {
				return
			}
			if err != nil {
				log.Printf("Track %s: %v", t.id, err)
				return
			}
			apply()
		}
	})
}
