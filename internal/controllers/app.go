// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package controllers holds the controllers of the viewer: the root app
// controller, one trace controller per open trace, the track controller
// base, ad-hoc query and permalink controllers.
package controllers

import (
	"maps"
	"slices"

	"github.com/pmuetschard/gapid/internal/controller"
	"github.com/pmuetschard/gapid/internal/session"
	"github.com/pmuetschard/gapid/internal/state"
)

// DefaultOverviewSteps is the number of buckets of the timeline overview.
const DefaultOverviewSteps = 100

// PermalinkStore persists state snapshots.
type PermalinkStore interface {
	Save(st *state.State) (string, error)
	Load(hash string) (*state.State, error)
}

// Env is shared by all controllers of a session.
type Env struct {
	Session       *session.Session
	Tracks        *TrackRegistry
	Permalinks    PermalinkStore
	OverviewSteps int
	QueryRowLimit int
}

const permalinkChildID = "permalink"

type appMode int

// AppController is the root of the controller tree.
type AppController struct {
	controller.Base[appMode]
	env *Env
}

// NewAppController returns the root controller.
func NewAppController(env *Env) *AppController {
	if env.OverviewSteps <= 0 {
		env.OverviewSteps = DefaultOverviewSteps
	}
	if env.QueryRowLimit <= 0 {
		env.QueryRowLimit = DefaultQueryRowLimit
	}
	return &AppController{env: env}
}

// Reconcile implements controller.Node.
func (c *AppController) Reconcile() []controller.Child {
	st := c.env.Session.State()
	var children []controller.Child
	for _, id := range slices.Sorted(maps.Keys(st.Engines)) {
		children = append(children, controller.Declare(id, func() controller.Node {
			return NewTraceController(c.env, id)
		}))
	}
	if c.env.Permalinks != nil {
		children = append(children, controller.Declare(permalinkChildID, func() controller.Node {
			return NewPermalinkController(c.env.Session, c.env.Permalinks)
		}))
	}
	return children
}
