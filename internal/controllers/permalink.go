// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package controllers

import (
	"context"
	"log"
	"time"

	"github.com/pmuetschard/gapid/internal/actions"
	"github.com/pmuetschard/gapid/internal/controller"
	"github.com/pmuetschard/gapid/internal/session"
	"github.com/pmuetschard/gapid/internal/state"
)

type permalinkMode int

// PermalinkController creates and loads permalinks. A request without a
// hash saves the current state; a request carrying a hash replaces the
// state with the stored one. Each request is handled once.
type PermalinkController struct {
	controller.Base[permalinkMode]

	session *session.Session
	store   PermalinkStore
	handled string
}

// NewPermalinkController returns a permalink controller backed by store.
func NewPermalinkController(s *session.Session, store PermalinkStore) *PermalinkController {
	return &PermalinkController{session: s, store: store}
}

// Reconcile implements controller.Node.
func (c *PermalinkController) Reconcile() []controller.Child {
	req := c.session.State().Permalink
	if req.RequestID == "" {
		// A replaced state restarts the id counter.
		c.handled = ""
		return nil
	}
	if req.RequestID == c.handled {
		return nil
	}
	c.handled = req.RequestID

	if req.Hash == "" {
		snap := c.session.State().Clone()
		c.session.Go(func(ctx context.Context) func() {
			hash, err := c.store.Save(snap)
			if err != nil {
				log.Printf("Permalink: %v", err)
				return nil
			}
			log.Printf("Permalink: saved %s", hash)
			return func() {
				c.session.Dispatch(actions.SetPermalink(req.RequestID, hash))
			}
		})
		return nil
	}

	c.session.Go(func(ctx context.Context) func() {
		loaded, err := c.store.Load(req.Hash)
		if err != nil {
			log.Printf("Permalink: %v", err)
			return func() {
				c.session.Dispatch(actions.UpdateStatus(state.Status{Msg: "Permalink not found", Timestamp: time.Now().Unix()}))
			}
		}
		return func() {
			if c.Destroyed() || c.session.State().Permalink.RequestID != req.RequestID {
				return
			}
			c.session.Dispatch(actions.SetState(loaded))
		}
	})
	return nil
}
