// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package controllers

import (
	"context"
	"log"
	"time"

	"github.com/pmuetschard/gapid/internal/actions"
	"github.com/pmuetschard/gapid/internal/controller"
	"github.com/pmuetschard/gapid/internal/engine"
	"github.com/pmuetschard/gapid/internal/frontend"
	"github.com/pmuetschard/gapid/internal/session"
)

// DefaultQueryRowLimit caps the rows returned for an ad-hoc query.
const DefaultQueryRowLimit = 1000

type queryMode int

const (
	queryInit queryMode = iota
	querying
)

// QueryController runs one ad-hoc query, publishes its result and deletes
// the query from the state, which tears the controller down.
type QueryController struct {
	controller.Base[queryMode]

	id       string
	engine   engine.Engine
	session  *session.Session
	rowLimit int
}

// NewQueryController returns the controller of query id.
func NewQueryController(s *session.Session, e engine.Engine, id string, rowLimit int) *QueryController {
	if rowLimit <= 0 {
		rowLimit = DefaultQueryRowLimit
	}
	return &QueryController{id: id, engine: e, session: s, rowLimit: rowLimit}
}

// Reconcile implements controller.Node.
func (c *QueryController) Reconcile() []controller.Child {
	switch c.State() {
	case queryInit:
		cfg, ok := c.session.State().Queries[c.id]
		if !ok {
			return nil
		}
		query := cfg.Query
		c.session.Go(func(ctx context.Context) func() {
			res := runQuery(ctx, c.engine, c.id, query, c.rowLimit)
			return func() {
				if c.Destroyed() {
					// Deleted or replaced by a new trace while running.
					return
				}
				log.Printf("Query %s took %.1f ms", query, res.DurationMs)
				c.session.Publish(session.KindQueryResult, res)
				c.session.Dispatch(actions.DeleteQuery(c.id))
			}
		})
		c.SetState(querying)
	case querying:
		// Torn down once deleteQuery is applied.
	}
	return nil
}

func runQuery(ctx context.Context, e engine.Engine, id, query string, limit int) *frontend.QueryResult {
	start := time.Now()
	raw := e.Query(ctx, query)
	elapsed := time.Since(start)
	return &frontend.QueryResult{
		ID:            id,
		Query:         query,
		Error:         raw.Error,
		TotalRowCount: raw.NumRecords,
		DurationMs:    float64(elapsed.Microseconds()) / 1000,
		Columns:       raw.ColumnNames(),
		Rows:          raw.Rows(limit),
	}
}
