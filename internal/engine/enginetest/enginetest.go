// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package enginetest provides engines for tests: an in-memory SQLite trace
// and a scripted fake.
package enginetest

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/pmuetschard/gapid/internal/engine"
	"github.com/stretchr/testify/require"
)

// NewSQLite returns an in-memory trace with the schema created and the
// seed scripts applied.
func NewSQLite(t testing.TB, seed ...string) *engine.SQLiteEngine {
	t.Helper()
	e, err := engine.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	require.NoError(t, e.CreateSchema())
	for _, s := range seed {
		require.NoError(t, e.Exec(s))
	}
	return e
}

// Fake is a scripted Engine. Respond computes the result of each query;
// an unset Respond returns an empty result.
type Fake struct {
	Respond func(query string) *engine.Result

	mu      sync.Mutex
	queries []string
	gate    chan struct{}
	started chan string
}

// NewFake returns a fake answering with respond.
func NewFake(respond func(query string) *engine.Result) *Fake {
	return &Fake{Respond: respond, started: make(chan string, 1024)}
}

// Block makes subsequent queries wait until Release is called.
func (f *Fake) Block() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = make(chan struct{})
}

// Release lets blocked queries complete.
func (f *Fake) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gate != nil {
		close(f.gate)
		f.gate = nil
	}
}

// Started returns a channel receiving each query text as it is issued.
func (f *Fake) Started() <-chan string {
	return f.started
}

// Query implements engine.Engine.
func (f *Fake) Query(ctx context.Context, query string) *engine.Result {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	gate := f.gate
	f.mu.Unlock()

	select {
	case f.started <- query:
	default:
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return engine.ErrorResult("%v", ctx.Err())
		}
	}
	if f.Respond == nil {
		return &engine.Result{}
	}
	return f.Respond(query)
}

// Queries returns every query issued so far.
func (f *Fake) Queries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

// Count returns the number of issued queries containing substr.
func (f *Fake) Count(substr string) int {
	n := 0
	for _, q := range f.Queries() {
		if strings.Contains(q, substr) {
			n++
		}
	}
	return n
}
