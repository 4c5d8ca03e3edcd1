// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pmuetschard/gapid/internal/engine"
	"github.com/pmuetschard/gapid/internal/events"
	"github.com/pmuetschard/gapid/internal/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seed = `
insert into trace_bounds values (0, 2000000000);
insert into process (upid, pid, name) values (1, 10, 'app');
insert into thread (utid, upid, tid, name) values (1, 1, 10, 'main');
insert into sched (ts, dur, cpu, utid) values (0, 1000000000, 0, 1);
insert into slices (ts, dur, utid, depth, cat, name) values (0, 100, 1, 0, 'c', 's');
`

func writeTrace(t *testing.T, path string, scripts ...string) {
	t.Helper()
	db, err := engine.OpenSQLite(path)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.CreateSchema())
	for _, s := range scripts {
		require.NoError(t, db.Exec(s))
	}
}

func startApp(t *testing.T, opts Options) *App {
	t.Helper()
	a, err := New(opts)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, a.Initialize(ctx))
	require.NoError(t, a.Start(ctx))
	t.Cleanup(func() { a.Shutdown(context.Background()) })
	require.NoError(t, a.Session().Settle(ctx))
	return a
}

func TestNew_RequiresTrace(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trace.path")
}

func TestNew_ConfigAndOverrides(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "traceview.hjson")
	require.NoError(t, writeFile(cfgPath, `{
		server: { port: 9000 }
		trace: { path: "a.db" }
		overview: { steps: 5 }
	}`))

	a, err := New(Options{ConfigPath: cfgPath, TracePath: "/elsewhere/b.db", Port: 9100, Debug: true})
	require.NoError(t, err)

	cfg := a.Config()
	assert.Equal(t, "/elsewhere/b.db", cfg.Trace.Path)
	assert.Equal(t, "b.db", cfg.Trace.Name)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Overview.Steps)
	assert.True(t, cfg.Logging.Debug)
	assert.True(t, cfg.Trace.IsWatching())
}

func TestApp_WatcherReopensChangedTrace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "boot.db")
	writeTrace(t, path, seed)
	a := startApp(t, Options{TracePath: path, Port: 18083})

	writeTrace(t, path, "insert into thread (utid, upid, tid, name) values (2, 1, 11, 'worker');")

	assert.Eventually(t, func() bool {
		hist, err := a.EventBus().History(events.EventFilter{Types: []string{events.EventTraceReopened}})
		return err == nil && len(hist) > 0
	}, 5*time.Second, 20*time.Millisecond)
}

func TestApp_OpensTraceAndServes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "boot.db")
	writeTrace(t, path, seed)
	a := startApp(t, Options{TracePath: path, Port: 18080, NoWatch: true})

	st := a.Session().Snapshot()
	require.Len(t, st.Engines, 1)
	for _, e := range st.Engines {
		assert.True(t, e.Ready)
		assert.Equal(t, "boot.db", e.Source)
	}
	assert.NotEmpty(t, a.Store().Threads())

	rec := httptest.NewRecorder()
	a.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/state", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Data *state.State `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "/viewer", resp.Data.Route)

	rec = httptest.NewRecorder()
	a.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "traceview_queries_issued_total")

	rec = httptest.NewRecorder()
	a.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/engine", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"scheduled"`)
}

func TestApp_PermalinkIsAnnounced(t *testing.T) {
	path := filepath.Join(t.TempDir(), "boot.db")
	writeTrace(t, path, seed)
	a := startApp(t, Options{TracePath: path, Port: 18081, NoWatch: true})

	rec := httptest.NewRecorder()
	a.Router().ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/actions?settle=true",
		strings.NewReader(`{"type": "createPermalink"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, a.Session().Settle(context.Background()))

	hash := a.Session().Snapshot().Permalink.Hash
	require.NotEmpty(t, hash)
	hist, err := a.EventBus().History(events.EventFilter{Types: []string{events.EventPermalinkSaved}})
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, map[string]string{"hash": hash}, hist[0].Payload)
}

func TestApp_ReopenReplacesTrace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "boot.db")
	writeTrace(t, path, seed)
	a := startApp(t, Options{TracePath: path, Port: 18082, NoWatch: true})
	before := a.Session().Snapshot()

	writeTrace(t, path, "insert into thread (utid, upid, tid, name) values (2, 1, 11, 'worker');")
	a.reopen(context.Background())
	require.NoError(t, a.Session().Settle(context.Background()))

	after := a.Session().Snapshot()
	require.Len(t, after.Engines, 1)
	for id, e := range after.Engines {
		assert.NotContains(t, before.Engines, id)
		assert.True(t, e.Ready)
	}
	assert.Len(t, a.Store().Threads(), 2)

	hist, err := a.EventBus().History(events.EventFilter{Types: []string{events.EventTraceReopened}})
	require.NoError(t, err)
	assert.Len(t, hist, 1)
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}
