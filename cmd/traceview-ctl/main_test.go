// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pmuetschard/gapid/internal/actions"
	"github.com/pmuetschard/gapid/pkg/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeServer struct {
	dispatched []actions.Envelope
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reply := func(data any) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"data": data})
	}
	st := map[string]any{
		"route":   "/viewer",
		"engines": map[string]any{"0": map[string]any{"id": "0", "ready": true, "source": "boot.db"}},
		"tracks": map[string]any{
			"1": map[string]any{"id": "1", "kind": "CpuSliceTrack", "name": "CPU 0", "config": map[string]any{"cpu": 0}},
			"2": map[string]any{"id": "2", "kind": "ChromeSliceTrack", "name": "main [10]", "track_group": "g",
				"config": map[string]any{"max_depth": 0, "upid": 1, "utid": 1}},
		},
		"track_groups":     map[string]any{"g": map[string]any{"id": "g", "name": "app 10", "tracks": []string{"2"}}},
		"scrolling_tracks": []string{"1"},
		"permalink":        map[string]any{"hash": "abc"},
	}

	switch r.URL.Path {
	case "/api/v1/state":
		reply(st)
	case "/api/v1/actions":
		var envs []actions.Envelope
		json.NewDecoder(r.Body).Decode(&envs)
		f.dispatched = append(f.dispatched, envs...)
		reply(st)
	case "/api/v1/queries/" + f.lastQueryID():
		reply(map[string]any{
			"id": f.lastQueryID(), "columns": []string{"name"}, "total_row_count": 2,
			"rows": []map[string]any{{"name": "main"}},
		})
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeServer) lastQueryID() string {
	for i := len(f.dispatched) - 1; i >= 0; i-- {
		if f.dispatched[i].Type == "executeQuery" {
			var args struct {
				QueryID string `json:"query_id"`
			}
			json.Unmarshal(f.dispatched[i].Args, &args)
			return args.QueryID
		}
	}
	return "-"
}

func setup(t *testing.T) (*fakeServer, *bytes.Buffer) {
	t.Helper()
	fake := &fakeServer{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	apiClient = client.New(srv.URL)

	var buf bytes.Buffer
	out = &buf
	jsonOutput = false
	return fake, &buf
}

func TestTracksInDisplayOrder(t *testing.T) {
	_, buf := setup(t)
	require.NoError(t, run(context.Background(), "tracks", nil))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[2], "CPU 0")
	assert.Contains(t, lines[3], "app 10")
	assert.Contains(t, lines[3], "main [10]")
}

func TestQueryDispatchesAndDeletes(t *testing.T) {
	fake, buf := setup(t)
	require.NoError(t, run(context.Background(), "query", []string{"select", "name", "from", "thread"}))

	require.Len(t, fake.dispatched, 2)
	assert.Equal(t, "executeQuery", fake.dispatched[0].Type)
	assert.Contains(t, string(fake.dispatched[0].Args), `"query":"select name from thread"`)
	assert.Contains(t, string(fake.dispatched[0].Args), `"engine_id":"0"`)
	assert.Equal(t, "deleteQuery", fake.dispatched[1].Type)

	assert.Contains(t, buf.String(), "name\nmain\n")
	assert.Contains(t, buf.String(), "2 rows, showing 1")
}

func TestPermalinkAndDispatch(t *testing.T) {
	fake, buf := setup(t)
	ctx := context.Background()

	require.NoError(t, run(ctx, "permalink", nil))
	assert.Equal(t, "abc\n", buf.String())

	require.Error(t, run(ctx, "dispatch", []string{"navigate", "{not json"}))
	require.NoError(t, run(ctx, "dispatch", []string{"navigate", `{"route":"/info"}`}))
	last := fake.dispatched[len(fake.dispatched)-1]
	assert.Equal(t, "navigate", last.Type)
	assert.JSONEq(t, `{"route":"/info"}`, string(last.Args))
	assert.Contains(t, buf.String(), "Engine 0: boot.db (ready: true)")
}

func TestUnknownCommand(t *testing.T) {
	setup(t)
	assert.Error(t, run(context.Background(), "frobnicate", nil))
}

func TestFollowPrintsStreamedEvents(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteJSON(map[string]any{"type": "trace.changed", "trace": "boot.db", "payload": map[string]any{"path": "boot.db-wal"}})
		conn.ReadMessage()
	}))
	t.Cleanup(srv.Close)
	apiClient = client.New(srv.URL)
	buf := &lockedBuffer{}
	out = buf
	jsonOutput = false

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, "follow", nil) }()

	assert.Eventually(t, func() bool {
		return strings.Contains(buf.String(), "path=boot.db-wal")
	}, 2*time.Second, 10*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
	assert.Contains(t, buf.String(), "trace.changed")
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
