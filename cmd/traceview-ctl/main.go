// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// traceview-ctl is a command-line tool for driving a running traceview instance.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pmuetschard/gapid/internal/events"
	"github.com/pmuetschard/gapid/internal/state"
	"github.com/pmuetschard/gapid/pkg/client"
)

var (
	version    = "0.1"
	apiURL     = "http://localhost:10000"
	jsonOutput = false

	// API client instance
	apiClient *client.Client

	out io.Writer = os.Stdout
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if env := os.Getenv("TRACEVIEW_API"); env != "" {
		apiURL = strings.TrimSuffix(env, "/")
	}

	// Parse global flags and filter them out
	var filteredArgs []string
	for _, arg := range os.Args[1:] {
		if arg == "-json" {
			jsonOutput = true
		} else {
			filteredArgs = append(filteredArgs, arg)
		}
	}

	// Queries and discovery wait for the engine.
	apiClient = client.New(apiURL, client.WithTimeout(5*time.Minute))

	if len(filteredArgs) < 1 {
		printUsage()
		os.Exit(1)
	}

	if err := run(ctx, filteredArgs[0], filteredArgs[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "state":
		return cmdState(ctx)
	case "tracks":
		return cmdTracks(ctx)
	case "threads":
		return cmdThreads(ctx)
	case "open":
		return cmdOpen(ctx, args)
	case "dispatch":
		return cmdDispatch(ctx, args)
	case "query":
		return cmdQuery(ctx, args)
	case "permalink":
		return cmdPermalink(ctx, args)
	case "engine":
		return cmdEngine(ctx)
	case "events":
		return cmdEvents(ctx, args)
	case "follow":
		return cmdFollow(ctx, args)
	case "version", "-v", "--version":
		server, err := apiClient.ServerVersion(ctx)
		if err != nil {
			server = "unreachable"
		}
		fmt.Fprintf(out, "traceview-ctl %s (server %s)\n", version, server)
		return nil
	case "help", "-h", "--help":
		printUsage()
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func printUsage() {
	fmt.Fprintln(out, `traceview-ctl - Drive a running traceview instance

Usage:
  traceview-ctl [-json] <command> [arguments]

Global Flags:
  -json          Output in JSON format

Environment:
  TRACEVIEW_API  Base URL of the traceview API (default: http://localhost:10000)

Commands:
  state                    Show the viewer state summary
  tracks                   List tracks in display order
  threads                  List the threads of the open trace
  open <name>              Open the trace and wait for track discovery
  dispatch <type> [args]   Dispatch one action; args is a JSON object
  query <sql>              Run an ad-hoc query on the open trace
  permalink                Create a permalink of the current state
  permalink <hash>         Restore the state saved under hash
  engine                   Show engine query progress
  events [-n N]            Show recent trace and engine events (default: 50)
  follow [pattern]         Print live events until interrupted (default: trace.*)

  version                  Show version
  help                     Show this help`)
}

// printJSON outputs any value as formatted JSON
func printJSON(v interface{}) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Fprintln(out, string(data))
}

func cmdState(ctx context.Context) error {
	st, err := apiClient.Viewer.State(ctx)
	if err != nil {
		return err
	}
	if jsonOutput {
		printJSON(st)
		return nil
	}
	printSummary(st)
	return nil
}

func printSummary(st *state.State) {
	fmt.Fprintf(out, "Route:     %s\n", st.Route)
	for _, id := range sortedKeys(st.Engines) {
		e := st.Engines[id]
		fmt.Fprintf(out, "Engine %s: %s (ready: %t)\n", id, e.Source, e.Ready)
	}
	fmt.Fprintf(out, "Time:      %.3fs - %.3fs\n", st.TraceTime.StartSec, st.TraceTime.EndSec)
	fmt.Fprintf(out, "Tracks:    %d in %d groups\n", len(st.Tracks), len(st.TrackGroups))
	fmt.Fprintf(out, "Queries:   %d\n", len(st.Queries))
	if st.Permalink.Hash != "" {
		fmt.Fprintf(out, "Permalink: %s\n", st.Permalink.Hash)
	}
	if st.Status.Msg != "" {
		fmt.Fprintf(out, "Status:    %s\n", st.Status.Msg)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func cmdTracks(ctx context.Context) error {
	st, err := apiClient.Viewer.State(ctx)
	if err != nil {
		return err
	}

	// Pinned first, then scrolling, then tracks inside groups.
	order := append(append([]string{}, st.PinnedTracks...), st.ScrollingTracks...)
	for _, gid := range sortedKeys(st.TrackGroups) {
		order = append(order, st.TrackGroups[gid].Tracks...)
	}

	if jsonOutput {
		tracks := make([]*state.TrackState, 0, len(order))
		for _, id := range order {
			if t, ok := st.Tracks[id]; ok {
				tracks = append(tracks, t)
			}
		}
		printJSON(tracks)
		return nil
	}

	fmt.Fprintf(out, "%-6s %-20s %-24s %s\n", "ID", "KIND", "GROUP", "NAME")
	fmt.Fprintln(out, strings.Repeat("-", 80))
	for _, id := range order {
		t, ok := st.Tracks[id]
		if !ok {
			continue
		}
		group := t.TrackGroup
		if g, ok := st.TrackGroups[group]; ok {
			group = g.Name
		}
		fmt.Fprintf(out, "%-6s %-20s %-24s %s\n", t.ID, t.Kind, group, t.Name)
	}
	return nil
}

func cmdThreads(ctx context.Context) error {
	threads, err := apiClient.Viewer.Threads(ctx)
	if err != nil {
		return err
	}
	if jsonOutput {
		printJSON(threads)
		return nil
	}

	fmt.Fprintf(out, "%-8s %-8s %-8s %-24s %s\n", "UTID", "TID", "PID", "THREAD", "PROCESS")
	fmt.Fprintln(out, strings.Repeat("-", 80))
	for _, t := range threads {
		fmt.Fprintf(out, "%-8d %-8d %-8d %-24s %s\n", t.Utid, t.Tid, t.Pid, t.ThreadName, t.ProcName)
	}
	return nil
}

func cmdOpen(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: traceview-ctl open <name>")
	}
	st, err := apiClient.Viewer.Dispatch(ctx, true, client.Action("openTrace", map[string]string{"name": args[0]}))
	if err != nil {
		return err
	}
	if jsonOutput {
		printJSON(st)
		return nil
	}
	printSummary(st)
	return nil
}

func cmdDispatch(ctx context.Context, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("usage: traceview-ctl dispatch <type> [json args]")
	}
	env := client.Action(args[0], nil)
	if len(args) == 2 {
		if !json.Valid([]byte(args[1])) {
			return fmt.Errorf("action args are not valid JSON")
		}
		env.Args = json.RawMessage(args[1])
	}
	st, err := apiClient.Viewer.Dispatch(ctx, true, env)
	if err != nil {
		return err
	}
	if jsonOutput {
		printJSON(st)
		return nil
	}
	printSummary(st)
	return nil
}

func cmdQuery(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: traceview-ctl query <sql>")
	}
	st, err := apiClient.Viewer.State(ctx)
	if err != nil {
		return err
	}
	engines := sortedKeys(st.Engines)
	if len(engines) == 0 {
		return fmt.Errorf("no trace is open")
	}

	id := "ctl-" + uuid.NewString()
	_, err = apiClient.Viewer.Dispatch(ctx, true, client.Action("executeQuery", map[string]string{
		"query_id":  id,
		"engine_id": engines[0],
		"query":     strings.Join(args, " "),
	}))
	if err != nil {
		return err
	}
	// Results stay published until deleted; drop ours when done.
	defer apiClient.Viewer.Dispatch(ctx, false, client.Action("deleteQuery", map[string]string{"query_id": id}))

	res, err := apiClient.Viewer.QueryResult(ctx, id)
	if err != nil {
		return err
	}
	if jsonOutput {
		printJSON(res)
		return nil
	}
	if res.Error != "" {
		return fmt.Errorf("query error: %s", res.Error)
	}

	fmt.Fprintln(out, strings.Join(res.Columns, "\t"))
	for _, row := range res.Rows {
		cells := make([]string, len(res.Columns))
		for i, col := range res.Columns {
			cells[i] = fmt.Sprint(row[col])
		}
		fmt.Fprintln(out, strings.Join(cells, "\t"))
	}
	shown := ""
	if len(res.Rows) < res.TotalRowCount {
		shown = fmt.Sprintf(", showing %d", len(res.Rows))
	}
	fmt.Fprintf(out, "\n%d rows%s (%.1fms)\n", res.TotalRowCount, shown, res.DurationMs)
	return nil
}

func cmdPermalink(ctx context.Context, args []string) error {
	if len(args) == 1 {
		st, err := apiClient.Viewer.Dispatch(ctx, true, client.Action("loadPermalink", map[string]string{"hash": args[0]}))
		if err != nil {
			return err
		}
		printSummary(st)
		return nil
	}

	st, err := apiClient.Viewer.Dispatch(ctx, true, client.Action("createPermalink", nil))
	if err != nil {
		return err
	}
	if st.Permalink.Hash == "" {
		return fmt.Errorf("permalink was not created")
	}
	fmt.Fprintln(out, st.Permalink.Hash)
	return nil
}

func cmdEngine(ctx context.Context) error {
	status, err := apiClient.Viewer.Engine(ctx)
	if err != nil {
		return err
	}
	if jsonOutput {
		printJSON(status)
		return nil
	}
	msg := status.Status
	if msg == "" {
		msg = "idle"
	}
	fmt.Fprintf(out, "%d/%d queries done, %s\n", status.Done, status.Scheduled, msg)
	return nil
}

func cmdEvents(ctx context.Context, args []string) error {
	limit := 50

	// Parse -n flag
	for i := 0; i < len(args); i++ {
		if args[i] == "-n" && i+1 < len(args) {
			n, err := strconv.Atoi(args[i+1])
			if err == nil && n > 0 {
				limit = n
			}
			i++
		}
	}

	list, err := apiClient.Events.List(ctx, &client.ListOptions{Limit: limit})
	if err != nil {
		return err
	}

	if jsonOutput {
		printJSON(list)
		return nil
	}

	fmt.Fprintf(out, "%-20s %-22s %-16s %s\n", "TIME", "TYPE", "TRACE", "DETAILS")
	fmt.Fprintln(out, strings.Repeat("-", 90))
	for _, evt := range list {
		printEvent(evt)
	}

	return nil
}

func printEvent(evt events.Event) {
	payload, ok := evt.Payload.(map[string]interface{})
	if raw, isRaw := evt.Payload.(json.RawMessage); isRaw {
		ok = json.Unmarshal(raw, &payload) == nil
	}
	details := ""
	if ok {
		parts := []string{}
		for _, k := range sortedKeys(payload) {
			parts = append(parts, fmt.Sprintf("%s=%v", k, payload[k]))
		}
		details = strings.Join(parts, " ")
	}
	fmt.Fprintf(out, "%-20s %-22s %-16s %s\n",
		evt.Timestamp.Format("2006-01-02 15:04:05"),
		evt.Type,
		evt.Trace,
		details,
	)
}

func cmdFollow(ctx context.Context, args []string) error {
	pattern := "trace.*"
	if len(args) > 0 {
		pattern = args[0]
	}
	err := apiClient.Events.Stream(ctx, pattern, func(evt events.Event) error {
		if jsonOutput {
			printJSON(evt)
		} else {
			printEvent(evt)
		}
		return nil
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
