// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pmuetschard/gapid/internal/events"
	"github.com/pmuetschard/gapid/internal/state"
)

const (
	streamBuffer = 256
	pingInterval = 54 * time.Second
	pongWait     = 60 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// EventHandler serves the event history and the live stream of published
// messages.
type EventHandler struct {
	bus      events.EventBus
	snapshot func() *state.State
}

// NewEventHandler creates an event handler. snapshot, if set, provides the
// state sent first to every new stream.
func NewEventHandler(bus events.EventBus, snapshot func() *state.State) *EventHandler {
	return &EventHandler{bus: bus, snapshot: snapshot}
}

// History returns the event history.
func (h *EventHandler) History(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	filter := events.EventFilter{
		Types: query["type"],
		Trace: query.Get("trace"),
	}
	if n, err := strconv.Atoi(query.Get("limit")); err == nil && n > 0 {
		filter.Limit = n
	}
	if t, err := time.Parse(time.RFC3339, query.Get("since")); err == nil {
		filter.Since = t
	}
	if t, err := time.Parse(time.RFC3339, query.Get("until")); err == nil {
		filter.Until = t
	}

	eventList, err := h.bus.History(filter)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, ErrInternalError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, eventList)
}

// WebSocket streams published events. The pattern query parameter selects
// them and defaults to every message of the viewer core.
func (h *EventHandler) WebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	pattern := r.URL.Query().Get("pattern")
	if pattern == "" {
		pattern = events.ViewerPrefix + "*"
	}

	eventCh := make(chan events.Event, streamBuffer)
	done := make(chan struct{})

	subID, err := h.bus.SubscribeAsync(pattern, func(_ context.Context, event events.Event) error {
		select {
		case eventCh <- event:
		case <-done:
		default:
			// A slow client loses messages; the next state event resyncs it.
		}
		return nil
	}, streamBuffer)
	if err != nil {
		conn.WriteJSON(map[string]string{"error": err.Error()})
		return
	}
	defer h.bus.Unsubscribe(subID)

	if h.snapshot != nil && events.NewPatternMatcher().Match(events.EventState, pattern) {
		initial := events.Event{Type: events.EventState, Timestamp: time.Now(), Payload: h.snapshot()}
		if err := conn.WriteJSON(initial); err != nil {
			return
		}
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	// Reads only detect the close.
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case event := <-eventCh:
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-pingTicker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
