// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pmuetschard/gapid/internal/events"
)

// EventClient reads the event history and follows the live stream.
//
// The history keeps trace and engine events such as "trace.changed" and
// "permalink.saved". Viewer messages ("viewer.*") are only streamed.
//
// Access this client through [Client.Events]:
//
//	recent, err := c.Events.List(ctx, &client.ListOptions{Limit: 50})
type EventClient struct {
	c *Client
}

// ListOptions filters the history. Zero fields do not filter.
type ListOptions struct {
	Limit int
	Types []string
	Trace string
	Since time.Time
	Until time.Time
}

func (o *ListOptions) values() url.Values {
	params := url.Values{}
	if o == nil {
		return params
	}
	if o.Limit > 0 {
		params.Set("limit", strconv.Itoa(o.Limit))
	}
	for _, t := range o.Types {
		params.Add("type", t)
	}
	if o.Trace != "" {
		params.Set("trace", o.Trace)
	}
	for key, t := range map[string]time.Time{"since": o.Since, "until": o.Until} {
		if !t.IsZero() {
			params.Set(key, t.Format(time.RFC3339))
		}
	}
	return params
}

// List returns events from the history, oldest first.
func (e *EventClient) List(ctx context.Context, opts *ListOptions) ([]events.Event, error) {
	path := "/api/v1/events"
	if q := opts.values().Encode(); q != "" {
		path += "?" + q
	}

	data, err := e.c.get(ctx, path)
	if err != nil {
		return nil, err
	}
	var list []events.Event
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to parse events: %w", err)
	}
	return list, nil
}

// Stream follows the events matching pattern until ctx is done or fn
// returns an error. An empty pattern follows every viewer message; the
// first of those is a full state snapshot. Payloads arrive as raw JSON.
func (e *EventClient) Stream(ctx context.Context, pattern string, fn func(events.Event) error) error {
	u, err := url.Parse(e.c.baseURL + "/api/v1/events/ws")
	if err != nil {
		return err
	}
	u.Scheme = strings.Replace(u.Scheme, "http", "ws", 1)
	if pattern != "" {
		u.RawQuery = url.Values{"pattern": {pattern}}.Encode()
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("connecting to event stream: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		var raw struct {
			events.Event
			Payload json.RawMessage `json:"payload"`
		}
		if err := conn.ReadJSON(&raw); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("reading event stream: %w", err)
		}
		evt := raw.Event
		evt.Payload = raw.Payload
		if err := fn(evt); err != nil {
			return err
		}
	}
}
