// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package events carries messages from the viewer core to the presentation
// layer and to other in-process listeners.
package events

import (
	"context"
	"time"
)

// Event represents an immutable event record.
type Event struct {
	ID        string    `json:"id"`
	Version   string    `json:"version"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Trace     string    `json:"trace"`
	Payload   any       `json:"payload"`
}

// EventHandler processes received events.
type EventHandler func(ctx context.Context, event Event) error

// SubscriptionID uniquely identifies a subscription.
type SubscriptionID string

// EventFilter for querying event history.
type EventFilter struct {
	Types []string  // Event types to match (supports wildcards)
	Trace string    // Filter by trace
	Since time.Time // Events after this time
	Until time.Time // Events before this time
	Limit int       // Maximum events to return
}

// EventBus is the core event pub/sub system.
type EventBus interface {
	// Publish emits an event to all matching subscribers.
	Publish(ctx context.Context, event Event) error

	// Subscribe registers a synchronous handler for events matching pattern.
	Subscribe(pattern string, handler EventHandler) (SubscriptionID, error)

	// SubscribeAsync registers an async handler with buffered channel.
	SubscribeAsync(pattern string, handler EventHandler, bufferSize int) (SubscriptionID, error)

	// Unsubscribe removes a subscription.
	Unsubscribe(id SubscriptionID) error

	// History retrieves past events matching filter.
	History(filter EventFilter) ([]Event, error)

	// SetDefaultTrace sets the trace name stamped on events that don't carry one.
	SetDefaultTrace(trace string)

	// Close shuts down the event bus gracefully.
	Close() error
}

// Viewer events. Every message the core publishes to the presentation layer
// is one of these.
const (
	EventState       = "viewer.state"
	EventOverview    = "viewer.overview"
	EventTrackData   = "viewer.track_data"
	EventThreads     = "viewer.threads"
	EventQueryResult = "viewer.query_result"
	EventLegacyTrace = "viewer.legacy_trace"
)

// Infrastructure events
const (
	EventEngineStatus   = "engine.status"
	EventTraceChanged   = "trace.changed"
	EventTraceReopened  = "trace.reopened"
	EventTraceFailed    = "trace.failed"
	EventPermalinkSaved = "permalink.saved"
)

// ViewerPrefix is prepended to publish kinds to form event types.
const ViewerPrefix = "viewer."
