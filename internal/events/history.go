// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"sort"
	"sync"
	"time"
)

// EventHistoryConfig bounds the history by count and by age.
type EventHistoryConfig struct {
	MaxEvents int
	MaxAge    time.Duration
}

// EventHistory is a fixed-size ring of recent events. Once full, each new
// event overwrites the oldest one; Prune drops those past the age limit.
type EventHistory struct {
	mu      sync.RWMutex
	ring    []Event
	head    int // index of the oldest event
	size    int
	maxAge  time.Duration
	matcher *PatternMatcher
}

// NewEventHistory creates a history. Zero limits default to 1000 events
// and one hour.
func NewEventHistory(cfg EventHistoryConfig) *EventHistory {
	if cfg.MaxEvents <= 0 {
		cfg.MaxEvents = 1000
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = time.Hour
	}
	return &EventHistory{
		ring:    make([]Event, cfg.MaxEvents),
		maxAge:  cfg.MaxAge,
		matcher: NewPatternMatcher(),
	}
}

// Add appends an event, evicting the oldest when full.
func (h *EventHistory) Add(event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ring == nil {
		return
	}

	if h.size < len(h.ring) {
		h.ring[(h.head+h.size)%len(h.ring)] = event
		h.size++
		return
	}
	h.ring[h.head] = event
	h.head = (h.head + 1) % len(h.ring)
}

// Len returns the number of retained events.
func (h *EventHistory) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.size
}

// each calls fn on the retained events in insertion order.
func (h *EventHistory) each(fn func(Event)) {
	for i := 0; i < h.size; i++ {
		fn(h.ring[(h.head+i)%len(h.ring)])
	}
}

// Query returns the events matching filter ordered by timestamp. With a
// limit, the newest ones are kept.
func (h *EventHistory) Query(filter EventFilter) ([]Event, error) {
	h.mu.RLock()
	result := make([]Event, 0)
	h.each(func(event Event) {
		if h.matches(event, filter) {
			result = append(result, event)
		}
	})
	h.mu.RUnlock()

	// Concurrent publishers may interleave.
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[len(result)-filter.Limit:]
	}
	return result, nil
}

func (h *EventHistory) matches(event Event, filter EventFilter) bool {
	switch {
	case filter.Trace != "" && event.Trace != filter.Trace:
		return false
	case !filter.Since.IsZero() && event.Timestamp.Before(filter.Since):
		return false
	case !filter.Until.IsZero() && event.Timestamp.After(filter.Until):
		return false
	}
	return len(filter.Types) == 0 || h.matcher.MatchAny(event.Type, filter.Types)
}

// Prune drops events older than the age limit.
func (h *EventHistory) Prune() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ring == nil {
		return
	}

	cutoff := time.Now().Add(-h.maxAge)
	kept := make([]Event, 0, h.size)
	h.each(func(event Event) {
		if event.Timestamp.After(cutoff) {
			kept = append(kept, event)
		}
	})
	if len(kept) == h.size {
		return
	}
	clear(h.ring)
	copy(h.ring, kept)
	h.head, h.size = 0, len(kept)
}

// Close drops every event; later adds are ignored.
func (h *EventHistory) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ring, h.head, h.size = nil, 0, 0
}
