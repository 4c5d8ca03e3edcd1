// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ErrBusClosed is returned when operating on a closed bus.
var ErrBusClosed = errors.New("event bus is closed")

// ErrSubscriptionNotFound is returned when unsubscribing with invalid ID.
var ErrSubscriptionNotFound = errors.New("subscription not found")

// MemoryBusConfig configures the memory event bus.
type MemoryBusConfig struct {
	HistoryMaxEvents int
	HistoryMaxAge    time.Duration

	// Transient lists patterns of events that are delivered but not kept in
	// history. Bulky payloads such as track data belong here.
	Transient []string
}

// MemoryEventBus is an in-memory event bus implementation.
type MemoryEventBus struct {
	mu            sync.RWMutex
	subscriptions map[SubscriptionID]*subscription
	history       *EventHistory
	matcher       *PatternMatcher
	transient     []string
	closed        atomic.Bool
	wg            sync.WaitGroup
	defaultTrace  string
	stopPruner    chan struct{}
}

type subscription struct {
	id      SubscriptionID
	pattern CompiledPattern
	handler EventHandler
	async   bool
	ch      chan Event
	stopCh  chan struct{}
}

// NewMemoryEventBus creates a new in-memory event bus.
func NewMemoryEventBus(cfg MemoryBusConfig) *MemoryEventBus {
	bus := &MemoryEventBus{
		subscriptions: make(map[SubscriptionID]*subscription),
		history: NewEventHistory(EventHistoryConfig{
			MaxEvents: cfg.HistoryMaxEvents,
			MaxAge:    cfg.HistoryMaxAge,
		}),
		matcher:    NewPatternMatcher(),
		transient:  cfg.Transient,
		stopPruner: make(chan struct{}),
	}

	pruneInterval := min(max(cfg.HistoryMaxAge/10, time.Minute), time.Hour)

	bus.wg.Add(1)
	go func() {
		defer bus.wg.Done()
		ticker := time.NewTicker(pruneInterval)
		defer ticker.Stop()
		for {
			select {
			case <-bus.stopPruner:
				return
			case <-ticker.C:
				bus.history.Prune()
			}
		}
	}()

	return bus
}

// SetDefaultTrace sets the trace name for events that don't specify one.
func (bus *MemoryEventBus) SetDefaultTrace(trace string) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	bus.defaultTrace = trace
}

// Publish emits an event to all matching subscribers. Synchronous handlers
// run on the caller's goroutine in no particular order.
func (bus *MemoryEventBus) Publish(ctx context.Context, event Event) error {
	if bus.closed.Load() {
		return ErrBusClosed
	}

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Version == "" {
		event.Version = "1.0"
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Trace == "" {
		bus.mu.RLock()
		event.Trace = bus.defaultTrace
		bus.mu.RUnlock()
	}

	if !bus.matcher.MatchAny(event.Type, bus.transient) {
		bus.history.Add(event)
	}

	for _, sub := range bus.matching(event.Type) {
		if !sub.async {
			sub.invoke(ctx, event)
			continue
		}
		select {
		case sub.ch <- event:
		default:
			log.Printf("EventBus: dropped %s, subscriber %s is %d events behind", event.Type, sub.id, cap(sub.ch))
		}
	}
	return nil
}

// matching returns the subscriptions whose pattern matches eventType.
func (bus *MemoryEventBus) matching(eventType string) []*subscription {
	bus.mu.RLock()
	defer bus.mu.RUnlock()
	var subs []*subscription
	for _, sub := range bus.subscriptions {
		if sub.pattern.Match(eventType) {
			subs = append(subs, sub)
		}
	}
	return subs
}

// invoke runs the handler, logging its error or panic.
func (sub *subscription) invoke(ctx context.Context, event Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("EventBus: handler for %s panicked: %v", event.Type, r)
		}
	}()
	if err := sub.handler(ctx, event); err != nil {
		log.Printf("EventBus: handler for %s: %v", event.Type, err)
	}
}

// Subscribe registers a synchronous handler for events matching pattern.
func (bus *MemoryEventBus) Subscribe(pattern string, handler EventHandler) (SubscriptionID, error) {
	return bus.subscribe(pattern, handler, 0)
}

// SubscribeAsync registers an async handler with buffered channel.
func (bus *MemoryEventBus) SubscribeAsync(pattern string, handler EventHandler, bufferSize int) (SubscriptionID, error) {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return bus.subscribe(pattern, handler, bufferSize)
}

func (bus *MemoryEventBus) subscribe(pattern string, handler EventHandler, bufferSize int) (SubscriptionID, error) {
	if bus.closed.Load() {
		return "", ErrBusClosed
	}

	compiled, err := bus.matcher.Compile(pattern)
	if err != nil {
		return "", err
	}

	sub := &subscription{
		id:      SubscriptionID(uuid.NewString()),
		pattern: compiled,
		handler: handler,
		async:   bufferSize > 0,
	}
	if sub.async {
		sub.ch = make(chan Event, bufferSize)
		sub.stopCh = make(chan struct{})
	}

	bus.mu.Lock()
	bus.subscriptions[sub.id] = sub
	bus.mu.Unlock()

	if sub.async {
		bus.wg.Add(1)
		go bus.drain(sub)
	}
	return sub.id, nil
}

func (bus *MemoryEventBus) drain(sub *subscription) {
	defer bus.wg.Done()
	for {
		select {
		case <-sub.stopCh:
			return
		case event := <-sub.ch:
			sub.invoke(context.Background(), event)
		}
	}
}

// Unsubscribe removes a subscription.
func (bus *MemoryEventBus) Unsubscribe(id SubscriptionID) error {
	bus.mu.Lock()
	sub, ok := bus.subscriptions[id]
	if !ok {
		bus.mu.Unlock()
		return ErrSubscriptionNotFound
	}
	delete(bus.subscriptions, id)
	bus.mu.Unlock()

	if sub.async {
		close(sub.stopCh)
	}
	return nil
}

// History retrieves past events matching filter.
func (bus *MemoryEventBus) History(filter EventFilter) ([]Event, error) {
	return bus.history.Query(filter)
}

// Close shuts down the event bus gracefully.
func (bus *MemoryEventBus) Close() error {
	if bus.closed.Swap(true) {
		return nil
	}

	close(bus.stopPruner)

	bus.mu.Lock()
	for _, sub := range bus.subscriptions {
		if sub.async {
			close(sub.stopCh)
		}
	}
	bus.subscriptions = make(map[SubscriptionID]*subscription)
	bus.mu.Unlock()

	bus.wg.Wait()
	bus.history.Close()
	return nil
}
