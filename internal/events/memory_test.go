// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryEventBus_Publish_AssignsFields(t *testing.T) {
	bus := NewMemoryEventBus(MemoryBusConfig{})
	defer bus.Close()
	bus.SetDefaultTrace("trace.db")

	var received Event
	_, err := bus.Subscribe("*", func(ctx context.Context, e Event) error {
		received = e
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), Event{Type: EventState}))

	assert.NotEmpty(t, received.ID)
	assert.Equal(t, "1.0", received.Version)
	assert.False(t, received.Timestamp.IsZero())
	assert.Equal(t, "trace.db", received.Trace)
}

func TestMemoryEventBus_Publish_KeepsExplicitTrace(t *testing.T) {
	bus := NewMemoryEventBus(MemoryBusConfig{})
	defer bus.Close()
	bus.SetDefaultTrace("default.db")

	require.NoError(t, bus.Publish(context.Background(), Event{Type: EventState, Trace: "other.db"}))

	events, err := bus.History(EventFilter{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "other.db", events[0].Trace)
}

func TestMemoryEventBus_SubscribePattern(t *testing.T) {
	bus := NewMemoryEventBus(MemoryBusConfig{})
	defer bus.Close()

	var viewer, all atomic.Int32
	_, err := bus.Subscribe("viewer.*", func(ctx context.Context, e Event) error {
		viewer.Add(1)
		return nil
	})
	require.NoError(t, err)
	_, err = bus.Subscribe("*", func(ctx context.Context, e Event) error {
		all.Add(1)
		return nil
	})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, Event{Type: EventTrackData, Payload: "data"}))
	require.NoError(t, bus.Publish(ctx, Event{Type: EventTraceChanged}))

	assert.Equal(t, int32(1), viewer.Load())
	assert.Equal(t, int32(2), all.Load())
}

func TestMemoryEventBus_Unsubscribe(t *testing.T) {
	bus := NewMemoryEventBus(MemoryBusConfig{})
	defer bus.Close()

	var count atomic.Int32
	id, err := bus.Subscribe(EventState, func(ctx context.Context, e Event) error {
		count.Add(1)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), Event{Type: EventState}))
	require.NoError(t, bus.Unsubscribe(id))
	require.NoError(t, bus.Publish(context.Background(), Event{Type: EventState}))

	assert.Equal(t, int32(1), count.Load())
	assert.ErrorIs(t, bus.Unsubscribe(id), ErrSubscriptionNotFound)
}

func TestMemoryEventBus_SubscribeAsync(t *testing.T) {
	bus := NewMemoryEventBus(MemoryBusConfig{})
	defer bus.Close()

	received := make(chan Event, 1)
	_, err := bus.SubscribeAsync(EventQueryResult, func(ctx context.Context, e Event) error {
		received <- e
		return nil
	}, 10)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), Event{Type: EventQueryResult, Payload: 42}))

	select {
	case e := <-received:
		assert.Equal(t, 42, e.Payload)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestMemoryEventBus_SubscribeAsync_BufferFull(t *testing.T) {
	bus := NewMemoryEventBus(MemoryBusConfig{})
	defer bus.Close()

	release := make(chan struct{})
	var handled atomic.Int32
	_, err := bus.SubscribeAsync(EventTrackData, func(ctx context.Context, e Event) error {
		<-release
		handled.Add(1)
		return nil
	}, 1)
	require.NoError(t, err)

	// One event blocks the handler, one fills the buffer, the rest are dropped.
	for i := 0; i < 5; i++ {
		require.NoError(t, bus.Publish(context.Background(), Event{Type: EventTrackData}))
		time.Sleep(5 * time.Millisecond)
	}
	close(release)

	assert.Eventually(t, func() bool { return handled.Load() == 2 }, time.Second, 5*time.Millisecond)
}

func TestMemoryEventBus_HandlerFailuresAreContained(t *testing.T) {
	bus := NewMemoryEventBus(MemoryBusConfig{})
	defer bus.Close()

	var after atomic.Int32
	_, err := bus.Subscribe(EventState, func(ctx context.Context, e Event) error {
		return errors.New("boom")
	})
	require.NoError(t, err)
	_, err = bus.Subscribe(EventState, func(ctx context.Context, e Event) error {
		panic("handler panic")
	})
	require.NoError(t, err)
	_, err = bus.Subscribe(EventState, func(ctx context.Context, e Event) error {
		after.Add(1)
		return nil
	})
	require.NoError(t, err)

	assert.NoError(t, bus.Publish(context.Background(), Event{Type: EventState}))
	assert.Equal(t, int32(1), after.Load())
}

func TestMemoryEventBus_TransientEventsSkipHistory(t *testing.T) {
	bus := NewMemoryEventBus(MemoryBusConfig{Transient: []string{EventTrackData}})
	defer bus.Close()

	var delivered atomic.Int32
	_, err := bus.Subscribe("*", func(ctx context.Context, e Event) error {
		delivered.Add(1)
		return nil
	})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, Event{Type: EventTrackData}))
	require.NoError(t, bus.Publish(ctx, Event{Type: EventState}))

	events, err := bus.History(EventFilter{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventState, events[0].Type)
	assert.Equal(t, int32(2), delivered.Load())
}

func TestMemoryEventBus_Close(t *testing.T) {
	bus := NewMemoryEventBus(MemoryBusConfig{})

	_, err := bus.SubscribeAsync("*", func(ctx context.Context, e Event) error { return nil }, 1)
	require.NoError(t, err)

	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())

	assert.ErrorIs(t, bus.Publish(context.Background(), Event{Type: EventState}), ErrBusClosed)
	_, err = bus.Subscribe("*", func(ctx context.Context, e Event) error { return nil })
	assert.ErrorIs(t, err, ErrBusClosed)
}

func TestMemoryEventBus_Concurrency(t *testing.T) {
	bus := NewMemoryEventBus(MemoryBusConfig{HistoryMaxEvents: 10000})
	defer bus.Close()

	var count atomic.Int32
	_, err := bus.Subscribe("viewer.*", func(ctx context.Context, e Event) error {
		count.Add(1)
		return nil
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				assert.NoError(t, bus.Publish(context.Background(), Event{Type: EventOverview}))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1000), count.Load())
}
