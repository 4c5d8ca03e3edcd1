// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatternMatcher_Match(t *testing.T) {
	matcher := NewPatternMatcher()

	tests := []struct {
		name      string
		pattern   string
		eventType string
		matches   bool
	}{
		{name: "exact match", pattern: EventTrackData, eventType: EventTrackData, matches: true},
		{name: "exact no match", pattern: EventTrackData, eventType: EventThreads, matches: false},
		{name: "wildcard end", pattern: "viewer.*", eventType: EventOverview, matches: true},
		{name: "wildcard end other prefix", pattern: "viewer.*", eventType: EventTraceChanged, matches: false},
		{name: "wildcard end needs separator", pattern: "viewer.*", eventType: "viewerx.state", matches: false},
		{name: "wildcard start", pattern: "*.failed", eventType: EventTraceFailed, matches: true},
		{name: "wildcard start no match", pattern: "*.failed", eventType: EventTraceChanged, matches: false},
		{name: "match all", pattern: "*", eventType: EventState, matches: true},
		{name: "empty pattern", pattern: "", eventType: EventState, matches: false},
		{name: "empty event type", pattern: "*", eventType: "", matches: false},
		{name: "prefix is not a match", pattern: "viewer", eventType: EventState, matches: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.matches, matcher.Match(tt.eventType, tt.pattern))
		})
	}
}

func TestPatternMatcher_MatchAny(t *testing.T) {
	matcher := NewPatternMatcher()

	assert.True(t, matcher.MatchAny(EventTrackData, []string{EventState, "viewer.*"}))
	assert.False(t, matcher.MatchAny(EventEngineStatus, []string{"viewer.*", "trace.*"}))
	assert.False(t, matcher.MatchAny(EventEngineStatus, nil))
}

func TestPatternMatcher_Compile(t *testing.T) {
	matcher := NewPatternMatcher()

	compiled, err := matcher.Compile("trace.*")
	require.NoError(t, err)
	assert.True(t, compiled.Match(EventTraceReopened))
	assert.False(t, compiled.Match(EventState))

	_, err = matcher.Compile("")
	assert.Error(t, err)

	_, err = matcher.Compile("*.*")
	assert.Error(t, err)

	all, err := matcher.Compile("*")
	require.NoError(t, err)
	assert.True(t, all.Match(EventEngineStatus))
	assert.False(t, all.Match(""))
}

func TestPatternMatcher_Concurrency(t *testing.T) {
	matcher := NewPatternMatcher()
	compiled, err := matcher.Compile("viewer.*")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				assert.True(t, compiled.Match(EventQueryResult))
			}
		}()
	}
	wg.Wait()
}
