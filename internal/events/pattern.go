// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"errors"
	"strings"
)

// PatternMatcher matches event types against glob patterns:
//   - "viewer.*" matches "viewer.state", "viewer.track_data", ...
//   - "*.failed" matches "trace.failed"
//   - "*" matches everything
type PatternMatcher struct{}

// NewPatternMatcher creates a new pattern matcher.
func NewPatternMatcher() *PatternMatcher {
	return &PatternMatcher{}
}

// Match reports whether eventType matches pattern.
func (pm *PatternMatcher) Match(eventType, pattern string) bool {
	if pattern == "" || eventType == "" {
		return false
	}
	return compile(pattern).Match(eventType)
}

// MatchAny reports whether eventType matches at least one of patterns.
func (pm *PatternMatcher) MatchAny(eventType string, patterns []string) bool {
	for _, p := range patterns {
		if pm.Match(eventType, p) {
			return true
		}
	}
	return false
}

// Compile parses a pattern once for repeated matching.
func (pm *PatternMatcher) Compile(pattern string) (CompiledPattern, error) {
	if pattern == "" {
		return nil, errors.New("empty pattern")
	}
	if strings.Count(pattern, "*") > 1 {
		return nil, errors.New("pattern has more than one wildcard: " + pattern)
	}
	return compile(pattern), nil
}

// CompiledPattern is a parsed pattern.
type CompiledPattern interface {
	Match(eventType string) bool
}

type matchKind int

const (
	matchExact matchKind = iota
	matchAll
	matchPrefix
	matchSuffix
)

type compiledPattern struct {
	kind matchKind
	text string
}

func compile(pattern string) *compiledPattern {
	switch {
	case pattern == "*":
		return &compiledPattern{kind: matchAll}
	case strings.HasSuffix(pattern, ".*"):
		return &compiledPattern{kind: matchPrefix, text: strings.TrimSuffix(pattern, "*")}
	case strings.HasPrefix(pattern, "*."):
		return &compiledPattern{kind: matchSuffix, text: strings.TrimPrefix(pattern, "*")}
	}
	return &compiledPattern{kind: matchExact, text: pattern}
}

func (cp *compiledPattern) Match(eventType string) bool {
	switch cp.kind {
	case matchAll:
		return eventType != ""
	case matchPrefix:
		return strings.HasPrefix(eventType, cp.text)
	case matchSuffix:
		return strings.HasSuffix(eventType, cp.text)
	}
	return eventType == cp.text
}
