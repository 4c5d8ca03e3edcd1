// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package config handles HJSON configuration loading and validation.
package config

import (
	"time"
)

// Config is the root configuration structure for traceview.
type Config struct {
	Server    ServerConfig    `json:"server"`
	Trace     TraceConfig     `json:"trace"`
	Engine    EngineConfig    `json:"engine"`
	Overview  OverviewConfig  `json:"overview"`
	Limits    LimitsConfig    `json:"limits"`
	Permalink PermalinkConfig `json:"permalink"`
	Events    EventsConfig    `json:"events"`
	Logging   LoggingConfig   `json:"logging"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int    `json:"port"`
	Host string `json:"host"`
}

// TraceConfig names the trace database to open.
type TraceConfig struct {
	Path     string `json:"path"`
	Name     string `json:"name"`  // shown in the UI, defaults to the file name
	Watch    *bool  `json:"watch"` // reopen when the file changes
	Debounce string `json:"debounce"`
}

// IsWatching reports whether the trace file is watched. Watching is on
// unless disabled.
func (t *TraceConfig) IsWatching() bool {
	return t.Watch == nil || *t.Watch
}

// EngineConfig configures the query engine.
type EngineConfig struct {
	// StatusQuiet is how long the engine must be idle before its status
	// line is cleared.
	StatusQuiet string `json:"status_quiet"`
}

// OverviewConfig configures the overview timeline.
type OverviewConfig struct {
	Steps int `json:"steps"`
}

// LimitsConfig caps the rows fetched per request.
type LimitsConfig struct {
	SliceRows    int `json:"slice_rows"`
	CPUSliceRows int `json:"cpu_slice_rows"`
	QueryRows    int `json:"query_rows"`
}

// PermalinkConfig configures the permalink store. An empty Dir keeps
// permalinks in memory.
type PermalinkConfig struct {
	Dir string `json:"dir"`
}

// EventsConfig configures the event system.
type EventsConfig struct {
	History HistoryConfig `json:"history"`
}

// HistoryConfig configures event history retention.
type HistoryConfig struct {
	MaxEvents int    `json:"max_events"`
	MaxAge    string `json:"max_age"`
}

// LoggingConfig configures application logging.
type LoggingConfig struct {
	Debug bool `json:"debug"` // log a summary of every dispatch loop
}

// ParseDuration parses a duration string, returning a default if empty.
func ParseDuration(s string, defaultVal time.Duration) time.Duration {
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}
