// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hjson/hjson-go/v4"
)

// Defaults for settings missing from the file.
const (
	DefaultPort          = 10000
	DefaultHost          = "127.0.0.1"
	DefaultDebounce      = "250ms"
	DefaultStatusQuiet   = "250ms"
	DefaultOverviewSteps = 100
	DefaultSliceRows     = 10000
	DefaultCPUSliceRows  = 50000
	DefaultQueryRows     = 1000
	DefaultHistoryEvents = 1000
	DefaultHistoryAge    = "10m"
)

// Loader handles configuration file loading.
type Loader struct{}

// NewLoader creates a new config loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load reads and parses the configuration from the given path.
func (l *Loader) Load(ctx context.Context, path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Parse HJSON to intermediate map
	var raw map[string]interface{}
	if err := hjson.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse hjson: %w", err)
	}

	// Convert to JSON and unmarshal to struct (for type safety)
	jsonData, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("convert to json: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(jsonData, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// A relative trace path is relative to the config file.
	if cfg.Trace.Path != "" && !filepath.IsAbs(cfg.Trace.Path) {
		cfg.Trace.Path = filepath.Join(filepath.Dir(path), cfg.Trace.Path)
	}
	if cfg.Permalink.Dir != "" && !filepath.IsAbs(cfg.Permalink.Dir) {
		cfg.Permalink.Dir = filepath.Join(filepath.Dir(path), cfg.Permalink.Dir)
	}

	return &cfg, nil
}

// LoadWithDefaults loads config with default values applied.
func (l *Loader) LoadWithDefaults(ctx context.Context, path string) (*Config, error) {
	cfg, err := l.Load(ctx, path)
	if err != nil {
		return nil, err
	}

	ApplyDefaults(cfg)
	return cfg, nil
}

// FindConfig searches for a config file in the current directory.
// It looks for traceview.hjson first, then traceview.json.
func (l *Loader) FindConfig() (string, error) {
	candidates := []string{
		"traceview.hjson",
		"traceview.json",
	}

	for _, name := range candidates {
		path := filepath.Join(".", name)
		if _, err := os.Stat(path); err == nil {
			abs, err := filepath.Abs(path)
			if err != nil {
				return path, nil
			}
			return abs, nil
		}
	}

	return "", fmt.Errorf("config file not found (looked for traceview.hjson, traceview.json)")
}

// ApplyDefaults sets default values for missing config fields. It is used
// as is when running without a config file.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultPort
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = DefaultHost
	}

	if cfg.Trace.Name == "" && cfg.Trace.Path != "" {
		cfg.Trace.Name = filepath.Base(cfg.Trace.Path)
	}
	if cfg.Trace.Debounce == "" {
		cfg.Trace.Debounce = DefaultDebounce
	}

	if cfg.Engine.StatusQuiet == "" {
		cfg.Engine.StatusQuiet = DefaultStatusQuiet
	}
	if cfg.Overview.Steps == 0 {
		cfg.Overview.Steps = DefaultOverviewSteps
	}

	if cfg.Limits.SliceRows == 0 {
		cfg.Limits.SliceRows = DefaultSliceRows
	}
	if cfg.Limits.CPUSliceRows == 0 {
		cfg.Limits.CPUSliceRows = DefaultCPUSliceRows
	}
	if cfg.Limits.QueryRows == 0 {
		cfg.Limits.QueryRows = DefaultQueryRows
	}

	if cfg.Events.History.MaxEvents == 0 {
		cfg.Events.History.MaxEvents = DefaultHistoryEvents
	}
	if cfg.Events.History.MaxAge == "" {
		cfg.Events.History.MaxAge = DefaultHistoryAge
	}
}
