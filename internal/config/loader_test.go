// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoader_Load_ValidConfig(t *testing.T) {
	configContent := `{
		server: {
			port: 8080
			host: "0.0.0.0"
		}
		trace: {
			path: "/traces/boot.db"
			watch: false
		}
		overview: { steps: 50 }
		limits: { query_rows: 200 }
		logging: { debug: true }
	}`

	cfg := loadFromString(t, configContent)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "/traces/boot.db", cfg.Trace.Path)
	assert.False(t, cfg.Trace.IsWatching())
	assert.Equal(t, 50, cfg.Overview.Steps)
	assert.Equal(t, 200, cfg.Limits.QueryRows)
	assert.True(t, cfg.Logging.Debug)
}

func TestLoader_Load_HJSONFeatures(t *testing.T) {
	configContent := `{
		// This is a comment
		trace: {
			# Hash comment
			path: /traces/a.db
			name: boot trace
		}
		engine: {
			status_quiet: 2s,
		}
	}`

	cfg := loadFromString(t, configContent)

	assert.Equal(t, "/traces/a.db", cfg.Trace.Path)
	assert.Equal(t, "boot trace", cfg.Trace.Name)
	assert.Equal(t, "2s", cfg.Engine.StatusQuiet)
}

func TestLoader_Load_RelativePaths(t *testing.T) {
	path := writeTestConfig(t, `{
		trace: { path: "traces/boot.db" }
		permalink: { dir: "links" }
	}`)

	cfg, err := NewLoader().Load(context.Background(), path)
	require.NoError(t, err)

	dir := filepath.Dir(path)
	assert.Equal(t, filepath.Join(dir, "traces", "boot.db"), cfg.Trace.Path)
	assert.Equal(t, filepath.Join(dir, "links"), cfg.Permalink.Dir)
}

func TestLoader_Load_Defaults(t *testing.T) {
	path := writeTestConfig(t, `{ trace: { path: "/traces/boot.db" } }`)

	cfg, err := NewLoader().LoadWithDefaults(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Server.Port)
	assert.Equal(t, DefaultHost, cfg.Server.Host)
	assert.Equal(t, "boot.db", cfg.Trace.Name)
	assert.True(t, cfg.Trace.IsWatching())
	assert.Equal(t, DefaultDebounce, cfg.Trace.Debounce)
	assert.Equal(t, DefaultStatusQuiet, cfg.Engine.StatusQuiet)
	assert.Equal(t, DefaultOverviewSteps, cfg.Overview.Steps)
	assert.Equal(t, DefaultSliceRows, cfg.Limits.SliceRows)
	assert.Equal(t, DefaultCPUSliceRows, cfg.Limits.CPUSliceRows)
	assert.Equal(t, DefaultQueryRows, cfg.Limits.QueryRows)
	assert.Equal(t, DefaultHistoryEvents, cfg.Events.History.MaxEvents)
	assert.Equal(t, DefaultHistoryAge, cfg.Events.History.MaxAge)
	assert.Empty(t, cfg.Permalink.Dir)
	assert.NoError(t, NewValidator().Validate(cfg))
}

func TestLoader_Load_FileNotFound(t *testing.T) {
	_, err := NewLoader().Load(context.Background(), "/nonexistent/traceview.hjson")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestLoader_Load_InvalidHJSON(t *testing.T) {
	path := writeTestConfig(t, `{ trace: { path: "x" `)

	_, err := NewLoader().Load(context.Background(), path)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "parse hjson")
}

func TestLoader_Load_WrongType(t *testing.T) {
	path := writeTestConfig(t, `{ server: { port: "eighty" } }`)

	_, err := NewLoader().Load(context.Background(), path)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal config")
}

func TestLoader_FindConfig(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	_, err := NewLoader().FindConfig()
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "traceview.json"), []byte(`{}`), 0644))
	found, err := NewLoader().FindConfig()
	require.NoError(t, err)
	assert.Equal(t, "traceview.json", filepath.Base(found))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "traceview.hjson"), []byte(`{}`), 0644))
	found, err = NewLoader().FindConfig()
	require.NoError(t, err)
	assert.Equal(t, "traceview.hjson", filepath.Base(found))
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input string
		def   time.Duration
		want  time.Duration
	}{
		{"", time.Second, time.Second},
		{"250ms", time.Second, 250 * time.Millisecond},
		{"bogus", time.Minute, time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseDuration(tt.input, tt.def))
		})
	}
}

func loadFromString(t *testing.T, content string) *Config {
	t.Helper()
	path := writeTestConfig(t, content)
	loader := NewLoader()
	cfg, err := loader.Load(context.Background(), path)
	require.NoError(t, err)
	return cfg
}

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "traceview.hjson")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}
