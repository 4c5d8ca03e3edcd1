// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package state

// RecordConfig is the state of the capture config editor.
type RecordConfig struct {
	// Extras holds free-form controls keyed by name. Values are
	// null, number, bool, string or a list of strings.
	Extras map[string]any `json:"extras"`

	// Global settings
	DurationSeconds   int  `json:"duration_seconds"`
	WriteIntoFile     bool `json:"write_into_file"`
	FileWritePeriodMs int  `json:"file_write_period_ms"`

	// Buffer setup
	BufferSizeMb int `json:"buffer_size_mb"`

	// Ftrace
	Ftrace              bool     `json:"ftrace"`
	FtraceEvents        []string `json:"ftrace_events"`
	AtraceCategories    []string `json:"atrace_categories"`
	AtraceApps          []string `json:"atrace_apps"`
	FtraceDrainPeriodMs int      `json:"ftrace_drain_period_ms"`
	FtraceBufferSizeKb  int      `json:"ftrace_buffer_size_kb"`

	// Process metadata
	ProcessMetadata         bool `json:"process_metadata"`
	ScanAllProcessesOnStart bool `json:"scan_all_processes_on_start"`
	ProcStatusPeriodMs      int  `json:"proc_status_period_ms"`

	// System stats
	SysStats        bool     `json:"sys_stats"`
	MeminfoPeriodMs int      `json:"meminfo_period_ms"`
	MeminfoCounters []string `json:"meminfo_counters"`
	VmstatPeriodMs  int      `json:"vmstat_period_ms"`
	VmstatCounters  []string `json:"vmstat_counters"`
	StatPeriodMs    int      `json:"stat_period_ms"`
	StatCounters    []string `json:"stat_counters"`

	// Battery and power
	Power           bool     `json:"power"`
	BatteryPeriodMs int      `json:"battery_period_ms"`
	BatteryCounters []string `json:"battery_counters"`
}

// DefaultRecordConfig returns the editor defaults.
func DefaultRecordConfig() RecordConfig {
	return RecordConfig{
		Extras:             make(map[string]any),
		DurationSeconds:    10,
		BufferSizeMb:       10,
		FtraceBufferSizeKb: 2 * 1024,
		BatteryPeriodMs:    1000,
		FtraceEvents:       []string{},
		AtraceCategories:   []string{},
		AtraceApps:         []string{},
		MeminfoCounters:    []string{},
		VmstatCounters:     []string{},
		StatCounters:       []string{},
		BatteryCounters:    []string{},
	}
}
