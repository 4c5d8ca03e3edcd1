// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"strings"
	"time"
)

// Validator validates configuration against schema rules.
type Validator struct{}

// NewValidator creates a new config validator.
func NewValidator() *Validator {
	return &Validator{}
}

// ValidationError contains multiple validation failures.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single field validation error.
type FieldError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	var msgs []string
	for _, fe := range e.Errors {
		msgs = append(msgs, fmt.Sprintf("%s: %s", fe.Field, fe.Message))
	}
	return strings.Join(msgs, "; ")
}

// IsEmpty returns true if there are no validation errors.
func (e *ValidationError) IsEmpty() bool {
	return len(e.Errors) == 0
}

// Add adds a field error.
func (e *ValidationError) Add(field, message string) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: message})
}

// Validate checks configuration validity.
func (v *Validator) Validate(cfg *Config) error {
	errs := &ValidationError{}

	v.validateServer(cfg, errs)
	v.validateTrace(cfg, errs)
	v.validateCounts(cfg, errs)
	v.validateDurations(cfg, errs)

	if errs.IsEmpty() {
		return nil
	}
	return errs
}

func (v *Validator) validateServer(cfg *Config, errs *ValidationError) {
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs.Add("server.port", "must be between 0 and 65535")
	}
}

func (v *Validator) validateTrace(cfg *Config, errs *ValidationError) {
	if cfg.Trace.Path == "" {
		errs.Add("trace.path", "is required")
	}
}

func (v *Validator) validateCounts(cfg *Config, errs *ValidationError) {
	positive := []struct {
		field string
		value int
	}{
		{"overview.steps", cfg.Overview.Steps},
		{"limits.slice_rows", cfg.Limits.SliceRows},
		{"limits.cpu_slice_rows", cfg.Limits.CPUSliceRows},
		{"limits.query_rows", cfg.Limits.QueryRows},
		{"events.history.max_events", cfg.Events.History.MaxEvents},
	}
	for _, p := range positive {
		if p.value < 0 {
			errs.Add(p.field, "must not be negative")
		}
	}
}

func (v *Validator) validateDurations(cfg *Config, errs *ValidationError) {
	durations := []struct {
		field string
		value string
	}{
		{"trace.debounce", cfg.Trace.Debounce},
		{"engine.status_quiet", cfg.Engine.StatusQuiet},
		{"events.history.max_age", cfg.Events.History.MaxAge},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			errs.Add(d.field, fmt.Sprintf("invalid duration format: %s", err))
		} else if parsed < 0 {
			errs.Add(d.field, "must be positive")
		}
	}
}
