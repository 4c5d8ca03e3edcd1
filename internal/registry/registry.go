// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package registry maps kind strings to implementations.
package registry

import (
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
)

// Registry associates kind strings with values, usually factories.
type Registry[T any] struct {
	mu      sync.RWMutex
	entries map[string]T
}

// New returns an empty registry.
func New[T any]() *Registry[T] {
	return &Registry[T]{entries: make(map[string]T)}
}

// Register adds an entry. Registering a kind twice is a programming error.
func (r *Registry[T]) Register(kind string, v T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[kind]; ok {
		panic(errors.AssertionFailedf("kind %q is already registered", kind))
	}
	r.entries[kind] = v
}

// Has reports whether kind is registered.
func (r *Registry[T]) Has(kind string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[kind]
	return ok
}

// Get returns the entry for kind. An unknown kind is a programming error.
func (r *Registry[T]) Get(kind string) T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.entries[kind]
	if !ok {
		panic(errors.AssertionFailedf("%q has not been registered", kind))
	}
	return v
}

// Kinds returns the registered kinds in sorted order.
func (r *Registry[T]) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.entries))
	for k := range r.entries {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
