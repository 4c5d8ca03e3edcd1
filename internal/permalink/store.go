// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package permalink stores state snapshots under the hash of their content.
package permalink

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/pmuetschard/gapid/internal/state"
)

// ErrNotFound is returned when no snapshot is stored under a hash.
var ErrNotFound = errors.New("permalink not found")

const keyPrefix = "p:"

// Store persists state snapshots in a pebble database.
type Store struct {
	db *pebble.DB
}

// Open opens or creates the store in dir. An empty dir keeps the store in
// memory, which is what tests and throwaway sessions use.
func Open(dir string) (*Store, error) {
	opts := &pebble.Options{Logger: quietLogger{}}
	if dir == "" {
		opts.FS = vfs.NewMem()
	}
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, fmt.Errorf("opening permalink store: %w", err)
	}
	return &Store{db: db}, nil
}

// Save stores the snapshot and returns its hash. Saving the same state
// twice yields the same hash.
func (s *Store) Save(st *state.State) (string, error) {
	data, err := encode(st)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])
	if err := s.db.Set([]byte(keyPrefix+hash), data, pebble.Sync); err != nil {
		return "", fmt.Errorf("storing permalink %s: %w", hash, err)
	}
	return hash, nil
}

// Load returns the snapshot stored under hash.
func (s *Store) Load(hash string) (*state.State, error) {
	val, closer, err := s.db.Get([]byte(keyPrefix + hash))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, hash)
	}
	if err != nil {
		return nil, fmt.Errorf("loading permalink %s: %w", hash, err)
	}
	defer closer.Close()
	return state.Decode(val)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func encode(st *state.State) ([]byte, error) {
	// The permalink request itself is not part of the snapshot. Maps are
	// encoded with sorted keys, so equal states hash equally.
	snap := st.Clone()
	snap.Permalink = state.PermalinkConfig{}
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encoding permalink state: %w", err)
	}
	return data, nil
}

type quietLogger struct{}

func (quietLogger) Infof(format string, args ...interface{})  {}
func (quietLogger) Errorf(format string, args ...interface{}) { log.Printf("Permalink: "+format, args...) }
func (quietLogger) Fatalf(format string, args ...interface{}) { log.Fatalf(format, args...) }
