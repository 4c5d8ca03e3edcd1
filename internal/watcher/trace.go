// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package watcher notices when the trace database changes on disk.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pmuetschard/gapid/internal/events"
)

// DefaultCooldown is the minimum time between two change notifications.
const DefaultCooldown = 2 * time.Second

// ErrClosed is returned when watching with a closed watcher.
var ErrClosed = errors.New("watcher is closed")

// Config configures a TraceWatcher.
type Config struct {
	Debounce time.Duration
	Cooldown time.Duration
	// Bus receives a trace.changed event per notification. Optional.
	Bus events.EventBus
	// OnChange runs on its own goroutine after the file settled.
	OnChange func(path string)
}

// TraceWatcher watches trace databases. The directory of each trace is
// watched so that files replaced by rename are seen too; only events on
// the database and its write-ahead log count.
type TraceWatcher struct {
	mu       sync.Mutex
	cfg      Config
	fs       *fsnotify.Watcher
	debounce *debouncer
	traces   map[string]string // watched file -> trace path
	dirs     map[string]int    // directory -> watched traces
	lastFire map[string]time.Time
	closed   bool
	closeCh  chan struct{}
	wg       sync.WaitGroup
}

// New creates a watcher with no traces.
func New(cfg Config) (*TraceWatcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	w := &TraceWatcher{
		cfg:      cfg,
		fs:       fs,
		debounce: newDebouncer(cfg.Debounce),
		traces:   make(map[string]string),
		dirs:     make(map[string]int),
		lastFire: make(map[string]time.Time),
		closeCh:  make(chan struct{}),
	}
	w.wg.Add(1)
	go w.loop()
	return w, nil
}

// Watch starts watching the trace database at path.
func (w *TraceWatcher) Watch(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", path, err)
	}
	if _, err := os.Stat(abs); err != nil {
		return fmt.Errorf("watching %s: %w", path, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if _, ok := w.traces[abs]; ok {
		return nil
	}

	dir := filepath.Dir(abs)
	if w.dirs[dir] == 0 {
		if err := w.fs.Add(dir); err != nil {
			return fmt.Errorf("watching %s: %w", dir, err)
		}
	}
	w.dirs[dir]++
	w.traces[abs] = abs
	w.traces[abs+"-wal"] = abs
	return nil
}

// Unwatch stops watching the trace at path.
func (w *TraceWatcher) Unwatch(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", path, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.traces[abs]; !ok {
		return fmt.Errorf("trace %s is not watched", path)
	}
	delete(w.traces, abs)
	delete(w.traces, abs+"-wal")
	delete(w.lastFire, abs)

	dir := filepath.Dir(abs)
	w.dirs[dir]--
	if w.dirs[dir] <= 0 {
		delete(w.dirs, dir)
		w.fs.Remove(dir)
	}
	return nil
}

// Watching returns the watched trace paths.
func (w *TraceWatcher) Watching() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []string
	for file, trace := range w.traces {
		if file == trace {
			out = append(out, trace)
		}
	}
	return out
}

// Close stops the watcher. Pending notifications are dropped.
func (w *TraceWatcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.closeCh)
	w.mu.Unlock()

	w.debounce.stop()
	err := w.fs.Close()
	w.wg.Wait()
	return err
}

func (w *TraceWatcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.closeCh:
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			log.Printf("Watcher: %v", err)
		}
	}
}

func (w *TraceWatcher) handle(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
		return
	}
	w.mu.Lock()
	trace, ok := w.traces[ev.Name]
	w.mu.Unlock()
	if ok {
		w.debounce.trigger(trace, func() { w.fire(trace) })
	}
}

func (w *TraceWatcher) fire(trace string) {
	w.mu.Lock()
	if w.closed || time.Since(w.lastFire[trace]) < w.cfg.Cooldown {
		w.mu.Unlock()
		return
	}
	if _, ok := w.traces[trace]; !ok {
		w.mu.Unlock()
		return
	}
	w.lastFire[trace] = time.Now()
	w.mu.Unlock()

	var modTime time.Time
	if info, err := os.Stat(trace); err == nil {
		modTime = info.ModTime()
	}
	log.Printf("Watcher: %s changed", trace)

	if w.cfg.Bus != nil {
		err := w.cfg.Bus.Publish(context.Background(), events.Event{
			Type:  events.EventTraceChanged,
			Trace: filepath.Base(trace),
			Payload: map[string]any{
				"path":     trace,
				"mod_time": modTime.Format(time.RFC3339Nano),
			},
		})
		if err != nil {
			log.Printf("Watcher: publishing change of %s: %v", trace, err)
		}
	}
	if w.cfg.OnChange != nil {
		w.cfg.OnChange(trace)
	}
}
