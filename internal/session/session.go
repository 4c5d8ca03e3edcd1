// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package session owns the application state and runs the dispatch loop.
//
// All state mutation and all reconciliation happen on a single control
// goroutine started by Run. Engine queries run on other goroutines and
// hand their continuations back through Go or Call.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	crdberrors "github.com/cockroachdb/errors"
	"github.com/pmuetschard/gapid/internal/actions"
	"github.com/pmuetschard/gapid/internal/controller"
	"github.com/pmuetschard/gapid/internal/engine"
	"github.com/pmuetschard/gapid/internal/state"
)

// DefaultMaxRounds bounds the rounds of one dispatch loop.
const DefaultMaxRounds = 100

// ErrSessionClosed is returned when posting work to a stopped session.
var ErrSessionClosed = errors.New("session is closed")

// Kind names a message published to the presentation layer.
type Kind string

const (
	KindState       Kind = "state"
	KindOverview    Kind = "overview"
	KindTrackData   Kind = "track_data"
	KindThreads     Kind = "threads"
	KindQueryResult Kind = "query_result"
	KindLegacyTrace Kind = "legacy_trace"
)

// Publisher delivers published messages to the presentation layer.
type Publisher interface {
	Publish(kind Kind, payload any)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(kind Kind, payload any)

// Publish implements Publisher.
func (f PublisherFunc) Publish(kind Kind, payload any) { f(kind, payload) }

// Config configures a session.
type Config struct {
	Engine    engine.Engine
	Publisher Publisher
	MaxRounds int
	Debug     bool
}

// Session is the dispatch runtime: it owns the state, the engine, the root
// controller and the queue of pending actions.
type Session struct {
	engine    engine.Engine
	root      controller.Node
	pub       Publisher
	maxRounds int
	debug     bool

	// Owned by the control goroutine.
	state   *state.State
	queue   []actions.Action
	running bool

	tasks    chan func()
	inflight atomic.Int64
	ctx      context.Context
	done     chan struct{}
	started  atomic.Bool

	mu       sync.RWMutex
	snapshot *state.State
}

// New creates a session with an empty state. The root controller is set
// with SetRoot before Run.
func New(cfg Config) *Session {
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = DefaultMaxRounds
	}
	if cfg.Publisher == nil {
		cfg.Publisher = PublisherFunc(func(Kind, any) {})
	}
	s := &Session{
		engine:    cfg.Engine,
		pub:       cfg.Publisher,
		maxRounds: cfg.MaxRounds,
		debug:     cfg.Debug,
		state:     state.New(),
		tasks:     make(chan func(), 256),
		ctx:       context.Background(),
		done:      make(chan struct{}),
	}
	s.snapshot = s.state.Clone()
	return s
}

// SetRoot installs the root controller. Controllers usually need the
// session, so the root is set after construction.
func (s *Session) SetRoot(root controller.Node) {
	s.root = root
}

// Run executes posted tasks on the calling goroutine until ctx is done.
// The calling goroutine becomes the control goroutine.
func (s *Session) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return errors.New("session already running")
	}
	s.ctx = ctx
	defer close(s.done)
	defer func() {
		if s.root != nil {
			controller.Destroy(s.root)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case task := <-s.tasks:
			s.runTask(task)
		}
	}
}

func (s *Session) runTask(task func()) {
	defer s.inflight.Add(-1)
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Session: task panic: %v\n%s", r, debug.Stack())
		}
	}()
	task()
}

// post queues fn for the control goroutine.
func (s *Session) post(fn func()) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	s.inflight.Add(1)
	select {
	case s.tasks <- fn:
		return nil
	case <-s.done:
		s.inflight.Add(-1)
		return ErrSessionClosed
	}
}

// Call runs fn on the control goroutine and waits for it. A panic in fn,
// such as an invariant violation, is returned as an error.
func (s *Session) Call(ctx context.Context, fn func()) error {
	errCh := make(chan error, 1)
	err := s.post(func() {
		defer func() {
			if r := recover(); r != nil {
				err, ok := r.(error)
				if !ok {
					err = fmt.Errorf("%v", r)
				}
				log.Printf("Session: %v\n%s", err, debug.Stack())
				errCh <- err
			}
		}()
		fn()
		errCh <- nil
	})
	if err != nil {
		return err
	}
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrSessionClosed
	}
}

// Submit dispatches actions from any goroutine and waits until the
// dispatch loop they started has settled.
func (s *Session) Submit(ctx context.Context, acts ...actions.Action) error {
	return s.Call(ctx, func() { s.Dispatch(acts...) })
}

// Go runs work on a new goroutine. The continuation it returns, if any,
// runs on the control goroutine.
func (s *Session) Go(work func(ctx context.Context) func()) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Add(-1)
		cont := work(s.ctx)
		if cont != nil {
			if err := s.post(cont); err != nil {
				log.Printf("Session: dropping continuation: %v", err)
			}
		}
	}()
}

// Settle waits until no tasks or asynchronous work are pending.
func (s *Session) Settle(ctx context.Context) error {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for s.inflight.Load() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return ErrSessionClosed
		case <-ticker.C:
		}
	}
	return nil
}

// Context returns the context of the running session.
func (s *Session) Context() context.Context {
	return s.ctx
}

// Dispatch queues actions and, unless a loop is already running, runs the
// dispatch loop until the state and the controllers settle. It must be
// called on the control goroutine.
func (s *Session) Dispatch(acts ...actions.Action) {
	s.queue = append(s.queue, acts...)
	if s.running {
		return
	}
	s.runControllers()
}

func (s *Session) runControllers() {
	if s.root == nil {
		panic(crdberrors.AssertionFailedf("session has no root controller"))
	}
	s.running = true
	defer func() {
		s.running = false
		s.queue = nil
	}()

	if s.debug {
		names := make([]string, len(s.queue))
		for i, a := range s.queue {
			names[i] = a.Name()
		}
		log.Printf("Controllers loop (%s)", strings.Join(names, ", "))
	}

	for iter, again := 0, true; again || len(s.queue) > 0; iter++ {
		if iter >= s.maxRounds {
			panic(crdberrors.AssertionFailedf("controllers are stuck in a livelock"))
		}
		pending := s.queue
		s.queue = nil
		for _, a := range pending {
			s.apply(a)
		}
		again = controller.Invoke(s.root)
	}

	snap := s.state.Clone()
	s.mu.Lock()
	s.snapshot = snap
	s.mu.Unlock()
	s.pub.Publish(KindState, snap)
}

func (s *Session) apply(a actions.Action) {
	switch a := a.(type) {
	case actions.Mutation:
		a.Apply(s.state)
	case actions.Replace:
		s.state = a.State
	default:
		panic(crdberrors.AssertionFailedf("unknown action variant %T", a))
	}
}

// State returns the live state. Only the control goroutine may use it.
func (s *Session) State() *state.State {
	return s.state
}

// Snapshot returns a copy of the state as of the last settled loop. It is
// safe to call from any goroutine.
func (s *Session) Snapshot() *state.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// Engine returns the query engine.
func (s *Session) Engine() engine.Engine {
	return s.engine
}

// SetEngine swaps the query engine, for example after the trace file was
// replaced. It must be called on the control goroutine.
func (s *Session) SetEngine(e engine.Engine) {
	s.engine = e
}

// Publish forwards one message to the presentation layer. It must be
// called on the control goroutine.
func (s *Session) Publish(kind Kind, payload any) {
	s.pub.Publish(kind, payload)
}
