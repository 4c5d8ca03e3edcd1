// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package controller implements the reconciling controller tree.
//
// Each node reads the application state, updates its own enum state and
// declares the children it wants. Invoke diffs the declared children
// against the live ones: removed children are torn down, new ones are
// built, and children whose id is declared again keep their instance.
package controller

import (
	"sort"

	"github.com/cockroachdb/errors"
)

// Node is a controller in the tree. Implementations embed Base.
type Node interface {
	// Reconcile runs one round for this node and returns the wanted children.
	Reconcile() []Child
	// Teardown is called once when the node leaves the tree.
	Teardown()

	core() *core
}

// Child declares a wanted child. New is only called when no live child
// has the same id.
type Child struct {
	ID  string
	New func() Node
}

// Declare is shorthand for a Child literal.
func Declare(id string, factory func() Node) Child {
	return Child{ID: id, New: factory}
}

type core struct {
	children  map[string]Node
	running   bool
	changed   bool
	destroyed bool
}

// Base carries the bookkeeping of a node and its enum state S. The zero
// value of S is the initial state.
type Base[S comparable] struct {
	c     core
	state S
}

func (b *Base[S]) core() *core { return &b.c }

// State returns the current enum state.
func (b *Base[S]) State() S {
	return b.state
}

// SetState changes the enum state. It may only be called from Reconcile.
// A change asks the runtime for another round.
func (b *Base[S]) SetState(s S) {
	if !b.c.running {
		panic(errors.AssertionFailedf("cannot set controller state outside of reconciliation"))
	}
	if s != b.state {
		b.c.changed = true
	}
	b.state = s
}

// Destroyed reports whether the node has been torn down. Asynchronous
// work checks it before touching the node.
func (b *Base[S]) Destroyed() bool {
	return b.c.destroyed
}

// Teardown does nothing by default.
func (b *Base[S]) Teardown() {}

// Invoke runs one reconciliation round on n and its subtree and reports
// whether any node changed state and wants another round.
func Invoke(n Node) bool {
	c := n.core()
	if c.running {
		panic(errors.AssertionFailedf("reentrant reconciliation of %T", n))
	}
	c.changed = false
	c.running = true
	defer func() { c.running = false }()

	declared := n.Reconcile()
	again := c.changed
	c.changed = false

	wanted := make(map[string]bool, len(declared))
	for _, child := range declared {
		if wanted[child.ID] {
			panic(errors.AssertionFailedf("duplicate child controller %q", child.ID))
		}
		wanted[child.ID] = true
	}

	var doomed []string
	for id := range c.children {
		if !wanted[id] {
			doomed = append(doomed, id)
		}
	}
	sort.Strings(doomed)
	removed := make([]Node, len(doomed))
	for i, id := range doomed {
		removed[i] = c.children[id]
		delete(c.children, id)
	}

	runners := make([]Node, 0, len(declared))
	for _, child := range declared {
		inst, ok := c.children[child.ID]
		if !ok {
			inst = child.New()
			if c.children == nil {
				c.children = make(map[string]Node)
			}
			c.children[child.ID] = inst
		}
		runners = append(runners, inst)
	}

	for _, r := range removed {
		destroy(r)
	}
	for _, r := range runners {
		if Invoke(r) {
			again = true
		}
	}
	return again
}

// destroy tears down a subtree, children before parents.
func destroy(n Node) {
	c := n.core()
	ids := make([]string, 0, len(c.children))
	for id := range c.children {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		destroy(c.children[id])
	}
	c.children = nil
	c.destroyed = true
	n.Teardown()
}

// Children returns the ids of the live children of n in sorted order.
func Children(n Node) []string {
	c := n.core()
	ids := make([]string, 0, len(c.children))
	for id := range c.children {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Lookup returns the live child of n with the given id.
func Lookup(n Node, id string) (Node, bool) {
	child, ok := n.core().children[id]
	return child, ok
}

// Destroy tears down n and its subtree, for example when a session closes.
func Destroy(n Node) {
	if !n.core().destroyed {
		destroy(n)
	}
}
