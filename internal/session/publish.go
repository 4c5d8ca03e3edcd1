// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"log"

	"github.com/pmuetschard/gapid/internal/events"
)

// BusPublisher publishes messages as "viewer.<kind>" events.
type BusPublisher struct {
	Bus events.EventBus
}

// Publish implements Publisher.
func (p BusPublisher) Publish(kind Kind, payload any) {
	err := p.Bus.Publish(context.Background(), events.Event{
		Type:    events.ViewerPrefix + string(kind),
		Payload: payload,
	})
	if err != nil {
		log.Printf("Session: publishing %s: %v", kind, err)
	}
}
