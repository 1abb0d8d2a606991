/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

import "sync"

// EventType enumerates event categories.
type EventType string

const (
	// EventSlotsRegenerated fires after a full-day slot rebuild.
	EventSlotsRegenerated EventType = "slots.regenerated"

	// EventAssignmentCommitted fires after a claim is persisted.
	EventAssignmentCommitted EventType = "assignment.committed"

	// EventAssignmentCancelled fires after an administrative removal.
	EventAssignmentCancelled EventType = "assignment.cancelled"

	// EventClaimRejected fires when validation turns a claim down.
	EventClaimRejected EventType = "claim.rejected"

	// EventSlotDeactivationMissed fires when a committed claim found no
	// active slot to retire.
	EventSlotDeactivationMissed EventType = "slot.deactivation_missed"
)

// Publisher is satisfied by Bus and the distributed buses.
type Publisher interface {
	Publish(eventType EventType, payload Payload)
}

// Broker publishes and delivers events.
type Broker interface {
	Publisher
	Subscribe(eventType EventType) Subscriber
	Unsubscribe(eventType EventType, sub Subscriber)
}

// Payload generic event payload.
type Payload map[string]any

// Subscriber receives event payloads.
type Subscriber chan Payload

// Bus implements a simple in-process pubsub.
type Bus struct {
	mu   sync.RWMutex
	subs map[EventType][]Subscriber
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[EventType][]Subscriber)}
}

// Subscribe registers a subscriber for event type.
func (b *Bus) Subscribe(eventType EventType) Subscriber {
	ch := make(Subscriber, 8)
	b.mu.Lock()
	b.subs[eventType] = append(b.subs[eventType], ch)
	b.mu.Unlock()
	return ch
}

// Publish sends payload to subscribers.
func (b *Bus) Publish(eventType EventType, payload Payload) {
	b.mu.RLock()
	subs := append([]Subscriber(nil), b.subs[eventType]...)
	b.mu.RUnlock()
	for _, sub := range subs {
		select {
		case sub <- payload:
		default:
		}
	}
}

// Unsubscribe removes the subscriber.
func (b *Bus) Unsubscribe(eventType EventType, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[eventType]
	for i, candidate := range subs {
		if candidate == sub {
			subs = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	b.subs[eventType] = subs
	close(sub)
}
