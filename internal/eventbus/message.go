/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus fans dispatch events out to other instances over Redis
// pub/sub or NATS. Every bus also delivers to local subscribers and keeps
// working in-process when the broker is unreachable.
package eventbus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/friendsincode/fleetrota/internal/events"
	"github.com/google/uuid"
)

// SubjectPrefix namespaces broker channels and subjects.
const SubjectPrefix = "fleetrota.events."

// Subject returns the broker channel of an event type.
func Subject(eventType events.EventType) string {
	return SubjectPrefix + string(eventType)
}

// message is the wire envelope shared by the Redis and NATS buses.
type message struct {
	EventType events.EventType `json:"event_type"`
	Payload   events.Payload   `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
	NodeID    string           `json:"node_id"`
	MessageID string           `json:"message_id"`
}

func marshalMessage(eventType events.EventType, payload events.Payload, nodeID string) ([]byte, error) {
	return json.Marshal(message{
		EventType: eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
		NodeID:    nodeID,
		MessageID: uuid.NewString(),
	})
}

func unmarshalMessage(data []byte) (*message, error) {
	var msg message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal event message: %w", err)
	}
	return &msg, nil
}

// NewNodeID returns a unique id for echo suppression.
func NewNodeID() string {
	return uuid.NewString()
}
