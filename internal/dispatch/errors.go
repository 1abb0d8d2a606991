/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package dispatch

import (
	"errors"
	"fmt"
)

// Kind names a claim rejection cause the caller can map to a message.
type Kind string

const (
	KindPastDeparture        Kind = "past_departure"
	KindInsufficientLeadTime Kind = "insufficient_lead_time"
	KindEntityNotFound       Kind = "entity_not_found"
	KindEntityInactive       Kind = "entity_inactive"
	KindScheduleConflict     Kind = "schedule_conflict"
	KindPersistenceFailure   Kind = "persistence_failure"
)

// Sentinels for errors.Is. Every *Error matches the sentinel of its Kind.
var (
	ErrPastDeparture        = errors.New("departure is not in the future")
	ErrInsufficientLeadTime = errors.New("departure is too close to now")
	ErrEntityNotFound       = errors.New("entity not found")
	ErrEntityInactive       = errors.New("entity inactive")
	ErrScheduleConflict     = errors.New("schedule conflict")
	ErrPersistenceFailure   = errors.New("persistence failure")
)

func (k Kind) sentinel() error {
	switch k {
	case KindPastDeparture:
		return ErrPastDeparture
	case KindInsufficientLeadTime:
		return ErrInsufficientLeadTime
	case KindEntityNotFound:
		return ErrEntityNotFound
	case KindEntityInactive:
		return ErrEntityInactive
	case KindScheduleConflict:
		return ErrScheduleConflict
	case KindPersistenceFailure:
		return ErrPersistenceFailure
	}
	return nil
}

// Error is a rejected claim or an infrastructure failure.
type Error struct {
	Kind   Kind
	Detail string

	// Entity is "vehicle", "driver", "route" or "assignment" for entity kinds.
	Entity string

	// ConflictID is the colliding assignment for ScheduleConflict, when known.
	ConflictID string

	// Rebuilt is set on InsufficientLeadTime when the slot inventory was
	// regenerated before the rejection surfaced.
	Rebuilt bool

	Err error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel of the error's kind.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// KindOf returns the kind of err, or "" when err is not a dispatch error.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

func reject(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

func persistence(op string, err error) *Error {
	return &Error{Kind: KindPersistenceFailure, Detail: op, Err: err}
}
