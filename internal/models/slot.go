/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"time"
)

// SlotPriority classifies a slot relative to one vehicle's day history.
type SlotPriority string

const (
	// PriorityRotation - encouraged, alternates the rotation group.
	PriorityRotation SlotPriority = "ROTATION"

	// PrioritySameRoute - discouraged, repeats the vehicle's last rotation route.
	PrioritySameRoute SlotPriority = "SAME_ROUTE"

	// PriorityAny - independent routes and external pre-bookings.
	PriorityAny SlotPriority = "ANY"
)

// Rank orders priorities for ranking alternatives. Lower ranks first.
func (p SlotPriority) Rank() int {
	switch p {
	case PriorityRotation:
		return 0
	case PrioritySameRoute:
		return 1
	default:
		return 2
	}
}

// Slot ("hueco") is one claimable departure of a route.
type Slot struct {
	ID               string       `gorm:"type:varchar(36);primaryKey"`
	RouteID          string       `gorm:"type:varchar(36);index:idx_slot_route_departure"`
	RouteName        string       `gorm:"size:128"`
	DepartureAt      time.Time    `gorm:"index:idx_slot_route_departure"`
	Priority         SlotPriority `gorm:"type:varchar(16)"`
	Reason           string       `gorm:"size:255"`
	FrequencyMinutes int
	ServiceDay       string `gorm:"type:varchar(10);index"`
	Active           bool   `gorm:"index"`
	CreatedAt        time.Time

	// External marks pseudo-slots merged from the pre-assignment feed. Never persisted.
	External bool `gorm:"-"`
}
