/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"time"
)

// RoutePriority marks whether a route belongs to the rotation group.
type RoutePriority string

const (
	RouteIndependent RoutePriority = "independent"
	RouteRotating    RoutePriority = "rotating"
)

// Route is a fixed transport route with a departure frequency.
type Route struct {
	ID               string        `gorm:"type:varchar(36);primaryKey"`
	Name             string        `gorm:"size:128;uniqueIndex"`
	FrequencyMinutes int           `gorm:"not null"`
	Priority         RoutePriority `gorm:"type:varchar(16);index"`
	OncePerDay       bool
	Active           bool `gorm:"index"`
	Position         int  // catalog order, used for deterministic tie-breaking
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Rotating reports membership in the rotation group.
func (r Route) Rotating() bool {
	return r.Priority == RouteRotating
}

// Frequency returns the departure interval. Non-positive values yield zero.
func (r Route) Frequency() time.Duration {
	if r.FrequencyMinutes <= 0 {
		return 0
	}
	return time.Duration(r.FrequencyMinutes) * time.Minute
}

// Vehicle is a fleet unit that can be dispatched.
type Vehicle struct {
	ID        string `gorm:"type:varchar(36);primaryKey"`
	Plate     string `gorm:"size:16;uniqueIndex"`
	Active    bool   `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Driver operates a vehicle for an assignment.
type Driver struct {
	ID        string `gorm:"type:varchar(36);primaryKey"`
	Name      string `gorm:"size:128"`
	Active    bool   `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
