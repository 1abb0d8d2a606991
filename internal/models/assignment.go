/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"time"
)

// AssignmentStatus tracks the lifecycle of a turn.
type AssignmentStatus string

const (
	AssignmentPending    AssignmentStatus = "PENDING"
	AssignmentInProgress AssignmentStatus = "IN_PROGRESS"
	AssignmentCompleted  AssignmentStatus = "COMPLETED"
	AssignmentCancelled  AssignmentStatus = "CANCELLED"
)

// Assignment ("turno") is a committed vehicle/driver/route/departure booking.
type Assignment struct {
	ID          string           `gorm:"type:varchar(36);primaryKey"`
	VehicleID   string           `gorm:"type:varchar(36);index"`
	DriverID    string           `gorm:"type:varchar(36);index"`
	RouteID     *string          `gorm:"type:varchar(36);index"` // NULL once the route is removed
	RouteName   string           `gorm:"size:128"`
	DepartureAt time.Time        `gorm:"index"`
	ServiceDay  string           `gorm:"type:varchar(10);index"`
	Status      AssignmentStatus `gorm:"type:varchar(16);index"`
	OperatorID  *string          `gorm:"type:varchar(36)"`
	CreatedAt   time.Time

	// External marks pseudo-assignments merged from the pre-assignment feed. Never persisted.
	External bool `gorm:"-"`
}

// Live reports whether the assignment still occupies its departure.
func (a Assignment) Live() bool {
	return a.Status != AssignmentCancelled
}

// Route returns the route id or "" when the route was removed.
func (a Assignment) Route() string {
	if a.RouteID == nil {
		return ""
	}
	return *a.RouteID
}

// ExternalPreAssignment ("programado") is a dispatch pre-booked through the
// separate night-shift feed. The core only reads it.
type ExternalPreAssignment struct {
	ID         string  `gorm:"type:varchar(36);primaryKey"`
	RouteLabel string  `gorm:"size:128"`
	Hour       string  `gorm:"type:varchar(5)"` // HH:MM in the operating timezone
	ServiceDay string  `gorm:"type:varchar(10);index"`
	Available  bool    `gorm:"index"`
	VehicleID  *string `gorm:"type:varchar(36);index"`
	CreatedAt  time.Time
}

// TableName keeps the feed's historical table name.
func (ExternalPreAssignment) TableName() string { return "programados" }
