/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"fmt"

	"github.com/friendsincode/fleetrota/internal/models"
	"gorm.io/gorm"
)

// Migrate applies database schema migrations using GORM auto-migrate.
func Migrate(database *gorm.DB) error {
	if err := database.AutoMigrate(
		// Catalog and fleet
		&models.Route{},
		&models.Vehicle{},
		&models.Driver{},

		// Dispatch state
		&models.Slot{},
		&models.Assignment{},

		// External pre-assignment feed
		&models.ExternalPreAssignment{},
	); err != nil {
		return err
	}

	if err := applyLiveAssignmentGuard(database); err != nil {
		return err
	}

	return nil
}

// applyLiveAssignmentGuard adds a partial unique index so two instances cannot
// both commit a live assignment for the same route and departure. MySQL has
// no partial indexes; there the conflict check and in-process lock are the
// only guard.
func applyLiveAssignmentGuard(database *gorm.DB) error {
	switch database.Dialector.Name() {
	case "postgres", "sqlite":
	default:
		return nil
	}

	stmt := `CREATE UNIQUE INDEX IF NOT EXISTS idx_assignments_live_route_departure
ON assignments (route_id, departure_at)
WHERE status <> 'CANCELLED' AND route_id IS NOT NULL`

	if err := database.Exec(stmt).Error; err != nil {
		return fmt.Errorf("apply live assignment guard: %w", err)
	}
	return nil
}
