/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package dispatch

import (
	"context"
	"time"

	"github.com/friendsincode/fleetrota/internal/config"
	"github.com/friendsincode/fleetrota/internal/models"
)

// RouteCatalog lists the routes the engine schedules.
type RouteCatalog interface {
	ListActive(ctx context.Context) ([]models.Route, error)
	// Get returns nil, nil for an unknown id.
	Get(ctx context.Context, id string) (*models.Route, error)
}

// SlotStore persists the day's slot inventory.
type SlotStore interface {
	ListActiveForDay(ctx context.Context, day string) ([]models.Slot, error)
	ReplaceForDay(ctx context.Context, day string, slots []models.Slot) error
	DeactivateMatching(ctx context.Context, routeID string, at time.Time, window time.Duration) (int64, error)
	PurgeBefore(ctx context.Context, day string) (int64, error)
	PurgePast(ctx context.Context, instant time.Time) (int64, error)
}

// AssignmentStore persists committed turns.
type AssignmentStore interface {
	ListForDay(ctx context.Context, day string) ([]models.Assignment, error)
	// Create returns store.ErrDuplicate (wrapped) on a live route/departure clash.
	Create(ctx context.Context, a *models.Assignment) error
	Get(ctx context.Context, id string) (*models.Assignment, error)
	Delete(ctx context.Context, id string) error
}

// Fleet resolves vehicles and drivers. Missing entities are nil, nil.
type Fleet interface {
	Vehicle(ctx context.Context, id string) (*models.Vehicle, error)
	Driver(ctx context.Context, id string) (*models.Driver, error)
}

// ExternalSchedule merges the pre-assignment feed into the engine's views.
// Route ids on returned rows are canonical catalog ids.
type ExternalSchedule interface {
	PseudoSlots(ctx context.Context, day string) ([]models.Slot, error)
	PseudoAssignments(ctx context.Context, day string) ([]models.Assignment, error)
}

// TuningSource supplies the current scheduling knobs.
type TuningSource interface {
	Get() config.Tuning
}

type noExternal struct{}

func (noExternal) PseudoSlots(context.Context, string) ([]models.Slot, error) { return nil, nil }

func (noExternal) PseudoAssignments(context.Context, string) ([]models.Assignment, error) {
	return nil, nil
}
