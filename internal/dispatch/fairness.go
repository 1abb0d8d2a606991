/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package dispatch

import (
	"fmt"
	"time"

	"github.com/friendsincode/fleetrota/internal/models"
)

// FairnessEvaluator tags slots relative to one vehicle's day history.
type FairnessEvaluator struct {
	routes map[string]models.Route
	now    time.Time
}

// NewFairnessEvaluator snapshots the catalog. now only feeds reason strings.
func NewFairnessEvaluator(routes []models.Route, now time.Time) *FairnessEvaluator {
	return &FairnessEvaluator{routes: routeIndex(routes), now: now}
}

// Classify returns the slot's priority class and a short reason.
func (f *FairnessEvaluator) Classify(slot models.Slot, history VehicleDayHistory) (models.SlotPriority, string) {
	if slot.External {
		return models.PriorityAny, "external pre-assignment"
	}

	route, ok := f.routes[slot.RouteID]
	if !ok || !route.Rotating() {
		mins := int(slot.DepartureAt.Sub(f.now).Round(time.Minute) / time.Minute)
		if mins < 0 {
			mins = 0
		}
		return models.PriorityAny, fmt.Sprintf("closest independent route in %d minutes", mins)
	}

	last := history.LastRotating(f.routes)
	if last != nil && last.Route() == slot.RouteID {
		return models.PrioritySameRoute, fmt.Sprintf("avoid repeating route %s", route.Name)
	}
	return models.PriorityRotation, "rotation fairness"
}

// Tag classifies every slot in place.
func (f *FairnessEvaluator) Tag(slots []models.Slot, history VehicleDayHistory) {
	for i := range slots {
		slots[i].Priority, slots[i].Reason = f.Classify(slots[i], history)
	}
}
