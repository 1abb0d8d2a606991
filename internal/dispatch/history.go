/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package dispatch

import (
	"context"
	"sort"
	"time"

	"github.com/friendsincode/fleetrota/internal/models"
)

// dayAssignments returns the live native and pseudo assignments of day,
// ordered by departure.
func dayAssignments(ctx context.Context, store AssignmentStore, external ExternalSchedule, day string) ([]models.Assignment, error) {
	native, err := store.ListForDay(ctx, day)
	if err != nil {
		return nil, persistence("list assignments", err)
	}
	pseudo, err := external.PseudoAssignments(ctx, day)
	if err != nil {
		return nil, persistence("list external assignments", err)
	}

	live := make([]models.Assignment, 0, len(native)+len(pseudo))
	for _, a := range native {
		if a.Live() {
			live = append(live, a)
		}
	}
	for _, a := range pseudo {
		if a.Live() {
			a.External = true
			live = append(live, a)
		}
	}
	sort.SliceStable(live, func(i, j int) bool {
		return live[i].DepartureAt.Before(live[j].DepartureAt)
	})
	return live, nil
}

// VehicleDayHistory is one vehicle's live assignments of the day, native and
// external, ordered by departure.
type VehicleDayHistory []models.Assignment

// HistoryFor extracts vehicleID's history from a day's live assignments.
func HistoryFor(vehicleID string, assignments []models.Assignment) VehicleDayHistory {
	if vehicleID == "" {
		return nil
	}
	var h VehicleDayHistory
	for _, a := range assignments {
		if a.VehicleID == vehicleID && a.Live() {
			h = append(h, a)
		}
	}
	sort.SliceStable(h, func(i, j int) bool { return h[i].DepartureAt.Before(h[j].DepartureAt) })
	return h
}

// LastRotating returns the most recent assignment on a rotation-group route.
func (h VehicleDayHistory) LastRotating(routes map[string]models.Route) *models.Assignment {
	for i := len(h) - 1; i >= 0; i-- {
		if r, ok := routes[h[i].Route()]; ok && r.Rotating() {
			return &h[i]
		}
	}
	return nil
}

// HasRoute reports whether the vehicle already ran routeID today.
func (h VehicleDayHistory) HasRoute(routeID string) bool {
	for _, a := range h {
		if a.Route() == routeID {
			return true
		}
	}
	return false
}

func routeIndex(routes []models.Route) map[string]models.Route {
	idx := make(map[string]models.Route, len(routes))
	for _, r := range routes {
		idx[r.ID] = r
	}
	return idx
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// nearest returns the assignment closest to at among those accepted by match
// whose departure is strictly within window of at.
func nearest(assignments []models.Assignment, at time.Time, window time.Duration, match func(models.Assignment) bool) *models.Assignment {
	var best *models.Assignment
	var bestGap time.Duration
	for i := range assignments {
		a := assignments[i]
		if !a.Live() || !match(a) {
			continue
		}
		gap := absDuration(a.DepartureAt.Sub(at))
		if gap >= window {
			continue
		}
		if best == nil || gap < bestGap {
			best = &assignments[i]
			bestGap = gap
		}
	}
	return best
}
