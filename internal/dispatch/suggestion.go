/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package dispatch

import (
	"context"
	"sort"
	"time"

	"github.com/friendsincode/fleetrota/internal/clock"
	"github.com/friendsincode/fleetrota/internal/models"
	"github.com/friendsincode/fleetrota/internal/telemetry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// Suggestion is the fairest next slot for a vehicle/driver pair. A nil Best
// means nothing qualifies, which is a valid outcome and not an error.
type Suggestion struct {
	VehicleID    string
	DriverID     string
	Best         *models.Slot
	Alternatives []models.Slot

	// Rebuilt is set when the read regenerated the inventory first.
	Rebuilt       bool
	RebuildReason RebuildReason
	At            time.Time
}

// Empty reports the "no suggestion" outcome.
func (s *Suggestion) Empty() bool { return s == nil || s.Best == nil }

// SuggestionEngine ranks claimable slots for one vehicle.
type SuggestionEngine struct {
	inventory   *Inventory
	routes      RouteCatalog
	assignments AssignmentStore
	external    ExternalSchedule
	tuning      TuningSource
	clock       clock.Clock
	loc         *time.Location
	logger      zerolog.Logger
}

// Suggest ensures inventory, then returns the best slot and ranked alternatives.
func (e *SuggestionEngine) Suggest(ctx context.Context, vehicleID, driverID string) (*Suggestion, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "dispatch.suggest",
		attribute.String("vehicle_id", vehicleID))
	sug, err := e.suggest(ctx, vehicleID, driverID)
	telemetry.EndSpan(span, err)

	switch {
	case err != nil:
		telemetry.SuggestionsTotal.WithLabelValues("error").Inc()
	case sug.Empty():
		telemetry.SuggestionsTotal.WithLabelValues("empty").Inc()
	default:
		telemetry.SuggestionsTotal.WithLabelValues("suggested").Inc()
	}
	return sug, err
}

func (e *SuggestionEngine) suggest(ctx context.Context, vehicleID, driverID string) (*Suggestion, error) {
	rebuilt, reason, err := e.inventory.Ensure(ctx, vehicleID)
	if err != nil {
		return nil, err
	}

	now := e.clock.Now()
	sug := &Suggestion{VehicleID: vehicleID, DriverID: driverID, Rebuilt: rebuilt, RebuildReason: reason, At: now}

	slots, err := e.inventory.ListClaimable(ctx)
	if err != nil {
		return nil, err
	}
	routes, err := e.routes.ListActive(ctx)
	if err != nil {
		return nil, persistence("list routes", err)
	}
	live, err := dayAssignments(ctx, e.assignments, e.external, clock.Day(now, e.loc))
	if err != nil {
		return nil, err
	}

	idx := routeIndex(routes)
	history := HistoryFor(vehicleID, live)
	NewFairnessEvaluator(routes, now).Tag(slots, history)

	qualifying := e.qualifying(slots, idx, history, live, vehicleID, driverID)
	if len(qualifying) == 0 {
		e.logger.Debug().Str("vehicle_id", vehicleID).Msg("no qualifying slot")
		return sug, nil
	}

	best := pickBest(qualifying, idx, history)
	sug.Best = &best
	sug.Alternatives = rankAlternatives(qualifying, best, idx, e.tuning.Get().MaxAlternatives)
	return sug, nil
}

// qualifying drops slots of unknown routes, once-per-day routes the vehicle
// already ran, departures already booked on the same route, and (when
// enabled) departures the claim would reject as a vehicle or driver conflict.
func (e *SuggestionEngine) qualifying(slots []models.Slot, idx map[string]models.Route, history VehicleDayHistory, live []models.Assignment, vehicleID, driverID string) []models.Slot {
	t := e.tuning.Get()
	out := make([]models.Slot, 0, len(slots))
	for _, s := range slots {
		route, ok := idx[s.RouteID]
		if !ok {
			continue
		}
		if route.OncePerDay && history.HasRoute(route.ID) {
			continue
		}
		routeID := s.RouteID
		if nearest(live, s.DepartureAt, t.MatchWindow(), func(a models.Assignment) bool { return a.Route() == routeID }) != nil {
			continue
		}
		if t.ConflictCheckEnabled && nearest(live, s.DepartureAt, t.ConflictMargin(), func(a models.Assignment) bool {
			return (vehicleID != "" && a.VehicleID == vehicleID) || (driverID != "" && a.DriverID == driverID)
		}) != nil {
			continue
		}
		out = append(out, s)
	}
	return out
}

// pickBest applies the alternation rule, then the independent-route
// override, then falls back to the globally earliest slot. Pseudo-slots on
// rotating routes take part in the alternation. slots are ordered by
// departure.
func pickBest(slots []models.Slot, idx map[string]models.Route, history VehicleDayHistory) models.Slot {
	earliestRotating := make(map[string]models.Slot)
	var rotatingOrder []string
	var independent *models.Slot

	for i := range slots {
		s := slots[i]
		route := idx[s.RouteID]
		switch {
		case route.Rotating():
			if _, seen := earliestRotating[s.RouteID]; !seen {
				earliestRotating[s.RouteID] = s
				rotatingOrder = append(rotatingOrder, s.RouteID)
			}
		case history.HasRoute(s.RouteID):
			// Independent route already run today: alternative only.
			continue
		default:
			if independent == nil {
				independent = &slots[i]
			}
		}
	}

	var pick *models.Slot
	if last := history.LastRotating(idx); last != nil {
		for _, routeID := range rotatingOrder {
			if routeID != last.Route() {
				s := earliestRotating[routeID]
				pick = &s
				break
			}
		}
		if pick == nil {
			if s, ok := earliestRotating[last.Route()]; ok {
				pick = &s
			}
		}
	} else if len(rotatingOrder) > 0 {
		s := earliestRotating[rotatingOrder[0]]
		pick = &s
	}

	if pick != nil {
		if independent != nil && independent.DepartureAt.Before(pick.DepartureAt) {
			return *independent
		}
		return *pick
	}
	return slots[0]
}

// rankAlternatives orders the remaining slots by priority rank, departure and
// catalog position, capped at max.
func rankAlternatives(slots []models.Slot, best models.Slot, idx map[string]models.Route, max int) []models.Slot {
	if max <= 0 {
		return nil
	}
	rest := make([]models.Slot, 0, len(slots))
	for _, s := range slots {
		if s.ID == best.ID && s.RouteID == best.RouteID && s.DepartureAt.Equal(best.DepartureAt) {
			continue
		}
		rest = append(rest, s)
	}
	sort.SliceStable(rest, func(i, j int) bool {
		a, b := rest[i], rest[j]
		if ra, rb := a.Priority.Rank(), b.Priority.Rank(); ra != rb {
			return ra < rb
		}
		if !a.DepartureAt.Equal(b.DepartureAt) {
			return a.DepartureAt.Before(b.DepartureAt)
		}
		return idx[a.RouteID].Position < idx[b.RouteID].Position
	})
	if len(rest) > max {
		rest = rest[:max]
	}
	return rest
}
