/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/friendsincode/fleetrota/internal/clock"
	"github.com/friendsincode/fleetrota/internal/events"
	"github.com/friendsincode/fleetrota/internal/models"
	"github.com/friendsincode/fleetrota/internal/store"
	"github.com/friendsincode/fleetrota/internal/telemetry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// ClaimRequest asks to book a vehicle and driver on a route departure.
type ClaimRequest struct {
	VehicleID   string
	DriverID    string
	RouteID     string
	DepartureAt time.Time
	OperatorID  string
}

// AssignmentService validates and commits claims.
type AssignmentService struct {
	routes      RouteCatalog
	assignments AssignmentStore
	slots       SlotStore
	fleet       Fleet
	external    ExternalSchedule
	inventory   *Inventory
	tuning      TuningSource
	clock       clock.Clock
	loc         *time.Location
	publisher   events.Publisher
	logger      zerolog.Logger

	// Serializes conflict check and insert within this process. The partial
	// unique index covers other instances.
	mu sync.Mutex
}

// Claim runs the validation chain and commits the assignment. Rejections are
// *Error values; the first failing check wins.
func (s *AssignmentService) Claim(ctx context.Context, req ClaimRequest) (*models.Assignment, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "dispatch.claim",
		attribute.String("vehicle_id", req.VehicleID),
		attribute.String("route_id", req.RouteID),
	)
	a, err := s.claim(ctx, req)
	telemetry.EndSpan(span, err)

	if err != nil {
		kind := KindOf(err)
		if kind == "" {
			kind = KindPersistenceFailure
		}
		telemetry.ClaimsTotal.WithLabelValues(string(kind)).Inc()
		s.logger.Info().
			Str("vehicle_id", req.VehicleID).
			Str("driver_id", req.DriverID).
			Str("route_id", req.RouteID).
			Time("departure_at", req.DepartureAt).
			Str("kind", string(kind)).
			Err(err).
			Msg("claim rejected")
		s.publisher.Publish(events.EventClaimRejected, events.Payload{
			"vehicle_id":   req.VehicleID,
			"driver_id":    req.DriverID,
			"route_id":     req.RouteID,
			"departure_at": req.DepartureAt,
			"kind":         string(kind),
		})
		return nil, err
	}

	telemetry.ClaimsTotal.WithLabelValues("committed").Inc()
	s.publisher.Publish(events.EventAssignmentCommitted, events.Payload{
		"assignment_id": a.ID,
		"vehicle_id":    a.VehicleID,
		"driver_id":     a.DriverID,
		"route_id":      a.Route(),
		"departure_at":  a.DepartureAt,
	})
	return a, nil
}

func (s *AssignmentService) claim(ctx context.Context, req ClaimRequest) (*models.Assignment, error) {
	t := s.tuning.Get()
	now := s.clock.Now()
	departure := store.Instant(req.DepartureAt)

	if !departure.After(now) {
		return nil, reject(KindPastDeparture, "departure %s is not after %s", departure.Format(time.RFC3339), now.Format(time.RFC3339))
	}

	if departure.Before(claimCutoff(now, t.MinimumLeadTime(), t.LeadTolerance())) {
		rej := reject(KindInsufficientLeadTime, "departure needs at least %d minutes of lead time", t.MinimumLeadTimeMinutes-t.LeadToleranceMinutes)
		if _, err := s.inventory.Rebuild(ctx, req.VehicleID, ReasonLeadTime); err != nil {
			s.logger.Warn().Err(err).Msg("rebuild after lead-time rejection failed")
		} else {
			rej.Rebuilt = true
		}
		return nil, rej
	}

	route, err := s.checkEntities(ctx, req)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	day := clock.Day(departure, s.loc)
	live, err := dayAssignments(ctx, s.assignments, s.external, day)
	if err != nil {
		return nil, err
	}
	if err := checkConflicts(live, req, departure, t.ConflictCheckEnabled, t.ConflictMargin(), t.MatchWindow()); err != nil {
		return nil, err
	}

	routeID := route.ID
	a := &models.Assignment{
		ID:          uuid.NewString(),
		VehicleID:   req.VehicleID,
		DriverID:    req.DriverID,
		RouteID:     &routeID,
		RouteName:   route.Name,
		DepartureAt: departure,
		ServiceDay:  day,
		Status:      models.AssignmentPending,
		CreatedAt:   store.Instant(now),
	}
	if req.OperatorID != "" {
		op := req.OperatorID
		a.OperatorID = &op
	}

	if err := s.assignments.Create(ctx, a); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, &Error{Kind: KindScheduleConflict, Detail: "route departure already booked", Err: err}
		}
		return nil, persistence("create assignment", err)
	}

	s.logger.Info().
		Str("assignment_id", a.ID).
		Str("vehicle_id", a.VehicleID).
		Str("route", a.RouteName).
		Time("departure_at", a.DepartureAt).
		Msg("assignment committed")

	s.retireSlot(ctx, a, t.MatchWindow())
	return a, nil
}

func (s *AssignmentService) checkEntities(ctx context.Context, req ClaimRequest) (*models.Route, error) {
	vehicle, err := s.fleet.Vehicle(ctx, req.VehicleID)
	if err != nil {
		return nil, persistence("get vehicle", err)
	}
	if vehicle == nil {
		return nil, &Error{Kind: KindEntityNotFound, Entity: "vehicle", Detail: "vehicle " + req.VehicleID}
	}
	if !vehicle.Active {
		return nil, &Error{Kind: KindEntityInactive, Entity: "vehicle", Detail: "vehicle " + vehicle.Plate}
	}

	driver, err := s.fleet.Driver(ctx, req.DriverID)
	if err != nil {
		return nil, persistence("get driver", err)
	}
	if driver == nil {
		return nil, &Error{Kind: KindEntityNotFound, Entity: "driver", Detail: "driver " + req.DriverID}
	}
	if !driver.Active {
		return nil, &Error{Kind: KindEntityInactive, Entity: "driver", Detail: "driver " + driver.Name}
	}

	route, err := s.routes.Get(ctx, req.RouteID)
	if err != nil {
		return nil, persistence("get route", err)
	}
	if route == nil {
		return nil, &Error{Kind: KindEntityNotFound, Entity: "route", Detail: "route " + req.RouteID}
	}
	if !route.Active {
		return nil, &Error{Kind: KindEntityInactive, Entity: "route", Detail: "route " + route.Name}
	}
	return route, nil
}

// checkConflicts rejects a departure already booked on the route by anyone
// and, when enabled, one too close to the vehicle's or driver's other turns.
func checkConflicts(live []models.Assignment, req ClaimRequest, departure time.Time, marginEnabled bool, margin, match time.Duration) error {
	if hit := nearest(live, departure, match, func(a models.Assignment) bool { return a.Route() == req.RouteID }); hit != nil {
		return &Error{
			Kind:       KindScheduleConflict,
			Detail:     "route departure already booked at " + hit.DepartureAt.Format(time.RFC3339),
			ConflictID: hit.ID,
		}
	}
	if !marginEnabled {
		return nil
	}
	if hit := nearest(live, departure, margin, func(a models.Assignment) bool { return a.VehicleID == req.VehicleID }); hit != nil {
		return &Error{
			Kind:       KindScheduleConflict,
			Entity:     "vehicle",
			Detail:     "vehicle already has a turn at " + hit.DepartureAt.Format(time.RFC3339),
			ConflictID: hit.ID,
		}
	}
	if hit := nearest(live, departure, margin, func(a models.Assignment) bool { return a.DriverID != "" && a.DriverID == req.DriverID }); hit != nil {
		return &Error{
			Kind:       KindScheduleConflict,
			Entity:     "driver",
			Detail:     "driver already has a turn at " + hit.DepartureAt.Format(time.RFC3339),
			ConflictID: hit.ID,
		}
	}
	return nil
}

// retireSlot marks the claimed slot inactive after commit. The assignment is
// authoritative, so failures here are reported and never rolled back.
func (s *AssignmentService) retireSlot(ctx context.Context, a *models.Assignment, window time.Duration) {
	n, err := s.slots.DeactivateMatching(ctx, a.Route(), a.DepartureAt, window)
	if err == nil && n > 0 {
		return
	}

	telemetry.SlotDeactivationMissesTotal.Inc()
	ev := s.logger.Warn()
	if err != nil {
		ev = ev.Err(err)
	}
	ev.Str("assignment_id", a.ID).
		Str("route_id", a.Route()).
		Time("departure_at", a.DepartureAt).
		Int64("affected", n).
		Msg("claimed slot not deactivated")

	payload := events.Payload{
		"assignment_id": a.ID,
		"route_id":      a.Route(),
		"departure_at":  a.DepartureAt,
		"affected":      n,
	}
	if err != nil {
		payload["error"] = err.Error()
	}
	s.publisher.Publish(events.EventSlotDeactivationMissed, payload)
}

// Cancel removes an assignment administratively.
func (s *AssignmentService) Cancel(ctx context.Context, assignmentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.assignments.Get(ctx, assignmentID)
	if err != nil {
		return persistence("get assignment", err)
	}
	if a == nil {
		return &Error{Kind: KindEntityNotFound, Entity: "assignment", Detail: "assignment " + assignmentID}
	}
	if err := s.assignments.Delete(ctx, assignmentID); err != nil {
		return persistence("delete assignment", err)
	}

	s.logger.Info().Str("assignment_id", a.ID).Str("vehicle_id", a.VehicleID).Msg("assignment removed")
	s.publisher.Publish(events.EventAssignmentCancelled, events.Payload{
		"assignment_id": a.ID,
		"vehicle_id":    a.VehicleID,
		"route_id":      a.Route(),
		"departure_at":  a.DepartureAt,
	})
	return nil
}
