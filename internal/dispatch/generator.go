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
	"github.com/friendsincode/fleetrota/internal/events"
	"github.com/friendsincode/fleetrota/internal/models"
	"github.com/friendsincode/fleetrota/internal/telemetry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

const tracerName = "fleetrota/dispatch"

// Batch is one generated slot lattice for a service day.
type Batch struct {
	Day      string
	Slots    []models.Slot
	PerRoute map[string]int

	// RotationStart is the route of the first rotating slot, "" when the
	// rotation group produced nothing.
	RotationStart string

	Purged int64
}

// SlotGenerator materializes a day's claimable departures.
type SlotGenerator struct {
	routes      RouteCatalog
	slots       SlotStore
	assignments AssignmentStore
	external    ExternalSchedule
	tuning      TuningSource
	loc         *time.Location
	publisher   events.Publisher
	logger      zerolog.Logger
}

// Plan computes the lattice for now's service day without writing anything.
// vehicleHint only affects priority tags and rotation tie-breaks.
func (g *SlotGenerator) Plan(ctx context.Context, now time.Time, vehicleHint string) (Batch, error) {
	day := clock.Day(now, g.loc)
	_, dayEnd, err := clock.DayBounds(day, g.loc)
	if err != nil {
		return Batch{}, err
	}

	routes, err := g.routes.ListActive(ctx)
	if err != nil {
		return Batch{}, persistence("list routes", err)
	}
	live, err := dayAssignments(ctx, g.assignments, g.external, day)
	if err != nil {
		return Batch{}, err
	}

	t := g.tuning.Get()
	idx := routeIndex(routes)
	history := HistoryFor(vehicleHint, live)
	hintRoute := ""
	if last := history.LastRotating(idx); last != nil {
		hintRoute = last.Route()
	}

	in := latticeInput{
		routes:    routes,
		live:      live,
		earliest:  ceilMinute(now.Add(t.MinimumLeadTime())),
		dayEnd:    dayEnd,
		quota:     t.PerRouteQuota,
		collision: t.CollisionWindow(),
		hintRoute: hintRoute,
	}
	slots := buildRotating(in)
	rotationStart := ""
	if len(slots) > 0 {
		rotationStart = slots[0].RouteID
	}
	slots = append(slots, buildIndependent(in)...)
	slots = dedupe(slots, t.MatchWindow())

	NewFairnessEvaluator(routes, now).Tag(slots, history)

	batch := Batch{Day: day, PerRoute: make(map[string]int), RotationStart: rotationStart}
	for i := range slots {
		slots[i].ID = uuid.NewString()
		slots[i].ServiceDay = day
		slots[i].Active = true
		batch.PerRoute[slots[i].RouteID]++
	}
	batch.Slots = slots
	return batch, nil
}

// Generate purges stale inventory and replaces the day's slots with a fresh
// lattice.
func (g *SlotGenerator) Generate(ctx context.Context, now time.Time, vehicleHint string) (Batch, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "dispatch.generate",
		attribute.String("vehicle_hint", vehicleHint))
	started := time.Now()

	batch, err := g.generate(ctx, now, vehicleHint)
	telemetry.EndSpan(span, err)
	if err != nil {
		return Batch{}, err
	}

	telemetry.SlotGenerationDuration.Observe(time.Since(started).Seconds())
	names := make(map[string]string, len(batch.Slots))
	for _, s := range batch.Slots {
		names[s.RouteID] = s.RouteName
	}
	for routeID, n := range batch.PerRoute {
		telemetry.SlotsGeneratedTotal.WithLabelValues(names[routeID]).Add(float64(n))
	}

	g.logger.Info().
		Str("day", batch.Day).
		Int("slots", len(batch.Slots)).
		Int("routes", len(batch.PerRoute)).
		Str("rotation_start", batch.RotationStart).
		Int64("purged", batch.Purged).
		Msg("slot inventory regenerated")

	g.publisher.Publish(events.EventSlotsRegenerated, events.Payload{
		"day":            batch.Day,
		"slots":          len(batch.Slots),
		"rotation_start": batch.RotationStart,
	})
	return batch, nil
}

func (g *SlotGenerator) generate(ctx context.Context, now time.Time, vehicleHint string) (Batch, error) {
	day := clock.Day(now, g.loc)

	old, err := g.slots.PurgeBefore(ctx, day)
	if err != nil {
		return Batch{}, persistence("purge old slots", err)
	}
	past, err := g.slots.PurgePast(ctx, now)
	if err != nil {
		return Batch{}, persistence("purge past slots", err)
	}

	batch, err := g.Plan(ctx, now, vehicleHint)
	if err != nil {
		return Batch{}, err
	}
	batch.Purged = old + past

	if err := g.slots.ReplaceForDay(ctx, batch.Day, batch.Slots); err != nil {
		return Batch{}, persistence("replace slots", err)
	}
	return batch, nil
}

type latticeInput struct {
	routes    []models.Route
	live      []models.Assignment
	earliest  time.Time
	dayEnd    time.Time
	quota     int
	collision time.Duration
	hintRoute string
}

// buildRotating walks one shared cursor across the rotation group. Each
// emission advances the cursor by the emitted route's frequency and hands the
// next step to the following route in least-recently-used order. Only turns
// departing at or before earliest anchor the cursor and the alternation;
// later turns are stepped around through the collision window.
func buildRotating(in latticeInput) []models.Slot {
	var group []models.Route
	for _, r := range in.routes {
		if r.Rotating() && r.Frequency() > 0 {
			group = append(group, r)
		}
	}
	if len(group) == 0 || in.quota <= 0 {
		return nil
	}
	idx := routeIndex(group)

	var groupLive []models.Assignment
	lastUse := make(map[string]time.Time)
	var latest *models.Assignment
	for i, a := range in.live {
		if _, ok := idx[a.Route()]; !ok || !a.Live() {
			continue
		}
		groupLive = append(groupLive, a)
		if a.DepartureAt.After(in.earliest) {
			continue
		}
		if prev, ok := lastUse[a.Route()]; !ok || a.DepartureAt.After(prev) {
			lastUse[a.Route()] = a.DepartureAt
		}
		if latest == nil || a.DepartureAt.After(latest.DepartureAt) {
			latest = &in.live[i]
		}
	}

	cursor := in.earliest
	if latest != nil {
		step := idx[latest.Route()].Frequency()
		cursor = latest.DepartureAt.Add(step)
		for cursor.Before(in.earliest) {
			cursor = cursor.Add(step)
		}
	}

	order := rotationOrder(group, lastUse, in.hintRoute)
	count := make(map[string]int, len(order))
	next := 0
	var out []models.Slot
	for cursor.Before(in.dayEnd) {
		var route *models.Route
		for k := 0; k < len(order); k++ {
			cand := (next + k) % len(order)
			if count[order[cand].ID] < in.quota {
				route = &order[cand]
				next = cand
				break
			}
		}
		if route == nil {
			break
		}
		if nearest(groupLive, cursor, in.collision, anyAssignment) != nil {
			cursor = cursor.Add(route.Frequency())
			continue
		}
		out = append(out, newSlot(*route, cursor))
		count[route.ID]++
		cursor = cursor.Add(route.Frequency())
		next = (next + 1) % len(order)
	}
	return out
}

// rotationOrder puts never-used routes first, then the least recently used.
// Ties avoid the hint vehicle's last rotating route, then follow catalog order.
func rotationOrder(group []models.Route, lastUse map[string]time.Time, hintRoute string) []models.Route {
	order := append([]models.Route(nil), group...)
	sort.SliceStable(order, func(i, j int) bool {
		a, b := order[i], order[j]
		ua, usedA := lastUse[a.ID]
		ub, usedB := lastUse[b.ID]
		if usedA != usedB {
			return !usedA
		}
		if usedA && !ua.Equal(ub) {
			return ua.Before(ub)
		}
		if ha, hb := a.ID == hintRoute, b.ID == hintRoute; ha != hb {
			return !ha
		}
		if a.Position != b.Position {
			return a.Position < b.Position
		}
		return a.Name < b.Name
	})
	return order
}

// buildIndependent steps each independent route by its own frequency from
// max(earliest, own last departure + frequency), where the last departure is
// the latest one at or before earliest. Only same-route assignments collide.
func buildIndependent(in latticeInput) []models.Slot {
	var out []models.Slot
	for _, r := range in.routes {
		step := r.Frequency()
		if r.Rotating() || step <= 0 {
			continue
		}
		routeID := r.ID
		sameRoute := func(a models.Assignment) bool { return a.Route() == routeID }

		cursor := in.earliest
		var last *models.Assignment
		for i := range in.live {
			if in.live[i].DepartureAt.After(in.earliest) {
				continue
			}
			if sameRoute(in.live[i]) && in.live[i].Live() && (last == nil || in.live[i].DepartureAt.After(last.DepartureAt)) {
				last = &in.live[i]
			}
		}
		if last != nil {
			cursor = last.DepartureAt.Add(step)
			for cursor.Before(in.earliest) {
				cursor = cursor.Add(step)
			}
		}

		for n := 0; n < in.quota && cursor.Before(in.dayEnd); {
			if nearest(in.live, cursor, in.collision, sameRoute) != nil {
				cursor = cursor.Add(step)
				continue
			}
			out = append(out, newSlot(r, cursor))
			n++
			cursor = cursor.Add(step)
		}
	}
	return out
}

// dedupe keeps the first of any same-route slots closer than window and
// returns the batch ordered by departure.
func dedupe(slots []models.Slot, window time.Duration) []models.Slot {
	sort.SliceStable(slots, func(i, j int) bool {
		if slots[i].RouteID != slots[j].RouteID {
			return slots[i].RouteID < slots[j].RouteID
		}
		return slots[i].DepartureAt.Before(slots[j].DepartureAt)
	})
	out := slots[:0]
	for _, s := range slots {
		if len(out) > 0 {
			prev := out[len(out)-1]
			if prev.RouteID == s.RouteID && s.DepartureAt.Sub(prev.DepartureAt) < window {
				continue
			}
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].DepartureAt.Equal(out[j].DepartureAt) {
			return out[i].DepartureAt.Before(out[j].DepartureAt)
		}
		return out[i].RouteID < out[j].RouteID
	})
	return out
}

func newSlot(r models.Route, at time.Time) models.Slot {
	return models.Slot{
		RouteID:          r.ID,
		RouteName:        r.Name,
		DepartureAt:      at.UTC(),
		FrequencyMinutes: r.FrequencyMinutes,
	}
}

func anyAssignment(models.Assignment) bool { return true }

func ceilMinute(t time.Time) time.Time {
	c := t.Truncate(time.Minute)
	if c.Before(t) {
		c = c.Add(time.Minute)
	}
	return c
}
