/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/friendsincode/fleetrota/internal/config"
	"github.com/friendsincode/fleetrota/internal/events"
	"github.com/friendsincode/fleetrota/internal/models"
)

func departuresOf(slots []models.Slot, routeID string) []time.Time {
	var out []time.Time
	for _, s := range slots {
		if s.RouteID == routeID {
			out = append(out, s.DepartureAt)
		}
	}
	return out
}

func assertNoDuplicates(t *testing.T, slots []models.Slot, window time.Duration) {
	t.Helper()
	last := map[string]time.Time{}
	for _, s := range slots {
		if prev, ok := last[s.RouteID]; ok && absDuration(s.DepartureAt.Sub(prev)) < window {
			t.Fatalf("duplicate slots for %s at %s and %s", s.RouteID, prev, s.DepartureAt)
		}
		last[s.RouteID] = s.DepartureAt
	}
}

func TestGenerateFiveAMRotationScenario(t *testing.T) {
	f := newFixture(t, at("05:00"), nil, rotating("A", 6, 1), rotating("B", 6, 2))
	regenerated := f.bus.Subscribe(events.EventSlotsRegenerated)

	batch, err := f.engine.Generator.Generate(context.Background(), f.clock.Now(), "")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if batch.PerRoute["A"] != 10 || batch.PerRoute["B"] != 10 {
		t.Fatalf("expected 10 slots per route, got %v", batch.PerRoute)
	}
	first := batch.Slots[0]
	if first.DepartureAt.Before(at("05:02")) || first.DepartureAt.After(at("05:08")) {
		t.Fatalf("first slot at %s, want within 05:02-05:08", first.DepartureAt)
	}
	if batch.RotationStart != first.RouteID {
		t.Fatalf("rotation start %q, first slot %q", batch.RotationStart, first.RouteID)
	}
	for i := 1; i < len(batch.Slots); i++ {
		gap := batch.Slots[i].DepartureAt.Sub(batch.Slots[i-1].DepartureAt)
		if gap != 6*time.Minute {
			t.Fatalf("slot %d is %s after the previous one, want 6m", i, gap)
		}
		if batch.Slots[i].RouteID == batch.Slots[i-1].RouteID {
			t.Fatalf("rotation did not alternate at slot %d", i)
		}
	}
	for _, s := range batch.Slots {
		if s.Priority != models.PriorityRotation {
			t.Fatalf("slot %s tagged %s without history", s.RouteID, s.Priority)
		}
	}

	if got := len(f.activeSlots()); got != 20 {
		t.Fatalf("persisted %d slots, want 20", got)
	}
	select {
	case p := <-regenerated:
		if p["slots"] != 20 {
			t.Fatalf("unexpected event payload: %v", p)
		}
	default:
		t.Fatalf("no regeneration event")
	}
}

func TestGenerateAlternatesAwayFromLatestAssignment(t *testing.T) {
	f := newFixture(t, at("05:20"), nil, rotating("A", 6, 1), rotating("B", 6, 2))
	f.addAssignment("a1", "v9", "d9", "A", at("05:10"), models.AssignmentPending)

	batch, err := f.engine.Generator.Generate(context.Background(), f.clock.Now(), "")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if batch.RotationStart != "B" {
		t.Fatalf("rotation should start on B after an A turn, got %q", batch.RotationStart)
	}
	if !batch.Slots[0].DepartureAt.Equal(at("05:22")) {
		t.Fatalf("lattice should continue from the last turn, first slot at %s", batch.Slots[0].DepartureAt)
	}
}

func TestGenerateIgnoresCancelledAssignments(t *testing.T) {
	f := newFixture(t, at("05:20"), nil, rotating("A", 6, 1), rotating("B", 6, 2))
	f.addAssignment("a1", "v9", "d9", "B", at("05:30"), models.AssignmentCancelled)

	batch, err := f.engine.Generator.Generate(context.Background(), f.clock.Now(), "")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if batch.RotationStart != "A" || !batch.Slots[0].DepartureAt.Equal(at("05:22")) {
		t.Fatalf("cancelled turn must not steer the lattice: %s at %s", batch.RotationStart, batch.Slots[0].DepartureAt)
	}
}

func TestGenerateSkipsCollisionWindowAroundLaterTurn(t *testing.T) {
	f := newFixture(t, at("05:00"), nil, rotating("A", 3, 1), rotating("B", 3, 2))
	f.addAssignment("a1", "v9", "d9", "A", at("05:10"), models.AssignmentPending)

	batch, err := f.engine.Generator.Generate(context.Background(), f.clock.Now(), "")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if batch.Slots[0].RouteID != "A" || !batch.Slots[0].DepartureAt.Equal(at("05:02")) {
		t.Fatalf("a later turn must not push the lattice past now+lead, got %s at %s", batch.Slots[0].RouteID, batch.Slots[0].DepartureAt)
	}
	for _, s := range batch.Slots {
		if absDuration(s.DepartureAt.Sub(at("05:10"))) < 5*time.Minute {
			t.Fatalf("slot %s at %s collides with the 05:10 turn", s.RouteID, s.DepartureAt)
		}
	}
	if batch.PerRoute["A"] != 10 || batch.PerRoute["B"] != 10 {
		t.Fatalf("expected full quota on both routes, got %v", batch.PerRoute)
	}
	if a := departuresOf(batch.Slots, "A"); len(a) < 2 || !a[1].Equal(at("05:17")) {
		t.Fatalf("A should resume after the collision window, got %v", a)
	}
}

func TestGenerateLateExternalTurnKeepsRotation(t *testing.T) {
	f := newFixture(t, at("05:00"), nil, rotating("A", 6, 1), rotating("B", 6, 2))
	routeA := "A"
	f.external.assignments = []models.Assignment{{
		ID: "ext-1", VehicleID: "v5", RouteID: &routeA, DepartureAt: at("22:00"), Status: models.AssignmentPending,
	}}

	batch, err := f.engine.Generator.Generate(context.Background(), f.clock.Now(), "")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if batch.PerRoute["A"] != 10 || batch.PerRoute["B"] != 10 {
		t.Fatalf("a 22:00 booking must not empty the morning rotation, got %v", batch.PerRoute)
	}
	if batch.RotationStart != "A" || !batch.Slots[0].DepartureAt.Equal(at("05:02")) {
		t.Fatalf("rotation should open at now+lead, got %s at %s", batch.RotationStart, batch.Slots[0].DepartureAt)
	}
}

func TestGenerateIndependentRoutesAnchorOnOwnHistory(t *testing.T) {
	f := newFixture(t, at("06:00"), nil, independent("X", 20, 1), independent("Y", 15, 2), rotating("A", 6, 3), rotating("B", 6, 4))
	f.addAssignment("x1", "v1", "d1", "X", at("05:30"), models.AssignmentCompleted)
	f.addAssignment("y1", "v3", "d3", "Y", at("22:00"), models.AssignmentPending)
	f.addAssignment("a1", "v2", "d2", "A", at("05:40"), models.AssignmentPending)

	batch, err := f.engine.Generator.Generate(context.Background(), f.clock.Now(), "")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	x := departuresOf(batch.Slots, "X")
	if len(x) != 10 || !x[0].Equal(at("06:10")) {
		t.Fatalf("X should continue from its own 05:30 turn, got %v", x)
	}
	y := departuresOf(batch.Slots, "Y")
	if len(y) != 10 || !y[0].Equal(at("06:02")) {
		t.Fatalf("Y should start at now+lead despite its 22:00 turn, got %v", y)
	}
	for i := 1; i < len(y); i++ {
		if y[i].Sub(y[i-1]) != 15*time.Minute {
			t.Fatalf("Y not stepped by its frequency: %v", y)
		}
	}
	for _, s := range batch.Slots {
		if (s.RouteID == "X" || s.RouteID == "Y") && s.Priority != models.PriorityAny {
			t.Fatalf("independent slot tagged %s", s.Priority)
		}
	}
}

func TestGenerateStopsAtEndOfDay(t *testing.T) {
	f := newFixture(t, at("23:30"), nil, rotating("A", 6, 1), rotating("B", 6, 2), independent("X", 20, 3))

	batch, err := f.engine.Generator.Generate(context.Background(), f.clock.Now(), "")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	end := at("00:00").Add(24 * time.Hour)
	for _, s := range batch.Slots {
		if !s.DepartureAt.Before(end) {
			t.Fatalf("slot %s at %s spills into the next day", s.RouteID, s.DepartureAt)
		}
		if s.ServiceDay != testDay {
			t.Fatalf("slot stamped with day %q", s.ServiceDay)
		}
	}
	if batch.PerRoute["A"] != 3 || batch.PerRoute["B"] != 2 || batch.PerRoute["X"] != 2 {
		t.Fatalf("unexpected late-day counts: %v", batch.PerRoute)
	}
}

func TestGenerateIsIdempotent(t *testing.T) {
	f := newFixture(t, at("07:13"), nil, rotating("A", 6, 1), rotating("B", 8, 2), rotating("C", 10, 3), independent("X", 25, 4))
	f.addAssignment("a1", "v1", "d1", "B", at("07:00"), models.AssignmentCompleted)
	ctx := context.Background()

	first, err := f.engine.Generator.Generate(ctx, f.clock.Now(), "v1")
	if err != nil {
		t.Fatalf("first generate: %v", err)
	}
	second, err := f.engine.Generator.Generate(ctx, f.clock.Now(), "v1")
	if err != nil {
		t.Fatalf("second generate: %v", err)
	}

	if first.RotationStart != second.RotationStart {
		t.Fatalf("alternation start moved: %q vs %q", first.RotationStart, second.RotationStart)
	}
	for routeID, n := range first.PerRoute {
		if second.PerRoute[routeID] != n {
			t.Fatalf("route %s count %d vs %d", routeID, n, second.PerRoute[routeID])
		}
	}
	if len(f.activeSlots()) != len(second.Slots) {
		t.Fatalf("second rebuild must replace, not append")
	}
}

func TestGenerateNeverEmitsDuplicates(t *testing.T) {
	cases := []struct {
		name   string
		now    string
		routes []models.Route
	}{
		{"two rotating", "05:00", []models.Route{rotating("A", 6, 1), rotating("B", 6, 2)}},
		{"uneven rotating", "09:41", []models.Route{rotating("A", 1, 1), rotating("B", 2, 2), rotating("C", 1, 3)}},
		{"mixed", "12:00", []models.Route{rotating("A", 4, 1), rotating("B", 4, 2), independent("X", 1, 3)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, at(tc.now), func(c *config.Tuning) { c.MatchWindowMinutes = 2 }, tc.routes...)
			batch, err := f.engine.Generator.Generate(context.Background(), f.clock.Now(), "")
			if err != nil {
				t.Fatalf("generate: %v", err)
			}
			byRoute := map[string][]models.Slot{}
			for _, s := range f.activeSlots() {
				byRoute[s.RouteID] = append(byRoute[s.RouteID], s)
			}
			for _, slots := range byRoute {
				assertNoDuplicates(t, slots, 2*time.Minute)
			}
			if len(batch.Slots) == 0 {
				t.Fatalf("no slots generated")
			}
		})
	}
}

func TestGeneratePurgesStaleSlots(t *testing.T) {
	f := newFixture(t, at("10:00"), nil, rotating("A", 6, 1), rotating("B", 6, 2))
	ctx := context.Background()
	if err := f.slots.Slots.ReplaceForDay(ctx, "2024-12-31", []models.Slot{{ID: "old", RouteID: "A", DepartureAt: at("08:00").Add(-24 * time.Hour), Active: true}}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	batch, err := f.engine.Generator.Generate(ctx, f.clock.Now(), "")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if batch.Purged != 1 {
		t.Fatalf("expected 1 purged slot, got %d", batch.Purged)
	}
	left, err := f.slots.ListActiveForDay(ctx, "2024-12-31")
	if err != nil || len(left) != 0 {
		t.Fatalf("yesterday's slots survived: %v err=%v", left, err)
	}
}

func TestRotationOrderTieBreaks(t *testing.T) {
	group := []models.Route{rotating("C", 6, 3), rotating("A", 6, 1), rotating("B", 6, 2)}

	order := rotationOrder(group, nil, "")
	if order[0].ID != "A" || order[1].ID != "B" || order[2].ID != "C" {
		t.Fatalf("untouched routes must follow catalog order: %v", order)
	}

	order = rotationOrder(group, nil, "A")
	if order[0].ID != "B" || order[2].ID != "A" {
		t.Fatalf("hint route should go last among ties: %v", order)
	}

	used := map[string]time.Time{"A": at("06:00"), "B": at("05:00")}
	order = rotationOrder(group, used, "")
	if order[0].ID != "C" || order[1].ID != "B" || order[2].ID != "A" {
		t.Fatalf("expected never-used then least recently used: %v", order)
	}
}

func TestDedupeKeepsFirstWithinWindow(t *testing.T) {
	slots := []models.Slot{
		slot("A", at("05:00")),
		slot("A", at("05:00").Add(30*time.Second)),
		slot("B", at("05:00")),
		slot("A", at("05:06")),
	}
	out := dedupe(slots, time.Minute)
	if len(out) != 3 {
		t.Fatalf("expected 3 slots, got %d", len(out))
	}
	if !out[0].DepartureAt.Equal(at("05:00")) || out[0].RouteID != "A" || out[1].RouteID != "B" {
		t.Fatalf("unexpected order: %+v", out)
	}
}
