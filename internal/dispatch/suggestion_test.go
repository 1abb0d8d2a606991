/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package dispatch

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/friendsincode/fleetrota/internal/config"
	"github.com/friendsincode/fleetrota/internal/models"
)

// noRegen keeps hand-seeded slots in place.
func noRegen(c *config.Tuning) { c.SlotRegenerationThreshold = 0 }

func suggest(t *testing.T, f *fixture, vehicleID, driverID string) *Suggestion {
	t.Helper()
	sug, err := f.engine.Suggestions.Suggest(context.Background(), vehicleID, driverID)
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	return sug
}

func TestSuggestAlternatesAfterLastRotationRoute(t *testing.T) {
	f := newFixture(t, at("06:00"), noRegen, rotating("A", 6, 1), rotating("B", 6, 2))
	f.addAssignment("h1", "v1", "d1", "A", at("05:00"), models.AssignmentCompleted)
	// An A slot departs before the only B slot.
	f.seedSlots(slot("A", at("06:05")), slot("B", at("06:11")), slot("A", at("06:17")))

	sug := suggest(t, f, "v1", "d1")
	if sug.Empty() {
		t.Fatalf("expected a suggestion")
	}
	if sug.Best.RouteID != "B" || !sug.Best.DepartureAt.Equal(at("06:11")) {
		t.Fatalf("best should be B at 06:11, got %s at %s", sug.Best.RouteID, sug.Best.DepartureAt)
	}
	if sug.Best.Priority != models.PriorityRotation {
		t.Fatalf("best tagged %s", sug.Best.Priority)
	}
	if len(sug.Alternatives) != 2 {
		t.Fatalf("expected 2 alternatives, got %d", len(sug.Alternatives))
	}
	for _, alt := range sug.Alternatives {
		if alt.RouteID != "A" || alt.Priority != models.PrioritySameRoute {
			t.Fatalf("unexpected alternative %+v", alt)
		}
	}
	if !sug.Alternatives[0].DepartureAt.Before(sug.Alternatives[1].DepartureAt) {
		t.Fatalf("alternatives not ordered by departure")
	}
}

func TestSuggestFallsBackToSameRouteWhenOtherIsEmpty(t *testing.T) {
	f := newFixture(t, at("06:00"), noRegen, rotating("A", 6, 1), rotating("B", 6, 2))
	f.addAssignment("h1", "v1", "d1", "A", at("05:00"), models.AssignmentCompleted)
	f.seedSlots(slot("A", at("06:05")), slot("A", at("06:17")))

	sug := suggest(t, f, "v1", "d1")
	if sug.Best == nil || sug.Best.RouteID != "A" || !sug.Best.DepartureAt.Equal(at("06:05")) {
		t.Fatalf("expected fallback to A at 06:05, got %+v", sug.Best)
	}
}

func TestSuggestWithoutHistoryPicksSoonestRotation(t *testing.T) {
	f := newFixture(t, at("06:00"), noRegen, rotating("A", 6, 1), rotating("B", 6, 2))
	f.seedSlots(slot("A", at("06:09")), slot("B", at("06:03")))

	sug := suggest(t, f, "v1", "d1")
	if sug.Best == nil || sug.Best.RouteID != "B" {
		t.Fatalf("expected soonest rotation slot B, got %+v", sug.Best)
	}
}

func TestSuggestIndependentOverride(t *testing.T) {
	f := newFixture(t, at("06:00"), noRegen, rotating("A", 6, 1), rotating("B", 6, 2), independent("X", 20, 3))
	f.seedSlots(slot("A", at("06:10")), slot("B", at("06:16")), slot("X", at("06:05")))

	sug := suggest(t, f, "v1", "d1")
	if sug.Best == nil || sug.Best.RouteID != "X" {
		t.Fatalf("earlier independent slot should win, got %+v", sug.Best)
	}
}

func TestSuggestIndependentAlreadyRunIsNotBest(t *testing.T) {
	f := newFixture(t, at("06:00"), noRegen, rotating("A", 6, 1), rotating("B", 6, 2), independent("X", 20, 3))
	f.addAssignment("h1", "v1", "d1", "X", at("04:00"), models.AssignmentCompleted)
	f.seedSlots(slot("A", at("06:10")), slot("B", at("06:16")), slot("X", at("06:05")))

	sug := suggest(t, f, "v1", "d1")
	if sug.Best == nil || sug.Best.RouteID != "A" {
		t.Fatalf("expected rotation pick A, got %+v", sug.Best)
	}
	found := false
	for _, alt := range sug.Alternatives {
		if alt.RouteID == "X" {
			found = alt.Priority == models.PriorityAny
		}
	}
	if !found {
		t.Fatalf("repeatable independent route should stay an alternative: %+v", sug.Alternatives)
	}
}

func TestSuggestExcludesOnceDailyRouteAlreadyRun(t *testing.T) {
	c := independent("C", 30, 3)
	c.OncePerDay = true
	f := newFixture(t, at("06:00"), noRegen, rotating("A", 6, 1), rotating("B", 6, 2), c)
	f.addAssignment("h1", "v1", "d1", "C", at("04:30"), models.AssignmentCompleted)
	f.seedSlots(slot("C", at("06:03")), slot("A", at("06:10")), slot("C", at("06:33")), slot("B", at("06:16")))

	sug := suggest(t, f, "v1", "d1")
	if sug.Best == nil || sug.Best.RouteID == "C" {
		t.Fatalf("once-daily C offered as best: %+v", sug.Best)
	}
	for _, alt := range sug.Alternatives {
		if alt.RouteID == "C" {
			t.Fatalf("once-daily C offered as alternative")
		}
	}

	// Another vehicle may still take C.
	other := suggest(t, f, "v2", "d2")
	if other.Best == nil || other.Best.RouteID != "C" {
		t.Fatalf("v2 should get C first, got %+v", other.Best)
	}
}

func TestSuggestExternalSlotTakesPartInAlternation(t *testing.T) {
	f := newFixture(t, at("06:00"), noRegen, rotating("A", 6, 1), rotating("B", 6, 2))
	f.addAssignment("h1", "v1", "d1", "A", at("05:30"), models.AssignmentCompleted)
	f.seedSlots(slot("A", at("06:10")))
	f.external.slots = []models.Slot{{ID: "ext-1", RouteID: "B", RouteName: "B", DepartureAt: at("06:20"), Priority: models.PriorityAny}}

	sug := suggest(t, f, "v1", "d1")
	if sug.Best == nil || sug.Best.RouteID != "B" || !sug.Best.DepartureAt.Equal(at("06:20")) {
		t.Fatalf("after an A turn the external B slot should win, got %+v", sug.Best)
	}
	if !sug.Best.External || sug.Best.Priority != models.PriorityAny {
		t.Fatalf("external slot should keep its ANY tag, got %+v", sug.Best)
	}
	if len(sug.Alternatives) != 1 || sug.Alternatives[0].RouteID != "A" {
		t.Fatalf("A should remain an alternative: %+v", sug.Alternatives)
	}
}

func TestSuggestFallsBackToEarliestWithoutRotation(t *testing.T) {
	f := newFixture(t, at("06:00"), noRegen, independent("I", 30, 1), independent("J", 30, 2))
	f.addAssignment("h1", "v1", "d1", "I", at("05:00"), models.AssignmentCompleted)
	f.seedSlots(slot("I", at("06:10")), slot("J", at("06:40")))

	sug := suggest(t, f, "v1", "d1")
	if sug.Best == nil || sug.Best.RouteID != "I" || !sug.Best.DepartureAt.Equal(at("06:10")) {
		t.Fatalf("fallback should be the earliest qualifying slot I at 06:10, got %+v", sug.Best)
	}
}

func TestSuggestExcludesOnceDailyFromExternalHistory(t *testing.T) {
	c := independent("C", 30, 3)
	c.OncePerDay = true
	f := newFixture(t, at("06:00"), noRegen, rotating("A", 6, 1), c)
	routeC := "C"
	f.external.assignments = []models.Assignment{{ID: "ext-9", VehicleID: "v1", RouteID: &routeC, DepartureAt: at("03:00"), Status: models.AssignmentPending}}
	f.seedSlots(slot("C", at("06:03")), slot("A", at("06:10")))

	sug := suggest(t, f, "v1", "d1")
	if sug.Best == nil || sug.Best.RouteID != "A" || len(sug.Alternatives) != 0 {
		t.Fatalf("external pre-assignment on C must exclude it: %+v", sug)
	}
}

func TestSuggestNoQualifyingSlot(t *testing.T) {
	c := independent("C", 30, 1)
	c.OncePerDay = true
	f := newFixture(t, at("06:00"), noRegen, c)
	f.addAssignment("h1", "v1", "d1", "C", at("04:30"), models.AssignmentCompleted)
	f.seedSlots(slot("C", at("06:30")))

	sug := suggest(t, f, "v1", "d1")
	if !sug.Empty() || len(sug.Alternatives) != 0 {
		t.Fatalf("expected no suggestion, got %+v", sug)
	}
}

func TestSuggestCapsAlternativesAndRanks(t *testing.T) {
	f := newFixture(t, at("06:00"), noRegen, rotating("A", 6, 1), rotating("B", 6, 2), independent("X", 10, 3))
	f.addAssignment("h1", "v1", "d1", "A", at("05:00"), models.AssignmentCompleted)
	f.seedSlots(
		slot("X", at("06:20")),
		slot("A", at("06:04")),
		slot("B", at("06:10")),
		slot("A", at("06:16")),
		slot("B", at("06:22")),
		slot("X", at("06:30")),
	)

	sug := suggest(t, f, "v1", "d1")
	if sug.Best == nil || sug.Best.RouteID != "B" || !sug.Best.DepartureAt.Equal(at("06:10")) {
		t.Fatalf("unexpected best %+v", sug.Best)
	}
	if len(sug.Alternatives) != 3 {
		t.Fatalf("alternatives not capped: %d", len(sug.Alternatives))
	}
	want := []struct {
		route string
		hhmm  string
	}{{"B", "06:22"}, {"A", "06:04"}, {"A", "06:16"}}
	for i, w := range want {
		alt := sug.Alternatives[i]
		if alt.RouteID != w.route || !alt.DepartureAt.Equal(at(w.hhmm)) {
			t.Fatalf("alternative %d = %s %s, want %s %s", i, alt.RouteID, alt.DepartureAt.Format("15:04"), w.route, w.hhmm)
		}
	}
}

func TestSuggestSkipsDriverConflicts(t *testing.T) {
	f := newFixture(t, at("06:00"), noRegen, rotating("A", 6, 1), rotating("B", 6, 2))
	// Driver d1 drives another vehicle at 06:20.
	f.addAssignment("h1", "v7", "d1", "B", at("06:20"), models.AssignmentPending)
	f.seedSlots(slot("A", at("06:05")), slot("A", at("06:55")))

	sug := suggest(t, f, "v1", "d1")
	if sug.Best == nil || !sug.Best.DepartureAt.Equal(at("06:55")) {
		t.Fatalf("06:05 is within the conflict margin of d1's 06:20 turn, got %+v", sug.Best)
	}
}

func TestSuggestRegeneratesEmptyInventory(t *testing.T) {
	f := newFixture(t, at("05:00"), nil, rotating("A", 6, 1), rotating("B", 6, 2))

	sug := suggest(t, f, "v1", "d1")
	if !sug.Rebuilt || sug.RebuildReason != ReasonInventoryEmpty {
		t.Fatalf("expected transparent generation, got rebuilt=%v reason=%q", sug.Rebuilt, sug.RebuildReason)
	}
	if sug.Best == nil || sug.Best.RouteID != "A" || !sug.Best.DepartureAt.Equal(at("05:02")) {
		t.Fatalf("expected A at 05:02, got %+v", sug.Best)
	}
}

func TestPickBestProperty(t *testing.T) {
	// For any last rotation route X, the best pick on the group is never X
	// while the other route has a slot.
	idx := routeIndex([]models.Route{rotating("X", 6, 1), rotating("Y", 6, 2)})
	for _, last := range []string{"X", "Y"} {
		other := "Y"
		if last == "Y" {
			other = "X"
		}
		for offset := 0; offset < 5; offset++ {
			lastRoute := last
			h := VehicleDayHistory{{ID: "h", VehicleID: "v", RouteID: &lastRoute, DepartureAt: at("05:00"), Status: models.AssignmentCompleted}}
			slots := []models.Slot{
				slot(last, at("06:00")),
				slot(last, at("06:05")),
			}
			slots = append(slots, slot(other, at("06:00").Add(time.Duration(offset*7)*time.Minute)))
			sort.SliceStable(slots, func(i, j int) bool { return slots[i].DepartureAt.Before(slots[j].DepartureAt) })
			best := pickBest(slots, idx, h)
			if best.RouteID != other {
				t.Fatalf("last=%s offset=%d picked %s", last, offset, best.RouteID)
			}

			// Same outcome when the other route's only slot is a pseudo-slot.
			for i := range slots {
				slots[i].External = slots[i].RouteID == other
			}
			if best := pickBest(slots, idx, h); best.RouteID != other {
				t.Fatalf("last=%s offset=%d external: picked %s", last, offset, best.RouteID)
			}
		}
	}
}
