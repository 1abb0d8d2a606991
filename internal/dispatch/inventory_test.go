/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/friendsincode/fleetrota/internal/models"
)

func TestEnsureBuildsEmptyInventoryOnce(t *testing.T) {
	f := newFixture(t, at("05:00"), nil, rotating("A", 6, 1), rotating("B", 6, 2))
	ctx := context.Background()

	rebuilt, reason, err := f.engine.Inventory.Ensure(ctx, "")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if !rebuilt || reason != ReasonInventoryEmpty {
		t.Fatalf("expected rebuild for empty inventory, got %v %q", rebuilt, reason)
	}

	rebuilt, _, err = f.engine.Inventory.Ensure(ctx, "")
	if err != nil {
		t.Fatalf("second ensure: %v", err)
	}
	if rebuilt {
		t.Fatalf("full inventory must not be rebuilt")
	}
	if f.slots.Replaces() != 1 {
		t.Fatalf("expected exactly one rebuild, got %d", f.slots.Replaces())
	}
}

func TestEnsureRebuildsRouteBelowThreshold(t *testing.T) {
	f := newFixture(t, at("05:00"), nil, rotating("A", 6, 1), rotating("B", 6, 2))
	ctx := context.Background()

	if _, _, err := f.engine.Inventory.Ensure(ctx, ""); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	// Claim six A departures elsewhere, leaving four.
	for _, s := range f.activeSlots() {
		if s.RouteID != "A" {
			continue
		}
		if n, _ := f.slots.DeactivateMatching(ctx, "A", s.DepartureAt, time.Minute); n != 1 {
			t.Fatalf("deactivate %s: %d rows", s.DepartureAt, n)
		}
		if len(departuresOf(f.activeSlots(), "A")) == 4 {
			break
		}
	}

	rebuilt, reason, err := f.engine.Inventory.Ensure(ctx, "")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if !rebuilt || reason != ReasonBelowThreshold {
		t.Fatalf("expected below-threshold rebuild, got %v %q", rebuilt, reason)
	}
	if got := len(departuresOf(f.activeSlots(), "A")); got != 10 {
		t.Fatalf("A should be back to quota, has %d", got)
	}
}

func TestEnsureRebuildsAsDeparturesPass(t *testing.T) {
	f := newFixture(t, at("05:00"), nil, rotating("A", 6, 1), rotating("B", 6, 2))
	ctx := context.Background()

	if rebuilt, _, err := f.engine.Inventory.Ensure(ctx, ""); err != nil || !rebuilt {
		t.Fatalf("first ensure: rebuilt=%v err=%v", rebuilt, err)
	}

	// 05:40: six A departures are still ahead.
	f.clock.Advance(40 * time.Minute)
	if rebuilt, reason, err := f.engine.Inventory.Ensure(ctx, ""); err != nil || rebuilt {
		t.Fatalf("ensure at 05:40: rebuilt=%v reason=%q err=%v", rebuilt, reason, err)
	}

	// 06:10: only four A departures remain claimable.
	f.clock.Advance(30 * time.Minute)
	rebuilt, reason, err := f.engine.Inventory.Ensure(ctx, "")
	if err != nil {
		t.Fatalf("ensure at 06:10: %v", err)
	}
	if !rebuilt || reason != ReasonBelowThreshold {
		t.Fatalf("expected below-threshold rebuild, got %v %q", rebuilt, reason)
	}
	if f.slots.Replaces() != 2 {
		t.Fatalf("expected two rebuilds, got %d", f.slots.Replaces())
	}
	for _, s := range f.activeSlots() {
		if s.DepartureAt.Before(at("06:12")) {
			t.Fatalf("slot %s at %s survived the rebuild", s.RouteID, s.DepartureAt)
		}
	}
	if got := len(departuresOf(f.activeSlots(), "A")); got != 10 {
		t.Fatalf("A should be back to quota, has %d", got)
	}
}

func TestEnsureDoesNotChurnLateInTheDay(t *testing.T) {
	f := newFixture(t, at("23:50"), nil, rotating("A", 6, 1), rotating("B", 6, 2))
	ctx := context.Background()

	if rebuilt, _, err := f.engine.Inventory.Ensure(ctx, ""); err != nil || !rebuilt {
		t.Fatalf("first ensure: rebuilt=%v err=%v", rebuilt, err)
	}
	for i := 0; i < 3; i++ {
		rebuilt, reason, err := f.engine.Inventory.Ensure(ctx, "")
		if err != nil {
			t.Fatalf("ensure: %v", err)
		}
		if rebuilt {
			t.Fatalf("late-day inventory rebuilt again (%s)", reason)
		}
	}
	if f.slots.Replaces() != 1 {
		t.Fatalf("expected one rebuild, got %d", f.slots.Replaces())
	}
}

func TestEnsureSkipsWhenDayIsOver(t *testing.T) {
	f := newFixture(t, at("23:59"), nil, rotating("A", 6, 1), rotating("B", 6, 2))

	rebuilt, _, err := f.engine.Inventory.Ensure(context.Background(), "")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if rebuilt || f.slots.Replaces() != 0 {
		t.Fatalf("nothing fits before midnight, no rebuild expected")
	}
}

func TestListClaimableAppliesLeadTimeAndMergesExternal(t *testing.T) {
	f := newFixture(t, at("05:00"), nil, rotating("A", 6, 1), rotating("B", 6, 2))
	f.seedSlots(
		slot("A", at("05:00").Add(30*time.Second)), // inside lead - tolerance
		slot("A", at("05:01")),                     // exactly at the cutoff
		slot("B", at("05:07")),
	)
	f.external.slots = []models.Slot{
		{ID: "ext-1", RouteID: "B", RouteName: "B", DepartureAt: at("05:04"), Priority: models.PriorityAny},
		{ID: "ext-2", RouteID: "B", RouteName: "B", DepartureAt: at("04:58"), Priority: models.PriorityAny},
	}

	got, err := f.engine.Inventory.ListClaimable(context.Background())
	if err != nil {
		t.Fatalf("list claimable: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 claimable slots, got %+v", got)
	}
	if !got[0].DepartureAt.Equal(at("05:01")) || got[1].ID != "ext-1" || !got[1].External {
		t.Fatalf("unexpected claimable set: %+v", got)
	}
}

func TestRebuildIsUnconditional(t *testing.T) {
	f := newFixture(t, at("05:00"), nil, rotating("A", 6, 1), rotating("B", 6, 2))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := f.engine.Inventory.Rebuild(ctx, "", ReasonManual); err != nil {
			t.Fatalf("rebuild: %v", err)
		}
	}
	if f.slots.Replaces() != 2 {
		t.Fatalf("expected two rebuilds, got %d", f.slots.Replaces())
	}
}
