/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/friendsincode/fleetrota/internal/clock"
	"github.com/friendsincode/fleetrota/internal/config"
	"github.com/friendsincode/fleetrota/internal/db"
	"github.com/friendsincode/fleetrota/internal/events"
	"github.com/friendsincode/fleetrota/internal/models"
	"github.com/friendsincode/fleetrota/internal/store"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testDay = "2025-01-01"

func at(hhmm string) time.Time {
	t, err := time.Parse("2006-01-02 15:04", testDay+" "+hhmm)
	if err != nil {
		panic(err)
	}
	return t
}

func rotating(id string, freq, pos int) models.Route {
	return models.Route{ID: id, Name: id, FrequencyMinutes: freq, Priority: models.RouteRotating, Active: true, Position: pos}
}

func independent(id string, freq, pos int) models.Route {
	return models.Route{ID: id, Name: id, FrequencyMinutes: freq, Priority: models.RouteIndependent, Active: true, Position: pos}
}

// countingSlots records full-day rebuilds.
type countingSlots struct {
	*store.Slots
	mu       sync.Mutex
	replaces int
}

func (c *countingSlots) ReplaceForDay(ctx context.Context, day string, slots []models.Slot) error {
	c.mu.Lock()
	c.replaces++
	c.mu.Unlock()
	return c.Slots.ReplaceForDay(ctx, day, slots)
}

func (c *countingSlots) Replaces() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.replaces
}

// fakeExternal serves fixed pseudo rows.
type fakeExternal struct {
	slots       []models.Slot
	assignments []models.Assignment
}

func (f *fakeExternal) PseudoSlots(context.Context, string) ([]models.Slot, error) {
	return append([]models.Slot(nil), f.slots...), nil
}

func (f *fakeExternal) PseudoAssignments(context.Context, string) ([]models.Assignment, error) {
	return append([]models.Assignment(nil), f.assignments...), nil
}

type fixture struct {
	t           *testing.T
	db          *gorm.DB
	clock       *clock.Frozen
	tuning      config.Tuning
	slots       *countingSlots
	assignments *store.Assignments
	bus         *events.Bus
	external    *fakeExternal
	engine      *Engine
}

func newFixture(t *testing.T, now time.Time, tune func(*config.Tuning), routes ...models.Route) *fixture {
	t.Helper()
	database, err := db.Open(sqlite.Open("file::memory:"), logger.Silent)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := database.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := db.Migrate(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	ctx := context.Background()
	routeStore := store.NewRoutes(database)
	for i := range routes {
		if err := routeStore.Save(ctx, &routes[i]); err != nil {
			t.Fatalf("seed route: %v", err)
		}
	}

	tuning := config.DefaultTuning()
	if tune != nil {
		tune(&tuning)
	}

	f := &fixture{
		t:           t,
		db:          database,
		clock:       clock.NewFrozen(now),
		tuning:      tuning,
		slots:       &countingSlots{Slots: store.NewSlots(database)},
		assignments: store.NewAssignments(database),
		bus:         events.NewBus(),
		external:    &fakeExternal{},
	}
	f.engine = New(Deps{
		Routes:      routeStore,
		Slots:       f.slots,
		Assignments: f.assignments,
		Fleet:       store.NewFleet(database),
		External:    f.external,
		Tuning:      config.StaticTuning(tuning),
		Clock:       f.clock,
		Location:    time.UTC,
		Publisher:   f.bus,
	}, zerolog.Nop())
	return f
}

func (f *fixture) addVehicle(id string, active bool) {
	f.t.Helper()
	if err := f.db.Create(&models.Vehicle{ID: id, Plate: "P-" + id, Active: active}).Error; err != nil {
		f.t.Fatalf("seed vehicle: %v", err)
	}
}

func (f *fixture) addDriver(id string, active bool) {
	f.t.Helper()
	if err := f.db.Create(&models.Driver{ID: id, Name: "D-" + id, Active: active}).Error; err != nil {
		f.t.Fatalf("seed driver: %v", err)
	}
}

func (f *fixture) addAssignment(id, vehicleID, driverID, routeID string, departure time.Time, status models.AssignmentStatus) {
	f.t.Helper()
	r := routeID
	a := &models.Assignment{
		ID: id, VehicleID: vehicleID, DriverID: driverID, RouteID: &r, RouteName: routeID,
		DepartureAt: departure, ServiceDay: testDay, Status: status,
	}
	if err := f.assignments.Create(context.Background(), a); err != nil {
		f.t.Fatalf("seed assignment: %v", err)
	}
}

// seedSlots writes slots directly, bypassing the generator.
func (f *fixture) seedSlots(slots ...models.Slot) {
	f.t.Helper()
	for i := range slots {
		if slots[i].ID == "" {
			slots[i].ID = slots[i].RouteID + "@" + slots[i].DepartureAt.Format("1504")
		}
		if slots[i].RouteName == "" {
			slots[i].RouteName = slots[i].RouteID
		}
		slots[i].Active = true
	}
	if err := f.slots.Slots.ReplaceForDay(context.Background(), testDay, slots); err != nil {
		f.t.Fatalf("seed slots: %v", err)
	}
}

func slot(routeID string, departure time.Time) models.Slot {
	return models.Slot{RouteID: routeID, DepartureAt: departure}
}

func (f *fixture) activeSlots() []models.Slot {
	f.t.Helper()
	slots, err := f.slots.ListActiveForDay(context.Background(), testDay)
	if err != nil {
		f.t.Fatalf("list slots: %v", err)
	}
	return slots
}
