/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package dispatch is the slot scheduling and rotation-fairness engine: it
// generates each day's departure slots, keeps the inventory fresh, suggests
// the fairest slot for a vehicle and commits claims.
package dispatch

import (
	"time"

	"github.com/friendsincode/fleetrota/internal/clock"
	"github.com/friendsincode/fleetrota/internal/config"
	"github.com/friendsincode/fleetrota/internal/events"
	"github.com/rs/zerolog"
)

// Deps are the collaborators of the engine. External, Tuning, Clock,
// Location and Publisher are optional.
type Deps struct {
	Routes      RouteCatalog
	Slots       SlotStore
	Assignments AssignmentStore
	Fleet       Fleet
	External    ExternalSchedule
	Tuning      TuningSource
	Clock       clock.Clock
	Location    *time.Location
	Publisher   events.Publisher
}

// Engine wires the generator, inventory, suggestion engine and claim
// service over one set of collaborators.
type Engine struct {
	Generator   *SlotGenerator
	Inventory   *Inventory
	Suggestions *SuggestionEngine
	Assignments *AssignmentService
}

// New builds an Engine.
func New(deps Deps, logger zerolog.Logger) *Engine {
	if deps.External == nil {
		deps.External = noExternal{}
	}
	if deps.Tuning == nil {
		deps.Tuning = config.StaticTuning(config.DefaultTuning())
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	if deps.Publisher == nil {
		deps.Publisher = events.NewBus()
	}
	logger = logger.With().Str("component", "dispatch").Logger()

	gen := &SlotGenerator{
		routes:      deps.Routes,
		slots:       deps.Slots,
		assignments: deps.Assignments,
		external:    deps.External,
		tuning:      deps.Tuning,
		loc:         deps.Location,
		publisher:   deps.Publisher,
		logger:      logger.With().Str("stage", "generator").Logger(),
	}
	inv := &Inventory{
		generator: gen,
		slots:     deps.Slots,
		routes:    deps.Routes,
		external:  deps.External,
		tuning:    deps.Tuning,
		clock:     deps.Clock,
		loc:       deps.Location,
		logger:    logger.With().Str("stage", "inventory").Logger(),
	}
	return &Engine{
		Generator: gen,
		Inventory: inv,
		Suggestions: &SuggestionEngine{
			inventory:   inv,
			routes:      deps.Routes,
			assignments: deps.Assignments,
			external:    deps.External,
			tuning:      deps.Tuning,
			clock:       deps.Clock,
			loc:         deps.Location,
			logger:      logger.With().Str("stage", "suggest").Logger(),
		},
		Assignments: &AssignmentService{
			routes:      deps.Routes,
			assignments: deps.Assignments,
			slots:       deps.Slots,
			fleet:       deps.Fleet,
			external:    deps.External,
			inventory:   inv,
			tuning:      deps.Tuning,
			clock:       deps.Clock,
			loc:         deps.Location,
			publisher:   deps.Publisher,
			logger:      logger.With().Str("stage", "claim").Logger(),
		},
	}
}
