/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package bridge folds the external pre-assignment feed into the slot and
// assignment views of the dispatch engine. Route label matching lives here so
// the engine only ever sees canonical route ids.
package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/friendsincode/fleetrota/internal/clock"
	"github.com/friendsincode/fleetrota/internal/models"
	"github.com/rs/zerolog"
)

// IDPrefix marks pseudo rows so they never collide with native ids.
const IDPrefix = "ext-"

// Feed supplies raw pre-assignment rows for one service day.
type Feed interface {
	ListAvailableForDay(ctx context.Context, day string) ([]models.ExternalPreAssignment, error)
	ListAssignedForDay(ctx context.Context, day string) ([]models.ExternalPreAssignment, error)
}

// RouteLister is the part of the route catalog the bridge needs.
type RouteLister interface {
	ListActive(ctx context.Context) ([]models.Route, error)
}

// Bridge implements the dispatch engine's external schedule.
type Bridge struct {
	feed    Feed
	routes  RouteLister
	aliases Aliases
	loc     *time.Location
	logger  zerolog.Logger

	warnMu     sync.Mutex
	warnedKeys map[string]struct{}
}

// New creates a bridge. aliases may be nil.
func New(feed Feed, routes RouteLister, aliases Aliases, loc *time.Location, logger zerolog.Logger) *Bridge {
	if loc == nil {
		loc = time.UTC
	}
	return &Bridge{
		feed:    feed,
		routes:  routes,
		aliases: aliases,
		loc:     loc,
		logger:  logger.With().Str("component", "bridge").Logger(),
	}
}

func (b *Bridge) index(ctx context.Context) (*LabelIndex, error) {
	routes, err := b.routes.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list routes: %w", err)
	}
	idx := NewLabelIndex(routes, b.aliases)
	for _, key := range idx.Orphans {
		b.warnOnce("orphan_alias:"+key, func(e *zerolog.Event) {
			e.Str("alias_key", key).Msg("route alias refers to no active route")
		})
	}
	return idx, nil
}

// PseudoSlots turns the day's available pre-assignments into claimable
// slots tagged ANY. Rows with an unknown label or a bad hour are skipped.
func (b *Bridge) PseudoSlots(ctx context.Context, day string) ([]models.Slot, error) {
	rows, err := b.feed.ListAvailableForDay(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("list available pre-assignments: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	idx, err := b.index(ctx)
	if err != nil {
		return nil, err
	}

	slots := make([]models.Slot, 0, len(rows))
	for _, row := range rows {
		route, ok := idx.Resolve(row.RouteLabel)
		if !ok {
			b.warnUnmapped(row)
			continue
		}
		departure, ok := b.departure(day, row)
		if !ok {
			continue
		}
		slots = append(slots, models.Slot{
			ID:               IDPrefix + row.ID,
			RouteID:          route.ID,
			RouteName:        route.Name,
			DepartureAt:      departure,
			Priority:         models.PriorityAny,
			Reason:           "external pre-assignment",
			FrequencyMinutes: route.FrequencyMinutes,
			ServiceDay:       day,
			Active:           true,
			External:         true,
		})
	}
	return slots, nil
}

// PseudoAssignments turns the day's taken pre-assignments into assignments
// for history and conflict checks. An unknown label keeps the row with no
// route so the vehicle's time is still occupied.
func (b *Bridge) PseudoAssignments(ctx context.Context, day string) ([]models.Assignment, error) {
	rows, err := b.feed.ListAssignedForDay(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("list assigned pre-assignments: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	idx, err := b.index(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]models.Assignment, 0, len(rows))
	for _, row := range rows {
		if row.VehicleID == nil || *row.VehicleID == "" {
			continue
		}
		departure, ok := b.departure(day, row)
		if !ok {
			continue
		}
		a := models.Assignment{
			ID:          IDPrefix + row.ID,
			VehicleID:   *row.VehicleID,
			RouteName:   row.RouteLabel,
			DepartureAt: departure,
			ServiceDay:  day,
			Status:      models.AssignmentPending,
			CreatedAt:   row.CreatedAt,
			External:    true,
		}
		if route, ok := idx.Resolve(row.RouteLabel); ok {
			routeID := route.ID
			a.RouteID = &routeID
			a.RouteName = route.Name
		} else {
			b.warnUnmapped(row)
		}
		out = append(out, a)
	}
	return out, nil
}

func (b *Bridge) departure(day string, row models.ExternalPreAssignment) (time.Time, bool) {
	at, err := clock.AtHour(day, row.Hour, b.loc)
	if err != nil {
		b.warnOnce("bad_hour:"+row.ID, func(e *zerolog.Event) {
			e.Err(err).Str("programado_id", row.ID).Str("hour", row.Hour).Msg("pre-assignment has an invalid hour")
		})
		return time.Time{}, false
	}
	return at, true
}

func (b *Bridge) warnUnmapped(row models.ExternalPreAssignment) {
	label := Normalize(row.RouteLabel)
	b.warnOnce("unmapped_label:"+label, func(e *zerolog.Event) {
		e.Str("label", row.RouteLabel).Str("programado_id", row.ID).Msg("pre-assignment route label matches no route")
	})
}

func (b *Bridge) warnOnce(key string, logFn func(e *zerolog.Event)) {
	b.warnMu.Lock()
	if b.warnedKeys == nil {
		b.warnedKeys = make(map[string]struct{})
	}
	if _, ok := b.warnedKeys[key]; ok {
		b.warnMu.Unlock()
		return
	}
	b.warnedKeys[key] = struct{}{}
	b.warnMu.Unlock()

	logFn(b.logger.Warn())
}
