/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package dispatch

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/friendsincode/fleetrota/internal/clock"
	"github.com/friendsincode/fleetrota/internal/models"
	"github.com/friendsincode/fleetrota/internal/telemetry"
	"github.com/rs/zerolog"
)

// RebuildReason records why the slot inventory was regenerated.
type RebuildReason string

const (
	ReasonNone RebuildReason = ""

	// ReasonInventoryEmpty - no claimable slot left for today.
	ReasonInventoryEmpty RebuildReason = "inventory_empty"

	// ReasonBelowThreshold - a route ran low while the day still has room.
	ReasonBelowThreshold RebuildReason = "below_threshold"

	// ReasonLeadTime - a claim failed the lead-time check.
	ReasonLeadTime RebuildReason = "lead_time"

	// ReasonManual - operator or maintenance request.
	ReasonManual RebuildReason = "manual"
)

// Inventory owns the regeneration policy of the day's slots.
type Inventory struct {
	generator *SlotGenerator
	slots     SlotStore
	routes    RouteCatalog
	external  ExternalSchedule
	tuning    TuningSource
	clock     clock.Clock
	loc       *time.Location
	logger    zerolog.Logger

	// Serializes check-and-rebuild so concurrent callers share one rebuild.
	mu   sync.Mutex
	last lastRebuild
}

// lastRebuild remembers what the previous rebuild produced so a route that
// cannot reach the threshold (late in the day, sparse frequency) does not
// trigger a rebuild on every read.
type lastRebuild struct {
	day      string
	at       time.Time
	total    int
	perRoute map[string]int
}

// emptyRetryInterval spaces out rebuilds while the generator keeps producing
// nothing for today.
const emptyRetryInterval = time.Minute

// Ensure rebuilds today's inventory when it is empty or any route fell below
// the regeneration threshold. It reports whether a rebuild happened and why.
func (inv *Inventory) Ensure(ctx context.Context, vehicleHint string) (bool, RebuildReason, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	now := inv.clock.Now()
	reason, err := inv.needsRebuild(ctx, now)
	if err != nil || reason == ReasonNone {
		return false, ReasonNone, err
	}
	if _, err := inv.rebuild(ctx, now, vehicleHint, reason); err != nil {
		return false, reason, err
	}
	return true, reason, nil
}

// Rebuild regenerates today's inventory unconditionally.
func (inv *Inventory) Rebuild(ctx context.Context, vehicleHint string, reason RebuildReason) (Batch, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.rebuild(ctx, inv.clock.Now(), vehicleHint, reason)
}

func (inv *Inventory) rebuild(ctx context.Context, now time.Time, vehicleHint string, reason RebuildReason) (Batch, error) {
	batch, err := inv.generator.Generate(ctx, now, vehicleHint)
	if err != nil {
		inv.logger.Error().Err(err).Str("reason", string(reason)).Msg("slot inventory rebuild failed")
		return Batch{}, err
	}
	telemetry.InventoryRebuildsTotal.WithLabelValues(string(reason)).Inc()
	inv.last = lastRebuild{day: batch.Day, at: now, total: len(batch.Slots), perRoute: batch.PerRoute}
	inv.logger.Debug().Str("reason", string(reason)).Int("slots", len(batch.Slots)).Msg("slot inventory rebuilt")
	return batch, nil
}

func (inv *Inventory) needsRebuild(ctx context.Context, now time.Time) (RebuildReason, error) {
	t := inv.tuning.Get()
	day := clock.Day(now, inv.loc)
	_, dayEnd, err := clock.DayBounds(day, inv.loc)
	if err != nil {
		return ReasonNone, err
	}

	routes, err := inv.routes.ListActive(ctx)
	if err != nil {
		return ReasonNone, persistence("list routes", err)
	}
	active, err := inv.slots.ListActiveForDay(ctx, day)
	if err != nil {
		return ReasonNone, persistence("list slots", err)
	}

	cutoff := claimCutoff(now, t.MinimumLeadTime(), t.LeadTolerance())
	earliest := now.Add(t.MinimumLeadTime())
	perRoute := make(map[string]int)
	lastDeparture := make(map[string]time.Time)
	total := 0
	for _, s := range active {
		if s.DepartureAt.Before(cutoff) {
			continue
		}
		total++
		perRoute[s.RouteID]++
		if s.DepartureAt.After(lastDeparture[s.RouteID]) {
			lastDeparture[s.RouteID] = s.DepartureAt
		}
	}

	// hasRoom reports whether the route could still fit another departure
	// before the day ends.
	hasRoom := func(r models.Route) bool {
		from := earliest
		if last, ok := lastDeparture[r.ID]; ok && last.After(from) {
			from = last.Add(r.Frequency())
		}
		return from.Before(dayEnd)
	}

	schedulable := false
	for _, r := range routes {
		if r.Frequency() > 0 && hasRoom(r) {
			schedulable = true
			break
		}
	}
	if !schedulable {
		return ReasonNone, nil
	}
	known := inv.last.day == day
	if total == 0 {
		if known && inv.last.total == 0 && now.Sub(inv.last.at) < emptyRetryInterval {
			return ReasonNone, nil
		}
		return ReasonInventoryEmpty, nil
	}
	for _, r := range routes {
		if r.Frequency() <= 0 || perRoute[r.ID] >= t.SlotRegenerationThreshold || !hasRoom(r) {
			continue
		}
		// Only a route that lost slots since the last rebuild can gain any.
		if known && perRoute[r.ID] >= inv.last.perRoute[r.ID] {
			continue
		}
		return ReasonBelowThreshold, nil
	}
	return ReasonNone, nil
}

// ListClaimable returns today's slots that still satisfy the lead time,
// native and external, ordered by departure.
func (inv *Inventory) ListClaimable(ctx context.Context) ([]models.Slot, error) {
	now := inv.clock.Now()
	t := inv.tuning.Get()
	day := clock.Day(now, inv.loc)

	native, err := inv.slots.ListActiveForDay(ctx, day)
	if err != nil {
		return nil, persistence("list slots", err)
	}
	pseudo, err := inv.external.PseudoSlots(ctx, day)
	if err != nil {
		return nil, persistence("list external slots", err)
	}

	cutoff := claimCutoff(now, t.MinimumLeadTime(), t.LeadTolerance())
	out := make([]models.Slot, 0, len(native)+len(pseudo))
	for _, s := range native {
		if !s.DepartureAt.Before(cutoff) {
			out = append(out, s)
		}
	}
	for _, s := range pseudo {
		if !s.DepartureAt.Before(cutoff) {
			s.External = true
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DepartureAt.Before(out[j].DepartureAt) })
	return out, nil
}

// claimCutoff is the earliest departure still claimable at now.
func claimCutoff(now time.Time, lead, tolerance time.Duration) time.Time {
	return now.Add(lead - tolerance)
}
