/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package scheduler keeps the day's slot inventory topped up in the
// background and sweeps slot rows that can no longer be claimed.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/friendsincode/fleetrota/internal/clock"
	"github.com/friendsincode/fleetrota/internal/dispatch"
	"github.com/friendsincode/fleetrota/internal/telemetry"
	"github.com/rs/zerolog"
)

// Inventory is the regeneration policy the loop drives.
type Inventory interface {
	Ensure(ctx context.Context, vehicleHint string) (bool, dispatch.RebuildReason, error)
}

// SlotPurger deletes slot rows of earlier service days and departures
// already behind an instant.
type SlotPurger interface {
	PurgeBefore(ctx context.Context, day string) (int64, error)
	PurgePast(ctx context.Context, instant time.Time) (int64, error)
}

// Options tunes the maintenance loop.
type Options struct {
	Interval   time.Duration
	InstanceID string
	Location   *time.Location

	// Sample is called on every tick, e.g. to refresh pool gauges.
	Sample func()
}

// Service runs inventory maintenance.
type Service struct {
	inventory Inventory
	slots     SlotPurger
	clock     clock.Clock
	opts      Options
	logger    zerolog.Logger

	mu        sync.Mutex
	lastSweep time.Time
}

// New constructs the maintenance service.
func New(inventory Inventory, slots SlotPurger, clk clock.Clock, opts Options, logger zerolog.Logger) *Service {
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Service{
		inventory: inventory,
		slots:     slots,
		clock:     clk,
		opts:      opts,
		logger:    logger.With().Str("component", "scheduler").Logger(),
	}
}

// Run ticks immediately, then every interval, until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.opts.Interval).Msg("inventory maintenance started")
	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("inventory maintenance stopped")
			return ctx.Err()
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one maintenance pass.
func (s *Service) Tick(ctx context.Context) {
	telemetry.SchedulerTicksTotal.WithLabelValues(s.opts.InstanceID).Inc()
	if s.opts.Sample != nil {
		s.opts.Sample()
	}

	rebuilt, reason, err := s.inventory.Ensure(ctx, "")
	switch {
	case err != nil:
		s.logger.Error().Err(err).Msg("inventory check failed")
		telemetry.SchedulerErrorsTotal.WithLabelValues(s.opts.InstanceID, "ensure_inventory").Inc()
	case rebuilt:
		s.logger.Info().Str("reason", string(reason)).Msg("slot inventory regenerated")
	}

	s.maybeSweepSlots(ctx)
}

// maybeSweepSlots deletes slots of earlier days and slots whose departure
// has passed, so inventory between rebuilds only holds claimable rows. Runs
// at most once per hour.
func (s *Service) maybeSweepSlots(ctx context.Context) {
	now := s.clock.Now()
	s.mu.Lock()
	if !s.lastSweep.IsZero() && now.Sub(s.lastSweep) < time.Hour {
		s.mu.Unlock()
		return
	}
	s.lastSweep = now
	s.mu.Unlock()

	today := clock.Day(now, s.opts.Location)
	old, err := s.slots.PurgeBefore(ctx, today)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to purge slots of earlier days")
		telemetry.SchedulerErrorsTotal.WithLabelValues(s.opts.InstanceID, "purge").Inc()
		return
	}
	past, err := s.slots.PurgePast(ctx, now)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to purge departed slots")
		telemetry.SchedulerErrorsTotal.WithLabelValues(s.opts.InstanceID, "purge").Inc()
		return
	}
	if old+past > 0 {
		s.logger.Info().Int64("earlier_days", old).Int64("departed", past).Str("day", today).Msg("swept stale slots")
	}
}
