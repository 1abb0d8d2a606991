/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package clock supplies "now" to the dispatch engine. Core code never reads
// the system clock directly so operations can be rehearsed on a frozen instant.
package clock

import (
	"fmt"
	"sync"
	"time"
)

// DayLayout is the calendar-day key used for slots and assignments.
const DayLayout = "2006-01-02"

// Clock reports the current instant.
type Clock interface {
	Now() time.Time
}

// Real reads the system clock.
type Real struct{}

// Now returns the current wall time in UTC.
func (Real) Now() time.Time {
	return time.Now().UTC()
}

// Frozen is a simulated clock pinned to an instant until moved explicitly.
type Frozen struct {
	mu  sync.RWMutex
	now time.Time
}

// NewFrozen creates a frozen clock at t.
func NewFrozen(t time.Time) *Frozen {
	return &Frozen{now: t.UTC()}
}

// Now returns the frozen instant.
func (f *Frozen) Now() time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.now
}

// Set moves the clock to t.
func (f *Frozen) Set(t time.Time) {
	f.mu.Lock()
	f.now = t.UTC()
	f.mu.Unlock()
}

// Advance moves the clock forward by d.
func (f *Frozen) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

// FromConfig returns a frozen clock when frozenAt is set (RFC3339), otherwise Real.
func FromConfig(frozenAt string) (Clock, error) {
	if frozenAt == "" {
		return Real{}, nil
	}
	t, err := time.Parse(time.RFC3339, frozenAt)
	if err != nil {
		return nil, fmt.Errorf("parse frozen time %q: %w", frozenAt, err)
	}
	return NewFrozen(t), nil
}

// Day returns the service day of t in loc.
func Day(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DayLayout)
}

// DayBounds returns the [start, end) instants of a service day in loc.
func DayBounds(day string, loc *time.Location) (time.Time, time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	start, err := time.ParseInLocation(DayLayout, day, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse service day %q: %w", day, err)
	}
	return start.UTC(), start.AddDate(0, 0, 1).UTC(), nil
}

// AtHour combines a service day and an "HH:MM" wall time in loc.
func AtHour(day, hhmm string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(DayLayout+" 15:04", day+" "+hhmm, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse departure %s %s: %w", day, hhmm, err)
	}
	return t.UTC(), nil
}
