/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// TuningEnvPrefix prefixes environment overrides of scheduling tuning keys,
// e.g. FLEETROTA_TUNING__PER_ROUTE_QUOTA=12.
const TuningEnvPrefix = "FLEETROTA_TUNING__"

// Tuning holds the numeric knobs of the slot engine.
type Tuning struct {
	MinimumLeadTimeMinutes    int  `json:"minimum_lead_time_minutes" validate:"gte=0,lte=720"`
	LeadToleranceMinutes      int  `json:"lead_tolerance_minutes" validate:"gte=0,lte=60"`
	SlotRegenerationThreshold int  `json:"slot_regeneration_threshold" validate:"gte=0"`
	PerRouteQuota             int  `json:"per_route_quota" validate:"gte=1,lte=500"`
	ConflictMarginMinutes     int  `json:"conflict_margin_minutes" validate:"gte=0,lte=720"`
	ConflictCheckEnabled      bool `json:"conflict_check_enabled"`
	CollisionWindowMinutes    int  `json:"collision_window_minutes" validate:"gte=0,lte=60"`
	MatchWindowMinutes        int  `json:"match_window_minutes" validate:"gte=1,lte=60"`
	MaxAlternatives           int  `json:"max_alternatives" validate:"gte=0,lte=20"`
}

// DefaultTuning returns the values used when no tuning source overrides them.
func DefaultTuning() Tuning {
	return Tuning{
		MinimumLeadTimeMinutes:    2,
		LeadToleranceMinutes:      1,
		SlotRegenerationThreshold: 5,
		PerRouteQuota:             10,
		ConflictMarginMinutes:     30,
		ConflictCheckEnabled:      true,
		CollisionWindowMinutes:    5,
		MatchWindowMinutes:        1,
		MaxAlternatives:           3,
	}
}

// MinimumLeadTime is the lead a slot needs to be offered.
func (t Tuning) MinimumLeadTime() time.Duration {
	return time.Duration(t.MinimumLeadTimeMinutes) * time.Minute
}

// LeadTolerance is subtracted from the lead when validating claims.
func (t Tuning) LeadTolerance() time.Duration {
	return time.Duration(t.LeadToleranceMinutes) * time.Minute
}

// ConflictMargin is the minimum spacing between one vehicle's or driver's turns.
func (t Tuning) ConflictMargin() time.Duration {
	return time.Duration(t.ConflictMarginMinutes) * time.Minute
}

// CollisionWindow is the spacing the generator keeps from committed assignments.
func (t Tuning) CollisionWindow() time.Duration {
	return time.Duration(t.CollisionWindowMinutes) * time.Minute
}

// MatchWindow is the tolerance for treating two departures as the same slot.
func (t Tuning) MatchWindow() time.Duration {
	return time.Duration(t.MatchWindowMinutes) * time.Minute
}

// Validate checks tuning bounds.
func (t Tuning) Validate() error {
	if err := validator.New().Struct(t); err != nil {
		return fmt.Errorf("invalid tuning: %w", err)
	}
	if t.LeadToleranceMinutes > t.MinimumLeadTimeMinutes && t.MinimumLeadTimeMinutes > 0 {
		return fmt.Errorf("invalid tuning: lead tolerance (%d) exceeds minimum lead time (%d)", t.LeadToleranceMinutes, t.MinimumLeadTimeMinutes)
	}
	return nil
}

// LoadTuning reads tuning from an optional YAML or JSON file and
// FLEETROTA_TUNING__* environment overrides on top of DefaultTuning.
func LoadTuning(path string) (Tuning, error) {
	k := koanf.New(".")
	if path != "" {
		var parser koanf.Parser
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return Tuning{}, fmt.Errorf("unsupported tuning format: %s", path)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return Tuning{}, fmt.Errorf("load tuning file: %w", err)
		}
	}
	if err := k.Load(env.Provider(TuningEnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, TuningEnvPrefix))
	}), nil); err != nil {
		return Tuning{}, fmt.Errorf("load tuning env: %w", err)
	}

	t := DefaultTuning()
	if err := k.UnmarshalWithConf("", &t, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return Tuning{}, fmt.Errorf("decode tuning: %w", err)
	}
	if err := t.Validate(); err != nil {
		return Tuning{}, err
	}
	return t, nil
}

// TuningProvider serves a read-only tuning snapshot and can reload it.
type TuningProvider struct {
	mu     sync.RWMutex
	path   string
	tuning Tuning
}

// NewTuningProvider loads tuning from path (may be empty).
func NewTuningProvider(path string) (*TuningProvider, error) {
	t, err := LoadTuning(path)
	if err != nil {
		return nil, err
	}
	return &TuningProvider{path: path, tuning: t}, nil
}

// StaticTuning wraps fixed values, mostly for tests and one-shot commands.
func StaticTuning(t Tuning) *TuningProvider {
	return &TuningProvider{tuning: t}
}

// Get returns the current tuning snapshot.
func (p *TuningProvider) Get() Tuning {
	if p == nil {
		return DefaultTuning()
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.tuning
}

// Reload re-reads the tuning source. The previous snapshot is kept on error.
func (p *TuningProvider) Reload() error {
	t, err := LoadTuning(p.path)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.tuning = t
	p.mu.Unlock()
	return nil
}
