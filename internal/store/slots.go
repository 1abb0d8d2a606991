/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/friendsincode/fleetrota/internal/models"
	"gorm.io/gorm"
)

// Slots stores the generated slot inventory.
type Slots struct {
	db *gorm.DB
}

// NewSlots creates a slot store backed by db.
func NewSlots(db *gorm.DB) *Slots {
	return &Slots{db: db}
}

// ListActiveForDay returns unclaimed slots of a service day by departure.
func (s *Slots) ListActiveForDay(ctx context.Context, day string) ([]models.Slot, error) {
	var slots []models.Slot
	err := s.db.WithContext(ctx).
		Where("service_day = ? AND active = ?", day, true).
		Order("departure_at ASC").Order("route_id ASC").
		Find(&slots).Error
	if err != nil {
		return nil, fmt.Errorf("list active slots: %w", err)
	}
	return slots, nil
}

// ReplaceForDay swaps the whole inventory of a day in one transaction.
func (s *Slots) ReplaceForDay(ctx context.Context, day string, slots []models.Slot) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("service_day = ?", day).Delete(&models.Slot{}).Error; err != nil {
			return fmt.Errorf("clear day slots: %w", err)
		}
		if len(slots) == 0 {
			return nil
		}
		rows := make([]models.Slot, len(slots))
		for i, slot := range slots {
			slot.ServiceDay = day
			slot.DepartureAt = Instant(slot.DepartureAt)
			rows[i] = slot
		}
		if err := tx.CreateInBatches(rows, 200).Error; err != nil {
			return fmt.Errorf("insert day slots: %w", translate(err))
		}
		return nil
	})
}

// DeactivateMatching marks active slots of a route whose departure lies
// within window of at as claimed. Only rows that are still active are
// touched, so the affected count is zero when another claim got there first.
func (s *Slots) DeactivateMatching(ctx context.Context, routeID string, at time.Time, window time.Duration) (int64, error) {
	at = Instant(at)
	res := s.db.WithContext(ctx).
		Model(&models.Slot{}).
		Where("route_id = ? AND active = ?", routeID, true).
		Where("departure_at >= ? AND departure_at <= ?", at.Add(-window), at.Add(window)).
		Update("active", false)
	if res.Error != nil {
		return 0, fmt.Errorf("deactivate slot: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// PurgeBefore deletes slots of days earlier than day.
func (s *Slots) PurgeBefore(ctx context.Context, day string) (int64, error) {
	res := s.db.WithContext(ctx).Where("service_day < ?", day).Delete(&models.Slot{})
	if res.Error != nil {
		return 0, fmt.Errorf("purge old slots: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// PurgePast deletes slots whose departure is already behind instant.
func (s *Slots) PurgePast(ctx context.Context, instant time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("departure_at < ?", Instant(instant)).Delete(&models.Slot{})
	if res.Error != nil {
		return 0, fmt.Errorf("purge past slots: %w", res.Error)
	}
	return res.RowsAffected, nil
}
