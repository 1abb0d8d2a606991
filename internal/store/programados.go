/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package store

import (
	"context"
	"fmt"

	"github.com/friendsincode/fleetrota/internal/models"
	"gorm.io/gorm"
)

// PreAssignments reads the external pre-assignment table.
type PreAssignments struct {
	db *gorm.DB
}

// NewPreAssignments creates a feed backed by db.
func NewPreAssignments(db *gorm.DB) *PreAssignments {
	return &PreAssignments{db: db}
}

// ListAvailableForDay returns open pre-bookings of a day.
func (p *PreAssignments) ListAvailableForDay(ctx context.Context, day string) ([]models.ExternalPreAssignment, error) {
	var rows []models.ExternalPreAssignment
	err := p.db.WithContext(ctx).
		Where("service_day = ? AND available = ?", day, true).
		Order("hour ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list available programados: %w", err)
	}
	return rows, nil
}

// ListAssignedForDay returns pre-bookings of a day already taken by a vehicle.
func (p *PreAssignments) ListAssignedForDay(ctx context.Context, day string) ([]models.ExternalPreAssignment, error) {
	var rows []models.ExternalPreAssignment
	err := p.db.WithContext(ctx).
		Where("service_day = ? AND available = ? AND vehicle_id IS NOT NULL AND vehicle_id <> ''", day, false).
		Order("hour ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list assigned programados: %w", err)
	}
	return rows, nil
}

// ReplaceForDay swaps a day's pre-bookings, used when importing a feed file.
func (p *PreAssignments) ReplaceForDay(ctx context.Context, day string, rows []models.ExternalPreAssignment) error {
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("service_day = ?", day).Delete(&models.ExternalPreAssignment{}).Error; err != nil {
			return fmt.Errorf("clear programados: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}
		for i := range rows {
			rows[i].ServiceDay = day
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("insert programados: %w", translate(err))
		}
		return nil
	})
}
