/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/friendsincode/fleetrota/internal/models"
	"gorm.io/gorm"
)

// Assignments stores committed turns.
type Assignments struct {
	db *gorm.DB
}

// NewAssignments creates an assignment store backed by db.
func NewAssignments(db *gorm.DB) *Assignments {
	return &Assignments{db: db}
}

// ListForDay returns every assignment of a service day, cancelled ones
// included, ordered by departure.
func (s *Assignments) ListForDay(ctx context.Context, day string) ([]models.Assignment, error) {
	var rows []models.Assignment
	err := s.db.WithContext(ctx).
		Where("service_day = ?", day).
		Order("departure_at ASC").Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	return rows, nil
}

// Get returns an assignment by id, or nil when it does not exist.
func (s *Assignments) Get(ctx context.Context, id string) (*models.Assignment, error) {
	var a models.Assignment
	err := s.db.WithContext(ctx).First(&a, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get assignment: %w", err)
	}
	return &a, nil
}

// Create inserts an assignment. A live duplicate for the same route and
// departure surfaces as ErrDuplicate.
func (s *Assignments) Create(ctx context.Context, a *models.Assignment) error {
	a.DepartureAt = Instant(a.DepartureAt)
	if err := s.db.WithContext(ctx).Create(a).Error; err != nil {
		return fmt.Errorf("create assignment: %w", translate(err))
	}
	return nil
}

// Delete removes an assignment. Deleting a missing id is not an error.
func (s *Assignments) Delete(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Delete(&models.Assignment{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("delete assignment: %w", err)
	}
	return nil
}
