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

// Fleet reads vehicles and drivers. Both are maintained elsewhere.
type Fleet struct {
	db *gorm.DB
}

// NewFleet creates a fleet reader backed by db.
func NewFleet(db *gorm.DB) *Fleet {
	return &Fleet{db: db}
}

// Vehicle returns the vehicle or nil when it does not exist.
func (f *Fleet) Vehicle(ctx context.Context, id string) (*models.Vehicle, error) {
	var v models.Vehicle
	err := f.db.WithContext(ctx).First(&v, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get vehicle: %w", err)
	}
	return &v, nil
}

// Driver returns the driver or nil when it does not exist.
func (f *Fleet) Driver(ctx context.Context, id string) (*models.Driver, error) {
	var d models.Driver
	err := f.db.WithContext(ctx).First(&d, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get driver: %w", err)
	}
	return &d, nil
}
