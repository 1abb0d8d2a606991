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

// Routes reads the route catalog.
type Routes struct {
	db *gorm.DB
}

// NewRoutes creates a catalog backed by db.
func NewRoutes(db *gorm.DB) *Routes {
	return &Routes{db: db}
}

// ListActive returns active routes in catalog order.
func (r *Routes) ListActive(ctx context.Context) ([]models.Route, error) {
	var routes []models.Route
	err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Order("position ASC").Order("name ASC").
		Find(&routes).Error
	if err != nil {
		return nil, fmt.Errorf("list active routes: %w", err)
	}
	return routes, nil
}

// Get returns a route by id, or nil when it does not exist.
func (r *Routes) Get(ctx context.Context, id string) (*models.Route, error) {
	var route models.Route
	err := r.db.WithContext(ctx).First(&route, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get route: %w", err)
	}
	return &route, nil
}

// Save inserts or updates a route. Used by seeding and tests.
func (r *Routes) Save(ctx context.Context, route *models.Route) error {
	if err := r.db.WithContext(ctx).Save(route).Error; err != nil {
		return fmt.Errorf("save route: %w", translate(err))
	}
	return nil
}
