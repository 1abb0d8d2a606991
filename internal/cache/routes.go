/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package cache

import (
	"context"

	"github.com/friendsincode/fleetrota/internal/models"
)

// RouteSource is the authoritative catalog, normally *store.Routes.
type RouteSource interface {
	ListActive(ctx context.Context) ([]models.Route, error)
	Get(ctx context.Context, id string) (*models.Route, error)
}

// RouteCatalog fronts a RouteSource with the Redis cache. Single-route
// lookups always go to the source since claims need the current active flag.
type RouteCatalog struct {
	source RouteSource
	cache  *Cache
}

// NewRouteCatalog wraps source. A nil cache disables caching.
func NewRouteCatalog(source RouteSource, cache *Cache) *RouteCatalog {
	return &RouteCatalog{source: source, cache: cache}
}

// ListActive serves the active catalog from Redis when possible.
func (r *RouteCatalog) ListActive(ctx context.Context) ([]models.Route, error) {
	if r.cache != nil {
		var cached []models.Route
		if found, _ := r.cache.get(ctx, KeyActiveRoutes, &cached); found {
			observe(true)
			return cached, nil
		}
		observe(false)
	}

	routes, err := r.source.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	if r.cache != nil {
		_ = r.cache.set(ctx, KeyActiveRoutes, routes, r.cache.config.RouteCatalogTTL)
	}
	return routes, nil
}

// Get delegates to the source.
func (r *RouteCatalog) Get(ctx context.Context, id string) (*models.Route, error) {
	return r.source.Get(ctx, id)
}

// Invalidate drops the cached catalog after a route edit.
func (r *RouteCatalog) Invalidate(ctx context.Context) error {
	if r.cache == nil {
		return nil
	}
	r.cache.logger.Debug().Msg("invalidating route catalog cache")
	return r.cache.delete(ctx, KeyActiveRoutes)
}
