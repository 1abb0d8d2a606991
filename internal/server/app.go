/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"fmt"
	"time"

	"github.com/friendsincode/fleetrota/internal/bridge"
	"github.com/friendsincode/fleetrota/internal/cache"
	"github.com/friendsincode/fleetrota/internal/clock"
	"github.com/friendsincode/fleetrota/internal/config"
	"github.com/friendsincode/fleetrota/internal/db"
	"github.com/friendsincode/fleetrota/internal/dispatch"
	"github.com/friendsincode/fleetrota/internal/eventbus"
	"github.com/friendsincode/fleetrota/internal/events"
	"github.com/friendsincode/fleetrota/internal/store"
	"github.com/friendsincode/fleetrota/internal/telemetry"
	"github.com/friendsincode/fleetrota/internal/version"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// App holds the wired dispatch engine and the resources it owns. The CLI
// builds one for one-shot commands; Server adds the ops endpoint and the
// maintenance loop on top.
type App struct {
	Config         *config.Config
	DB             *gorm.DB
	Clock          clock.Clock
	Location       *time.Location
	Tuning         *config.TuningProvider
	Routes         dispatch.RouteCatalog
	RouteCache     *cache.RouteCatalog
	Slots          *store.Slots
	Assignments    *store.Assignments
	PreAssignments *store.PreAssignments
	External       *bridge.Bridge
	Events         events.Broker
	Engine         *dispatch.Engine

	logger  zerolog.Logger
	closers []func() error
}

// NewApp connects to the database, migrates it and wires the engine.
func NewApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	app := &App{Config: cfg, Location: cfg.Location(), logger: logger}
	if err := app.init(ctx); err != nil {
		_ = app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.Config

	tp, err := telemetry.InitTracer(ctx, telemetry.TracerConfig{
		ServiceName:    "fleetrota",
		ServiceVersion: version.Version,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.TracingEnabled,
		SampleRate:     cfg.TracingSampleRate,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	a.DeferClose(func() error { return tp.Shutdown(context.Background()) })

	database, err := db.Connect(cfg)
	if err != nil {
		return err
	}
	a.DB = database
	a.DeferClose(func() error { return db.Close(database) })
	if err := db.Migrate(database); err != nil {
		return err
	}

	if a.Clock, err = clock.FromConfig(cfg.FrozenTime); err != nil {
		return err
	}
	if _, frozen := a.Clock.(*clock.Frozen); frozen {
		a.logger.Warn().Str("frozen_at", cfg.FrozenTime).Msg("running on a frozen clock")
	}

	if a.Tuning, err = config.NewTuningProvider(cfg.TuningFile); err != nil {
		return err
	}

	routes := store.NewRoutes(database)
	a.Routes = routes
	if cfg.CacheEnabled {
		c := cache.New(cache.Config{
			RedisAddr:       cfg.RedisAddr,
			RedisPassword:   cfg.RedisPassword,
			RedisDB:         cfg.RedisDB,
			RouteCatalogTTL: cache.DefaultRouteCatalogTTL,
			DisableOnError:  true,
		}, a.logger)
		a.DeferClose(c.Close)
		a.RouteCache = cache.NewRouteCatalog(routes, c)
		a.Routes = a.RouteCache
	}

	a.Slots = store.NewSlots(database)
	a.Assignments = store.NewAssignments(database)
	a.PreAssignments = store.NewPreAssignments(database)

	aliases, err := bridge.LoadAliases(cfg.RouteAliasesFile)
	if err != nil {
		return err
	}
	var feed bridge.Feed = a.PreAssignments
	if cfg.ProgramadosCSVPath != "" {
		feed = bridge.NewCSVFeed(cfg.ProgramadosCSVPath)
	}
	a.External = bridge.New(feed, a.Routes, aliases, a.Location, a.logger)

	a.Events = a.newBroker()

	a.Engine = dispatch.New(dispatch.Deps{
		Routes:      a.Routes,
		Slots:       a.Slots,
		Assignments: a.Assignments,
		Fleet:       store.NewFleet(database),
		External:    a.External,
		Tuning:      a.Tuning,
		Clock:       a.Clock,
		Location:    a.Location,
		Publisher:   a.Events,
	}, a.logger)
	return nil
}

func (a *App) newBroker() events.Broker {
	cfg := a.Config
	switch cfg.EventBus {
	case config.EventBusRedis:
		rc := eventbus.DefaultRedisConfig()
		rc.Addr = cfg.RedisAddr
		rc.Password = cfg.RedisPassword
		rc.DB = cfg.RedisDB
		bus := eventbus.NewRedisBus(rc, cfg.InstanceID, a.logger)
		a.DeferClose(bus.Close)
		return bus
	case config.EventBusNATS:
		nc := eventbus.DefaultNATSConfig()
		nc.URL = cfg.NATSURL
		bus := eventbus.NewNATSBus(nc, cfg.InstanceID, a.logger)
		a.DeferClose(bus.Close)
		return bus
	default:
		return events.NewBus()
	}
}

// DeferClose registers a cleanup hook.
func (a *App) DeferClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// Close releases owned resources in reverse order.
func (a *App) Close() error {
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.closers = nil
	return firstErr
}

// Today returns the current service day.
func (a *App) Today() string {
	return clock.Day(a.Clock.Now(), a.Location)
}
