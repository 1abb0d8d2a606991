/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/friendsincode/fleetrota/internal/config"
	"github.com/friendsincode/fleetrota/internal/db"
	"github.com/friendsincode/fleetrota/internal/events"
	"github.com/friendsincode/fleetrota/internal/leadership"
	"github.com/friendsincode/fleetrota/internal/scheduler"
	"github.com/friendsincode/fleetrota/internal/telemetry"
	"github.com/friendsincode/fleetrota/internal/version"
)

// Server bundles the ops endpoint and the inventory maintenance loop.
type Server struct {
	app        *App
	cfg        *config.Config
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server

	scheduler            *scheduler.Service
	leaderAwareScheduler *scheduler.LeaderAwareScheduler

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New wires the ops router and starts background workers. The server takes
// ownership of app and closes it on Close.
func New(app *App, logger zerolog.Logger) (*Server, error) {
	cfg := app.Config

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.TracingMiddleware("fleetrota-ops"))
	router.Use(telemetry.MetricsMiddleware)
	router.Use(middleware.Timeout(30 * time.Second))

	srv := &Server{
		app:    app,
		cfg:    cfg,
		logger: logger,
		router: router,
	}

	if err := srv.initScheduler(); err != nil {
		return nil, err
	}

	srv.configureRoutes()
	srv.startBackgroundWorkers()

	srv.httpServer = &http.Server{
		Addr:              cfg.OpsBind,
		Handler:           srv.router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return srv, nil
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

		// Only advertise HSTS for requests served over HTTPS.
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) initScheduler() error {
	s.scheduler = scheduler.New(s.app.Engine.Inventory, s.app.Slots, s.app.Clock, scheduler.Options{
		Interval:   s.cfg.InventoryInterval,
		InstanceID: s.cfg.InstanceID,
		Location:   s.app.Location,
		Sample:     func() { db.UpdateConnectionMetrics(s.app.DB) },
	}, s.logger)

	if !s.cfg.LeaderElectionEnabled {
		return nil
	}

	electionConfig := leadership.DefaultConfig()
	electionConfig.RedisAddr = s.cfg.RedisAddr
	electionConfig.RedisPassword = s.cfg.RedisPassword
	electionConfig.RedisDB = s.cfg.RedisDB
	if s.cfg.InstanceID != "" {
		electionConfig.InstanceID = s.cfg.InstanceID
	}

	election, err := leadership.NewElection(electionConfig, s.logger)
	if err != nil {
		return fmt.Errorf("create leader election: %w", err)
	}

	s.leaderAwareScheduler = scheduler.NewLeaderAware(s.scheduler, election, s.logger)
	s.logger.Info().
		Str("redis_addr", s.cfg.RedisAddr).
		Str("instance_id", electionConfig.InstanceID).
		Msg("leader election enabled for inventory maintenance")
	return nil
}

// HTTPServer exposes the underlying ops server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Handler exposes the ops router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close stops background workers and releases resources.
func (s *Server) Close() error {
	s.stopBackgroundWorkers()
	var firstErr error
	if s.leaderAwareScheduler != nil {
		firstErr = s.leaderAwareScheduler.Stop()
	}
	if err := s.app.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (s *Server) startBackgroundWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	if s.leaderAwareScheduler != nil {
		if err := s.leaderAwareScheduler.Start(ctx); err != nil {
			s.logger.Error().Err(err).Msg("leader-aware scheduler failed to start")
		}
	} else {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			if err := s.scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error().Err(err).Msg("scheduler loop exited")
			}
		}()
	}

	if s.app.RouteCache != nil {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			s.runCacheInvalidationListener(ctx)
		}()
	}
}

// runCacheInvalidationListener drops the cached route catalog after every
// full rebuild, so route edits applied by a manual regenerate on another
// instance are picked up here too.
func (s *Server) runCacheInvalidationListener(ctx context.Context) {
	regenerated := s.app.Events.Subscribe(events.EventSlotsRegenerated)
	defer s.app.Events.Unsubscribe(events.EventSlotsRegenerated, regenerated)

	s.logger.Info().Msg("cache invalidation listener started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("cache invalidation listener stopped")
			return
		case payload := <-regenerated:
			s.logger.Debug().Interface("reason", payload["reason"]).Msg("invalidating route catalog cache")
			if err := s.app.RouteCache.Invalidate(ctx); err != nil {
				s.logger.Warn().Err(err).Msg("route catalog invalidation failed")
			}
		}
	}
}

func (s *Server) stopBackgroundWorkers() {
	if s.bgCancel == nil {
		return
	}
	s.bgCancel()
	s.bgWG.Wait()
	s.bgCancel = nil
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Leader  *bool  `json:"leader,omitempty"`
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok", Version: version.Version}
		if s.leaderAwareScheduler != nil {
			leader := s.leaderAwareScheduler.IsLeader()
			resp.Leader = &leader
		}
		writeJSON(w, http.StatusOK, resp)
	})

	s.router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(s.app.DB); err != nil {
			s.logger.Warn().Err(err).Msg("readiness check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	s.router.Handle("/metrics", telemetry.Handler())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
