/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduler

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// Elector is the leader election the wrapper follows.
type Elector interface {
	Start(ctx context.Context) error
	Stop() error
	IsLeader() bool
	LeaderCh() <-chan bool
}

// Runner is a loop that runs until its context ends.
type Runner interface {
	Run(ctx context.Context) error
}

// LeaderAwareScheduler runs the maintenance loop only while this instance
// holds leadership.
type LeaderAwareScheduler struct {
	scheduler Runner
	election  Elector
	logger    zerolog.Logger

	ctx context.Context

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
}

// NewLeaderAware creates a leader-aware scheduler wrapper.
func NewLeaderAware(scheduler Runner, election Elector, logger zerolog.Logger) *LeaderAwareScheduler {
	return &LeaderAwareScheduler{
		scheduler: scheduler,
		election:  election,
		logger:    logger.With().Str("component", "leader_aware_scheduler").Logger(),
	}
}

// Start begins the election and follows leadership changes.
func (las *LeaderAwareScheduler) Start(ctx context.Context) error {
	las.ctx = ctx
	if err := las.election.Start(ctx); err != nil {
		return err
	}
	go las.monitorLeadership()
	return nil
}

// Stop halts the loop and leaves the election.
func (las *LeaderAwareScheduler) Stop() error {
	las.stopScheduler()
	return las.election.Stop()
}

// IsLeader reports whether this instance leads.
func (las *LeaderAwareScheduler) IsLeader() bool {
	return las.election.IsLeader()
}

// Running reports whether the maintenance loop is active here.
func (las *LeaderAwareScheduler) Running() bool {
	las.mu.Lock()
	defer las.mu.Unlock()
	return las.cancel != nil
}

func (las *LeaderAwareScheduler) monitorLeadership() {
	if las.election.IsLeader() {
		las.startScheduler()
	}
	for {
		select {
		case <-las.ctx.Done():
			las.stopScheduler()
			return
		case isLeader := <-las.election.LeaderCh():
			if isLeader {
				las.logger.Info().Msg("became leader, starting inventory maintenance")
				las.startScheduler()
			} else {
				las.logger.Warn().Msg("lost leadership, stopping inventory maintenance")
				las.stopScheduler()
			}
		}
	}
}

func (las *LeaderAwareScheduler) startScheduler() {
	las.mu.Lock()
	defer las.mu.Unlock()
	if las.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(las.ctx)
	stopped := make(chan struct{})
	las.cancel = cancel
	las.stopped = stopped

	go func() {
		defer close(stopped)
		if err := las.scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			las.logger.Error().Err(err).Msg("inventory maintenance error")
		}
	}()
}

// stopScheduler cancels the loop and waits for it to return.
func (las *LeaderAwareScheduler) stopScheduler() {
	las.mu.Lock()
	cancel, stopped := las.cancel, las.stopped
	las.cancel, las.stopped = nil, nil
	las.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-stopped
}
