/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package scheduler drives the periodic activation-and-apply cycle. One
// ticker, one in-flight guard: a tick that is still dispatching blocks the
// next tick and any manual apply, never runs concurrently with them.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/heimdall_preroll/internal/activation"
	"github.com/friendsincode/heimdall_preroll/internal/cache"
	"github.com/friendsincode/heimdall_preroll/internal/clock"
	"github.com/friendsincode/heimdall_preroll/internal/dispatch"
	"github.com/friendsincode/heimdall_preroll/internal/events"
	"github.com/friendsincode/heimdall_preroll/internal/models"
	"github.com/friendsincode/heimdall_preroll/internal/recurrence"
	"github.com/friendsincode/heimdall_preroll/internal/telemetry"
)

// State is a snapshot of the scheduler for the dashboard and API.
type State struct {
	LastTickAt     time.Time             `json:"last_tick_at"`
	InFlight       bool                  `json:"in_flight"`
	LastResolution activation.Resolution `json:"last_resolution"`
	LastOutcomes   []dispatch.Outcome    `json:"last_outcomes,omitempty"`
}

// Upcoming is one schedule's next activation boundary.
type Upcoming struct {
	ScheduleID   string    `json:"schedule_id"`
	ScheduleName string    `json:"schedule_name"`
	Active       bool      `json:"active"`
	TransitionAt time.Time `json:"transition_at"`
}

// Service owns the tick loop and the in-flight guard.
type Service struct {
	db         *gorm.DB
	clock      clock.Clock
	recurrence *recurrence.Resolver
	engine     *activation.Engine
	dispatcher *dispatch.Dispatcher
	cache      *cache.Cache
	bus        *events.Bus
	logger     zerolog.Logger
	interval   time.Duration

	// inFlight serializes ticks and manual applies. The state fields below
	// share it: they are only written while it is held.
	inFlight sync.Mutex

	stateMu sync.RWMutex
	state   State
}

// New creates a scheduler service.
func New(db *gorm.DB, clk clock.Clock, rec *recurrence.Resolver, engine *activation.Engine, dispatcher *dispatch.Dispatcher, ch *cache.Cache, bus *events.Bus, interval time.Duration, logger zerolog.Logger) *Service {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Service{
		db:         db,
		clock:      clk,
		recurrence: rec,
		engine:     engine,
		dispatcher: dispatcher,
		cache:      ch,
		bus:        bus,
		logger:     logger.With().Str("component", "scheduler").Logger(),
		interval:   interval,
	}
}

// Run ticks until the context is cancelled. The first cycle fires
// immediately so a restart re-applies promptly. An in-flight apply finishes
// before Run returns.
func (s *Service) Run(ctx context.Context) {
	s.logger.Info().Dur("interval", s.interval).Msg("scheduler started")

	s.tick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Wait for any in-flight cycle before reporting stopped.
			s.inFlight.Lock()
			s.inFlight.Unlock()
			s.logger.Info().Msg("scheduler stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick runs one cycle if no other cycle is in flight. A busy guard means the
// previous tick is still dispatching; this tick is dropped, not queued.
func (s *Service) tick(ctx context.Context) {
	if !s.inFlight.TryLock() {
		telemetry.SchedulerTicksSkippedTotal.Inc()
		s.logger.Warn().Msg("previous cycle still in flight, skipping tick")
		return
	}
	defer s.inFlight.Unlock()

	telemetry.SchedulerTicksTotal.Inc()
	if _, err := s.cycle(ctx, false); err != nil {
		s.logger.Error().Err(err).Msg("tick failed")
	}
}

// ForceApply runs a full cycle immediately, bypassing the signature check.
// It shares the in-flight guard with the ticker and blocks until the guard
// is free.
func (s *Service) ForceApply(ctx context.Context) ([]dispatch.Outcome, error) {
	s.inFlight.Lock()
	defer s.inFlight.Unlock()
	return s.cycle(ctx, true)
}

// ForceApplyServer applies the current resolution to a single server,
// bypassing the signature check for that server only.
func (s *Service) ForceApplyServer(ctx context.Context, serverID string) (dispatch.Outcome, error) {
	s.inFlight.Lock()
	defer s.inFlight.Unlock()

	var server models.MediaServer
	if err := s.db.WithContext(ctx).First(&server, "id = ?", serverID).Error; err != nil {
		return dispatch.Outcome{}, fmt.Errorf("load server %s: %w", serverID, err)
	}

	schedules, err := s.loadSchedules(ctx)
	if err != nil {
		return dispatch.Outcome{}, err
	}

	now := s.clock.Now()
	res := s.engine.Resolve(schedules, now)
	out := s.dispatcher.ApplyToServer(ctx, server, res, now, true)
	s.finishCycle(ctx, now, res, []dispatch.Outcome{out})
	return out, nil
}

// cycle is the resolve-then-dispatch body shared by ticks and manual
// applies. Callers hold the in-flight guard.
func (s *Service) cycle(ctx context.Context, force bool) ([]dispatch.Outcome, error) {
	ctx, span := telemetry.StartSpan(ctx, "scheduler", "cycle")
	defer span.End()

	s.setInFlight(true)
	defer s.setInFlight(false)

	schedules, err := s.loadSchedules(ctx)
	if err != nil {
		telemetry.SchedulerErrorsTotal.WithLabelValues("load").Inc()
		telemetry.RecordError(span, err)
		return nil, err
	}

	now := s.clock.Now()
	res := s.engine.Resolve(schedules, now)
	telemetry.ResolutionsTotal.WithLabelValues(string(res.Kind)).Inc()
	telemetry.AddSpanAttributes(span, map[string]any{
		"resolution.kind":    string(res.Kind),
		"resolution.targets": len(res.Targets),
		"force":              force,
	})

	outcomes, err := s.dispatcher.ApplyAll(ctx, res, now, force)
	if err != nil {
		telemetry.SchedulerErrorsTotal.WithLabelValues("dispatch").Inc()
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.finishCycle(ctx, now, res, outcomes)
	return outcomes, nil
}

// finishCycle stamps winning schedules, refreshes the cache, publishes the
// change event, and records the new state snapshot.
func (s *Service) finishCycle(ctx context.Context, now time.Time, res activation.Resolution, outcomes []dispatch.Outcome) {
	s.stampSchedules(ctx, res, outcomes, now)

	if s.cache != nil {
		if err := s.cache.SetCurrentResolution(ctx, res); err != nil {
			s.logger.Debug().Err(err).Msg("failed to cache resolution")
		}
	}

	s.stateMu.Lock()
	changed := !sameResolution(s.state.LastResolution, res)
	s.state.LastTickAt = now
	s.state.LastResolution = res
	s.state.LastOutcomes = outcomes
	s.stateMu.Unlock()

	if changed {
		s.bus.Publish(events.EventResolutionChange, events.Payload{
			"kind":         string(res.Kind),
			"targets":      res.Targets,
			"schedule_ids": res.ScheduleIDs,
			"resolved_at":  res.ResolvedAt,
		})
		s.logger.Info().
			Str("kind", string(res.Kind)).
			Int("targets", len(res.Targets)).
			Strs("schedule_ids", res.ScheduleIDs).
			Msg("resolution changed")
	}
}

// stampSchedules records last_run on the schedules behind a successful
// apply. This is the engine's only write to schedule rows.
func (s *Service) stampSchedules(ctx context.Context, res activation.Resolution, outcomes []dispatch.Outcome, now time.Time) {
	applied := false
	sig := ""
	for _, out := range outcomes {
		if out.Status == dispatch.StatusApplied {
			applied = true
			sig = out.Signature
			break
		}
	}
	if !applied || len(res.ScheduleIDs) == 0 {
		return
	}

	err := s.db.WithContext(ctx).Model(&models.Schedule{}).
		Where("id IN ?", res.ScheduleIDs).
		Updates(map[string]any{"last_run_at": now, "last_signature": sig}).Error
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to stamp schedule last_run")
	}
}

// loadSchedules reads the schedule list, cache first.
func (s *Service) loadSchedules(ctx context.Context) ([]models.Schedule, error) {
	if s.cache != nil {
		if schedules, ok := s.cache.GetScheduleList(ctx); ok {
			return schedules, nil
		}
	}

	var schedules []models.Schedule
	if err := s.db.WithContext(ctx).Find(&schedules).Error; err != nil {
		return nil, fmt.Errorf("load schedules: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.SetScheduleList(ctx, schedules); err != nil {
			s.logger.Debug().Err(err).Msg("failed to cache schedule list")
		}
	}
	return schedules, nil
}

// InvalidateSchedules drops the cached schedule list so the next cycle
// re-reads the database. Called by the API on any schedule mutation.
func (s *Service) InvalidateSchedules(ctx context.Context) {
	if s.cache != nil {
		_ = s.cache.InvalidateScheduleList(ctx)
	}
	s.bus.Publish(events.EventScheduleUpdate, events.Payload{"at": s.clock.Now()})
}

// CurrentResolution recomputes the resolution for now without dispatching.
func (s *Service) CurrentResolution(ctx context.Context) (activation.Resolution, error) {
	schedules, err := s.loadSchedules(ctx)
	if err != nil {
		return activation.Resolution{}, err
	}
	return s.engine.Resolve(schedules, s.clock.Now()), nil
}

// UpcomingTransitions reports each enabled schedule's next activation
// boundary inside the horizon, soonest first.
func (s *Service) UpcomingTransitions(ctx context.Context, horizon time.Duration) ([]Upcoming, error) {
	schedules, err := s.loadSchedules(ctx)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	limit := now.Add(horizon)

	var upcoming []Upcoming
	for i := range schedules {
		sched := &schedules[i]
		if !sched.Enabled {
			continue
		}
		next, ok := s.recurrence.NextTransition(sched, now)
		if !ok || next.After(limit) {
			continue
		}
		upcoming = append(upcoming, Upcoming{
			ScheduleID:   sched.ID,
			ScheduleName: sched.Name,
			Active:       s.recurrence.IsActive(sched, now),
			TransitionAt: next,
		})
	}

	sort.Slice(upcoming, func(i, j int) bool {
		return upcoming[i].TransitionAt.Before(upcoming[j].TransitionAt)
	})
	return upcoming, nil
}

// State returns the current snapshot.
func (s *Service) State() State {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

func (s *Service) setInFlight(v bool) {
	s.stateMu.Lock()
	s.state.InFlight = v
	s.stateMu.Unlock()
}

// sameResolution compares resolutions by kind and target list, ignoring the
// resolved-at stamp.
func sameResolution(a, b activation.Resolution) bool {
	if a.Kind != b.Kind || len(a.Targets) != len(b.Targets) {
		return false
	}
	for i := range a.Targets {
		if a.Targets[i] != b.Targets[i] {
			return false
		}
	}
	return true
}
