/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package activation resolves the set of schedules into one effective
// resolution per tick: a single category, a blend of categories, or the
// fallback.
package activation

import (
	"sort"
	"time"

	"github.com/friendsincode/heimdall_preroll/internal/models"
	"github.com/friendsincode/heimdall_preroll/internal/recurrence"
	"github.com/rs/zerolog"
)

// Kind enumerates resolution outcomes.
type Kind string

const (
	KindSingle   Kind = "single"
	KindBlend    Kind = "blend"
	KindFallback Kind = "fallback"
)

// Target is a resolved category or sequence reference.
type Target struct {
	CategoryID string `json:"category_id,omitempty"`
	SequenceID string `json:"sequence_id,omitempty"`
}

// Resolution is the engine's per-tick output. It is ephemeral: recomputed
// every tick, never persisted (the dispatcher snapshots it as JSON for the
// dashboard only).
type Resolution struct {
	Kind Kind `json:"kind"`

	// Single: the winning schedule's target. Fallback: the fallback
	// category, possibly empty. Blend: every active blend target.
	Targets []Target `json:"targets,omitempty"`

	// ScheduleIDs that produced this resolution, for logging and the UI.
	ScheduleIDs []string `json:"schedule_ids,omitempty"`

	ResolvedAt time.Time `json:"resolved_at"`
}

// IsEmpty reports whether the resolution carries nothing to apply.
func (r Resolution) IsEmpty() bool {
	return len(r.Targets) == 0
}

// Engine applies recurrence evaluation and conflict resolution.
type Engine struct {
	recurrence *recurrence.Resolver
	logger     zerolog.Logger
}

// New creates an activation engine.
func New(rec *recurrence.Resolver, logger zerolog.Logger) *Engine {
	return &Engine{recurrence: rec, logger: logger}
}

// Resolve computes the effective resolution for now. Disabled and
// misconfigured schedules never contribute. The outcome is deterministic:
// exclusive conflicts break ties on priority, then the win flag, then the
// highest schedule ID.
func (e *Engine) Resolve(schedules []models.Schedule, now time.Time) Resolution {
	var active []*models.Schedule
	for i := range schedules {
		s := &schedules[i]
		if !s.Enabled {
			continue
		}
		if e.recurrence.IsActive(s, now) {
			active = append(active, s)
		}
	}

	if len(active) == 0 {
		return e.fallback(schedules, now)
	}

	var exclusive, blend []*models.Schedule
	for _, s := range active {
		if s.Exclusive {
			exclusive = append(exclusive, s)
		} else {
			blend = append(blend, s)
		}
	}

	// Exclusivity is absolute: one winner, blend schedules ignored entirely.
	if len(exclusive) > 0 {
		winner := pickExclusive(exclusive)
		e.logger.Debug().
			Str("schedule_id", winner.ID).
			Str("schedule", winner.Name).
			Int("priority", winner.Priority).
			Int("contenders", len(exclusive)).
			Msg("exclusive schedule selected")
		return Resolution{
			Kind:        KindSingle,
			Targets:     []Target{targetOf(winner)},
			ScheduleIDs: []string{winner.ID},
			ResolvedAt:  now,
		}
	}

	// No exclusive winner: union all blend targets, de-duplicated, in a
	// stable order so repeated ticks produce identical resolutions.
	sort.Slice(blend, func(i, j int) bool {
		if blend[i].Priority != blend[j].Priority {
			return blend[i].Priority > blend[j].Priority
		}
		return blend[i].ID > blend[j].ID
	})

	seen := make(map[Target]struct{}, len(blend))
	res := Resolution{Kind: KindBlend, ResolvedAt: now}
	for _, s := range blend {
		tgt := targetOf(s)
		if _, dup := seen[tgt]; dup {
			continue
		}
		seen[tgt] = struct{}{}
		res.Targets = append(res.Targets, tgt)
		res.ScheduleIDs = append(res.ScheduleIDs, s.ID)
	}
	return res
}

// fallback picks the fallback category configured on the highest-priority
// schedule that defines one. Any schedule's fallback may apply in the absence
// of active schedules.
func (e *Engine) fallback(schedules []models.Schedule, now time.Time) Resolution {
	var carrier *models.Schedule
	for i := range schedules {
		s := &schedules[i]
		if !s.Enabled || s.FallbackCategoryID == nil || *s.FallbackCategoryID == "" {
			continue
		}
		if carrier == nil || betterFallbackCarrier(s, carrier) {
			carrier = s
		}
	}

	if carrier == nil {
		return Resolution{Kind: KindFallback, ResolvedAt: now}
	}

	return Resolution{
		Kind:        KindFallback,
		Targets:     []Target{{CategoryID: *carrier.FallbackCategoryID}},
		ScheduleIDs: []string{carrier.ID},
		ResolvedAt:  now,
	}
}

func betterFallbackCarrier(candidate, current *models.Schedule) bool {
	if candidate.Priority != current.Priority {
		return candidate.Priority > current.Priority
	}
	return candidate.ID > current.ID
}

// pickExclusive selects the winner among simultaneously-active exclusive
// schedules: priority, then the win flag, then the highest (most recently
// created) schedule ID.
func pickExclusive(candidates []*models.Schedule) *models.Schedule {
	winner := candidates[0]
	for _, s := range candidates[1:] {
		if s.Priority != winner.Priority {
			if s.Priority > winner.Priority {
				winner = s
			}
			continue
		}
		if s.WinTie != winner.WinTie {
			if s.WinTie {
				winner = s
			}
			continue
		}
		if s.ID > winner.ID {
			winner = s
		}
	}
	return winner
}

func targetOf(s *models.Schedule) Target {
	if s.TargetsSequence() {
		return Target{SequenceID: *s.SequenceID}
	}
	if s.CategoryID != nil {
		return Target{CategoryID: *s.CategoryID}
	}
	return Target{}
}
