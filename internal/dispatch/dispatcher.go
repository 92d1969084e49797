/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package dispatch walks a resolution through the per-server apply pipeline:
// resolve files, translate paths, push to the media server. Every transition
// is persisted so the dashboard can show where an apply stopped.
package dispatch

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/friendsincode/heimdall_preroll/internal/activation"
	"github.com/friendsincode/heimdall_preroll/internal/events"
	"github.com/friendsincode/heimdall_preroll/internal/mediaserver"
	"github.com/friendsincode/heimdall_preroll/internal/models"
	"github.com/friendsincode/heimdall_preroll/internal/pathmap"
	"github.com/friendsincode/heimdall_preroll/internal/sequence"
	"github.com/friendsincode/heimdall_preroll/internal/telemetry"
)

// Status enumerates per-server apply outcomes.
type Status string

const (
	StatusApplied Status = "applied"
	StatusSkipped Status = "skipped"
	StatusEmpty   Status = "empty"
	StatusFailed  Status = "failed"
)

// Outcome reports what happened to one server during an apply pass.
type Outcome struct {
	ServerID   string   `json:"server_id"`
	ServerName string   `json:"server_name"`
	Status     Status   `json:"status"`
	Signature  string   `json:"signature,omitempty"`
	Paths      int      `json:"paths"`
	Warnings   []string `json:"warnings,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// Dispatcher owns the resolve-translate-dispatch pipeline.
type Dispatcher struct {
	db        *gorm.DB
	sequences *sequence.Resolver
	applier   mediaserver.Applier
	bus       *events.Bus
	logger    zerolog.Logger
}

// New creates a dispatcher.
func New(db *gorm.DB, sequences *sequence.Resolver, applier mediaserver.Applier, bus *events.Bus, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		db:        db,
		sequences: sequences,
		applier:   applier,
		bus:       bus,
		logger:    logger.With().Str("component", "dispatch").Logger(),
	}
}

// ApplyAll pushes the resolution to every enabled media server. One server
// failing never blocks the others; each outcome is reported independently.
func (d *Dispatcher) ApplyAll(ctx context.Context, res activation.Resolution, now time.Time, force bool) ([]Outcome, error) {
	var servers []models.MediaServer
	if err := d.db.WithContext(ctx).Where("enabled = ?", true).Order("name").Find(&servers).Error; err != nil {
		return nil, fmt.Errorf("load media servers: %w", err)
	}

	outcomes := make([]Outcome, 0, len(servers))
	for _, server := range servers {
		outcomes = append(outcomes, d.ApplyToServer(ctx, server, res, now, force))
	}
	return outcomes, nil
}

// ApplyToServer runs the full pipeline for one server. All errors are folded
// into the returned outcome; the persisted state row records the stage that
// failed.
func (d *Dispatcher) ApplyToServer(ctx context.Context, server models.MediaServer, res activation.Resolution, now time.Time, force bool) Outcome {
	start := time.Now()
	out := Outcome{ServerID: server.ID, ServerName: server.Name}

	ctx, span := telemetry.StartSpan(ctx, "dispatch", "apply_to_server")
	defer span.End()
	telemetry.AddSpanAttributes(span, map[string]any{
		"server.name": server.Name,
		"server.kind": string(server.Kind),
	})

	// Snapshot the state row before the pipeline starts mutating it: the
	// skip check below compares against what the last cycle left behind.
	prior := d.loadState(ctx, server.ID)

	rng := rand.New(rand.NewSource(samplingSeed(server.ID, res, now)))

	d.setState(ctx, server.ID, models.DispatchResolving, "")

	files, mode, warnings, err := d.resolveFiles(res, rng)
	out.Warnings = warnings
	for _, w := range warnings {
		d.bus.Publish(events.EventConfigWarning, events.Payload{
			"server":  server.Name,
			"warning": w,
		})
	}
	if err != nil {
		return d.fail(ctx, server, out, start, "resolve", err)
	}
	if len(files) == 0 {
		// Nothing active and no files: clear state back to idle rather than
		// pushing an empty preference at the server.
		d.setState(ctx, server.ID, models.DispatchIdle, "")
		out.Status = StatusEmpty
		d.logger.Debug().Str("server", server.Name).Msg("resolution carries no files, nothing to apply")
		return out
	}

	d.setState(ctx, server.ID, models.DispatchTranslating, "")

	paths, err := d.translatePaths(ctx, server, files)
	if err != nil {
		telemetry.TranslationFailuresTotal.WithLabelValues(failureReason(err)).Inc()
		return d.fail(ctx, server, out, start, "translate", err)
	}

	// Shuffle-mode servers randomize a ";"-joined list themselves, so the
	// order we send is irrelevant. Normalizing it keeps the signature stable
	// across ticks and preserves the skip-if-unchanged guarantee.
	if mode == models.PlaybackRandom {
		sort.Strings(paths)
	}

	joined := strings.Join(paths, mode.Delimiter())
	out.Signature = signature(server.ID, mode, joined)
	out.Paths = len(paths)

	if !force && prior != nil && prior.LastSignature == out.Signature && prior.State == models.DispatchApplied {
		d.setState(ctx, server.ID, models.DispatchApplied, "")
		telemetry.ApplySkippedTotal.WithLabelValues(server.Name).Inc()
		out.Status = StatusSkipped
		d.logger.Debug().Str("server", server.Name).Str("signature", out.Signature).Msg("signature unchanged, skipping apply")
		return out
	}

	d.setState(ctx, server.ID, models.DispatchDispatching, "")

	if err := d.applier.Apply(ctx, server, joined, mode); err != nil {
		return d.fail(ctx, server, out, start, "dispatch", err)
	}

	d.recordApplied(ctx, server.ID, out.Signature, res)
	telemetry.ApplyAttemptsTotal.WithLabelValues(server.Name, "success").Inc()
	telemetry.ApplyDuration.WithLabelValues(server.Name).Observe(time.Since(start).Seconds())

	d.bus.Publish(events.EventApplySuccess, events.Payload{
		"server":    server.Name,
		"signature": out.Signature,
		"paths":     len(paths),
		"kind":      string(res.Kind),
	})

	d.logger.Info().
		Str("server", server.Name).
		Str("kind", string(res.Kind)).
		Int("paths", len(paths)).
		Str("signature", out.Signature).
		Msg("prerolls applied")

	out.Status = StatusApplied
	return out
}

// TestServer probes server connectivity without applying anything.
func (d *Dispatcher) TestServer(ctx context.Context, server models.MediaServer) error {
	return d.applier.Test(ctx, server)
}

// resolveFiles expands every target in the resolution into a flat file list.
// Blend resolutions concatenate targets in resolution order; a sequence
// target anywhere forces ordered playback for the whole list.
func (d *Dispatcher) resolveFiles(res activation.Resolution, rng *rand.Rand) ([]sequence.FileRef, models.PlaybackMode, []string, error) {
	var (
		files    []sequence.FileRef
		warnings []string
	)
	mode := models.PlaybackRandom

	for _, tgt := range res.Targets {
		result, err := d.sequences.Resolve(sequence.Target{
			CategoryID: tgt.CategoryID,
			SequenceID: tgt.SequenceID,
		}, rng)
		if err != nil {
			return nil, mode, warnings, err
		}
		files = append(files, result.Files...)
		warnings = append(warnings, result.Warnings...)
		if result.Mode == models.PlaybackSequential {
			mode = models.PlaybackSequential
		}
	}
	return files, mode, warnings, nil
}

// translatePaths maps every stored path into the server's filesystem view.
// Global mappings and server-specific mappings are merged in Position order,
// server-specific first on equal position.
func (d *Dispatcher) translatePaths(ctx context.Context, server models.MediaServer, files []sequence.FileRef) ([]string, error) {
	var stored []models.PathMapping
	err := d.db.WithContext(ctx).
		Where("server_id = ? OR server_id IS NULL", server.ID).
		Order("position, server_id DESC").
		Find(&stored).Error
	if err != nil {
		return nil, fmt.Errorf("load path mappings: %w", err)
	}

	mappings := pathmap.FromModels(stored)
	paths := make([]string, 0, len(files))
	for _, f := range files {
		result, err := pathmap.TranslateFor(f.Path, mappings, server.Platform)
		if err != nil {
			return nil, fmt.Errorf("translate %q: %w", f.Path, err)
		}
		if !result.Mapped {
			d.logger.Warn().
				Str("server", server.Name).
				Str("path", f.Path).
				Msg("no path mapping matched, passing through unchanged")
		}
		paths = append(paths, result.Path)
	}
	return paths, nil
}

func (d *Dispatcher) fail(ctx context.Context, server models.MediaServer, out Outcome, start time.Time, stage string, err error) Outcome {
	d.setState(ctx, server.ID, models.DispatchFailed, err.Error())
	telemetry.ApplyAttemptsTotal.WithLabelValues(server.Name, "failure").Inc()
	telemetry.ApplyDuration.WithLabelValues(server.Name).Observe(time.Since(start).Seconds())

	d.bus.Publish(events.EventApplyFailure, events.Payload{
		"server": server.Name,
		"stage":  stage,
		"error":  err.Error(),
	})

	d.logger.Error().Err(err).Str("server", server.Name).Str("stage", stage).Msg("apply failed")

	out.Status = StatusFailed
	out.Error = err.Error()
	return out
}

// setState upserts the per-server state row with the given dispatch state.
func (d *Dispatcher) setState(ctx context.Context, serverID string, state models.DispatchState, lastError string) {
	now := time.Now()
	row := models.ApplyState{
		ID:            uuid.NewString(),
		ServerID:      serverID,
		State:         state,
		LastAttemptAt: &now,
		LastError:     lastError,
	}
	err := d.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "server_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"state", "last_attempt_at", "last_error", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		d.logger.Warn().Err(err).Str("server_id", serverID).Msg("failed to persist dispatch state")
	}
}

// recordApplied stamps the state row after a successful dispatch, including
// a JSON snapshot of the resolution for the dashboard.
func (d *Dispatcher) recordApplied(ctx context.Context, serverID, sig string, res activation.Resolution) {
	now := time.Now()
	snapshot, _ := json.Marshal(res)

	row := models.ApplyState{
		ID:             uuid.NewString(),
		ServerID:       serverID,
		State:          models.DispatchApplied,
		LastSignature:  sig,
		LastAppliedAt:  &now,
		LastAttemptAt:  &now,
		LastResolution: string(snapshot),
	}
	err := d.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "server_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"state", "last_signature", "last_applied_at", "last_attempt_at", "last_error", "last_resolution", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		d.logger.Warn().Err(err).Str("server_id", serverID).Msg("failed to persist applied state")
	}
}

func (d *Dispatcher) loadState(ctx context.Context, serverID string) *models.ApplyState {
	var state models.ApplyState
	err := d.db.WithContext(ctx).Where("server_id = ?", serverID).First(&state).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			d.logger.Warn().Err(err).Str("server_id", serverID).Msg("failed to load dispatch state")
		}
		return nil
	}
	return &state
}

// States returns the persisted per-server apply states.
func (d *Dispatcher) States(ctx context.Context) ([]models.ApplyState, error) {
	var states []models.ApplyState
	if err := d.db.WithContext(ctx).Find(&states).Error; err != nil {
		return nil, fmt.Errorf("load apply states: %w", err)
	}
	return states, nil
}

// samplingSeed derives the rng seed for random sampling. It depends only on
// the server, the resolution content, and the local day, so an unchanged
// resolution produces the same picks tick after tick and the signature check
// can skip the dispatch. Picks rotate when the day rolls over.
func samplingSeed(serverID string, res activation.Resolution, now time.Time) int64 {
	h := sha256.New()
	h.Write([]byte(serverID))
	h.Write([]byte{0})
	h.Write([]byte(res.Kind))
	h.Write([]byte{0})
	h.Write([]byte(now.Format("2006-01-02")))
	for _, tgt := range res.Targets {
		h.Write([]byte{0})
		h.Write([]byte(tgt.CategoryID))
		h.Write([]byte{0})
		h.Write([]byte(tgt.SequenceID))
	}
	sum := h.Sum(nil)
	return int64(binary.BigEndian.Uint64(sum[:8]))
}

// signature fingerprints what would be sent to a server. Identical
// signatures mean an apply would be a no-op.
func signature(serverID string, mode models.PlaybackMode, joined string) string {
	h := sha256.New()
	h.Write([]byte(serverID))
	h.Write([]byte{0})
	h.Write([]byte(mode))
	h.Write([]byte{0})
	h.Write([]byte(joined))
	return hex.EncodeToString(h.Sum(nil))
}

func failureReason(err error) string {
	if errors.Is(err, pathmap.ErrPlatformMismatch) {
		return "platform_mismatch"
	}
	return "other"
}
