/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"
	"strconv"
	"time"
)

// handleCurrentResolution recomputes the effective resolution for now
// without dispatching anything.
func (a *API) handleCurrentResolution(w http.ResponseWriter, r *http.Request) {
	res, err := a.scheduler.CurrentResolution(r.Context())
	if err != nil {
		a.logger.Error().Err(err).Msg("failed to compute resolution")
		writeError(w, http.StatusInternalServerError, "resolution_failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleSchedulerState returns the last tick snapshot.
func (a *API) handleSchedulerState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.scheduler.State())
}

// handleApplyAll forces a full cycle on every enabled server, bypassing the
// signature check.
func (a *API) handleApplyAll(w http.ResponseWriter, r *http.Request) {
	outcomes, err := a.scheduler.ForceApply(r.Context())
	if err != nil {
		a.logger.Error().Err(err).Msg("manual apply failed")
		writeError(w, http.StatusInternalServerError, "apply_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"outcomes": outcomes})
}

// handleUpcomingSchedules lists each schedule's next activation boundary
// within the horizon (default 7 days, ?hours= to override).
func (a *API) handleUpcomingSchedules(w http.ResponseWriter, r *http.Request) {
	horizon := 7 * 24 * time.Hour
	if raw := r.URL.Query().Get("hours"); raw != "" {
		hours, err := strconv.Atoi(raw)
		if err != nil || hours <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_hours")
			return
		}
		horizon = time.Duration(hours) * time.Hour
	}

	upcoming, err := a.scheduler.UpcomingTransitions(r.Context(), horizon)
	if err != nil {
		a.logger.Error().Err(err).Msg("failed to compute upcoming transitions")
		writeError(w, http.StatusInternalServerError, "upcoming_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"upcoming": upcoming})
}

// handleRefreshSchedules drops the cached schedule list after an external
// mutation so the next tick sees fresh rows.
func (a *API) handleRefreshSchedules(w http.ResponseWriter, r *http.Request) {
	a.scheduler.InvalidateSchedules(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"status": "refreshed"})
}
