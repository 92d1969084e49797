/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"github.com/friendsincode/heimdall_preroll/internal/models"
)

type serverSummary struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Kind     models.ServerKind `json:"kind"`
	BaseURL  string            `json:"base_url"`
	Platform models.Platform   `json:"platform"`
	Enabled  bool              `json:"enabled"`
}

// handleServersList lists configured media servers. Tokens never leave the
// database.
func (a *API) handleServersList(w http.ResponseWriter, r *http.Request) {
	var servers []models.MediaServer
	if err := a.db.WithContext(r.Context()).Order("name").Find(&servers).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "servers_load_failed")
		return
	}

	summaries := make([]serverSummary, 0, len(servers))
	for _, s := range servers {
		summaries = append(summaries, serverSummary{
			ID:       s.ID,
			Name:     s.Name,
			Kind:     s.Kind,
			BaseURL:  s.BaseURL,
			Platform: s.Platform,
			Enabled:  s.Enabled,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"servers": summaries})
}

// handleServerStates returns the persisted per-server apply states.
func (a *API) handleServerStates(w http.ResponseWriter, r *http.Request) {
	states, err := a.dispatcher.States(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "states_load_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"states": states})
}

// handleServerApply forces an apply to one server, bypassing the signature
// check for that server.
func (a *API) handleServerApply(w http.ResponseWriter, r *http.Request) {
	serverID := chi.URLParam(r, "serverID")

	outcome, err := a.scheduler.ForceApplyServer(r.Context(), serverID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeError(w, http.StatusNotFound, "server_not_found")
			return
		}
		a.logger.Error().Err(err).Str("server_id", serverID).Msg("manual server apply failed")
		writeError(w, http.StatusInternalServerError, "apply_failed")
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

// handleServerTest probes server connectivity without applying anything.
func (a *API) handleServerTest(w http.ResponseWriter, r *http.Request) {
	serverID := chi.URLParam(r, "serverID")

	var server models.MediaServer
	if err := a.db.WithContext(r.Context()).First(&server, "id = ?", serverID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeError(w, http.StatusNotFound, "server_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_load_failed")
		return
	}

	if err := a.dispatcher.TestServer(r.Context(), server); err != nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"reachable": false,
			"error":     err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reachable": true})
}
