/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"gorm.io/gorm"

	"github.com/friendsincode/heimdall_preroll/internal/models"
	"github.com/friendsincode/heimdall_preroll/internal/pathmap"
)

type mappingTestRequest struct {
	Path string `json:"path"`
	// ServerID loads that server's mapping table and platform. Omitted, the
	// request must carry explicit mappings and a platform.
	ServerID string            `json:"server_id,omitempty"`
	Platform models.Platform   `json:"platform,omitempty"`
	Mappings []mappingTestPair `json:"mappings,omitempty"`
}

type mappingTestPair struct {
	SourcePrefix string `json:"source_prefix"`
	DestPrefix   string `json:"dest_prefix"`
}

// handleMappingTest translates one path through a mapping table and reports
// the outcome, including platform validation.
func (a *API) handleMappingTest(w http.ResponseWriter, r *http.Request) {
	var req mappingTestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body")
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "missing_path")
		return
	}

	var (
		mappings []pathmap.Mapping
		platform = req.Platform
	)

	if req.ServerID != "" {
		var server models.MediaServer
		if err := a.db.WithContext(r.Context()).First(&server, "id = ?", req.ServerID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				writeError(w, http.StatusNotFound, "server_not_found")
				return
			}
			writeError(w, http.StatusInternalServerError, "server_load_failed")
			return
		}
		platform = server.Platform

		var stored []models.PathMapping
		err := a.db.WithContext(r.Context()).
			Where("server_id = ? OR server_id IS NULL", server.ID).
			Order("position, server_id DESC").
			Find(&stored).Error
		if err != nil {
			writeError(w, http.StatusInternalServerError, "mappings_load_failed")
			return
		}
		mappings = pathmap.FromModels(stored)
	} else {
		for _, m := range req.Mappings {
			mappings = append(mappings, pathmap.Mapping{SourcePrefix: m.SourcePrefix, DestPrefix: m.DestPrefix})
		}
	}

	result := pathmap.Translate(req.Path, mappings)

	response := map[string]any{
		"input":  req.Path,
		"output": result.Path,
		"mapped": result.Mapped,
	}
	if platform != "" {
		if err := pathmap.ValidatePlatform(result.Path, platform); err != nil {
			response["platform_ok"] = false
			response["platform_error"] = err.Error()
		} else {
			response["platform_ok"] = true
		}
	}

	writeJSON(w, http.StatusOK, response)
}
