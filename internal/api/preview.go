/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"math/rand"
	"net/http"
	"time"

	"github.com/friendsincode/heimdall_preroll/internal/sequence"
)

type previewRequest struct {
	CategoryID string `json:"category_id,omitempty"`
	SequenceID string `json:"sequence_id,omitempty"`
	// Seed makes random blocks reproducible across preview calls. Zero means
	// a fresh shuffle each time.
	Seed int64 `json:"seed,omitempty"`
}

// handleSequencePreview expands a category or sequence into the file list
// it would produce, without touching any server.
func (a *API) handleSequencePreview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body")
		return
	}
	if req.CategoryID == "" && req.SequenceID == "" {
		writeError(w, http.StatusBadRequest, "missing_target")
		return
	}

	seed := req.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	result, err := a.sequences.Resolve(sequence.Target{
		CategoryID: req.CategoryID,
		SequenceID: req.SequenceID,
	}, rng)
	if err != nil {
		a.logger.Warn().Err(err).Str("category_id", req.CategoryID).Str("sequence_id", req.SequenceID).Msg("preview failed")
		writeError(w, http.StatusUnprocessableEntity, "resolve_failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"files":    result.Files,
		"mode":     result.Mode,
		"warnings": result.Warnings,
		"seed":     seed,
	})
}
