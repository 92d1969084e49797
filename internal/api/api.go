/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package api exposes the engine over HTTP: current resolution, sequence
// previews, mapping tests, manual applies, and the live event stream.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/heimdall_preroll/internal/dispatch"
	"github.com/friendsincode/heimdall_preroll/internal/events"
	"github.com/friendsincode/heimdall_preroll/internal/logbuffer"
	"github.com/friendsincode/heimdall_preroll/internal/recurrence"
	"github.com/friendsincode/heimdall_preroll/internal/scheduler"
	"github.com/friendsincode/heimdall_preroll/internal/sequence"
	"github.com/friendsincode/heimdall_preroll/internal/version"
)

// API exposes HTTP handlers.
type API struct {
	db         *gorm.DB
	scheduler  *scheduler.Service
	dispatcher *dispatch.Dispatcher
	sequences  *sequence.Resolver
	recurrence *recurrence.Resolver
	bus        *events.Bus
	logBuffer  *logbuffer.Buffer
	updates    *version.Checker
	logger     zerolog.Logger
}

// SetUpdateChecker attaches the release update checker.
func (a *API) SetUpdateChecker(checker *version.Checker) {
	a.updates = checker
}

// New creates the API router wrapper.
func New(db *gorm.DB, sched *scheduler.Service, dispatcher *dispatch.Dispatcher, sequences *sequence.Resolver, rec *recurrence.Resolver, bus *events.Bus, logBuf *logbuffer.Buffer, logger zerolog.Logger) *API {
	return &API{
		db:         db,
		scheduler:  sched,
		dispatcher: dispatcher,
		sequences:  sequences,
		recurrence: rec,
		bus:        bus,
		logBuffer:  logBuf,
		logger:     logger.With().Str("component", "api").Logger(),
	}
}

// Routes mounts all API endpoints under /api/v1.
func (a *API) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", a.handleHealth)
		r.Get("/version", a.handleVersion)

		r.Get("/resolution/current", a.handleCurrentResolution)
		r.Get("/scheduler/state", a.handleSchedulerState)
		r.Post("/apply", a.handleApplyAll)

		r.Route("/schedules", func(r chi.Router) {
			r.Get("/upcoming", a.handleUpcomingSchedules)
			r.Post("/validate", a.handleValidateSchedule)
			r.Post("/refresh", a.handleRefreshSchedules)
		})

		r.Post("/sequences/preview", a.handleSequencePreview)
		r.Post("/mappings/test", a.handleMappingTest)

		r.Route("/servers", func(r chi.Router) {
			r.Get("/", a.handleServersList)
			r.Get("/states", a.handleServerStates)
			r.Post("/{serverID}/apply", a.handleServerApply)
			r.Post("/{serverID}/test", a.handleServerTest)
		})

		r.Get("/logs/recent", a.handleRecentLogs)
		r.Get("/events", a.handleEventsWS)
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleVersion(w http.ResponseWriter, r *http.Request) {
	if a.updates == nil {
		writeJSON(w, http.StatusOK, version.UpdateInfo{CurrentVersion: version.Version})
		return
	}
	writeJSON(w, http.StatusOK, a.updates.Info())
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
