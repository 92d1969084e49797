/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package telemetry exposes Prometheus metrics and OpenTelemetry tracing.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Scheduler metrics
	SchedulerTicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "heimdall_scheduler_ticks_total",
		Help: "Number of scheduler ticks executed.",
	})
	SchedulerTicksSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "heimdall_scheduler_ticks_skipped_total",
		Help: "Ticks skipped because a previous tick was still in flight.",
	})
	SchedulerErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "heimdall_scheduler_errors_total",
		Help: "Scheduler errors by stage.",
	}, []string{"stage"})
	ResolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "heimdall_resolutions_total",
		Help: "Activation resolutions computed, by kind.",
	}, []string{"kind"})

	// Apply dispatcher metrics
	ApplyAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "heimdall_apply_attempts_total",
		Help: "Apply attempts by server and outcome.",
	}, []string{"server", "outcome"})
	ApplySkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "heimdall_apply_skipped_total",
		Help: "Apply calls skipped because the signature was unchanged.",
	}, []string{"server"})
	ApplyDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "heimdall_apply_duration_seconds",
		Help:    "Duration of full resolve-translate-dispatch cycles.",
		Buckets: prometheus.DefBuckets,
	}, []string{"server"})
	TranslationFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "heimdall_translation_failures_total",
		Help: "Path translation failures by reason.",
	}, []string{"reason"})

	// HTTP API metrics
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "heimdall_api_requests_total",
		Help: "HTTP API requests by method, endpoint and status.",
	}, []string{"method", "endpoint", "status"})
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "heimdall_api_request_duration_seconds",
		Help:    "HTTP API request duration.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})
	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "heimdall_api_active_connections",
		Help: "In-flight HTTP API requests.",
	})

	// Database metrics
	DatabaseQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "heimdall_db_query_duration_seconds",
		Help:    "Database operation duration by operation and table.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"operation", "table"})
	DatabaseErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "heimdall_db_errors_total",
		Help: "Database errors by operation and kind.",
	}, []string{"operation", "kind"})
	DatabaseConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "heimdall_db_connections_active",
		Help: "Open database connections.",
	})
)

// Handler exposes the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
