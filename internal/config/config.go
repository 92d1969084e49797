/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string
	HTTPBind    string
	HTTPPort    int
	DBBackend   DatabaseBackend
	DBDSN       string
	MetricsBind string

	// Timezone is the server's local zone; all schedule comparisons happen
	// here. Empty means the host zone.
	Timezone string

	// Scheduler cadence and external-call bound.
	TickInterval time.Duration
	ApplyTimeout time.Duration

	// HolidayCalendarPath optionally overrides the embedded holiday calendar.
	HolidayCalendarPath string

	// Redis cache (optional; the engine runs fine without it).
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	LegacyEnvWarnings []string
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnvAny([]string{"HEIMDALL_ENV", "PREROLL_ENV"}, "development"),
		HTTPBind:    getEnvAny([]string{"HEIMDALL_HTTP_BIND", "PREROLL_HTTP_BIND"}, "0.0.0.0"),
		HTTPPort:    getEnvIntAny([]string{"HEIMDALL_HTTP_PORT", "PREROLL_HTTP_PORT"}, 8080),
		DBBackend:   DatabaseBackend(getEnvAny([]string{"HEIMDALL_DB_BACKEND", "PREROLL_DB_BACKEND"}, string(DatabaseSQLite))),
		DBDSN:       getEnvAny([]string{"HEIMDALL_DB_DSN", "PREROLL_DB_DSN"}, ""),
		MetricsBind: getEnvAny([]string{"HEIMDALL_METRICS_BIND", "PREROLL_METRICS_BIND"}, "127.0.0.1:9000"),

		Timezone: getEnvAny([]string{"HEIMDALL_TIMEZONE", "PREROLL_TIMEZONE", "TZ"}, ""),

		TickInterval: time.Duration(getEnvIntAny([]string{"HEIMDALL_TICK_INTERVAL_SECONDS", "PREROLL_TICK_INTERVAL_SECONDS"}, 60)) * time.Second,
		ApplyTimeout: time.Duration(getEnvIntAny([]string{"HEIMDALL_APPLY_TIMEOUT_SECONDS", "PREROLL_APPLY_TIMEOUT_SECONDS"}, 15)) * time.Second,

		HolidayCalendarPath: getEnvAny([]string{"HEIMDALL_HOLIDAY_CALENDAR", "PREROLL_HOLIDAY_CALENDAR"}, ""),

		RedisAddr:     getEnvAny([]string{"HEIMDALL_REDIS_ADDR", "PREROLL_REDIS_ADDR"}, ""),
		RedisPassword: getEnvAny([]string{"HEIMDALL_REDIS_PASSWORD", "PREROLL_REDIS_PASSWORD"}, ""),
		RedisDB:       getEnvIntAny([]string{"HEIMDALL_REDIS_DB", "PREROLL_REDIS_DB"}, 0),

		TracingEnabled:    getEnvBoolAny([]string{"HEIMDALL_TRACING_ENABLED", "PREROLL_TRACING_ENABLED"}, false),
		OTLPEndpoint:      getEnvAny([]string{"HEIMDALL_OTLP_ENDPOINT", "PREROLL_OTLP_ENDPOINT"}, "localhost:4317"),
		TracingSampleRate: getEnvFloatAny([]string{"HEIMDALL_TRACING_SAMPLE_RATE", "PREROLL_TRACING_SAMPLE_RATE"}, 1.0),
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("HEIMDALL_DB_DSN or PREROLL_DB_DSN must be provided")
	}

	if cfg.TickInterval < 5*time.Second {
		return nil, fmt.Errorf("tick interval must be at least 5 seconds, got %s", cfg.TickInterval)
	}

	if cfg.ApplyTimeout <= 0 {
		return nil, fmt.Errorf("apply timeout must be positive, got %s", cfg.ApplyTimeout)
	}

	cfg.LegacyEnvWarnings = detectLegacyEnvWarnings()

	return cfg, nil
}

func detectLegacyEnvWarnings() []string {
	legacy := map[string]string{
		"ENVIRONMENT":     "use HEIMDALL_ENV (or PREROLL_ENV)",
		"DB_DSN":          "use HEIMDALL_DB_DSN (or PREROLL_DB_DSN)",
		"TRACING_ENABLED": "use HEIMDALL_TRACING_ENABLED (or PREROLL_TRACING_ENABLED)",
		"OTLP_ENDPOINT":   "use HEIMDALL_OTLP_ENDPOINT (or PREROLL_OTLP_ENDPOINT)",
	}

	warnings := make([]string, 0, len(legacy))
	for key, recommendation := range legacy {
		if os.Getenv(key) != "" {
			warnings = append(warnings, fmt.Sprintf("legacy env key %s is set; %s", key, recommendation))
		}
	}
	return warnings
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

// getEnvFloatAny returns the first set float environment variable value from keys, or def.
func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}
