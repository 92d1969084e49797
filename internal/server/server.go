/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package server wires the engine together: database, cache, scheduler loop,
// HTTP API, and the metrics listener.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/heimdall_preroll/internal/activation"
	"github.com/friendsincode/heimdall_preroll/internal/api"
	"github.com/friendsincode/heimdall_preroll/internal/cache"
	"github.com/friendsincode/heimdall_preroll/internal/clock"
	"github.com/friendsincode/heimdall_preroll/internal/config"
	"github.com/friendsincode/heimdall_preroll/internal/db"
	"github.com/friendsincode/heimdall_preroll/internal/dispatch"
	"github.com/friendsincode/heimdall_preroll/internal/events"
	"github.com/friendsincode/heimdall_preroll/internal/logbuffer"
	"github.com/friendsincode/heimdall_preroll/internal/mediaserver"
	"github.com/friendsincode/heimdall_preroll/internal/recurrence"
	"github.com/friendsincode/heimdall_preroll/internal/scheduler"
	"github.com/friendsincode/heimdall_preroll/internal/sequence"
	"github.com/friendsincode/heimdall_preroll/internal/telemetry"
	"github.com/friendsincode/heimdall_preroll/internal/version"
)

// Server bundles HTTP and supporting services.
type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
	metricsSrv *http.Server
	closers    []func() error

	db        *gorm.DB
	cache     *cache.Cache
	logBuffer *logbuffer.Buffer
	api       *api.API
	scheduler *scheduler.Service
	bus       *events.Bus
	updates   *version.Checker

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New constructs the server and wires dependencies.
func New(cfg *config.Config, logBuf *logbuffer.Buffer, logger zerolog.Logger) (*Server, error) {
	for _, warn := range cfg.LegacyEnvWarnings {
		logger.Warn().Msg(warn)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.TracingMiddleware("heimdall-preroll-api"))
	router.Use(telemetry.MetricsMiddleware)
	// Skip timeout for the WebSocket event stream.
	router.Use(func(next http.Handler) http.Handler {
		timeout := middleware.Timeout(60 * time.Second)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Upgrade") == "websocket" {
				next.ServeHTTP(w, r)
				return
			}
			timeout(next).ServeHTTP(w, r)
		})
	})

	srv := &Server{
		cfg:       cfg,
		logger:    logger,
		router:    router,
		bus:       events.NewBus(),
		logBuffer: logBuf,
	}

	if err := srv.initDependencies(); err != nil {
		return nil, err
	}

	srv.configureRoutes()
	srv.startBackgroundWorkers()

	addr := fmt.Sprintf("%s:%d", cfg.HTTPBind, cfg.HTTPPort)
	srv.httpServer = &http.Server{
		Addr:              addr,
		Handler:           srv.router,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       30 * time.Second,
		// WriteTimeout left unset so the event stream can outlive it; the
		// middleware timeout covers the plain endpoints.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	return srv, nil
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("X-Frame-Options", "DENY")

		// Only advertise HSTS for requests served over HTTPS.
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) initDependencies() error {
	database, err := db.Connect(s.cfg)
	if err != nil {
		return err
	}
	if err := db.Migrate(database); err != nil {
		return err
	}
	if err := db.RegisterCallbacks(database); err != nil {
		return err
	}
	s.db = database
	s.DeferClose(func() error { return db.Close(database) })

	// Redis cache is optional; without an address the scheduler reads the
	// database every tick.
	if s.cfg.RedisAddr != "" {
		cacheCfg := cache.DefaultConfig()
		cacheCfg.RedisAddr = s.cfg.RedisAddr
		cacheCfg.RedisPassword = s.cfg.RedisPassword
		cacheCfg.RedisDB = s.cfg.RedisDB
		resolutionCache, err := cache.New(cacheCfg, s.logger)
		if err != nil {
			s.logger.Warn().Err(err).Msg("cache initialization failed, continuing without cache")
		} else {
			s.cache = resolutionCache
			s.DeferClose(func() error { return s.cache.Close() })
		}
	}

	clk, err := clock.NewSystem(s.cfg.Timezone)
	if err != nil {
		return fmt.Errorf("load timezone %q: %w", s.cfg.Timezone, err)
	}
	s.logger.Info().Str("timezone", clk.Location().String()).Msg("schedule clock configured")

	calendar, err := recurrence.DefaultCalendar()
	if err != nil {
		return fmt.Errorf("load embedded holiday calendar: %w", err)
	}
	if s.cfg.HolidayCalendarPath != "" {
		calendar, err = recurrence.LoadCalendar(s.cfg.HolidayCalendarPath)
		if err != nil {
			return fmt.Errorf("load holiday calendar %s: %w", s.cfg.HolidayCalendarPath, err)
		}
		s.logger.Info().Str("path", s.cfg.HolidayCalendarPath).Msg("holiday calendar overridden")
	}

	rec := recurrence.NewResolver(calendar, s.logger)
	engine := activation.New(rec, s.logger)
	seqResolver := sequence.New(sequence.NewGormIndex(database), s.logger)
	applier := mediaserver.NewHTTPApplier(s.cfg.ApplyTimeout, s.logger)
	dispatcher := dispatch.New(database, seqResolver, applier, s.bus, s.logger)

	s.scheduler = scheduler.New(database, clk, rec, engine, dispatcher, s.cache, s.bus, s.cfg.TickInterval, s.logger)

	s.api = api.New(database, s.scheduler, dispatcher, seqResolver, rec, s.bus, s.logBuffer, s.logger)

	s.updates = version.NewChecker(s.logger)
	s.api.SetUpdateChecker(s.updates)

	return nil
}

// HTTPServer exposes the underlying net/http server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Scheduler exposes the scheduler service.
func (s *Server) Scheduler() *scheduler.Service {
	return s.scheduler
}

// LogBuffer returns the server's log buffer for attaching to zerolog.
func (s *Server) LogBuffer() *logbuffer.Buffer {
	return s.logBuffer
}

// Close releases owned resources in reverse order. The scheduler finishes
// any in-flight apply before the database closes.
func (s *Server) Close() error {
	s.stopBackgroundWorkers()

	if s.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = s.metricsSrv.Shutdown(ctx)
		cancel()
	}

	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// DeferClose registers a cleanup hook.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func (s *Server) startBackgroundWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		s.scheduler.Run(ctx)
	}()

	if s.updates != nil {
		s.updates.Start(ctx)
	}

	// Connection pool gauge updater.
	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				db.UpdateConnectionMetrics(s.db)
			}
		}
	}()

	// Metrics on a separate listener so the API port stays clean.
	if s.cfg.MetricsBind != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", telemetry.Handler())
		s.metricsSrv = &http.Server{
			Addr:              s.cfg.MetricsBind,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			s.logger.Info().Str("addr", s.cfg.MetricsBind).Msg("metrics listener started")
			if err := s.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				s.logger.Error().Err(err).Msg("metrics listener exited")
			}
		}()
	}
}

func (s *Server) stopBackgroundWorkers() {
	if s.bgCancel == nil {
		return
	}
	s.bgCancel()
	s.bgWG.Wait()
	s.bgCancel = nil
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	s.api.Routes(s.router)
}
