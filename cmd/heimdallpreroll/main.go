package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/friendsincode/heimdall_preroll/internal/config"
	"github.com/friendsincode/heimdall_preroll/internal/logbuffer"
	"github.com/friendsincode/heimdall_preroll/internal/logging"
	"github.com/friendsincode/heimdall_preroll/internal/server"
	"github.com/friendsincode/heimdall_preroll/internal/telemetry"
)

var (
	logger zerolog.Logger
	cfg    *config.Config
	logBuf *logbuffer.Buffer
)

var rootCmd = &cobra.Command{
	Use:   "heimdallpreroll",
	Short: "Heimdall Preroll - Schedule-driven preroll automation for Plex and Jellyfin",
	Long:  "Heimdall Preroll activates preroll schedules, translates storage paths into media-server paths, and pushes the resulting playlists to Plex and Jellyfin.",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Heimdall Preroll server",
	Long:  "Start the HTTP API server and the schedule activation loop",
	RunE:  runServe,
}

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Resolve the current schedules and apply once, then exit",
	Long:  "Run one full activation-and-apply cycle against every enabled media server, bypassing the signature check, and print the outcome.",
	RunE:  runApply,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(applyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration (called by commands that need it)
func loadConfig() error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logBuf = logbuffer.New(10000)
	logger = logging.SetupWithWriter(cfg.Environment, logbuffer.NewWriter(logBuf, nil))
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	logger.Info().Msg("Heimdall Preroll starting")

	tracerProvider, err := telemetry.InitTracer(context.Background(), telemetry.TracerConfig{
		ServiceName:    "heimdall-preroll",
		ServiceVersion: "0.0.1-alpha",
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.TracingEnabled,
		SampleRate:     cfg.TracingSampleRate,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize tracer: %w", err)
	}
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("failed to shutdown tracer provider")
		}
	}()

	srv, err := server.New(cfg, logBuf, logger)
	if err != nil {
		return fmt.Errorf("initialize server: %w", err)
	}

	httpServer := srv.HTTPServer()

	go func() {
		logger.Info().Str("addr", httpServer.Addr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down gracefully...")

	timeoutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(timeoutCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	if err := srv.Close(); err != nil {
		logger.Error().Err(err).Msg("shutdown cleanup failed")
	}

	logger.Info().Msg("Heimdall Preroll stopped")
	return nil
}

func runApply(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	srv, err := server.New(cfg, logBuf, logger)
	if err != nil {
		return fmt.Errorf("initialize server: %w", err)
	}
	defer func() {
		if err := srv.Close(); err != nil {
			logger.Error().Err(err).Msg("shutdown cleanup failed")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*cfg.ApplyTimeout)
	defer cancel()

	outcomes, err := srv.Scheduler().ForceApply(ctx)
	if err != nil {
		return fmt.Errorf("apply: %w", err)
	}

	failed := 0
	for _, out := range outcomes {
		event := logger.Info()
		if out.Error != "" {
			event = logger.Error()
			failed++
		}
		event.
			Str("server", out.ServerName).
			Str("status", string(out.Status)).
			Int("paths", out.Paths).
			Str("error", out.Error).
			Msg("apply outcome")
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d servers failed", failed, len(outcomes))
	}
	return nil
}
