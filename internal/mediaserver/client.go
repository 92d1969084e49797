/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package mediaserver talks to the remote Plex/Jellyfin servers that play
// the prerolls. Every call is bounded by the configured apply timeout so a
// hung server cannot stall the scheduler.
package mediaserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/friendsincode/heimdall_preroll/internal/models"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// ErrDispatch indicates the external apply call failed or timed out. The
// caller retries on the next tick.
var ErrDispatch = errors.New("media server dispatch failed")

// Applier is the external collaborator boundary: hand the joined path string
// to a media server, or probe connectivity.
type Applier interface {
	Apply(ctx context.Context, server models.MediaServer, joinedPaths string, mode models.PlaybackMode) error
	Test(ctx context.Context, server models.MediaServer) error
}

// HTTPApplier implements Applier over the servers' HTTP APIs.
type HTTPApplier struct {
	http   *http.Client
	logger zerolog.Logger
}

// NewHTTPApplier creates an applier with a bounded-timeout HTTP client.
func NewHTTPApplier(timeout time.Duration, logger zerolog.Logger) *HTTPApplier {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPApplier{
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger.With().Str("component", "mediaserver").Logger(),
	}
}

// Apply pushes the preroll path list to the server.
func (a *HTTPApplier) Apply(ctx context.Context, server models.MediaServer, joinedPaths string, mode models.PlaybackMode) error {
	switch server.Kind {
	case models.ServerPlex:
		return a.applyPlex(ctx, server, joinedPaths)
	case models.ServerJellyfin:
		return a.applyJellyfin(ctx, server, joinedPaths, mode)
	default:
		return fmt.Errorf("%w: unsupported server kind %q", ErrDispatch, server.Kind)
	}
}

// Test probes the server without changing anything.
func (a *HTTPApplier) Test(ctx context.Context, server models.MediaServer) error {
	switch server.Kind {
	case models.ServerPlex:
		return a.testPlex(ctx, server)
	case models.ServerJellyfin:
		return a.testJellyfin(ctx, server)
	default:
		return fmt.Errorf("%w: unsupported server kind %q", ErrDispatch, server.Kind)
	}
}

func (a *HTTPApplier) do(req *http.Request, server models.MediaServer, action string) error {
	resp, err := a.http.Do(req)
	if err != nil {
		a.logger.Warn().Err(err).Str("server", server.Name).Str("action", action).Msg("media server call failed")
		return fmt.Errorf("%w: %s %s: %v", ErrDispatch, server.Kind, action, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		a.logger.Warn().Int("status", resp.StatusCode).Str("server", server.Name).Str("action", action).Msg("media server rejected call")
		return fmt.Errorf("%w: %s %s: status %d", ErrDispatch, server.Kind, action, resp.StatusCode)
	}
	return nil
}
