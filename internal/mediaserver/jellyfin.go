/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package mediaserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/friendsincode/heimdall_preroll/internal/models"
)

// Jellyfin has no built-in preroll preference; the companion intros plugin
// exposes its configuration over the standard plugin endpoint.
const jellyfinPluginID = "c83d86bb-71f0-4f36-9571-0719bc85c524"

type jellyfinPluginConfig struct {
	PrerollPaths string `json:"PrerollPaths"`
	Shuffle      bool   `json:"Shuffle"`
}

func (a *HTTPApplier) applyJellyfin(ctx context.Context, server models.MediaServer, joinedPaths string, mode models.PlaybackMode) error {
	endpoint := fmt.Sprintf("%s/Plugins/%s/Configuration", strings.TrimRight(server.BaseURL, "/"), jellyfinPluginID)

	body, err := json.Marshal(jellyfinPluginConfig{
		PrerollPaths: joinedPaths,
		Shuffle:      mode == models.PlaybackRandom,
	})
	if err != nil {
		return fmt.Errorf("%w: encode jellyfin config: %v", ErrDispatch, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build jellyfin request: %v", ErrDispatch, err)
	}
	req.Header.Set("X-Emby-Token", server.Token)
	req.Header.Set("Content-Type", "application/json")

	if err := a.do(req, server, "update plugin configuration"); err != nil {
		return err
	}

	a.logger.Info().
		Str("server", server.Name).
		Int("paths", pathCount(joinedPaths)).
		Msg("jellyfin prerolls applied")
	return nil
}

func (a *HTTPApplier) testJellyfin(ctx context.Context, server models.MediaServer) error {
	endpoint := strings.TrimRight(server.BaseURL, "/") + "/System/Info/Public"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%w: build jellyfin request: %v", ErrDispatch, err)
	}
	req.Header.Set("X-Emby-Token", server.Token)

	return a.do(req, server, "public info probe")
}
