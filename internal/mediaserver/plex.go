/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package mediaserver

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/friendsincode/heimdall_preroll/internal/models"
)

// Plex stores the preroll list in the CinemaTrailersPrerollID server
// preference. Plex itself interprets the delimiter: "," plays the list in
// order, ";" picks one at random.
const plexPrerollPref = "CinemaTrailersPrerollID"

func (a *HTTPApplier) applyPlex(ctx context.Context, server models.MediaServer, joinedPaths string) error {
	endpoint := fmt.Sprintf("%s/:/prefs?%s", strings.TrimRight(server.BaseURL, "/"),
		url.Values{plexPrerollPref: {joinedPaths}}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%w: build plex request: %v", ErrDispatch, err)
	}
	req.Header.Set("X-Plex-Token", server.Token)
	req.Header.Set("Accept", "application/json")

	if err := a.do(req, server, "set preroll preference"); err != nil {
		return err
	}

	a.logger.Info().
		Str("server", server.Name).
		Int("paths", pathCount(joinedPaths)).
		Msg("plex prerolls applied")
	return nil
}

func (a *HTTPApplier) testPlex(ctx context.Context, server models.MediaServer) error {
	endpoint := strings.TrimRight(server.BaseURL, "/") + "/identity"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%w: build plex request: %v", ErrDispatch, err)
	}
	req.Header.Set("X-Plex-Token", server.Token)
	req.Header.Set("Accept", "application/json")

	return a.do(req, server, "identity probe")
}

func pathCount(joined string) int {
	if joined == "" {
		return 0
	}
	n := 1
	for _, r := range joined {
		if r == ',' || r == ';' {
			n++
		}
	}
	return n
}
