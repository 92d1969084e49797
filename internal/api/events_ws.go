/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/friendsincode/heimdall_preroll/internal/events"
	ws "nhooyr.io/websocket"
)

type wsEvent struct {
	Type      events.EventType `json:"type"`
	Timestamp time.Time        `json:"timestamp"`
	Payload   events.Payload   `json:"payload,omitempty"`
}

// handleEventsWS streams engine events (resolution changes, apply outcomes,
// config warnings) over a WebSocket until the client disconnects.
func (a *API) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.Accept(w, r, &ws.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		a.logger.Debug().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(ws.StatusNormalClosure, "")

	ctx := r.Context()

	// Fan every event type into one channel for this client.
	merged := make(chan wsEvent, 32)
	for _, eventType := range events.All() {
		sub := a.bus.Subscribe(eventType)
		et := eventType
		defer a.bus.Unsubscribe(et, sub)

		go func() {
			for payload := range sub {
				select {
				case merged <- wsEvent{Type: et, Timestamp: time.Now(), Payload: payload}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	a.logger.Debug().Str("remote", r.RemoteAddr).Msg("event stream client connected")

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-merged:
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = conn.Write(writeCtx, ws.MessageText, data)
			cancel()
			if err != nil {
				a.logger.Debug().Err(err).Msg("event stream client gone")
				return
			}
		}
	}
}
