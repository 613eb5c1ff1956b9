// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/beamsearch/services/beam/events"
)

const wsWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 64 * 1024,
}

func sendJSON(ws *websocket.Conn, v interface{}) error {
	_ = ws.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	err := ws.WriteJSON(v)
	if err != nil {
		slog.Warn("Failed to write WebSocket JSON", "error", err)
	}
	return err
}

// HandleEventsWebSocket handles GET /v1/searches/:runKey/ws.
//
// Description:
//
//	Replays the run's buffered events after the optional "after" sequence
//	number, then streams new events as they are emitted. The connection is
//	closed after the search_terminated event has been sent.
func (h *Handlers) HandleEventsWebSocket(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	runKey := c.Param("runKey")
	logger := slog.With("request_id", requestID, "handler", "HandleEventsWebSocket", "run_key", runKey)

	after, err := parseAfter(c.Query("after"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "after must be a non-negative integer", Code: "INVALID_REQUEST"})
		return
	}
	r, err := h.svc.get(runKey)
	if err != nil {
		writeServiceError(c, logger, err)
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Error("failed to upgrade the websocket", "error", err)
		return
	}
	defer ws.Close()

	// Each emitted event only wakes the writer; the buffer is the source.
	notify := make(chan struct{}, 1)
	subID := r.emitter.Subscribe(func(*events.Event) {
		select {
		case notify <- struct{}{}:
		default:
		}
	})
	defer r.emitter.Unsubscribe(subID)

	// Reads only detect the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	last := after
	flush := func() (terminal bool, err error) {
		for _, evt := range r.emitter.GetBufferAfter(last) {
			if err := sendJSON(ws, evt); err != nil {
				return false, err
			}
			last = evt.Seq
			if evt.Type.IsTerminal() {
				terminal = true
			}
		}
		return terminal, nil
	}

	for {
		terminal, err := flush()
		if err != nil {
			return
		}
		if terminal {
			break
		}
		select {
		case <-notify:
		case <-r.done:
			if _, err := flush(); err != nil {
				return
			}
			terminal = true
		case <-gone:
			logger.Debug("websocket client disconnected")
			return
		case <-c.Request.Context().Done():
			return
		}
		if terminal {
			break
		}
	}

	_ = ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "search terminated"),
		time.Now().Add(wsWriteTimeout))
}
