// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quzard/misaka-danmu-server/internal/library"
	"github.com/quzard/misaka-danmu-server/internal/logging"
)

// taskEventInterval is how often the task-events socket re-reads the
// task table. Progress persistence is itself throttled to 500ms, so a
// faster poll would only re-send identical rows.
const taskEventInterval = 2 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Token auth already ran in RequireToken; cross-origin browser
	// clients are the expected consumer (the admin UI).
	CheckOrigin: func(r *http.Request) bool { return true },
}

// taskEventFrame is one push to a task-events subscriber: the current
// page of live tasks, newest first.
type taskEventFrame struct {
	Type  string         `json:"type"`
	Tasks []TaskResponse `json:"tasks"`
}

// TaskEvents upgrades to a WebSocket and pushes task status snapshots
// until the client goes away, so the admin UI can render live progress
// without polling the REST listing.
func (h *Handler) TaskEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		logging.Debug().Err(err).Msg("task events: websocket upgrade failed")
		return
	}
	defer conn.Close()

	// Reader goroutine: we send only, but must service control frames
	// and notice the peer closing.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(taskEventInterval)
	defer ticker.Stop()

	for {
		frame, err := h.taskSnapshot(r)
		if err != nil {
			logging.Warn().Err(err).Msg("task events: snapshot failed")
			return
		}
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(frame); err != nil {
			return
		}

		select {
		case <-done:
			return
		case <-r.Context().Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(time.Second))
			return
		case <-ticker.C:
		}
	}
}

func (h *Handler) taskSnapshot(r *http.Request) (*taskEventFrame, error) {
	rows, _, err := h.manager.List(r.Context(), nil, 0, 50)
	if err != nil {
		return nil, err
	}
	frame := &taskEventFrame{Type: "tasks", Tasks: make([]TaskResponse, 0, len(rows))}
	for _, row := range rows {
		if row.Status == library.TaskStatusCompleted || row.Status == library.TaskStatusFailed {
			// Terminal rows older than a minute are noise for a live view.
			if row.FinishedAt != nil && time.Since(*row.FinishedAt) > time.Minute {
				continue
			}
		}
		frame.Tasks = append(frame.Tasks, toTaskResponse(row))
	}
	return frame, nil
}
