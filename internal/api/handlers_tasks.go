// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/quzard/misaka-danmu-server/internal/library"
)

func toTaskResponse(t *library.TaskHistory) TaskResponse {
	return TaskResponse{
		TaskID: t.TaskID, Title: t.Title, Status: t.Status, Progress: t.Progress,
		Description: t.Description, QueueType: t.QueueType, CreatedAt: t.CreatedAt,
		FinishedAt: t.FinishedAt,
	}
}

// ListTasks implements `tasks(status?, page?)`.
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	var status *library.TaskStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		s := library.TaskStatus(raw)
		status = &s
	}
	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "pageSize", 50)
	if page < 1 {
		page = 1
	}

	rows, total, err := h.manager.List(r.Context(), status, (page-1)*pageSize, pageSize)
	if err != nil {
		respondAppError(w, err)
		return
	}

	list := make([]TaskResponse, 0, len(rows))
	for _, row := range rows {
		list = append(list, toTaskResponse(row))
	}
	respondOK(w, TaskListResponse{Total: total, List: list})
}

// GetTask implements `tasks/{id}`.
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "id")
	row, err := h.manager.Get(r.Context(), taskID)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondOK(w, toTaskResponse(row))
}

// PauseTask implements `tasks/{id}/pause`.
func (h *Handler) PauseTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "id")
	if err := h.manager.Pause(r.Context(), taskID); err != nil {
		respondAppError(w, err)
		return
	}
	respondOK(w, map[string]string{"status": "paused"})
}

// ResumeTask implements `tasks/{id}/resume`.
func (h *Handler) ResumeTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "id")
	if err := h.manager.Resume(r.Context(), taskID); err != nil {
		respondAppError(w, err)
		return
	}
	respondOK(w, map[string]string{"status": "resumed"})
}

// DeleteTask implements `tasks/{id}` DELETE: removes a finished task's
// history row. Live tasks must be aborted first.
func (h *Handler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "id")
	if err := h.manager.Delete(r.Context(), taskID); err != nil {
		respondAppError(w, err)
		return
	}
	respondOK(w, map[string]string{"status": "deleted"})
}

// AbortTask implements `tasks/{id}/abort`. force=true escalates to
// ForceAbort (kills a stuck in-process task instead of just requesting
// cooperative cancellation).
func (h *Handler) AbortTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "id")
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))

	var err error
	if force {
		err = h.manager.ForceAbort(r.Context(), taskID)
	} else {
		err = h.manager.Abort(taskID)
	}
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondOK(w, map[string]string{"status": "aborted"})
}
