// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/quzard/misaka-danmu-server/internal/library"
	"github.com/quzard/misaka-danmu-server/internal/taskmanager"
	"github.com/quzard/misaka-danmu-server/internal/taskmanager/tasks"
)

// TaskEnqueuedResponse is returned by every mutation this package routes
// through the task manager instead of applying directly.
type TaskEnqueuedResponse struct {
	TaskID string `json:"taskId"`
}

func toWorkResponse(w *library.Work, sources []library.Source) WorkResponse {
	resp := WorkResponse{
		ID: w.ID, Title: w.Title, Type: w.Type, Season: w.Season, Year: w.Year,
		ImageURL: w.ImageURL, TMDBID: w.TMDBID, IMDBID: w.IMDBID, TVDBID: w.TVDBID,
		DoubanID: w.DoubanID, BangumiID: w.BangumiID, TMDBEpisodeGroupID: w.TMDBEpisodeGroupID,
		CreatedAt: w.CreatedAt,
	}
	for _, s := range sources {
		resp.Sources = append(resp.Sources, toSourceResponse(&s))
	}
	return resp
}

func toSourceResponse(s *library.Source) SourceResponse {
	return SourceResponse{
		ID: s.ID, ProviderName: s.ProviderName, MediaID: s.MediaID,
		IsFavorited: s.IsFavorited, IncrementalRefreshEnabled: s.IncrementalRefreshEnabled,
		CreatedAt: s.CreatedAt,
	}
}

func toEpisodeResponse(e *library.Episode) EpisodeResponse {
	return EpisodeResponse{
		ID: e.ID, EpisodeIndex: e.EpisodeIndex, Title: e.Title,
		SourceURL: e.SourceURL, ProviderEpisodeID: e.ProviderEpisodeID, FetchedAt: e.FetchedAt,
	}
}

// ListWorks implements the `library` listing contract.
func (h *Handler) ListWorks(w http.ResponseWriter, r *http.Request) {
	keyword := r.URL.Query().Get("keyword")
	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "pageSize", 50)
	if page < 1 {
		page = 1
	}

	works, total, err := h.store.ListWorks(r.Context(), keyword, (page-1)*pageSize, pageSize)
	if err != nil {
		respondAppError(w, err)
		return
	}

	list := make([]WorkResponse, 0, len(works))
	for _, work := range works {
		list = append(list, toWorkResponse(work, nil))
	}
	respondOK(w, WorkListResponse{Total: total, List: list})
}

// GetWork implements `library/anime/{id}`, including its Sources.
func (h *Handler) GetWork(w http.ResponseWriter, r *http.Request) {
	workID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "id must be an integer", nil)
		return
	}

	work, err := h.store.GetWorkByID(r.Context(), workID)
	if err != nil {
		respondAppError(w, err)
		return
	}
	sources, err := h.store.ListSourcesForWork(r.Context(), workID)
	if err != nil {
		respondAppError(w, err)
		return
	}
	sourceVals := make([]library.Source, len(sources))
	for i, s := range sources {
		sourceVals[i] = *s
	}

	respondOK(w, toWorkResponse(work, sourceVals))
}

// DeleteWork submits delete_work on the management queue (spec.md §3
// "Lifecycle": cascade delete of a Work's Sources/Episodes/Comments).
func (h *Handler) DeleteWork(w http.ResponseWriter, r *http.Request) {
	workID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "id must be an integer", nil)
		return
	}

	params := tasks.DeleteWorkParams{WorkID: workID}
	taskID, err := h.manager.Submit(r.Context(), taskmanager.SubmitRequest{
		Factory:        tasks.NewDeleteWork(h.taskDeps, params),
		Title:          fmt.Sprintf("删除作品 #%d", workID),
		UniqueKey:      fmt.Sprintf("delete-work-%d", workID),
		QueueType:      library.QueueManagement,
		TaskType:       "delete_work",
		TaskParameters: mustJSON(params),
	})
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondOK(w, TaskEnqueuedResponse{TaskID: taskID})
}

// ListSources implements `library/anime/{id}/sources`.
func (h *Handler) ListSources(w http.ResponseWriter, r *http.Request) {
	workID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "id must be an integer", nil)
		return
	}
	sources, err := h.store.ListSourcesForWork(r.Context(), workID)
	if err != nil {
		respondAppError(w, err)
		return
	}
	list := make([]SourceResponse, 0, len(sources))
	for _, s := range sources {
		list = append(list, toSourceResponse(s))
	}
	respondOK(w, list)
}

// ToggleSourceFavorite implements spec.md §4.4's
// toggleSourceFavoriteStatus(sourceId) -> new_status. Unlike the
// task-queue mutations above this is a synchronous repository write: the
// caller needs the new boolean back immediately, not a task to poll.
func (h *Handler) ToggleSourceFavorite(w http.ResponseWriter, r *http.Request) {
	sourceID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "id must be an integer", nil)
		return
	}
	newStatus, err := h.store.ToggleFavorited(r.Context(), sourceID)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondOK(w, map[string]bool{"isFavorited": newStatus})
}

// ReassociateSource implements moving a Source to a different Work, a
// direct repository write for the same reason as ToggleSourceFavorite.
func (h *Handler) ReassociateSource(w http.ResponseWriter, r *http.Request) {
	sourceID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "id must be an integer", nil)
		return
	}
	var req ReassociateSourceRequest
	if apiErr := decodeJSON(r, &req); apiErr != nil {
		respondJSON(w, http.StatusBadRequest, &APIResponse{Status: "error", Error: apiErr})
		return
	}
	if err := h.store.ReassociateSource(r.Context(), sourceID, req.DestWorkID); err != nil {
		respondAppError(w, err)
		return
	}
	respondOK(w, map[string]string{"status": "reassociated"})
}

// ClearSourceData removes a Source's episodes and comments while keeping
// the Source binding (and its favorite flag) in place.
func (h *Handler) ClearSourceData(w http.ResponseWriter, r *http.Request) {
	sourceID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "id must be an integer", nil)
		return
	}
	if _, err := h.store.GetSourceByID(r.Context(), sourceID); err != nil {
		respondAppError(w, err)
		return
	}
	if err := h.store.ClearSourceData(r.Context(), sourceID); err != nil {
		respondAppError(w, err)
		return
	}
	respondOK(w, map[string]string{"status": "cleared"})
}

// DeleteSource submits delete_source on the management queue.
func (h *Handler) DeleteSource(w http.ResponseWriter, r *http.Request) {
	sourceID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "id must be an integer", nil)
		return
	}
	params := tasks.DeleteSourceParams{SourceID: sourceID}
	taskID, err := h.manager.Submit(r.Context(), taskmanager.SubmitRequest{
		Factory:        tasks.NewDeleteSource(h.taskDeps, params),
		Title:          fmt.Sprintf("删除源 #%d", sourceID),
		UniqueKey:      fmt.Sprintf("delete-source-%d", sourceID),
		QueueType:      library.QueueManagement,
		TaskType:       "delete_source",
		TaskParameters: mustJSON(params),
	})
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondOK(w, TaskEnqueuedResponse{TaskID: taskID})
}

// ListEpisodes implements `library/anime/{id}/sources/{sourceId}/episodes`.
func (h *Handler) ListEpisodes(w http.ResponseWriter, r *http.Request) {
	sourceID, err := strconv.ParseInt(chi.URLParam(r, "sourceId"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "sourceId must be an integer", nil)
		return
	}
	episodes, err := h.store.ListEpisodesForSource(r.Context(), sourceID)
	if err != nil {
		respondAppError(w, err)
		return
	}
	list := make([]EpisodeResponse, 0, len(episodes))
	for _, e := range episodes {
		list = append(list, toEpisodeResponse(e))
	}
	respondOK(w, list)
}

// ReorderEpisodes submits reorder_episodes on the management queue.
func (h *Handler) ReorderEpisodes(w http.ResponseWriter, r *http.Request) {
	var req ReorderEpisodesRequest
	if apiErr := decodeJSON(r, &req); apiErr != nil {
		respondJSON(w, http.StatusBadRequest, &APIResponse{Status: "error", Error: apiErr})
		return
	}
	params := tasks.ReorderEpisodesParams{SourceID: req.SourceID}
	taskID, err := h.manager.Submit(r.Context(), taskmanager.SubmitRequest{
		Factory:        tasks.NewReorderEpisodes(h.taskDeps, params),
		Title:          fmt.Sprintf("重新排序源 #%d", req.SourceID),
		UniqueKey:      fmt.Sprintf("reorder-episodes-%d", req.SourceID),
		QueueType:      library.QueueManagement,
		TaskType:       "reorder_episodes",
		TaskParameters: mustJSON(params),
	})
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondOK(w, TaskEnqueuedResponse{TaskID: taskID})
}

// OffsetEpisodes submits offset_episodes on the management queue, after
// the pre-validation spec.md §4.6.6 requires before submission: the
// lowest resulting index must still be >= 1.
func (h *Handler) OffsetEpisodes(w http.ResponseWriter, r *http.Request) {
	var req OffsetEpisodesRequest
	if apiErr := decodeJSON(r, &req); apiErr != nil {
		respondJSON(w, http.StatusBadRequest, &APIResponse{Status: "error", Error: apiErr})
		return
	}

	episodes, err := h.store.ListEpisodesForSource(r.Context(), req.SourceID)
	if err != nil {
		respondAppError(w, err)
		return
	}
	minIndex := 0
	for i, e := range episodes {
		if i == 0 || e.EpisodeIndex < minIndex {
			minIndex = e.EpisodeIndex
		}
	}
	if len(episodes) > 0 && minIndex+req.Offset < 1 {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "offset would push an episode index below 1", nil)
		return
	}

	params := tasks.OffsetEpisodesParams{SourceID: req.SourceID, Delta: req.Offset}
	taskID, err := h.manager.Submit(r.Context(), taskmanager.SubmitRequest{
		Factory:        tasks.NewOffsetEpisodes(h.taskDeps, params),
		Title:          fmt.Sprintf("偏移源 #%d 的集数", req.SourceID),
		UniqueKey:      fmt.Sprintf("offset-episodes-%d", req.SourceID),
		QueueType:      library.QueueManagement,
		TaskType:       "offset_episodes",
		TaskParameters: mustJSON(params),
	})
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondOK(w, TaskEnqueuedResponse{TaskID: taskID})
}

// DeleteEpisode submits delete_episode on the management queue.
func (h *Handler) DeleteEpisode(w http.ResponseWriter, r *http.Request) {
	episodeID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "id must be an integer", nil)
		return
	}
	params := tasks.DeleteEpisodeParams{EpisodeID: episodeID}
	taskID, err := h.manager.Submit(r.Context(), taskmanager.SubmitRequest{
		Factory:        tasks.NewDeleteEpisode(h.taskDeps, params),
		Title:          fmt.Sprintf("删除分集 #%d", episodeID),
		UniqueKey:      fmt.Sprintf("delete-episode-%d", episodeID),
		QueueType:      library.QueueManagement,
		TaskType:       "delete_episode",
		TaskParameters: mustJSON(params),
	})
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondOK(w, TaskEnqueuedResponse{TaskID: taskID})
}

// RefreshEpisode submits refresh_episode on the download queue.
func (h *Handler) RefreshEpisode(w http.ResponseWriter, r *http.Request) {
	episodeID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "id must be an integer", nil)
		return
	}
	params := tasks.RefreshEpisodeParams{EpisodeID: episodeID}
	taskID, err := h.manager.Submit(r.Context(), taskmanager.SubmitRequest{
		Factory:        tasks.NewRefreshEpisode(h.taskDeps, params),
		Title:          fmt.Sprintf("刷新分集 #%d", episodeID),
		UniqueKey:      fmt.Sprintf("refresh-episode-%d", episodeID),
		QueueType:      library.QueueDownload,
		TaskType:       "refresh_episode",
		TaskParameters: mustJSON(params),
	})
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondOK(w, TaskEnqueuedResponse{TaskID: taskID})
}

// FullRefreshSource submits full_refresh on the download queue.
func (h *Handler) FullRefreshSource(w http.ResponseWriter, r *http.Request) {
	sourceID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "id must be an integer", nil)
		return
	}
	params := tasks.FullRefreshParams{SourceID: sourceID}
	taskID, err := h.manager.Submit(r.Context(), taskmanager.SubmitRequest{
		Factory:        tasks.NewFullRefresh(h.taskDeps, params),
		Title:          fmt.Sprintf("全量刷新源 #%d", sourceID),
		UniqueKey:      fmt.Sprintf("full-refresh-%d", sourceID),
		QueueType:      library.QueueDownload,
		TaskType:       "full_refresh",
		TaskParameters: mustJSON(params),
	})
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondOK(w, TaskEnqueuedResponse{TaskID: taskID})
}

// ManualImport submits manual_import on the download queue.
func (h *Handler) ManualImport(w http.ResponseWriter, r *http.Request) {
	var req ManualImportRequest
	if apiErr := decodeJSON(r, &req); apiErr != nil {
		respondJSON(w, http.StatusBadRequest, &APIResponse{Status: "error", Error: apiErr})
		return
	}
	params := tasks.ManualImportParams{
		SourceID: req.SourceID, Title: req.Title, EpisodeIndex: req.EpisodeIndex,
		Content: req.Content, ProviderName: req.ProviderName,
	}
	taskID, err := h.manager.Submit(r.Context(), taskmanager.SubmitRequest{
		Factory:        tasks.NewManualImport(h.taskDeps, params),
		Title:          fmt.Sprintf("手动导入: %s 第%d集", req.Title, req.EpisodeIndex),
		UniqueKey:      fmt.Sprintf("manual-import-%d-%d", req.SourceID, req.EpisodeIndex),
		QueueType:      library.QueueDownload,
		TaskType:       "manual_import",
		TaskParameters: mustJSON(params),
	})
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondOK(w, TaskEnqueuedResponse{TaskID: taskID})
}
