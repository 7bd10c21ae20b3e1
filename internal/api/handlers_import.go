// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"fmt"
	"net/http"

	"github.com/quzard/misaka-danmu-server/internal/apperr"
	"github.com/quzard/misaka-danmu-server/internal/library"
	"github.com/quzard/misaka-danmu-server/internal/provider"
	"github.com/quzard/misaka-danmu-server/internal/taskmanager"
	"github.com/quzard/misaka-danmu-server/internal/taskmanager/tasks"
)

// Import implements `import(request) -> {taskId}` (spec.md §4.8):
// validates the provider exists, rejects a duplicate (provider, mediaId)
// full import with a conflict, and enqueues generic_import on the
// download queue.
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	var req ImportRequest
	if apiErr := decodeJSON(r, &req); apiErr != nil {
		respondJSON(w, http.StatusBadRequest, &APIResponse{Status: "error", Error: apiErr})
		return
	}

	if _, ok := h.registry.Get(req.Provider); !ok {
		respondError(w, http.StatusBadRequest, "UNKNOWN_PROVIDER", fmt.Sprintf("provider %q is not registered", req.Provider), nil)
		return
	}

	if req.TargetEpisodeIndex == nil {
		if _, err := h.store.GetSourceByProviderMediaID(r.Context(), req.Provider, req.MediaID); err == nil {
			respondError(w, http.StatusConflict, "CONFLICT",
				fmt.Sprintf("%s/%s is already imported", req.Provider, req.MediaID), nil)
			return
		} else if !apperr.Is(err, apperr.NotFound) {
			respondAppError(w, err)
			return
		}
	}

	params := tasks.GenericImportParams{
		Provider:           req.Provider,
		MediaID:            req.MediaID,
		Title:              req.Title,
		Type:               req.Type,
		Season:             req.Season,
		Year:               req.Year,
		TargetEpisodeIndex: req.TargetEpisodeIndex,
		ImageURL:           req.ImageURL,
		TMDBID:             req.TMDBID,
		IMDBID:             req.IMDBID,
		TVDBID:             req.TVDBID,
		DoubanID:           req.DoubanID,
		BangumiID:          req.BangumiID,
		TMDBEpisodeGroupID: req.TMDBEpisodeGroupID,
	}

	uniqueKey := fmt.Sprintf("import-%s-%s-s%d", req.Provider, req.MediaID, req.Season)
	if req.TargetEpisodeIndex != nil {
		uniqueKey = fmt.Sprintf("%s-e%d", uniqueKey, *req.TargetEpisodeIndex)
	}

	taskID, err := h.manager.Submit(r.Context(), taskmanager.SubmitRequest{
		Factory:        tasks.NewGenericImport(h.taskDeps, params),
		Title:          fmt.Sprintf("导入: %s", req.Title),
		UniqueKey:      uniqueKey,
		QueueType:      library.QueueDownload,
		TaskType:       "generic_import",
		TaskParameters: mustJSON(params),
	})
	if err != nil {
		respondAppError(w, err)
		return
	}

	respondCreated(w, ImportResponse{TaskID: taskID})
}

// EditedImport enqueues edited_import on the download queue: the caller
// supplies the episode list (already reviewed and trimmed), so the task
// fetches comments without re-listing episodes upstream.
func (h *Handler) EditedImport(w http.ResponseWriter, r *http.Request) {
	var req EditedImportRequest
	if apiErr := decodeJSON(r, &req); apiErr != nil {
		respondJSON(w, http.StatusBadRequest, &APIResponse{Status: "error", Error: apiErr})
		return
	}

	if _, ok := h.registry.Get(req.Provider); !ok {
		respondError(w, http.StatusBadRequest, "UNKNOWN_PROVIDER", fmt.Sprintf("provider %q is not registered", req.Provider), nil)
		return
	}

	episodes := make([]provider.EpisodeInfo, len(req.Episodes))
	for i, ep := range req.Episodes {
		episodes[i] = provider.EpisodeInfo{
			ProviderEpisodeID: ep.EpisodeID,
			Title:             ep.Title,
			EpisodeIndex:      ep.EpisodeIndex,
			URL:               ep.URL,
		}
	}

	params := tasks.EditedImportParams{
		Provider: req.Provider, MediaID: req.MediaID, Title: req.Title,
		Type: req.Type, Season: req.Season, Year: req.Year, ImageURL: req.ImageURL,
		TMDBID: req.TMDBID, DoubanID: req.DoubanID, Episodes: episodes,
	}

	taskID, err := h.manager.Submit(r.Context(), taskmanager.SubmitRequest{
		Factory:        tasks.NewEditedImport(h.taskDeps, params),
		Title:          fmt.Sprintf("编辑导入: %s", req.Title),
		UniqueKey:      fmt.Sprintf("edited-import-%s-%s-s%d", req.Provider, req.MediaID, req.Season),
		QueueType:      library.QueueDownload,
		TaskType:       "edited_import",
		TaskParameters: mustJSON(params),
	})
	if err != nil {
		respondAppError(w, err)
		return
	}

	respondCreated(w, ImportResponse{TaskID: taskID})
}
