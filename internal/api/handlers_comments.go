// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// Comments implements `comments/{episodeId}(page?, pageSize?)` (spec.md
// §4.8): a straight repository read, 404 on an unknown episode. Paging
// is applied in-handler since internal/library's comment read is
// unpaged (a fetch is always "the whole episode").
func (h *Handler) Comments(w http.ResponseWriter, r *http.Request) {
	episodeID, err := strconv.ParseInt(chi.URLParam(r, "episodeId"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "episodeId must be an integer", nil)
		return
	}

	if _, err := h.store.GetEpisodeByID(r.Context(), episodeID); err != nil {
		respondAppError(w, err)
		return
	}

	all, err := h.store.ListCommentsForEpisode(r.Context(), episodeID)
	if err != nil {
		respondAppError(w, err)
		return
	}

	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "pageSize", len(all))
	if pageSize <= 0 {
		pageSize = len(all)
	}
	start := (page - 1) * pageSize
	if start < 0 {
		start = 0
	}
	if start > len(all) {
		start = len(all)
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}

	respondOK(w, CommentsResponse{Total: len(all), List: all[start:end]})
}

// queryInt reads an integer query parameter, falling back to def on
// absence or malformed input.
func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
