// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"errors"
	"net/http"

	"github.com/quzard/misaka-danmu-server/internal/search"
)

// SearchProvider implements `search/provider(keyword)` (spec.md §4.8),
// delegating straight to internal/search's pipeline.
func (h *Handler) SearchProvider(w http.ResponseWriter, r *http.Request) {
	keyword := r.URL.Query().Get("keyword")

	result, err := h.pipeline.Search(r.Context(), keyword)
	if err != nil {
		switch {
		case errors.Is(err, search.ErrEmptyKeyword):
			respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		case errors.Is(err, search.ErrNoProvidersEnabled):
			respondError(w, http.StatusServiceUnavailable, "NO_PROVIDERS_ENABLED", err.Error(), nil)
		default:
			respondAppError(w, err)
		}
		return
	}

	respondOK(w, SearchResponse{
		Results:       result.Results,
		SearchSeason:  result.SearchSeason,
		SearchEpisode: result.SearchEpisode,
	})
}
