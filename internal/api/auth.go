// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"net/http"
	"time"

	"github.com/quzard/misaka-danmu-server/internal/apperr"
	"github.com/quzard/misaka-danmu-server/internal/logging"
)

// tokenHeader and tokenQueryParam are the two places a caller may supply
// its API token; the header wins when both are present.
const (
	tokenHeader     = "X-API-Token"
	tokenQueryParam = "token"
)

// RequireToken enforces the administrative token model of spec.md §6.5
// on every route it wraps: the token must exist, be enabled, be
// unexpired, and have daily budget left. The per-day counter resets at
// local midnight, which RecordTokenUsage implements by comparing
// last_reset_date against today's date in the process's fixed timezone.
func (h *Handler) RequireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		literal := r.Header.Get(tokenHeader)
		if literal == "" {
			literal = r.URL.Query().Get(tokenQueryParam)
		}
		if literal == "" {
			respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing API token", nil)
			return
		}

		token, err := h.store.GetAPITokenByValue(r.Context(), literal)
		if err != nil {
			if apperr.Is(err, apperr.NotFound) {
				respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unknown API token", nil)
				return
			}
			respondAppError(w, err)
			return
		}

		if !token.Enabled {
			respondError(w, http.StatusForbidden, "TOKEN_DISABLED", "API token is disabled", nil)
			return
		}
		now := time.Now()
		if token.ExpiresAt != nil && now.After(*token.ExpiresAt) {
			respondError(w, http.StatusForbidden, "TOKEN_EXPIRED", "API token has expired", nil)
			return
		}

		today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		count, err := h.store.RecordTokenUsage(r.Context(), token.ID, today)
		if err != nil {
			respondAppError(w, err)
			return
		}
		if token.DailyCallLimit >= 0 && count > token.DailyCallLimit {
			logging.Warn().Str("token_name", token.Name).Int("count", count).
				Int("limit", token.DailyCallLimit).Msg("API token over daily budget")
			respondError(w, http.StatusTooManyRequests, "DAILY_LIMIT_EXCEEDED",
				"API token daily call limit exceeded", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}
