// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"crypto/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/quzard/misaka-danmu-server/internal/library"
	"github.com/quzard/misaka-danmu-server/internal/ratelimit"
	"github.com/quzard/misaka-danmu-server/internal/taskmanager/tasks"
)

// base62Alphabet is used to generate the 20-char API token literal
// spec.md §6.5 specifies.
const base62Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

func generateToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = base62Alphabet[int(b)%len(base62Alphabet)]
	}
	return string(out), nil
}

func toTokenResponse(t *library.APIToken, includeSecret bool) TokenResponse {
	resp := TokenResponse{
		ID: t.ID, Name: t.Name, Enabled: t.Enabled, ExpiresAt: t.ExpiresAt,
		DailyCallLimit: t.DailyCallLimit, DailyCount: t.DailyCount, LastResetDate: t.LastResetDate,
	}
	if includeSecret {
		resp.Token = t.Token
	}
	return resp
}

// RateLimitStatus implements `rate-limit/status` (spec.md §4.8): a
// side-effecting read that advances the window via the limiter's
// synthetic provider and reports every enabled provider's quota.
func (h *Handler) RateLimitStatus(w http.ResponseWriter, r *http.Request) {
	quotas := make(map[string]ratelimit.Quota)
	for _, meta := range h.registry.All() {
		quotas[meta.Name] = quotaFor(meta)
	}

	status, err := h.limiter.ReadStatus(r.Context(), quotas)
	if err != nil {
		respondAppError(w, err)
		return
	}

	resp := RateLimitStatusResponse{
		GlobalEnabled:       status.GlobalEnabled,
		VerificationFailed:  status.VerificationFailed,
		GlobalRequestCount:  status.GlobalRequestCount,
		GlobalLimit:         status.GlobalLimit,
		GlobalPeriodSeconds: status.GlobalPeriodSeconds,
		SecondsUntilReset:   status.SecondsUntilReset,
	}
	for _, p := range status.Providers {
		resp.Providers = append(resp.Providers, ProviderRateLimitStatus{
			ProviderName: p.ProviderName, RequestCount: p.RequestCount, Quota: p.Quota,
		})
	}
	respondOK(w, resp)
}

// CreateToken implements `tokens` creation (spec.md §6.5): generates a
// 20-char base62 secret and persists it. The secret is only ever
// returned from this call.
func (h *Handler) CreateToken(w http.ResponseWriter, r *http.Request) {
	var req TokenCreateRequest
	if apiErr := decodeJSON(r, &req); apiErr != nil {
		respondJSON(w, http.StatusBadRequest, &APIResponse{Status: "error", Error: apiErr})
		return
	}

	secret, err := generateToken(20)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to generate token", err)
		return
	}

	t := &library.APIToken{
		Name: req.Name, Token: secret, Enabled: true,
		ExpiresAt: req.ExpiresAt, DailyCallLimit: req.DailyCallLimit,
	}
	id, err := h.store.CreateAPIToken(r.Context(), t)
	if err != nil {
		respondAppError(w, err)
		return
	}
	t.ID = id
	respondCreated(w, toTokenResponse(t, true))
}

// ListTokens implements the `tokens` listing contract. Secrets are never
// shown again past creation.
func (h *Handler) ListTokens(w http.ResponseWriter, r *http.Request) {
	tokens, err := h.store.ListAPITokens(r.Context())
	if err != nil {
		respondAppError(w, err)
		return
	}
	list := make([]TokenResponse, 0, len(tokens))
	for _, t := range tokens {
		list = append(list, toTokenResponse(t, false))
	}
	respondOK(w, TokenListResponse{List: list})
}

// ToggleToken implements `tokens/{id}/toggle`.
func (h *Handler) ToggleToken(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "id must be an integer", nil)
		return
	}
	enabled, err := h.store.ToggleAPITokenEnabled(r.Context(), id)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondOK(w, TokenToggleResponse{Enabled: enabled})
}

// ResetToken implements `tokens/{id}/reset`: zeroes the daily counter
// ahead of its normal midnight rollover.
func (h *Handler) ResetToken(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "id must be an integer", nil)
		return
	}
	if err := h.store.ResetAPIToken(r.Context(), id); err != nil {
		respondAppError(w, err)
		return
	}
	respondOK(w, map[string]string{"status": "reset"})
}

// DeleteToken deletes an administrative token outright.
func (h *Handler) DeleteToken(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "id must be an integer", nil)
		return
	}
	if err := h.store.DeleteAPIToken(r.Context(), id); err != nil {
		respondAppError(w, err)
		return
	}
	respondOK(w, map[string]string{"status": "deleted"})
}

// ClearCache wipes the persistent cache table and the search pipeline's
// hot layer, returning how many rows were deleted.
func (h *Handler) ClearCache(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.store.ClearAllCache(r.Context())
	if err != nil {
		respondAppError(w, err)
		return
	}
	h.pipeline.ClearHotCache()
	respondOK(w, map[string]int64{"deletedCount": deleted})
}

// ListUARules implements `ua-rules`: every registered adapter's
// configurableFields (spec.md §4.3's settings-UI manifest) with its
// current configstore value.
func (h *Handler) ListUARules(w http.ResponseWriter, r *http.Request) {
	var list []UARuleResponse
	for _, meta := range h.registry.All() {
		for _, field := range meta.ConfigurableFields {
			value, err := h.configStore.Get(r.Context(), field.Key, "")
			if err != nil {
				respondAppError(w, err)
				return
			}
			list = append(list, UARuleResponse{
				ProviderName: meta.Name, Key: field.Key, Label: field.Label,
				Kind: field.Kind, Hint: field.Hint, Value: value,
			})
		}
	}
	respondOK(w, UARuleListResponse{List: list})
}

// UpdateUARule implements setting one configurable field's value by its
// configstore key.
func (h *Handler) UpdateUARule(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	var req UARuleUpdateRequest
	if apiErr := decodeJSON(r, &req); apiErr != nil {
		respondJSON(w, http.StatusBadRequest, &APIResponse{Status: "error", Error: apiErr})
		return
	}
	if err := h.configStore.SetValue(r.Context(), key, req.Value); err != nil {
		respondAppError(w, err)
		return
	}
	respondOK(w, map[string]string{"status": "updated"})
}

// WebhookIngress implements the webhook ingress contract of spec.md
// §4.8's last bullet: persists a reception-time row whose execute time
// is reception + delayHours; a separate sweeper (internal/webhook)
// moves due rows onto the chosen queue. Returns 503 if no webhook
// manager was wired (disables this endpoint only).
func (h *Handler) WebhookIngress(w http.ResponseWriter, r *http.Request) {
	if h.webhook == nil {
		respondError(w, http.StatusServiceUnavailable, "WEBHOOK_DISABLED", "webhook ingress is not enabled", nil)
		return
	}

	var req WebhookEnqueueRequest
	if apiErr := decodeJSON(r, &req); apiErr != nil {
		respondJSON(w, http.StatusBadRequest, &APIResponse{Status: "error", Error: apiErr})
		return
	}

	params := tasksGenericImportParamsFromImportRequest(req.Payload)
	id, err := h.webhook.Enqueue(r.Context(), req.SourceHint, mustJSONBytes(params),
		time.Duration(req.DelayHours*float64(time.Hour)), req.Queue)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondCreated(w, WebhookEnqueueResponse{WebhookTaskID: id})
}

// tasksGenericImportParamsFromImportRequest converts the wire-level
// ImportRequest embedded in a webhook payload into the
// GenericImportParams shape the webhook sweep (internal/webhook) later
// unmarshals back out of the persisted row.
func tasksGenericImportParamsFromImportRequest(req ImportRequest) tasks.GenericImportParams {
	return tasks.GenericImportParams{
		Provider: req.Provider, MediaID: req.MediaID, Title: req.Title, Type: req.Type,
		Season: req.Season, Year: req.Year, TargetEpisodeIndex: req.TargetEpisodeIndex,
		ImageURL: req.ImageURL, TMDBID: req.TMDBID, IMDBID: req.IMDBID, TVDBID: req.TVDBID,
		DoubanID: req.DoubanID, BangumiID: req.BangumiID, TMDBEpisodeGroupID: req.TMDBEpisodeGroupID,
	}
}

// mustJSONBytes is mustJSON's []byte-returning twin, used where the
// caller needs the raw payload bytes rather than a string.
func mustJSONBytes(v interface{}) []byte {
	return []byte(mustJSON(v))
}
