// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/quzard/misaka-danmu-server/internal/apperr"
	"github.com/quzard/misaka-danmu-server/internal/logging"
	"github.com/quzard/misaka-danmu-server/internal/validation"
)

// APIResponse is the envelope every handler returns, success or error.
type APIResponse struct {
	Status string      `json:"status"`
	Data   interface{} `json:"data,omitempty"`
	Error  *APIError   `json:"error,omitempty"`
}

// APIError is the error half of APIResponse.
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// respondJSON writes response as the JSON body with the given status.
func respondJSON(w http.ResponseWriter, status int, response *APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	data, err := json.Marshal(response)
	if err != nil {
		logging.Error().Err(err).Msg("failed to marshal API response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("failed to write API response")
	}
}

// respondOK writes a 200 success envelope around data.
func respondOK(w http.ResponseWriter, data interface{}) {
	respondJSON(w, http.StatusOK, &APIResponse{Status: "success", Data: data})
}

// respondCreated writes a 201 success envelope around data.
func respondCreated(w http.ResponseWriter, data interface{}) {
	respondJSON(w, http.StatusCreated, &APIResponse{Status: "success", Data: data})
}

// respondError writes an error envelope and logs the cause, if any.
func respondError(w http.ResponseWriter, status int, code, message string, err error) {
	if err != nil {
		logging.Error().Str("code", code).Err(err).Msg("API request failed")
	}
	respondJSON(w, status, &APIResponse{
		Status: "error",
		Error:  &APIError{Code: code, Message: message},
	})
}

// respondAppError maps an apperr.Kinded (or a plain error) to the HTTP
// status spec.md implies for each kind: NotFound -> 404, Conflict ->
// 409, RateLimitExceeded -> 429, everything else -> 500.
func respondAppError(w http.ResponseWriter, err error) {
	var kinded apperr.Kinded
	if errors.As(err, &kinded) {
		switch kinded.ErrorKind() {
		case apperr.KindNotFound:
			respondError(w, http.StatusNotFound, "NOT_FOUND", kinded.Error(), nil)
			return
		case apperr.KindConflict:
			respondError(w, http.StatusConflict, "CONFLICT", kinded.Error(), nil)
			return
		case apperr.KindRateLimitExceeded:
			var rle *apperr.RateLimitExceeded
			if errors.As(err, &rle) && rle.RetryAfterSeconds > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(rle.RetryAfterSeconds))
			}
			respondError(w, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", kinded.Error(), nil)
			return
		case apperr.KindConfigVerificationFailed:
			respondError(w, http.StatusServiceUnavailable, "CONFIG_VERIFICATION_FAILED", kinded.Error(), nil)
			return
		case apperr.KindUpstreamNetwork, apperr.KindUpstreamSchema:
			respondError(w, http.StatusBadGateway, "UPSTREAM_ERROR", kinded.Error(), err)
			return
		}
	}
	respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error", err)
}

// mustJSON marshals v for use as a task_parameters cache value. Every
// caller passes a value this package itself constructed from validated
// request fields, so a marshal failure here would be a programming
// error, not a request error.
func mustJSON(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		logging.Error().Err(err).Msg("failed to marshal task parameters")
		return "{}"
	}
	return string(data)
}

// decodeJSON decodes r's body into v and validates it via the
// go-playground/validator rules declared on v's struct tags.
func decodeJSON(r *http.Request, v interface{}) *APIError {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &APIError{Code: "INVALID_JSON", Message: "request body is not valid JSON"}
	}
	if verr := validation.ValidateStruct(v); verr != nil {
		apiErr := verr.ToAPIError()
		return &APIError{Code: apiErr.Code, Message: apiErr.Message, Details: apiErr.Details}
	}
	return nil
}
