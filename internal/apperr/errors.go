// SPDX-License-Identifier: AGPL-3.0-or-later

// Package apperr defines the error kinds and task-result variants shared
// across the danmaku server: the API handlers map Kind to an HTTP status,
// the task manager maps it to a persisted task status, and providers wrap
// upstream failures in it so retries and logging behave consistently.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for HTTP-status mapping and log-level selection.
// It is independent of the error's message, so handlers never need to
// pattern-match on text.
type Kind int

const (
	// KindUnknown is the zero value; treated like InternalError.
	KindUnknown Kind = iota
	KindNotFound
	KindConflict
	KindRateLimitExceeded
	KindUpstreamNetwork
	KindUpstreamSchema
	KindConfigVerificationFailed
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindConflict:
		return "Conflict"
	case KindRateLimitExceeded:
		return "RateLimitExceeded"
	case KindUpstreamNetwork:
		return "UpstreamNetworkError"
	case KindUpstreamSchema:
		return "UpstreamSchemaError"
	case KindConfigVerificationFailed:
		return "ConfigVerificationFailed"
	case KindInternal:
		return "InternalError"
	default:
		return "Unknown"
	}
}

// Kinded is implemented by every error type in this package so the API
// layer can map an error to an HTTP status without type-switching on each
// concrete type.
type Kinded interface {
	error
	ErrorKind() Kind
}

// Error is a typed application error carrying a Kind, a message and an
// optional wrapped cause. Construct one with the New* helpers below rather
// than composing a Kind literal by hand.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// ErrorKind implements Kinded.
func (e *Error) ErrorKind() Kind {
	return e.Kind
}

// Is reports whether target has the same Kind, so callers can do
// errors.Is(err, apperr.NotFound) regardless of message or cause.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// NotFound is a sentinel matched via errors.Is for "requested entity absent".
var NotFound = &Error{Kind: KindNotFound, Message: "not found"}

// Conflict is a sentinel matched via errors.Is for "duplicate submission,
// uniqueness violation".
var Conflict = &Error{Kind: KindConflict, Message: "conflict"}

// NewNotFound builds a KindNotFound error naming the missing entity.
func NewNotFound(entity, id string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s %s not found", entity, id)}
}

// NewConflict builds a KindConflict error describing the collision.
func NewConflict(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

// RateLimitExceeded reports the limiter or an upstream 429 refusing a
// request. RetryAfterSeconds is the wait before the caller's next attempt
// is likely to succeed; 0 means unknown.
type RateLimitExceeded struct {
	Provider          string
	RetryAfterSeconds int
}

func (e *RateLimitExceeded) Error() string {
	if e.RetryAfterSeconds > 0 {
		return fmt.Sprintf("RateLimitExceeded: %s rate limited, retry after %ds", e.Provider, e.RetryAfterSeconds)
	}
	return fmt.Sprintf("RateLimitExceeded: %s rate limited", e.Provider)
}

// ErrorKind implements Kinded.
func (e *RateLimitExceeded) ErrorKind() Kind { return KindRateLimitExceeded }

// NewUpstreamNetworkError wraps a transport-level failure (timeout, DNS,
// TLS) from a provider fetch. Callers retry this with backoff up to 3
// attempts before giving up.
func NewUpstreamNetworkError(provider string, cause error) *Error {
	return &Error{
		Kind:    KindUpstreamNetwork,
		Message: fmt.Sprintf("%s: upstream network error", provider),
		Cause:   cause,
	}
}

// NewUpstreamSchemaError wraps a response that parsed but didn't match the
// expected JSON/XML shape. The caller should log the raw body (subject to
// isLoggable) and skip the offending item rather than fail the whole task.
func NewUpstreamSchemaError(provider string, cause error) *Error {
	return &Error{
		Kind:    KindUpstreamSchema,
		Message: fmt.Sprintf("%s: unexpected response shape", provider),
		Cause:   cause,
	}
}

// ConfigVerificationFailed reports that the rate-limit artifact failed
// signature or integrity verification. All provider fetches are refused
// while this condition holds.
var ConfigVerificationFailed = &Error{Kind: KindConfigVerificationFailed, Message: "rate limit artifact failed verification"}

// NewInternal wraps an unexpected error. The task manager persists the
// task as failed with the last line of cause's message and logs the full
// error.
func NewInternal(cause error) *Error {
	return &Error{Kind: KindInternal, Message: "internal error", Cause: cause}
}

// Is lets errors.Is(err, apperr.NotFound) and errors.Is(err, apperr.Conflict)
// work against dynamically constructed errors of the same Kind.
func Is(err error, sentinel *Error) bool {
	return errors.Is(err, sentinel)
}
