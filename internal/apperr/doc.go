// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package apperr defines the error kinds and task-result variants used
throughout the danmaku server.

# Error Kinds

Every error that crosses a package boundary either is, or wraps, an
*Error (or the standalone *RateLimitExceeded type) so its Kind can be
read without string matching:

	NotFound                requested entity absent
	Conflict                duplicate submission, uniqueness violation
	RateLimitExceeded        limiter or upstream 429; carries RetryAfterSeconds
	UpstreamNetworkError     timeout, DNS, TLS; retry with backoff
	UpstreamSchemaError      response didn't match expected shape
	ConfigVerificationFailed rate-limit artifact failed signature/integrity check
	InternalError            unexpected failure; full cause logged

The API layer switches on Kind (via the Kinded interface) to pick an HTTP
status; the task manager switches on it to decide whether a task fails,
pauses, or retries.

# Task Results

TaskSuccess and TaskPauseForRateLimit are not errors — they are the
non-failure branches of what a task body can report, modeled as a sum
type (TaskResult) instead of being raised and caught like exceptions. A
task body returns (TaskResult, error); the manager only treats a non-nil
error as InternalError when TaskResult is nil.
*/
package apperr
