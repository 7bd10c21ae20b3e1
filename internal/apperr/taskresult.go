// SPDX-License-Identifier: AGPL-3.0-or-later

package apperr

// TaskResult is the outcome a task body returns alongside its error. It
// models "the task succeeded" or "the task wants to pause" as data instead
// of exceptions, per the non-failure control-flow redesign: TaskSuccess and
// TaskPauseForRateLimit are not logged or treated as errors by the task
// manager, even though they travel out of the task body next to an error
// return.
//
// A task body has the signature:
//
//	func(ctx context.Context) (apperr.TaskResult, error)
//
// The manager checks TaskResult first; a non-nil error is only treated as
// InternalError when TaskResult is nil.
type TaskResult interface {
	taskResult()
}

// TaskSuccess signals the task finished normally. Message is persisted as
// the task's terminal status message (e.g. "imported 42 comments").
type TaskSuccess struct {
	Message string
}

func (TaskSuccess) taskResult() {}

// TaskPauseForRateLimit signals the task hit the rate limiter's quota and
// is requesting the manager pause it and schedule a resume. This is the
// only way a task is allowed to pause itself; RetryAfterSeconds comes
// straight from the RateLimitExceeded that triggered it.
type TaskPauseForRateLimit struct {
	RetryAfterSeconds int
}

func (TaskPauseForRateLimit) taskResult() {}
