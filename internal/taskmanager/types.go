// SPDX-License-Identifier: AGPL-3.0-or-later

package taskmanager

import (
	"context"
	"sync"
	"time"

	"github.com/quzard/misaka-danmu-server/internal/apperr"
	"github.com/quzard/misaka-danmu-server/internal/library"
)

// StatusHint is a short machine-readable phase marker a task body attaches
// to a progress update (e.g. "fetching", "writing"). It participates in
// the progress-write throttle: a hint change forces an immediate
// persistence write even inside the 500ms window (spec.md §4.6.3).
type StatusHint string

// ProgressFunc is the cooperative cancellation/pause checkpoint a task
// body calls between units of work. It blocks until the task is resumed
// (a no-op if it isn't paused), returns ctx.Err() if the task was
// cancelled while waiting, and otherwise persists progress — throttled to
// at most one write per 500ms unless pct is 0, pct is >=100, or hint
// differs from the last persisted hint.
type ProgressFunc func(ctx context.Context, pct int, description string, hint StatusHint) error

// Factory is a task body. It receives the checkpoint described above and
// returns the TaskResult sum type (apperr.TaskSuccess or
// apperr.TaskPauseForRateLimit) alongside a plain error for anything else.
// The manager checks the TaskResult before treating a non-nil error as a
// failure (spec.md §9 "model as result variants rather than exceptions").
type Factory func(ctx context.Context, progress ProgressFunc) (apperr.TaskResult, error)

// SubmitRequest describes a task submission (spec.md §4.6.1-4.6.2).
// TaskType/TaskParameters are optional: when both are set and a recovery
// handler is registered for TaskType, a crash while this task is running
// or paused lets Start re-derive and resubmit it.
type SubmitRequest struct {
	Factory        Factory
	Title          string
	UniqueKey      string
	QueueType      library.QueueType
	TaskType       string
	TaskParameters string
	RunImmediately bool
}

// RecoveryHandler rebuilds a SubmitRequest from a task_history row's cached
// (taskType, taskParameters) for crash recovery (spec.md §4.6.4). Returning
// a nil request with a nil error means "don't resubmit this one" — the
// default for any task type with no registered handler (generic imports
// are surfaced to the operator, not auto-resumed).
type RecoveryHandler func(taskID, parameters string) (*SubmitRequest, error)

// taskEnvelope is what actually travels through a queue channel.
type taskEnvelope struct {
	taskID  string
	req     SubmitRequest
	handle  *taskHandle
	resumed bool
}

// taskHandle is the manager's live bookkeeping for one in-flight task.
type taskHandle struct {
	taskID    string
	title     string
	uniqueKey string
	queueType library.QueueType

	gate *pauseGate

	mu              sync.Mutex
	cancel          context.CancelFunc
	abortRequested  bool
	lastPersist     time.Time
	lastHint        StatusHint
	lastPctReported int
}

// pauseGate is a channel-swap pause/resume primitive: wait blocks until
// the gate is open. A closed channel means "open" (task proceeds); a
// fresh, unclosed channel means "paused".
type pauseGate struct {
	mu sync.Mutex
	ch chan struct{}
}

func newPauseGate() *pauseGate {
	ch := make(chan struct{})
	close(ch)
	return &pauseGate{ch: ch}
}

func (g *pauseGate) wait(ctx context.Context) error {
	g.mu.Lock()
	ch := g.ch
	g.mu.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *pauseGate) pause() {
	g.mu.Lock()
	defer g.mu.Unlock()
	select {
	case <-g.ch:
		g.ch = make(chan struct{})
	default:
	}
}

func (g *pauseGate) resume() {
	g.mu.Lock()
	defer g.mu.Unlock()
	select {
	case <-g.ch:
	default:
		close(g.ch)
	}
}
