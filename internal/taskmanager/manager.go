// SPDX-License-Identifier: AGPL-3.0-or-later

package taskmanager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quzard/misaka-danmu-server/internal/apperr"
	"github.com/quzard/misaka-danmu-server/internal/library"
	"github.com/quzard/misaka-danmu-server/internal/logging"
	"github.com/quzard/misaka-danmu-server/internal/supervisor"
)

const progressThrottle = 500 * time.Millisecond

// queueBuffer is generous enough that Submit never blocks on a full
// channel under normal load; a queue this deep backing up means the
// worker itself is stuck, which the supervisor tree's restart-on-panic
// handles, not backpressure on submission.
const queueBuffer = 4096

// Manager owns the three FIFO task queues and every in-flight task's
// dedup/pause/cancel state. It is an explicit, constructed object —
// never a package-level singleton — per spec.md §9's redesign flag.
type Manager struct {
	store *library.Store

	mu               sync.Mutex
	titlesInUse      map[string]struct{}
	activeUniqueKeys map[string]struct{}
	tasks            map[string]*taskHandle

	downloadQueue   chan *taskEnvelope
	managementQueue chan *taskEnvelope
	fallbackQueue   chan *taskEnvelope

	recoveryMu       sync.Mutex
	recoveryHandlers map[string]RecoveryHandler
}

// New constructs a Manager bound to store for lifecycle persistence.
func New(store *library.Store) *Manager {
	return &Manager{
		store:            store,
		titlesInUse:      make(map[string]struct{}),
		activeUniqueKeys: make(map[string]struct{}),
		tasks:            make(map[string]*taskHandle),
		downloadQueue:    make(chan *taskEnvelope, queueBuffer),
		managementQueue:  make(chan *taskEnvelope, queueBuffer),
		fallbackQueue:    make(chan *taskEnvelope, queueBuffer),
		recoveryHandlers: make(map[string]RecoveryHandler),
	}
}

// AttachToSupervisor adds one worker per queue to tree, so each queue
// restarts in isolation on panic without taking down the other two or the
// API layer (spec.md §4.6.1 "each served by exactly one worker").
func (m *Manager) AttachToSupervisor(tree *supervisor.SupervisorTree) {
	tree.AddDownloadWorker(&queueWorker{name: "task-worker-download", queue: m.downloadQueue, manager: m})
	tree.AddManagementWorker(&queueWorker{name: "task-worker-management", queue: m.managementQueue, manager: m})
	tree.AddFallbackWorker(&queueWorker{name: "task-worker-fallback", queue: m.fallbackQueue, manager: m})
}

// RegisterRecoveryHandler wires taskType to a rebuild function used only
// during Start's crash-recovery scan (spec.md §4.6.4). Task types with no
// registered handler are logged and left failed, not auto-resumed.
func (m *Manager) RegisterRecoveryHandler(taskType string, handler RecoveryHandler) {
	m.recoveryMu.Lock()
	defer m.recoveryMu.Unlock()
	m.recoveryHandlers[taskType] = handler
}

// Start scans task_history for rows left running/paused by a prior crash,
// marks each failed with the standard interruption message, and for any
// whose task type has a registered recovery handler, resubmits it.
func (m *Manager) Start(ctx context.Context) error {
	for _, status := range []library.TaskStatus{library.TaskStatusRunning, library.TaskStatusPaused} {
		rows, err := m.store.ListTasksByStatus(ctx, status)
		if err != nil {
			return fmt.Errorf("list %s tasks: %w", status, err)
		}
		for _, row := range rows {
			logging.Ctx(ctx).Warn().
				Str("task_id", row.TaskID).
				Str("title", row.Title).
				Msg("task interrupted by restart")

			if err := m.store.FinishTask(ctx, row.TaskID, library.TaskStatusFailed, "进程重启，任务已中断"); err != nil {
				return fmt.Errorf("fail interrupted task %s: %w", row.TaskID, err)
			}

			if row.TaskType == nil {
				continue
			}
			m.recoveryMu.Lock()
			handler, ok := m.recoveryHandlers[*row.TaskType]
			m.recoveryMu.Unlock()
			if !ok {
				continue
			}

			params := ""
			if row.TaskParameters != nil {
				params = *row.TaskParameters
			}
			req, err := handler(row.TaskID, params)
			if err != nil {
				logging.Ctx(ctx).Error().Err(err).Str("task_id", row.TaskID).Msg("recovery handler failed to rebuild task")
				continue
			}
			if req == nil {
				continue
			}
			if _, err := m.Submit(ctx, *req); err != nil {
				logging.Ctx(ctx).Error().Err(err).Str("task_id", row.TaskID).Msg("failed to resubmit recovered task")
			}
		}
	}
	return nil
}

// Submit enforces the dedup preconditions of spec.md §4.6.2 under a
// single mutex, persists the pending row, and enqueues the task (or runs
// it immediately in a background goroutine when RunImmediately is set —
// still subject to the same preconditions).
func (m *Manager) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if req.Title == "" {
		return "", errors.New("taskmanager: title is required")
	}
	if req.Factory == nil {
		return "", errors.New("taskmanager: factory is required")
	}

	m.mu.Lock()
	if _, dup := m.titlesInUse[req.Title]; dup {
		m.mu.Unlock()
		return "", apperr.NewConflict(fmt.Sprintf("a task named %q is already pending or running", req.Title))
	}
	if req.UniqueKey != "" {
		if _, dup := m.activeUniqueKeys[req.UniqueKey]; dup {
			m.mu.Unlock()
			return "", apperr.NewConflict(fmt.Sprintf("a task targeting %q is already active", req.UniqueKey))
		}
	}

	taskID := uuid.NewString()
	handle := &taskHandle{
		taskID:    taskID,
		title:     req.Title,
		uniqueKey: req.UniqueKey,
		queueType: req.QueueType,
		gate:      newPauseGate(),
	}
	m.titlesInUse[req.Title] = struct{}{}
	if req.UniqueKey != "" {
		m.activeUniqueKeys[req.UniqueKey] = struct{}{}
	}
	m.tasks[taskID] = handle
	m.mu.Unlock()

	var taskType, taskParams *string
	if req.TaskType != "" {
		taskType = &req.TaskType
	}
	if req.TaskParameters != "" {
		taskParams = &req.TaskParameters
	}

	history := &library.TaskHistory{
		TaskID:         taskID,
		Title:          req.Title,
		Status:         library.TaskStatusPending,
		QueueType:      req.QueueType,
		TaskType:       taskType,
		TaskParameters: taskParams,
	}
	if err := m.store.CreateTaskHistory(ctx, history); err != nil {
		m.release(handle)
		return "", fmt.Errorf("create task history: %w", err)
	}

	env := &taskEnvelope{taskID: taskID, req: req, handle: handle}

	if req.RunImmediately {
		go m.execute(context.Background(), env)
		return taskID, nil
	}

	m.enqueue(env)
	return taskID, nil
}

func (m *Manager) enqueue(env *taskEnvelope) {
	queue := m.queueFor(env.req.QueueType)
	select {
	case queue <- env:
	default:
		go func() { queue <- env }()
	}
}

func (m *Manager) queueFor(qt library.QueueType) chan *taskEnvelope {
	switch qt {
	case library.QueueManagement:
		return m.managementQueue
	case library.QueueFallback:
		return m.fallbackQueue
	default:
		return m.downloadQueue
	}
}

// execute runs one task to completion (or pause). It is called by a
// queue's worker goroutine, or directly in its own goroutine for
// RunImmediately submissions and for rate-limit resume requeues.
func (m *Manager) execute(ctx context.Context, env *taskEnvelope) {
	taskCtx, cancel := context.WithCancel(ctx)
	env.handle.mu.Lock()
	env.handle.cancel = cancel
	env.handle.mu.Unlock()
	defer cancel()

	if err := m.store.SetTaskRunning(taskCtx, env.taskID, !env.resumed); err != nil {
		logging.Ctx(taskCtx).Warn().Err(err).Str("task_id", env.taskID).Msg("failed to mark task running")
	}

	result, err := env.req.Factory(taskCtx, m.progressFunc(env.handle))

	switch r := result.(type) {
	case apperr.TaskSuccess:
		m.finish(ctx, env.taskID, library.TaskStatusCompleted, r.Message)
		m.release(env.handle)
		return
	case apperr.TaskPauseForRateLimit:
		env.handle.gate.pause()
		desc := fmt.Sprintf("触发速率限制，%d秒后自动重试", r.RetryAfterSeconds)
		m.finish(ctx, env.taskID, library.TaskStatusPaused, desc)
		m.scheduleRateLimitResume(env, time.Duration(r.RetryAfterSeconds)*time.Second)
		return
	}

	env.handle.mu.Lock()
	aborted := env.handle.abortRequested
	env.handle.mu.Unlock()

	switch {
	case aborted:
		m.finish(ctx, env.taskID, library.TaskStatusFailed, "被用户手动中止")
	case errors.Is(err, context.Canceled):
		m.finish(ctx, env.taskID, library.TaskStatusFailed, "被用户手动中止")
	case err != nil:
		m.finish(ctx, env.taskID, library.TaskStatusFailed, describeError(err))
	default:
		m.finish(ctx, env.taskID, library.TaskStatusCompleted, "任务完成")
	}
	m.release(env.handle)
}

func describeError(err error) string {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}

func (m *Manager) finish(ctx context.Context, taskID string, status library.TaskStatus, description string) {
	if err := m.store.FinishTask(ctx, taskID, status, description); err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("task_id", taskID).Msg("failed to persist task completion")
	}
}

// scheduleRateLimitResume requeues the same envelope after the provider's
// requested backoff so the factory re-runs; generic_import's body is
// idempotent (createEpisodeIfNotExists/bulkInsertComments skip already
// written rows), so re-running from the top picks up where it left off.
func (m *Manager) scheduleRateLimitResume(env *taskEnvelope, after time.Duration) {
	if after <= 0 {
		after = time.Second
	}
	time.AfterFunc(after, func() {
		env.handle.gate.resume()
		resumed := &taskEnvelope{taskID: env.taskID, req: env.req, handle: env.handle, resumed: true}
		m.enqueue(resumed)
	})
}

func (m *Manager) release(handle *taskHandle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.titlesInUse, handle.title)
	if handle.uniqueKey != "" {
		delete(m.activeUniqueKeys, handle.uniqueKey)
	}
	delete(m.tasks, handle.taskID)
}

func (m *Manager) lookup(taskID string) (*taskHandle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.tasks[taskID]
	return h, ok
}

// Pause clears the per-task pause gate so the next progress checkpoint
// blocks, and persists the paused status.
func (m *Manager) Pause(ctx context.Context, taskID string) error {
	handle, ok := m.lookup(taskID)
	if !ok {
		return apperr.NewNotFound("task", taskID)
	}
	handle.gate.pause()
	return m.store.FinishTask(ctx, taskID, library.TaskStatusPaused, "已暂停")
}

// Resume sets the pause gate open again and persists the running status.
func (m *Manager) Resume(ctx context.Context, taskID string) error {
	handle, ok := m.lookup(taskID)
	if !ok {
		return apperr.NewNotFound("task", taskID)
	}
	handle.gate.resume()
	return m.store.FinishTask(ctx, taskID, library.TaskStatusRunning, "运行中")
}

// Abort cancels the task's context and unblocks its pause gate so a
// paused task observes the cancellation promptly. It does not wait for
// the task goroutine to exit.
func (m *Manager) Abort(taskID string) error {
	handle, ok := m.lookup(taskID)
	if !ok {
		return apperr.NewNotFound("task", taskID)
	}
	handle.mu.Lock()
	handle.abortRequested = true
	cancel := handle.cancel
	handle.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	handle.gate.resume()
	return nil
}

// ForceAbort cancels the task like Abort, then immediately marks it
// failed and releases its title/uniqueKey without waiting for the task
// goroutine to notice — for a task whose factory is stuck ignoring ctx.
func (m *Manager) ForceAbort(ctx context.Context, taskID string) error {
	handle, ok := m.lookup(taskID)
	if !ok {
		return apperr.NewNotFound("task", taskID)
	}
	if err := m.Abort(taskID); err != nil {
		return err
	}
	if err := m.store.FinishTask(ctx, taskID, library.TaskStatusFailed, "被用户手动中止"); err != nil {
		return err
	}
	m.release(handle)
	return nil
}

// Delete removes a finished task's history row. A task still tracked as
// live (pending, running or paused in-process) must be aborted first.
func (m *Manager) Delete(ctx context.Context, taskID string) error {
	if _, live := m.lookup(taskID); live {
		return apperr.NewConflict("task is still active; abort it before deleting")
	}
	return m.store.DeleteTaskHistory(ctx, taskID)
}

// Get returns one task's persisted history row.
func (m *Manager) Get(ctx context.Context, taskID string) (*library.TaskHistory, error) {
	return m.store.GetTaskHistory(ctx, taskID)
}

// List returns a page of task history, optionally filtered to status.
func (m *Manager) List(ctx context.Context, status *library.TaskStatus, offset, limit int) ([]*library.TaskHistory, int64, error) {
	return m.store.ListTasks(ctx, status, offset, limit)
}

// progressFunc builds the checkpoint closure passed to a task's factory.
func (m *Manager) progressFunc(handle *taskHandle) ProgressFunc {
	return func(ctx context.Context, pct int, description string, hint StatusHint) error {
		if err := handle.gate.wait(ctx); err != nil {
			return err
		}

		handle.mu.Lock()
		due := pct == 0 || pct >= 100 || hint != handle.lastHint || time.Since(handle.lastPersist) >= progressThrottle
		if due {
			handle.lastPersist = time.Now()
			handle.lastHint = hint
			handle.lastPctReported = pct
		}
		handle.mu.Unlock()
		if !due {
			return nil
		}

		if err := m.store.UpdateTaskProgress(ctx, handle.taskID, pct, description); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("task_id", handle.taskID).Msg("failed to persist task progress")
		}
		return nil
	}
}
