// SPDX-License-Identifier: AGPL-3.0-or-later

package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/quzard/misaka-danmu-server/internal/apperr"
)

// CreateTaskHistory inserts a new task row in pending status. TaskType and
// TaskParameters are stashed so InterruptRunningTasks's caller can rebuild
// the submission after a crash.
func (s *Store) CreateTaskHistory(ctx context.Context, t *TaskHistory) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO task_history (task_id, title, status, progress, description, scheduled_task_id, queue_type, task_type, task_parameters)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TaskID, t.Title, string(t.Status), t.Progress, t.Description, t.ScheduledTaskID, string(t.QueueType), t.TaskType, t.TaskParameters)
	if err != nil {
		return fmt.Errorf("insert task history: %w", err)
	}
	return nil
}

// UpdateTaskProgress is called frequently during a running task; it only
// touches progress and description, not status.
func (s *Store) UpdateTaskProgress(ctx context.Context, taskID string, progress int, description string) error {
	_, err := s.conn.ExecContext(ctx,
		`UPDATE task_history SET progress = ?, description = ? WHERE task_id = ?`, progress, description, taskID)
	if err != nil {
		return fmt.Errorf("update task progress: %w", err)
	}
	return nil
}

// FinishTask transitions a task to a terminal or paused status and,
// for terminal statuses, stamps finished_at.
func (s *Store) FinishTask(ctx context.Context, taskID string, status TaskStatus, description string) error {
	var err error
	if status == TaskStatusPaused || status == TaskStatusRunning {
		_, err = s.conn.ExecContext(ctx,
			`UPDATE task_history SET status = ?, description = ? WHERE task_id = ?`, string(status), description, taskID)
	} else {
		_, err = s.conn.ExecContext(ctx,
			`UPDATE task_history SET status = ?, description = ?, progress = 100, finished_at = CURRENT_TIMESTAMP WHERE task_id = ?`,
			string(status), description, taskID)
	}
	if err != nil {
		return fmt.Errorf("finish task: %w", err)
	}
	return nil
}

// SetTaskRunning transitions a task to running. resetProgress is true for
// a fresh dequeue, where progress restarts at 0 (spec.md §4.6.3 "persists
// status=running, progress=0"), and false when resuming a previously
// paused task, where progress is left as-is.
func (s *Store) SetTaskRunning(ctx context.Context, taskID string, resetProgress bool) error {
	var err error
	if resetProgress {
		_, err = s.conn.ExecContext(ctx,
			`UPDATE task_history SET status = ?, progress = 0 WHERE task_id = ?`, string(TaskStatusRunning), taskID)
	} else {
		_, err = s.conn.ExecContext(ctx,
			`UPDATE task_history SET status = ? WHERE task_id = ?`, string(TaskStatusRunning), taskID)
	}
	if err != nil {
		return fmt.Errorf("set task running: %w", err)
	}
	return nil
}

// GetTaskHistory looks up one task row.
func (s *Store) GetTaskHistory(ctx context.Context, taskID string) (*TaskHistory, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT task_id, title, status, progress, description, scheduled_task_id, queue_type, task_type, task_parameters, created_at, finished_at
		FROM task_history WHERE task_id = ?`, taskID)
	return scanTaskHistory(row)
}

// ListTasksByStatus returns tasks in a given status, newest first — used
// on process restart to find interrupted "running" tasks per spec.md §4.6.
func (s *Store) ListTasksByStatus(ctx context.Context, status TaskStatus) ([]*TaskHistory, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT task_id, title, status, progress, description, scheduled_task_id, queue_type, task_type, task_parameters, created_at, finished_at
		FROM task_history WHERE status = ? ORDER BY created_at DESC`, string(status))
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var out []*TaskHistory
	for rows.Next() {
		t := &TaskHistory{}
		var status, queueType string
		if err := rows.Scan(&t.TaskID, &t.Title, &status, &t.Progress, &t.Description,
			&t.ScheduledTaskID, &queueType, &t.TaskType, &t.TaskParameters, &t.CreatedAt, &t.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		t.Status = TaskStatus(status)
		t.QueueType = QueueType(queueType)
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListTasks returns a page of task_history rows, newest first, optionally
// filtered to a single status, alongside the total row count matching the
// filter — backing the `tasks(status?, page?)` contract of spec.md §4.8.
func (s *Store) ListTasks(ctx context.Context, status *TaskStatus, offset, limit int) ([]*TaskHistory, int64, error) {
	where := ""
	var args []any
	if status != nil {
		where = "WHERE status = ?"
		args = append(args, string(*status))
	}

	var total int64
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM task_history %s`, where)
	if err := s.conn.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count tasks: %w", err)
	}

	listArgs := append(append([]any{}, args...), limit, offset)
	query := fmt.Sprintf(`SELECT task_id, title, status, progress, description, scheduled_task_id, queue_type, task_type, task_parameters, created_at, finished_at
		FROM task_history %s ORDER BY created_at DESC LIMIT ? OFFSET ?`, where)
	rows, err := s.conn.QueryContext(ctx, query, listArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []*TaskHistory
	for rows.Next() {
		t := &TaskHistory{}
		var st, qt string
		if err := rows.Scan(&t.TaskID, &t.Title, &st, &t.Progress, &t.Description,
			&t.ScheduledTaskID, &qt, &t.TaskType, &t.TaskParameters, &t.CreatedAt, &t.FinishedAt); err != nil {
			return nil, 0, fmt.Errorf("scan task: %w", err)
		}
		t.Status = TaskStatus(st)
		t.QueueType = QueueType(qt)
		out = append(out, t)
	}
	return out, total, rows.Err()
}

// InterruptRunningTasks marks every "running" task as failed with the
// standard restart message. Called once at startup, before the
// supervisor tree's queue workers start, so no worker resumes a task the
// manager thinks is still in flight.
func (s *Store) InterruptRunningTasks(ctx context.Context) (int64, error) {
	res, err := s.conn.ExecContext(ctx,
		`UPDATE task_history SET status = ?, description = ?, finished_at = CURRENT_TIMESTAMP
		WHERE status = ?`,
		string(TaskStatusFailed), "进程重启，任务已中断", string(TaskStatusRunning))
	if err != nil {
		return 0, fmt.Errorf("interrupt running tasks: %w", err)
	}
	return res.RowsAffected()
}

// DeleteTaskHistory removes one finished task's row. Callers must refuse
// to delete a row the manager still tracks as live.
func (s *Store) DeleteTaskHistory(ctx context.Context, taskID string) error {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM task_history WHERE task_id = ?`, taskID)
	if err != nil {
		return fmt.Errorf("delete task history: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.NewNotFound("task", taskID)
	}
	return nil
}

func scanTaskHistory(row *sql.Row) (*TaskHistory, error) {
	t := &TaskHistory{}
	var status, queueType string
	err := row.Scan(&t.TaskID, &t.Title, &status, &t.Progress, &t.Description,
		&t.ScheduledTaskID, &queueType, &t.TaskType, &t.TaskParameters, &t.CreatedAt, &t.FinishedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NewNotFound("task", "")
		}
		return nil, fmt.Errorf("scan task: %w", err)
	}
	t.Status = TaskStatus(status)
	t.QueueType = QueueType(queueType)
	return t, nil
}
