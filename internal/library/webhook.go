// SPDX-License-Identifier: AGPL-3.0-or-later

package library

import (
	"context"
	"fmt"
	"time"
)

// WebhookTask is one reception-row of the webhook ingress described in
// spec.md §4.8: a platform posts a payload, it is stamped with the time
// it was received and the time it becomes eligible for dispatch, and a
// sweep worker moves due rows onto generic_import.
type WebhookTask struct {
	ID          int64
	SourceHint  string
	PayloadJSON string
	QueueType   QueueType
	ReceivedAt  time.Time
	ExecuteAt   time.Time
	Dispatched  bool
}

// CreateWebhookTask inserts a reception row with a computed execute_at
// (received_at + the caller's configured delay).
func (s *Store) CreateWebhookTask(ctx context.Context, t *WebhookTask) (int64, error) {
	var id int64
	err := s.timedQueryRow(ctx, "insert", "webhook_tasks", func() error {
		return s.conn.QueryRowContext(ctx,
			`INSERT INTO webhook_tasks (id, source_hint, payload_json, queue_type, execute_at)
			VALUES (nextval('webhook_tasks_id_seq'), ?, ?, ?, ?)
			RETURNING id`,
			t.SourceHint, t.PayloadJSON, string(t.QueueType), t.ExecuteAt,
		).Scan(&id)
	})
	if err != nil {
		return 0, fmt.Errorf("insert webhook_task: %w", err)
	}
	return id, nil
}

// ListDueWebhookTasks returns every undispatched row whose execute_at has
// passed, oldest first, for the sweep worker to dispatch.
func (s *Store) ListDueWebhookTasks(ctx context.Context, now time.Time) ([]*WebhookTask, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, source_hint, payload_json, queue_type, received_at, execute_at, dispatched
		FROM webhook_tasks WHERE NOT dispatched AND execute_at <= ? ORDER BY execute_at`, now)
	if err != nil {
		return nil, fmt.Errorf("query due webhook_tasks: %w", err)
	}
	defer rows.Close()

	var out []*WebhookTask
	for rows.Next() {
		t := &WebhookTask{}
		var queueType string
		if err := rows.Scan(&t.ID, &t.SourceHint, &t.PayloadJSON, &queueType,
			&t.ReceivedAt, &t.ExecuteAt, &t.Dispatched); err != nil {
			return nil, fmt.Errorf("scan webhook_task: %w", err)
		}
		t.QueueType = QueueType(queueType)
		out = append(out, t)
	}
	return out, rows.Err()
}

// MarkWebhookTaskDispatched flips a row's dispatched flag once the sweep
// worker has successfully submitted its generic_import.
func (s *Store) MarkWebhookTaskDispatched(ctx context.Context, id int64) error {
	_, err := s.conn.ExecContext(ctx, `UPDATE webhook_tasks SET dispatched = true WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark webhook_task dispatched: %w", err)
	}
	return nil
}
