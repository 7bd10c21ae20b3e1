// SPDX-License-Identifier: AGPL-3.0-or-later

package webhook

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/goccy/go-json"

	"github.com/quzard/misaka-danmu-server/internal/apperr"
	"github.com/quzard/misaka-danmu-server/internal/configstore"
	"github.com/quzard/misaka-danmu-server/internal/library"
	"github.com/quzard/misaka-danmu-server/internal/logging"
	"github.com/quzard/misaka-danmu-server/internal/taskmanager"
	"github.com/quzard/misaka-danmu-server/internal/taskmanager/tasks"
)

// Manager owns the webhook_tasks table: receiving payloads and sweeping
// due rows onto the task manager.
type Manager struct {
	store  *library.Store
	cfg    *configstore.Store
	tasks  *tasks.Deps
	submit func(ctx context.Context, req taskmanager.SubmitRequest) (string, error)
	sweep  time.Duration
	now    func() time.Time
}

// New builds a Manager. submit is typically (*taskmanager.Manager).Submit;
// it is taken as a function rather than the concrete type so tests can
// stub it. cfg may be nil to disable the title filter and raw-payload
// logging. sweepInterval is how often Serve polls for due rows.
func New(store *library.Store, cfg *configstore.Store, deps *tasks.Deps, submit func(ctx context.Context, req taskmanager.SubmitRequest) (string, error), sweepInterval time.Duration) *Manager {
	if sweepInterval <= 0 {
		sweepInterval = 30 * time.Second
	}
	return &Manager{store: store, cfg: cfg, tasks: deps, submit: submit, sweep: sweepInterval, now: time.Now}
}

// Enqueue persists a reception row per spec.md §4.8: payload must already
// be in GenericImportParams's JSON shape (the platform-specific decode
// that produces it is an external collaborator's job, per spec.md §1).
// execute = reception + delay. A sourceHint matching webhook.filter_regex
// is dropped with a Conflict before a row is written.
func (m *Manager) Enqueue(ctx context.Context, sourceHint string, payload []byte, delay time.Duration, queue library.QueueType) (int64, error) {
	if queue != library.QueueDownload && queue != library.QueueFallback {
		return 0, fmt.Errorf("webhook: queue must be download or fallback, got %q", queue)
	}

	if m.cfg != nil {
		pattern, err := m.cfg.Get(ctx, configstore.KeyWebhookFilterRegex, "")
		if err != nil {
			return 0, err
		}
		if pattern != "" {
			re, err := regexp.Compile(pattern)
			if err != nil {
				logging.Ctx(ctx).Warn().Err(err).Str("pattern", pattern).Msg("webhook.filter_regex does not compile; filter disabled")
			} else if re.MatchString(sourceHint) {
				return 0, apperr.NewConflict(fmt.Sprintf("webhook source %q rejected by filter", sourceHint))
			}
		}

		if logRaw, err := m.cfg.GetBool(ctx, configstore.KeyWebhookLogRawPayloads, false); err == nil && logRaw {
			logging.Ctx(ctx).Info().Str("source_hint", sourceHint).RawJSON("payload", payload).Msg("webhook payload received")
		}
	}

	now := m.now()
	return m.store.CreateWebhookTask(ctx, &library.WebhookTask{
		SourceHint:  sourceHint,
		PayloadJSON: string(payload),
		QueueType:   queue,
		ReceivedAt:  now,
		ExecuteAt:   now.Add(delay),
	})
}

// Serve sweeps for due rows every m.sweep until ctx is cancelled, matching
// the "a separate worker moves due rows to the download/fallback queue"
// description in spec.md §4.8. The name satisfies suture.Service so the
// supervisor tree can run it directly.
func (m *Manager) Serve(ctx context.Context) error {
	ticker := time.NewTicker(m.sweep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := m.sweepOnce(ctx); err != nil {
				logging.Ctx(ctx).Error().Err(err).Msg("webhook sweep failed")
			}
		}
	}
}

// String implements fmt.Stringer for the supervisor tree's service logs.
func (m *Manager) String() string {
	return "webhook-sweeper"
}

func (m *Manager) sweepOnce(ctx context.Context) error {
	due, err := m.store.ListDueWebhookTasks(ctx, m.now())
	if err != nil {
		return fmt.Errorf("list due webhook tasks: %w", err)
	}

	for _, row := range due {
		var params tasks.GenericImportParams
		if err := json.Unmarshal([]byte(row.PayloadJSON), &params); err != nil {
			logging.Ctx(ctx).Error().Err(err).Int64("webhook_task_id", row.ID).Msg("webhook payload is not a valid generic_import request; skipping")
			if markErr := m.store.MarkWebhookTaskDispatched(ctx, row.ID); markErr != nil {
				return markErr
			}
			continue
		}

		title := fmt.Sprintf("Webhook导入: %s", row.SourceHint)
		uniqueKey := fmt.Sprintf("webhook-import-%s-%s-s%d", params.Provider, params.MediaID, params.Season)
		_, err := m.submit(ctx, taskmanager.SubmitRequest{
			Factory:        tasks.NewGenericImport(m.tasks, params),
			Title:          title,
			UniqueKey:      uniqueKey,
			QueueType:      row.QueueType,
			TaskType:       "generic_import",
			TaskParameters: row.PayloadJSON,
		})
		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).Int64("webhook_task_id", row.ID).Msg("failed to submit webhook-delayed import")
			continue
		}
		if err := m.store.MarkWebhookTaskDispatched(ctx, row.ID); err != nil {
			return err
		}
	}
	return nil
}
