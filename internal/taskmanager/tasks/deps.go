// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tasks holds the task-body factories the external API surface
// and the webhook sweep submit onto internal/taskmanager's queues:
// generic_import, full_refresh, refresh_episode, reorder_episodes,
// offset_episodes, manual_import, batch_manual_import and the
// work/source/episode delete tasks (spec.md §4.6.6).
package tasks

import (
	"context"
	"time"

	"github.com/quzard/misaka-danmu-server/internal/comment"
	"github.com/quzard/misaka-danmu-server/internal/danmakufile"
	"github.com/quzard/misaka-danmu-server/internal/library"
	"github.com/quzard/misaka-danmu-server/internal/logging"
	"github.com/quzard/misaka-danmu-server/internal/provider"
	"github.com/quzard/misaka-danmu-server/internal/ratelimit"
)

// Registry is the subset of provider.Registry a task body needs.
type Registry interface {
	Get(name string) (provider.Adapter, bool)
}

// Deps bundles what every task factory closes over. Built once in the
// composition root and threaded into each New*Request constructor.
type Deps struct {
	Store    *library.Store
	Registry Registry
	Limiter  *ratelimit.Limiter
	// Files is the optional file-based storage backend; nil disables it
	// without consulting the config store at all.
	Files *danmakufile.Writer
	Now   func() time.Time
}

func (d *Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// exportDanmakuFile mirrors an episode's full persisted comment list to
// the file backend. Best-effort: a failed export logs a warning and never
// fails the task that triggered it.
func (d *Deps) exportDanmakuFile(ctx context.Context, workType library.WorkType, tokens danmakufile.Tokens, episodeID int64) {
	if d.Files == nil {
		return
	}
	comments, err := d.Store.ListCommentsForEpisode(ctx, episodeID)
	if err != nil {
		logging.Warn().Err(err).Int64("episode_id", episodeID).Msg("danmaku file export: list comments failed")
		return
	}
	if _, err := d.Files.WriteEpisode(ctx, workType, tokens, comments); err != nil {
		logging.Warn().Err(err).Int64("episode_id", episodeID).Msg("danmaku file export failed")
	}
}

// normalizeProviderComments is the single call site every task body uses
// to turn provider-raw comments into library rows (spec.md §4.7).
func normalizeProviderComments(providerName string, raw []provider.RawComment) []*library.Comment {
	return comment.Normalize(providerName, raw)
}
