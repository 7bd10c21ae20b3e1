// SPDX-License-Identifier: AGPL-3.0-or-later

package tasks

import (
	"context"

	"github.com/quzard/misaka-danmu-server/internal/apperr"
	"github.com/quzard/misaka-danmu-server/internal/taskmanager"
)

// DeleteWorkParams targets one Work for cascade deletion.
type DeleteWorkParams struct {
	WorkID int64 `json:"workId"`
}

// NewDeleteWork builds the management-queue delete_work task: cascade
// deletes a Work's Sources, Episodes and Comments (spec.md §3
// "Lifecycle", supplementing §4.6.6's task-body list).
func NewDeleteWork(deps *Deps, params DeleteWorkParams) taskmanager.Factory {
	return func(ctx context.Context, progress taskmanager.ProgressFunc) (apperr.TaskResult, error) {
		if err := deps.Store.DeleteWork(ctx, params.WorkID); err != nil {
			return nil, err
		}
		_ = progress(ctx, 100, "完成", "done")
		return apperr.TaskSuccess{Message: "work deleted"}, nil
	}
}

// DeleteSourceParams targets one Source for cascade deletion.
type DeleteSourceParams struct {
	SourceID int64 `json:"sourceId"`
}

// NewDeleteSource builds delete_source.
func NewDeleteSource(deps *Deps, params DeleteSourceParams) taskmanager.Factory {
	return func(ctx context.Context, progress taskmanager.ProgressFunc) (apperr.TaskResult, error) {
		if err := deps.Store.DeleteSource(ctx, params.SourceID); err != nil {
			return nil, err
		}
		_ = progress(ctx, 100, "完成", "done")
		return apperr.TaskSuccess{Message: "source deleted"}, nil
	}
}

// DeleteEpisodeParams targets one Episode for cascade deletion.
type DeleteEpisodeParams struct {
	EpisodeID int64 `json:"episodeId"`
}

// NewDeleteEpisode builds delete_episode.
func NewDeleteEpisode(deps *Deps, params DeleteEpisodeParams) taskmanager.Factory {
	return func(ctx context.Context, progress taskmanager.ProgressFunc) (apperr.TaskResult, error) {
		if err := deps.Store.DeleteEpisode(ctx, params.EpisodeID); err != nil {
			return nil, err
		}
		_ = progress(ctx, 100, "完成", "done")
		return apperr.TaskSuccess{Message: "episode deleted"}, nil
	}
}
