// SPDX-License-Identifier: AGPL-3.0-or-later

package tasks

import (
	"context"
	"fmt"

	"github.com/quzard/misaka-danmu-server/internal/apperr"
	"github.com/quzard/misaka-danmu-server/internal/taskmanager"
)

// ReorderEpisodesParams targets one Source's episode list for a
// sort-order-to-index renumber.
type ReorderEpisodesParams struct {
	SourceID int64 `json:"sourceId"`
}

// NewReorderEpisodes builds reorder_episodes (spec.md §4.6.6): in the
// current sort order, reassign episodeIndex = 1..n.
func NewReorderEpisodes(deps *Deps, params ReorderEpisodesParams) taskmanager.Factory {
	return func(ctx context.Context, progress taskmanager.ProgressFunc) (apperr.TaskResult, error) {
		episodes, err := deps.Store.ListEpisodesForSource(ctx, params.SourceID)
		if err != nil {
			return nil, err
		}
		newIndex := make(map[int64]int, len(episodes))
		for i, ep := range episodes {
			newIndex[ep.ID] = i + 1
		}
		if err := deps.Store.ReorderEpisodes(ctx, params.SourceID, newIndex); err != nil {
			return nil, err
		}
		if err := progress(ctx, 100, "完成", "done"); err != nil {
			return nil, err
		}
		return apperr.TaskSuccess{Message: fmt.Sprintf("reordered %d episodes", len(episodes))}, nil
	}
}

// OffsetEpisodesParams shifts every episode under a Source by Delta.
// Callers must pre-validate min(episodeIndex)+Delta >= 1 before
// submitting (spec.md §4.6.6) — the task body itself trusts its input.
type OffsetEpisodesParams struct {
	SourceID int64 `json:"sourceId"`
	Delta    int   `json:"offset"`
}

// NewOffsetEpisodes builds offset_episodes.
func NewOffsetEpisodes(deps *Deps, params OffsetEpisodesParams) taskmanager.Factory {
	return func(ctx context.Context, progress taskmanager.ProgressFunc) (apperr.TaskResult, error) {
		if err := deps.Store.OffsetEpisodes(ctx, params.SourceID, params.Delta); err != nil {
			return nil, err
		}
		if err := progress(ctx, 100, "完成", "done"); err != nil {
			return nil, err
		}
		return apperr.TaskSuccess{Message: "episodes renumbered"}, nil
	}
}
