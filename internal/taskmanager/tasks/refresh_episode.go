// SPDX-License-Identifier: AGPL-3.0-or-later

package tasks

import (
	"context"
	"errors"
	"fmt"

	"github.com/quzard/misaka-danmu-server/internal/apperr"
	"github.com/quzard/misaka-danmu-server/internal/taskmanager"
)

// RefreshEpisodeParams targets one Episode for an incremental refetch.
type RefreshEpisodeParams struct {
	EpisodeID int64 `json:"episodeId"`
}

// NewRefreshEpisode builds refresh_episode (spec.md §4.6.6): fetch the
// full current set, diff the fetched cids against what the episode
// already holds, and insert only the new ones.
func NewRefreshEpisode(deps *Deps, params RefreshEpisodeParams) taskmanager.Factory {
	return func(ctx context.Context, progress taskmanager.ProgressFunc) (apperr.TaskResult, error) {
		episode, err := deps.Store.GetEpisodeByID(ctx, params.EpisodeID)
		if err != nil {
			return nil, err
		}
		source, err := deps.Store.GetSourceByID(ctx, episode.SourceID)
		if err != nil {
			return nil, err
		}
		adapter, ok := deps.Registry.Get(source.ProviderName)
		if !ok {
			return nil, fmt.Errorf("refresh_episode: unknown provider %q", source.ProviderName)
		}

		if err := deps.Limiter.Check(ctx, source.ProviderName, adapterQuota(adapter)); err != nil {
			var rle *apperr.RateLimitExceeded
			if errors.As(err, &rle) {
				return apperr.TaskPauseForRateLimit{RetryAfterSeconds: rle.RetryAfterSeconds}, nil
			}
			return nil, err
		}

		if err := progress(ctx, 0, "拉取弹幕", "fetching"); err != nil {
			return nil, err
		}
		raw, err := adapter.GetComments(ctx, adapter.FormatEpisodeIDForComments(episode.ProviderEpisodeID), func(int) {})
		if err != nil {
			return nil, err
		}
		normalized := normalizeProviderComments(source.ProviderName, raw)

		existing, err := deps.Store.GetExistingCommentCids(ctx, episode.ID)
		if err != nil {
			return nil, err
		}
		fresh := normalized[:0:0]
		for _, c := range normalized {
			if _, seen := existing[c.CID]; !seen {
				fresh = append(fresh, c)
			}
		}

		result, err := deps.Store.InsertComments(ctx, episode.ID, source.ProviderName, fresh)
		if err != nil {
			return nil, err
		}
		if err := deps.Store.MarkFetched(ctx, episode.ID, deps.now()); err != nil {
			return nil, err
		}
		if err := deps.Limiter.Increment(ctx, source.ProviderName); err != nil {
			return nil, err
		}
		if err := progress(ctx, 100, "完成", "done"); err != nil {
			return nil, err
		}

		if result.Inserted == 0 {
			return apperr.TaskSuccess{Message: "no new comments"}, nil
		}
		return apperr.TaskSuccess{Message: fmt.Sprintf("imported %d new comments", result.Inserted)}, nil
	}
}
