// SPDX-License-Identifier: AGPL-3.0-or-later

package tasks

import (
	"context"
	"errors"
	"fmt"

	"github.com/quzard/misaka-danmu-server/internal/apperr"
	"github.com/quzard/misaka-danmu-server/internal/library"
	"github.com/quzard/misaka-danmu-server/internal/taskmanager"
)

// FullRefreshParams targets one Source for a fetch-then-replace refresh.
type FullRefreshParams struct {
	SourceID int64 `json:"sourceId"`
}

// NewFullRefresh builds full_refresh (spec.md §4.6.6): collect every
// episode's comments into memory first, and only replace the existing
// data if the new fetch yielded at least one comment — otherwise the old
// data is kept and the task still reports success, per the Open Question
// resolution recorded in DESIGN.md.
func NewFullRefresh(deps *Deps, params FullRefreshParams) taskmanager.Factory {
	return func(ctx context.Context, progress taskmanager.ProgressFunc) (apperr.TaskResult, error) {
		source, err := deps.Store.GetSourceByID(ctx, params.SourceID)
		if err != nil {
			return nil, err
		}
		work, err := deps.Store.GetWorkByID(ctx, source.AnimeID)
		if err != nil {
			return nil, err
		}
		adapter, ok := deps.Registry.Get(source.ProviderName)
		if !ok {
			return nil, fmt.Errorf("full_refresh: unknown provider %q", source.ProviderName)
		}

		episodes, err := adapter.GetEpisodes(ctx, source.MediaID, nil, string(work.Type))
		if err != nil {
			return nil, err
		}

		var collected []library.NewEpisodeWithComments
		totalComments := 0
		total := maxInt(len(episodes), 1)

		for i, ep := range episodes {
			if err := deps.Limiter.Check(ctx, source.ProviderName, adapterQuota(adapter)); err != nil {
				var rle *apperr.RateLimitExceeded
				if errors.As(err, &rle) {
					return apperr.TaskPauseForRateLimit{RetryAfterSeconds: rle.RetryAfterSeconds}, nil
				}
				return nil, err
			}

			if err := progress(ctx, i*100/total, fmt.Sprintf("拉取第 %d 集", ep.EpisodeIndex), "fetching"); err != nil {
				return nil, err
			}

			raw, err := adapter.GetComments(ctx, adapter.FormatEpisodeIDForComments(ep.ProviderEpisodeID), func(int) {})
			if err != nil {
				return nil, err
			}
			normalized := normalizeProviderComments(source.ProviderName, raw)
			totalComments += len(normalized)

			fetchedAt := deps.now()
			collected = append(collected, library.NewEpisodeWithComments{
				Episode: &library.Episode{
					EpisodeIndex:      ep.EpisodeIndex,
					Title:             ep.Title,
					SourceURL:         strPtr(ep.URL),
					ProviderEpisodeID: ep.ProviderEpisodeID,
					FetchedAt:         &fetchedAt,
				},
				Comments: normalized,
			})

			if err := deps.Limiter.Increment(ctx, source.ProviderName); err != nil {
				return nil, err
			}
		}

		if totalComments == 0 {
			return apperr.TaskSuccess{Message: "no comments found, kept existing data"}, nil
		}

		if err := deps.Store.ReplaceSourceEpisodes(ctx, source.ID, collected); err != nil {
			return nil, err
		}
		if err := progress(ctx, 100, "完成", "done"); err != nil {
			return nil, err
		}
		return apperr.TaskSuccess{Message: fmt.Sprintf("refreshed %d episodes, %d comments", len(collected), totalComments)}, nil
	}
}
