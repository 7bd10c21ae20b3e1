// SPDX-License-Identifier: AGPL-3.0-or-later

package tasks

import (
	"context"
	"errors"
	"fmt"

	"github.com/quzard/misaka-danmu-server/internal/apperr"
	"github.com/quzard/misaka-danmu-server/internal/danmakufile"
	"github.com/quzard/misaka-danmu-server/internal/library"
	"github.com/quzard/misaka-danmu-server/internal/provider"
	"github.com/quzard/misaka-danmu-server/internal/taskmanager"
)

// EditedImportParams carries a caller-edited episode list: the user has
// reviewed the provider's listing, dropped or renamed entries, and the
// task imports exactly what remains instead of re-listing upstream.
type EditedImportParams struct {
	Provider string                 `json:"provider"`
	MediaID  string                 `json:"mediaId"`
	Title    string                 `json:"title"`
	Type     library.WorkType       `json:"type"`
	Season   int                    `json:"season"`
	Year     *int                   `json:"year,omitempty"`
	ImageURL string                 `json:"image,omitempty"`
	TMDBID   *string                `json:"tmdbId,omitempty"`
	DoubanID *string                `json:"doubanId,omitempty"`
	Episodes []provider.EpisodeInfo `json:"episodes"`
}

// NewEditedImport builds the edited-list import: generic_import's body
// with the upstream GetEpisodes call replaced by the caller's list.
func NewEditedImport(deps *Deps, params EditedImportParams) taskmanager.Factory {
	return func(ctx context.Context, progress taskmanager.ProgressFunc) (apperr.TaskResult, error) {
		adapter, ok := deps.Registry.Get(params.Provider)
		if !ok {
			return nil, fmt.Errorf("edited_import: unknown provider %q", params.Provider)
		}
		if len(params.Episodes) == 0 {
			return apperr.TaskSuccess{Message: "没有提供任何分集，任务结束"}, nil
		}

		var (
			sourceID      int64
			animeID       int64
			linked        bool
			totalInserted int
		)

		total := len(params.Episodes)
		for i, ep := range params.Episodes {
			if err := deps.Limiter.Check(ctx, params.Provider, adapterQuota(adapter)); err != nil {
				var rle *apperr.RateLimitExceeded
				if errors.As(err, &rle) {
					return apperr.TaskPauseForRateLimit{RetryAfterSeconds: rle.RetryAfterSeconds}, nil
				}
				return nil, err
			}

			pct := 10 + i*85/total
			if err := progress(ctx, pct, fmt.Sprintf("正在处理: %s (%d/%d)", ep.Title, i+1, total), "fetching"); err != nil {
				return nil, err
			}

			raw, err := adapter.GetComments(ctx, adapter.FormatEpisodeIDForComments(ep.ProviderEpisodeID), func(int) {})
			if err != nil {
				return nil, err
			}
			normalized := normalizeProviderComments(params.Provider, raw)

			if !linked {
				if len(normalized) == 0 {
					continue
				}
				sourceID, err = getOrCreateSource(ctx, deps.Store, GenericImportParams{
					Provider: params.Provider, MediaID: params.MediaID, Title: params.Title,
					Type: params.Type, Season: params.Season, Year: params.Year,
					ImageURL: params.ImageURL, TMDBID: params.TMDBID, DoubanID: params.DoubanID,
				})
				if err != nil {
					return nil, err
				}
				if src, err := deps.Store.GetSourceByID(ctx, sourceID); err == nil {
					animeID = src.AnimeID
				}
				linked = true
			}

			episodeRow, err := getOrCreateEpisode(ctx, deps.Store, sourceID, ep)
			if err != nil {
				return nil, err
			}

			result, err := deps.Store.InsertComments(ctx, episodeRow.ID, params.Provider, normalized)
			if err != nil {
				return nil, err
			}
			totalInserted += result.Inserted

			if err := deps.Store.MarkFetched(ctx, episodeRow.ID, deps.now()); err != nil {
				return nil, err
			}
			if err := deps.Limiter.Increment(ctx, params.Provider); err != nil {
				return nil, err
			}

			deps.exportDanmakuFile(ctx, params.Type, danmakufile.Tokens{
				Title: params.Title, Season: params.Season, Episode: ep.EpisodeIndex,
				Year: params.Year, Provider: params.Provider,
				AnimeID: animeID, SourceID: sourceID, EpisodeID: episodeRow.ID,
			}, episodeRow.ID)
		}

		if err := progress(ctx, 100, "完成", "done"); err != nil {
			return nil, err
		}

		if totalInserted == 0 {
			return apperr.TaskSuccess{Message: "导入完成，但未找到任何新弹幕"}, nil
		}
		return apperr.TaskSuccess{Message: fmt.Sprintf("导入完成，共新增 %d 条弹幕", totalInserted)}, nil
	}
}
