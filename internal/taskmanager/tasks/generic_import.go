// SPDX-License-Identifier: AGPL-3.0-or-later

package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/quzard/misaka-danmu-server/internal/apperr"
	"github.com/quzard/misaka-danmu-server/internal/danmakufile"
	"github.com/quzard/misaka-danmu-server/internal/library"
	"github.com/quzard/misaka-danmu-server/internal/provider"
	"github.com/quzard/misaka-danmu-server/internal/ratelimit"
	"github.com/quzard/misaka-danmu-server/internal/taskmanager"
)

// GenericImportParams is both the argument to NewGenericImport and the
// JSON shape stashed as task_parameters for crash recovery (spec.md
// §4.6.1, §4.6.6).
type GenericImportParams struct {
	Provider           string           `json:"provider"`
	MediaID            string           `json:"mediaId"`
	Title              string           `json:"title"`
	Type               library.WorkType `json:"type"`
	Season             int              `json:"season"`
	Year               *int             `json:"year,omitempty"`
	TargetEpisodeIndex *int             `json:"targetEpisodeIndex,omitempty"`
	ImageURL           string           `json:"image,omitempty"`
	TMDBID             *string          `json:"tmdbId,omitempty"`
	IMDBID             *string          `json:"imdbId,omitempty"`
	TVDBID             *string          `json:"tvdbId,omitempty"`
	DoubanID           *string          `json:"doubanId,omitempty"`
	BangumiID          *string          `json:"bangumiId,omitempty"`
	TMDBEpisodeGroupID *string          `json:"tmdbEpisodeGroupId,omitempty"`
}

// NewGenericImport builds the generic_import task body of spec.md
// §4.6.6: list episodes, fetch+normalize comments per episode in order,
// link a Work/Source on the first non-empty fetch, and accumulate an
// inserted-comment count for the terminal message.
func NewGenericImport(deps *Deps, params GenericImportParams) taskmanager.Factory {
	return func(ctx context.Context, progress taskmanager.ProgressFunc) (apperr.TaskResult, error) {
		adapter, ok := deps.Registry.Get(params.Provider)
		if !ok {
			return nil, fmt.Errorf("generic_import: unknown provider %q", params.Provider)
		}

		episodes, err := adapter.GetEpisodes(ctx, params.MediaID, params.TargetEpisodeIndex, string(params.Type))
		if err != nil {
			return nil, err
		}
		if params.Type == library.WorkTypeMovie && len(episodes) > 1 {
			episodes = episodes[:1]
		}
		if len(episodes) == 0 {
			return apperr.TaskSuccess{Message: "no episodes found"}, nil
		}

		var (
			sourceID      int64
			animeID       int64
			linked        bool
			totalInserted int
		)

		total := len(episodes)
		for i, ep := range episodes {
			if err := deps.Limiter.Check(ctx, params.Provider, adapterQuota(adapter)); err != nil {
				var rle *apperr.RateLimitExceeded
				if errors.As(err, &rle) {
					return apperr.TaskPauseForRateLimit{RetryAfterSeconds: rle.RetryAfterSeconds}, nil
				}
				return nil, err
			}

			pct := i * 100 / total
			if err := progress(ctx, pct, fmt.Sprintf("拉取第 %d 集", ep.EpisodeIndex), "fetching"); err != nil {
				return nil, err
			}

			providerEpisodeID := adapter.FormatEpisodeIDForComments(ep.ProviderEpisodeID)
			raw, err := adapter.GetComments(ctx, providerEpisodeID, func(int) {})
			if err != nil {
				return nil, err
			}
			normalized := normalizeProviderComments(params.Provider, raw)

			if !linked {
				if len(normalized) == 0 {
					continue
				}
				sourceID, err = getOrCreateSource(ctx, deps.Store, params)
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
			return apperr.TaskSuccess{Message: "no new comments"}, nil
		}
		return apperr.TaskSuccess{Message: fmt.Sprintf("imported %d comments", totalInserted)}, nil
	}
}

func adapterQuota(a provider.Adapter) ratelimit.Quota {
	meta := a.Meta()
	if meta.RateLimitQuota == nil {
		return ratelimit.Quota{}
	}
	period := time.Duration(meta.RateLimitPeriodSecs) * time.Second
	if period <= 0 {
		period = time.Hour
	}
	return ratelimit.Quota{Limit: *meta.RateLimitQuota, Period: period}
}

// getOrCreateSource implements the "getOrCreateAnime + linkSourceToAnime"
// step of spec.md §4.6.6, run only once an import's first non-empty
// comment fetch proves the media is worth linking.
func getOrCreateSource(ctx context.Context, store *library.Store, params GenericImportParams) (int64, error) {
	if existing, err := store.GetSourceByProviderMediaID(ctx, params.Provider, params.MediaID); err == nil {
		return existing.ID, nil
	} else if !apperr.Is(err, apperr.NotFound) {
		return 0, err
	}

	work, err := store.GetWorkByTitleSeason(ctx, params.Title, params.Season)
	if err == nil {
		// An existing Work may predate the external IDs this import
		// carries; fill in only what's still empty.
		if err := store.UpdateMetadataIfEmpty(ctx, work.ID, params.TMDBID, params.IMDBID, params.TVDBID, params.DoubanID); err != nil {
			return 0, err
		}
	} else {
		if !apperr.Is(err, apperr.NotFound) {
			return 0, err
		}
		var imageURL *string
		if params.ImageURL != "" {
			imageURL = &params.ImageURL
		}
		workID, err := store.CreateWork(ctx, &library.Work{
			Title:              params.Title,
			Type:               params.Type,
			Season:             params.Season,
			Year:               params.Year,
			ImageURL:           imageURL,
			TMDBID:             params.TMDBID,
			IMDBID:             params.IMDBID,
			TVDBID:             params.TVDBID,
			DoubanID:           params.DoubanID,
			BangumiID:          params.BangumiID,
			TMDBEpisodeGroupID: params.TMDBEpisodeGroupID,
		})
		if err != nil {
			return 0, err
		}
		work = &library.Work{ID: workID}
	}

	return store.CreateSource(ctx, &library.Source{
		AnimeID:                   work.ID,
		ProviderName:              params.Provider,
		MediaID:                   params.MediaID,
		IncrementalRefreshEnabled: true,
	})
}

func getOrCreateEpisode(ctx context.Context, store *library.Store, sourceID int64, ep provider.EpisodeInfo) (*library.Episode, error) {
	if existing, err := store.GetEpisodeBySourceIndex(ctx, sourceID, ep.EpisodeIndex); err == nil {
		return existing, nil
	} else if !apperr.Is(err, apperr.NotFound) {
		return nil, err
	}

	var url *string
	if ep.URL != "" {
		url = &ep.URL
	}
	id, err := store.CreateEpisode(ctx, &library.Episode{
		SourceID:          sourceID,
		EpisodeIndex:      ep.EpisodeIndex,
		Title:             ep.Title,
		SourceURL:         url,
		ProviderEpisodeID: ep.ProviderEpisodeID,
	})
	if err != nil {
		return nil, err
	}
	return store.GetEpisodeByID(ctx, id)
}
