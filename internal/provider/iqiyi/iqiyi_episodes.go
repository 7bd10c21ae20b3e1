// SPDX-License-Identifier: AGPL-3.0-or-later

package iqiyi

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/quzard/misaka-danmu-server/internal/provider"
	"github.com/quzard/misaka-danmu-server/internal/provider/filter"
)

type iqiyiAvlistResponse struct {
	Data *struct {
		Epsodelist []struct {
			TvID    int64  `json:"tvId"`
			Name    string `json:"name"`
			Order   int    `json:"order"`
			PlayURL string `json:"playUrl"`
		} `json:"epsodelist"`
	} `json:"data"`
}

// GetEpisodes implements provider.Adapter. mediaID is a link_id. Movies
// resolve to a single synthetic episode from the base-info lookup;
// everything else pages through the mainland avlistinfo endpoint only
// (the original also tries an international endpoint first and a
// by-month variety-show fallback — see DESIGN.md for why this port
// keeps just the one that always has the data for an already-known
// album_id).
func (a *Adapter) GetEpisodes(ctx context.Context, mediaID string, targetIndex *int, dbMediaType string) ([]provider.EpisodeInfo, error) {
	info, err := a.legacyBaseInfo(ctx, mediaID)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, nil
	}

	var raw []provider.RawEpisode
	isMovie := dbMediaType == "movie" || (dbMediaType == "" && info.ChannelName == "电影")
	if isMovie {
		tvID := int64(0)
		if info.TvID != nil {
			tvID = *info.TvID
		}
		raw = append(raw, provider.RawEpisode{
			ProviderEpisodeID: fmt.Sprintf("%d", tvID),
			Title:             info.VideoName,
			URL:               info.VideoURL,
		})
	} else {
		raw, err = a.pagedEpisodes(ctx, info.AlbumID)
		if err != nil {
			return nil, err
		}
	}

	episodes := filter.FilterAndRenumber(raw, a.filterConfig(ctx))
	if targetIndex == nil {
		return episodes, nil
	}
	for _, ep := range episodes {
		if ep.EpisodeIndex == *targetIndex {
			return []provider.EpisodeInfo{ep}, nil
		}
	}
	return nil, nil
}

func (a *Adapter) pagedEpisodes(ctx context.Context, albumID int64) ([]provider.RawEpisode, error) {
	const pageSize = 200
	var out []provider.RawEpisode
	page := 1
	for {
		reqURL := fmt.Sprintf("https://pcw-api.iqiyi.com/albums/album/avlistinfo?aid=%d&page=%d&size=%d", albumID, page, pageSize)
		resp, err := a.get(ctx, reqURL)
		if err != nil {
			return nil, err
		}
		var parsed iqiyiAvlistResponse
		decodeErr := json.NewDecoder(resp.Body).Decode(&parsed)
		resp.Body.Close()
		if decodeErr != nil {
			return nil, fmt.Errorf("iqiyi: decode episode page: %w", decodeErr)
		}
		if parsed.Data == nil || len(parsed.Data.Epsodelist) == 0 {
			break
		}
		for _, ep := range parsed.Data.Epsodelist {
			out = append(out, provider.RawEpisode{
				ProviderEpisodeID: fmt.Sprintf("%d", ep.TvID),
				Title:             ep.Name,
				URL:               ep.PlayURL,
			})
		}
		if len(parsed.Data.Epsodelist) < pageSize {
			break
		}
		page++
	}
	return out, nil
}
