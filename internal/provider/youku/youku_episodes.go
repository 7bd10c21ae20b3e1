// SPDX-License-Identifier: AGPL-3.0-or-later

package youku

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/quzard/misaka-danmu-server/internal/provider"
	"github.com/quzard/misaka-danmu-server/internal/provider/filter"
)

type youkuVideoEntry struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Link  string `json:"link"`
}

type youkuVideoResult struct {
	Total  int               `json:"total"`
	Videos []youkuVideoEntry `json:"videos"`
}

// GetEpisodes implements provider.Adapter. youku doesn't distinguish
// movies from series at the listing API level — both page through the
// same openapi.youku.com/v2/shows/videos.json endpoint under one show_id.
func (a *Adapter) GetEpisodes(ctx context.Context, mediaID string, targetIndex *int, dbMediaType string) ([]provider.EpisodeInfo, error) {
	const pageSize = 100
	var raw []provider.RawEpisode

	page := 1
	total := 0
	for {
		result, err := a.fetchEpisodePage(ctx, mediaID, page, pageSize)
		if err != nil {
			return nil, err
		}
		if result == nil || len(result.Videos) == 0 {
			break
		}
		for _, v := range result.Videos {
			raw = append(raw, provider.RawEpisode{
				ProviderEpisodeID: strings.ReplaceAll(v.ID, "=", "_"),
				Title:             v.Title,
				URL:               v.Link,
			})
		}
		total = result.Total
		if len(raw) >= total || len(result.Videos) < pageSize {
			break
		}
		page++
		if page > 200 {
			break
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

func (a *Adapter) fetchEpisodePage(ctx context.Context, showID string, page, pageSize int) (*youkuVideoResult, error) {
	url := fmt.Sprintf(
		"https://openapi.youku.com/v2/shows/videos.json?client_id=53e6cc67237fc59a&package=com.huawei.hwvplayer.youku&ext=show&show_id=%s&page=%d&count=%d",
		showID, page, pageSize)
	resp, err := a.get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var parsed youkuVideoResult
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("youku: decode episodes page: %w", err)
	}
	return &parsed, nil
}
