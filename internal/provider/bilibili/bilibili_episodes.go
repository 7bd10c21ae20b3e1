// SPDX-License-Identifier: AGPL-3.0-or-later

package bilibili

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/quzard/misaka-danmu-server/internal/provider"
	"github.com/quzard/misaka-danmu-server/internal/provider/filter"
)

// GetEpisodes implements provider.Adapter, branching on the "ss"/"bv"
// media-ID prefix Search and GetInfoFromURL both produce.
func (a *Adapter) GetEpisodes(ctx context.Context, mediaID string, targetIndex *int, dbMediaType string) ([]provider.EpisodeInfo, error) {
	var raw []provider.RawEpisode
	var err error

	switch {
	case strings.HasPrefix(mediaID, "ss"):
		raw, err = a.pgcEpisodes(ctx, mediaID[2:])
	case strings.HasPrefix(mediaID, "bv"):
		raw, err = a.ugcEpisodes(ctx, mediaID[2:])
	default:
		return nil, nil
	}
	if err != nil {
		return nil, err
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

func (a *Adapter) pgcEpisodes(ctx context.Context, seasonID string) ([]provider.RawEpisode, error) {
	resp, err := a.get(ctx, "https://api.bilibili.com/pgc/view/web/season?season_id="+seasonID)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var parsed struct {
		Code   int `json:"code"`
		Result struct {
			MainSection struct {
				Episodes []biliPGCEpisode `json:"episodes"`
			} `json:"main_section"`
			Episodes []biliPGCEpisode `json:"episodes"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("bilibili: decode pgc season: %w", err)
	}
	if parsed.Code != 0 {
		return nil, nil
	}

	eps := parsed.Result.MainSection.Episodes
	if len(eps) == 0 {
		eps = parsed.Result.Episodes
	}

	out := make([]provider.RawEpisode, 0, len(eps))
	for _, ep := range eps {
		title := ep.ShowTitle
		if title == "" {
			title = ep.LongTitle
		}
		if title == "" {
			title = ep.Title
		}
		out = append(out, provider.RawEpisode{
			ProviderEpisodeID: fmt.Sprintf("%d,%d", ep.Aid, ep.Cid),
			Title:             strings.TrimSpace(title),
			URL:               fmt.Sprintf("https://www.bilibili.com/bangumi/play/ep%d", ep.ID),
		})
	}
	return out, nil
}

type biliPGCEpisode struct {
	ID        int64  `json:"id"`
	Aid       int64  `json:"aid"`
	Cid       int64  `json:"cid"`
	Title     string `json:"title"`
	LongTitle string `json:"long_title"`
	ShowTitle string `json:"show_title"`
}

func (a *Adapter) ugcEpisodes(ctx context.Context, bvid string) ([]provider.RawEpisode, error) {
	resp, err := a.get(ctx, "https://api.bilibili.com/x/web-interface/view?bvid="+bvid)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var parsed struct {
		Code int `json:"code"`
		Data struct {
			Aid   int64 `json:"aid"`
			Pages []struct {
				Cid  int64  `json:"cid"`
				Page int    `json:"page"`
				Part string `json:"part"`
			} `json:"pages"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("bilibili: decode ugc view: %w", err)
	}
	if parsed.Code != 0 {
		return nil, nil
	}

	out := make([]provider.RawEpisode, 0, len(parsed.Data.Pages))
	for _, p := range parsed.Data.Pages {
		out = append(out, provider.RawEpisode{
			ProviderEpisodeID: fmt.Sprintf("%d,%d", parsed.Data.Aid, p.Cid),
			Title:             strings.TrimSpace(p.Part),
			URL:               fmt.Sprintf("https://www.bilibili.com/video/%s?p=%d", bvid, p.Page),
		})
	}
	return out, nil
}
