// SPDX-License-Identifier: AGPL-3.0-or-later

package hanjutv

import (
	"context"
	"fmt"

	"github.com/quzard/misaka-danmu-server/internal/provider"
	"github.com/quzard/misaka-danmu-server/internal/provider/filter"
)

// GetEpisodes implements provider.Adapter. Unlike the original (which uses
// serialNo as the episode index verbatim and applies no blacklist
// filtering despite declaring a DefaultBlacklist constant), this renumbers
// through filter.FilterAndRenumber for consistency with every other
// adapter in this system; episodes with an empty pid are skipped since
// they carry no fetchable danmaku.
func (a *Adapter) GetEpisodes(ctx context.Context, mediaID string, targetIndex *int, dbMediaType string) ([]provider.EpisodeInfo, error) {
	raw, err := a.getEpisodesRaw(ctx, mediaID)
	if err != nil {
		return nil, err
	}

	rawEpisodes := make([]provider.RawEpisode, 0, len(raw))
	for _, ep := range raw {
		if ep.Pid == "" {
			continue
		}
		title := fmt.Sprintf("第%d集", ep.SerialNo)
		if ep.Title != "" {
			title = fmt.Sprintf("第%d集：%s", ep.SerialNo, ep.Title)
		}
		rawEpisodes = append(rawEpisodes, provider.RawEpisode{
			ProviderEpisodeID: ep.Pid,
			Title:             title,
			URL:               fmt.Sprintf("https://hanjutv.com/play/%s/%s", mediaID, ep.Pid),
		})
	}

	episodes := filter.FilterAndRenumber(rawEpisodes, a.filterConfig(ctx))
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
