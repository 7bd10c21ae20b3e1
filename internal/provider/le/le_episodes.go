// SPDX-License-Identifier: AGPL-3.0-or-later

package le

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/quzard/misaka-danmu-server/internal/provider"
	"github.com/quzard/misaka-danmu-server/internal/provider/filter"
)

var leVidEpisodePattern = regexp.MustCompile(`data-info='({[^']+})'`)

type leEpisodeDataInfo struct {
	VidEpisode string `json:"vidEpisode"`
}

// GetEpisodes implements provider.Adapter. le.com has no unified work id
// namespace across content kinds, so the original probes four URL shapes
// (tv/comic/playlet/movie) until one responds; the surviving page embeds
// a "vidEpisode" string of "index-video_id" pairs.
func (a *Adapter) GetEpisodes(ctx context.Context, mediaID string, targetIndex *int, dbMediaType string) ([]provider.EpisodeInfo, error) {
	urlsToTry := []string{
		fmt.Sprintf("https://www.le.com/tv/%s.html", mediaID),
		fmt.Sprintf("https://www.le.com/comic/%s.html", mediaID),
		fmt.Sprintf("https://www.le.com/playlet/%s.html", mediaID),
		fmt.Sprintf("https://www.le.com/movie/%s.html", mediaID),
	}

	var html string
	for _, url := range urlsToTry {
		resp, err := a.get(ctx, url)
		if err != nil {
			continue
		}
		body, err := readAll(resp)
		if err != nil {
			continue
		}
		html = body
		break
	}
	if html == "" {
		return nil, nil
	}

	m := leVidEpisodePattern.FindStringSubmatch(html)
	if m == nil {
		return nil, nil
	}
	var info leEpisodeDataInfo
	if err := json.Unmarshal([]byte(m[1]), &info); err != nil || info.VidEpisode == "" {
		return nil, nil
	}

	var raw []provider.RawEpisode
	indexByID := map[string]int{}
	for _, item := range strings.Split(info.VidEpisode, ",") {
		parts := strings.SplitN(item, "-", 2)
		if len(parts) != 2 {
			continue
		}
		idx, err := strconv.Atoi(parts[0])
		if err != nil {
			continue
		}
		videoID := parts[1]
		raw = append(raw, provider.RawEpisode{
			ProviderEpisodeID: videoID,
			Title:             fmt.Sprintf("第%d集", idx),
			URL:               fmt.Sprintf("https://www.le.com/ptv/vplay/%s.html", videoID),
		})
		indexByID[videoID] = idx
	}

	episodes := filter.FilterAndRenumber(raw, a.filterConfig(ctx))
	if targetIndex == nil {
		return episodes, nil
	}
	for _, ep := range episodes {
		if origIdx, ok := indexByID[ep.ProviderEpisodeID]; ok && origIdx == *targetIndex {
			return []provider.EpisodeInfo{ep}, nil
		}
	}
	return nil, nil
}
