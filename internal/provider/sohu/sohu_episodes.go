// SPDX-License-Identifier: AGPL-3.0-or-later

package sohu

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/quzard/misaka-danmu-server/internal/provider"
	"github.com/quzard/misaka-danmu-server/internal/provider/filter"
)

type sohuPlaylistVideo struct {
	Vid      int64  `json:"vid"`
	Name     string `json:"name"`
	VideoName string `json:"video_name"`
	PageURL  string `json:"pageUrl"`
	URLHTML5 string `json:"url_html5"`
}

type sohuPlaylistResponse struct {
	Videos []sohuPlaylistVideo `json:"videos"`
}

// GetEpisodes implements provider.Adapter. If Search already cached a
// video list for this media id it is used directly; otherwise the
// playlist API is queried, stripping the "jsonp(...)" wrapper some
// responses arrive in.
func (a *Adapter) GetEpisodes(ctx context.Context, mediaID string, targetIndex *int, dbMediaType string) ([]provider.EpisodeInfo, error) {
	var videos []sohuPlaylistVideo

	if cached, ok := episodeCache.m[mediaID]; ok {
		for _, v := range cached {
			videos = append(videos, sohuPlaylistVideo{Vid: v.Vid, VideoName: v.VideoName, URLHTML5: v.URLHTML5})
		}
	} else {
		url := fmt.Sprintf("https://pl.hd.sohu.com/videolist?playlistid=%s&api_key=%s", mediaID, apiKey)
		resp, err := a.get(ctx, url)
		if err != nil {
			return nil, err
		}
		body, err := readAll(resp)
		if err != nil {
			return nil, err
		}

		jsonText := body
		if strings.HasPrefix(body, "jsonp") {
			start := strings.Index(body, "(")
			end := strings.LastIndex(body, ")")
			if start < 0 || end <= start {
				return nil, fmt.Errorf("sohu: malformed jsonp playlist response")
			}
			jsonText = body[start+1 : end]
		}

		var parsed sohuPlaylistResponse
		if err := json.Unmarshal([]byte(jsonText), &parsed); err != nil {
			return nil, fmt.Errorf("sohu: decode playlist response: %w", err)
		}
		videos = parsed.Videos
	}

	if len(videos) == 0 {
		return nil, nil
	}

	var raw []provider.RawEpisode
	for i, v := range videos {
		title := v.VideoName
		if title == "" {
			title = v.Name
		}
		if title == "" {
			title = fmt.Sprintf("第%d集", i+1)
		}
		url := v.URLHTML5
		if url == "" {
			url = v.PageURL
		}
		url = strings.Replace(url, "http://", "https://", 1)

		raw = append(raw, provider.RawEpisode{
			ProviderEpisodeID: strconv.FormatInt(v.Vid, 10) + ":" + mediaID,
			Title:             title,
			URL:               url,
		})
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
