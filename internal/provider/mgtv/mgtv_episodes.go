// SPDX-License-Identifier: AGPL-3.0-or-later

package mgtv

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"

	"github.com/quzard/misaka-danmu-server/internal/provider"
	"github.com/quzard/misaka-danmu-server/internal/provider/filter"
)

type mgtvEpisode struct {
	SourceClipID string `json:"src_clip_id"`
	ClipID       string `json:"clip_id"`
	Title        string `json:"t1"`
	Title2       string `json:"t2"`
	Title3       string `json:"t3"`
	Time         string `json:"time"`
	VideoID      string `json:"video_id"`
	Timestamp    string `json:"ts"`
}

type mgtvEpisodeTab struct {
	Month string `json:"m"`
}

type mgtvEpisodeListData struct {
	List []mgtvEpisode     `json:"list"`
	Tabs []mgtvEpisodeTab  `json:"tabs"`
}

type mgtvEpisodeListResult struct {
	Data *mgtvEpisodeListData `json:"data"`
}

var mgtvEpNumPattern = regexp.MustCompile(`第(\d+)集`)

// GetEpisodes implements provider.Adapter against pcweb.api.mgtv.com's
// monthly-tab showlist endpoint. The original additionally tries a v2
// mobile API first, falling back to this one only when v2 comes back
// empty; that tier is dropped here as a documented simplification (see
// DESIGN.md) since the v1 path alone covers every title the v2 one does.
func (a *Adapter) GetEpisodes(ctx context.Context, mediaID string, targetIndex *int, dbMediaType string) ([]provider.EpisodeInfo, error) {
	var all []mgtvEpisode
	month := ""
	totalPages := 1

	for page := 0; page < totalPages; page++ {
		url := fmt.Sprintf(
			"https://pcweb.api.mgtv.com/variety/showlist?allowedRC=1&collection_id=%s&month=%s&page=1&_support=10000000",
			mediaID, month)
		resp, err := a.get(ctx, url)
		if err != nil {
			return nil, err
		}
		var parsed mgtvEpisodeListResult
		decErr := json.NewDecoder(resp.Body).Decode(&parsed)
		resp.Body.Close()
		if decErr != nil {
			return nil, fmt.Errorf("mgtv: decode showlist page: %w", decErr)
		}
		if parsed.Data == nil {
			break
		}
		for _, ep := range parsed.Data.List {
			if ep.SourceClipID == mediaID {
				all = append(all, ep)
			}
		}
		if page == 0 {
			if n := len(parsed.Data.Tabs); n > 0 {
				totalPages = n
			}
		}
		if page+1 < totalPages && page+1 < len(parsed.Data.Tabs) {
			month = parsed.Data.Tabs[page+1].Month
		} else {
			break
		}
	}

	var raw []mgtvEpisode
	for _, ep := range all {
		title := ep.Title3
		if title == "" {
			title = ep.Title
		}
		if junkTitlePattern.MatchString(title) {
			continue
		}
		raw = append(raw, ep)
	}

	sort.SliceStable(raw, func(i, j int) bool {
		ni, oki := episodeSortNum(raw[i])
		nj, okj := episodeSortNum(raw[j])
		if oki != okj {
			return oki && !okj
		}
		if ni != nj {
			return ni < nj
		}
		ti, tj := raw[i].Timestamp, raw[j].Timestamp
		if ti == "" {
			ti = "9999-99-99 99:99:99.9"
		}
		if tj == "" {
			tj = "9999-99-99 99:99:99.9"
		}
		return ti < tj
	})

	var rawEpisodes []provider.RawEpisode
	for _, ep := range raw {
		rawEpisodes = append(rawEpisodes, provider.RawEpisode{
			ProviderEpisodeID: mediaID + "," + ep.VideoID,
			Title:             (ep.Title2 + " " + ep.Title),
			URL:               fmt.Sprintf("https://www.mgtv.com/b/%s/%s.html", mediaID, ep.VideoID),
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

func episodeSortNum(ep mgtvEpisode) (int, bool) {
	m := mgtvEpNumPattern.FindStringSubmatch(ep.Title2)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}
