// SPDX-License-Identifier: AGPL-3.0-or-later

package iqiyi

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/quzard/misaka-danmu-server/internal/provider"
)

var htmlTagPattern = regexp.MustCompile(`<[^>]+>`)

type iqiyiSearchResponse struct {
	Data struct {
		Docinfos []struct {
			Score         float64 `json:"score"`
			AlbumDocInfo  struct {
				AlbumLink      string `json:"albumLink"`
				SiteID         string `json:"siteId"`
				VideoDocType   int    `json:"videoDocType"`
				AlbumTitle     string `json:"albumTitle"`
				Channel        string `json:"channel"`
				AlbumImg       string `json:"albumImg"`
				ItemTotalNum   int    `json:"itemTotalNumber"`
				Year           *int   `json:"year"`
				Videoinfos     []struct {
					ItemLink string `json:"itemLink"`
				} `json:"videoinfos"`
			} `json:"albumDocInfo"`
		} `json:"docinfos"`
	} `json:"data"`
}

var linkIDPattern = regexp.MustCompile(`v_(\w+?)\.html`)

// Search implements provider.Adapter via iqiyi's mobile search API.
func (a *Adapter) Search(ctx context.Context, keyword string, hint *provider.EpisodeHint) ([]provider.SearchInfo, error) {
	reqURL := fmt.Sprintf("https://search.video.iqiyi.com/o?if=html5&key=%s&pageNum=1&pageSize=20", keyword)
	resp, err := a.get(ctx, reqURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var parsed iqiyiSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("iqiyi: decode search response: %w", err)
	}

	out := make([]provider.SearchInfo, 0, len(parsed.Data.Docinfos))
	for _, doc := range parsed.Data.Docinfos {
		if doc.Score < 0.7 {
			continue
		}
		album := doc.AlbumDocInfo
		if !strings.Contains(album.AlbumLink, "iqiyi.com") || album.SiteID != "iqiyi" || album.VideoDocType != 1 {
			continue
		}
		if strings.Contains(album.Channel, "原创") || strings.Contains(album.Channel, "教育") || strings.Contains(album.Channel, "纪录片") {
			continue
		}

		linkTarget := album.AlbumLink
		if len(album.Videoinfos) > 0 && album.Videoinfos[0].ItemLink != "" {
			linkTarget = album.Videoinfos[0].ItemLink
		}
		m := linkIDPattern.FindStringSubmatch(linkTarget)
		if m == nil {
			continue
		}
		linkID := m[1]

		channelName := album.Channel
		if idx := strings.Index(channelName, ","); idx >= 0 {
			channelName = channelName[:idx]
		}
		mediaType := "tv_series"
		if channelName == "电影" {
			mediaType = "movie"
		}

		title := strings.ReplaceAll(htmlTagPattern.ReplaceAllString(album.AlbumTitle, ""), ":", "：")
		info := provider.SearchInfo{
			ProviderName: providerName,
			MediaID:      linkID,
			Title:        title,
			Type:         mediaType,
			Year:         album.Year,
			ImageURL:     album.AlbumImg,
			EpisodeCount: album.ItemTotalNum,
		}
		if hint != nil {
			info.CurrentEpisodeIndex = hint.Episode
			if hint.Season != nil {
				info.Season = *hint.Season
			}
		}
		out = append(out, info)
	}
	return out, nil
}

// GetInfoFromURL implements provider.Adapter.
func (a *Adapter) GetInfoFromURL(ctx context.Context, rawURL string) (*provider.SearchInfo, error) {
	m := linkIDPattern.FindStringSubmatch(rawURL)
	if m == nil {
		return nil, nil
	}
	linkID := m[1]
	info, err := a.legacyBaseInfo(ctx, linkID)
	if err != nil || info == nil {
		return nil, err
	}
	mediaType := "tv_series"
	if info.ChannelName == "电影" {
		mediaType = "movie"
	}
	return &provider.SearchInfo{
		ProviderName: providerName,
		MediaID:      linkID,
		Title:        info.VideoName,
		Type:         mediaType,
	}, nil
}

// GetIDFromURL implements provider.Adapter, resolving a URL straight to
// the tvId GetComments needs.
func (a *Adapter) GetIDFromURL(ctx context.Context, rawURL string) (string, error) {
	m := linkIDPattern.FindStringSubmatch(rawURL)
	if m == nil {
		return "", nil
	}
	tvID, err := a.tvIDFromLinkID(ctx, m[1])
	if err != nil {
		return "", err
	}
	return tvID, nil
}

type iqiyiDecodeResponse struct {
	Data struct {
		VID int64 `json:"vid"`
	} `json:"data"`
}

// tvIDFromLinkID decodes a link_id (the video page's URL slug) into a
// numeric tvId via iqiyi's decode API; only the mainland endpoint is
// used here (see DESIGN.md for the international-fallback simplification).
func (a *Adapter) tvIDFromLinkID(ctx context.Context, linkID string) (string, error) {
	reqURL := fmt.Sprintf("https://pcw-api.iqiyi.com/api/decode/%s?platformId=3&modeCode=intl&langCode=sg", linkID)
	resp, err := a.get(ctx, reqURL)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var parsed iqiyiDecodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("iqiyi: decode link_id response: %w", err)
	}
	if parsed.Data.VID == 0 {
		return "", nil
	}
	return fmt.Sprintf("%d", parsed.Data.VID), nil
}

type iqiyiLegacyVideoInfo struct {
	AlbumID     int64  `json:"albumId"`
	TvID        *int64 `json:"tvId"`
	VideoName   string `json:"name"`
	VideoURL    string `json:"playUrl"`
	ChannelName string `json:"channelName"`
}

func (a *Adapter) legacyBaseInfo(ctx context.Context, linkID string) (*iqiyiLegacyVideoInfo, error) {
	tvID, err := a.tvIDFromLinkID(ctx, linkID)
	if err != nil || tvID == "" {
		return nil, err
	}
	resp, err := a.get(ctx, "https://pcw-api.iqiyi.com/video/video/baseinfo/"+tvID)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var parsed struct {
		Code string                `json:"code"`
		Data *iqiyiLegacyVideoInfo `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("iqiyi: decode baseinfo response: %w", err)
	}
	if parsed.Code != "A00000" || parsed.Data == nil {
		return nil, nil
	}
	return parsed.Data, nil
}
