// SPDX-License-Identifier: AGPL-3.0-or-later

package sohu

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/quzard/misaka-danmu-server/internal/provider"
)

type sohuMetaEntry struct {
	Txt string `json:"txt"`
}

type sohuVideo struct {
	Vid       int64  `json:"vid"`
	VideoName string `json:"video_name"`
	URLHTML5  string `json:"url_html5"`
}

type sohuSearchItem struct {
	DataType       int             `json:"data_type"`
	Aid            int64           `json:"aid"`
	AlbumName      string          `json:"album_name"`
	Meta           []sohuMetaEntry `json:"meta"`
	Year           *int            `json:"year"`
	TotalVideoCount int            `json:"total_video_count"`
	VerBigPic      string          `json:"ver_big_pic"`
	PCURL          string          `json:"pc_url"`
	Videos         []sohuVideo     `json:"videos"`
}

type sohuSearchData struct {
	Items []sohuSearchItem `json:"items"`
}

type sohuSearchResult struct {
	Status int             `json:"status"`
	Data   *sohuSearchData `json:"data"`
}

// episodeCache holds per-media episode listings the search response
// sometimes embeds inline, mirroring the original's in-process cache;
// GetEpisodes consults it before falling back to the playlist API.
var episodeCache = struct {
	m map[string][]sohuVideo
}{m: make(map[string][]sohuVideo)}

// Search implements provider.Adapter. Only data_type==257 (album/series)
// results are kept; category text is mapped to movie/tv_series via
// mapCategoryToType, and unmapped categories are dropped.
func (a *Adapter) Search(ctx context.Context, keyword string, hint *provider.EpisodeHint) ([]provider.SearchInfo, error) {
	q := url.Values{}
	q.Set("key", keyword)
	q.Set("type", "1")
	q.Set("page", "1")
	q.Set("page_size", "20")
	q.Set("tabsChosen", "0")
	q.Set("poster", "4")
	q.Set("tuple", "6")
	q.Set("extSource", "1")
	q.Set("show_star_detail", "3")
	q.Set("pay", "1")
	q.Set("hl", "3")
	q.Set("uid", fmt.Sprintf("%d", time.Now().UnixMilli()))
	q.Set("plat", "-1")
	q.Set("ssl", "0")

	resp, err := a.get(ctx, "https://m.so.tv.sohu.com/search/pc/keyword?"+q.Encode())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var parsed sohuSearchResult
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("sohu: decode search response: %w", err)
	}
	if parsed.Data == nil {
		return nil, nil
	}

	var out []provider.SearchInfo
	for _, item := range parsed.Data.Items {
		if item.DataType != 257 || item.Aid == 0 || item.AlbumName == "" {
			continue
		}
		title := strings.NewReplacer("<<<", "", ">>>", "").Replace(item.AlbumName)

		var categoryName string
		if len(item.Meta) >= 2 {
			parts := strings.Split(item.Meta[1].Txt, "|")
			if len(parts) > 0 {
				categoryName = strings.TrimSpace(parts[0])
			}
		}
		mediaType := mapCategoryToType(categoryName)
		if mediaType == "" {
			continue
		}

		mediaID := strconv.FormatInt(item.Aid, 10)
		if len(item.Videos) > 0 {
			episodeCache.m[mediaID] = item.Videos
		}

		info := provider.SearchInfo{
			ProviderName: providerName,
			MediaID:      mediaID,
			Title:        title,
			Type:         mediaType,
			Year:         item.Year,
			EpisodeCount: item.TotalVideoCount,
			ImageURL:     item.VerBigPic,
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

func mapCategoryToType(categoryName string) string {
	if categoryName == "" {
		return ""
	}
	lower := strings.ToLower(categoryName)
	if strings.Contains(lower, "电影") || strings.Contains(lower, "movie") {
		return "movie"
	}
	for _, kw := range []string{"电视剧", "动漫", "综艺", "纪录片", "tv", "anime", "variety"} {
		if strings.Contains(lower, kw) {
			return "tv_series"
		}
	}
	return ""
}

var (
	sohuPlaylistIDPattern = regexp.MustCompile(`var\s+playlistId\s*=\s*["']?(\d+)["']?`)
	sohuTitlePattern      = regexp.MustCompile(`<title>([^<]+)</title>`)
	sohuShowURLPattern    = regexp.MustCompile(`tv\.sohu\.com/s\d+/([^/]+)`)
	sohuItemURLPattern    = regexp.MustCompile(`tv\.sohu\.com/item/([^/]+)\.html`)
)

// GetInfoFromURL implements provider.Adapter by scraping the playlist id
// and page title embedded in either a show-detail or an item URL's HTML.
func (a *Adapter) GetInfoFromURL(ctx context.Context, rawURL string) (*provider.SearchInfo, error) {
	if !sohuShowURLPattern.MatchString(rawURL) && !sohuItemURLPattern.MatchString(rawURL) {
		return nil, nil
	}

	resp, err := a.get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	body, err := readAll(resp)
	if err != nil {
		return nil, err
	}

	m := sohuPlaylistIDPattern.FindStringSubmatch(body)
	if m == nil {
		return nil, nil
	}
	aid := m[1]

	title := ""
	if tm := sohuTitlePattern.FindStringSubmatch(body); tm != nil {
		title = strings.TrimSpace(strings.Split(tm[1], "_")[0])
	}

	return &provider.SearchInfo{
		ProviderName: providerName,
		MediaID:      aid,
		Title:        title,
		Type:         "tv_series",
	}, nil
}

// GetIDFromURL implements provider.Adapter, scraping the numeric
// playlistId embedded in the page's inline script.
func (a *Adapter) GetIDFromURL(ctx context.Context, rawURL string) (string, error) {
	resp, err := a.get(ctx, rawURL)
	if err != nil {
		return "", err
	}
	body, err := readAll(resp)
	if err != nil {
		return "", err
	}
	m := sohuPlaylistIDPattern.FindStringSubmatch(body)
	if m == nil {
		return "", nil
	}
	return m[1], nil
}
