// SPDX-License-Identifier: AGPL-3.0-or-later

package bilibili

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/quzard/misaka-danmu-server/internal/provider"
)

var htmlTagPattern = regexp.MustCompile(`<[^>]+>`)

type biliSearchResult struct {
	Code int `json:"code"`
	Data struct {
		Result []struct {
			MediaID       *int64  `json:"media_id"`
			SeasonID      *int64  `json:"season_id"`
			Title         string  `json:"title"`
			Pubtime       int64   `json:"pubtime"`
			Pubdate       any     `json:"pubdate"`
			SeasonType    string  `json:"season_type_name"`
			EpSize        int     `json:"ep_size"`
			Bvid          string  `json:"bvid"`
			Cover         string  `json:"cover"`
		} `json:"result"`
	} `json:"data"`
	Message string `json:"message"`
}

// Search implements provider.Adapter by querying bilibili's WBI-signed
// search/type endpoint for both bangumi (PGC) and film (media_ft) result
// types concurrently, deduplicating by mediaId.
func (a *Adapter) Search(ctx context.Context, keyword string, hint *provider.EpisodeHint) ([]provider.SearchInfo, error) {
	mixinKey := a.wbiMixinKey(ctx)

	searchTypes := []string{"media_bangumi", "media_ft"}
	results := make([][]provider.SearchInfo, len(searchTypes))

	var wg sync.WaitGroup
	for i, st := range searchTypes {
		wg.Add(1)
		go func(i int, searchType string) {
			defer wg.Done()
			r, err := a.searchByType(ctx, keyword, searchType, mixinKey, hint)
			if err == nil {
				results[i] = r
			}
		}(i, st)
	}
	wg.Wait()

	seen := map[string]provider.SearchInfo{}
	for _, r := range results {
		for _, item := range r {
			seen[item.MediaID] = item
		}
	}

	out := make([]provider.SearchInfo, 0, len(seen))
	for _, v := range seen {
		out = append(out, v)
	}
	return out, nil
}

func (a *Adapter) searchByType(ctx context.Context, keyword, searchType, mixinKey string, hint *provider.EpisodeHint) ([]provider.SearchInfo, error) {
	params := map[string]string{"keyword": keyword, "search_type": searchType}
	query := wbiSign(params, mixinKey)
	reqURL := "https://api.bilibili.com/x/web-interface/wbi/search/type?" + query

	resp, err := a.get(ctx, reqURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var parsed biliSearchResult
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("bilibili: decode search response: %w", err)
	}
	if parsed.Code != 0 {
		return nil, nil
	}

	out := make([]provider.SearchInfo, 0, len(parsed.Data.Result))
	for _, item := range parsed.Data.Result {
		var mediaID string
		switch {
		case item.SeasonID != nil:
			mediaID = fmt.Sprintf("ss%d", *item.SeasonID)
		case item.Bvid != "":
			mediaID = "bv" + item.Bvid
		default:
			continue
		}

		mediaType := "tv_series"
		episodeCount := item.EpSize
		if item.SeasonType == "电影" {
			mediaType = "movie"
			episodeCount = 1
		}

		year := parseBiliYear(item.Pubdate, item.Pubtime)
		title := strings.ReplaceAll(htmlTagPattern.ReplaceAllString(html.UnescapeString(item.Title), ""), ":", "：")

		info := provider.SearchInfo{
			ProviderName: providerName,
			MediaID:      mediaID,
			Title:        title,
			Type:         mediaType,
			ImageURL:     item.Cover,
			EpisodeCount: episodeCount,
			Year:         year,
		}
		if hint != nil {
			info.CurrentEpisodeIndex = hint.Episode
		}
		if hint != nil && hint.Season != nil {
			info.Season = *hint.Season
		}
		out = append(out, info)
	}
	return out, nil
}

func parseBiliYear(pubdate any, pubtime int64) *int {
	switch v := pubdate.(type) {
	case float64:
		y := time.Unix(int64(v), 0).UTC().Year()
		return &y
	case string:
		if len(v) >= 4 {
			if y, err := strconv.Atoi(v[:4]); err == nil {
				return &y
			}
		}
	}
	if pubtime > 0 {
		y := time.Unix(pubtime, 0).UTC().Year()
		return &y
	}
	return nil
}

// GetInfoFromURL implements provider.Adapter for both PGC (season/ep) and
// UGC (video/BV...) bilibili URLs.
func (a *Adapter) GetInfoFromURL(ctx context.Context, rawURL string) (*provider.SearchInfo, error) {
	if m := seasonIDPattern.FindStringSubmatch(rawURL); m != nil {
		return a.infoFromSeasonID(ctx, m[1])
	}
	if m := epIDPattern.FindStringSubmatch(rawURL); m != nil {
		seasonID, err := a.seasonIDFromEpisodePage(ctx, rawURL)
		if err != nil || seasonID == "" {
			return nil, err
		}
		return a.infoFromSeasonID(ctx, seasonID)
	}
	if m := bvidPattern.FindStringSubmatch(rawURL); m != nil {
		return a.infoFromBvid(ctx, m[1])
	}
	return nil, nil
}

func (a *Adapter) infoFromSeasonID(ctx context.Context, seasonID string) (*provider.SearchInfo, error) {
	resp, err := a.get(ctx, "https://api.bilibili.com/pgc/view/web/season?season_id="+seasonID)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var parsed struct {
		Code   int `json:"code"`
		Result struct {
			Title string `json:"title"`
			Cover string `json:"cover"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil || parsed.Code != 0 {
		return nil, err
	}
	return &provider.SearchInfo{
		ProviderName: providerName,
		MediaID:      "ss" + seasonID,
		Title:        strings.ReplaceAll(parsed.Result.Title, ":", "："),
		Type:         "tv_series",
		ImageURL:     parsed.Result.Cover,
	}, nil
}

func (a *Adapter) infoFromBvid(ctx context.Context, bvid string) (*provider.SearchInfo, error) {
	resp, err := a.get(ctx, "https://api.bilibili.com/x/web-interface/view?bvid="+bvid)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var parsed struct {
		Code int `json:"code"`
		Data struct {
			Title string `json:"title"`
			Pic   string `json:"pic"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil || parsed.Code != 0 {
		return nil, err
	}
	return &provider.SearchInfo{
		ProviderName: providerName,
		MediaID:      "bv" + bvid,
		Title:        strings.ReplaceAll(parsed.Data.Title, ":", "："),
		Type:         "movie",
		ImageURL:     parsed.Data.Pic,
		EpisodeCount: 1,
	}, nil
}

func (a *Adapter) seasonIDFromEpisodePage(ctx context.Context, rawURL string) (string, error) {
	resp, err := a.get(ctx, rawURL)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return "", err
	}
	m := seasonIDInPagePattern.FindSubmatch(body)
	if m == nil {
		return "", nil
	}
	return string(m[1]), nil
}

// GetIDFromURL implements provider.Adapter, returning the same "aid,cid"
// composite that GetEpisodes produces, since that's the only stable ID
// bilibili's comment-fetching endpoints accept.
func (a *Adapter) GetIDFromURL(ctx context.Context, rawURL string) (string, error) {
	info, err := a.GetInfoFromURL(ctx, rawURL)
	if err != nil || info == nil {
		return "", err
	}
	return info.MediaID, nil
}

var (
	seasonIDPattern       = regexp.MustCompile(`season/ss(\d+)`)
	epIDPattern           = regexp.MustCompile(`play/ep(\d+)`)
	bvidPattern           = regexp.MustCompile(`video/(BV[a-zA-Z0-9]+)`)
	seasonIDInPagePattern = regexp.MustCompile(`"season_id":(\d+)`)
)
