// SPDX-License-Identifier: AGPL-3.0-or-later

package mgtv

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/quzard/misaka-danmu-server/internal/provider"
)

type mgtvSearchContent struct {
	Type string            `json:"type"`
	Data []json.RawMessage `json:"data"`
}

type mgtvSearchData struct {
	Contents []mgtvSearchContent `json:"contents"`
}

type mgtvSearchResult struct {
	Data *mgtvSearchData `json:"data"`
}

type mgtvSearchItem struct {
	Title      string   `json:"title"`
	URL        string   `json:"url"`
	Desc       []string `json:"desc"`
	Source     string   `json:"source"`
	Img        string   `json:"img"`
	VideoCount int      `json:"videoCount"`
}

var (
	mgtvIDFromURL = regexp.MustCompile(`/b/(\d+)/`)
	mgtvYearInDesc = regexp.MustCompile(`[12][890][0-9][0-9]`)
	mgtvTagStrip   = regexp.MustCompile(`<[^>]+>`)
)

func (it mgtvSearchItem) id() string {
	m := mgtvIDFromURL.FindStringSubmatch(it.URL)
	if m == nil {
		return ""
	}
	return m[1]
}

func (it mgtvSearchItem) typeName() string {
	if len(it.Desc) == 0 || it.Desc[0] == "" {
		return ""
	}
	part := strings.Split(it.Desc[0], "/")[0]
	return strings.TrimSpace(strings.ReplaceAll(part, "类型:", ""))
}

func (it mgtvSearchItem) year() *int {
	if len(it.Desc) == 0 {
		return nil
	}
	m := mgtvYearInDesc.FindString(it.Desc[0])
	if m == "" {
		return nil
	}
	y, err := parseIntSafe(m)
	if err != nil {
		return nil
	}
	return &y
}

func parseIntSafe(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(s, "%d", &n)
	return n, err
}

// Search implements provider.Adapter. Only the "media" content block of
// mobileso.bz.mgtv.com's search response carries playable titles; other
// blocks (banners, actor cards) are skipped. Results are further
// restricted to source=="imgo" (mgtv's own catalog, excluding aggregated
// third-party results) as the original does.
func (a *Adapter) Search(ctx context.Context, keyword string, hint *provider.EpisodeHint) ([]provider.SearchInfo, error) {
	q := url.Values{}
	q.Set("q", keyword)
	q.Set("pc", "30")
	q.Set("pn", "1")
	q.Set("sort", "-99")
	q.Set("ty", "0")
	q.Set("du", "0")
	q.Set("pt", "0")
	q.Set("corr", "1")
	q.Set("abroad", "0")

	resp, err := a.get(ctx, "https://mobileso.bz.mgtv.com/msite/search/v2?"+q.Encode())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var parsed mgtvSearchResult
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("mgtv: decode search response: %w", err)
	}
	if parsed.Data == nil {
		return nil, nil
	}

	var out []provider.SearchInfo
	for _, content := range parsed.Data.Contents {
		if content.Type != "media" {
			continue
		}
		for _, raw := range content.Data {
			var item mgtvSearchItem
			if err := json.Unmarshal(raw, &item); err != nil {
				continue
			}
			item.Title = mgtvTagStrip.ReplaceAllString(item.Title, "")
			if item.Source != "imgo" {
				continue
			}
			if junkTitlePattern.MatchString(item.Title) {
				continue
			}
			mediaID := item.id()
			if mediaID == "" {
				continue
			}

			mediaType := "tv_series"
			if item.typeName() == "电影" {
				mediaType = "movie"
			}

			info := provider.SearchInfo{
				ProviderName: providerName,
				MediaID:      mediaID,
				Title:        strings.ReplaceAll(item.Title, ":", "："),
				Type:         mediaType,
				Year:         item.year(),
				ImageURL:     item.Img,
			}
			if hint != nil {
				info.CurrentEpisodeIndex = hint.Episode
				if hint.Season != nil {
					info.Season = *hint.Season
				}
			}
			out = append(out, info)
		}
	}
	return out, nil
}

var mgtvURLPattern = regexp.MustCompile(`/b/(\d+)/(\d+)\.html`)

// GetIDFromURL implements provider.Adapter, returning "cid,vid" extracted
// from a mgtv.com/b/{cid}/{vid}.html page URL.
func (a *Adapter) GetIDFromURL(ctx context.Context, rawURL string) (string, error) {
	m := mgtvURLPattern.FindStringSubmatch(rawURL)
	if m == nil {
		return "", nil
	}
	return m[1] + "," + m[2], nil
}

// GetInfoFromURL implements provider.Adapter by resolving the collection
// id from the URL and cross-referencing it against a title-less search
// (mgtv's episode page HTML doesn't carry reliable og:title metadata for
// every show, so the original likewise hands this off to search).
func (a *Adapter) GetInfoFromURL(ctx context.Context, rawURL string) (*provider.SearchInfo, error) {
	m := mgtvURLPattern.FindStringSubmatch(rawURL)
	if m == nil {
		return nil, nil
	}
	cid := m[1]

	episodes, err := a.GetEpisodes(ctx, cid, nil, "")
	if err != nil || len(episodes) == 0 {
		return &provider.SearchInfo{ProviderName: providerName, MediaID: cid, Title: "未知标题", Type: "tv_series"}, nil
	}
	return &provider.SearchInfo{
		ProviderName: providerName,
		MediaID:      cid,
		Title:        strings.TrimSpace(strings.Split(episodes[0].Title, " ")[0]),
		Type:         "tv_series",
		EpisodeCount: len(episodes),
	}, nil
}
