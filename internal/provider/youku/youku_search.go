// SPDX-License-Identifier: AGPL-3.0-or-later

package youku

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/quzard/misaka-danmu-server/internal/provider"
)

type youkuTitleDTO struct {
	DisplayName string `json:"displayName"`
}

type youkuPosterDTO struct {
	VThumbURL string `json:"vThumbUrl"`
}

type youkuCommonData struct {
	IsYouku      int             `json:"isYouku"`
	HasYouku     int             `json:"hasYouku"`
	TitleDTO     *youkuTitleDTO  `json:"titleDTO"`
	PosterDTO    *youkuPosterDTO `json:"posterDTO"`
	ShowID       string          `json:"showId"`
	Feature      string          `json:"feature"`
	EpisodeTotal int             `json:"episodeTotal"`
}

type youkuPageComponent struct {
	CommonData *youkuCommonData `json:"commonData"`
}

type youkuSearchResult struct {
	PageComponentList []youkuPageComponent `json:"pageComponentList"`
}

var (
	youkuYearPattern = regexp.MustCompile(`(19|20)\d{2}`)
	youkuJunkTitle   = []string{"中配版", "抢先看", "非正片", "解读", "揭秘", "赏析", "《"}
)

// Search implements provider.Adapter via youku's open search API. The
// cache/alias layer described by the original's provider-local cache
// wrapper is handled centrally by internal/search (C6), not repeated here.
func (a *Adapter) Search(ctx context.Context, keyword string, hint *provider.EpisodeHint) ([]provider.SearchInfo, error) {
	q := url.Values{}
	q.Set("keyword", keyword)
	q.Set("userAgent", userAgent)
	q.Set("site", "1")
	q.Set("categories", "0")
	q.Set("ftype", "0")
	q.Set("ob", "0")
	q.Set("pg", "1")

	resp, err := a.get(ctx, "https://search.youku.com/api/search?"+q.Encode())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var parsed youkuSearchResult
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("youku: decode search response: %w", err)
	}

	var out []provider.SearchInfo
	for _, comp := range parsed.PageComponentList {
		cd := comp.CommonData
		if cd == nil || cd.TitleDTO == nil || (cd.IsYouku != 1 && cd.HasYouku != 1) {
			continue
		}
		title := cd.TitleDTO.DisplayName
		if containsAny(title, youkuJunkTitle) {
			continue
		}

		var year *int
		if m := youkuYearPattern.FindString(cd.Feature); m != "" {
			if y, convErr := parseIntSafe(m); convErr == nil {
				year = &y
			}
		}

		cleanedTitle := strings.ReplaceAll(strings.TrimSpace(title), ":", "：")
		mediaType := "tv_series"
		if strings.Contains(cd.Feature, "电影") {
			mediaType = "movie"
		}

		imageURL := ""
		if cd.PosterDTO != nil {
			imageURL = cd.PosterDTO.VThumbURL
		}

		info := provider.SearchInfo{
			ProviderName: providerName,
			MediaID:      cd.ShowID,
			Title:        cleanedTitle,
			Type:         mediaType,
			EpisodeCount: cd.EpisodeTotal,
			ImageURL:     imageURL,
			Year:         year,
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

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func parseIntSafe(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(s, "%d", &n)
	return n, err
}

var (
	youkuShowIDFromHTML = regexp.MustCompile(`showid:"(\d+)"`)
	youkuTitleFromHTML  = regexp.MustCompile(`<title>(.*?)</title>`)
	youkuImageFromHTML  = regexp.MustCompile(`<meta\s+property="og:image"\s+content="(.*?)"`)
	youkuVidFromURL     = regexp.MustCompile(`id_([a-zA-Z0-9=]+)`)
)

// GetInfoFromURL implements provider.Adapter by scraping the show_id,
// title and cover image embedded in a video page's HTML.
func (a *Adapter) GetInfoFromURL(ctx context.Context, rawURL string) (*provider.SearchInfo, error) {
	resp, err := a.get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := readAll(resp)
	if err != nil {
		return nil, err
	}

	m := youkuShowIDFromHTML.FindStringSubmatch(body)
	if m == nil {
		return nil, nil
	}
	showID := m[1]

	title := "未知标题"
	if tm := youkuTitleFromHTML.FindStringSubmatch(body); tm != nil {
		title = strings.TrimSpace(strings.Split(tm[1], "-")[0])
	}
	cleanedTitle := strings.ReplaceAll(title, ":", "：")

	imageURL := ""
	if im := youkuImageFromHTML.FindStringSubmatch(body); im != nil {
		imageURL = im[1]
	}

	results, err := a.Search(ctx, cleanedTitle, nil)
	if err != nil {
		return nil, err
	}
	for _, r := range results {
		if r.MediaID == showID {
			return &r, nil
		}
	}

	return &provider.SearchInfo{
		ProviderName: providerName,
		MediaID:      showID,
		Title:        cleanedTitle,
		Type:         "tv_series",
		ImageURL:     imageURL,
	}, nil
}

// GetIDFromURL implements provider.Adapter, extracting the vid from a
// v.youku.com/v_show/id_XXXX.html-shaped URL.
func (a *Adapter) GetIDFromURL(ctx context.Context, rawURL string) (string, error) {
	m := youkuVidFromURL.FindStringSubmatch(rawURL)
	if m == nil {
		return "", nil
	}
	return m[1], nil
}
