// SPDX-License-Identifier: AGPL-3.0-or-later

package le

import (
	"context"
	"encoding/json"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/quzard/misaka-danmu-server/internal/provider"
)

var (
	leDataInfoBlockPattern = regexp.MustCompile(`<div class="So-detail[^"]*"[^>]*data-info=["']({[^"']+})["']\s*>`)
	leDataInfoQuotePattern = regexp.MustCompile(`data-info=['"]({[^'"]+})['"]`)
	leTitleInBlockPattern  = regexp.MustCompile(`(?s)<h1>.*?title="([^"]+)"`)
	leAnchorTitlePattern   = regexp.MustCompile(`<a[^>]*title="([^"]+)"[^>]*class="j-baidu-a"`)
	leImagePattern         = regexp.MustCompile(`<img[^>]*(?:src|data-src|alt)="([^"]+)"`)
	leYearPattern1         = regexp.MustCompile(`年份：</b><b><a[^>]*>(\d{4})</a>`)
	leYearPattern2         = regexp.MustCompile(`上映时间：</b><b><a[^>]*>(\d{4})</a>`)
	lePageTitlePattern     = regexp.MustCompile(`<title>([^<]+)</title>`)
	leMediaIDFromURL       = regexp.MustCompile(`le\.com/(?:tv|comic|playlet|movie)/(\d+)\.html`)
	leVideoIDFromURL       = regexp.MustCompile(`le\.com/ptv/vplay/(\d+)\.html`)
)

type leDataInfo struct {
	PID   string `json:"pid"`
	Type  string `json:"type"`
	Total string `json:"total"`
}

func mapLeType(typeStr string) string {
	switch typeStr {
	case "movie":
		return "movie"
	default:
		return "tv_series"
	}
}

func normalizeLeImage(raw string) string {
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(raw, "http") {
		return raw
	}
	return "https:" + raw
}

// Search implements provider.Adapter by scraping so.le.com's result page:
// each hit is a <div class="So-detail...data-info='{...}'"> block whose
// JSON payload carries pid/type/total, with title/image/year scraped from
// the surrounding HTML fragment.
func (a *Adapter) Search(ctx context.Context, keyword string, hint *provider.EpisodeHint) ([]provider.SearchInfo, error) {
	q := url.Values{}
	q.Set("wd", keyword)
	q.Set("from", "pc")
	q.Set("ref", "click")
	q.Set("click_area", "search_button")
	q.Set("query", keyword)
	q.Set("is_default_query", "0")
	q.Set("module", "search_rst_page")

	resp, err := a.get(ctx, "https://so.le.com/s?"+q.Encode())
	if err != nil {
		return nil, err
	}
	html, err := readAll(resp)
	if err != nil {
		return nil, err
	}

	var out []provider.SearchInfo
	for _, m := range leDataInfoBlockPattern.FindAllStringSubmatchIndex(html, -1) {
		dataInfoStr := html[m[2]:m[3]]
		var info leDataInfo
		if err := json.Unmarshal([]byte(dataInfoStr), &info); err != nil || info.PID == "" {
			continue
		}

		blockStart := m[0]
		blockEnd := -1
		for _, endPattern := range []string{"</div>\n\t</div>", "</div>\n</div>", "</div></div>"} {
			if idx := strings.Index(html[blockStart:], endPattern); idx >= 0 {
				blockEnd = blockStart + idx
				break
			}
		}
		if blockEnd == -1 {
			if idx := strings.Index(html[blockStart+100:], `<div class="So-detail`); idx >= 0 {
				blockEnd = blockStart + 100 + idx
			} else {
				continue
			}
		}
		block := html[blockStart:blockEnd]

		title := ""
		if tm := leTitleInBlockPattern.FindStringSubmatch(block); tm != nil {
			title = tm[1]
		} else if tm := leAnchorTitlePattern.FindStringSubmatch(block); tm != nil {
			title = tm[1]
		}

		imageURL := ""
		if im := leImagePattern.FindStringSubmatch(block); im != nil {
			imageURL = im[1]
		}

		var year *int
		if ym := leYearPattern1.FindStringSubmatch(block); ym != nil {
			if y, err := strconv.Atoi(ym[1]); err == nil {
				year = &y
			}
		} else if ym := leYearPattern2.FindStringSubmatch(block); ym != nil {
			if y, err := strconv.Atoi(ym[1]); err == nil {
				year = &y
			}
		}

		episodeCount := 0
		if n, err := strconv.Atoi(info.Total); err == nil {
			episodeCount = n
		}

		sInfo := provider.SearchInfo{
			ProviderName: providerName,
			MediaID:      info.PID,
			Title:        title,
			Type:         mapLeType(info.Type),
			Season:       1,
			Year:         year,
			ImageURL:     normalizeLeImage(imageURL),
			EpisodeCount: episodeCount,
		}
		if hint != nil {
			sInfo.CurrentEpisodeIndex = hint.Episode
			if hint.Season != nil {
				sInfo.Season = *hint.Season
			}
		}
		out = append(out, sInfo)
	}
	return out, nil
}

// GetInfoFromURL implements provider.Adapter by scraping the same
// data-info block from a work's own page.
func (a *Adapter) GetInfoFromURL(ctx context.Context, rawURL string) (*provider.SearchInfo, error) {
	m := leMediaIDFromURL.FindStringSubmatch(rawURL)
	if m == nil {
		return nil, nil
	}
	mediaID := m[1]

	resp, err := a.get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	html, err := readAll(resp)
	if err != nil {
		return nil, err
	}

	dm := leDataInfoQuotePattern.FindStringSubmatch(html)
	if dm == nil {
		return nil, nil
	}
	var info leDataInfo
	if err := json.Unmarshal([]byte(dm[1]), &info); err != nil {
		return nil, nil
	}

	title := ""
	if tm := lePageTitlePattern.FindStringSubmatch(html); tm != nil {
		title = strings.TrimSpace(strings.Split(tm[1], "-")[0])
	}

	var year *int
	if ym := leYearPattern1.FindStringSubmatch(html); ym != nil {
		if y, err := strconv.Atoi(ym[1]); err == nil {
			year = &y
		}
	} else if ym := leYearPattern2.FindStringSubmatch(html); ym != nil {
		if y, err := strconv.Atoi(ym[1]); err == nil {
			year = &y
		}
	}

	imageURL := ""
	if im := leImagePattern.FindStringSubmatch(html); im != nil {
		imageURL = im[1]
	}

	episodeCount := 0
	if n, err := strconv.Atoi(info.Total); err == nil {
		episodeCount = n
	}

	return &provider.SearchInfo{
		ProviderName: providerName,
		MediaID:      mediaID,
		Title:        title,
		Type:         mapLeType(info.Type),
		Season:       1,
		Year:         year,
		ImageURL:     normalizeLeImage(imageURL),
		EpisodeCount: episodeCount,
	}, nil
}

// GetIDFromURL implements provider.Adapter, returning either a work
// media_id or (for a /ptv/vplay/ play-page URL) the bare video_id.
func (a *Adapter) GetIDFromURL(ctx context.Context, rawURL string) (string, error) {
	if m := leMediaIDFromURL.FindStringSubmatch(rawURL); m != nil {
		return m[1], nil
	}
	if m := leVideoIDFromURL.FindStringSubmatch(rawURL); m != nil {
		return m[1], nil
	}
	return "", nil
}
