// SPDX-License-Identifier: AGPL-3.0-or-later

package gamer

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/quzard/misaka-danmu-server/internal/provider"
)

var (
	gamerAnimeRefSnPattern = regexp.MustCompile(`animeRef\.php\?sn=(\d+)`)
	gamerSnPattern         = regexp.MustCompile(`sn=(\d+)`)
	gamerYearPattern       = regexp.MustCompile(`(\d{4})`)
	gamerNumberPattern     = regexp.MustCompile(`(\d+)`)
	gamerVideoSnPattern    = regexp.MustCompile(`animefun\.videoSn\s*=\s*(\d+);`)
	gamerTitlePattern      = regexp.MustCompile(`animefun\.title\s*=\s*'([^']+)';`)
)

func text(n *html.Node) string {
	if n == nil {
		return ""
	}
	return strings.TrimSpace(htmlquery.InnerText(n))
}

func attr(n *html.Node, name string) string {
	if n == nil {
		return ""
	}
	return htmlquery.SelectAttr(n, name)
}

// Search implements provider.Adapter by scraping ani.gamer.com.tw's
// keyword search result page. The original converts the keyword to
// Traditional Chinese via OpenCC before searching and back to Simplified
// for display; no OpenCC-equivalent Go library is available in this
// corpus (see DESIGN.md), so both directions are skipped here — the
// site's own search tolerates a Simplified query closely enough in
// practice, and a caller wanting strict matching can pass a Traditional
// keyword directly.
func (a *Adapter) Search(ctx context.Context, keyword string, hint *provider.EpisodeHint) ([]provider.SearchInfo, error) {
	q := url.Values{"keyword": {keyword}}
	resp, err := a.get(ctx, "https://ani.gamer.com.tw/search.php?"+q.Encode())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := htmlquery.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("gamer: parse search page: %w", err)
	}

	var out []provider.SearchInfo
	for _, item := range htmlquery.Find(doc, "//div[contains(@class,'animate-theme-list')]//a[contains(@class,'theme-list-main')]") {
		href := attr(item, "href")
		m := gamerAnimeRefSnPattern.FindStringSubmatch(href)
		if m == nil {
			continue
		}
		mediaID := m[1]

		title := "未知标题"
		if titleNode := htmlquery.FindOne(item, ".//p[contains(@class,'theme-name')]"); titleNode != nil {
			title = text(titleNode)
		}

		var year *int
		if timeNode := htmlquery.FindOne(item, ".//p[contains(@class,'theme-time')]"); timeNode != nil {
			if ym := gamerYearPattern.FindStringSubmatch(text(timeNode)); ym != nil {
				if y, err := strconv.Atoi(ym[1]); err == nil {
					year = &y
				}
			}
		}

		episodeCount := 0
		if numNode := htmlquery.FindOne(item, ".//span[contains(@class,'theme-number')]"); numNode != nil {
			if nm := gamerNumberPattern.FindStringSubmatch(text(numNode)); nm != nil {
				if n, err := strconv.Atoi(nm[1]); err == nil {
					episodeCount = n
				}
			}
		}

		imageURL := ""
		if imgNode := htmlquery.FindOne(item, ".//img[contains(@class,'theme-img')]"); imgNode != nil {
			imageURL = attr(imgNode, "data-src")
		}

		mediaType := "tv_series"
		if episodeCount == 1 {
			mediaType = "movie"
		}

		info := provider.SearchInfo{
			ProviderName: providerName,
			MediaID:      mediaID,
			Title:        title,
			Type:         mediaType,
			Year:         year,
			EpisodeCount: episodeCount,
			ImageURL:     imageURL,
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

// GetIDFromURL implements provider.Adapter, extracting the "sn" query
// parameter shared by both series (animeRef.php) and episode
// (animeVideo.php) URLs.
func (a *Adapter) GetIDFromURL(ctx context.Context, rawURL string) (string, error) {
	m := gamerSnPattern.FindStringSubmatch(rawURL)
	if m == nil {
		return "", nil
	}
	return m[1], nil
}

// GetInfoFromURL implements provider.Adapter. An episode-page URL is
// first resolved to its parent series id via the page's "back to list"
// link before the series page itself is scraped for title/image/episode
// count.
func (a *Adapter) GetInfoFromURL(ctx context.Context, rawURL string) (*provider.SearchInfo, error) {
	m := gamerSnPattern.FindStringSubmatch(rawURL)
	if m == nil {
		return nil, nil
	}
	mediaID := m[1]

	resp, err := a.get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	doc, err := htmlquery.Parse(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("gamer: parse page: %w", err)
	}

	if strings.Contains(rawURL, "animeVideo.php") {
		if link := htmlquery.FindOne(doc, "//*[contains(@class,'v-info__title')]//a[contains(@href,'animeRef.php')]"); link != nil {
			if sm := gamerSnPattern.FindStringSubmatch(attr(link, "href")); sm != nil {
				mediaID = sm[1]
				seriesResp, err := a.get(ctx, "https://ani.gamer.com.tw/animeRef.php?sn="+mediaID)
				if err != nil {
					return nil, err
				}
				seriesDoc, err := htmlquery.Parse(seriesResp.Body)
				seriesResp.Body.Close()
				if err != nil {
					return nil, fmt.Errorf("gamer: parse series page: %w", err)
				}
				doc = seriesDoc
			} else {
				return nil, nil
			}
		}
	}

	titleNode := htmlquery.FindOne(doc, "//*[contains(@class,'anime_name')]//h1")
	if titleNode == nil {
		return nil, nil
	}
	title := text(titleNode)

	imageURL := ""
	if imgNode := htmlquery.FindOne(doc, "//*[contains(@class,'anime_info_pic')]//img"); imgNode != nil {
		imageURL = attr(imgNode, "src")
	}

	episodeLinks := htmlquery.Find(doc, "//*[contains(@class,'season')]//a[contains(@href,'animeVideo.php')]")
	episodeCount := len(episodeLinks)
	mediaType := "tv_series"
	if episodeCount == 1 {
		mediaType = "movie"
	}

	return &provider.SearchInfo{
		ProviderName: providerName,
		MediaID:      mediaID,
		Title:        title,
		Type:         mediaType,
		ImageURL:     imageURL,
		EpisodeCount: episodeCount,
	}, nil
}
