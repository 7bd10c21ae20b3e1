// SPDX-License-Identifier: AGPL-3.0-or-later

package gamer

import (
	"context"
	"fmt"

	"github.com/antchfx/htmlquery"

	"github.com/quzard/misaka-danmu-server/internal/provider"
	"github.com/quzard/misaka-danmu-server/internal/provider/filter"
)

type gamerRawEpisode struct {
	href  string
	title string
}

// GetEpisodes implements provider.Adapter. The series page (animeRef.php)
// either lists a <section class="season"> of episode links, or — for a
// single-episode title — embeds the lone episode's sn/title directly in
// an inline script (animefun.videoSn/animefun.title).
func (a *Adapter) GetEpisodes(ctx context.Context, mediaID string, targetIndex *int, dbMediaType string) ([]provider.EpisodeInfo, error) {
	resp, err := a.get(ctx, "https://ani.gamer.com.tw/animeRef.php?sn="+mediaID)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := htmlquery.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("gamer: parse series page: %w", err)
	}

	var raw []gamerRawEpisode
	seasonLinks := htmlquery.Find(doc, "//section[contains(@class,'season')]//a")
	if len(seasonLinks) > 0 {
		for _, link := range seasonLinks {
			raw = append(raw, gamerRawEpisode{href: attr(link, "href"), title: text(link)})
		}
	} else {
		for _, script := range htmlquery.Find(doc, "//script") {
			content := htmlquery.InnerText(script)
			snM := gamerVideoSnPattern.FindStringSubmatch(content)
			titleM := gamerTitlePattern.FindStringSubmatch(content)
			if snM != nil && titleM != nil {
				raw = append(raw, gamerRawEpisode{href: "/animeVideo.php?sn=" + snM[1], title: titleM[1]})
				break
			}
		}
	}

	var rawEpisodes []provider.RawEpisode
	for _, ep := range raw {
		sm := gamerSnPattern.FindStringSubmatch(ep.href)
		if sm == nil {
			continue
		}
		rawEpisodes = append(rawEpisodes, provider.RawEpisode{
			ProviderEpisodeID: sm[1],
			Title:             ep.title,
			URL:               "https://ani.gamer.com.tw" + ep.href,
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
