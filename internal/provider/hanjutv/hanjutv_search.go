// SPDX-License-Identifier: AGPL-3.0-or-later

package hanjutv

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/quzard/misaka-danmu-server/internal/apperr"
	"github.com/quzard/misaka-danmu-server/internal/provider"
)

var hanjutvPlayURLPattern = regexp.MustCompile(`/play/([^/]+)`)

type hanjutvImage struct {
	Thumb string `json:"thumb"`
}

type hanjutvSeries struct {
	Sid        string       `json:"sid"`
	Title      string       `json:"title"`
	Category   int          `json:"category"`
	Image      hanjutvImage `json:"image"`
	UpdateTime any          `json:"updateTime"`
}

type hanjutvEpisode struct {
	SerialNo int    `json:"serialNo"`
	Title    string `json:"title"`
	Pid      string `json:"pid"`
}

type hanjutvSeriesListData struct {
	SeriesList []hanjutvSeries `json:"seriesList"`
}

type hanjutvSearchData struct {
	SeriesData *hanjutvSeriesListData `json:"seriesData"`
}

type hanjutvSearchResult struct {
	Data *hanjutvSearchData `json:"data"`
}

type hanjutvDetailData struct {
	Series hanjutvSeries `json:"series"`
}

type hanjutvDetailResult struct {
	Data *hanjutvDetailData `json:"data"`
}

type hanjutvEpisodesData struct {
	Episodes []hanjutvEpisode `json:"episodes"`
}

type hanjutvEpisodesResult struct {
	Data *hanjutvEpisodesData `json:"data"`
}

func (a *Adapter) searchRaw(ctx context.Context, keyword string) ([]hanjutvSeries, error) {
	q := url.Values{"keyword": {keyword}, "scope": {"101"}, "page": {"1"}}
	resp, err := a.get(ctx, baseURL+"/wapi/search/aggregate/search?"+q.Encode())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result hanjutvSearchResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, apperr.NewUpstreamSchemaError(providerName, err)
	}
	if result.Data == nil || result.Data.SeriesData == nil {
		return nil, nil
	}
	return result.Data.SeriesData.SeriesList, nil
}

func (a *Adapter) getDetail(ctx context.Context, sid string) (*hanjutvSeries, error) {
	resp, err := a.get(ctx, baseURL+"/wapi/series/series/detail?sid="+url.QueryEscape(sid))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result hanjutvDetailResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, apperr.NewUpstreamSchemaError(providerName, err)
	}
	if result.Data == nil {
		return nil, nil
	}
	return &result.Data.Series, nil
}

func (a *Adapter) getEpisodesRaw(ctx context.Context, sid string) ([]hanjutvEpisode, error) {
	resp, err := a.get(ctx, baseURL+"/wapi/series/series/detail?sid="+url.QueryEscape(sid))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result hanjutvEpisodesResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, apperr.NewUpstreamSchemaError(providerName, err)
	}
	if result.Data == nil {
		return nil, nil
	}
	episodes := result.Data.Episodes
	sortEpisodesBySerial(episodes)
	return episodes, nil
}

func sortEpisodesBySerial(episodes []hanjutvEpisode) {
	for i := 1; i < len(episodes); i++ {
		for j := i; j > 0 && episodes[j].SerialNo < episodes[j-1].SerialNo; j-- {
			episodes[j], episodes[j-1] = episodes[j-1], episodes[j]
		}
	}
}

// parseUpdateTimeYear mirrors the original's messy multi-branch parse of
// "updateTime", which may arrive as a millisecond timestamp, a second
// timestamp, a bare year, or an ISO-8601 date string. Any unparseable shape
// yields a nil year rather than an error.
func parseUpdateTimeYear(v any) *int {
	switch t := v.(type) {
	case float64:
		ms := int64(t)
		var sec int64
		switch {
		case ms > 10000000000:
			sec = ms / 1000
		case ms > 1000000000:
			sec = ms
		default:
			y := int(ms)
			if y > 1900 && y < 2100 {
				return &y
			}
			return nil
		}
		y := time.Unix(sec, 0).UTC().Year()
		return &y
	case string:
		if y, err := strconv.Atoi(t); err == nil && y > 1900 && y < 2100 {
			return &y
		}
		if ts, err := time.Parse(time.RFC3339, t); err == nil {
			y := ts.Year()
			return &y
		}
		if ts, err := time.Parse("2006-01-02", t); err == nil {
			y := ts.Year()
			return &y
		}
	}
	return nil
}

// Search implements provider.Adapter. Unlike most adapters, hanjutv's
// search result objects carry neither category nor episode count, so each
// hit requires one extra detail fetch and one extra episodes fetch — an
// N+1 pattern inherited directly from the original scraper.
func (a *Adapter) Search(ctx context.Context, keyword string, hint *provider.EpisodeHint) ([]provider.SearchInfo, error) {
	raw, err := a.searchRaw(ctx, keyword)
	if err != nil {
		return nil, err
	}

	out := make([]provider.SearchInfo, 0, len(raw))
	for _, series := range raw {
		detail, err := a.getDetail(ctx, series.Sid)
		if err != nil || detail == nil {
			continue
		}
		episodes, err := a.getEpisodesRaw(ctx, series.Sid)
		if err != nil {
			episodes = nil
		}

		info := provider.SearchInfo{
			ProviderName: providerName,
			MediaID:      series.Sid,
			Title:        detail.Title,
			Type:         getCategory(detail.Category),
			Year:         parseUpdateTimeYear(detail.UpdateTime),
			ImageURL:     detail.Image.Thumb,
			EpisodeCount: len(episodes),
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

// GetInfoFromURL implements provider.Adapter. URL shape:
// https://hanjutv.com/play/{sid}/{pid}.
func (a *Adapter) GetInfoFromURL(ctx context.Context, rawURL string) (*provider.SearchInfo, error) {
	m := hanjutvPlayURLPattern.FindStringSubmatch(rawURL)
	if m == nil {
		return nil, nil
	}
	sid := strings.SplitN(m[1], "/", 2)[0]

	detail, err := a.getDetail(ctx, sid)
	if err != nil || detail == nil {
		return nil, fmt.Errorf("hanjutv: no detail for sid %q", sid)
	}
	episodes, err := a.getEpisodesRaw(ctx, sid)
	if err != nil {
		episodes = nil
	}

	return &provider.SearchInfo{
		ProviderName: providerName,
		MediaID:      sid,
		Title:        detail.Title,
		Type:         getCategory(detail.Category),
		Year:         parseUpdateTimeYear(detail.UpdateTime),
		ImageURL:     detail.Image.Thumb,
		EpisodeCount: len(episodes),
	}, nil
}

// GetIDFromURL implements provider.Adapter, extracting the episode "pid"
// (the second path segment of a /play/{sid}/{pid} URL).
func (a *Adapter) GetIDFromURL(ctx context.Context, rawURL string) (string, error) {
	m := hanjutvPlayURLPattern.FindStringSubmatch(rawURL)
	if m == nil {
		return "", nil
	}
	parts := strings.SplitN(m[1], "/", 2)
	if len(parts) < 2 {
		return "", nil
	}
	return parts[1], nil
}
