// SPDX-License-Identifier: AGPL-3.0-or-later

// Package acfun implements the Adapter for acfun.cn. This scraper exists
// solely to serve the external-danmaku import path: Search and GetEpisodes
// intentionally return nothing, since a caller only ever reaches acfun by
// already holding a danmakuId (scraped from a video page URL via
// GetIDFromURL) and passing it straight to GetComments.
package acfun

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/quzard/misaka-danmu-server/internal/apperr"
	"github.com/quzard/misaka-danmu-server/internal/configstore"
	"github.com/quzard/misaka-danmu-server/internal/metrics"
	"github.com/quzard/misaka-danmu-server/internal/provider"
	"github.com/quzard/misaka-danmu-server/internal/provider/base"
)

const (
	providerName = "acfun"
	userAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	refererURL   = "https://www.acfun.cn/"
)

var danmakuIDPattern = regexp.MustCompile(`danmakuId["']\s*:\s*["'](\d+)["']`)

// Adapter implements provider.Adapter for acfun.cn.
type Adapter struct {
	client *base.Client
	cfg    *configstore.Store
}

// New builds an acfun Adapter.
func New(cfg *configstore.Store, client *base.Client) *Adapter {
	return &Adapter{cfg: cfg, client: client}
}

// Meta implements provider.Adapter.
func (a *Adapter) Meta() provider.Meta {
	return provider.Meta{
		Name:           providerName,
		HandledDomains: []string{"acfun.cn", "www.acfun.cn"},
		IsLoggable:     true,
		TestURL:        "https://www.acfun.cn",
	}
}

// Search implements provider.Adapter. Not used for external-danmaku import.
func (a *Adapter) Search(ctx context.Context, keyword string, hint *provider.EpisodeHint) ([]provider.SearchInfo, error) {
	return nil, nil
}

// GetEpisodes implements provider.Adapter. Not used for external-danmaku import.
func (a *Adapter) GetEpisodes(ctx context.Context, mediaID string, targetIndex *int, dbMediaType string) ([]provider.EpisodeInfo, error) {
	return nil, nil
}

// FormatEpisodeIDForComments implements provider.Adapter; provider_episode_id
// is already the bare danmakuId/contentId.
func (a *Adapter) FormatEpisodeIDForComments(raw string) string {
	return raw
}

// ExecuteAction implements provider.Adapter. acfun has no operator actions.
func (a *Adapter) ExecuteAction(ctx context.Context, name string, payload json.RawMessage) (json.RawMessage, error) {
	return nil, apperr.NotFound
}

func (a *Adapter) newRequest(ctx context.Context, rawURL string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Referer", refererURL)
	return req, nil
}

func (a *Adapter) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := a.newRequest(ctx, rawURL)
	if err != nil {
		return nil, apperr.NewUpstreamNetworkError(providerName, err)
	}
	start := time.Now()
	resp, err := a.client.Do(req)
	metrics.ProviderFetchDuration.WithLabelValues(providerName, "http_get").Observe(time.Since(start).Seconds())
	return resp, err
}

// GetIDFromURL implements provider.Adapter by scraping a video page's
// embedded "danmakuId" field.
func (a *Adapter) GetIDFromURL(ctx context.Context, rawURL string) (string, error) {
	resp, err := a.get(ctx, rawURL)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apperr.NewUpstreamNetworkError(providerName, err)
	}

	m := danmakuIDPattern.FindSubmatch(body)
	if m == nil {
		return "", apperr.NotFound
	}
	return string(m[1]), nil
}

// GetInfoFromURL implements provider.Adapter. Not used for external-danmaku
// import; acfun URLs only ever resolve to a danmakuId via GetIDFromURL.
func (a *Adapter) GetInfoFromURL(ctx context.Context, rawURL string) (*provider.SearchInfo, error) {
	return nil, nil
}

type acfunComment struct {
	CID int64  `json:"cid"`
	C   string `json:"c"`
	M   string `json:"m"`
}

type acfunCommentList struct {
	CommentList []acfunComment `json:"commentList"`
}

// GetComments implements provider.Adapter. episodeID is the bare
// danmakuId/contentId. The original also converts comment text from
// Traditional to Simplified Chinese via OpenCC; no OpenCC-equivalent Go
// library exists in this corpus (see DESIGN.md), so that conversion is
// skipped and text is passed through as-is.
func (a *Adapter) GetComments(ctx context.Context, episodeID string, progress provider.ProgressFunc) ([]provider.RawComment, error) {
	if progress != nil {
		progress(10)
	}

	rawURL := fmt.Sprintf("https://www.acfun.cn/comment_list_json.aspx?contentId=%s", episodeID)
	resp, err := a.get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var list acfunCommentList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, apperr.NewUpstreamSchemaError(providerName, err)
	}
	if progress != nil {
		progress(50)
	}

	out := make([]provider.RawComment, 0, len(list.CommentList))
	for _, c := range list.CommentList {
		parts := strings.Split(c.C, ",")
		if len(parts) < 4 {
			continue
		}
		timeSec, err := strconv.ParseFloat(parts[0], 64)
		if err != nil {
			continue
		}
		color, err := strconv.Atoi(parts[1])
		if err != nil {
			color = 16777215
		}
		modeAcfun, _ := strconv.Atoi(parts[2])

		// AcFun: 1=scroll, 2=bottom, 3=top -> shared: 1=scroll, 4=bottom, 5=top.
		mode := 1
		switch modeAcfun {
		case 2:
			mode = 4
		case 3:
			mode = 5
		}

		out = append(out, provider.RawComment{
			CID:      fmt.Sprintf("%d", c.CID),
			Text:     c.M,
			TimeSec:  timeSec,
			Mode:     mode,
			FontSize: 25,
			ColorRGB: color,
		})
	}

	if progress != nil {
		progress(100)
	}
	return out, nil
}
