// SPDX-License-Identifier: AGPL-3.0-or-later

// Package hanjutv implements the Adapter for hanjutv.com (Korean drama
// aggregator). Search and series/episode metadata hit hxqapi.hiyun.tv's
// "wapi" JSON endpoints; danmaku is served from a separate host,
// hxqapi.zmdcq.com, paginated by an axis cursor. hanjutv has no native
// numeric media id in its search results (only a string "sid"), so one is
// synthesized with a djb2-family hash for callers that need an int-shaped
// id. Split across hanjutv.go (client/config), hanjutv_search.go,
// hanjutv_episodes.go and hanjutv_comments.go.
package hanjutv

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"time"

	"github.com/quzard/misaka-danmu-server/internal/apperr"
	"github.com/quzard/misaka-danmu-server/internal/configstore"
	"github.com/quzard/misaka-danmu-server/internal/logging"
	"github.com/quzard/misaka-danmu-server/internal/metrics"
	"github.com/quzard/misaka-danmu-server/internal/provider"
	"github.com/quzard/misaka-danmu-server/internal/provider/base"
	"github.com/quzard/misaka-danmu-server/internal/provider/filter"
)

const (
	providerName     = "hanjutv"
	userAgent        = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	baseURL          = "https://hxqapi.hiyun.tv"
	danmuURL         = "https://hxqapi.zmdcq.com"
	refererHeader    = "https://hanjutv.com/"
)

// categoryMap mirrors the original's CATEGORY_MAP: HanjuTV category ids to
// the two media types this system recognizes; anything else maps to "other"
// and is dropped by callers that only accept movie/tv_series.
var categoryMap = map[int]string{
	1: "tv_series",
	2: "tv_series",
	3: "movie",
	5: "tv_series",
}

func getCategory(id int) string {
	if t, ok := categoryMap[id]; ok {
		return t
	}
	return "other"
}

// Adapter implements provider.Adapter for hanjutv.com.
type Adapter struct {
	client *base.Client
	cfg    *configstore.Store
}

// New builds a hanjutv Adapter.
func New(cfg *configstore.Store, client *base.Client) *Adapter {
	return &Adapter{cfg: cfg, client: client}
}

// Meta implements provider.Adapter. Rate limit is unlimited upstream
// (rate_limit_quota=-1 in the original), so RateLimitQuota is left nil.
func (a *Adapter) Meta() provider.Meta {
	return provider.Meta{
		Name:             providerName,
		HandledDomains:   []string{"hanjutv.com", "www.hanjutv.com", "hxqapi.hiyun.tv"},
		IsLoggable:       true,
		TestURL:          "https://hxqapi.hiyun.tv",
		DefaultBlacklist: `^(.*?)(预告|花絮|特辑|彩蛋|专访|幕后|直播|纯享|未播|衍生|番外|会员|片花|精华|看点|速看|解读|影评|解说|吐槽|盘点)(.*?)$`,
	}
}

func buildMediaURL(mediaID string) string {
	return "https://hanju.com/series/" + mediaID
}

// FormatEpisodeIDForComments implements provider.Adapter; provider_episode_id
// is already the bare "pid" string.
func (a *Adapter) FormatEpisodeIDForComments(raw string) string {
	return raw
}

// ExecuteAction implements provider.Adapter. hanjutv has no operator actions.
func (a *Adapter) ExecuteAction(ctx context.Context, name string, payload json.RawMessage) (json.RawMessage, error) {
	return nil, apperr.NotFound
}

func (a *Adapter) filterConfig(ctx context.Context) filter.Config {
	pattern, err := a.cfg.Get(ctx, "provider.hanjutv.episode_blacklist_regex", a.Meta().DefaultBlacklist)
	if err != nil || pattern == "" {
		return filter.Config{}
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		logging.Warn().Err(err).Str("pattern", pattern).Msg("hanjutv: invalid episode blacklist regex, ignoring")
		return filter.Config{}
	}
	return filter.Config{BlacklistPattern: re}
}

func (a *Adapter) newRequest(ctx context.Context, method, rawURL string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Referer", refererHeader)
	return req, nil
}

func (a *Adapter) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := a.newRequest(ctx, http.MethodGet, rawURL)
	if err != nil {
		return nil, apperr.NewUpstreamNetworkError(providerName, err)
	}
	return a.doTimed(req, "http_get")
}

func (a *Adapter) doTimed(req *http.Request, op string) (*http.Response, error) {
	start := time.Now()
	resp, err := a.client.Do(req)
	metrics.ProviderFetchDuration.WithLabelValues(providerName, op).Observe(time.Since(start).Seconds())
	return resp, err
}
