// SPDX-License-Identifier: AGPL-3.0-or-later

// Package iqiyi implements the Adapter for iqiyi.com: link_id-to-tvid
// decoding, album episode-list pagination, and a zlib-compressed XML
// danmaku segment format parsed with antchfx/xmlquery.
package iqiyi

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
	providerName = "iqiyi"
	userAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	referer      = "https://www.iqiyi.com/"
)

// Adapter implements provider.Adapter for iqiyi.com.
type Adapter struct {
	client *base.Client
	cfg    *configstore.Store
}

// New builds an iqiyi Adapter.
func New(cfg *configstore.Store, client *base.Client) *Adapter {
	return &Adapter{cfg: cfg, client: client}
}

// Meta implements provider.Adapter.
func (a *Adapter) Meta() provider.Meta {
	return provider.Meta{
		Name:                providerName,
		HandledDomains:      []string{"www.iqiyi.com", "m.iqiyi.com"},
		RateLimitPeriodSecs: 60,
		IsLoggable:          true,
		TestURL:             "https://www.iqiyi.com",
		DefaultBlacklist:    `^(.*?)(抢先(看|版)?|加更(版)?|花絮|预告|特辑|彩蛋|专访|幕后|直播|纯享|未播|衍生|番外|会员(专享|加长)?|片花|精华|看点|速看|解读|reaction|影评)(.*?)$`,
	}
}

// FormatEpisodeIDForComments implements provider.Adapter. iqiyi's
// provider_episode_id is a plain tvId string; no reformatting needed.
func (a *Adapter) FormatEpisodeIDForComments(raw string) string {
	return raw
}

// ExecuteAction implements provider.Adapter. iqiyi has no operator
// actions beyond standard search/episodes/comments.
func (a *Adapter) ExecuteAction(ctx context.Context, name string, payload json.RawMessage) (json.RawMessage, error) {
	return nil, apperr.NotFound
}

func (a *Adapter) filterConfig(ctx context.Context) filter.Config {
	pattern, err := a.cfg.Get(ctx, "provider.iqiyi.episode_blacklist_regex", a.Meta().DefaultBlacklist)
	if err != nil || pattern == "" {
		return filter.Config{}
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		logging.Warn().Err(err).Str("pattern", pattern).Msg("iqiyi: invalid episode blacklist regex, ignoring")
		return filter.Config{}
	}
	return filter.Config{BlacklistPattern: re}
}

func (a *Adapter) newRequest(ctx context.Context, rawURL string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Referer", referer)
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
