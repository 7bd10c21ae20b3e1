// SPDX-License-Identifier: AGPL-3.0-or-later

// Package mgtv implements the Adapter for mgtv.com (芒果TV): a
// mobileso.bz.mgtv.com search endpoint, a pcweb.api.mgtv.com monthly-tab
// episode listing, and a galaxy.bz.mgtv.com danmaku endpoint with a
// per-minute CDN segment walk falling back to a cursor-paginated
// opbarrage endpoint. Split across mgtv.go (client), mgtv_search.go,
// mgtv_episodes.go and mgtv_comments.go.
package mgtv

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
	providerName = "mgtv"
	userAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
)

var junkTitlePattern = regexp.MustCompile(`(预告|花絮|专访|彩蛋|幕后|直播|资讯|专辑|合集|看点|精选|Fan Meeting|见面会)`)

// Adapter implements provider.Adapter for mgtv.com.
type Adapter struct {
	client *base.Client
	cfg    *configstore.Store
}

// New builds an mgtv Adapter.
func New(cfg *configstore.Store, client *base.Client) *Adapter {
	return &Adapter{cfg: cfg, client: client}
}

// Meta implements provider.Adapter.
func (a *Adapter) Meta() provider.Meta {
	return provider.Meta{
		Name:                providerName,
		HandledDomains:      []string{"mgtv.com", "www.mgtv.com"},
		RateLimitPeriodSecs: 60,
		IsLoggable:          true,
		TestURL:             "https://www.mgtv.com",
		DefaultBlacklist:    `(预告|花絮|专访|彩蛋|幕后|直播|资讯|专辑|合集|看点|精选)`,
	}
}

// FormatEpisodeIDForComments implements provider.Adapter. mgtv's
// provider_episode_id is "cid,vid"; GetComments splits it itself, so no
// reformatting is needed here.
func (a *Adapter) FormatEpisodeIDForComments(raw string) string {
	return raw
}

// ExecuteAction implements provider.Adapter. mgtv has no operator actions
// beyond standard search/episodes/comments.
func (a *Adapter) ExecuteAction(ctx context.Context, name string, payload json.RawMessage) (json.RawMessage, error) {
	return nil, apperr.NotFound
}

func (a *Adapter) filterConfig(ctx context.Context) filter.Config {
	pattern, err := a.cfg.Get(ctx, "provider.mgtv.episode_blacklist_regex", a.Meta().DefaultBlacklist)
	if err != nil || pattern == "" {
		return filter.Config{}
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		logging.Warn().Err(err).Str("pattern", pattern).Msg("mgtv: invalid episode blacklist regex, ignoring")
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
	req.Header.Set("Referer", "https://www.mgtv.com/")
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
