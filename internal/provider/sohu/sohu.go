// SPDX-License-Identifier: AGPL-3.0-or-later

// Package sohu implements the Adapter for tv.sohu.com: a keyword search
// API, a JSONP playlist endpoint for episode listing, and a segmented
// (60-second window) danmu API walked up to a fixed 2-hour cap. Split
// across sohu.go (client), sohu_search.go, sohu_episodes.go and
// sohu_comments.go.
package sohu

import (
	"context"
	"encoding/json"
	"io"
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
	providerName = "sohu"
	userAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/141.0.0.0 Safari/537.36"
	apiKey       = "f351515304020cad28c92f70f002261c"
)

// Adapter implements provider.Adapter for tv.sohu.com.
type Adapter struct {
	client *base.Client
	cfg    *configstore.Store
}

// New builds a sohu Adapter.
func New(cfg *configstore.Store, client *base.Client) *Adapter {
	return &Adapter{cfg: cfg, client: client}
}

// Meta implements provider.Adapter.
func (a *Adapter) Meta() provider.Meta {
	return provider.Meta{
		Name:                providerName,
		HandledDomains:      []string{"tv.sohu.com", "m.tv.sohu.com", "so.tv.sohu.com"},
		RateLimitPeriodSecs: 60,
		IsLoggable:          true,
		TestURL:             "https://tv.sohu.com",
		DefaultBlacklist:    `(预告|花絮|专访|彩蛋|幕后|直拍|精编|看点)`,
	}
}

// FormatEpisodeIDForComments implements provider.Adapter. sohu's
// provider_episode_id is "vid:aid"; GetComments splits it itself.
func (a *Adapter) FormatEpisodeIDForComments(raw string) string {
	return raw
}

// ExecuteAction implements provider.Adapter. sohu has no operator actions
// beyond standard search/episodes/comments.
func (a *Adapter) ExecuteAction(ctx context.Context, name string, payload json.RawMessage) (json.RawMessage, error) {
	return nil, apperr.NotFound
}

func (a *Adapter) filterConfig(ctx context.Context) filter.Config {
	pattern, err := a.cfg.Get(ctx, "provider.sohu.episode_blacklist_regex", a.Meta().DefaultBlacklist)
	if err != nil || pattern == "" {
		return filter.Config{}
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		logging.Warn().Err(err).Str("pattern", pattern).Msg("sohu: invalid episode blacklist regex, ignoring")
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
	req.Header.Set("Referer", "https://tv.sohu.com/")
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

func buildMediaURL(mediaID string) string {
	return "https://tv.sohu.com/item/" + mediaID + ".html"
}

func readAll(resp *http.Response) (string, error) {
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apperr.NewUpstreamNetworkError(providerName, err)
	}
	return string(b), nil
}
