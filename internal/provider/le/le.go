// SPDX-License-Identifier: AGPL-3.0-or-later

// Package le implements the Adapter for le.com (乐视网): an HTML-scraped
// search and episode list (no JSON API for either), and a JSONP danmu
// endpoint walked in fixed 5-minute windows concurrently. Split across
// le.go (client), le_search.go, le_episodes.go and le_comments.go.
package le

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
	providerName = "le"
	userAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/141.0.0.0 Safari/537.36"
)

// positionMap translates le.com's danmu position codes to the shared
// bilibili-style mode values (1 scroll, 4 bottom, 5 top).
var positionMap = map[int]int{4: 1, 3: 4, 1: 5, 2: 1}

// Adapter implements provider.Adapter for le.com.
type Adapter struct {
	client *base.Client
	cfg    *configstore.Store
}

// New builds an le Adapter.
func New(cfg *configstore.Store, client *base.Client) *Adapter {
	return &Adapter{cfg: cfg, client: client}
}

// Meta implements provider.Adapter.
func (a *Adapter) Meta() provider.Meta {
	return provider.Meta{
		Name:                providerName,
		HandledDomains:      []string{"le.com", "www.le.com"},
		RateLimitPeriodSecs: 60,
		IsLoggable:          true,
		TestURL:             "https://www.le.com",
		DefaultBlacklist:    `(预告|花絮|专访|彩蛋|幕后|精编|看点)`,
	}
}

// FormatEpisodeIDForComments implements provider.Adapter. le's
// provider_episode_id is a plain video_id.
func (a *Adapter) FormatEpisodeIDForComments(raw string) string {
	return raw
}

// ExecuteAction implements provider.Adapter. le has no operator actions
// beyond standard search/episodes/comments.
func (a *Adapter) ExecuteAction(ctx context.Context, name string, payload json.RawMessage) (json.RawMessage, error) {
	return nil, apperr.NotFound
}

func (a *Adapter) filterConfig(ctx context.Context) filter.Config {
	pattern, err := a.cfg.Get(ctx, "provider.le.episode_blacklist_regex", a.Meta().DefaultBlacklist)
	if err != nil || pattern == "" {
		return filter.Config{}
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		logging.Warn().Err(err).Str("pattern", pattern).Msg("le: invalid episode blacklist regex, ignoring")
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
	req.Header.Set("Referer", "https://so.le.com/")
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

func readAll(resp *http.Response) (string, error) {
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apperr.NewUpstreamNetworkError(providerName, err)
	}
	return string(b), nil
}
