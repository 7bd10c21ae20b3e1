// SPDX-License-Identifier: AGPL-3.0-or-later

// Package gamer implements the Adapter for ani.gamer.com.tw (巴哈姆特動畫瘋):
// an HTML-scraped search and episode list, and a POST-form danmu endpoint.
// Requests carry an operator-configurable Cookie (the site 403s without a
// valid session) read fresh from internal/configstore on every call. Split
// across gamer.go (client/config), gamer_search.go, gamer_episodes.go and
// gamer_comments.go.
package gamer

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
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
	providerName        = "gamer"
	defaultUserAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	cookieConfigKey     = "gamerCookie"
	userAgentConfigKey  = "gamerUserAgent"
)

// Adapter implements provider.Adapter for ani.gamer.com.tw.
type Adapter struct {
	client *base.Client
	cfg    *configstore.Store
}

// New builds a gamer Adapter.
func New(cfg *configstore.Store, client *base.Client) *Adapter {
	return &Adapter{cfg: cfg, client: client}
}

// Meta implements provider.Adapter.
func (a *Adapter) Meta() provider.Meta {
	return provider.Meta{
		Name:                providerName,
		HandledDomains:      []string{"ani.gamer.com.tw"},
		RateLimitPeriodSecs: 60,
		IsLoggable:          true,
		TestURL:             "https://ani.gamer.com.tw/",
		DefaultBlacklist:    `(预告|花絮|OP|ED|PV|特典)`,
		ConfigurableFields: []provider.ConfigurableField{
			{Key: cookieConfigKey, Label: "巴哈姆特动画疯 Cookie", Kind: "password"},
			{Key: userAgentConfigKey, Label: "巴哈姆特动画疯 User-Agent", Kind: "string"},
		},
	}
}

// FormatEpisodeIDForComments implements provider.Adapter. gamer's
// provider_episode_id is a plain "sn" string; no reformatting needed.
func (a *Adapter) FormatEpisodeIDForComments(raw string) string {
	return raw
}

// ExecuteAction implements provider.Adapter. gamer has no operator
// actions beyond standard search/episodes/comments.
func (a *Adapter) ExecuteAction(ctx context.Context, name string, payload json.RawMessage) (json.RawMessage, error) {
	return nil, apperr.NotFound
}

func (a *Adapter) filterConfig(ctx context.Context) filter.Config {
	pattern, err := a.cfg.Get(ctx, "provider.gamer.episode_blacklist_regex", a.Meta().DefaultBlacklist)
	if err != nil || pattern == "" {
		return filter.Config{}
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		logging.Warn().Err(err).Str("pattern", pattern).Msg("gamer: invalid episode blacklist regex, ignoring")
		return filter.Config{}
	}
	return filter.Config{BlacklistPattern: re}
}

func (a *Adapter) newRequest(ctx context.Context, method, rawURL string, form url.Values) (*http.Request, error) {
	var req *http.Request
	var err error
	if form != nil {
		req, err = http.NewRequestWithContext(ctx, method, rawURL, strings.NewReader(form.Encode()))
	} else {
		req, err = http.NewRequestWithContext(ctx, method, rawURL, nil)
	}
	if err != nil {
		return nil, err
	}

	ua := defaultUserAgent
	if v, err := a.cfg.Get(ctx, userAgentConfigKey, ""); err == nil && v != "" {
		ua = v
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Referer", "https://ani.gamer.com.tw/")
	if cookie, err := a.cfg.Get(ctx, cookieConfigKey, ""); err == nil && cookie != "" {
		req.Header.Set("Cookie", cookie)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	return req, nil
}

func (a *Adapter) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := a.newRequest(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, apperr.NewUpstreamNetworkError(providerName, err)
	}
	return a.doTimed(req, "http_get")
}

func (a *Adapter) postForm(ctx context.Context, rawURL string, form url.Values) (*http.Response, error) {
	req, err := a.newRequest(ctx, http.MethodPost, rawURL, form)
	if err != nil {
		return nil, apperr.NewUpstreamNetworkError(providerName, err)
	}
	return a.doTimed(req, "http_post")
}

func (a *Adapter) doTimed(req *http.Request, op string) (*http.Response, error) {
	start := time.Now()
	resp, err := a.client.Do(req)
	metrics.ProviderFetchDuration.WithLabelValues(providerName, op).Observe(time.Since(start).Seconds())
	if err == nil && resp.StatusCode == http.StatusForbidden {
		logging.Warn().Str("url", req.URL.String()).Msg("gamer: 403 forbidden, configured cookie is likely expired")
	}
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
