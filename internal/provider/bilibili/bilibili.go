// SPDX-License-Identifier: AGPL-3.0-or-later

// Package bilibili implements the Adapter for bilibili.com: WBI-signed
// web API search and episode listing, cookie-based auth for rate-limit
// headroom, and protobuf danmaku segment fetching. Split across
// bilibili.go (client/auth/WBI), bilibili_search.go, bilibili_episodes.go
// and bilibili_comments.go, mirroring a client large enough that one
// file per concern reads better than one file for the whole adapter.
package bilibili

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"sync"
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
	providerName   = "bilibili"
	cookieConfigKey = "provider.bilibili.cookie"
	userAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	referer        = "https://www.bilibili.com/"

	wbiMixinKeyTTL = time.Hour
	wbiFallbackKey = "dba4a5925b345b4598b7452c75070bca"
)

// wbiMixinKeyTable reorders the concatenated img/sub key fragments into
// the 32-byte mixin key bilibili's wbi/search/type endpoint expects.
var wbiMixinKeyTable = []int{
	46, 47, 18, 2, 53, 8, 23, 32, 15, 50, 10, 31, 58, 3, 45, 35, 27, 43, 5, 49,
	33, 9, 42, 19, 29, 28, 14, 39, 12, 38, 41, 13, 37, 48, 7, 16, 24, 55, 40,
	61, 26, 17, 0, 1, 60, 51, 30, 4, 22, 25, 54, 21, 56, 59, 6, 63, 57, 62, 11,
	36, 20, 34, 44, 52,
}

// Adapter implements provider.Adapter for bilibili.com.
type Adapter struct {
	client *base.Client
	cfg    *configstore.Store

	cookieMu  sync.Mutex
	cookieJar map[string]string
	loadedAt  time.Time

	wbiMu        sync.Mutex
	wbiKey       string
	wbiFetchedAt time.Time
}

// New builds a bilibili Adapter. cfg provides the stored auth cookie and
// per-provider configurable fields; client is this adapter's resilient
// HTTP transport (circuit breaker + backoff + throttle).
func New(cfg *configstore.Store, client *base.Client) *Adapter {
	return &Adapter{cfg: cfg, client: client}
}

// Meta implements provider.Adapter.
func (a *Adapter) Meta() provider.Meta {
	return provider.Meta{
		Name:                providerName,
		HandledDomains:      []string{"www.bilibili.com", "bilibili.com", "b23.tv"},
		RateLimitPeriodSecs: 60,
		IsLoggable:          true,
		TestURL:             "https://api.bilibili.com",
		DefaultBlacklist:    `^(.*?)(抢先(看|版)?|加更|花絮|预告|特辑|彩蛋|专访|幕后|直播|纯享|未播|衍生|番外|会员(专享)?|片花|精华|看点|速看|解读|reaction|影评|解说|吐槽|盘点)(.*?)$`,
		ConfigurableFields: []provider.ConfigurableField{
			{Key: cookieConfigKey, Label: "Cookie", Kind: "password", Hint: "SESSDATA; bili_jct; DedeUserID from a logged-in browser session"},
		},
	}
}

// FormatEpisodeIDForComments implements provider.Adapter. bilibili's
// provider_episode_id is already "aid,cid" as produced by GetEpisodes.
func (a *Adapter) FormatEpisodeIDForComments(raw string) string {
	return raw
}

// ExecuteAction implements provider.Adapter. bilibili has no operator
// actions beyond standard search/episodes/comments in this deployment
// (the original's QR-code login flow is out of scope without a browser
// front-end to display the code).
func (a *Adapter) ExecuteAction(ctx context.Context, name string, payload json.RawMessage) (json.RawMessage, error) {
	return nil, apperr.NotFound
}

// filterConfig builds the junk-title/blacklist filter for this adapter's
// listings, using bilibili's own blacklist in place of the global default
// since the original scraper explicitly avoids applying the shared rule
// set here (it over-matches bilibili's badge vocabulary).
func (a *Adapter) filterConfig(ctx context.Context) filter.Config {
	pattern, err := a.cfg.Get(ctx, "provider.bilibili.episode_blacklist_regex", a.Meta().DefaultBlacklist)
	if err != nil || pattern == "" {
		return filter.Config{}
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		logging.Warn().Err(err).Str("pattern", pattern).Msg("bilibili: invalid episode blacklist regex, ignoring")
		return filter.Config{}
	}
	return filter.Config{BlacklistPattern: re}
}

func (a *Adapter) cookies(ctx context.Context) (map[string]string, error) {
	a.cookieMu.Lock()
	defer a.cookieMu.Unlock()

	if a.cookieJar != nil && time.Since(a.loadedAt) < time.Minute {
		return a.cookieJar, nil
	}

	raw, err := a.cfg.Get(ctx, cookieConfigKey, "")
	if err != nil {
		return nil, fmt.Errorf("bilibili: load cookie: %w", err)
	}

	jar := map[string]string{}
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		if len(kv) == 2 {
			jar[kv[0]] = kv[1]
		}
	}
	a.cookieJar = jar
	a.loadedAt = time.Now()
	return jar, nil
}

func (a *Adapter) newRequest(ctx context.Context, method, rawURL string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Referer", referer)

	jar, err := a.cookies(ctx)
	if err != nil {
		return nil, err
	}
	if len(jar) > 0 {
		var parts []string
		for k, v := range jar {
			parts = append(parts, k+"="+v)
		}
		req.Header.Set("Cookie", strings.Join(parts, "; "))
	}
	return req, nil
}

func (a *Adapter) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := a.newRequest(ctx, http.MethodGet, rawURL)
	if err != nil {
		return nil, apperr.NewUpstreamNetworkError(providerName, err)
	}
	start := time.Now()
	resp, err := a.client.Do(req)
	metrics.ProviderFetchDuration.WithLabelValues(providerName, "http_get").Observe(time.Since(start).Seconds())
	return resp, err
}

// wbiMixinKey returns the cached mixin key used to sign search/nav
// requests, refreshing it from the nav endpoint once per wbiMixinKeyTTL.
func (a *Adapter) wbiMixinKey(ctx context.Context) string {
	a.wbiMu.Lock()
	defer a.wbiMu.Unlock()

	if a.wbiKey != "" && time.Since(a.wbiFetchedAt) < wbiMixinKeyTTL {
		return a.wbiKey
	}

	resp, err := a.get(ctx, "https://api.bilibili.com/x/web-interface/nav")
	if err != nil {
		logging.Warn().Err(err).Msg("bilibili: wbi nav fetch failed, using fallback mixin key")
		return wbiFallbackKey
	}
	defer resp.Body.Close()

	var nav struct {
		Data struct {
			WbiImg struct {
				ImgURL string `json:"img_url"`
				SubURL string `json:"sub_url"`
			} `json:"wbi_img"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&nav); err != nil {
		logging.Warn().Err(err).Msg("bilibili: wbi nav decode failed, using fallback mixin key")
		return wbiFallbackKey
	}

	imgKey := lastPathSegmentNoExt(nav.Data.WbiImg.ImgURL)
	subKey := lastPathSegmentNoExt(nav.Data.WbiImg.SubURL)
	combined := imgKey + subKey
	if len(combined) < 64 {
		return wbiFallbackKey
	}

	var b strings.Builder
	for _, idx := range wbiMixinKeyTable {
		b.WriteByte(combined[idx])
	}
	key := b.String()
	if len(key) > 32 {
		key = key[:32]
	}

	a.wbiKey = key
	a.wbiFetchedAt = time.Now()
	return key
}

func lastPathSegmentNoExt(rawURL string) string {
	parts := strings.Split(rawURL, "/")
	last := parts[len(parts)-1]
	if idx := strings.Index(last, "."); idx != -1 {
		last = last[:idx]
	}
	return last
}

// wbiSign appends wts and w_rid to params per bilibili's WBI scheme and
// returns the query string ready to append to a request URL.
func wbiSign(params map[string]string, mixinKey string) string {
	params["wts"] = fmt.Sprintf("%d", time.Now().Unix())

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	v := url.Values{}
	for _, k := range keys {
		v.Set(k, params[k])
	}
	query := v.Encode()

	sum := md5.Sum([]byte(query + mixinKey))
	return query + "&w_rid=" + hex.EncodeToString(sum[:])
}
