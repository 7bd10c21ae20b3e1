// SPDX-License-Identifier: AGPL-3.0-or-later

package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"

	"github.com/quzard/misaka-danmu-server/internal/cache"
	"github.com/quzard/misaka-danmu-server/internal/configstore"
	"github.com/quzard/misaka-danmu-server/internal/library"
	"github.com/quzard/misaka-danmu-server/internal/logging"
	"github.com/quzard/misaka-danmu-server/internal/provider"
	"github.com/quzard/misaka-danmu-server/internal/ratelimit"
)

// ErrEmptyKeyword is returned when Search is called with a blank
// keyword, the min-length-1 boundary in spec.md §8.
var ErrEmptyKeyword = errors.New("search: keyword must not be empty")

// ErrNoProvidersEnabled is returned when every registered provider is
// disabled, per spec.md §8 "search with all providers disabled → reject
// with a clear message".
var ErrNoProvidersEnabled = errors.New("search: no providers enabled")

// movieTypeHint matches a title fragment that means "this is a movie"
// regardless of what the provider itself reported (spec.md §4.5 step 6).
var movieTypeHint = []string{"剧场版", "劇場版", "movie", "映画"}

// AliasSource is the interface a content-metadata adapter (TMDB, Bangumi,
// Douban) implements to contribute title aliases. spec.md §1 puts these
// adapters themselves out of scope; Pipeline only needs this seam so the
// alias-expansion step (§4.5 step 3) has somewhere to plug in when one is
// configured.
type AliasSource interface {
	Name() string
	GetAliases(ctx context.Context, title string) ([]string, error)
}

// Registry is the subset of provider.Registry the pipeline needs, kept
// narrow so tests can supply a fake.
type Registry interface {
	Get(name string) (provider.Adapter, bool)
	Names() []string
}

// Pipeline implements the search algorithm of spec.md §4.5. hot is the
// in-process layer in front of the persistent cache table: a repeat of
// the same base query within the TTL never touches the database.
type Pipeline struct {
	registry     Registry
	store        *library.Store
	configStore  *configstore.Store
	limiter      *ratelimit.Limiter
	aliasSources []AliasSource
	hot          *cache.Cache
}

// New builds a Pipeline. aliasSources may be empty — alias expansion is
// then a no-op and the pipeline searches on the original title alone.
func New(registry Registry, store *library.Store, configStore *configstore.Store, limiter *ratelimit.Limiter, aliasSources ...AliasSource) *Pipeline {
	return &Pipeline{
		registry:     registry,
		store:        store,
		configStore:  configStore,
		limiter:      limiter,
		aliasSources: aliasSources,
		hot:          cache.New(3 * time.Hour),
	}
}

// ClearHotCache drops the in-process layer. Called alongside the
// persistent table's bulk clear so the hot layer cannot serve rows the
// table no longer holds.
func (p *Pipeline) ClearHotCache() {
	p.hot.Clear()
}

// Result is what Search returns: the sorted, filtered candidate list
// plus the season/episode the query itself specified, so the caller can
// drive a single-episode import without re-parsing (spec.md §4.5,
// "Output").
type Result struct {
	Results      []provider.SearchInfo
	SearchSeason *int
	SearchEpisode *int
}

// cachedResult is the JSON shape stored under the base-cache key;
// CurrentEpisodeIndex is always blanked before storage (step 9) and
// re-annotated with the live request's episode on a cache hit.
type cachedResult struct {
	Results []provider.SearchInfo `json:"results"`
}

// Search runs the full pipeline for keyword and returns results ordered
// by provider display order then fuzzy match quality.
func (p *Pipeline) Search(ctx context.Context, keyword string) (*Result, error) {
	if strings.TrimSpace(keyword) == "" {
		return nil, ErrEmptyKeyword
	}

	parsed := ParseQuery(keyword)

	enabledNames, err := p.enabledProviderNames(ctx)
	if err != nil {
		return nil, err
	}
	if len(enabledNames) == 0 {
		return nil, ErrNoProvidersEnabled
	}

	cacheKey := baseCacheKey(parsed.Title, parsed.Season)
	if cached, ok, err := p.readCache(ctx, cacheKey); err == nil && ok {
		annotated := annotateEpisode(cached.Results, parsed.Episode)
		return &Result{Results: annotated, SearchSeason: parsed.Season, SearchEpisode: parsed.Episode}, nil
	}

	aliases := p.expandAliases(ctx, parsed.Title)

	hint := &provider.EpisodeHint{Season: parsed.Season, Episode: parsed.Episode}
	raw := p.fanOut(ctx, enabledNames, parsed.Title, hint)

	filtered := filterByAlias(raw, aliases)
	for i := range filtered {
		correctMovieType(&filtered[i])
	}
	filtered = filterBySeason(filtered, parsed.Season)

	order := p.displayOrder(ctx, enabledNames)
	sortResults(filtered, parsed.Title, order)

	p.writeCache(ctx, cacheKey, filtered)

	annotated := annotateEpisode(filtered, parsed.Episode)
	return &Result{Results: annotated, SearchSeason: parsed.Season, SearchEpisode: parsed.Episode}, nil
}

func (p *Pipeline) enabledProviderNames(ctx context.Context) ([]string, error) {
	var enabled []string
	for _, name := range p.registry.Names() {
		ok, err := p.configStore.GetBool(ctx, fmt.Sprintf("provider.%s.enabled", name), true)
		if err != nil {
			return nil, err
		}
		if ok {
			enabled = append(enabled, name)
		}
	}
	return enabled, nil
}

func (p *Pipeline) displayOrder(ctx context.Context, names []string) map[string]int {
	order := make(map[string]int, len(names))
	for i, name := range names {
		v, err := p.configStore.GetInt(ctx, fmt.Sprintf("provider.%s.display_order", name), i)
		if err != nil {
			v = i
		}
		order[name] = v
	}
	return order
}

// expandAliases asks every configured alias source for title's aliases,
// keeping only those that fuzzy-validate against the original query
// (token_set_ratio > 70, spec.md §4.5 step 3), and always includes the
// original title itself.
func (p *Pipeline) expandAliases(ctx context.Context, title string) []string {
	aliases := []string{title}
	for _, src := range p.aliasSources {
		candidates, err := src.GetAliases(ctx, title)
		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("alias_source", src.Name()).Msg("alias source lookup failed")
			continue
		}
		for _, c := range candidates {
			if TokenSetRatio(title, c) > 70 {
				aliases = append(aliases, c)
			}
		}
	}
	return aliases
}

// fanOut calls Search on every enabled provider concurrently (spec.md
// §4.5 step 4). A provider that's currently rate-limited (read-only
// Check, no Increment — search doesn't consume fetch quota per §4.2) or
// that errors is skipped rather than failing the whole search.
func (p *Pipeline) fanOut(ctx context.Context, names []string, title string, hint *provider.EpisodeHint) []provider.SearchInfo {
	results := make([][]provider.SearchInfo, len(names))

	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			adapter, ok := p.registry.Get(name)
			if !ok {
				return nil
			}
			quota := adapterQuota(adapter)
			if err := p.limiter.Check(gctx, name, quota); err != nil {
				logging.Ctx(gctx).Warn().Err(err).Str("provider", name).Msg("provider skipped: rate limited")
				return nil
			}
			found, err := adapter.Search(gctx, title, hint)
			if err != nil {
				logging.Ctx(gctx).Warn().Err(err).Str("provider", name).Msg("provider search failed")
				return nil
			}
			results[i] = found
			return nil
		})
	}
	_ = g.Wait()

	var out []provider.SearchInfo
	for _, r := range results {
		out = append(out, r...)
	}
	return out
}

func adapterQuota(a provider.Adapter) ratelimit.Quota {
	meta := a.Meta()
	if meta.RateLimitQuota == nil {
		return ratelimit.Quota{}
	}
	period := time.Duration(meta.RateLimitPeriodSecs) * time.Second
	if period <= 0 {
		period = time.Hour
	}
	return ratelimit.Quota{Limit: *meta.RateLimitQuota, Period: period}
}

// filterByAlias keeps a result iff any alias is a partial_ratio > 85
// substring/superset of its normalized title (spec.md §4.5 step 5).
func filterByAlias(results []provider.SearchInfo, aliases []string) []provider.SearchInfo {
	out := make([]provider.SearchInfo, 0, len(results))
	for _, r := range results {
		for _, alias := range aliases {
			if PartialRatio(alias, r.Title) > 85 {
				out = append(out, r)
				break
			}
		}
	}
	return out
}

func correctMovieType(r *provider.SearchInfo) {
	for _, hint := range movieTypeHint {
		if strings.Contains(strings.ToLower(r.Title), strings.ToLower(hint)) {
			r.Type = "movie"
			return
		}
	}
}

// filterBySeason drops results whose parsed season doesn't match, and —
// when a season was specified — restricts to tv_series (spec.md §4.5
// step 7).
func filterBySeason(results []provider.SearchInfo, season *int) []provider.SearchInfo {
	if season == nil {
		return results
	}
	out := make([]provider.SearchInfo, 0, len(results))
	for _, r := range results {
		if r.Type != "tv_series" {
			continue
		}
		if r.Season != *season {
			continue
		}
		out = append(out, r)
	}
	return out
}

// sortResults orders primarily by each result's provider display order
// ascending, secondarily by token_set_ratio(query, title) descending
// (spec.md §4.5 step 8).
func sortResults(results []provider.SearchInfo, query string, order map[string]int) {
	sort.SliceStable(results, func(i, j int) bool {
		oi, oj := order[results[i].ProviderName], order[results[j].ProviderName]
		if oi != oj {
			return oi < oj
		}
		return TokenSetRatio(query, results[i].Title) > TokenSetRatio(query, results[j].Title)
	})
}

// annotateEpisode sets CurrentEpisodeIndex on every result to the
// request's parsed episode (nil if the query specified no episode,
// spec.md §8 "Query with season but no episode → episode field is null
// in every result").
func annotateEpisode(results []provider.SearchInfo, episode *int) []provider.SearchInfo {
	out := make([]provider.SearchInfo, len(results))
	for i, r := range results {
		r.CurrentEpisodeIndex = episode
		out[i] = r
	}
	return out
}

func baseCacheKey(title string, season *int) string {
	if season == nil {
		return fmt.Sprintf("search_base_%s_all", title)
	}
	return fmt.Sprintf("search_base_%s_%d", title, *season)
}

func (p *Pipeline) readCache(ctx context.Context, key string) (*cachedResult, bool, error) {
	if hit, ok := p.hot.Get(key); ok {
		if cached, ok := hit.(*cachedResult); ok {
			return cached, true, nil
		}
	}

	raw, ok, err := p.store.GetCacheEntry(ctx, key, time.Now())
	if err != nil || !ok {
		return nil, false, err
	}
	var cached cachedResult
	if err := json.Unmarshal([]byte(raw), &cached); err != nil {
		return nil, false, nil
	}
	p.hot.Set(key, &cached)
	return &cached, true, nil
}

func (p *Pipeline) writeCache(ctx context.Context, key string, results []provider.SearchInfo) {
	blanked := make([]provider.SearchInfo, len(results))
	copy(blanked, results)
	for i := range blanked {
		blanked[i].CurrentEpisodeIndex = nil
	}

	payload, err := json.Marshal(cachedResult{Results: blanked})
	if err != nil {
		return
	}

	ttlSeconds, err := p.configStore.GetInt(ctx, configstore.KeySearchCacheTTLSeconds, 10800)
	if err != nil {
		ttlSeconds = 10800
	}
	ttl := time.Duration(ttlSeconds) * time.Second

	if err := p.store.PutCacheEntry(ctx, key, string(payload), nil, time.Now().Add(ttl)); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("cache_key", key).Msg("failed to cache search result")
	}
	p.hot.SetWithTTL(key, &cachedResult{Results: blanked}, ttl)
}
