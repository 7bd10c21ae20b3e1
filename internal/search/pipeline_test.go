// SPDX-License-Identifier: AGPL-3.0-or-later

package search

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quzard/misaka-danmu-server/internal/config"
	"github.com/quzard/misaka-danmu-server/internal/configstore"
	"github.com/quzard/misaka-danmu-server/internal/library"
	"github.com/quzard/misaka-danmu-server/internal/provider"
	"github.com/quzard/misaka-danmu-server/internal/ratelimit"
)

var testDBSemaphore = make(chan struct{}, 1)
var testDBMutex sync.Mutex

func setupPipelineDeps(t *testing.T) (*library.Store, *configstore.Store, *ratelimit.Limiter) {
	t.Helper()

	testDBSemaphore <- struct{}{}
	t.Cleanup(func() { <-testDBSemaphore })

	cfg := config.LibraryConfig{Path: ":memory:", MaxMemory: "1GB"}

	type result struct {
		lib *library.Store
		err error
	}
	resultCh := make(chan result, 1)
	go func() {
		testDBMutex.Lock()
		defer testDBMutex.Unlock()
		lib, err := library.Open(cfg)
		resultCh <- result{lib: lib, err: err}
	}()

	var lib *library.Store
	select {
	case r := <-resultCh:
		require.NoError(t, r.err)
		lib = r.lib
	case <-time.After(30 * time.Second):
		t.Fatal("timed out opening in-memory test database")
	}
	t.Cleanup(func() { lib.Close() })

	cs := configstore.Open(lib.DB())
	limiter := ratelimit.New(lib, ratelimit.Quota{})
	return lib, cs, limiter
}

// fakeAdapter is a minimal provider.Adapter stub so pipeline tests don't
// need a real upstream HTTP client.
type fakeAdapter struct {
	name    string
	results []provider.SearchInfo
}

func (f *fakeAdapter) Meta() provider.Meta {
	return provider.Meta{Name: f.name, HandledDomains: []string{f.name + ".example"}}
}
func (f *fakeAdapter) Search(ctx context.Context, keyword string, hint *provider.EpisodeHint) ([]provider.SearchInfo, error) {
	return f.results, nil
}
func (f *fakeAdapter) GetInfoFromURL(ctx context.Context, url string) (*provider.SearchInfo, error) {
	return nil, nil
}
func (f *fakeAdapter) GetIDFromURL(ctx context.Context, url string) (string, error) { return "", nil }
func (f *fakeAdapter) GetEpisodes(ctx context.Context, mediaID string, targetIndex *int, dbMediaType string) ([]provider.EpisodeInfo, error) {
	return nil, nil
}
func (f *fakeAdapter) GetComments(ctx context.Context, episodeID string, progress provider.ProgressFunc) ([]provider.RawComment, error) {
	return nil, nil
}
func (f *fakeAdapter) FormatEpisodeIDForComments(raw string) string { return raw }
func (f *fakeAdapter) ExecuteAction(ctx context.Context, name string, payload json.RawMessage) (json.RawMessage, error) {
	return nil, nil
}

type fakeRegistry struct {
	byName map[string]provider.Adapter
	names  []string
}

func (r *fakeRegistry) Get(name string) (provider.Adapter, bool) {
	a, ok := r.byName[name]
	return a, ok
}
func (r *fakeRegistry) Names() []string { return r.names }

func TestPipelineSearchFiltersByAliasAndSorts(t *testing.T) {
	lib, cs, limiter := setupPipelineDeps(t)

	registry := &fakeRegistry{
		names: []string{"alpha", "beta"},
		byName: map[string]provider.Adapter{
			"alpha": &fakeAdapter{name: "alpha", results: []provider.SearchInfo{
				{ProviderName: "alpha", MediaID: "1", Title: "进击的巨人", Type: "tv_series", Season: 1},
				{ProviderName: "alpha", MediaID: "2", Title: "完全不相关的内容", Type: "tv_series", Season: 1},
			}},
			"beta": &fakeAdapter{name: "beta", results: []provider.SearchInfo{
				{ProviderName: "beta", MediaID: "9", Title: "进击的巨人 第一季", Type: "tv_series", Season: 1},
			}},
		},
	}

	p := New(registry, lib, cs, limiter)

	result, err := p.Search(context.Background(), "进击的巨人")
	require.NoError(t, err)
	require.Len(t, result.Results, 2)
	for _, r := range result.Results {
		assert.Contains(t, r.Title, "进击的巨人")
	}
}

func TestPipelineSearchRejectsEmptyKeyword(t *testing.T) {
	lib, cs, limiter := setupPipelineDeps(t)
	p := New(&fakeRegistry{}, lib, cs, limiter)

	_, err := p.Search(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyKeyword)
}

func TestPipelineSearchRejectsAllProvidersDisabled(t *testing.T) {
	lib, cs, limiter := setupPipelineDeps(t)
	require.NoError(t, cs.SetValue(context.Background(), "provider.alpha.enabled", "false"))

	registry := &fakeRegistry{names: []string{"alpha"}, byName: map[string]provider.Adapter{
		"alpha": &fakeAdapter{name: "alpha"},
	}}
	p := New(registry, lib, cs, limiter)

	_, err := p.Search(context.Background(), "anything")
	assert.ErrorIs(t, err, ErrNoProvidersEnabled)
}

func TestPipelineSearchCachesResult(t *testing.T) {
	lib, cs, limiter := setupPipelineDeps(t)

	registry := &fakeRegistry{names: []string{"alpha"}, byName: map[string]provider.Adapter{
		"alpha": &fakeAdapter{name: "alpha", results: []provider.SearchInfo{
			{ProviderName: "alpha", MediaID: "1", Title: "Frieren", Type: "tv_series", Season: 1},
		}},
	}}
	p := New(registry, lib, cs, limiter)

	ctx := context.Background()
	first, err := p.Search(ctx, "Frieren")
	require.NoError(t, err)
	require.Len(t, first.Results, 1)

	cacheKey := baseCacheKey("Frieren", nil)
	_, ok, err := lib.GetCacheEntry(ctx, cacheKey, time.Now())
	require.NoError(t, err)
	assert.True(t, ok)
}
