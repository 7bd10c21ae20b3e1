// SPDX-License-Identifier: AGPL-3.0-or-later

package tasks

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quzard/misaka-danmu-server/internal/apperr"
	"github.com/quzard/misaka-danmu-server/internal/config"
	"github.com/quzard/misaka-danmu-server/internal/library"
	"github.com/quzard/misaka-danmu-server/internal/provider"
	"github.com/quzard/misaka-danmu-server/internal/ratelimit"
	"github.com/quzard/misaka-danmu-server/internal/taskmanager"
)

var testDBSemaphore = make(chan struct{}, 1)
var testDBMutex sync.Mutex

func setupStore(t *testing.T) *library.Store {
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
	return lib
}

func noopProgress(ctx context.Context, pct int, desc string, hint taskmanager.StatusHint) error {
	return nil
}

type fakeAdapter struct {
	name      string
	episodes  []provider.EpisodeInfo
	comments  []provider.RawComment
	idFromURL string
}

func (f *fakeAdapter) Meta() provider.Meta { return provider.Meta{Name: f.name} }
func (f *fakeAdapter) Search(ctx context.Context, keyword string, hint *provider.EpisodeHint) ([]provider.SearchInfo, error) {
	return nil, nil
}
func (f *fakeAdapter) GetInfoFromURL(ctx context.Context, url string) (*provider.SearchInfo, error) {
	return nil, nil
}
func (f *fakeAdapter) GetIDFromURL(ctx context.Context, url string) (string, error) {
	return f.idFromURL, nil
}
func (f *fakeAdapter) GetEpisodes(ctx context.Context, mediaID string, targetIndex *int, dbMediaType string) ([]provider.EpisodeInfo, error) {
	return f.episodes, nil
}
func (f *fakeAdapter) GetComments(ctx context.Context, episodeID string, progress provider.ProgressFunc) ([]provider.RawComment, error) {
	return f.comments, nil
}
func (f *fakeAdapter) FormatEpisodeIDForComments(raw string) string { return raw }
func (f *fakeAdapter) ExecuteAction(ctx context.Context, name string, payload json.RawMessage) (json.RawMessage, error) {
	return nil, nil
}

type fakeRegistry struct {
	byName map[string]provider.Adapter
}

func (r *fakeRegistry) Get(name string) (provider.Adapter, bool) {
	a, ok := r.byName[name]
	return a, ok
}

func newTestDeps(t *testing.T, adapters map[string]provider.Adapter) *Deps {
	store := setupStore(t)
	limiter := ratelimit.New(store, ratelimit.Quota{})
	return &Deps{
		Store:    store,
		Registry: &fakeRegistry{byName: adapters},
		Limiter:  limiter,
	}
}

func TestGenericImportCreatesWorkSourceAndEpisode(t *testing.T) {
	adapter := &fakeAdapter{
		name: "alpha",
		episodes: []provider.EpisodeInfo{
			{ProviderEpisodeID: "ep1", Title: "Episode 1", EpisodeIndex: 1},
		},
		comments: []provider.RawComment{
			{CID: "c1", Text: "hello", TimeSec: 1.5, Mode: 1, FontSize: 25, ColorRGB: 16777215},
		},
	}
	deps := newTestDeps(t, map[string]provider.Adapter{"alpha": adapter})

	factory := NewGenericImport(deps, GenericImportParams{
		Provider: "alpha",
		MediaID:  "m1",
		Title:    "Test Show",
		Type:     library.WorkTypeTVSeries,
		Season:   1,
	})

	result, err := factory(context.Background(), noopProgress)
	require.NoError(t, err)
	success, ok := result.(apperr.TaskSuccess)
	require.True(t, ok)
	assert.Contains(t, success.Message, "imported")

	work, err := deps.Store.GetWorkByTitleSeason(context.Background(), "Test Show", 1)
	require.NoError(t, err)
	sources, err := deps.Store.ListSourcesForWork(context.Background(), work.ID)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	episodes, err := deps.Store.ListEpisodesForSource(context.Background(), sources[0].ID)
	require.NoError(t, err)
	require.Len(t, episodes, 1)
	comments, err := deps.Store.ListCommentsForEpisode(context.Background(), episodes[0].ID)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "hello", comments[0].M)
}

func TestGenericImportSkipsLinkingOnEmptyFetch(t *testing.T) {
	adapter := &fakeAdapter{
		name: "alpha",
		episodes: []provider.EpisodeInfo{
			{ProviderEpisodeID: "ep1", Title: "Episode 1", EpisodeIndex: 1},
		},
		comments: nil,
	}
	deps := newTestDeps(t, map[string]provider.Adapter{"alpha": adapter})

	factory := NewGenericImport(deps, GenericImportParams{
		Provider: "alpha",
		MediaID:  "m1",
		Title:    "Empty Show",
		Type:     library.WorkTypeTVSeries,
		Season:   1,
	})
	_, err := factory(context.Background(), noopProgress)
	require.NoError(t, err)

	_, err = deps.Store.GetWorkByTitleSeason(context.Background(), "Empty Show", 1)
	assert.True(t, apperr.Is(err, apperr.NotFound))
}

func TestManualImportCustomXML(t *testing.T) {
	deps := newTestDeps(t, nil)

	work := &library.Work{Title: "Custom Show", Type: library.WorkTypeTVSeries, Season: 1}
	workID, err := deps.Store.CreateWork(context.Background(), work)
	require.NoError(t, err)
	sourceID, err := deps.Store.CreateSource(context.Background(), &library.Source{AnimeID: workID, ProviderName: "custom", MediaID: "custom-1"})
	require.NoError(t, err)

	xml := `<i><d p="1.50,1,25,16777215,[custom]">hello there</d></i>`
	factory := NewManualImport(deps, ManualImportParams{
		SourceID:     sourceID,
		Title:        "Episode 1",
		EpisodeIndex: 1,
		Content:      xml,
		ProviderName: CustomProviderName,
	})

	_, err = factory(context.Background(), noopProgress)
	require.NoError(t, err)

	episode, err := deps.Store.GetEpisodeBySourceIndex(context.Background(), sourceID, 1)
	require.NoError(t, err)
	comments, err := deps.Store.ListCommentsForEpisode(context.Background(), episode.ID)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "hello there", comments[0].M)
}

func TestBatchManualImportSkipsExistingEpisode(t *testing.T) {
	deps := newTestDeps(t, nil)

	work := &library.Work{Title: "Batch Show", Type: library.WorkTypeTVSeries, Season: 1}
	workID, err := deps.Store.CreateWork(context.Background(), work)
	require.NoError(t, err)
	sourceID, err := deps.Store.CreateSource(context.Background(), &library.Source{AnimeID: workID, ProviderName: "custom", MediaID: "batch-1"})
	require.NoError(t, err)

	_, err = deps.Store.CreateEpisode(context.Background(), &library.Episode{
		SourceID: sourceID, EpisodeIndex: 1, Title: "Episode 1", ProviderEpisodeID: "manual-existing",
	})
	require.NoError(t, err)

	factory := NewBatchManualImport(deps, BatchManualImportParams{
		SourceID:     sourceID,
		ProviderName: CustomProviderName,
		Items: []BatchManualImportItem{
			{EpisodeIndex: 1, Title: "Episode 1", Content: `<i><d p="1.0,1,25,16777215">dup</d></i>`},
			{EpisodeIndex: 2, Title: "Episode 2", Content: `<i><d p="2.0,1,25,16777215">new</d></i>`},
		},
	})

	result, err := factory(context.Background(), noopProgress)
	require.NoError(t, err)
	success, ok := result.(apperr.TaskSuccess)
	require.True(t, ok)
	assert.Contains(t, success.Message, "skipped 1 duplicate episodes")

	newEpisode, err := deps.Store.GetEpisodeBySourceIndex(context.Background(), sourceID, 2)
	require.NoError(t, err)
	comments, err := deps.Store.ListCommentsForEpisode(context.Background(), newEpisode.ID)
	require.NoError(t, err)
	require.Len(t, comments, 1)
}

func TestReorderEpisodesReassignsSequentialIndexes(t *testing.T) {
	deps := newTestDeps(t, nil)

	work := &library.Work{Title: "Reorder Show", Type: library.WorkTypeTVSeries, Season: 1}
	workID, err := deps.Store.CreateWork(context.Background(), work)
	require.NoError(t, err)
	sourceID, err := deps.Store.CreateSource(context.Background(), &library.Source{AnimeID: workID, ProviderName: "custom", MediaID: "reorder-1"})
	require.NoError(t, err)

	_, err = deps.Store.CreateEpisode(context.Background(), &library.Episode{SourceID: sourceID, EpisodeIndex: 5, Title: "A", ProviderEpisodeID: "a"})
	require.NoError(t, err)
	_, err = deps.Store.CreateEpisode(context.Background(), &library.Episode{SourceID: sourceID, EpisodeIndex: 10, Title: "B", ProviderEpisodeID: "b"})
	require.NoError(t, err)

	factory := NewReorderEpisodes(deps, ReorderEpisodesParams{SourceID: sourceID})
	_, err = factory(context.Background(), noopProgress)
	require.NoError(t, err)

	episodes, err := deps.Store.ListEpisodesForSource(context.Background(), sourceID)
	require.NoError(t, err)
	require.Len(t, episodes, 2)
	assert.Equal(t, 1, episodes[0].EpisodeIndex)
	assert.Equal(t, 2, episodes[1].EpisodeIndex)
}

func TestDeleteEpisodeRemovesRow(t *testing.T) {
	deps := newTestDeps(t, nil)

	work := &library.Work{Title: "Delete Show", Type: library.WorkTypeTVSeries, Season: 1}
	workID, err := deps.Store.CreateWork(context.Background(), work)
	require.NoError(t, err)
	sourceID, err := deps.Store.CreateSource(context.Background(), &library.Source{AnimeID: workID, ProviderName: "custom", MediaID: "del-1"})
	require.NoError(t, err)
	episodeID, err := deps.Store.CreateEpisode(context.Background(), &library.Episode{SourceID: sourceID, EpisodeIndex: 1, Title: "A", ProviderEpisodeID: "a"})
	require.NoError(t, err)

	factory := NewDeleteEpisode(deps, DeleteEpisodeParams{EpisodeID: episodeID})
	_, err = factory(context.Background(), noopProgress)
	require.NoError(t, err)

	_, err = deps.Store.GetEpisodeByID(context.Background(), episodeID)
	assert.True(t, apperr.Is(err, apperr.NotFound))
}

func TestEditedImportUsesCallerEpisodeList(t *testing.T) {
	adapter := &fakeAdapter{
		name: "bilibili",
		// GetEpisodes would return nothing; the caller's list drives the import.
		comments: []provider.RawComment{
			{CID: "c1", Text: "哈哈", TimeSec: 1.5, Mode: 1, FontSize: 25, ColorRGB: 16777215},
		},
	}
	deps := newTestDeps(t, map[string]provider.Adapter{"bilibili": adapter})

	params := EditedImportParams{
		Provider: "bilibili", MediaID: "ss77", Title: "葬送的芙莉莲",
		Type: library.WorkTypeTVSeries, Season: 1,
		Episodes: []provider.EpisodeInfo{
			{ProviderEpisodeID: "ep-a", Title: "第1集", EpisodeIndex: 1},
			{ProviderEpisodeID: "ep-b", Title: "第3集", EpisodeIndex: 3},
		},
	}

	result, err := NewEditedImport(deps, params)(context.Background(), noopProgress)
	require.NoError(t, err)
	success, ok := result.(apperr.TaskSuccess)
	require.True(t, ok, "expected TaskSuccess, got %T", result)
	// One comment per kept episode.
	assert.Contains(t, success.Message, "2")

	source, err := deps.Store.GetSourceByProviderMediaID(context.Background(), "bilibili", "ss77")
	require.NoError(t, err)
	episodes, err := deps.Store.ListEpisodesForSource(context.Background(), source.ID)
	require.NoError(t, err)
	// The edited list kept indexes 1 and 3; both land as-is, no renumber.
	require.Len(t, episodes, 2)
	assert.Equal(t, 1, episodes[0].EpisodeIndex)
	assert.Equal(t, 3, episodes[1].EpisodeIndex)
}
