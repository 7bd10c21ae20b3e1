// SPDX-License-Identifier: AGPL-3.0-or-later

package danmakufile

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quzard/misaka-danmu-server/internal/config"
	"github.com/quzard/misaka-danmu-server/internal/configstore"
	"github.com/quzard/misaka-danmu-server/internal/library"
)

var testDBSemaphore = make(chan struct{}, 1)
var testDBMutex sync.Mutex

func setupConfigStore(t *testing.T) *configstore.Store {
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

	select {
	case r := <-resultCh:
		require.NoError(t, r.err)
		t.Cleanup(func() { r.lib.Close() })
		return configstore.Open(r.lib.DB())
	case <-time.After(30 * time.Second):
		t.Fatal("timed out opening in-memory test database")
		return nil
	}
}

func TestRender(t *testing.T) {
	year := 2013
	tests := []struct {
		name     string
		template string
		tokens   Tokens
		want     string
	}{
		{
			name:     "tv template",
			template: "${title}/Season ${season}/${title} - S${season}E${episode}",
			tokens:   Tokens{Title: "进击的巨人", Season: 2, Episode: 5},
			want:     "进击的巨人/Season 2/进击的巨人 - S2E5.xml",
		},
		{
			name:     "movie template with year",
			template: "${title} (${year})/${title}",
			tokens:   Tokens{Title: "天气之子", Year: &year},
			want:     "天气之子 (2013)/天气之子.xml",
		},
		{
			name:     "title with path separator is sanitized",
			template: "${title}",
			tokens:   Tokens{Title: "Fate/Zero"},
			want:     "Fate_Zero.xml",
		},
		{
			name:     "explicit xml suffix not doubled",
			template: "${provider}/${episodeId}.xml",
			tokens:   Tokens{Provider: "bilibili", EpisodeID: 42},
			want:     "bilibili/42.xml",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Render(tt.template, tt.tokens))
		})
	}
}

func TestComposeXML(t *testing.T) {
	comments := []*library.Comment{
		{CID: "a", P: "12.34,1,25,16777215,[bilibili]", M: "hello"},
		{CID: "b", P: "20.00,5,25,255,[bilibili]", M: "<b> & more"},
	}
	out := ComposeXML(comments)

	assert.Contains(t, out, "<maxlimit>2</maxlimit>")
	assert.Contains(t, out, `<d p="12.34,1,25,16777215,[bilibili]">hello</d>`)
	assert.Contains(t, out, "&lt;b&gt; &amp; more")
	assert.True(t, strings.HasPrefix(out, `<?xml version="1.0" encoding="UTF-8"?>`))
}

func TestWriteEpisodeDisabledByDefault(t *testing.T) {
	cfg := setupConfigStore(t)
	w := NewWriter(cfg)

	path, err := w.WriteEpisode(context.Background(), library.WorkTypeTVSeries,
		Tokens{Title: "x", Season: 1, Episode: 1}, nil)
	require.NoError(t, err)
	assert.Empty(t, path)
}

func TestWriteEpisode(t *testing.T) {
	cfg := setupConfigStore(t)
	ctx := context.Background()
	root := t.TempDir()

	require.NoError(t, cfg.SetValue(ctx, configstore.KeyDanmakuOutputEnabled, "true"))
	require.NoError(t, cfg.SetValue(ctx, configstore.KeyDanmakuOutputTVRoot, root))
	require.NoError(t, cfg.SetValue(ctx, configstore.KeyDanmakuOutputTVTemplate,
		"${title}/Season ${season}/E${episode}"))

	w := NewWriter(cfg)
	comments := []*library.Comment{{CID: "a", P: "1.00,1,25,16777215,[tencent]", M: "第一"}}
	path, err := w.WriteEpisode(ctx, library.WorkTypeTVSeries,
		Tokens{Title: "某剧", Season: 1, Episode: 3}, comments)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, "某剧", "Season 1", "E3.xml"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "第一")
}
