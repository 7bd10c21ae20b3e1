// SPDX-License-Identifier: AGPL-3.0-or-later

// Package renren implements the Adapter for rrmj.plus (人人视频). The
// upstream API sits behind an AES-keyed request-signing scheme we have
// no working specimen of, so rather than ship guessed endpoints and a
// signing routine nobody can verify, this adapter is a structural stub:
// it satisfies provider.Adapter and registers in the provider list (so
// configuration, rate limiting, and the UI's provider picker all see
// "renren" as a real entry) but every operation reports apperr.NotFound
// until the signing scheme can be captured and implemented. See
// DESIGN.md for the background.
package renren

import (
	"context"
	"encoding/json"

	"github.com/quzard/misaka-danmu-server/internal/apperr"
	"github.com/quzard/misaka-danmu-server/internal/configstore"
	"github.com/quzard/misaka-danmu-server/internal/provider"
	"github.com/quzard/misaka-danmu-server/internal/provider/base"
)

const providerName = "renren"

// Adapter implements provider.Adapter for rrmj.plus as an unimplemented stub.
type Adapter struct {
	client *base.Client
	cfg    *configstore.Store
}

// New builds a renren Adapter.
func New(cfg *configstore.Store, client *base.Client) *Adapter {
	return &Adapter{cfg: cfg, client: client}
}

// Meta implements provider.Adapter.
func (a *Adapter) Meta() provider.Meta {
	return provider.Meta{
		Name:           providerName,
		HandledDomains: []string{"rrmj.plus", "www.rrmj.plus", "rrsp.com.cn"},
		IsLoggable:     true,
		TestURL:        "https://www.rrmj.plus",
	}
}

func (a *Adapter) Search(ctx context.Context, keyword string, hint *provider.EpisodeHint) ([]provider.SearchInfo, error) {
	return nil, apperr.NotFound
}

func (a *Adapter) GetInfoFromURL(ctx context.Context, rawURL string) (*provider.SearchInfo, error) {
	return nil, apperr.NotFound
}

func (a *Adapter) GetIDFromURL(ctx context.Context, rawURL string) (string, error) {
	return "", apperr.NotFound
}

func (a *Adapter) GetEpisodes(ctx context.Context, mediaID string, targetIndex *int, dbMediaType string) ([]provider.EpisodeInfo, error) {
	return nil, apperr.NotFound
}

func (a *Adapter) GetComments(ctx context.Context, episodeID string, progress provider.ProgressFunc) ([]provider.RawComment, error) {
	return nil, apperr.NotFound
}

// FormatEpisodeIDForComments implements provider.Adapter.
func (a *Adapter) FormatEpisodeIDForComments(raw string) string {
	return raw
}

// ExecuteAction implements provider.Adapter.
func (a *Adapter) ExecuteAction(ctx context.Context, name string, payload json.RawMessage) (json.RawMessage, error) {
	return nil, apperr.NotFound
}
