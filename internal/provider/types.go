// SPDX-License-Identifier: AGPL-3.0-or-later

// Package provider defines the contract every upstream danmaku source
// adapter implements and the registry that routes a search, URL import
// or refresh task to the right one. Concrete adapters live one package
// per platform under internal/provider/<name>; internal/provider/filter
// holds the junk-title/episode-blacklist logic every adapter shares.
package provider

import (
	"context"
	"encoding/json"
)

// EpisodeHint narrows a search to a specific season/episode when the
// caller already knows roughly what it's looking for.
type EpisodeHint struct {
	Season  *int
	Episode *int
}

// SearchInfo is one candidate a provider's search returned.
type SearchInfo struct {
	ProviderName string
	MediaID      string
	Title        string
	Type         string // "movie" or "tv_series"
	Season       int
	Year         *int
	ImageURL     string
	EpisodeCount int
	CurrentEpisodeIndex *int
}

// EpisodeInfo is one installment of a media item, after filtering and
// renumbering. EpisodeIndex is 1-based and contiguous within a single
// get_episodes call.
type EpisodeInfo struct {
	ProviderEpisodeID string
	Title             string
	EpisodeIndex      int
	URL               string
}

// RawEpisode is what an adapter's own paging/listing code produces
// before internal/provider/filter removes junk entries and renumbers
// what's left; Title is what filtering matches against.
type RawEpisode struct {
	ProviderEpisodeID string
	Title             string
	URL               string
}

// RawComment is a single upstream danmaku entry in whatever shape the
// provider's API returns it; internal/comment normalizes this into the
// library.Comment wire format.
type RawComment struct {
	CID       string
	Text      string
	TimeSec   float64
	Mode      int
	FontSize  int
	ColorRGB  int
}

// Meta is the capability manifest every adapter declares at registration
// time (spec.md §4.3).
type Meta struct {
	Name               string
	HandledDomains     []string
	RateLimitQuota      *int // nil = unlimited
	RateLimitPeriodSecs int
	IsLoggable         bool
	ConfigurableFields []ConfigurableField
	TestURL            string
	DefaultBlacklist   string
}

// ConfigurableField describes one per-provider setting an operator can
// tune through the admin UI (backed by internal/configstore).
type ConfigurableField struct {
	Key   string
	Label string
	Kind  string // "string", "boolean", "password"
	Hint  string
}

// Adapter is the interface every upstream provider implements. Search,
// GetEpisodes and GetComments are the only network-calling operations;
// everything else is pure parsing/formatting.
type Adapter interface {
	Meta() Meta
	Search(ctx context.Context, keyword string, hint *EpisodeHint) ([]SearchInfo, error)
	GetInfoFromURL(ctx context.Context, url string) (*SearchInfo, error)
	GetIDFromURL(ctx context.Context, url string) (string, error)
	GetEpisodes(ctx context.Context, mediaID string, targetIndex *int, dbMediaType string) ([]EpisodeInfo, error)
	GetComments(ctx context.Context, episodeID string, progress ProgressFunc) ([]RawComment, error)
	FormatEpisodeIDForComments(raw string) string
	ExecuteAction(ctx context.Context, name string, payload json.RawMessage) (json.RawMessage, error)
}

// ProgressFunc reports 0-100 completion while GetComments paginates a
// long comment stream.
type ProgressFunc func(pct int)
