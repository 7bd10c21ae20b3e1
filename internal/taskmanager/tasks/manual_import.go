// SPDX-License-Identifier: AGPL-3.0-or-later

package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/quzard/misaka-danmu-server/internal/apperr"
	"github.com/quzard/misaka-danmu-server/internal/comment/xmlimport"
	"github.com/quzard/misaka-danmu-server/internal/library"
	"github.com/quzard/misaka-danmu-server/internal/provider"
	"github.com/quzard/misaka-danmu-server/internal/taskmanager"
)

// CustomProviderName is the sentinel manual_import recognizes for
// caller-supplied danmaku content instead of a provider URL (spec.md
// §4.6.6 "if provider is the special custom").
const CustomProviderName = "custom"

// ManualImportParams targets one (Source, episodeIndex) pair.
type ManualImportParams struct {
	SourceID     int64  `json:"sourceId"`
	Title        string `json:"title"`
	EpisodeIndex int    `json:"episodeIndex"`
	Content      string `json:"content"`
	ProviderName string `json:"providerName"`
}

// NewManualImport builds manual_import (spec.md §4.6.6).
func NewManualImport(deps *Deps, params ManualImportParams) taskmanager.Factory {
	return func(ctx context.Context, progress taskmanager.ProgressFunc) (apperr.TaskResult, error) {
		if err := progress(ctx, 0, "解析内容", "parsing"); err != nil {
			return nil, err
		}

		result, err := manualImportOne(ctx, deps, params)
		if err != nil {
			var rle *apperr.RateLimitExceeded
			if errors.As(err, &rle) {
				return apperr.TaskPauseForRateLimit{RetryAfterSeconds: rle.RetryAfterSeconds}, nil
			}
			return nil, err
		}

		if err := progress(ctx, 100, "完成", "done"); err != nil {
			return nil, err
		}
		return apperr.TaskSuccess{Message: fmt.Sprintf("imported %d comments", result.Inserted)}, nil
	}
}

// manualImportOne does the actual parse+fetch+insert for a single item,
// shared between NewManualImport and batch_manual_import so the batch
// body gets per-item results without re-running a whole Factory.
func manualImportOne(ctx context.Context, deps *Deps, params ManualImportParams) (library.InsertCommentsResult, error) {
	var normalized []*library.Comment

	if params.ProviderName == CustomProviderName {
		entries, err := parseCustomContent(params.Content)
		if err != nil {
			return library.InsertCommentsResult{}, err
		}
		normalized = normalizeProviderComments(CustomProviderName, xmlimport.ToRawComments(entries))
	} else {
		adapter, ok := deps.Registry.Get(params.ProviderName)
		if !ok {
			return library.InsertCommentsResult{}, fmt.Errorf("manual_import: unknown provider %q", params.ProviderName)
		}
		if err := deps.Limiter.Check(ctx, params.ProviderName, adapterQuota(adapter)); err != nil {
			return library.InsertCommentsResult{}, err
		}
		episodeID, err := adapter.GetIDFromURL(ctx, params.Content)
		if err != nil {
			return library.InsertCommentsResult{}, err
		}
		raw, err := adapter.GetComments(ctx, adapter.FormatEpisodeIDForComments(episodeID), func(int) {})
		if err != nil {
			return library.InsertCommentsResult{}, err
		}
		normalized = normalizeProviderComments(params.ProviderName, raw)
		if err := deps.Limiter.Increment(ctx, params.ProviderName); err != nil {
			return library.InsertCommentsResult{}, err
		}
	}

	episode, err := getOrCreateEpisode(ctx, deps.Store, params.SourceID, provider.EpisodeInfo{
		ProviderEpisodeID: fmt.Sprintf("manual-%d-%d", params.SourceID, params.EpisodeIndex),
		Title:             params.Title,
		EpisodeIndex:      params.EpisodeIndex,
	})
	if err != nil {
		return library.InsertCommentsResult{}, err
	}

	result, err := deps.Store.InsertComments(ctx, episode.ID, params.ProviderName, normalized)
	if err != nil {
		return library.InsertCommentsResult{}, err
	}
	if err := deps.Store.MarkFetched(ctx, episode.ID, deps.now()); err != nil {
		return library.InsertCommentsResult{}, err
	}
	return result, nil
}

func parseCustomContent(content string) ([]xmlimport.Entry, error) {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "<") {
		return xmlimport.ParseXML(strings.NewReader(content))
	}
	return xmlimport.ConvertPlainText(content), nil
}
