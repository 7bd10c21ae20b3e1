// SPDX-License-Identifier: AGPL-3.0-or-later

package tasks

import (
	"context"
	"errors"
	"fmt"

	"github.com/quzard/misaka-danmu-server/internal/apperr"
	"github.com/quzard/misaka-danmu-server/internal/taskmanager"
)

// BatchManualImportItem is one entry of a batch manual import request.
type BatchManualImportItem struct {
	EpisodeIndex int    `json:"episodeIndex"`
	Title        string `json:"title"`
	Content      string `json:"content"`
}

// BatchManualImportParams carries every item of a batch over one
// provider into a single Source.
type BatchManualImportParams struct {
	SourceID     int64                   `json:"sourceId"`
	ProviderName string                  `json:"providerName"`
	Items        []BatchManualImportItem `json:"items"`
}

// NewBatchManualImport builds batch_manual_import (spec.md §4.6.6):
// applies manual_import over a list, skipping episodes that already
// exist, pausing the whole task on a rate limit, and letting a single
// item's failure (InsertComments' own transaction rolls back that one
// item's write) not abort the rest of the batch.
func NewBatchManualImport(deps *Deps, params BatchManualImportParams) taskmanager.Factory {
	return func(ctx context.Context, progress taskmanager.ProgressFunc) (apperr.TaskResult, error) {
		var imported, skipped, failed int
		total := maxInt(len(params.Items), 1)

		for i, item := range params.Items {
			if err := progress(ctx, i*100/total, fmt.Sprintf("导入第 %d 集", item.EpisodeIndex), "importing"); err != nil {
				return nil, err
			}

			if _, err := deps.Store.GetEpisodeBySourceIndex(ctx, params.SourceID, item.EpisodeIndex); err == nil {
				skipped++
				continue
			} else if !apperr.Is(err, apperr.NotFound) {
				return nil, err
			}

			single := ManualImportParams{
				SourceID:     params.SourceID,
				Title:        item.Title,
				EpisodeIndex: item.EpisodeIndex,
				Content:      item.Content,
				ProviderName: params.ProviderName,
			}
			result, err := manualImportOne(ctx, deps, single)
			if err != nil {
				var rle *apperr.RateLimitExceeded
				if errors.As(err, &rle) {
					return apperr.TaskPauseForRateLimit{RetryAfterSeconds: rle.RetryAfterSeconds}, nil
				}
				failed++
				continue
			}
			imported += result.Inserted
		}

		if err := progress(ctx, 100, "完成", "done"); err != nil {
			return nil, err
		}
		return apperr.TaskSuccess{
			Message: fmt.Sprintf("imported %d comments, skipped %d duplicate episodes, %d items failed", imported, skipped, failed),
		}, nil
	}
}
