// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"time"

	"github.com/quzard/misaka-danmu-server/internal/library"
	"github.com/quzard/misaka-danmu-server/internal/provider"
)

// SearchResponse is the `search/provider` contract of spec.md §4.8.
type SearchResponse struct {
	Results       []provider.SearchInfo `json:"results"`
	SearchSeason  *int                  `json:"searchSeason,omitempty"`
	SearchEpisode *int                  `json:"searchEpisode,omitempty"`
}

// CommentsResponse is the `comments/{episodeId}` contract.
type CommentsResponse struct {
	Total int                `json:"total"`
	List  []*library.Comment `json:"list"`
}

// ImportRequest is the `import(request)` contract. It mirrors
// tasks.GenericImportParams field-for-field since the task body consumes
// exactly this shape as its cached task_parameters.
type ImportRequest struct {
	Provider           string           `json:"provider" validate:"required"`
	MediaID            string           `json:"mediaId" validate:"required"`
	Title              string           `json:"title" validate:"required"`
	Type               library.WorkType `json:"type" validate:"required,oneof=movie tv_series"`
	Season             int              `json:"season" validate:"min=1"`
	Year               *int             `json:"year,omitempty"`
	TargetEpisodeIndex *int             `json:"targetEpisodeIndex,omitempty"`
	ImageURL           string           `json:"image,omitempty"`
	TMDBID             *string          `json:"tmdbId,omitempty"`
	IMDBID             *string          `json:"imdbId,omitempty"`
	TVDBID             *string          `json:"tvdbId,omitempty"`
	DoubanID           *string          `json:"doubanId,omitempty"`
	BangumiID          *string          `json:"bangumiId,omitempty"`
	TMDBEpisodeGroupID *string          `json:"tmdbEpisodeGroupId,omitempty"`
}

// ImportResponse is the `import(request) -> {taskId}` contract.
type ImportResponse struct {
	TaskID string `json:"taskId"`
}

// EditedImportEpisode is one entry of a caller-edited episode list.
type EditedImportEpisode struct {
	EpisodeID    string `json:"episodeId" validate:"required"`
	Title        string `json:"title" validate:"required"`
	EpisodeIndex int    `json:"episodeIndex" validate:"min=1"`
	URL          string `json:"url,omitempty"`
}

// EditedImportRequest imports exactly the episodes the user kept after
// reviewing a provider listing, skipping the upstream re-list.
type EditedImportRequest struct {
	Provider string                `json:"provider" validate:"required"`
	MediaID  string                `json:"mediaId" validate:"required"`
	Title    string                `json:"title" validate:"required"`
	Type     library.WorkType      `json:"type" validate:"required,oneof=movie tv_series"`
	Season   int                   `json:"season" validate:"min=1"`
	Year     *int                  `json:"year,omitempty"`
	ImageURL string                `json:"image,omitempty"`
	TMDBID   *string               `json:"tmdbId,omitempty"`
	DoubanID *string               `json:"doubanId,omitempty"`
	Episodes []EditedImportEpisode `json:"episodes" validate:"required,min=1,dive"`
}

// WorkResponse is one row of the `library`/`library/anime/{id}` contract.
type WorkResponse struct {
	ID                 int64            `json:"id"`
	Title              string           `json:"title"`
	Type               library.WorkType `json:"type"`
	Season             int              `json:"season"`
	Year               *int             `json:"year,omitempty"`
	ImageURL           *string          `json:"image,omitempty"`
	TMDBID             *string          `json:"tmdbId,omitempty"`
	IMDBID             *string          `json:"imdbId,omitempty"`
	TVDBID             *string          `json:"tvdbId,omitempty"`
	DoubanID           *string          `json:"doubanId,omitempty"`
	BangumiID          *string          `json:"bangumiId,omitempty"`
	TMDBEpisodeGroupID *string          `json:"tmdbEpisodeGroupId,omitempty"`
	CreatedAt          time.Time        `json:"createdAt"`
	Sources            []SourceResponse `json:"sources,omitempty"`
}

// SourceResponse is one Source bound to a Work.
type SourceResponse struct {
	ID                        int64     `json:"id"`
	ProviderName              string    `json:"providerName"`
	MediaID                   string    `json:"mediaId"`
	IsFavorited               bool      `json:"isFavorited"`
	IncrementalRefreshEnabled bool      `json:"incrementalRefreshEnabled"`
	CreatedAt                 time.Time `json:"createdAt"`
}

// EpisodeResponse is one Episode of a Source.
type EpisodeResponse struct {
	ID                int64      `json:"id"`
	EpisodeIndex      int        `json:"episodeIndex"`
	Title             string     `json:"title"`
	SourceURL         *string    `json:"sourceUrl,omitempty"`
	ProviderEpisodeID string     `json:"providerEpisodeId"`
	FetchedAt         *time.Time `json:"fetchedAt,omitempty"`
}

// WorkListResponse is the `library` listing contract.
type WorkListResponse struct {
	Total int64          `json:"total"`
	List  []WorkResponse `json:"list"`
}

// ReassociateSourceRequest moves a Source to a different Work.
type ReassociateSourceRequest struct {
	DestWorkID int64 `json:"destWorkId" validate:"required"`
}

// ReorderEpisodesRequest triggers reorder_episodes on a Source.
type ReorderEpisodesRequest struct {
	SourceID int64 `json:"sourceId" validate:"required"`
}

// OffsetEpisodesRequest triggers offset_episodes on a Source.
type OffsetEpisodesRequest struct {
	SourceID int64 `json:"sourceId" validate:"required"`
	Offset   int   `json:"offset"`
}

// ManualImportRequest triggers manual_import for one episode's raw
// comment content.
type ManualImportRequest struct {
	SourceID     int64  `json:"sourceId" validate:"required"`
	Title        string `json:"title" validate:"required"`
	EpisodeIndex int    `json:"episodeIndex" validate:"min=1"`
	Content      string `json:"content" validate:"required"`
	ProviderName string `json:"providerName" validate:"required"`
}

// TaskResponse is one row of the `tasks(status?, page?)` contract.
type TaskResponse struct {
	TaskID      string              `json:"taskId"`
	Title       string              `json:"title"`
	Status      library.TaskStatus  `json:"status"`
	Progress    int                 `json:"progress"`
	Description string              `json:"description"`
	QueueType   library.QueueType   `json:"queueType"`
	CreatedAt   time.Time           `json:"createdAt"`
	FinishedAt  *time.Time          `json:"finishedAt,omitempty"`
}

// TaskListResponse is `tasks(status?, page?) -> {total, list}`.
type TaskListResponse struct {
	Total int64          `json:"total"`
	List  []TaskResponse `json:"list"`
}

// ProviderRateLimitStatus is one row of RateLimitStatusResponse.Providers.
type ProviderRateLimitStatus struct {
	ProviderName string `json:"providerName"`
	RequestCount int    `json:"requestCount"`
	// Quota is omitted (renders as the JSON spec calls "∞") for an
	// unlimited provider.
	Quota *int `json:"quota,omitempty"`
}

// RateLimitStatusResponse is the `rate-limit/status` contract.
type RateLimitStatusResponse struct {
	GlobalEnabled       bool                      `json:"globalEnabled"`
	VerificationFailed  bool                      `json:"verificationFailed"`
	GlobalRequestCount  int                       `json:"globalRequestCount"`
	GlobalLimit         int                       `json:"globalLimit"`
	GlobalPeriodSeconds int                       `json:"globalPeriod"`
	SecondsUntilReset   int                       `json:"secondsUntilReset"`
	Providers           []ProviderRateLimitStatus `json:"providers"`
}

// TokenCreateRequest is the `tokens` creation contract.
type TokenCreateRequest struct {
	Name           string     `json:"name" validate:"required,min=1,max=200"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty"`
	DailyCallLimit int        `json:"dailyCallLimit" validate:"min=-1"`
}

// TokenResponse is one api_tokens row. Token is only populated in the
// create response — the secret is shown once, like a personal access
// token.
type TokenResponse struct {
	ID             int64      `json:"id"`
	Name           string     `json:"name"`
	Token          string     `json:"token,omitempty"`
	Enabled        bool       `json:"enabled"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty"`
	DailyCallLimit int        `json:"dailyCallLimit"`
	DailyCount     int        `json:"dailyCount"`
	LastResetDate  time.Time  `json:"lastResetDate"`
}

// TokenListResponse is the `tokens` listing contract.
type TokenListResponse struct {
	List []TokenResponse `json:"list"`
}

// TokenToggleResponse is the `tokens/{id}/toggle` contract.
type TokenToggleResponse struct {
	Enabled bool `json:"enabled"`
}

// UARuleResponse is one provider's configurable field value, the
// `ua-rules` administrative contract.
type UARuleResponse struct {
	ProviderName string `json:"providerName"`
	Key          string `json:"key"`
	Label        string `json:"label"`
	Kind         string `json:"kind"`
	Hint         string `json:"hint,omitempty"`
	Value        string `json:"value"`
}

// UARuleListResponse is the `ua-rules` listing contract.
type UARuleListResponse struct {
	List []UARuleResponse `json:"list"`
}

// UARuleUpdateRequest sets one configurable field's value.
type UARuleUpdateRequest struct {
	Value string `json:"value"`
}

// WebhookEnqueueRequest is the body a webhook caller posts: a raw
// GenericImportParams-shaped payload plus the queue/delay decision
// spec.md §4.8's last bullet leaves to the caller.
type WebhookEnqueueRequest struct {
	SourceHint string            `json:"sourceHint" validate:"required"`
	Queue      library.QueueType `json:"queue" validate:"required,oneof=download fallback"`
	DelayHours float64           `json:"delayHours" validate:"min=0"`
	Payload    ImportRequest     `json:"payload" validate:"required"`
}

// WebhookEnqueueResponse reports the persisted reception row's id.
type WebhookEnqueueResponse struct {
	WebhookTaskID int64 `json:"webhookTaskId"`
}
