// SPDX-License-Identifier: AGPL-3.0-or-later

package library

import "time"

// WorkType distinguishes the two media shapes a Work can represent.
type WorkType string

const (
	WorkTypeMovie    WorkType = "movie"
	WorkTypeTVSeries WorkType = "tv_series"
)

// Work is the canonical title + season a set of provider Sources point at.
type Work struct {
	ID                 int64
	Title              string
	Type               WorkType
	Season             int
	Year               *int
	ImageURL           *string
	LocalImagePath     *string
	TMDBID             *string
	IMDBID             *string
	TVDBID             *string
	DoubanID           *string
	BangumiID          *string
	TMDBEpisodeGroupID *string
	CreatedAt          time.Time
}

// Source binds a Work to one upstream provider's media id.
type Source struct {
	ID                        int64
	AnimeID                   int64
	ProviderName              string
	MediaID                   string
	IsFavorited               bool
	IncrementalRefreshEnabled bool
	CreatedAt                 time.Time
}

// Episode is one installment of a Source, addressed by its 1-based index.
type Episode struct {
	ID                int64
	SourceID          int64
	EpisodeIndex      int
	Title             string
	SourceURL         *string
	ProviderEpisodeID string
	FetchedAt         *time.Time
}

// Comment is a single danmaku entry in the wire format described by
// spec.md §3: p is the five-field CSV (time, mode, font size, color,
// provider tag), m is the text, t mirrors p's time field for indexing.
type Comment struct {
	CID       string
	EpisodeID int64
	P         string
	M         string
	T         float64
}

// TaskStatus is the lifecycle state of a task_history row.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusPaused    TaskStatus = "paused"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// QueueType is one of the task manager's three queues.
type QueueType string

const (
	QueueDownload   QueueType = "download"
	QueueManagement QueueType = "management"
	QueueFallback   QueueType = "fallback"
)

// TaskHistory is one row of the task_history table. TaskType and
// TaskParameters cache enough of the originating submission (a registered
// factory name and its JSON-encoded arguments) that a restart can rebuild
// and resubmit a task that was running or paused when the process died.
type TaskHistory struct {
	TaskID          string
	Title           string
	Status          TaskStatus
	Progress        int
	Description     string
	ScheduledTaskID *string
	QueueType       QueueType
	TaskType        *string
	TaskParameters  *string
	CreatedAt       time.Time
	FinishedAt      *time.Time
}

// APIToken is an administrative access token with a per-day call budget.
type APIToken struct {
	ID              int64
	Name            string
	Token           string
	Enabled         bool
	ExpiresAt       *time.Time
	DailyCallLimit  int
	DailyCount      int
	LastResetDate   time.Time
}

// CacheEntry is a TTL-bound key/value row, optionally tagged with the
// provider that produced it for bulk clear-by-provider.
type CacheEntry struct {
	Key       string
	ValueJSON string
	Provider  *string
	ExpiresAt time.Time
}
