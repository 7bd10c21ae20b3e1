// SPDX-License-Identifier: AGPL-3.0-or-later

// Schema Strategy: all columns live in the initial CREATE TABLE statements
// below. There is no public release yet, so there's nothing to migrate
// from — new columns go straight in here until the first release, at
// which point new changes move to migrations.go instead (see the note
// there).
package library

import (
	"context"
	"fmt"
	"time"
)

func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

func (s *Store) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range tableCreationQueries {
		if _, err := s.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("execute query: %s: %w", query, err)
		}
	}
	for _, query := range indexCreationQueries {
		if _, err := s.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("execute index query: %s: %w", query, err)
		}
	}
	return nil
}

// tableCreationQueries holds every table in dependency order (referenced
// tables first) so foreign keys resolve on a clean database.
var tableCreationQueries = []string{
	`CREATE TABLE IF NOT EXISTS works (
		id BIGINT PRIMARY KEY,
		title TEXT NOT NULL,
		type TEXT NOT NULL CHECK (type IN ('movie', 'tv_series')),
		season INTEGER NOT NULL DEFAULT 1,
		year INTEGER,
		image_url TEXT,
		local_image_path TEXT,
		tmdb_id TEXT,
		imdb_id TEXT,
		tvdb_id TEXT,
		douban_id TEXT,
		bangumi_id TEXT,
		tmdb_episode_group_id TEXT,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (title, season)
	);`,

	`CREATE SEQUENCE IF NOT EXISTS works_id_seq START 1;`,

	`CREATE TABLE IF NOT EXISTS sources (
		id BIGINT PRIMARY KEY,
		anime_id BIGINT NOT NULL REFERENCES works(id),
		provider_name TEXT NOT NULL,
		media_id TEXT NOT NULL,
		is_favorited BOOLEAN NOT NULL DEFAULT false,
		incremental_refresh_enabled BOOLEAN NOT NULL DEFAULT true,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (provider_name, media_id)
	);`,

	`CREATE SEQUENCE IF NOT EXISTS sources_id_seq START 1;`,

	`CREATE TABLE IF NOT EXISTS episodes (
		id BIGINT PRIMARY KEY,
		source_id BIGINT NOT NULL REFERENCES sources(id),
		episode_index INTEGER NOT NULL,
		title TEXT NOT NULL,
		source_url TEXT,
		provider_episode_id TEXT NOT NULL,
		fetched_at TIMESTAMP,
		UNIQUE (source_id, episode_index)
	);`,

	`CREATE SEQUENCE IF NOT EXISTS episodes_id_seq START 1;`,

	`CREATE TABLE IF NOT EXISTS comments (
		cid TEXT NOT NULL,
		episode_id BIGINT NOT NULL REFERENCES episodes(id),
		p TEXT NOT NULL,
		m TEXT NOT NULL,
		t DOUBLE NOT NULL,
		PRIMARY KEY (episode_id, cid)
	);`,

	`CREATE TABLE IF NOT EXISTS cache_entries (
		key TEXT PRIMARY KEY,
		value_json TEXT NOT NULL,
		provider TEXT,
		expires_at TIMESTAMP NOT NULL
	);`,

	`CREATE TABLE IF NOT EXISTS app_config (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`,

	`CREATE TABLE IF NOT EXISTS rate_limit_state (
		provider_name TEXT PRIMARY KEY,
		request_count INTEGER NOT NULL DEFAULT 0,
		last_reset_time TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`,

	`CREATE TABLE IF NOT EXISTS task_history (
		task_id UUID PRIMARY KEY,
		title TEXT NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('pending', 'running', 'paused', 'completed', 'failed')),
		progress INTEGER NOT NULL DEFAULT 0,
		description TEXT,
		scheduled_task_id TEXT,
		queue_type TEXT NOT NULL CHECK (queue_type IN ('download', 'management', 'fallback')),
		task_type TEXT,
		task_parameters TEXT,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		finished_at TIMESTAMP
	);`,

	`CREATE TABLE IF NOT EXISTS api_tokens (
		id BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		token TEXT NOT NULL UNIQUE,
		enabled BOOLEAN NOT NULL DEFAULT true,
		expires_at TIMESTAMP,
		daily_call_limit INTEGER NOT NULL DEFAULT -1,
		daily_count INTEGER NOT NULL DEFAULT 0,
		last_reset_date DATE NOT NULL DEFAULT CURRENT_DATE
	);`,

	`CREATE SEQUENCE IF NOT EXISTS api_tokens_id_seq START 1;`,

	`CREATE TABLE IF NOT EXISTS webhook_tasks (
		id BIGINT PRIMARY KEY,
		source_hint TEXT NOT NULL,
		payload_json TEXT NOT NULL,
		queue_type TEXT NOT NULL CHECK (queue_type IN ('download', 'fallback')),
		received_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		execute_at TIMESTAMP NOT NULL,
		dispatched BOOLEAN NOT NULL DEFAULT false
	);`,

	`CREATE SEQUENCE IF NOT EXISTS webhook_tasks_id_seq START 1;`,
}

var indexCreationQueries = []string{
	`CREATE INDEX IF NOT EXISTS idx_sources_anime_id ON sources(anime_id);`,
	`CREATE INDEX IF NOT EXISTS idx_episodes_source_id ON episodes(source_id);`,
	`CREATE INDEX IF NOT EXISTS idx_comments_episode_id ON comments(episode_id);`,
	`CREATE INDEX IF NOT EXISTS idx_cache_entries_expires_at ON cache_entries(expires_at);`,
	`CREATE INDEX IF NOT EXISTS idx_cache_entries_provider ON cache_entries(provider);`,
	`CREATE INDEX IF NOT EXISTS idx_task_history_status ON task_history(status);`,
	`CREATE INDEX IF NOT EXISTS idx_task_history_queue_type ON task_history(queue_type);`,
	`CREATE INDEX IF NOT EXISTS idx_webhook_tasks_due ON webhook_tasks(execute_at) WHERE NOT dispatched;`,
}
