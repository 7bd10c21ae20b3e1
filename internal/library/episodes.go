// SPDX-License-Identifier: AGPL-3.0-or-later

package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/quzard/misaka-danmu-server/internal/apperr"
)

// CreateEpisode inserts an Episode, created on first comment fetch for it
// per spec.md §3.
func (s *Store) CreateEpisode(ctx context.Context, e *Episode) (int64, error) {
	var id int64
	err := s.timedQueryRow(ctx, "insert", "episodes", func() error {
		return s.conn.QueryRowContext(ctx,
			`INSERT INTO episodes (id, source_id, episode_index, title, source_url, provider_episode_id, fetched_at)
			VALUES (nextval('episodes_id_seq'), ?, ?, ?, ?, ?, ?)
			RETURNING id`,
			e.SourceID, e.EpisodeIndex, e.Title, e.SourceURL, e.ProviderEpisodeID, e.FetchedAt,
		).Scan(&id)
	})
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%w: episode %d already exists for source %d", apperr.Conflict, e.EpisodeIndex, e.SourceID)
		}
		return 0, fmt.Errorf("insert episode: %w", err)
	}
	return id, nil
}

func (s *Store) GetEpisodeByID(ctx context.Context, id int64) (*Episode, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT id, source_id, episode_index, title, source_url, provider_episode_id, fetched_at
		FROM episodes WHERE id = ?`, id)
	return scanEpisode(row)
}

// GetEpisodeBySourceIndex enforces the (sourceId, episodeIndex) invariant
// as a lookup: used before inserting to decide create-vs-reuse.
func (s *Store) GetEpisodeBySourceIndex(ctx context.Context, sourceID int64, index int) (*Episode, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT id, source_id, episode_index, title, source_url, provider_episode_id, fetched_at
		FROM episodes WHERE source_id = ? AND episode_index = ?`, sourceID, index)
	return scanEpisode(row)
}

func (s *Store) ListEpisodesForSource(ctx context.Context, sourceID int64) ([]*Episode, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, source_id, episode_index, title, source_url, provider_episode_id, fetched_at
		FROM episodes WHERE source_id = ? ORDER BY episode_index`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("query episodes: %w", err)
	}
	defer rows.Close()

	var out []*Episode
	for rows.Next() {
		e := &Episode{}
		if err := rows.Scan(&e.ID, &e.SourceID, &e.EpisodeIndex, &e.Title, &e.SourceURL, &e.ProviderEpisodeID, &e.FetchedAt); err != nil {
			return nil, fmt.Errorf("scan episode: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEpisode(row *sql.Row) (*Episode, error) {
	e := &Episode{}
	err := row.Scan(&e.ID, &e.SourceID, &e.EpisodeIndex, &e.Title, &e.SourceURL, &e.ProviderEpisodeID, &e.FetchedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NewNotFound("episode", "")
		}
		return nil, fmt.Errorf("scan episode: %w", err)
	}
	return e, nil
}

// ReorderEpisodes rewrites every episode_index for a Source from a
// caller-supplied ordering (episodeID -> new index), preserving the
// (sourceId, episodeIndex) uniqueness invariant throughout by shifting
// every index into a disjoint high range first, then down into place —
// the classic two-phase renumber used to avoid transient collisions on a
// UNIQUE index.
func (s *Store) ReorderEpisodes(ctx context.Context, sourceID int64, newIndexByEpisodeID map[int64]int) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		const offset = 1_000_000
		for episodeID := range newIndexByEpisodeID {
			if _, err := tx.ExecContext(ctx,
				`UPDATE episodes SET episode_index = episode_index + ? WHERE id = ? AND source_id = ?`,
				offset, episodeID, sourceID); err != nil {
				return fmt.Errorf("shift episode %d: %w", episodeID, err)
			}
		}
		for episodeID, newIndex := range newIndexByEpisodeID {
			if _, err := tx.ExecContext(ctx,
				`UPDATE episodes SET episode_index = ? WHERE id = ? AND source_id = ?`,
				newIndex, episodeID, sourceID); err != nil {
				return fmt.Errorf("renumber episode %d: %w", episodeID, err)
			}
		}
		return nil
	})
}

// OffsetEpisodes shifts every episode_index for a Source by delta (e.g.
// "episode 1 in the upstream listing is actually episode 13"), using the
// same two-phase shift as ReorderEpisodes to avoid transient collisions.
func (s *Store) OffsetEpisodes(ctx context.Context, sourceID int64, delta int) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		const offset = 1_000_000
		if _, err := tx.ExecContext(ctx,
			`UPDATE episodes SET episode_index = episode_index + ? WHERE source_id = ?`, offset, sourceID); err != nil {
			return fmt.Errorf("shift episodes: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE episodes SET episode_index = episode_index - ? + ? WHERE source_id = ?`, offset, delta, sourceID); err != nil {
			return fmt.Errorf("apply offset: %w", err)
		}
		return nil
	})
}

// DeleteEpisode removes an Episode and its Comments.
func (s *Store) DeleteEpisode(ctx context.Context, id int64) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM comments WHERE episode_id = ?`, id); err != nil {
			return fmt.Errorf("delete comments: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM episodes WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete episode: %w", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return apperr.NewNotFound("episode", fmt.Sprintf("%d", id))
		}
		return nil
	})
}

// MarkFetched stamps an Episode's fetched_at after a successful comment
// import.
func (s *Store) MarkFetched(ctx context.Context, episodeID int64, fetchedAt time.Time) error {
	_, err := s.conn.ExecContext(ctx, `UPDATE episodes SET fetched_at = ? WHERE id = ?`, fetchedAt, episodeID)
	if err != nil {
		return fmt.Errorf("mark episode fetched: %w", err)
	}
	return nil
}
