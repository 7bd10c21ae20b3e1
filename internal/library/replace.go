// SPDX-License-Identifier: AGPL-3.0-or-later

package library

import (
	"context"
	"database/sql"
	"fmt"
)

// NewEpisodeWithComments is one episode plus the comments collected for it,
// the in-memory unit ReplaceSourceEpisodes writes atomically.
type NewEpisodeWithComments struct {
	Episode  *Episode
	Comments []*Comment
}

// ClearSourceData removes a Source's episodes and comments while
// preserving the Source row itself, so the binding (and its favorite
// flag) survives a data wipe.
func (s *Store) ClearSourceData(ctx context.Context, sourceID int64) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM comments WHERE episode_id IN (SELECT id FROM episodes WHERE source_id = ?)`, sourceID); err != nil {
			return fmt.Errorf("delete source comments: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM episodes WHERE source_id = ?`, sourceID); err != nil {
			return fmt.Errorf("delete source episodes: %w", err)
		}
		return nil
	})
}

// ReplaceSourceEpisodes implements full_refresh's "fetch-then-replace":
// every existing episode (and, by cascade, comment) for sourceID is
// deleted and the freshly fetched set is written in its place, all inside
// one transaction so a crash mid-write never leaves a source half-updated
// (spec.md §4.6.6 full_refresh).
func (s *Store) ReplaceSourceEpisodes(ctx context.Context, sourceID int64, episodes []NewEpisodeWithComments) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM comments WHERE episode_id IN (SELECT id FROM episodes WHERE source_id = ?)`, sourceID); err != nil {
			return fmt.Errorf("delete old comments: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM episodes WHERE source_id = ?`, sourceID); err != nil {
			return fmt.Errorf("delete old episodes: %w", err)
		}

		for _, item := range episodes {
			var episodeID int64
			if err := tx.QueryRowContext(ctx,
				`INSERT INTO episodes (id, source_id, episode_index, title, source_url, provider_episode_id, fetched_at)
				VALUES (nextval('episodes_id_seq'), ?, ?, ?, ?, ?, ?)
				RETURNING id`,
				sourceID, item.Episode.EpisodeIndex, item.Episode.Title, item.Episode.SourceURL,
				item.Episode.ProviderEpisodeID, item.Episode.FetchedAt,
			).Scan(&episodeID); err != nil {
				return fmt.Errorf("insert episode %d: %w", item.Episode.EpisodeIndex, err)
			}

			stmt, err := tx.PrepareContext(ctx,
				`INSERT INTO comments (cid, episode_id, p, m, t) VALUES (?, ?, ?, ?, ?) ON CONFLICT (episode_id, cid) DO NOTHING`)
			if err != nil {
				return fmt.Errorf("prepare comment insert: %w", err)
			}
			for _, c := range item.Comments {
				if _, err := stmt.ExecContext(ctx, c.CID, episodeID, c.P, c.M, c.T); err != nil {
					stmt.Close()
					return fmt.Errorf("insert comment %s: %w", c.CID, err)
				}
			}
			stmt.Close()
		}
		return nil
	})
}
