// SPDX-License-Identifier: AGPL-3.0-or-later

package library

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/quzard/misaka-danmu-server/internal/metrics"
)

// InsertCommentsResult reports how many of a batch were newly inserted
// versus already present, for the import task's terminal message and for
// internal/metrics.
type InsertCommentsResult struct {
	Inserted     int
	Deduplicated int
}

// InsertComments idempotently inserts a batch of comments for one
// episode. (episodeId, cid) uniqueness means a duplicate cid from a
// re-fetch is silently skipped rather than erroring, per spec.md §3.
func (s *Store) InsertComments(ctx context.Context, episodeID int64, provider string, comments []*Comment) (InsertCommentsResult, error) {
	var result InsertCommentsResult

	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO comments (cid, episode_id, p, m, t) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (episode_id, cid) DO NOTHING`)
		if err != nil {
			return fmt.Errorf("prepare insert: %w", err)
		}
		defer stmt.Close()

		for _, c := range comments {
			res, err := stmt.ExecContext(ctx, c.CID, episodeID, c.P, c.M, c.T)
			if err != nil {
				return fmt.Errorf("insert comment %s: %w", c.CID, err)
			}
			n, _ := res.RowsAffected()
			if n > 0 {
				result.Inserted++
			} else {
				result.Deduplicated++
			}
		}
		return nil
	})
	if err != nil {
		return result, err
	}

	metrics.RecordCommentsInserted(provider, result.Inserted)
	metrics.RecordCommentsDeduplicated(provider, result.Deduplicated)
	return result, nil
}

// GetExistingCommentCids returns the set of cids already stored for an
// episode, so incremental refreshes can diff fetched cids against it
// before inserting.
func (s *Store) GetExistingCommentCids(ctx context.Context, episodeID int64) (map[string]struct{}, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT cid FROM comments WHERE episode_id = ?`, episodeID)
	if err != nil {
		return nil, fmt.Errorf("list comment cids: %w", err)
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var cid string
		if err := rows.Scan(&cid); err != nil {
			return nil, fmt.Errorf("scan cid: %w", err)
		}
		out[cid] = struct{}{}
	}
	return out, rows.Err()
}

// ListCommentsForEpisode returns every Comment for an episode ordered by
// t, the shape the XML/wire exporter in internal/comment consumes.
func (s *Store) ListCommentsForEpisode(ctx context.Context, episodeID int64) ([]*Comment, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT cid, episode_id, p, m, t FROM comments WHERE episode_id = ? ORDER BY t`, episodeID)
	if err != nil {
		return nil, fmt.Errorf("query comments: %w", err)
	}
	defer rows.Close()

	var out []*Comment
	for rows.Next() {
		c := &Comment{}
		if err := rows.Scan(&c.CID, &c.EpisodeID, &c.P, &c.M, &c.T); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CountCommentsForEpisode is used by the "zero-comment fetch keeps old
// data" decision (DESIGN.md Open Question 2): callers check this before
// and after a fetch to detect the zero-new-comment case.
func (s *Store) CountCommentsForEpisode(ctx context.Context, episodeID int64) (int, error) {
	var count int
	err := s.conn.QueryRowContext(ctx, `SELECT count(*) FROM comments WHERE episode_id = ?`, episodeID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count comments: %w", err)
	}
	return count, nil
}
