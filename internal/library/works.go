// SPDX-License-Identifier: AGPL-3.0-or-later

package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/quzard/misaka-danmu-server/internal/apperr"
	"github.com/quzard/misaka-danmu-server/internal/metrics"
)

// CreateWork inserts a new Work. Title+Season collisions surface as
// apperr.Conflict so callers (import tasks) can look up the existing row
// instead of failing outright.
func (s *Store) CreateWork(ctx context.Context, w *Work) (int64, error) {
	var id int64
	err := s.timedQueryRow(ctx, "insert", "works", func() error {
		return s.conn.QueryRowContext(ctx,
			`INSERT INTO works (id, title, type, season, year, image_url, local_image_path,
				tmdb_id, imdb_id, tvdb_id, douban_id, bangumi_id, tmdb_episode_group_id)
			VALUES (nextval('works_id_seq'), ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			RETURNING id`,
			w.Title, string(w.Type), w.Season, w.Year, w.ImageURL, w.LocalImagePath,
			w.TMDBID, w.IMDBID, w.TVDBID, w.DoubanID, w.BangumiID, w.TMDBEpisodeGroupID,
		).Scan(&id)
	})
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%w: work %q season %d already exists", apperr.Conflict, w.Title, w.Season)
		}
		return 0, fmt.Errorf("insert work: %w", err)
	}
	return id, nil
}

// UpdateMetadataIfEmpty fills in external IDs on a Work only where the
// stored value is still NULL, so a later import can enrich a Work
// without clobbering IDs an earlier import (or the operator) already set.
func (s *Store) UpdateMetadataIfEmpty(ctx context.Context, workID int64, tmdbID, imdbID, tvdbID, doubanID *string) error {
	_, err := s.conn.ExecContext(ctx,
		`UPDATE works SET
			tmdb_id = COALESCE(tmdb_id, ?),
			imdb_id = COALESCE(imdb_id, ?),
			tvdb_id = COALESCE(tvdb_id, ?),
			douban_id = COALESCE(douban_id, ?)
		WHERE id = ?`,
		tmdbID, imdbID, tvdbID, doubanID, workID)
	if err != nil {
		return fmt.Errorf("update work metadata: %w", err)
	}
	return nil
}

// GetWorkByID returns apperr.NotFound if no row matches.
func (s *Store) GetWorkByID(ctx context.Context, id int64) (*Work, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT id, title, type, season, year, image_url, local_image_path,
			tmdb_id, imdb_id, tvdb_id, douban_id, bangumi_id, tmdb_episode_group_id, created_at
		FROM works WHERE id = ?`, id)
	return scanWork(row)
}

// GetWorkByTitleSeason looks up a Work by its unique (title, season) key.
func (s *Store) GetWorkByTitleSeason(ctx context.Context, title string, season int) (*Work, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT id, title, type, season, year, image_url, local_image_path,
			tmdb_id, imdb_id, tvdb_id, douban_id, bangumi_id, tmdb_episode_group_id, created_at
		FROM works WHERE title = ? AND season = ?`, title, season)
	return scanWork(row)
}

func scanWork(row *sql.Row) (*Work, error) {
	w := &Work{}
	var workType string
	err := row.Scan(&w.ID, &w.Title, &workType, &w.Season, &w.Year, &w.ImageURL, &w.LocalImagePath,
		&w.TMDBID, &w.IMDBID, &w.TVDBID, &w.DoubanID, &w.BangumiID, &w.TMDBEpisodeGroupID, &w.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NewNotFound("work", "")
		}
		return nil, fmt.Errorf("scan work: %w", err)
	}
	w.Type = WorkType(workType)
	return w, nil
}

// ListWorks returns a page of Works ordered newest-first, optionally
// filtered to titles containing keyword, alongside the total matching
// row count — backing the `library` listing contract of spec.md §4.8.
func (s *Store) ListWorks(ctx context.Context, keyword string, offset, limit int) ([]*Work, int64, error) {
	where := ""
	var args []any
	if keyword != "" {
		where = "WHERE title LIKE ?"
		args = append(args, "%"+keyword+"%")
	}

	var total int64
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM works %s`, where)
	if err := s.conn.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count works: %w", err)
	}

	listArgs := append(append([]any{}, args...), limit, offset)
	query := fmt.Sprintf(`SELECT id, title, type, season, year, image_url, local_image_path,
		tmdb_id, imdb_id, tvdb_id, douban_id, bangumi_id, tmdb_episode_group_id, created_at
		FROM works %s ORDER BY created_at DESC LIMIT ? OFFSET ?`, where)
	rows, err := s.conn.QueryContext(ctx, query, listArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("list works: %w", err)
	}
	defer rows.Close()

	var out []*Work
	for rows.Next() {
		w := &Work{}
		var workType string
		if err := rows.Scan(&w.ID, &w.Title, &workType, &w.Season, &w.Year, &w.ImageURL, &w.LocalImagePath,
			&w.TMDBID, &w.IMDBID, &w.TVDBID, &w.DoubanID, &w.BangumiID, &w.TMDBEpisodeGroupID, &w.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan work: %w", err)
		}
		w.Type = WorkType(workType)
		out = append(out, w)
	}
	return out, total, rows.Err()
}

// DeleteWork removes a Work and, by foreign-key cascade through Sources
// and Episodes, every Comment that belonged to it. Per spec.md §3, Works
// are only ever deleted explicitly.
func (s *Store) DeleteWork(ctx context.Context, id int64) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM comments WHERE episode_id IN (
				SELECT e.id FROM episodes e
				JOIN sources src ON e.source_id = src.id
				WHERE src.anime_id = ?
			)`, id); err != nil {
			return fmt.Errorf("delete comments: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM episodes WHERE source_id IN (SELECT id FROM sources WHERE anime_id = ?)`, id); err != nil {
			return fmt.Errorf("delete episodes: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM sources WHERE anime_id = ?`, id); err != nil {
			return fmt.Errorf("delete sources: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM works WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete work: %w", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return apperr.NewNotFound("work", fmt.Sprintf("%d", id))
		}
		return nil
	})
}

// timedQueryRow records internal/metrics DB query duration and error
// counters around a single-row write (QueryRowContext), since
// database/sql has no ExecContext variant that returns a generated id for
// DuckDB's RETURNING clause.
func (s *Store) timedQueryRow(ctx context.Context, operation, table string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.RecordDBQuery(operation, table, time.Since(start), err)
	return err
}
