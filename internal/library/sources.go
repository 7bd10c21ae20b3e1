// SPDX-License-Identifier: AGPL-3.0-or-later

package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/quzard/misaka-danmu-server/internal/apperr"
)

// CreateSource links a provider's media id to a Work. (ProviderName,
// MediaID) is globally unique per spec.md §3.
func (s *Store) CreateSource(ctx context.Context, src *Source) (int64, error) {
	var id int64
	err := s.timedQueryRow(ctx, "insert", "sources", func() error {
		return s.conn.QueryRowContext(ctx,
			`INSERT INTO sources (id, anime_id, provider_name, media_id, is_favorited, incremental_refresh_enabled)
			VALUES (nextval('sources_id_seq'), ?, ?, ?, ?, ?)
			RETURNING id`,
			src.AnimeID, src.ProviderName, src.MediaID, src.IsFavorited, src.IncrementalRefreshEnabled,
		).Scan(&id)
	})
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%w: source %s/%s already linked", apperr.Conflict, src.ProviderName, src.MediaID)
		}
		return 0, fmt.Errorf("insert source: %w", err)
	}
	return id, nil
}

// GetSourceByProviderMediaID is the lookup import tasks use to decide
// whether a Source already exists before creating one.
func (s *Store) GetSourceByProviderMediaID(ctx context.Context, providerName, mediaID string) (*Source, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT id, anime_id, provider_name, media_id, is_favorited, incremental_refresh_enabled, created_at
		FROM sources WHERE provider_name = ? AND media_id = ?`, providerName, mediaID)
	return scanSource(row)
}

func (s *Store) GetSourceByID(ctx context.Context, id int64) (*Source, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT id, anime_id, provider_name, media_id, is_favorited, incremental_refresh_enabled, created_at
		FROM sources WHERE id = ?`, id)
	return scanSource(row)
}

// ListSourcesForWork returns every Source bound to a Work, in creation
// order.
func (s *Store) ListSourcesForWork(ctx context.Context, workID int64) ([]*Source, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, anime_id, provider_name, media_id, is_favorited, incremental_refresh_enabled, created_at
		FROM sources WHERE anime_id = ? ORDER BY created_at`, workID)
	if err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}
	defer rows.Close()

	var out []*Source
	for rows.Next() {
		src := &Source{}
		if err := rows.Scan(&src.ID, &src.AnimeID, &src.ProviderName, &src.MediaID,
			&src.IsFavorited, &src.IncrementalRefreshEnabled, &src.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

func scanSource(row *sql.Row) (*Source, error) {
	src := &Source{}
	err := row.Scan(&src.ID, &src.AnimeID, &src.ProviderName, &src.MediaID,
		&src.IsFavorited, &src.IncrementalRefreshEnabled, &src.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NewNotFound("source", "")
		}
		return nil, fmt.Errorf("scan source: %w", err)
	}
	return src, nil
}

// SetFavorited enforces the "at most one favorited Source per Work"
// invariant: it clears any existing favorite on the Work before setting
// the new one, inside one transaction.
func (s *Store) SetFavorited(ctx context.Context, workID, sourceID int64) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE sources SET is_favorited = false WHERE anime_id = ? AND is_favorited = true`, workID); err != nil {
			return fmt.Errorf("clear existing favorite: %w", err)
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE sources SET is_favorited = true WHERE id = ? AND anime_id = ?`, sourceID, workID)
		if err != nil {
			return fmt.Errorf("set favorite: %w", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return apperr.NewNotFound("source", fmt.Sprintf("%d", sourceID))
		}
		return nil
	})
}

// ToggleFavorited flips a Source's favorite flag and returns the new
// value (spec.md §4.4 "toggleSourceFavoriteStatus(sourceId) -> new_status").
// Turning a Source on clears any other favorite on the same Work first,
// preserving the "at most one favorited per Work" invariant; turning one
// off is a plain flip.
func (s *Store) ToggleFavorited(ctx context.Context, sourceID int64) (bool, error) {
	var newStatus bool
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		var workID int64
		var current bool
		if err := tx.QueryRowContext(ctx,
			`SELECT anime_id, is_favorited FROM sources WHERE id = ?`, sourceID).Scan(&workID, &current); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperr.NewNotFound("source", fmt.Sprintf("%d", sourceID))
			}
			return fmt.Errorf("load source: %w", err)
		}

		newStatus = !current
		if newStatus {
			if _, err := tx.ExecContext(ctx,
				`UPDATE sources SET is_favorited = false WHERE anime_id = ? AND is_favorited = true`, workID); err != nil {
				return fmt.Errorf("clear existing favorite: %w", err)
			}
		}
		if _, err := tx.ExecContext(ctx, `UPDATE sources SET is_favorited = ? WHERE id = ?`, newStatus, sourceID); err != nil {
			return fmt.Errorf("toggle favorite: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return newStatus, nil
}

// ReassociateSource moves a Source from one Work to another. When the
// moved Source is favorited and the destination Work already has a
// favorited Source, the destination's favorite wins and the moved
// Source's flag is cleared — the "target wins" resolution recorded in
// DESIGN.md for this open question.
func (s *Store) ReassociateSource(ctx context.Context, sourceID, destWorkID int64) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		var srcFavorited bool
		if err := tx.QueryRowContext(ctx, `SELECT is_favorited FROM sources WHERE id = ?`, sourceID).Scan(&srcFavorited); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperr.NewNotFound("source", fmt.Sprintf("%d", sourceID))
			}
			return fmt.Errorf("load source: %w", err)
		}

		if srcFavorited {
			var destHasFavorite bool
			if err := tx.QueryRowContext(ctx,
				`SELECT EXISTS(SELECT 1 FROM sources WHERE anime_id = ? AND is_favorited = true)`,
				destWorkID).Scan(&destHasFavorite); err != nil {
				return fmt.Errorf("check destination favorite: %w", err)
			}
			if destHasFavorite {
				if _, err := tx.ExecContext(ctx, `UPDATE sources SET is_favorited = false WHERE id = ?`, sourceID); err != nil {
					return fmt.Errorf("clear moved favorite: %w", err)
				}
			}
		}

		if _, err := tx.ExecContext(ctx, `UPDATE sources SET anime_id = ? WHERE id = ?`, destWorkID, sourceID); err != nil {
			return fmt.Errorf("reassociate source: %w", err)
		}
		return nil
	})
}

// DeleteSource removes a Source and cascades to its Episodes/Comments.
func (s *Store) DeleteSource(ctx context.Context, id int64) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM comments WHERE episode_id IN (SELECT id FROM episodes WHERE source_id = ?)`, id); err != nil {
			return fmt.Errorf("delete comments: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM episodes WHERE source_id = ?`, id); err != nil {
			return fmt.Errorf("delete episodes: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM sources WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete source: %w", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return apperr.NewNotFound("source", fmt.Sprintf("%d", id))
		}
		return nil
	})
}
