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

// CreateAPIToken inserts a token. Token is expected to already be the
// 20-char base62 string per spec.md §6.5; generation lives in
// internal/api, not here.
func (s *Store) CreateAPIToken(ctx context.Context, t *APIToken) (int64, error) {
	var id int64
	err := s.conn.QueryRowContext(ctx,
		`INSERT INTO api_tokens (id, name, token, enabled, expires_at, daily_call_limit)
		VALUES (nextval('api_tokens_id_seq'), ?, ?, ?, ?, ?)
		RETURNING id`,
		t.Name, t.Token, t.Enabled, t.ExpiresAt, t.DailyCallLimit,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%w: token already exists", apperr.Conflict)
		}
		return 0, fmt.Errorf("insert api token: %w", err)
	}
	return id, nil
}

// GetAPITokenByValue looks up a token by its secret value, the lookup
// path for every inbound API request's auth middleware.
func (s *Store) GetAPITokenByValue(ctx context.Context, token string) (*APIToken, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT id, name, token, enabled, expires_at, daily_call_limit, daily_count, last_reset_date
		FROM api_tokens WHERE token = ?`, token)
	return scanAPIToken(row)
}

func scanAPIToken(row *sql.Row) (*APIToken, error) {
	t := &APIToken{}
	err := row.Scan(&t.ID, &t.Name, &t.Token, &t.Enabled, &t.ExpiresAt, &t.DailyCallLimit, &t.DailyCount, &t.LastResetDate)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NewNotFound("api token", "")
		}
		return nil, fmt.Errorf("scan api token: %w", err)
	}
	return t, nil
}

// ListAPITokens returns every token, newest first, for the admin listing
// of spec.md §4.8's `tokens` contract.
func (s *Store) ListAPITokens(ctx context.Context) ([]*APIToken, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, name, token, enabled, expires_at, daily_call_limit, daily_count, last_reset_date
		FROM api_tokens ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("query api tokens: %w", err)
	}
	defer rows.Close()

	var out []*APIToken
	for rows.Next() {
		t := &APIToken{}
		if err := rows.Scan(&t.ID, &t.Name, &t.Token, &t.Enabled, &t.ExpiresAt,
			&t.DailyCallLimit, &t.DailyCount, &t.LastResetDate); err != nil {
			return nil, fmt.Errorf("scan api token: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ToggleAPITokenEnabled flips a token's enabled flag and returns the new
// value, backing `tokens/{id}/toggle`.
func (s *Store) ToggleAPITokenEnabled(ctx context.Context, tokenID int64) (bool, error) {
	var newStatus bool
	err := s.conn.QueryRowContext(ctx,
		`UPDATE api_tokens SET enabled = NOT enabled WHERE id = ? RETURNING enabled`, tokenID).Scan(&newStatus)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, apperr.NewNotFound("api token", fmt.Sprintf("%d", tokenID))
		}
		return false, fmt.Errorf("toggle api token: %w", err)
	}
	return newStatus, nil
}

// ResetAPIToken zeroes a token's daily usage counter ahead of its normal
// midnight rollover, backing `tokens/{id}/reset`.
func (s *Store) ResetAPIToken(ctx context.Context, tokenID int64) error {
	res, err := s.conn.ExecContext(ctx,
		`UPDATE api_tokens SET daily_count = 0, last_reset_date = CURRENT_DATE WHERE id = ?`, tokenID)
	if err != nil {
		return fmt.Errorf("reset api token: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.NewNotFound("api token", fmt.Sprintf("%d", tokenID))
	}
	return nil
}

// DeleteAPIToken removes a token outright.
func (s *Store) DeleteAPIToken(ctx context.Context, tokenID int64) error {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM api_tokens WHERE id = ?`, tokenID)
	if err != nil {
		return fmt.Errorf("delete api token: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.NewNotFound("api token", fmt.Sprintf("%d", tokenID))
	}
	return nil
}

// RecordTokenUsage resets the daily counter if last_reset_date is before
// today, then increments daily_count. Returns the post-increment count so
// the caller can compare it against daily_call_limit (-1 = unlimited).
func (s *Store) RecordTokenUsage(ctx context.Context, tokenID int64, today time.Time) (int, error) {
	var count int
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE api_tokens SET daily_count = 0, last_reset_date = ?
			WHERE id = ? AND last_reset_date < ?`, today, tokenID, today)
		if err != nil {
			return fmt.Errorf("reset daily counter: %w", err)
		}

		if err := tx.QueryRowContext(ctx,
			`UPDATE api_tokens SET daily_count = daily_count + 1 WHERE id = ? RETURNING daily_count`,
			tokenID).Scan(&count); err != nil {
			return fmt.Errorf("increment daily counter: %w", err)
		}
		return nil
	})
	return count, err
}
