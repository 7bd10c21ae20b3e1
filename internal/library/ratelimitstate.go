// SPDX-License-Identifier: AGPL-3.0-or-later

package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// RateLimitState is one row of rate_limit_state: a fixed-window request
// counter for either a named provider or the synthetic "__global__" key
// internal/ratelimit uses for the process-wide quota.
type RateLimitState struct {
	ProviderName  string
	RequestCount  int
	LastResetTime time.Time
}

// GetOrCreateRateLimitStateTx reads providerName's row inside tx, creating
// a zeroed one if it doesn't exist yet. Callers that need the
// read-then-maybe-reset-then-compare sequence from spec.md §4.2 to be
// atomic must run this and the follow-up Reset/Increment calls inside the
// same *sql.Tx (see Store.WithTx).
func (s *Store) GetOrCreateRateLimitStateTx(ctx context.Context, tx *sql.Tx, providerName string) (*RateLimitState, error) {
	state, err := scanRateLimitState(tx.QueryRowContext(ctx,
		`SELECT provider_name, request_count, last_reset_time FROM rate_limit_state WHERE provider_name = ?`,
		providerName))
	if err == nil {
		return state, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("query rate_limit_state: %w", err)
	}

	now := time.Now()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO rate_limit_state (provider_name, request_count, last_reset_time) VALUES (?, 0, ?)
		ON CONFLICT (provider_name) DO NOTHING`, providerName, now); err != nil {
		return nil, fmt.Errorf("insert rate_limit_state: %w", err)
	}
	return scanRateLimitState(tx.QueryRowContext(ctx,
		`SELECT provider_name, request_count, last_reset_time FROM rate_limit_state WHERE provider_name = ?`,
		providerName))
}

func scanRateLimitState(row *sql.Row) (*RateLimitState, error) {
	st := &RateLimitState{}
	if err := row.Scan(&st.ProviderName, &st.RequestCount, &st.LastResetTime); err != nil {
		return nil, err
	}
	return st, nil
}

// ResetRateLimitWindowTx zeroes providerName's counter and stamps
// resetTime as the new window start.
func (s *Store) ResetRateLimitWindowTx(ctx context.Context, tx *sql.Tx, providerName string, resetTime time.Time) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE rate_limit_state SET request_count = 0, last_reset_time = ? WHERE provider_name = ?`,
		resetTime, providerName)
	if err != nil {
		return fmt.Errorf("reset rate_limit_state: %w", err)
	}
	return nil
}

// ListRateLimitStates returns every rate_limit_state row, including the
// synthetic "__global__" key, for the rate-limit/status read (spec.md
// §4.8). Unlike the Tx helpers above this is a plain read with no
// reset-on-read semantics; that side effect belongs to Limiter.Check.
func (s *Store) ListRateLimitStates(ctx context.Context) ([]*RateLimitState, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT provider_name, request_count, last_reset_time FROM rate_limit_state ORDER BY provider_name`)
	if err != nil {
		return nil, fmt.Errorf("query rate_limit_state: %w", err)
	}
	defer rows.Close()

	var out []*RateLimitState
	for rows.Next() {
		st := &RateLimitState{}
		if err := rows.Scan(&st.ProviderName, &st.RequestCount, &st.LastResetTime); err != nil {
			return nil, fmt.Errorf("scan rate_limit_state: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// IncrementRateLimitCountTx bumps providerName's counter by one.
func (s *Store) IncrementRateLimitCountTx(ctx context.Context, tx *sql.Tx, providerName string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE rate_limit_state SET request_count = request_count + 1 WHERE provider_name = ?`,
		providerName)
	if err != nil {
		return fmt.Errorf("increment rate_limit_state: %w", err)
	}
	return nil
}
