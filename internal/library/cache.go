// SPDX-License-Identifier: AGPL-3.0-or-later

package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PutCacheEntry upserts a TTL-bound cache row.
func (s *Store) PutCacheEntry(ctx context.Context, key, valueJSON string, provider *string, expiresAt time.Time) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO cache_entries (key, value_json, provider, expires_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value_json = excluded.value_json, provider = excluded.provider, expires_at = excluded.expires_at`,
		key, valueJSON, provider, expiresAt)
	if err != nil {
		return fmt.Errorf("put cache entry: %w", err)
	}
	return nil
}

// GetCacheEntry returns the row only if it hasn't expired; an expired or
// absent row is reported the same way (sql.ErrNoRows wrapped below),
// since callers treat both as a cache miss.
func (s *Store) GetCacheEntry(ctx context.Context, key string, now time.Time) (string, bool, error) {
	var value string
	err := s.conn.QueryRowContext(ctx,
		`SELECT value_json FROM cache_entries WHERE key = ? AND expires_at > ?`, key, now).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get cache entry: %w", err)
	}
	return value, true, nil
}

// ClearAllCache deletes every cache row and reports how many went.
func (s *Store) ClearAllCache(ctx context.Context) (int64, error) {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM cache_entries`)
	if err != nil {
		return 0, fmt.Errorf("clear all cache: %w", err)
	}
	return res.RowsAffected()
}

// ClearCacheByProvider bulk-deletes every cache row tagged with provider.
func (s *Store) ClearCacheByProvider(ctx context.Context, provider string) (int64, error) {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM cache_entries WHERE provider = ?`, provider)
	if err != nil {
		return 0, fmt.Errorf("clear cache by provider: %w", err)
	}
	return res.RowsAffected()
}

// PurgeExpiredCache deletes every row past its TTL; called periodically by
// the management queue.
func (s *Store) PurgeExpiredCache(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM cache_entries WHERE expires_at <= ?`, now)
	if err != nil {
		return 0, fmt.Errorf("purge expired cache: %w", err)
	}
	return res.RowsAffected()
}
