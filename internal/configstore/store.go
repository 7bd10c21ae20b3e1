// SPDX-License-Identifier: AGPL-3.0-or-later

package configstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/quzard/misaka-danmu-server/internal/logging"
)

// Store is the read-through config-store handle. Callers obtain one per
// process via Open and share it; it is safe for concurrent use.
type Store struct {
	db    *sql.DB
	cache sync.Map // string -> string
}

// Open wraps an existing *sql.DB (normally internal/library.Store.DB())
// with the read-through cache. It does not own the connection's
// lifecycle — closing belongs to whoever opened the library store.
func Open(db *sql.DB) *Store {
	return &Store{db: db}
}

// Get returns the current value for key. On a cold cache it queries
// app_config; if no row exists there it falls back to the in-code
// defaults table, then to fallback, persisting whichever wins so the
// next read — in this or a future process — is a pure cache hit.
func (s *Store) Get(ctx context.Context, key, fallback string) (string, error) {
	if v, ok := s.cache.Load(key); ok {
		return v.(string), nil
	}

	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM app_config WHERE key = ?`, key).Scan(&value)
	switch {
	case err == nil:
		s.cache.Store(key, value)
		return value, nil
	case errors.Is(err, sql.ErrNoRows):
		if def, ok := defaults[key]; ok {
			value = def
		} else {
			value = fallback
		}
		if err := s.persist(ctx, key, value); err != nil {
			return "", fmt.Errorf("seed default for %q: %w", key, err)
		}
		s.cache.Store(key, value)
		return value, nil
	default:
		return "", fmt.Errorf("query app_config: %w", err)
	}
}

// SetValue writes key=value, updating the table and the in-process cache
// in the same call so readers in this process never observe a stale
// value between the write and the next Get.
func (s *Store) SetValue(ctx context.Context, key, value string) error {
	if err := s.persist(ctx, key, value); err != nil {
		return err
	}
	s.cache.Store(key, value)
	return nil
}

func (s *Store) persist(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO app_config (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, value)
	if err != nil {
		return fmt.Errorf("upsert app_config: %w", err)
	}
	return nil
}

// Invalidate drops key from the cache only; the next Get re-reads it
// from app_config, which is how an admin-triggered reload picks up a
// value someone changed through another process or a direct SQL edit.
func (s *Store) Invalidate(key string) {
	s.cache.Delete(key)
	logging.Debug().Str("key", key).Msg("config key invalidated")
}
