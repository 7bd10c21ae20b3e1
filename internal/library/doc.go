// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package library owns the embedded DuckDB database: works, sources,
episodes, comments, the config-store table, rate-limit state, task
history, API tokens and the TTL cache table, per spec.md §3.

# Schema

All tables are created from the CREATE TABLE statements in schema.go —
there is a single source of truth pre-release. migrations.go carries the
versioned-migration infrastructure for use after the first public
release.

# Transactions

Store.WithTx wraps a closure in BEGIN/COMMIT/ROLLBACK. Every multi-
statement write (cascading deletes, episode reordering, favorite
transfer, token-usage counters) goes through it so a partial failure
never leaves the invariants in §8 violated.

# See Also

  - internal/configstore: a read-through cache in front of app_config
  - internal/ratelimit: reads/writes rate_limit_state
  - internal/taskmanager: reads/writes task_history
*/
package library
