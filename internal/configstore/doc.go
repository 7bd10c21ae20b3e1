// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package configstore is the persistent, hot-reloadable key/value settings
store every tunable in the system reads from: TTLs, the outbound proxy
URL, per-provider cookies and blacklists, rate-limit caps, webhook
filters. It is backed by the `app_config` table in internal/library and
fronted by a read-through sync.Map so a steady-state Get never touches
DuckDB.

Unknown keys are seeded from an in-code defaults table on first read,
mirroring the boot-time internal/config package's layered-defaults
approach but scoped to values operators change at runtime rather than
at process start.
*/
package configstore
