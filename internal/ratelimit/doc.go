// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package ratelimit enforces the per-provider and global outbound-request
quotas every task body must respect before calling a provider adapter,
and lets an operator pause all outbound traffic by shipping a signed
artifact rather than redeploying.

A Limiter tracks one fixed-window counter per provider plus a
"__global__" counter in internal/library's rate_limit_state table;
Check and Increment run the read/reset/compare/write sequence inside a
single transaction so concurrent callers never race past a quota. The
companion artifact.go verifies the operator-supplied rate_limit.bin
against its SM2 signature and the SHA-256 hashes of the runtime files it
lists; any verification failure flips the Limiter into a fail-closed
state where Check refuses every provider until the artifact is fixed and
reloaded. watcher.go uses fsnotify to pick up a corrected artifact
without a restart.
*/
package ratelimit
