// SPDX-License-Identifier: AGPL-3.0-or-later

// Package base is the shared HTTP transport every concrete provider
// adapter embeds instead of building its own *http.Client: a circuit
// breaker per provider (sony/gobreaker/v2), retry-with-backoff on
// transient failures (cenkalti/backoff/v4), a mutex-guarded minimum
// interval between outbound requests, and lazy client rebuild when the
// operator changes the proxy URL through internal/configstore.
package base
