// SPDX-License-Identifier: AGPL-3.0-or-later

package library

import (
	"io"
	"strings"
)

// closeQuietly closes a resource and explicitly discards any error. Use in
// error paths where a Close() failure is not actionable and the caller is
// already returning a more meaningful error.
func closeQuietly(closer io.Closer) {
	if closer != nil {
		_ = closer.Close()
	}
}

// isUniqueViolation reports whether err came from a DuckDB PRIMARY KEY or
// UNIQUE constraint violation. DuckDB's Go driver doesn't expose a typed
// constraint-violation error, so this matches on the message text the
// driver surfaces.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "Constraint Error") &&
		(strings.Contains(msg, "violates unique") || strings.Contains(msg, "already exists") || strings.Contains(msg, "duplicate key"))
}
