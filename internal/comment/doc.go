// SPDX-License-Identifier: AGPL-3.0-or-later

// Package comment normalizes provider-raw danmaku into the wire shape
// stored by internal/library and served to players: a five-field CSV
// "p" string plus sanitized text "m" (spec.md §4.7, §6.1). It also holds
// the custom-XML/plain-text import parser for the "custom" provider
// (spec.md §6.2).
package comment
