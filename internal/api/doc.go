// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api wires the typed request/response contracts of spec.md
// §4.8 to go-chi routes. HTTP framing is a thin demonstration layer:
// the contracts in contracts.go are the actual specification, and every
// handler is a short adapter from an http.Request onto a call into
// internal/search, internal/library, internal/taskmanager or
// internal/ratelimit. Authentication/authorization proper stays an
// external collaborator per spec.md §1; TokenAuth here only implements
// the ApiToken bookkeeping (§6.5) the data model already commits to.
package api
