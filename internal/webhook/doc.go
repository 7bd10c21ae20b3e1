// SPDX-License-Identifier: AGPL-3.0-or-later

// Package webhook models the reception-row + delayed-execute half of the
// external API surface described in spec.md §4.8's last bullet: a
// platform-specific webhook receiver (out of scope per spec.md §1) posts
// a raw payload and a source hint; Enqueue stamps it with a reception
// time and an execute time (reception + delay) and persists it as a
// library.WebhookTask row. A ticking Sweeper moves due rows onto
// generic_import via the task manager, on the queue the caller chose at
// enqueue time (download for a same-platform notification the operator
// trusts, fallback for anything opportunistic).
//
// Parsing the platform's actual webhook payload shape stays an external
// collaborator's job; this package only carries whatever JSON the caller
// already decoded into a GenericImportParams-shaped payload.
package webhook
