// SPDX-License-Identifier: AGPL-3.0-or-later

// Package taskmanager owns the three FIFO task queues — download,
// management, fallback — each served by exactly one suture-supervised
// worker. It persists task lifecycle to internal/library's task_history
// table and enforces the title/uniqueKey dedup preconditions a caller
// must clear before a task is accepted.
package taskmanager
