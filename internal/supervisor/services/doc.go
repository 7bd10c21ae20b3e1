// SPDX-License-Identifier: AGPL-3.0-or-later

// Package services adapts long-running components with their own
// lifecycle idiom (http.Server's ListenAndServe/Shutdown, a ticking
// sweep loop) onto suture.Service's Serve(ctx) error contract, so
// internal/supervisor can restart them in isolation like the task
// manager's queue workers.
package services
