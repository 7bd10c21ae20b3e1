// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"net/http"
	"time"
)

// HealthResponse reports whether the library database is reachable and
// how long the process has been up.
type HealthResponse struct {
	Status            string  `json:"status"`
	DatabaseConnected bool    `json:"databaseConnected"`
	UptimeSeconds     float64 `json:"uptimeSeconds"`
}

// Health is a liveness/readiness probe: "healthy" requires the embedded
// DuckDB connection to answer a ping.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	dbConnected := h.store.DB().PingContext(r.Context()) == nil

	status := "healthy"
	if !dbConnected {
		status = "degraded"
	}

	respondOK(w, HealthResponse{
		Status:            status,
		DatabaseConnected: dbConnected,
		UptimeSeconds:     time.Since(h.startTime).Seconds(),
	})
}

// PerfStats returns per-endpoint latency percentiles from the in-process
// performance monitor, for the admin UI's diagnostics page.
func (h *Handler) PerfStats(w http.ResponseWriter, r *http.Request) {
	respondOK(w, h.perf.GetStats())
}
