// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quzard/misaka-danmu-server/internal/middleware"
)

// adaptFunc lifts this project's http.HandlerFunc-shaped middleware into
// chi's func(http.Handler) http.Handler convention.
func adaptFunc(mw func(http.HandlerFunc) http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return mw(next.ServeHTTP)
	}
}

// Routes assembles the full route table over h. environment gates the
// CORS posture: "development" allows any origin for local UI work,
// anything else restricts to same-origin.
func (h *Handler) Routes(environment string) http.Handler {
	r := chi.NewRouter()

	r.Use(adaptFunc(middleware.RequestID))
	r.Use(adaptFunc(middleware.PrometheusMetrics))
	r.Use(h.perf.Middleware)
	r.Use(adaptFunc(middleware.Compression))

	allowedOrigins := []string{}
	if environment == "development" {
		allowedOrigins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", tokenHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Coarse transport-level burst limiting; the domain rate limiter
	// (internal/ratelimit) still governs outbound provider traffic
	// independently of this.
	r.Use(httprate.LimitByIP(300, time.Minute))

	r.Get("/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	// Webhook ingress stays outside token auth: external platforms post
	// here with their own shared-secret payloads, filtered by the
	// webhook.filter_regex config rather than an ApiToken.
	r.Post("/api/webhook", h.WebhookIngress)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(h.RequireToken)

		r.With(httprate.LimitByIP(30, time.Minute)).
			Get("/search/provider", h.SearchProvider)

		r.Get("/comments/{episodeId}", h.Comments)
		r.Post("/import", h.Import)
		r.Post("/import/edited", h.EditedImport)

		r.Route("/library", func(r chi.Router) {
			r.Get("/", h.ListWorks)
			r.Route("/anime/{id}", func(r chi.Router) {
				r.Get("/", h.GetWork)
				r.Delete("/", h.DeleteWork)
				r.Get("/sources", h.ListSources)
				r.Get("/sources/{sourceId}/episodes", h.ListEpisodes)
			})
			r.Route("/source/{id}", func(r chi.Router) {
				r.Put("/favorite", h.ToggleSourceFavorite)
				r.Post("/reassociate", h.ReassociateSource)
				r.Post("/refresh", h.FullRefreshSource)
				r.Delete("/data", h.ClearSourceData)
				r.Delete("/", h.DeleteSource)
			})
			r.Route("/episode/{id}", func(r chi.Router) {
				r.Post("/refresh", h.RefreshEpisode)
				r.Delete("/", h.DeleteEpisode)
			})
			r.Post("/episodes/reorder", h.ReorderEpisodes)
			r.Post("/episodes/offset", h.OffsetEpisodes)
			r.Post("/manual-import", h.ManualImport)
		})

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", h.ListTasks)
			r.Get("/{id}", h.GetTask)
			r.Delete("/{id}", h.DeleteTask)
			r.Post("/{id}/pause", h.PauseTask)
			r.Post("/{id}/resume", h.ResumeTask)
			r.Post("/{id}/abort", h.AbortTask)
		})

		r.Get("/rate-limit/status", h.RateLimitStatus)

		r.Route("/tokens", func(r chi.Router) {
			r.Get("/", h.ListTokens)
			r.Post("/", h.CreateToken)
			r.Put("/{id}/toggle", h.ToggleToken)
			r.Post("/{id}/reset", h.ResetToken)
			r.Delete("/{id}", h.DeleteToken)
		})

		r.Get("/ua-rules", h.ListUARules)
		r.Put("/ua-rules/{key}", h.UpdateUARule)

		r.Get("/perf-stats", h.PerfStats)
		r.Delete("/cache", h.ClearCache)

		r.Get("/ws/tasks", h.TaskEvents)
	})

	return r
}
