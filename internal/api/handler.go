// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"time"

	"github.com/quzard/misaka-danmu-server/internal/configstore"
	"github.com/quzard/misaka-danmu-server/internal/library"
	"github.com/quzard/misaka-danmu-server/internal/middleware"
	"github.com/quzard/misaka-danmu-server/internal/provider"
	"github.com/quzard/misaka-danmu-server/internal/ratelimit"
	"github.com/quzard/misaka-danmu-server/internal/search"
	"github.com/quzard/misaka-danmu-server/internal/taskmanager"
	"github.com/quzard/misaka-danmu-server/internal/taskmanager/tasks"
	"github.com/quzard/misaka-danmu-server/internal/webhook"
)

// Handler holds every dependency the route handlers in this package
// close over. It is built once in the composition root and has no
// lifecycle of its own — internal/supervisor owns the HTTP server that
// serves it.
type Handler struct {
	store       *library.Store
	configStore *configstore.Store
	registry    *provider.Registry
	pipeline    *search.Pipeline
	manager     *taskmanager.Manager
	taskDeps    *tasks.Deps
	limiter     *ratelimit.Limiter
	webhook     *webhook.Manager
	perf        *middleware.PerformanceMonitor
	startTime   time.Time
}

// NewHandler builds a Handler. webhookMgr may be nil, which disables the
// webhook ingress endpoint only; every other route still serves.
func NewHandler(
	store *library.Store,
	configStore *configstore.Store,
	registry *provider.Registry,
	pipeline *search.Pipeline,
	manager *taskmanager.Manager,
	taskDeps *tasks.Deps,
	limiter *ratelimit.Limiter,
	webhookMgr *webhook.Manager,
) *Handler {
	return &Handler{
		store:       store,
		configStore: configStore,
		registry:    registry,
		pipeline:    pipeline,
		manager:     manager,
		taskDeps:    taskDeps,
		limiter:     limiter,
		webhook:     webhookMgr,
		perf:        middleware.NewPerformanceMonitor(1000),
		startTime:   time.Now(),
	}
}

// quotaFor returns a provider's declared rate-limit quota as the shape
// internal/ratelimit expects, from its registration Meta.
func quotaFor(meta provider.Meta) ratelimit.Quota {
	if meta.RateLimitQuota == nil {
		return ratelimit.Quota{}
	}
	period := time.Duration(meta.RateLimitPeriodSecs) * time.Second
	if period <= 0 {
		period = time.Minute
	}
	return ratelimit.Quota{Limit: *meta.RateLimitQuota, Period: period}
}
