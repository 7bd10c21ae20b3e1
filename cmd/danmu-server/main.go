// SPDX-License-Identifier: AGPL-3.0-or-later

// Package main is the entry point for the danmaku server.
//
// The server initializes components in the following order:
//
//  1. Configuration: boot settings from defaults, config file and
//     environment variables (Koanf v2)
//  2. Library: the embedded DuckDB store behind every repository
//  3. Config store: the persistent runtime key/value service
//  4. Rate limiter: global/per-provider quotas plus the signed artifact
//  5. Provider registry: one statically-compiled adapter per platform
//  6. Task manager: crash-recovery scan, then three supervised queues
//  7. HTTP server: the external API surface, supervised alongside the
//     queue workers and the webhook sweeper
//
// Graceful shutdown on SIGINT/SIGTERM drains in-flight HTTP requests and
// stops the queue workers through the supervisor tree's context.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quzard/misaka-danmu-server/internal/api"
	"github.com/quzard/misaka-danmu-server/internal/config"
	"github.com/quzard/misaka-danmu-server/internal/configstore"
	"github.com/quzard/misaka-danmu-server/internal/danmakufile"
	"github.com/quzard/misaka-danmu-server/internal/library"
	"github.com/quzard/misaka-danmu-server/internal/logging"
	"github.com/quzard/misaka-danmu-server/internal/provider"
	"github.com/quzard/misaka-danmu-server/internal/provider/acfun"
	"github.com/quzard/misaka-danmu-server/internal/provider/base"
	"github.com/quzard/misaka-danmu-server/internal/provider/bilibili"
	"github.com/quzard/misaka-danmu-server/internal/provider/gamer"
	"github.com/quzard/misaka-danmu-server/internal/provider/hanjutv"
	"github.com/quzard/misaka-danmu-server/internal/provider/iqiyi"
	"github.com/quzard/misaka-danmu-server/internal/provider/le"
	"github.com/quzard/misaka-danmu-server/internal/provider/mgtv"
	"github.com/quzard/misaka-danmu-server/internal/provider/renren"
	"github.com/quzard/misaka-danmu-server/internal/provider/sohu"
	"github.com/quzard/misaka-danmu-server/internal/provider/tencent"
	"github.com/quzard/misaka-danmu-server/internal/provider/youku"
	"github.com/quzard/misaka-danmu-server/internal/ratelimit"
	"github.com/quzard/misaka-danmu-server/internal/search"
	"github.com/quzard/misaka-danmu-server/internal/supervisor"
	"github.com/quzard/misaka-danmu-server/internal/supervisor/services"
	"github.com/quzard/misaka-danmu-server/internal/taskmanager"
	"github.com/quzard/misaka-danmu-server/internal/taskmanager/tasks"
	"github.com/quzard/misaka-danmu-server/internal/webhook"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("db_path", cfg.Library.Path).
		Str("environment", cfg.Server.Environment).
		Msg("Starting danmaku server with supervisor tree")

	store, err := library.Open(cfg.Library)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open library database")
	}
	defer func() {
		if err := store.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing library database")
		}
	}()
	logging.Info().Msg("Library database initialized")

	cfgStore := configstore.Open(store.DB())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	limiter, err := buildLimiter(ctx, cfg, store, cfgStore)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to build rate limiter")
	}

	registry, err := buildRegistry(ctx, cfgStore)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to build provider registry")
	}
	logging.Info().Strs("providers", registry.Names()).Msg("Provider registry built")

	manager := taskmanager.New(store)
	taskDeps := &tasks.Deps{
		Store:    store,
		Registry: registry,
		Limiter:  limiter,
		Files:    danmakufile.NewWriter(cfgStore),
	}
	if err := manager.Start(ctx); err != nil {
		logging.Fatal().Err(err).Msg("Task manager crash-recovery scan failed")
	}

	webhookMgr := webhook.New(store, cfgStore, taskDeps, manager.Submit, 30*time.Second)
	pipeline := search.New(registry, store, cfgStore, limiter)

	handler := api.NewHandler(store, cfgStore, registry, pipeline, manager, taskDeps, limiter, webhookMgr)

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLoggerWithLevel(cfg.Logging.Level), supervisor.DefaultTreeConfig())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to build supervisor tree")
	}
	manager.AttachToSupervisor(tree)
	tree.AddFallbackWorker(webhookMgr)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      handler.Routes(cfg.Server.Environment),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	tree.AddAPIService(services.NewHTTPServerService(srv, 10*time.Second))
	logging.Info().Str("addr", srv.Addr).Msg("HTTP API configured")

	if err := tree.Serve(ctx); err != nil && ctx.Err() == nil {
		logging.Fatal().Err(err).Msg("Supervisor tree exited")
	}
	logging.Info().Msg("Shutdown complete")
}

// buildLimiter constructs the rate limiter from the config store's
// global quota, then applies the signed artifact if one is configured,
// and starts the hot-reload watcher over its directory.
func buildLimiter(ctx context.Context, cfg *config.Config, store *library.Store, cfgStore *configstore.Store) (*ratelimit.Limiter, error) {
	limit, err := cfgStore.GetInt(ctx, configstore.KeyRateLimitGlobalLimit, 5000)
	if err != nil {
		return nil, err
	}
	period, err := cfgStore.GetDuration(ctx, configstore.KeyRateLimitGlobalPeriodSec, 24*time.Hour)
	if err != nil {
		return nil, err
	}

	limiter := ratelimit.New(store, ratelimit.Quota{Limit: limit, Period: period})

	if cfg.Limiter.ArtifactPath != "" {
		if err := limiter.Reload(cfg.Limiter); err != nil {
			// Verification-failed state is already set; the server still
			// starts so the operator can see the flag in rate-limit/status.
			logging.Error().Err(err).Msg("Rate limit artifact verification failed at boot")
		}
		go func() {
			if err := limiter.WatchArtifact(cfg.Limiter, ctx.Done()); err != nil {
				logging.Error().Err(err).Msg("Rate limit artifact watcher stopped")
			}
		}()
	}
	return limiter, nil
}

// buildRegistry registers every compiled-in adapter. Each gets its own
// base.Client (breaker, backoff, throttle and proxy are per-upstream).
func buildRegistry(ctx context.Context, cfgStore *configstore.Store) (*provider.Registry, error) {
	minInterval, err := cfgStore.GetDuration(ctx, configstore.KeySearchMinIntervalSeconds, time.Second)
	if err != nil {
		return nil, err
	}
	proxyURL, err := cfgStore.Get(ctx, configstore.KeyProxyURL, "")
	if err != nil {
		return nil, err
	}

	newClient := func(name string) *base.Client {
		c := base.New(name, minInterval)
		if err := c.SetProxy(proxyURL); err != nil {
			logging.Warn().Err(err).Str("provider", name).Msg("Invalid proxy URL ignored")
		}
		return c
	}

	registry := provider.NewRegistry()
	registry.Register(bilibili.New(cfgStore, newClient("bilibili")))
	registry.Register(tencent.New(cfgStore, newClient("tencent")))
	registry.Register(iqiyi.New(cfgStore, newClient("iqiyi")))
	registry.Register(youku.New(cfgStore, newClient("youku")))
	registry.Register(mgtv.New(cfgStore, newClient("mgtv")))
	registry.Register(sohu.New(cfgStore, newClient("sohu")))
	registry.Register(le.New(cfgStore, newClient("le")))
	registry.Register(gamer.New(cfgStore, newClient("gamer")))
	registry.Register(hanjutv.New(cfgStore, newClient("hanjutv")))
	registry.Register(acfun.New(cfgStore, newClient("acfun")))
	registry.Register(renren.New(cfgStore, newClient("renren")))
	return registry, nil
}
