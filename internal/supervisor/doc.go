// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package supervisor provides process supervision for the task manager using
suture v4.

This package implements a hierarchical supervisor tree that manages the
lifecycle of the task manager's three queue workers plus the HTTP API
server. It provides Erlang/OTP-style supervision with automatic restart,
failure isolation, and graceful shutdown.

# Overview

The supervisor tree organizes services into four branches for failure
isolation:

	RootSupervisor ("danmu-server")
	├── DownloadQueue ("queue-download")
	│   └── download worker (provider fetch/import tasks)
	├── ManagementQueue ("queue-management")
	│   └── management worker (reassociate/delete/reorder/offset tasks)
	├── FallbackQueue ("queue-fallback")
	│   └── fallback worker (slow/retry-heavy tasks demoted off download)
	└── APISupervisor ("api-layer")
	    └── HTTP server

This hierarchy ensures that a wedged download-queue worker is restarted in
isolation and never blocks the HTTP API from serving cached search/library
responses, matching the "one worker per queue" concurrency model.

# Key Features

Automatic Restart:
  - Crashed workers are automatically restarted
  - Exponential backoff prevents restart storms
  - Configurable failure thresholds and decay rates

Failure Isolation:
  - Each queue's worker has independent failure counting
  - A crash in one queue does not affect the others

Graceful Shutdown:
  - Context cancellation triggers orderly shutdown
  - Configurable shutdown timeout per worker
  - UnstoppedServiceReport for debugging hangs

Structured Logging:
  - Integration with slog for structured events
  - Event hooks via the sutureslog adapter, backed by internal/logging's
    zerolog-over-slog handler

# Usage Example

Basic setup in main.go:

	import (
	    "log/slog"
	    "github.com/quzard/misaka-danmu-server/internal/supervisor"
	)

	func main() {
	    logger := slog.Default()
	    config := supervisor.DefaultTreeConfig()

	    tree, err := supervisor.NewSupervisorTree(logger, config)
	    if err != nil {
	        log.Fatal(err)
	    }

	    tree.AddDownloadWorker(taskManager.DownloadWorker())
	    tree.AddManagementWorker(taskManager.ManagementWorker())
	    tree.AddFallbackWorker(taskManager.FallbackWorker())
	    tree.AddAPIService(apiServer)

	    ctx := context.Background()
	    if err := tree.Serve(ctx); err != nil {
	        log.Printf("supervisor stopped: %v", err)
	    }
	}

# Configuration

The TreeConfig controls restart behavior:

	config := supervisor.TreeConfig{
	    FailureThreshold: 5.0,          // Failures before backoff
	    FailureDecay:     30.0,         // Seconds for failures to decay
	    FailureBackoff:   15 * time.Second,
	    ShutdownTimeout:  10 * time.Second,
	}

Default values match suture's production-ready defaults.

# Service Interface

Each queue worker implements suture.Service:

	type Service interface {
	    Serve(ctx context.Context) error
	}

Return behavior:
  - Return nil: worker stopped cleanly, will not be restarted
  - Return error: worker crashed, will be restarted
  - Context canceled: shutdown requested, return promptly

On restart, a download/management worker resumes draining its queue from
where crash recovery left it (queued rows are re-marked "进程重启，任务已中断"
at startup by the task manager, not by this package).

# What Is NOT Supervised

DuckDB is intentionally not supervised — it is an embedded library, not a
long-running service; connections are managed by internal/library.
Provider HTTP calls are not supervised either, failure isolation there
comes from per-provider circuit breakers in internal/provider.

# See Also

  - internal/taskmanager: the three queues and their worker loops
  - github.com/thejerf/suture/v4: underlying library
*/
package supervisor
