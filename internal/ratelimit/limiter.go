// SPDX-License-Identifier: AGPL-3.0-or-later

package ratelimit

import (
	"context"
	"database/sql"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/quzard/misaka-danmu-server/internal/apperr"
	"github.com/quzard/misaka-danmu-server/internal/config"
	"github.com/quzard/misaka-danmu-server/internal/library"
	"github.com/quzard/misaka-danmu-server/internal/logging"
)

// globalProviderKey is the rate_limit_state row tracking the process-wide
// quota alongside each named provider's own row.
const globalProviderKey = "__global__"

// uiStatusCheckProvider is the synthetic provider name used to advance a
// window's reset clock without consuming any provider's real quota —
// the health-check ping described in spec.md §4.2.
const uiStatusCheckProvider = "__ui_status_check__"

// Quota is an adapter-declared rate limit. Limit <= 0 means unlimited:
// Check always succeeds for such a provider, though the global quota
// below still applies.
type Quota struct {
	Limit  int
	Period time.Duration
}

// Unlimited reports whether q imposes no cap.
func (q Quota) Unlimited() bool {
	return q.Limit <= 0
}

// Limiter enforces per-provider and global fixed-window quotas and the
// signed-artifact pause mechanism described in spec.md §4.2/§6.4.
type Limiter struct {
	store *library.Store

	global Quota

	mu                  sync.RWMutex
	verificationFailed  bool
	artifactGlobalLimit int
	artifactPeriod      time.Duration
	enabled             bool
}

// New constructs a Limiter with a starting global quota; an artifact
// load (see artifact.go) may subsequently override the enabled flag and
// the global limit/period it carries.
func New(store *library.Store, global Quota) *Limiter {
	return &Limiter{
		store:               store,
		global:              global,
		enabled:             true,
		artifactGlobalLimit: global.Limit,
		artifactPeriod:      global.Period,
	}
}

// Check enforces providerName's quota and the global quota, resetting
// either window first if its period has elapsed. It is the only
// blocking decision point in the system: callers decide whether to fail
// the task, defer to the fallback queue, or pause.
func (l *Limiter) Check(ctx context.Context, providerName string, quota Quota) error {
	l.mu.RLock()
	failed := l.verificationFailed
	enabled := l.enabled
	globalLimit, globalPeriod := l.currentGlobalQuota()
	l.mu.RUnlock()

	if failed {
		return &apperr.RateLimitExceeded{Provider: providerName, RetryAfterSeconds: math.MaxInt32}
	}
	if !enabled || providerName == uiStatusCheckProvider {
		return l.advanceWindow(ctx, providerName, quota, globalLimit, globalPeriod, false)
	}
	return l.advanceWindow(ctx, providerName, quota, globalLimit, globalPeriod, true)
}

// Increment records a successful fetch against both providerName's
// counter and the global counter. Callers must only call this after
// Check succeeded and the upstream call itself succeeded.
func (l *Limiter) Increment(ctx context.Context, providerName string) error {
	return l.store.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := l.store.GetOrCreateRateLimitStateTx(ctx, tx, providerName); err != nil {
			return err
		}
		if err := l.store.IncrementRateLimitCountTx(ctx, tx, providerName); err != nil {
			return err
		}
		if _, err := l.store.GetOrCreateRateLimitStateTx(ctx, tx, globalProviderKey); err != nil {
			return err
		}
		return l.store.IncrementRateLimitCountTx(ctx, tx, globalProviderKey)
	})
}

func (l *Limiter) currentGlobalQuota() (int, time.Duration) {
	return l.artifactGlobalLimit, l.artifactPeriod
}

// advanceWindow performs the read/maybe-reset/compare sequence for both
// the provider's own window and the global window inside one
// transaction. When enforce is false it still resets windows whose
// period has elapsed (the "__ui_status_check__"/disabled path) but never
// refuses.
func (l *Limiter) advanceWindow(ctx context.Context, providerName string, quota Quota, globalLimit int, globalPeriod time.Duration, enforce bool) error {
	return l.store.WithTx(ctx, func(tx *sql.Tx) error {
		now := time.Now()

		if !quota.Unlimited() {
			state, err := l.store.GetOrCreateRateLimitStateTx(ctx, tx, providerName)
			if err != nil {
				return err
			}
			if now.Sub(state.LastResetTime) >= quota.Period {
				if err := l.store.ResetRateLimitWindowTx(ctx, tx, providerName, now); err != nil {
					return err
				}
				state.RequestCount = 0
			}
			if enforce && state.RequestCount >= quota.Limit {
				return &apperr.RateLimitExceeded{
					Provider:          providerName,
					RetryAfterSeconds: int(quota.Period - now.Sub(state.LastResetTime).Truncate(time.Second)),
				}
			}
		}

		if globalLimit > 0 {
			state, err := l.store.GetOrCreateRateLimitStateTx(ctx, tx, globalProviderKey)
			if err != nil {
				return err
			}
			if now.Sub(state.LastResetTime) >= globalPeriod {
				if err := l.store.ResetRateLimitWindowTx(ctx, tx, globalProviderKey, now); err != nil {
					return err
				}
				state.RequestCount = 0
			}
			if enforce && state.RequestCount >= globalLimit {
				return &apperr.RateLimitExceeded{
					Provider:          globalProviderKey,
					RetryAfterSeconds: int(globalPeriod - now.Sub(state.LastResetTime).Truncate(time.Second)),
				}
			}
		}

		return nil
	})
}

func (l *Limiter) setVerificationFailed(failed bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if failed != l.verificationFailed {
		if failed {
			logging.Error().Msg("rate limit artifact verification failed; all provider fetches refused")
		} else {
			logging.Info().Msg("rate limit artifact verification succeeded; provider fetches resumed")
		}
	}
	l.verificationFailed = failed
}

// Reload re-reads and re-verifies the artifact named by cfg, applying it
// on success and flipping into the verification-failed state on any
// failure. It is safe to call repeatedly (boot, and on every fsnotify
// event from watcher.go).
func (l *Limiter) Reload(cfg config.LimiterConfig) error {
	artifact, err := loadArtifact(cfg.ArtifactPath, cfg.SignaturePath, cfg.PublicKeyPath)
	if err != nil {
		l.setVerificationFailed(true)
		return err
	}
	l.applyArtifact(artifact)
	l.setVerificationFailed(false)
	return nil
}

func (l *Limiter) applyArtifact(a *artifactConfig) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = a.Enabled
	l.artifactGlobalLimit = a.GlobalLimit
	l.artifactPeriod = time.Duration(a.GlobalPeriodSeconds) * time.Second
}

// ProviderStatus is one row of Status's per-provider breakdown.
type ProviderStatus struct {
	ProviderName string
	RequestCount int
	// Quota is nil for an unlimited provider (spec.md §4.8 `quota|"∞"`).
	Quota *int
}

// Status is the rate-limit/status read of spec.md §4.8: a
// side-effecting read that advances (but does not enforce) the global
// window via the synthetic "__ui_status_check__" provider before
// reporting counters, so a caller who only polls status still observes
// window resets happen on schedule.
type Status struct {
	GlobalEnabled       bool
	VerificationFailed  bool
	GlobalRequestCount  int
	GlobalLimit         int
	GlobalPeriodSeconds int
	SecondsUntilReset   int
	Providers           []ProviderStatus
}

// ReadStatus advances the global window (without consuming quota) via
// Check(ctx, "__ui_status_check__", ...) and returns the status report
// described by spec.md §4.8. quotas maps each enabled provider's name to
// its declared Quota, as reported by provider.Adapter.Meta().
func (l *Limiter) ReadStatus(ctx context.Context, quotas map[string]Quota) (*Status, error) {
	if err := l.Check(ctx, uiStatusCheckProvider, Quota{}); err != nil {
		return nil, err
	}

	l.mu.RLock()
	failed := l.verificationFailed
	enabled := l.enabled
	globalLimit, globalPeriod := l.currentGlobalQuota()
	l.mu.RUnlock()

	states, err := l.store.ListRateLimitStates(ctx)
	if err != nil {
		return nil, err
	}
	byProvider := make(map[string]*library.RateLimitState, len(states))
	for _, st := range states {
		byProvider[st.ProviderName] = st
	}

	status := &Status{
		GlobalEnabled:       enabled,
		VerificationFailed:  failed,
		GlobalLimit:         globalLimit,
		GlobalPeriodSeconds: int(globalPeriod.Seconds()),
	}
	if global, ok := byProvider[globalProviderKey]; ok {
		status.GlobalRequestCount = global.RequestCount
		remaining := globalPeriod - time.Since(global.LastResetTime)
		if remaining > 0 {
			status.SecondsUntilReset = int(remaining.Seconds())
		}
	}

	for name, quota := range quotas {
		ps := ProviderStatus{ProviderName: name}
		if st, ok := byProvider[name]; ok {
			ps.RequestCount = st.RequestCount
		}
		if !quota.Unlimited() {
			limit := quota.Limit
			ps.Quota = &limit
		}
		status.Providers = append(status.Providers, ps)
	}
	sort.Slice(status.Providers, func(i, j int) bool {
		return status.Providers[i].ProviderName < status.Providers[j].ProviderName
	})

	return status, nil
}
