// SPDX-License-Identifier: AGPL-3.0-or-later

package configstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/quzard/misaka-danmu-server/internal/config"
	"github.com/quzard/misaka-danmu-server/internal/library"
)

// testDBSemaphore serializes DuckDB in-memory database creation across
// this package's tests, mirroring internal/library's own test setup.
var testDBSemaphore = make(chan struct{}, 1)
var testDBMutex sync.Mutex

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	testDBSemaphore <- struct{}{}
	t.Cleanup(func() { <-testDBSemaphore })

	cfg := config.LibraryConfig{Path: ":memory:", MaxMemory: "1GB"}

	type result struct {
		lib *library.Store
		err error
	}
	resultCh := make(chan result, 1)
	go func() {
		testDBMutex.Lock()
		defer testDBMutex.Unlock()
		lib, err := library.Open(cfg)
		resultCh <- result{lib: lib, err: err}
	}()

	select {
	case r := <-resultCh:
		if r.err != nil {
			t.Fatalf("library.Open() failed: %v", r.err)
		}
		t.Cleanup(func() { r.lib.Close() })
		return Open(r.lib.DB())
	case <-time.After(30 * time.Second):
		t.Fatal("timed out opening in-memory test database")
		return nil
	}
}

func TestGetSeedsDefaultOnFirstRead(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	v, err := s.Get(ctx, KeySearchCacheTTLSeconds, "999")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v != "10800" {
		t.Errorf("Get(%q) = %q, want seeded default %q", KeySearchCacheTTLSeconds, v, "10800")
	}
}

func TestGetFallsBackToCallerDefaultForUnknownKey(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	v, err := s.Get(ctx, "totally.unknown.key", "fallback-value")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v != "fallback-value" {
		t.Errorf("Get(unknown) = %q, want %q", v, "fallback-value")
	}
}

func TestSetValueThenGetReflectsWriteWithoutInvalidate(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if err := s.SetValue(ctx, KeyProxyURL, "http://proxy.local:8080"); err != nil {
		t.Fatalf("SetValue: %v", err)
	}
	v, err := s.Get(ctx, KeyProxyURL, "")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v != "http://proxy.local:8080" {
		t.Errorf("Get(%q) = %q after SetValue", KeyProxyURL, v)
	}
}

func TestInvalidateForcesReReadFromTable(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if _, err := s.Get(ctx, KeyRateLimitGlobalLimit, "0"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	// Bypass the cache to simulate another process editing the row.
	if _, err := s.db.ExecContext(ctx, `UPDATE app_config SET value = ? WHERE key = ?`, "9999", KeyRateLimitGlobalLimit); err != nil {
		t.Fatalf("direct update: %v", err)
	}

	s.Invalidate(KeyRateLimitGlobalLimit)

	v, err := s.Get(ctx, KeyRateLimitGlobalLimit, "0")
	if err != nil {
		t.Fatalf("Get after Invalidate: %v", err)
	}
	if v != "9999" {
		t.Errorf("Get after Invalidate = %q, want %q", v, "9999")
	}
}

func TestGetBoolParsesLowercaseLiterals(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if err := s.SetValue(ctx, KeyWebhookLogRawPayloads, "true"); err != nil {
		t.Fatalf("SetValue: %v", err)
	}
	v, err := s.GetBool(ctx, KeyWebhookLogRawPayloads, false)
	if err != nil {
		t.Fatalf("GetBool: %v", err)
	}
	if !v {
		t.Error("GetBool = false, want true")
	}
}

func TestGetDurationConvertsSecondsField(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	d, err := s.GetDuration(ctx, KeyEpisodeCacheTTLSeconds, time.Minute)
	if err != nil {
		t.Fatalf("GetDuration: %v", err)
	}
	if d != time.Hour {
		t.Errorf("GetDuration(%q) = %v, want 1h (seeded default 3600)", KeyEpisodeCacheTTLSeconds, d)
	}
}
