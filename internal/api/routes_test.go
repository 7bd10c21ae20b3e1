// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quzard/misaka-danmu-server/internal/config"
	"github.com/quzard/misaka-danmu-server/internal/configstore"
	"github.com/quzard/misaka-danmu-server/internal/library"
	"github.com/quzard/misaka-danmu-server/internal/provider"
	"github.com/quzard/misaka-danmu-server/internal/ratelimit"
	"github.com/quzard/misaka-danmu-server/internal/search"
	"github.com/quzard/misaka-danmu-server/internal/taskmanager"
	"github.com/quzard/misaka-danmu-server/internal/taskmanager/tasks"
)

var testDBSemaphore = make(chan struct{}, 1)
var testDBMutex sync.Mutex

func setupHandler(t *testing.T) (*Handler, *library.Store) {
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

	var store *library.Store
	select {
	case r := <-resultCh:
		require.NoError(t, r.err)
		t.Cleanup(func() { r.lib.Close() })
		store = r.lib
	case <-time.After(30 * time.Second):
		t.Fatal("timed out opening in-memory test database")
	}

	cfgStore := configstore.Open(store.DB())
	registry := provider.NewRegistry()
	limiter := ratelimit.New(store, ratelimit.Quota{Limit: 100, Period: time.Hour})
	pipeline := search.New(registry, store, cfgStore, limiter)
	manager := taskmanager.New(store)
	deps := &tasks.Deps{Store: store, Registry: registry, Limiter: limiter}

	return NewHandler(store, cfgStore, registry, pipeline, manager, deps, limiter, nil), store
}

func issueToken(t *testing.T, store *library.Store, dailyLimit int) string {
	t.Helper()
	literal, err := generateToken(20)
	require.NoError(t, err)
	_, err = store.CreateAPIToken(context.Background(), &library.APIToken{
		Name: "test", Token: literal, Enabled: true, DailyCallLimit: dailyLimit,
	})
	require.NoError(t, err)
	return literal
}

func TestRoutesHealthIsOpen(t *testing.T) {
	h, _ := setupHandler(t)
	srv := httptest.NewServer(h.Routes("development"))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRoutesRequireToken(t *testing.T) {
	h, store := setupHandler(t)
	srv := httptest.NewServer(h.Routes("development"))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/tasks")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token := issueToken(t, store, -1)
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/tasks", nil)
	req.Header.Set(tokenHeader, token)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRoutesTokenDailyLimit(t *testing.T) {
	h, store := setupHandler(t)
	srv := httptest.NewServer(h.Routes("development"))
	defer srv.Close()

	token := issueToken(t, store, 1)
	for i, wantStatus := range []int{http.StatusOK, http.StatusTooManyRequests} {
		req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/tasks", nil)
		req.Header.Set(tokenHeader, token)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, wantStatus, resp.StatusCode, "request %d", i)
	}
}

func TestRoutesUnknownTokenRejected(t *testing.T) {
	h, _ := setupHandler(t)
	srv := httptest.NewServer(h.Routes("development"))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/tasks?token=nope", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRoutesWebhookDisabledWithoutManager(t *testing.T) {
	h, _ := setupHandler(t)
	srv := httptest.NewServer(h.Routes("development"))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/webhook", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
