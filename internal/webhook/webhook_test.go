// SPDX-License-Identifier: AGPL-3.0-or-later

package webhook

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quzard/misaka-danmu-server/internal/apperr"
	"github.com/quzard/misaka-danmu-server/internal/config"
	"github.com/quzard/misaka-danmu-server/internal/configstore"
	"github.com/quzard/misaka-danmu-server/internal/library"
	"github.com/quzard/misaka-danmu-server/internal/taskmanager"
	"github.com/quzard/misaka-danmu-server/internal/taskmanager/tasks"
)

var testDBSemaphore = make(chan struct{}, 1)
var testDBMutex sync.Mutex

func setupStore(t *testing.T) *library.Store {
	t.Helper()

	testDBSemaphore <- struct{}{}
	t.Cleanup(func() { <-testDBSemaphore })

	cfg := config.LibraryConfig{Path: ":memory:", MaxMemory: "1GB"}

	type result struct {
		store *library.Store
		err   error
	}
	resultCh := make(chan result, 1)
	go func() {
		testDBMutex.Lock()
		defer testDBMutex.Unlock()
		s, err := library.Open(cfg)
		resultCh <- result{store: s, err: err}
	}()

	select {
	case r := <-resultCh:
		require.NoError(t, r.err)
		t.Cleanup(func() { r.store.Close() })
		return r.store
	case <-time.After(30 * time.Second):
		t.Fatal("timed out opening in-memory test database")
		return nil
	}
}

func TestEnqueueRejectsFilteredSource(t *testing.T) {
	store := setupStore(t)
	cfgStore := configstore.Open(store.DB())
	ctx := context.Background()

	require.NoError(t, cfgStore.SetValue(ctx, configstore.KeyWebhookFilterRegex, "(?i)sonarr-test"))

	m := New(store, cfgStore, &tasks.Deps{Store: store}, nil, time.Minute)

	_, err := m.Enqueue(ctx, "Sonarr-Test", []byte(`{}`), time.Hour, library.QueueDownload)
	assert.True(t, apperr.Is(err, apperr.Conflict))

	id, err := m.Enqueue(ctx, "emby", []byte(`{"provider":"bilibili","mediaId":"ss1","title":"x","type":"tv_series","season":1}`),
		time.Hour, library.QueueDownload)
	require.NoError(t, err)
	assert.Positive(t, id)
}

func TestEnqueueRejectsUnknownQueue(t *testing.T) {
	store := setupStore(t)
	m := New(store, nil, &tasks.Deps{Store: store}, nil, time.Minute)

	_, err := m.Enqueue(context.Background(), "emby", []byte(`{}`), time.Hour, library.QueueManagement)
	assert.Error(t, err)
}

func TestSweepDispatchesDueRows(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	var submitted []taskmanager.SubmitRequest
	submit := func(ctx context.Context, req taskmanager.SubmitRequest) (string, error) {
		submitted = append(submitted, req)
		return "task-1", nil
	}

	m := New(store, nil, &tasks.Deps{Store: store}, submit, time.Minute)

	payload := `{"provider":"bilibili","mediaId":"ss42","title":"某剧","type":"tv_series","season":1}`
	_, err := m.Enqueue(ctx, "emby", []byte(payload), -time.Minute, library.QueueFallback)
	require.NoError(t, err)
	_, err = m.Enqueue(ctx, "emby", []byte(payload), 24*time.Hour, library.QueueFallback)
	require.NoError(t, err)

	require.NoError(t, m.sweepOnce(ctx))

	// Only the already-due row dispatches; the delayed one stays put.
	require.Len(t, submitted, 1)
	assert.Equal(t, library.QueueFallback, submitted[0].QueueType)
	assert.Equal(t, "generic_import", submitted[0].TaskType)

	// A second sweep must not re-dispatch the same row.
	require.NoError(t, m.sweepOnce(ctx))
	assert.Len(t, submitted, 1)
}
