// SPDX-License-Identifier: AGPL-3.0-or-later

package taskmanager

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quzard/misaka-danmu-server/internal/apperr"
	"github.com/quzard/misaka-danmu-server/internal/config"
	"github.com/quzard/misaka-danmu-server/internal/library"
)

var testDBSemaphore = make(chan struct{}, 1)
var testDBMutex sync.Mutex

func setupStore(t *testing.T) *library.Store {
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

	var lib *library.Store
	select {
	case r := <-resultCh:
		require.NoError(t, r.err)
		lib = r.lib
	case <-time.After(30 * time.Second):
		t.Fatal("timed out opening in-memory test database")
	}
	t.Cleanup(func() { lib.Close() })
	return lib
}

func TestSubmitRejectsDuplicateTitle(t *testing.T) {
	store := setupStore(t)
	m := New(store)

	block := make(chan struct{})
	factory := func(ctx context.Context, progress ProgressFunc) (apperr.TaskResult, error) {
		<-block
		return apperr.TaskSuccess{Message: "done"}, nil
	}

	id1, err := m.Submit(context.Background(), SubmitRequest{Factory: factory, Title: "import-x", QueueType: library.QueueDownload, RunImmediately: true})
	require.NoError(t, err)
	require.NotEmpty(t, id1)

	_, err = m.Submit(context.Background(), SubmitRequest{Factory: factory, Title: "import-x", QueueType: library.QueueDownload})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.Conflict))

	close(block)
}

func TestSubmitRejectsDuplicateUniqueKey(t *testing.T) {
	store := setupStore(t)
	m := New(store)

	block := make(chan struct{})
	factory := func(ctx context.Context, progress ProgressFunc) (apperr.TaskResult, error) {
		<-block
		return apperr.TaskSuccess{Message: "done"}, nil
	}

	_, err := m.Submit(context.Background(), SubmitRequest{Factory: factory, Title: "a", UniqueKey: "k1", QueueType: library.QueueDownload, RunImmediately: true})
	require.NoError(t, err)

	_, err = m.Submit(context.Background(), SubmitRequest{Factory: factory, Title: "b", UniqueKey: "k1", QueueType: library.QueueDownload})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.Conflict))

	close(block)
}

func TestTaskSuccessMarksCompleted(t *testing.T) {
	store := setupStore(t)
	m := New(store)

	done := make(chan struct{})
	factory := func(ctx context.Context, progress ProgressFunc) (apperr.TaskResult, error) {
		require.NoError(t, progress(ctx, 0, "starting", "fetch"))
		require.NoError(t, progress(ctx, 100, "finishing", "fetch"))
		close(done)
		return apperr.TaskSuccess{Message: "imported 3 comments"}, nil
	}

	taskID, err := m.Submit(context.Background(), SubmitRequest{Factory: factory, Title: "t1", QueueType: library.QueueDownload, RunImmediately: true})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("task did not run")
	}

	require.Eventually(t, func() bool {
		row, err := m.Get(context.Background(), taskID)
		return err == nil && row.Status == library.TaskStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	row, err := m.Get(context.Background(), taskID)
	require.NoError(t, err)
	assert.Equal(t, "imported 3 comments", row.Description)
	assert.Equal(t, 100, row.Progress)
}

func TestPauseBlocksProgressUntilResume(t *testing.T) {
	store := setupStore(t)
	m := New(store)

	reachedCheckpoint := make(chan struct{})
	resumed := make(chan struct{})
	factory := func(ctx context.Context, progress ProgressFunc) (apperr.TaskResult, error) {
		close(reachedCheckpoint)
		if err := progress(ctx, 50, "midway", "fetch"); err != nil {
			return nil, err
		}
		close(resumed)
		return apperr.TaskSuccess{Message: "done"}, nil
	}

	taskID, err := m.Submit(context.Background(), SubmitRequest{Factory: factory, Title: "pausable", QueueType: library.QueueDownload, RunImmediately: true})
	require.NoError(t, err)

	<-reachedCheckpoint
	require.NoError(t, m.Pause(context.Background(), taskID))

	select {
	case <-resumed:
		t.Fatal("task resumed before Resume was called")
	case <-time.After(200 * time.Millisecond):
	}

	require.NoError(t, m.Resume(context.Background(), taskID))

	select {
	case <-resumed:
	case <-time.After(5 * time.Second):
		t.Fatal("task never resumed")
	}
}

func mustHandle(t *testing.T, m *Manager, taskID string) *taskHandle {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.tasks[taskID]
	require.True(t, ok)
	return h
}

func TestAbortMarksFailedWithManualAbortMessage(t *testing.T) {
	store := setupStore(t)
	m := New(store)

	started := make(chan struct{})
	factory := func(ctx context.Context, progress ProgressFunc) (apperr.TaskResult, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}

	taskID, err := m.Submit(context.Background(), SubmitRequest{Factory: factory, Title: "abortable", QueueType: library.QueueDownload, RunImmediately: true})
	require.NoError(t, err)

	<-started
	require.NoError(t, m.Abort(taskID))

	require.Eventually(t, func() bool {
		row, err := m.Get(context.Background(), taskID)
		return err == nil && row.Status == library.TaskStatusFailed
	}, 2*time.Second, 10*time.Millisecond)

	row, err := m.Get(context.Background(), taskID)
	require.NoError(t, err)
	assert.Equal(t, "被用户手动中止", row.Description)
}

func TestStartRecoversInterruptedTasks(t *testing.T) {
	store := setupStore(t)
	taskType := "generic_import"
	params := `{"provider":"alpha","mediaId":"1"}`
	require.NoError(t, store.CreateTaskHistory(context.Background(), &library.TaskHistory{
		TaskID:         "11111111-1111-1111-1111-111111111111",
		Title:          "crashed-task",
		Status:         library.TaskStatusPending,
		QueueType:      library.QueueDownload,
		TaskType:       &taskType,
		TaskParameters: &params,
	}))
	require.NoError(t, store.SetTaskRunning(context.Background(), "11111111-1111-1111-1111-111111111111", true))

	m := New(store)

	var recovered bool
	m.RegisterRecoveryHandler("generic_import", func(taskID, parameters string) (*SubmitRequest, error) {
		recovered = true
		assert.Equal(t, params, parameters)
		return nil, nil
	})

	require.NoError(t, m.Start(context.Background()))
	assert.True(t, recovered)

	row, err := store.GetTaskHistory(context.Background(), "11111111-1111-1111-1111-111111111111")
	require.NoError(t, err)
	assert.Equal(t, library.TaskStatusFailed, row.Status)
	assert.Equal(t, "进程重启，任务已中断", row.Description)
}
