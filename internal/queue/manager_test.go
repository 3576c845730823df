package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/workflowrt/internal/cache"
	"github.com/smilemakc/workflowrt/internal/config"
)

func newTestManager(t *testing.T) (*Manager, *Registry) {
	t.Helper()
	s := miniredis.RunT(t)
	t.Cleanup(s.Close)

	c, err := cache.NewRedisCache(config.RedisConfig{URL: "redis://" + s.Addr(), PoolSize: 10})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	reg := NewRegistry()
	mgr := NewManager(c, reg, Config{Workers: 1, PollInterval: 5 * time.Millisecond}, nil)
	return mgr, reg
}

func TestSubmitTask_DistinctIDs(t *testing.T) {
	mgr, reg := newTestManager(t)
	reg.Register("workflow.execute", Spec{Queue: QueueWorkflow, Handler: func(ctx context.Context, task *Task) (map[string]any, error) {
		return map[string]any{"ok": true}, nil
	}})

	id1, err := mgr.SubmitTask(context.Background(), "workflow.execute", nil, nil, 5, "", 0, nil, nil)
	require.NoError(t, err)
	id2, err := mgr.SubmitTask(context.Background(), "workflow.execute", nil, nil, 5, "", 0, nil, nil)
	require.NoError(t, err)

	assert.NotEqual(t, id1, id2)
}

func TestSubmitTask_UnknownName(t *testing.T) {
	mgr, _ := newTestManager(t)
	_, err := mgr.SubmitTask(context.Background(), "bogus.task", nil, nil, 5, "", 0, nil, nil)
	assert.Error(t, err)
}

func TestGetTaskStatus_Pending(t *testing.T) {
	mgr, reg := newTestManager(t)
	reg.Register("notifications.send", Spec{Queue: QueueNotifications, Handler: func(ctx context.Context, task *Task) (map[string]any, error) {
		return nil, nil
	}})
	id, err := mgr.SubmitTask(context.Background(), "notifications.send", nil, nil, 5, "", 0, nil, nil)
	require.NoError(t, err)

	view, err := mgr.GetTaskStatus(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, view.Status)
}

func TestWorkerPool_ProcessesAndSucceeds(t *testing.T) {
	mgr, reg := newTestManager(t)
	done := make(chan struct{}, 1)
	reg.Register("workflow.execute", Spec{Queue: QueueWorkflow, Handler: func(ctx context.Context, task *Task) (map[string]any, error) {
		done <- struct{}{}
		return map[string]any{"ran": true}, nil
	}})

	id, err := mgr.SubmitTask(context.Background(), "workflow.execute", nil, nil, 5, "", 0, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mgr.Start(ctx)
	defer mgr.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never ran")
	}

	require.Eventually(t, func() bool {
		view, err := mgr.GetTaskStatus(context.Background(), id)
		return err == nil && view.Status == StatusSuccess
	}, time.Second, 10*time.Millisecond)
}

func TestWorkerPool_RetriesTransientFailure(t *testing.T) {
	mgr, reg := newTestManager(t)
	attempts := 0
	reg.Register("forms.process_submission", Spec{
		Queue: QueueForms,
		Handler: func(ctx context.Context, task *Task) (map[string]any, error) {
			attempts++
			if attempts < 2 {
				return nil, Transient(errors.New("temporary glitch"))
			}
			return map[string]any{"attempt": attempts}, nil
		},
		RetryPolicy: RetryPolicy{MaxRetries: 3, Countdown: time.Millisecond},
	})

	id, err := mgr.SubmitTask(context.Background(), "forms.process_submission", nil, nil, 5, "", 0, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mgr.Start(ctx)
	defer mgr.Stop()

	require.Eventually(t, func() bool {
		view, err := mgr.GetTaskStatus(context.Background(), id)
		return err == nil && view.Status == StatusSuccess
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 2, attempts)
}

func TestCancelTask_Pending(t *testing.T) {
	mgr, reg := newTestManager(t)
	reg.Register("system.cleanup_expired_data", Spec{Queue: QueueSystem, Handler: func(ctx context.Context, task *Task) (map[string]any, error) {
		return nil, nil
	}})
	id, err := mgr.SubmitTask(context.Background(), "system.cleanup_expired_data", nil, nil, 5, "", 0, nil, nil)
	require.NoError(t, err)

	ok, err := mgr.CancelTask(context.Background(), id, false)
	require.NoError(t, err)
	assert.True(t, ok)

	view, err := mgr.GetTaskStatus(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StatusRevoked, view.Status)
}

func TestCancelTask_AlreadyTerminalReturnsFalse(t *testing.T) {
	mgr, reg := newTestManager(t)
	reg.Register("workflow.execute", Spec{Queue: QueueWorkflow, Handler: func(ctx context.Context, task *Task) (map[string]any, error) {
		return map[string]any{}, nil
	}})
	id, err := mgr.SubmitTask(context.Background(), "workflow.execute", nil, nil, 5, "", 0, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mgr.Start(ctx)

	require.Eventually(t, func() bool {
		view, err := mgr.GetTaskStatus(context.Background(), id)
		return err == nil && view.Status == StatusSuccess
	}, time.Second, 10*time.Millisecond)
	mgr.Stop()

	ok, err := mgr.CancelTask(context.Background(), id, false)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPurgeQueue(t *testing.T) {
	mgr, reg := newTestManager(t)
	reg.Register("workflow.execute", Spec{Queue: QueueWorkflow, Handler: func(ctx context.Context, task *Task) (map[string]any, error) {
		return nil, nil
	}})
	for i := 0; i < 3; i++ {
		_, err := mgr.SubmitTask(context.Background(), "workflow.execute", nil, nil, 5, "", 0, nil, nil)
		require.NoError(t, err)
	}

	n, err := mgr.PurgeQueue(context.Background(), QueueWorkflow)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	stats, err := mgr.GetQueueStats(context.Background())
	require.NoError(t, err)
	for _, s := range stats {
		if s.Name == QueueWorkflow {
			assert.Equal(t, int64(0), s.Depth)
		}
	}
}

func TestQueuePriority_HigherStaticQueueDrainsFirst(t *testing.T) {
	mgr, reg := newTestManager(t)
	order := make(chan Name, 2)
	handler := func(ctx context.Context, task *Task) (map[string]any, error) {
		order <- task.Queue
		return map[string]any{}, nil
	}
	reg.Register("system.cleanup_expired_data", Spec{Queue: QueueSystem, Handler: handler})
	reg.Register("workflow.execute", Spec{Queue: QueueWorkflow, Handler: handler})

	_, err := mgr.SubmitTask(context.Background(), "system.cleanup_expired_data", nil, nil, 5, "", 0, nil, nil)
	require.NoError(t, err)
	_, err = mgr.SubmitTask(context.Background(), "workflow.execute", nil, nil, 5, "", 0, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mgr.Start(ctx)
	defer mgr.Stop()

	first := <-order
	assert.Equal(t, QueueWorkflow, first)
}

func TestHealthCheck(t *testing.T) {
	mgr, _ := newTestManager(t)
	assert.NoError(t, mgr.HealthCheck(context.Background()))
}
