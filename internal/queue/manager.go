// Package queue implements the task queue and worker manager.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/smilemakc/workflowrt/internal/cache"
	"github.com/smilemakc/workflowrt/internal/logger"
)

// keyPrefix namespaces every Redis key the queue touches so it can share
// a cache instance with the State Store without collision.
const keyPrefix = "queue:"

func zsetKey(q Name) string     { return keyPrefix + "zset:" + string(q) }
func metaKey(taskID string) string { return keyPrefix + "meta:" + taskID }

// Manager is the Task Queue / Worker Manager: a fixed set of
// statically-prioritized queues backed by Redis sorted sets (score
// encodes static queue priority plus per-task priority, so ZPopMax
// drains the highest-priority task across all waiting work), a pool of
// worker goroutines that claim and execute tasks, and task metadata
// cached under its id for idempotent status lookups.
type Manager struct {
	cache    *cache.RedisCache
	registry *Registry
	logger   *logger.Logger

	workers int
	poll    time.Duration

	wg     sync.WaitGroup
	stopCh chan struct{}

	mu      sync.Mutex
	running bool

	stats workerStats
}

type workerStats struct {
	mu        sync.Mutex
	processed map[string]int64 // queue -> count
	failed    map[string]int64
}

// Config configures a Manager's worker pool.
type Config struct {
	Workers      int
	PollInterval time.Duration
}

// NewManager builds a Manager over the given cache (Redis broker) and
// task registry. Call Start to launch its worker pool.
func NewManager(c *cache.RedisCache, registry *Registry, cfg Config, log *logger.Logger) *Manager {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 250 * time.Millisecond
	}
	if log == nil {
		log = logger.Default()
	}
	return &Manager{
		cache:    c,
		registry: registry,
		logger:   log,
		workers:  cfg.Workers,
		poll:     cfg.PollInterval,
		stopCh:   make(chan struct{}),
		stats: workerStats{
			processed: make(map[string]int64),
			failed:    make(map[string]int64),
		},
	}
}

// score encodes a task's dequeue priority: higher static queue priority
// and higher per-task priority both sort first. Multiplying the queue's
// static priority by 100 keeps it the dominant term so that, e.g., the
// lowest-priority "workflow" task (priority 1) still outranks the
// highest-priority "system" task (priority 10).
func score(q Name, priority int) float64 {
	return float64(staticPriority[q]*100 + priority)
}

// SubmitTask enqueues a new task under name, resolving its queue and
// retry policy from the registry unless overridden. It returns the new
// task's id; submitting the same payload twice yields two distinct ids
// with no dedup guarantee.
func (m *Manager) SubmitTask(ctx context.Context, name string, args, kwargs map[string]any, priority int, queue Name, countdown time.Duration, eta, expires *time.Time) (string, error) {
	spec, ok := m.registry.Get(name)
	if !ok {
		return "", fmt.Errorf("queue: unknown task name %q", name)
	}
	if queue == "" {
		queue = spec.Queue
	}
	if priority < 1 || priority > 10 {
		priority = 5
	}

	task := &Task{
		ID:         uuid.New().String(),
		Name:       name,
		Queue:      queue,
		Args:       args,
		Kwargs:     kwargs,
		Priority:   priority,
		Status:     StatusPending,
		MaxRetries: spec.RetryPolicy.MaxRetries,
		CreatedAt:  time.Now().UTC(),
		ETA:        eta,
		Expires:    expires,
	}
	if countdown > 0 && eta == nil {
		fireAt := task.CreatedAt.Add(countdown)
		task.ETA = &fireAt
	}

	if err := m.saveTask(ctx, task); err != nil {
		return "", fmt.Errorf("queue: submit task: %w", err)
	}
	if err := m.enqueue(ctx, task); err != nil {
		return "", fmt.Errorf("queue: submit task: %w", err)
	}
	return task.ID, nil
}

func (m *Manager) enqueue(ctx context.Context, task *Task) error {
	return m.cache.ZAdd(ctx, zsetKey(task.Queue), score(task.Queue, task.Priority), task.ID)
}

func (m *Manager) saveTask(ctx context.Context, task *Task) error {
	raw, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return m.cache.Set(ctx, metaKey(task.ID), raw, 7*24*time.Hour)
}

func (m *Manager) loadTask(ctx context.Context, taskID string) (*Task, error) {
	raw, err := m.cache.Get(ctx, metaKey(taskID))
	if err != nil {
		return nil, fmt.Errorf("queue: task %s not found: %w", taskID, err)
	}
	var task Task
	if err := json.Unmarshal([]byte(raw), &task); err != nil {
		return nil, fmt.Errorf("queue: decode task %s: %w", taskID, err)
	}
	return &task, nil
}

// TaskStatusView is the {status, result, error, metadata} shape returned
// by GetTaskStatus.
type TaskStatusView struct {
	Status     Status         `json:"status"`
	Result     map[string]any `json:"result,omitempty"`
	Error      string         `json:"error,omitempty"`
	RetryCount int            `json:"retryCount"`
	Metadata   map[string]any `json:"metadata"`
}

// GetTaskStatus reads a task's current status and result.
func (m *Manager) GetTaskStatus(ctx context.Context, taskID string) (*TaskStatusView, error) {
	task, err := m.loadTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return &TaskStatusView{
		Status:     task.Status,
		Result:     task.Result,
		Error:      task.Error,
		RetryCount: task.RetryCount,
		Metadata: map[string]any{
			"name":      task.Name,
			"queue":     task.Queue,
			"priority":  task.Priority,
			"createdAt": task.CreatedAt,
		},
	}, nil
}

// CancelTask revokes a pending or retrying task. A task already STARTED
// is only marked REVOKED if terminate is true; a task already terminal
// is left unchanged and CancelTask returns false.
func (m *Manager) CancelTask(ctx context.Context, taskID string, terminate bool) (bool, error) {
	task, err := m.loadTask(ctx, taskID)
	if err != nil {
		return false, err
	}
	if task.Status.IsTerminal() {
		return false, nil
	}
	if task.Status == StatusStarted && !terminate {
		return false, nil
	}
	_ = m.cache.ZRem(ctx, zsetKey(task.Queue), taskID)
	task.Status = StatusRevoked
	if err := m.saveTask(ctx, task); err != nil {
		return false, err
	}
	return true, nil
}

// PurgeQueue discards every task currently waiting in queue and returns
// the number discarded.
func (m *Manager) PurgeQueue(ctx context.Context, queue Name) (int, error) {
	n := 0
	for {
		zs, err := m.cache.ZPopMax(ctx, zsetKey(queue))
		if err != nil || len(zs) == 0 {
			break
		}
		n++
		taskID := fmt.Sprint(zs[0].Member)
		if task, err := m.loadTask(ctx, taskID); err == nil {
			task.Status = StatusRevoked
			_ = m.saveTask(ctx, task)
		}
	}
	return n, nil
}

// QueueStats is one queue's current depth and static priority.
type QueueStats struct {
	Name     Name `json:"name"`
	Priority int  `json:"priority"`
	Depth    int64 `json:"depth"`
}

// GetQueueStats reports the current waiting depth of every fixed queue.
func (m *Manager) GetQueueStats(ctx context.Context) ([]QueueStats, error) {
	out := make([]QueueStats, 0, len(drainOrder))
	for _, q := range drainOrder {
		depth, err := m.cache.ZCard(ctx, zsetKey(q))
		if err != nil {
			depth = 0
		}
		out = append(out, QueueStats{Name: q, Priority: staticPriority[q], Depth: depth})
	}
	return out, nil
}

// WorkerStats summarizes this instance's worker pool throughput.
type WorkerStats struct {
	Workers   int              `json:"workers"`
	Processed map[string]int64 `json:"processed"`
	Failed    map[string]int64 `json:"failed"`
}

// GetWorkerStats reports how many tasks this instance's workers have
// processed and failed, per queue.
func (m *Manager) GetWorkerStats() WorkerStats {
	m.stats.mu.Lock()
	defer m.stats.mu.Unlock()
	processed := make(map[string]int64, len(m.stats.processed))
	for k, v := range m.stats.processed {
		processed[k] = v
	}
	failed := make(map[string]int64, len(m.stats.failed))
	for k, v := range m.stats.failed {
		failed[k] = v
	}
	return WorkerStats{Workers: m.workers, Processed: processed, Failed: failed}
}

// HealthCheck verifies the broker connection backing the queue.
func (m *Manager) HealthCheck(ctx context.Context) error {
	return m.cache.Health(ctx)
}

// Start launches the worker pool: each worker loops draining the fixed
// queues in static-priority order, polling at the configured interval
// when all are empty.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.mu.Unlock()

	for i := 0; i < m.workers; i++ {
		m.wg.Add(1)
		go m.workerLoop(ctx, i)
	}
}

// Stop signals all workers to exit and waits for them to drain.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.mu.Unlock()

	close(m.stopCh)
	m.wg.Wait()
}

func (m *Manager) workerLoop(ctx context.Context, id int) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			for m.claimAndRun(ctx) {
				// drain everything ready before sleeping again
			}
		}
	}
}

// claimAndRun pops the single highest-priority ready task across all
// queues (by scanning drainOrder and taking the first non-empty queue's
// top member — the static-priority weighting in score() means the first
// hit is also globally highest) and executes it. It returns true if a
// task was claimed, so the caller can keep draining without waiting for
// the next poll tick.
func (m *Manager) claimAndRun(ctx context.Context) bool {
	for _, q := range drainOrder {
		zs, err := m.cache.ZPopMax(ctx, zsetKey(q))
		if err != nil || len(zs) == 0 {
			continue
		}
		taskID := fmt.Sprint(zs[0].Member)
		m.runTask(ctx, taskID)
		return true
	}
	return false
}

func (m *Manager) runTask(ctx context.Context, taskID string) {
	task, err := m.loadTask(ctx, taskID)
	if err != nil {
		m.logger.Error("queue: load claimed task failed", "taskId", taskID, "error", err)
		return
	}
	if task.Status.IsTerminal() {
		return // redelivery after terminal is ignored
	}
	if task.ETA != nil && time.Now().UTC().Before(*task.ETA) {
		// Not due yet: requeue at the same priority and let a later tick pick it up.
		_ = m.enqueue(ctx, task)
		return
	}
	if task.Expires != nil && time.Now().UTC().After(*task.Expires) {
		task.Status = StatusFailure
		task.Error = "expired before execution"
		_ = m.saveTask(ctx, task)
		return
	}

	spec, ok := m.registry.Get(task.Name)
	if !ok {
		task.Status = StatusFailure
		task.Error = fmt.Sprintf("no handler registered for task %q", task.Name)
		_ = m.saveTask(ctx, task)
		return
	}

	task.Status = StatusStarted
	_ = m.saveTask(ctx, task)

	result, err := spec.Handler(ctx, task)
	if err != nil {
		if IsTransient(err) && task.RetryCount < task.MaxRetries {
			task.RetryCount++
			task.Status = StatusRetry
			task.Error = err.Error()
			_ = m.saveTask(ctx, task)
			backoff := spec.RetryPolicy.Countdown * time.Duration(math.Pow(2, float64(task.RetryCount-1)))
			fireAt := time.Now().UTC().Add(backoff)
			task.ETA = &fireAt
			_ = m.saveTask(ctx, task)
			_ = m.enqueue(ctx, task)
			return
		}
		task.Status = StatusFailure
		task.Error = err.Error()
		_ = m.saveTask(ctx, task)
		m.recordOutcome(task.Queue, false)
		return
	}

	task.Status = StatusSuccess
	task.Result = result
	_ = m.saveTask(ctx, task)
	m.recordOutcome(task.Queue, true)
}

func (m *Manager) recordOutcome(queue Name, success bool) {
	m.stats.mu.Lock()
	defer m.stats.mu.Unlock()
	if success {
		m.stats.processed[string(queue)]++
	} else {
		m.stats.failed[string(queue)]++
	}
}
