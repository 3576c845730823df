// Package queue implements the task queue and worker manager: a fixed
// set of statically-prioritized queues backed by Redis sorted sets, a
// task-name registry, and a worker pool that drains higher-priority queues
// first.
package queue

import (
	"context"
	"time"
)

// Status is a task's lifecycle status.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusStarted Status = "STARTED"
	StatusSuccess Status = "SUCCESS"
	StatusFailure Status = "FAILURE"
	StatusRetry   Status = "RETRY"
	StatusRevoked Status = "REVOKED"
)

// IsTerminal reports whether a redelivery after this status must be
// ignored (SUCCESS/FAILURE/REVOKED are terminal; PENDING/STARTED/RETRY are
// not).
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSuccess, StatusFailure, StatusRevoked:
		return true
	default:
		return false
	}
}

// Name is one of the five fixed queues. Each carries a static priority
// used to decide which queue a worker drains first; within a queue,
// ordering additionally respects each task's own Priority field (1-10).
type Name string

const (
	QueueWorkflow      Name = "workflow"
	QueueForms         Name = "forms"
	QueueIntegration   Name = "integration"
	QueueNotifications Name = "notifications"
	QueueSystem        Name = "system"
)

// staticPriority is the fixed, queue-level priority.
var staticPriority = map[Name]int{
	QueueWorkflow:      3,
	QueueForms:         2,
	QueueIntegration:   2,
	QueueNotifications: 1,
	QueueSystem:        0,
}

// drainOrder lists the fixed queues from highest to lowest static
// priority; a worker drains them in this order before blocking.
var drainOrder = []Name{QueueWorkflow, QueueForms, QueueIntegration, QueueNotifications, QueueSystem}

// RetryPolicy is a task name's declared retry behavior.
type RetryPolicy struct {
	MaxRetries int
	Countdown  time.Duration
}

// Handler executes one task attempt and returns its result payload. An
// error satisfying IsTransient is requeued with backoff up to the task's
// RetryPolicy; any other error fails the task immediately.
type Handler func(ctx context.Context, task *Task) (map[string]any, error)

// Spec is a registered task name: which queue it defaults to, its
// handler, and its default retry policy.
type Spec struct {
	Queue       Name
	Handler     Handler
	RetryPolicy RetryPolicy
}

// Task is one submitted unit of work, named `{domain.verb}`.
type Task struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Queue      Name           `json:"queue"`
	Args       map[string]any `json:"args,omitempty"`
	Kwargs     map[string]any `json:"kwargs,omitempty"`
	Priority   int            `json:"priority"`
	Status     Status         `json:"status"`
	Result     map[string]any `json:"result,omitempty"`
	Error      string         `json:"error,omitempty"`
	RetryCount int            `json:"retryCount"`
	MaxRetries int            `json:"maxRetries"`
	CreatedAt  time.Time      `json:"createdAt"`
	ETA        *time.Time     `json:"eta,omitempty"`
	Expires    *time.Time     `json:"expires,omitempty"`
}

// Registry is the task-name registry consulted at submission time to
// resolve a handler, default queue, and default retry policy. Safe for
// concurrent use only via the caller's own coordination; registrations are
// expected at startup, mirroring the validator/dispatcher known-type
// registries.
type Registry struct {
	specs map[string]Spec
}

// NewRegistry returns an empty task registry.
func NewRegistry() *Registry {
	return &Registry{specs: make(map[string]Spec)}
}

// Register adds or replaces the Spec for a task name.
func (r *Registry) Register(name string, spec Spec) {
	r.specs[name] = spec
}

// Get resolves a task name to its Spec.
func (r *Registry) Get(name string) (Spec, bool) {
	spec, ok := r.specs[name]
	return spec, ok
}
