package models

import "time"

// RunStatus is the lifecycle status of a WorkflowRun.
type RunStatus string

const (
	RunStatusPending   RunStatus = "PENDING"
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusCompleted RunStatus = "COMPLETED"
	RunStatusFailed    RunStatus = "FAILED"
	RunStatusCancelled RunStatus = "CANCELLED"
)

// IsTerminal reports whether the status admits no further transitions.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
		return true
	default:
		return false
	}
}

// RunError is the structured error carried by a terminal WorkflowRun.
type RunError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	NodeID  string `json:"nodeId,omitempty"`
}

func (e *RunError) Error() string {
	if e == nil {
		return ""
	}
	if e.NodeID != "" {
		return e.Code + " at node " + e.NodeID + ": " + e.Message
	}
	return e.Code + ": " + e.Message
}

// WorkflowRun is one execution attempt of a workflow.
type WorkflowRun struct {
	ID          string         `json:"id"`
	WorkflowID  string         `json:"workflowId"`
	Status      RunStatus      `json:"status"`
	TriggerData map[string]any `json:"triggerData,omitempty"`
	ResultData  map[string]any `json:"resultData,omitempty"`
	Error       *RunError      `json:"error,omitempty"`
	StartedAt   *time.Time     `json:"startedAt,omitempty"`
	CompletedAt *time.Time     `json:"completedAt,omitempty"`
	StartedBy   string         `json:"startedBy,omitempty"`
	Priority    int            `json:"priority"`
}

// DefaultPriority is the priority assigned to a run when the caller does
// not specify one.
const DefaultPriority = 5

// NodeExecutionStatus is the lifecycle status of a single node attempt.
type NodeExecutionStatus string

const (
	NodeExecutionPending   NodeExecutionStatus = "PENDING"
	NodeExecutionRunning   NodeExecutionStatus = "RUNNING"
	NodeExecutionCompleted NodeExecutionStatus = "COMPLETED"
	NodeExecutionFailed    NodeExecutionStatus = "FAILED"
	NodeExecutionSkipped   NodeExecutionStatus = "SKIPPED"
	NodeExecutionCancelled NodeExecutionStatus = "CANCELLED"
)

// IsTerminal reports whether the node execution status is final.
func (s NodeExecutionStatus) IsTerminal() bool {
	switch s {
	case NodeExecutionCompleted, NodeExecutionFailed, NodeExecutionSkipped, NodeExecutionCancelled:
		return true
	default:
		return false
	}
}

// NodeExecution is one row per node attempt within a run; retries append
// new rows rather than mutating a terminal one.
type NodeExecution struct {
	ID             string               `json:"id"`
	WorkflowRunID  string               `json:"workflowRunId"`
	NodeID         string               `json:"nodeId"`
	NodeType       string               `json:"nodeType"`
	Status         NodeExecutionStatus  `json:"status"`
	InputData      map[string]any       `json:"inputData,omitempty"`
	OutputData     map[string]any       `json:"outputData,omitempty"`
	Error          string               `json:"error,omitempty"`
	StartedAt      *time.Time           `json:"startedAt,omitempty"`
	CompletedAt    *time.Time           `json:"completedAt,omitempty"`
	ExecutionOrder int                  `json:"executionOrder"`
	RetryCount     int                  `json:"retryCount"`
}

// Duration returns the execution time, or zero if not yet completed.
func (n *NodeExecution) Duration() time.Duration {
	if n.StartedAt == nil || n.CompletedAt == nil {
		return 0
	}
	return n.CompletedAt.Sub(*n.StartedAt)
}
