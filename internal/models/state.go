package models

import "time"

// Scope distinguishes the three addressable regions of state a StateKey
// can point into.
type Scope string

const (
	ScopeWorkflow Scope = "workflow"
	ScopeNode     Scope = "node"
	ScopeGlobal   Scope = "global"
)

// StateKey addresses a single value in the State Store: (scope, runId,
// nodeId?, subKey?).
type StateKey struct {
	Scope  Scope
	RunID  string
	NodeID string
	SubKey string
}

// NodeStateType enumerates the stateType component of a NodeState key.
type NodeStateType string

const (
	NodeStateInput        NodeStateType = "input"
	NodeStateOutput       NodeStateType = "output"
	NodeStateIntermediate NodeStateType = "intermediate"
	NodeStateConfig       NodeStateType = "config"
)

// ExecutionStep is one entry in a WorkflowState's append-only
// executionPath.
type ExecutionStep struct {
	NodeID    string         `json:"nodeId"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// WorkflowState is the single, per-run object carrying the run's live
// status, variables, per-node outputs, and invocation history.
type WorkflowState struct {
	RunID         string           `json:"runId"`
	Status        string           `json:"status"`
	StartedAt     time.Time        `json:"startedAt"`
	UpdatedAt     time.Time        `json:"updatedAt"`
	Variables     map[string]any   `json:"variables"`
	NodeOutputs   map[string]any   `json:"nodeOutputs"`
	ExecutionPath []ExecutionStep  `json:"executionPath"`
	TriggerData   map[string]any   `json:"triggerData,omitempty"`
}

// NodeState is a generic audit-sink row keyed by (runId, nodeId,
// stateType).
type NodeState struct {
	RunID     string         `json:"runId"`
	NodeID    string         `json:"nodeId"`
	StateType NodeStateType  `json:"stateType"`
	Value     map[string]any `json:"value"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// NodeInput is the canonical envelope supplied to executors:
// {workflow, nodes, trigger}.
type NodeInput struct {
	Workflow NodeInputWorkflow `json:"workflow"`
	Nodes    map[string]any    `json:"nodes"`
	Trigger  map[string]any    `json:"trigger,omitempty"`
}

// NodeInputWorkflow is the `workflow` field of a NodeInput envelope.
type NodeInputWorkflow struct {
	RunID     string         `json:"runId"`
	Status    string         `json:"status"`
	Variables map[string]any `json:"variables"`
}
