package api

import "github.com/smilemakc/workflowrt/internal/models"

// CreateWorkflowRequest is the POST /workflows body.
type CreateWorkflowRequest struct {
	Name        string            `json:"name" binding:"required"`
	Description string            `json:"description"`
	Definition  models.Definition `json:"definition" binding:"required"`
}

// UpdateWorkflowRequest is the PUT /workflows/{id} body; nil fields are
// left untouched by the engine.
type UpdateWorkflowRequest struct {
	Name        *string                 `json:"name,omitempty"`
	Description *string                 `json:"description,omitempty"`
	Definition  *models.Definition      `json:"definition,omitempty"`
	Status      *models.WorkflowStatus  `json:"status,omitempty"`
}

// StartExecutionRequest is the POST /executions body.
type StartExecutionRequest struct {
	WorkflowID  string         `json:"workflowId" binding:"required"`
	TriggerData map[string]any `json:"triggerData"`
}

// BatchExecutionItem is one element of the POST /executions/batch body.
type BatchExecutionItem struct {
	WorkflowID  string         `json:"workflowId" binding:"required"`
	TriggerData map[string]any `json:"triggerData"`
}

// BatchExecutionRequest is the POST /executions/batch body, capped at 100
// items.
type BatchExecutionRequest struct {
	Runs []BatchExecutionItem `json:"runs" binding:"required,max=100"`
}

const maxBatchSize = 100
