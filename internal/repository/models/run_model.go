package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RunModel represents a single workflow run instance.
type RunModel struct {
	bun.BaseModel `bun:"table:workflow_runs,alias:r"`

	ID          uuid.UUID  `bun:"id,pk,type:uuid,default:uuid_generate_v4()" json:"id"`
	WorkflowID  uuid.UUID  `bun:"workflow_id,notnull,type:uuid" json:"workflow_id" validate:"required"`
	Status      string     `bun:"status,notnull,default:'pending'" json:"status" validate:"required,oneof=pending running completed failed cancelled"`
	Priority    int        `bun:"priority,notnull,default:5" json:"priority"`
	TriggerData JSONBMap   `bun:"trigger_data,type:jsonb,default:'{}'" json:"trigger_data,omitempty"`
	ResultData  JSONBMap   `bun:"result_data,type:jsonb" json:"result_data,omitempty"`
	ErrorCode   string     `bun:"error_code" json:"error_code,omitempty"`
	ErrorMsg    string     `bun:"error_message" json:"error_message,omitempty"`
	ErrorNodeID string     `bun:"error_node_id" json:"error_node_id,omitempty"`
	StartedAt   *time.Time `bun:"started_at" json:"started_at,omitempty"`
	CompletedAt *time.Time `bun:"completed_at" json:"completed_at,omitempty"`
	StartedBy   *uuid.UUID `bun:"started_by,type:uuid" json:"started_by,omitempty"`
	CreatedAt   time.Time  `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt   time.Time  `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at"`

	Workflow       *WorkflowModel        `bun:"rel:belongs-to,join:workflow_id=id" json:"workflow,omitempty"`
	NodeExecutions []*NodeExecutionModel `bun:"rel:has-many,join:id=workflow_run_id" json:"node_executions,omitempty"`
}

// TableName returns the table name for RunModel.
func (RunModel) TableName() string {
	return "workflow_runs"
}

// BeforeInsert sets generated fields prior to insertion.
func (r *RunModel) BeforeInsert(ctx interface{}) error {
	now := time.Now()
	r.CreatedAt = now
	r.UpdatedAt = now
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.TriggerData == nil {
		r.TriggerData = make(JSONBMap)
	}
	if r.Priority == 0 {
		r.Priority = 5
	}
	return nil
}

// BeforeUpdate refreshes the update timestamp.
func (r *RunModel) BeforeUpdate(ctx interface{}) error {
	r.UpdatedAt = time.Now()
	return nil
}

// IsTerminal returns true if the run has reached a final status.
func (r *RunModel) IsTerminal() bool {
	switch r.Status {
	case "completed", "failed", "cancelled":
		return true
	default:
		return false
	}
}

// MarkStarted transitions the run to running.
func (r *RunModel) MarkStarted() {
	now := time.Now()
	r.StartedAt = &now
	r.Status = "running"
}

// MarkCompleted transitions the run to completed.
func (r *RunModel) MarkCompleted(result JSONBMap) {
	now := time.Now()
	r.CompletedAt = &now
	r.Status = "completed"
	r.ResultData = result
}

// MarkFailed transitions the run to failed, recording the originating node.
func (r *RunModel) MarkFailed(code, message, nodeID string) {
	now := time.Now()
	r.CompletedAt = &now
	r.Status = "failed"
	r.ErrorCode = code
	r.ErrorMsg = message
	r.ErrorNodeID = nodeID
}

// MarkCancelled transitions the run to cancelled.
func (r *RunModel) MarkCancelled() {
	now := time.Now()
	r.CompletedAt = &now
	r.Status = "cancelled"
}
