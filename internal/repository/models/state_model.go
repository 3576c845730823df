package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// WorkflowStateModel is the durable record of a run's accumulated variables,
// node outputs and execution path. It is the tier-2 (authoritative) half of
// the state store; the cache tier holds the same shape keyed by run ID for
// fast in-flight reads and is rebuilt from this row on a cache miss.
type WorkflowStateModel struct {
	bun.BaseModel `bun:"table:workflow_states,alias:ws"`

	RunID         uuid.UUID `bun:"run_id,pk,type:uuid" json:"run_id"`
	Status        string    `bun:"status,notnull" json:"status"`
	Variables     JSONBMap  `bun:"variables,type:jsonb,default:'{}'" json:"variables"`
	NodeOutputs   JSONBMap  `bun:"node_outputs,type:jsonb,default:'{}'" json:"node_outputs"`
	ExecutionPath JSONBMap  `bun:"execution_path,type:jsonb,default:'{}'" json:"execution_path"`
	TriggerData   JSONBMap  `bun:"trigger_data,type:jsonb,default:'{}'" json:"trigger_data"`
	CreatedAt     time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt     time.Time `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at"`
}

// TableName returns the table name for WorkflowStateModel.
func (WorkflowStateModel) TableName() string {
	return "workflow_states"
}

// BeforeInsert sets generated fields prior to insertion.
func (s *WorkflowStateModel) BeforeInsert(ctx interface{}) error {
	now := time.Now()
	s.CreatedAt = now
	s.UpdatedAt = now
	if s.Variables == nil {
		s.Variables = make(JSONBMap)
	}
	if s.NodeOutputs == nil {
		s.NodeOutputs = make(JSONBMap)
	}
	if s.ExecutionPath == nil {
		s.ExecutionPath = make(JSONBMap)
	}
	return nil
}

// BeforeUpdate refreshes the update timestamp.
func (s *WorkflowStateModel) BeforeUpdate(ctx interface{}) error {
	s.UpdatedAt = time.Now()
	return nil
}

// NodeStateModel is a single scoped value written by a node during a run:
// its resolved input envelope, raw output, or an intermediate the node chose
// to persist. RunID/NodeID/StateType together form the natural key.
type NodeStateModel struct {
	bun.BaseModel `bun:"table:node_states,alias:ns"`

	ID        uuid.UUID `bun:"id,pk,type:uuid,default:uuid_generate_v4()" json:"id"`
	RunID     uuid.UUID `bun:"run_id,notnull,type:uuid" json:"run_id"`
	NodeID    string    `bun:"node_id,notnull" json:"node_id"`
	StateType string    `bun:"state_type,notnull" json:"state_type" validate:"required,oneof=input output intermediate config"`
	Value     JSONBMap  `bun:"value,type:jsonb,default:'{}'" json:"value"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at"`
}

// TableName returns the table name for NodeStateModel.
func (NodeStateModel) TableName() string {
	return "node_states"
}

// BeforeInsert sets generated fields prior to insertion.
func (s *NodeStateModel) BeforeInsert(ctx interface{}) error {
	s.UpdatedAt = time.Now()
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.Value == nil {
		s.Value = make(JSONBMap)
	}
	return nil
}

// BeforeUpdate refreshes the update timestamp.
func (s *NodeStateModel) BeforeUpdate(ctx interface{}) error {
	s.UpdatedAt = time.Now()
	return nil
}
