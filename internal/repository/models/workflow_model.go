package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// WorkflowModel represents a workflow definition in the database. The DAG
// itself (nodes and edges) is stored as a single JSONB column rather than
// normalized tables: the definition is always read and written as a whole
// and never queried by node/edge attributes, so normalizing it would only
// add join overhead with no query benefit.
type WorkflowModel struct {
	bun.BaseModel `bun:"table:workflows,alias:w"`

	ID          uuid.UUID  `bun:"id,pk,type:uuid,default:uuid_generate_v4()" json:"id"`
	Name        string     `bun:"name,notnull" json:"name" validate:"required,max=255"`
	Description string     `bun:"description" json:"description,omitempty"`
	Version     int        `bun:"version,notnull,default:1" json:"version" validate:"gte=1"`
	Definition  JSONBMap   `bun:"definition,type:jsonb,notnull,default:'{}'" json:"definition"`
	Status      string     `bun:"status,notnull,default:'draft'" json:"status" validate:"required,oneof=draft active archived"`
	CreatedBy   *uuid.UUID `bun:"created_by,type:uuid" json:"created_by,omitempty"`
	CreatedAt   time.Time  `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt   time.Time  `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at"`
}

// TableName returns the table name for WorkflowModel.
func (WorkflowModel) TableName() string {
	return "workflows"
}

// BeforeInsert sets generated fields prior to insertion.
func (w *WorkflowModel) BeforeInsert(ctx interface{}) error {
	now := time.Now()
	w.CreatedAt = now
	w.UpdatedAt = now
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	if w.Definition == nil {
		w.Definition = make(JSONBMap)
	}
	return nil
}

// BeforeUpdate refreshes the update timestamp.
func (w *WorkflowModel) BeforeUpdate(ctx interface{}) error {
	w.UpdatedAt = time.Now()
	return nil
}

// IsActive returns true if the workflow is in active status.
func (w *WorkflowModel) IsActive() bool {
	return w.Status == "active"
}
