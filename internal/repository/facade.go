// Package repository is the narrow persistence contract the engine depends
// on: Workflows, Runs, NodeExecutions, and the WorkflowState/NodeState
// durable tier, backed by Postgres via bun.
package repository

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/smilemakc/workflowrt/internal/models"
)

// Facade aggregates the per-entity repositories the engine needs and adds
// the one write that must be transactional: marking a run terminal
// together with its final WorkflowState.
type Facade struct {
	db *bun.DB

	Workflows      *WorkflowRepository
	Runs           *RunRepository
	NodeExecutions *NodeExecutionRepository
	State          *StateRepository
}

// New builds a Facade over an established bun.DB connection.
func New(db *bun.DB) *Facade {
	return &Facade{
		db:             db,
		Workflows:      NewWorkflowRepository(db),
		Runs:           NewRunRepository(db),
		NodeExecutions: NewNodeExecutionRepository(db),
		State:          NewStateRepository(db),
	}
}

// DB exposes the underlying connection, for health checks and migrations.
func (f *Facade) DB() *bun.DB {
	return f.db
}

// FinalizeRun atomically marks a run terminal and writes its final
// WorkflowState. Run status and state must never diverge at run end, so
// both rows go through one transaction.
func (f *Facade) FinalizeRun(ctx context.Context, run *models.WorkflowRun, state *models.WorkflowState) error {
	if !run.Status.IsTerminal() {
		return fmt.Errorf("repository: FinalizeRun called with non-terminal status %s", run.Status)
	}
	return f.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		runRow, err := runFromModel(run)
		if err != nil {
			return fmt.Errorf("finalize run: %w", err)
		}
		_, err = tx.NewUpdate().
			Model(runRow).
			Column("status", "error_code", "error_message", "error_node_id", "result_data", "completed_at", "updated_at").
			Where("id = ?", runRow.ID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("finalize run: update run: %w", err)
		}
		if err := f.State.upsertWorkflowState(ctx, tx, state); err != nil {
			return fmt.Errorf("finalize run: %w", err)
		}
		return nil
	})
}

// Health verifies connectivity to the durable store.
func (f *Facade) Health(ctx context.Context) error {
	return f.db.PingContext(ctx)
}

// Close releases the underlying connection.
func (f *Facade) Close() error {
	return f.db.Close()
}
