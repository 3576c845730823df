package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/smilemakc/workflowrt/internal/models"
	repomodels "github.com/smilemakc/workflowrt/internal/repository/models"
)

// StateRepository is the durable (tier-2) half of the state store: one
// WorkflowState row per run plus one NodeState row per (runId, nodeId,
// stateType), overwritten by each later write of the same key.
type StateRepository struct {
	db *bun.DB
}

// NewStateRepository creates a new StateRepository.
func NewStateRepository(db *bun.DB) *StateRepository {
	return &StateRepository{db: db}
}

// UpsertWorkflowState writes the full WorkflowState row, inserting it if
// absent.
func (r *StateRepository) UpsertWorkflowState(ctx context.Context, s *models.WorkflowState) error {
	return r.upsertWorkflowState(ctx, r.db, s)
}

func (r *StateRepository) upsertWorkflowState(ctx context.Context, db bun.IDB, s *models.WorkflowState) error {
	row, err := workflowStateFromModel(s)
	if err != nil {
		return fmt.Errorf("state repository: upsert workflow state: %w", err)
	}
	_, err = db.NewInsert().
		Model(row).
		On("CONFLICT (run_id) DO UPDATE").
		Set("status = EXCLUDED.status").
		Set("variables = EXCLUDED.variables").
		Set("node_outputs = EXCLUDED.node_outputs").
		Set("execution_path = EXCLUDED.execution_path").
		Set("trigger_data = EXCLUDED.trigger_data").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("state repository: upsert workflow state: %w", err)
	}
	return nil
}

// GetWorkflowState retrieves the WorkflowState row for a run.
func (r *StateRepository) GetWorkflowState(ctx context.Context, runID string) (*models.WorkflowState, error) {
	uid, err := parseUUID(runID)
	if err != nil {
		return nil, models.ErrRunNotFound
	}
	row := &repomodels.WorkflowStateModel{}
	err = r.db.NewSelect().Model(row).Where("run_id = ?", uid).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrRunNotFound
		}
		return nil, fmt.Errorf("state repository: get workflow state: %w", err)
	}
	return workflowStateToModel(row), nil
}

// UpsertNodeState writes a single (runId, nodeId, stateType) audit row.
func (r *StateRepository) UpsertNodeState(ctx context.Context, s *models.NodeState) error {
	row, err := nodeStateFromModel(s)
	if err != nil {
		return fmt.Errorf("state repository: upsert node state: %w", err)
	}
	_, err = r.db.NewInsert().
		Model(row).
		On("CONFLICT (run_id, node_id, state_type) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("state repository: upsert node state: %w", err)
	}
	return nil
}

// GetNodeState retrieves a single (runId, nodeId, stateType) audit row.
func (r *StateRepository) GetNodeState(ctx context.Context, runID, nodeID string, stateType models.NodeStateType) (*models.NodeState, error) {
	uid, err := parseUUID(runID)
	if err != nil {
		return nil, models.ErrNodeNotFound
	}
	row := &repomodels.NodeStateModel{}
	err = r.db.NewSelect().
		Model(row).
		Where("run_id = ? AND node_id = ? AND state_type = ?", uid, nodeID, string(stateType)).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNodeNotFound
		}
		return nil, fmt.Errorf("state repository: get node state: %w", err)
	}
	return nodeStateToModel(row), nil
}

// CleanupExpired removes durable WorkflowState/NodeState/NodeExecution/Run
// rows for runs older than maxAgeDays, as a retention policy knob. It
// leaves the Workflow definitions themselves untouched.
func (r *StateRepository) CleanupExpired(ctx context.Context, maxAgeDays int) (int, error) {
	res, err := r.db.NewDelete().
		Model((*repomodels.RunModel)(nil)).
		Where("status IN (?)", bun.In([]string{"completed", "failed", "cancelled"})).
		Where("completed_at < now() - (? || ' days')::interval", maxAgeDays).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("state repository: cleanup expired: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("state repository: cleanup expired: %w", err)
	}
	return int(n), nil
}
