package repository

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/smilemakc/workflowrt/internal/models"
	repomodels "github.com/smilemakc/workflowrt/internal/repository/models"
)

// NodeExecutionRepository persists NodeExecution rows. Retries append new
// rows rather than mutating a terminal one; there is intentionally no
// Update method.
type NodeExecutionRepository struct {
	db *bun.DB
}

// NewNodeExecutionRepository creates a new NodeExecutionRepository.
func NewNodeExecutionRepository(db *bun.DB) *NodeExecutionRepository {
	return &NodeExecutionRepository{db: db}
}

// Append inserts a new node execution row for an attempt.
func (r *NodeExecutionRepository) Append(ctx context.Context, ne *models.NodeExecution) (*models.NodeExecution, error) {
	row, err := nodeExecutionFromModel(ne)
	if err != nil {
		return nil, fmt.Errorf("node execution repository: append: %w", err)
	}
	if _, err := r.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return nil, fmt.Errorf("node execution repository: append: %w", err)
	}
	return nodeExecutionToModel(row), nil
}

// ListByRun retrieves every node execution row for a run, ordered by
// executionOrder and then by startedAt (so the attempts of one node come
// back oldest first).
func (r *NodeExecutionRepository) ListByRun(ctx context.Context, runID string) ([]*models.NodeExecution, error) {
	uid, err := parseUUID(runID)
	if err != nil {
		return nil, fmt.Errorf("node execution repository: list by run: %w", err)
	}
	var rows []*repomodels.NodeExecutionModel
	err = r.db.NewSelect().
		Model(&rows).
		Where("workflow_run_id = ?", uid).
		Order("execution_order ASC", "started_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("node execution repository: list by run: %w", err)
	}
	out := make([]*models.NodeExecution, 0, len(rows))
	for _, row := range rows {
		out = append(out, nodeExecutionToModel(row))
	}
	return out, nil
}
