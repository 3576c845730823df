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

// RunRepository persists WorkflowRun rows.
type RunRepository struct {
	db *bun.DB
}

// NewRunRepository creates a new RunRepository.
func NewRunRepository(db *bun.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create persists a new run with the status it carries.
func (r *RunRepository) Create(ctx context.Context, run *models.WorkflowRun) (*models.WorkflowRun, error) {
	row, err := runFromModel(run)
	if err != nil {
		return nil, fmt.Errorf("run repository: create: %w", err)
	}
	if _, err := r.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return nil, fmt.Errorf("run repository: create: %w", err)
	}
	return runToModel(row), nil
}

// Update persists status, error, and completedAt changes to an existing
// run. Terminal rows must not be updated again by the caller; the
// repository does not itself enforce that invariant (the engine does).
func (r *RunRepository) Update(ctx context.Context, run *models.WorkflowRun) error {
	row, err := runFromModel(run)
	if err != nil {
		return fmt.Errorf("run repository: update: %w", err)
	}
	_, err = r.db.NewUpdate().
		Model(row).
		Column("status", "error_code", "error_message", "error_node_id", "result_data", "started_at", "completed_at", "updated_at").
		Where("id = ?", row.ID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("run repository: update: %w", err)
	}
	return nil
}

// GetByID retrieves a run by id.
func (r *RunRepository) GetByID(ctx context.Context, id string) (*models.WorkflowRun, error) {
	uid, err := parseUUID(id)
	if err != nil {
		return nil, models.ErrRunNotFound
	}
	row := &repomodels.RunModel{}
	err = r.db.NewSelect().Model(row).Where("id = ?", uid).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrRunNotFound
		}
		return nil, fmt.Errorf("run repository: get: %w", err)
	}
	return runToModel(row), nil
}

// ListByWorkflow retrieves runs for a workflow, optionally filtered by
// status, newest first.
func (r *RunRepository) ListByWorkflow(ctx context.Context, workflowID string, status *models.RunStatus, limit, offset int) ([]*models.WorkflowRun, error) {
	wid, err := parseUUID(workflowID)
	if err != nil {
		return nil, fmt.Errorf("run repository: list by workflow: %w", err)
	}
	q := r.db.NewSelect().Model((*repomodels.RunModel)(nil)).Where("workflow_id = ?", wid)
	if status != nil {
		q = q.Where("status = ?", runStatusToDB(*status))
	}
	var rows []*repomodels.RunModel
	err = q.Order("created_at DESC").Limit(limit).Offset(offset).Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("run repository: list by workflow: %w", err)
	}
	out := make([]*models.WorkflowRun, 0, len(rows))
	for _, row := range rows {
		out = append(out, runToModel(row))
	}
	return out, nil
}

// List retrieves runs across all workflows, optionally filtered by
// workflow and/or status, newest first.
func (r *RunRepository) List(ctx context.Context, workflowID string, status *models.RunStatus, limit, offset int) ([]*models.WorkflowRun, error) {
	q := r.db.NewSelect().Model((*repomodels.RunModel)(nil))
	if workflowID != "" {
		wid, err := parseUUID(workflowID)
		if err != nil {
			return nil, fmt.Errorf("run repository: list: %w", err)
		}
		q = q.Where("workflow_id = ?", wid)
	}
	if status != nil {
		q = q.Where("status = ?", runStatusToDB(*status))
	}
	var rows []*repomodels.RunModel
	if err := q.Order("created_at DESC").Limit(limit).Offset(offset).Scan(ctx, &rows); err != nil {
		return nil, fmt.Errorf("run repository: list: %w", err)
	}
	out := make([]*models.WorkflowRun, 0, len(rows))
	for _, row := range rows {
		out = append(out, runToModel(row))
	}
	return out, nil
}

// ListActive retrieves all runs in PENDING or RUNNING status, used at
// startup to detect runs this instance is no longer tracking.
func (r *RunRepository) ListActive(ctx context.Context) ([]*models.WorkflowRun, error) {
	var rows []*repomodels.RunModel
	err := r.db.NewSelect().
		Model(&rows).
		Where("status IN (?)", bun.In([]string{"pending", "running"})).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("run repository: list active: %w", err)
	}
	out := make([]*models.WorkflowRun, 0, len(rows))
	for _, row := range rows {
		out = append(out, runToModel(row))
	}
	return out, nil
}
