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

// WorkflowRepository persists Workflow definitions as a single JSONB
// document per row: the DAG is always read and written whole, never
// queried by node/edge attributes, so there is no normalized nodes/edges
// schema to keep in sync.
type WorkflowRepository struct {
	db *bun.DB
}

// NewWorkflowRepository creates a new WorkflowRepository.
func NewWorkflowRepository(db *bun.DB) *WorkflowRepository {
	return &WorkflowRepository{db: db}
}

// Create persists a new workflow with the status it carries.
func (r *WorkflowRepository) Create(ctx context.Context, w *models.Workflow) (*models.Workflow, error) {
	row, err := workflowFromModel(w)
	if err != nil {
		return nil, fmt.Errorf("workflow repository: create: %w", err)
	}
	if _, err := r.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return nil, fmt.Errorf("workflow repository: create: %w", err)
	}
	return workflowToModel(row), nil
}

// Update persists an updated workflow, including a changed definition and
// bumped version.
func (r *WorkflowRepository) Update(ctx context.Context, w *models.Workflow) (*models.Workflow, error) {
	row, err := workflowFromModel(w)
	if err != nil {
		return nil, fmt.Errorf("workflow repository: update: %w", err)
	}
	_, err = r.db.NewUpdate().
		Model(row).
		Column("name", "description", "version", "definition", "status", "updated_at").
		Where("id = ?", row.ID).
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("workflow repository: update: %w", err)
	}
	return workflowToModel(row), nil
}

// GetByID retrieves a workflow by id.
func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	uid, err := parseUUID(id)
	if err != nil {
		return nil, models.ErrWorkflowNotFound
	}
	row := &repomodels.WorkflowModel{}
	err = r.db.NewSelect().Model(row).Where("id = ?", uid).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrWorkflowNotFound
		}
		return nil, fmt.Errorf("workflow repository: get: %w", err)
	}
	return workflowToModel(row), nil
}

// ListByStatus retrieves workflows in the given status, newest first.
func (r *WorkflowRepository) ListByStatus(ctx context.Context, status models.WorkflowStatus, limit, offset int) ([]*models.Workflow, error) {
	var rows []*repomodels.WorkflowModel
	err := r.db.NewSelect().
		Model(&rows).
		Where("status = ?", workflowStatusToDB(status)).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("workflow repository: list by status: %w", err)
	}
	out := make([]*models.Workflow, 0, len(rows))
	for _, row := range rows {
		out = append(out, workflowToModel(row))
	}
	return out, nil
}
