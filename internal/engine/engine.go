// Package engine implements the execution engine: workflow lifecycle
// management, topological scheduling of a single run's DAG, and the
// in-memory activeRuns map that is this instance's source of truth for
// which runs are in flight.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/smilemakc/workflowrt/internal/dispatcher"
	"github.com/smilemakc/workflowrt/internal/logger"
	"github.com/smilemakc/workflowrt/internal/models"
	"github.com/smilemakc/workflowrt/internal/observer"
	"github.com/smilemakc/workflowrt/internal/repository"
	"github.com/smilemakc/workflowrt/internal/state"
	"github.com/smilemakc/workflowrt/internal/tracing"
	"github.com/smilemakc/workflowrt/internal/validator"
)

// conditionCacheCapacity bounds the number of compiled edge-condition
// programs kept resident; workflows rarely carry more than a few dozen
// distinct condition expressions.
const conditionCacheCapacity = 512

// Engine is the Execution Engine. It owns no network resources itself —
// those belong to its dependencies — only the in-memory activeRuns map and
// the compiled-condition cache shared across runs on this instance.
type Engine struct {
	repo       *repository.Facade
	state      *state.Store
	dispatcher *dispatcher.Dispatcher
	validator  *validator.Validator
	observers  *observer.ObserverManager
	logger     *logger.Logger

	conditionCache *ConditionCache
	active         *activeRuns
}

// New builds an Engine over its dependencies. observers may be nil if no
// event subscribers are configured.
func New(repo *repository.Facade, st *state.Store, disp *dispatcher.Dispatcher, val *validator.Validator, observers *observer.ObserverManager, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.Default()
	}
	return &Engine{
		repo:           repo,
		state:          st,
		dispatcher:     disp,
		validator:      val,
		observers:      observers,
		logger:         log,
		conditionCache: NewConditionCache(conditionCacheCapacity),
		active:         newActiveRuns(),
	}
}

// WorkflowPatch carries the fields UpdateWorkflow may change; nil fields are
// left untouched.
type WorkflowPatch struct {
	Name        *string
	Description *string
	Definition  *models.Definition
	Status      *models.WorkflowStatus
}

// CreateWorkflow validates definition and, if valid, persists a new
// workflow in DRAFT status. A non-valid definition is rejected with the
// validator's ValidationErrors as the returned error.
func (e *Engine) CreateWorkflow(ctx context.Context, def models.Definition, name, description string, principal models.Principal) (*models.Workflow, error) {
	ctx, span := tracing.StartSpan(ctx, "engine.CreateWorkflow")
	defer span.End()

	result := e.validator.Validate(def)
	if !result.Valid {
		return nil, result.Errors
	}

	now := time.Now().UTC()
	wf := &models.Workflow{
		ID:          uuid.New().String(),
		Name:        name,
		Description: description,
		Version:     1,
		Definition:  def,
		Status:      models.WorkflowStatusDraft,
		CreatedBy:   principal.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	created, err := e.repo.Workflows.Create(ctx, wf)
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, fmt.Errorf("engine: create workflow: %w", err)
	}
	return created, nil
}

// UpdateWorkflow applies patch to an existing workflow, re-validating and
// bumping version when the definition changes.
func (e *Engine) UpdateWorkflow(ctx context.Context, id string, patch WorkflowPatch) (*models.Workflow, error) {
	ctx, span := tracing.StartSpan(ctx, "engine.UpdateWorkflow")
	defer span.End()

	wf, err := e.repo.Workflows.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.Definition != nil {
		result := e.validator.Validate(*patch.Definition)
		if !result.Valid {
			return nil, result.Errors
		}
		wf.Definition = *patch.Definition
		wf.Version++
	}
	if patch.Name != nil {
		wf.Name = *patch.Name
	}
	if patch.Description != nil {
		wf.Description = *patch.Description
	}
	if patch.Status != nil {
		wf.Status = *patch.Status
	}
	wf.UpdatedAt = time.Now().UTC()

	updated, err := e.repo.Workflows.Update(ctx, wf)
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, fmt.Errorf("engine: update workflow: %w", err)
	}
	return updated, nil
}

// ExecuteWorkflow requires the workflow be ACTIVE, creates a PENDING run,
// initializes its WorkflowState, schedules execution on a tracked
// goroutine, and returns immediately.
func (e *Engine) ExecuteWorkflow(ctx context.Context, workflowID string, triggerData map[string]any, principal models.Principal) (*models.WorkflowRun, error) {
	ctx, span := tracing.StartSpan(ctx, "engine.ExecuteWorkflow")
	defer span.End()

	wf, err := e.repo.Workflows.GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if !wf.IsActive() {
		return nil, fmt.Errorf("%w: workflow %s has status %s", models.ErrNotActive, workflowID, wf.Status)
	}

	run := &models.WorkflowRun{
		ID:          uuid.New().String(),
		WorkflowID:  workflowID,
		Status:      models.RunStatusPending,
		TriggerData: triggerData,
		StartedBy:   principal.ID,
		Priority:    models.DefaultPriority,
	}
	created, err := e.repo.Runs.Create(ctx, run)
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, fmt.Errorf("engine: create run: %w", err)
	}

	if _, err := e.state.InitWorkflowState(ctx, created.ID, triggerData); err != nil {
		tracing.RecordError(ctx, err)
		return nil, fmt.Errorf("engine: init run state: %w", err)
	}

	e.spawn(created.ID, wf)

	return created, nil
}

// RetryWorkflow starts a fresh run for the same (workflowId, triggerData)
// as a prior run. Retry never resumes mid-DAG from the failed node; it
// always re-executes the whole workflow from its roots.
func (e *Engine) RetryWorkflow(ctx context.Context, runID string, principal models.Principal) (*models.WorkflowRun, error) {
	prior, err := e.repo.Runs.GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	if prior.Status != models.RunStatusFailed && prior.Status != models.RunStatusCancelled {
		return nil, fmt.Errorf("%w: run %s has status %s", models.ErrNotRetryable, runID, prior.Status)
	}
	return e.ExecuteWorkflow(ctx, prior.WorkflowID, prior.TriggerData, principal)
}

// StopWorkflow requests cooperative cancellation of runID if it is
// in-flight on this instance. It returns false if the run is not tracked
// here (already terminal, or running on a different instance).
func (e *Engine) StopWorkflow(runID string) bool {
	ec, ok := e.active.get(runID)
	if !ok {
		return false
	}
	ec.RequestStop()
	return true
}

func (e *Engine) spawn(runID string, wf *models.Workflow) {
	runCtx, cancel := context.WithCancel(context.Background())
	ec := newExecutionContext(runID, wf.ID, cancel)
	e.active.store(ec)

	go func() {
		defer ec.markDone()
		defer cancel()
		defer e.active.remove(runID)
		e.runToCompletion(runCtx, runID, wf)
	}()
}

// runToCompletion drives one run from RUNNING through to a terminal status,
// delegating the node-by-node scheduling to a scheduler, then finalizing
// the run and its WorkflowState transactionally via the repository facade.
func (e *Engine) runToCompletion(ctx context.Context, runID string, wf *models.Workflow) {
	ctx, span := tracing.StartSpan(ctx, "engine.runToCompletion")
	defer span.End()

	run, err := e.repo.Runs.GetByID(ctx, runID)
	if err != nil {
		e.logger.Error("load run for execution failed", "runId", runID, "error", err)
		return
	}

	startedAt := time.Now().UTC()
	run.Status = models.RunStatusRunning
	run.StartedAt = &startedAt
	if err := e.repo.Runs.Update(ctx, run); err != nil {
		e.logger.Error("mark run running failed", "runId", runID, "error", err)
	}
	e.notifyExecution(ctx, observer.EventTypeExecutionStarted, run, wf, startedAt, nil)

	sched := newScheduler(e, runID, wf)
	status, failedNode, runErr := sched.run(ctx)

	// The run context is cancelled when the run is stopped; finalization
	// writes must still land, so they run detached from it.
	ctx = context.WithoutCancel(ctx)

	completedAt := time.Now().UTC()
	run.Status = status
	run.CompletedAt = &completedAt
	if runErr != nil {
		run.Error = &models.RunError{
			Code:    errorCodeFor(status, runErr),
			Message: runErr.Error(),
			NodeID:  failedNode,
		}
	}

	// Update state through the store first so the cache tier sees the
	// terminal status too, then persist run and state transactionally.
	ws, err := e.state.UpdateWorkflowState(ctx, runID, func(w *models.WorkflowState) {
		w.Status = statusToStateString(status)
	})
	if err != nil {
		e.logger.Error("write final workflow state failed", "runId", runID, "error", err)
		ws = &models.WorkflowState{RunID: runID, Status: statusToStateString(status), UpdatedAt: completedAt, Variables: map[string]any{}, NodeOutputs: map[string]any{}}
	}

	if err := e.repo.FinalizeRun(ctx, run, ws); err != nil {
		e.logger.Error("finalize run failed", "runId", runID, "error", err)
		tracing.RecordError(ctx, err)
	}

	evtType := observer.EventTypeExecutionCompleted
	if status != models.RunStatusCompleted {
		evtType = observer.EventTypeExecutionFailed
	}
	e.notifyExecution(ctx, evtType, run, wf, completedAt, runErr)
}

func (e *Engine) notifyExecution(ctx context.Context, evtType observer.EventType, run *models.WorkflowRun, wf *models.Workflow, at time.Time, err error) {
	if e.observers == nil {
		return
	}
	e.observers.Notify(ctx, observer.Event{
		Type:        evtType,
		ExecutionID: run.ID,
		WorkflowID:  wf.ID,
		Timestamp:   at,
		Status:      string(run.Status),
		Error:       err,
	})
}

func errorCodeFor(status models.RunStatus, err error) string {
	switch {
	case status == models.RunStatusCancelled:
		return "Cancelled"
	case dispatcher.IsTransient(err):
		return "Transient"
	default:
		return "Permanent"
	}
}

func statusToStateString(status models.RunStatus) string {
	switch status {
	case models.RunStatusCompleted:
		return "completed"
	case models.RunStatusFailed:
		return "failed"
	case models.RunStatusCancelled:
		return "cancelled"
	default:
		return "running"
	}
}

// Progress summarizes a run's node completion for the status response.
type Progress struct {
	CompletedNodes int    `json:"completedNodes"`
	TotalNodes     int    `json:"totalNodes"`
	CurrentNode    string `json:"currentNode,omitempty"`
}

// RunStatusView is the run status response shape served by the API.
type RunStatusView struct {
	ExecutionID    string               `json:"executionId"`
	WorkflowID     string               `json:"workflowId"`
	Status         models.RunStatus     `json:"status"`
	StartedAt      *time.Time           `json:"startedAt,omitempty"`
	CompletedAt    *time.Time           `json:"completedAt,omitempty"`
	Error          *models.RunError     `json:"error,omitempty"`
	NodeExecutions []models.NodeExecution `json:"nodeExecutions,omitempty"`
	Progress       Progress             `json:"progress"`
}

// GetWorkflowStatus builds the run status view, including per-node
// executions only when includeNodes is set.
func (e *Engine) GetWorkflowStatus(ctx context.Context, runID string, includeNodes bool) (*RunStatusView, error) {
	run, err := e.repo.Runs.GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	wf, err := e.repo.Workflows.GetByID(ctx, run.WorkflowID)
	if err != nil {
		return nil, err
	}
	nodeExecs, err := e.repo.NodeExecutions.ListByRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("engine: list node executions: %w", err)
	}

	completed := 0
	for _, ne := range nodeExecs {
		if ne.Status == models.NodeExecutionCompleted || ne.Status == models.NodeExecutionSkipped {
			completed++
		}
	}

	var current string
	if run.Status == models.RunStatusRunning {
		if ws, err := e.state.GetWorkflowState(ctx, runID); err == nil && len(ws.ExecutionPath) > 0 {
			current = ws.ExecutionPath[len(ws.ExecutionPath)-1].NodeID
		}
	}

	view := &RunStatusView{
		ExecutionID: run.ID,
		WorkflowID:  run.WorkflowID,
		Status:      run.Status,
		StartedAt:   run.StartedAt,
		CompletedAt: run.CompletedAt,
		Error:       run.Error,
		Progress: Progress{
			CompletedNodes: completed,
			TotalNodes:     len(wf.Definition.Nodes),
			CurrentNode:    current,
		},
	}
	if includeNodes {
		view.NodeExecutions = dereferenceAll(nodeExecs)
	}
	return view, nil
}

func dereferenceAll(in []*models.NodeExecution) []models.NodeExecution {
	out := make([]models.NodeExecution, 0, len(in))
	for _, ne := range in {
		out = append(out, *ne)
	}
	return out
}
