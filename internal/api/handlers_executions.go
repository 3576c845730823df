package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/smilemakc/workflowrt/internal/engine"
	"github.com/smilemakc/workflowrt/internal/logger"
	"github.com/smilemakc/workflowrt/internal/models"
	"github.com/smilemakc/workflowrt/internal/queue"
	"github.com/smilemakc/workflowrt/internal/repository"
	"github.com/smilemakc/workflowrt/internal/state"
)

// ExecutionHandlers serves the /executions endpoints.
type ExecutionHandlers struct {
	engine *engine.Engine
	repo   *repository.Facade
	state  *state.Store
	queue  *queue.Manager
	logger *logger.Logger
}

func NewExecutionHandlers(eng *engine.Engine, repo *repository.Facade, st *state.Store, q *queue.Manager, log *logger.Logger) *ExecutionHandlers {
	return &ExecutionHandlers{engine: eng, repo: repo, state: st, queue: q, logger: log}
}

// HandleStartExecution handles POST /executions.
func (h *ExecutionHandlers) HandleStartExecution(c *gin.Context) {
	var req StartExecutionRequest
	if err := bindJSON(c, &req); err != nil {
		return
	}

	run, err := h.engine.ExecuteWorkflow(c.Request.Context(), req.WorkflowID, req.TriggerData, GetPrincipal(c))
	if err != nil {
		h.logger.Error("start execution failed", "error", err, "workflow_id", req.WorkflowID, "request_id", GetRequestID(c))
		respondAPIError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, run)
}

// HandleListExecutions handles GET /executions.
func (h *ExecutionHandlers) HandleListExecutions(c *gin.Context) {
	limit := getQueryInt(c, "limit", 50)
	offset := getQueryInt(c, "offset", 0)
	workflowID := c.Query("workflowId")

	var status *models.RunStatus
	if s := c.Query("status"); s != "" {
		rs := models.RunStatus(s)
		status = &rs
	}

	runs, err := h.repo.Runs.List(c.Request.Context(), workflowID, status, limit, offset)
	if err != nil {
		h.logger.Error("list executions failed", "error", err, "request_id", GetRequestID(c))
		respondAPIError(c, err)
		return
	}

	respondList(c, http.StatusOK, runs, len(runs), limit, offset)
}

// HandleGetExecution handles GET /executions/{id}, honoring include_nodes.
func (h *ExecutionHandlers) HandleGetExecution(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		respondAPIError(c, ErrMissingParameter)
		return
	}
	includeNodes := getQueryBool(c, "include_nodes")

	view, err := h.engine.GetWorkflowStatus(c.Request.Context(), id, includeNodes)
	if err != nil {
		h.logger.Error("get execution status failed", "error", err, "execution_id", id, "request_id", GetRequestID(c))
		respondAPIError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, view)
}

// HandleStopExecution handles POST /executions/{id}/stop.
func (h *ExecutionHandlers) HandleStopExecution(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		respondAPIError(c, ErrMissingParameter)
		return
	}

	if !h.engine.StopWorkflow(id) {
		respondAPIError(c, NewAPIError("RUN_NOT_ACTIVE", "execution is not running on this instance", http.StatusNotFound))
		return
	}

	respondJSON(c, http.StatusOK, gin.H{"stopped": true})
}

// HandleRetryExecution handles POST /executions/{id}/retry.
func (h *ExecutionHandlers) HandleRetryExecution(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		respondAPIError(c, ErrMissingParameter)
		return
	}

	run, err := h.engine.RetryWorkflow(c.Request.Context(), id, GetPrincipal(c))
	if err != nil {
		h.logger.Error("retry execution failed", "error", err, "execution_id", id, "request_id", GetRequestID(c))
		respondAPIError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, run)
}

// HandleGetState handles GET /executions/{id}/state.
func (h *ExecutionHandlers) HandleGetState(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		respondAPIError(c, ErrMissingParameter)
		return
	}

	ws, err := h.state.GetWorkflowState(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("get execution state failed", "error", err, "execution_id", id, "request_id", GetRequestID(c))
		respondAPIError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, gin.H{
		"variables":     ws.Variables,
		"nodeOutputs":   ws.NodeOutputs,
		"executionPath": ws.ExecutionPath,
		"status":        ws.Status,
	})
}

// NodeMetric is one node execution row's duration (one attempt of a
// node) within an execution's metrics view.
type NodeMetric struct {
	NodeID     string `json:"nodeId"`
	NodeType   string `json:"nodeType"`
	Status     string `json:"status"`
	Duration   int64  `json:"durationMs"`
	RetryCount int    `json:"retryCount"`
}

// ExecutionMetrics is the GET /executions/{id}/metrics response shape.
type ExecutionMetrics struct {
	ExecutionID  string       `json:"executionId"`
	TotalNodes   int          `json:"totalNodes"`
	TotalRuntime int64        `json:"totalRuntimeMs"`
	Nodes        []NodeMetric `json:"nodes"`
}

// HandleGetMetrics handles GET /executions/{id}/metrics.
func (h *ExecutionHandlers) HandleGetMetrics(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		respondAPIError(c, ErrMissingParameter)
		return
	}

	run, err := h.repo.Runs.GetByID(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("get execution for metrics failed", "error", err, "execution_id", id, "request_id", GetRequestID(c))
		respondAPIError(c, err)
		return
	}

	nodeExecs, err := h.repo.NodeExecutions.ListByRun(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("list node executions for metrics failed", "error", err, "execution_id", id, "request_id", GetRequestID(c))
		respondAPIError(c, err)
		return
	}

	metrics := ExecutionMetrics{ExecutionID: id}
	if run.StartedAt != nil {
		end := time.Now().UTC()
		if run.CompletedAt != nil {
			end = *run.CompletedAt
		}
		metrics.TotalRuntime = end.Sub(*run.StartedAt).Milliseconds()
	}
	seen := make(map[string]bool, len(nodeExecs))
	for _, ne := range nodeExecs {
		if !seen[ne.NodeID] {
			seen[ne.NodeID] = true
			metrics.TotalNodes++
		}
		metrics.Nodes = append(metrics.Nodes, NodeMetric{
			NodeID:     ne.NodeID,
			NodeType:   ne.NodeType,
			Status:     string(ne.Status),
			Duration:   ne.Duration().Milliseconds(),
			RetryCount: ne.RetryCount,
		})
	}

	respondJSON(c, http.StatusOK, metrics)
}

// HandleBatchExecutions handles POST /executions/batch: each item is
// submitted as a workflow.execute queue task rather than run synchronously,
// so the response carries task ids, not run ids.
func (h *ExecutionHandlers) HandleBatchExecutions(c *gin.Context) {
	var req BatchExecutionRequest
	if err := bindJSON(c, &req); err != nil {
		return
	}
	if len(req.Runs) > maxBatchSize {
		respondAPIError(c, ErrTooManyItems)
		return
	}

	principal := GetPrincipal(c)
	taskIDs := make([]string, 0, len(req.Runs))
	for _, item := range req.Runs {
		args := map[string]any{
			"workflowId":  item.WorkflowID,
			"triggerData": item.TriggerData,
			"principalId": principal.ID,
		}
		taskID, err := h.queue.SubmitTask(c.Request.Context(), queue.TaskWorkflowExecute, args, nil, 5, "", 0, nil, nil)
		if err != nil {
			h.logger.Error("submit batch execution failed", "error", err, "workflow_id", item.WorkflowID, "request_id", GetRequestID(c))
			respondAPIError(c, err)
			return
		}
		taskIDs = append(taskIDs, taskID)
	}

	respondJSON(c, http.StatusCreated, gin.H{"taskIds": taskIDs})
}
