package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/smilemakc/workflowrt/internal/engine"
	"github.com/smilemakc/workflowrt/internal/logger"
)

// WorkflowHandlers serves the /workflows endpoints.
type WorkflowHandlers struct {
	engine *engine.Engine
	logger *logger.Logger
}

func NewWorkflowHandlers(eng *engine.Engine, log *logger.Logger) *WorkflowHandlers {
	return &WorkflowHandlers{engine: eng, logger: log}
}

// HandleCreateWorkflow handles POST /workflows.
func (h *WorkflowHandlers) HandleCreateWorkflow(c *gin.Context) {
	var req CreateWorkflowRequest
	if err := bindJSON(c, &req); err != nil {
		return
	}

	wf, err := h.engine.CreateWorkflow(c.Request.Context(), req.Definition, req.Name, req.Description, GetPrincipal(c))
	if err != nil {
		h.logger.Error("create workflow failed", "error", err, "request_id", GetRequestID(c))
		respondAPIError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, wf)
}

// HandleUpdateWorkflow handles PUT /workflows/{id}.
func (h *WorkflowHandlers) HandleUpdateWorkflow(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		respondAPIError(c, ErrMissingParameter)
		return
	}

	var req UpdateWorkflowRequest
	if err := bindJSON(c, &req); err != nil {
		return
	}

	patch := engine.WorkflowPatch{
		Name:        req.Name,
		Description: req.Description,
		Definition:  req.Definition,
		Status:      req.Status,
	}

	wf, err := h.engine.UpdateWorkflow(c.Request.Context(), id, patch)
	if err != nil {
		h.logger.Error("update workflow failed", "error", err, "workflow_id", id, "request_id", GetRequestID(c))
		respondAPIError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, wf)
}
